// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redaction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_Categories(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"email", "My email is john.doe@example.com", "My email is [EMAIL]"},
		{"email trailing punct", "Write to jane@corp.io.", "Write to [EMAIL]."},
		{"phone dashes", "call 123-456-7890", "call [PHONE]"},
		{"phone parens", "Phone: (555) 123-4567 please", "Phone: [PHONE] please"},
		{"phone dots", "reach me at 555.123.4567", "reach me at [PHONE]"},
		{"phone country code", "dial +1 555-123-4567", "dial [PHONE]"},
		{"credit card", "card 4111 1111 1111 1111 expires", "card [CREDIT_CARD] expires"},
		{"credit card dashes", "card 4111-1111-1111-1111", "card [CREDIT_CARD]"},
		{"ssn", "ssn 123-45-6789.", "ssn [SSN]."},
		{"ip", "server at 192.168.1.10 is down", "server at [IP_ADDRESS] is down"},
		{"url", "see https://example.com/path?q=1, thanks", "see [URL], thanks"},
		{"www url", "visit www.example.org.", "visit [URL]."},
		{"name", "My name is John Smith", "My name is [NAME]"},
		{"name leading stopword", "Hello John Smith", "Hello [NAME]"},
		{"address", "Ship to 123 Main Street, Springfield, IL 62704 today", "Ship to [ADDRESS] today"},
		{"address short", "I live at 42 Oak Ave", "I live at [ADDRESS]"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Redact(c.in))
		})
	}
}

func TestRedact_NoFalsePositives(t *testing.T) {
	for _, in := range []string{
		"What's the weather in Paris?",
		"Hello there",
		"The order shipped",
		"I have 3 apples and 42 pears",
		"",
	} {
		assert.Equal(t, in, Redact(in), in)
	}
}

// 两个以上大写词即视为姓名，即使是地名短语
func TestRedact_NameRulePinnedBehavior(t *testing.T) {
	assert.Equal(t, "We love [NAME] in spring", Redact("We love New York in spring"))
	assert.Equal(t, "The [NAME] is tall", Redact("The Eiffel Tower is tall"))
}

func TestRedact_PreservesColonAndSpacing(t *testing.T) {
	assert.Equal(t, "Email:  [EMAIL]\nPhone: [PHONE]", Redact("Email:  a@b.co\nPhone: 555-123-4567"))
}

func TestRedact_MultipleMatchesKeepOrder(t *testing.T) {
	in := "John Smith <john@x.com> 555-123-4567 at 10.0.0.1"
	assert.Equal(t, "[NAME] <[EMAIL]> [PHONE] at [IP_ADDRESS]", Redact(in))
}

func TestRedact_Idempotent(t *testing.T) {
	for _, in := range []string{
		"My email is john.doe@example.com",
		"John Smith lives at 123 Main Street, Springfield, IL 62704",
		"card 4111 1111 1111 1111 and ssn 123-45-6789 via https://x.io",
	} {
		once := Redact(in)
		assert.Equal(t, once, Redact(once))
	}
}

func TestRedactDeep(t *testing.T) {
	in := map[string]any{
		"a": "My name is John Smith",
		"b": map[string]any{"c": "call 123-456-7890", "d": true},
		"n": 42.0,
		"z": nil,
		"l": []any{"x@y.com", 1.5},
	}
	out := RedactDeep(in).(map[string]any)
	assert.Equal(t, "My name is [NAME]", out["a"])
	assert.Equal(t, map[string]any{"c": "call [PHONE]", "d": true}, out["b"])
	assert.Equal(t, 42.0, out["n"])
	assert.Nil(t, out["z"])
	assert.Equal(t, []any{"[EMAIL]", 1.5}, out["l"])
	// 入参不被修改
	assert.Equal(t, "My name is John Smith", in["a"])
}

func TestRedactDeep_Struct(t *testing.T) {
	type result struct {
		To    string `json:"to"`
		Count int    `json:"count"`
	}
	out := RedactDeep(result{To: "a@b.com", Count: 2})
	assert.Equal(t, map[string]any{"to": "[EMAIL]", "count": 2.0}, out)
	assert.Equal(t, true, RedactDeep(true))
	assert.Nil(t, RedactDeep(nil))
}

func TestEngine_Observer(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)
	got := map[string]int{}
	e := NewEngine(rules, WithObserver(func(cat string, n int) { got[cat] += n }))
	e.Redact("a@b.com c@d.com 555-123-4567")
	assert.Equal(t, map[string]int{"EMAIL": 2, "PHONE": 1}, got)
}

func TestEngine_FailOpen(t *testing.T) {
	// nil 正则会 panic，引擎应返回原文
	rules := []Rule{{Category: "X", Placeholder: "[X]", MinWords: 2}}
	require.NoError(t, rules[0].compile())
	rules[0].compiled = append(rules[0].compiled, nil)
	e := NewEngine(rules)
	assert.Equal(t, "keep me", e.Redact("keep me"))
}

func TestParseRules_Errors(t *testing.T) {
	_, err := ParseRules([]byte("rules: []"))
	assert.Error(t, err)
	_, err = ParseRules([]byte("rules:\n  - category: X\n    placeholder: '[X]'\n    patterns: ['(']\n"))
	assert.Error(t, err)
	_, err = ParseRules([]byte(":bad"))
	assert.Error(t, err)
}

func TestParseRules_PriorityOrder(t *testing.T) {
	rules, err := ParseRules([]byte(`
rules:
  - {category: LOW, placeholder: "[L]", priority: 1, patterns: ['abc']}
  - {category: HIGH, placeholder: "[H]", priority: 9, patterns: ['abcdef']}
`))
	require.NoError(t, err)
	e := NewEngine(rules)
	assert.Equal(t, "[H] [L]", e.Redact("abcdef abc"))
}

func TestKeyPolicy_Apply(t *testing.T) {
	p := KeyPolicy{Keys: map[string]RedactionMode{
		"clientSecret": RedactionModeRemove,
		"token":        RedactionModeRedact,
		"user":         RedactionModeHash,
	}}
	in := map[string]any{
		"ClientSecret": "s",
		"nested":       []any{map[string]any{"token": "t", "keep": 1}},
		"user":         "bob",
	}
	out := p.Apply(in).(map[string]any)
	_, has := out["ClientSecret"]
	assert.False(t, has)
	assert.Equal(t, "***REDACTED***", out["nested"].([]any)[0].(map[string]any)["token"])
	assert.Equal(t, 1, out["nested"].([]any)[0].(map[string]any)["keep"])
	assert.True(t, strings.HasPrefix(out["user"].(string), "hash:"))
	assert.Equal(t, "s", in["ClientSecret"])
}
