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
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// RuleFile 规则文件（YAML）
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Rule 单个 PII 类别的匹配规则
type Rule struct {
	Category    string   `yaml:"category"`
	Placeholder string   `yaml:"placeholder"`
	Priority    int      `yaml:"priority"`
	Patterns    []string `yaml:"patterns"`
	// MinWords 大于 0 时，去掉前导常用词后剩余词数不足则视为不匹配（姓名规则）
	MinWords         int      `yaml:"min_words"`
	LeadingStopwords []string `yaml:"leading_stopwords"`

	compiled []*regexp.Regexp
	stop     map[string]struct{}
}

// ParseRules 解析并编译规则，按 priority 从高到低排序（同优先级保持文件顺序）
func ParseRules(data []byte) ([]Rule, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析脱敏规则失败: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("脱敏规则为空")
	}
	for i := range file.Rules {
		if err := file.Rules[i].compile(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(file.Rules, func(i, j int) bool {
		return file.Rules[i].Priority > file.Rules[j].Priority
	})
	return file.Rules, nil
}

// LoadRulesFile 从文件加载规则；path 为空时使用内置规则
func LoadRulesFile(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取脱敏规则文件失败: %w", err)
	}
	return ParseRules(data)
}

// DefaultRules 内置规则
func DefaultRules() ([]Rule, error) {
	return ParseRules(defaultRulesYAML)
}

func (r *Rule) compile() error {
	if r.Category == "" || r.Placeholder == "" {
		return fmt.Errorf("脱敏规则缺少 category 或 placeholder")
	}
	r.compiled = r.compiled[:0]
	for _, p := range r.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("规则 %s 的正则非法: %w", r.Category, err)
		}
		r.compiled = append(r.compiled, re)
	}
	r.stop = make(map[string]struct{}, len(r.LeadingStopwords))
	for _, w := range r.LeadingStopwords {
		r.stop[w] = struct{}{}
	}
	return nil
}

// KeyPolicy 按字段名脱敏结构化数据（大小写不敏感，任意深度）
type KeyPolicy struct {
	Keys map[string]RedactionMode
	Salt string
}

// RedactionMode 字段脱敏模式
type RedactionMode string

const (
	RedactionModeRedact RedactionMode = "redact" // 替换为 "***REDACTED***"
	RedactionModeHash   RedactionMode = "hash"   // 替换为 SHA256 hash
	RedactionModeRemove RedactionMode = "remove" // 完全移除字段
)
