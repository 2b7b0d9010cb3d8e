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

package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Credentials 第三方平台凭证：项目、鉴权地址、API 地址，以及 client id/secret 或 bearer token。
// 仅随请求传递，不落盘、不写日志。
type Credentials struct {
	ProjectKey   string `json:"projectKey" validate:"required"`
	AuthURL      string `json:"authUrl" validate:"required,http_url"`
	APIURL       string `json:"apiUrl" validate:"required,http_url"`
	ClientID     string `json:"clientId,omitempty" validate:"required_without=AccessToken"`
	ClientSecret string `json:"clientSecret,omitempty" validate:"required_without=AccessToken"`
	AccessToken  string `json:"accessToken,omitempty"`
}

// IsZero 是否未提供任何凭证
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// UsesToken 是否使用 bearer token 鉴权
func (c Credentials) UsesToken() bool {
	return c.AccessToken != ""
}

// Identity 凭证身份：对全部字段取 SHA-256，密钥只以哈希形式参与，可安全写日志
func (c Credentials) Identity() string {
	h := sha256.New()
	for _, f := range []string{
		c.ProjectKey,
		strings.TrimRight(c.AuthURL, "/"),
		strings.TrimRight(c.APIURL, "/"),
		c.ClientID,
		digest(c.ClientSecret),
		digest(c.AccessToken),
	} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// LogValue 实现 slog.LogValuer，日志中只出现项目与身份
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project", c.ProjectKey),
		slog.String("identity", c.Identity()),
	)
}

// CredentialsFromFields 由 secret store 的字段构造凭证（字段名为 snake_case）
func CredentialsFromFields(f map[string]string) Credentials {
	return Credentials{
		ProjectKey:   f["project_key"],
		AuthURL:      f["auth_url"],
		APIURL:       f["api_url"],
		ClientID:     f["client_id"],
		ClientSecret: f["client_secret"],
		AccessToken:  f["access_token"],
	}
}

func digest(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
