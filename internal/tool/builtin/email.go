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

package builtin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-resty/resty/v2"

	"hitl-chat/internal/tool"
)

const EmailToolName = "sendEmail"

// EmailTool 通过事务邮件 HTTP API（Resend 兼容）发送邮件，需人工确认
type EmailTool struct {
	client   *resty.Client
	endpoint string
	apiKey   string
	from     string
}

// EmailOptions 邮件工具配置
type EmailOptions struct {
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
}

// NewEmailTool 创建邮件工具
func NewEmailTool(opts EmailOptions) *EmailTool {
	return &EmailTool{
		client:   newClient(opts.Timeout).SetRetryCount(0),
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		from:     opts.From,
	}
}

func (t *EmailTool) Schema() tool.Schema {
	return tool.Object(map[string]*tool.Schema{
		"to":      tool.String("Recipient email address"),
		"subject": tool.String("Subject line"),
		"body":    tool.String("Plain-text message body"),
	}, "to", "subject", "body")
}

func (t *EmailTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	if t.endpoint == "" {
		return nil, errors.New("email delivery is not configured")
	}
	to, subject, body := stringArg(input, "to"), stringArg(input, "subject"), stringArg(input, "body")
	if to == "" || subject == "" || body == "" {
		return nil, errors.New("to, subject and body are required")
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(t.apiKey).
		SetBody(map[string]any{
			"from":    t.from,
			"to":      []string{to},
			"subject": subject,
			"text":    body,
		}).
		SetResult(&out).
		Post(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("send email failed: %w", err)
	}
	if err := checkStatus(resp, "email api"); err != nil {
		return nil, err
	}
	return map[string]any{"status": "sent", "id": out.ID, "to": to}, nil
}
