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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var credValidate *validator.Validate

func init() {
	credValidate = validator.New()
	credValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationResult 凭证校验结果
type ValidationResult struct {
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
	ErrorType ErrorKind `json:"errorType,omitempty"`
	ToolCount int       `json:"toolCount,omitempty"`
	ToolNames []string  `json:"toolNames,omitempty"`
}

// CheckFields 不联网检查凭证字段：缺字段返回 MISSING_FIELDS，URL 非法返回 INVALID_URL
func CheckFields(creds Credentials) *ConnectError {
	err := credValidate.Struct(creds)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConnectError{Kind: KindUnknown, Err: err}
	}
	var missing, badURL []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_without":
			missing = append(missing, fe.Field())
		default:
			badURL = append(badURL, fe.Field())
		}
	}
	if len(missing) > 0 {
		return &ConnectError{Kind: KindMissingFields, Err: fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))}
	}
	return &ConnectError{Kind: KindInvalidURL, Err: fmt.Errorf("invalid URL format: %s", strings.Join(badURL, ", "))}
}

// ValidateCredentials 完整走一遍 连接 → 列工具 → 断开；字段问题不发起连接
func ValidateCredentials(ctx context.Context, connector Connector, creds Credentials, opts Options, logger *slog.Logger) ValidationResult {
	if ce := CheckFields(creds); ce != nil {
		return failure(ce)
	}
	gw := New(connector, opts, logger)
	defer gw.Disconnect()
	tools, err := gw.GetTools(ctx, creds)
	if err != nil {
		return failure(classified(err))
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return ValidationResult{Valid: true, ToolCount: len(tools), ToolNames: names}
}

func failure(ce *ConnectError) ValidationResult {
	return ValidationResult{
		Valid:     false,
		Error:     fmt.Sprintf("%s %v", ce.Kind.Message(), ce.Err),
		ErrorType: ce.Kind,
	}
}
