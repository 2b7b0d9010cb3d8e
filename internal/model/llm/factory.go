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

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"hitl-chat/pkg/config"
)

// ChatModel 对话管线使用的模型契约：流式输出文本与工具调用，支持绑定工具
type ChatModel = model.ToolCallingChatModel

// NewChatModel 按 model.defaults.llm（provider.model_key）创建 OpenAI 兼容的 ChatModel；
// 配置了 rate_limits.llm 时外包一层限流。返回 provider 名称便于日志与指标。
func NewChatModel(ctx context.Context, cfg *config.Config) (ChatModel, string, error) {
	if cfg == nil || cfg.Model.Defaults.LLM == "" {
		return nil, "", fmt.Errorf("model.defaults.llm 未配置")
	}
	provider, modelKey, err := parseDefaultKey(cfg.Model.Defaults.LLM)
	if err != nil {
		return nil, "", err
	}
	pc, ok := cfg.Model.LLM.Providers[provider]
	if !ok {
		return nil, "", fmt.Errorf("LLM provider %q not configured", provider)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return nil, "", fmt.Errorf("LLM model %q not configured in provider %q", modelKey, provider)
	}
	if pc.APIKey == "" {
		return nil, "", fmt.Errorf("LLM provider %q api_key not configured", provider)
	}

	mc := &openai.ChatModelConfig{
		Model:   mi.Name,
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
	}
	if mi.Temperature > 0 {
		t := float32(mi.Temperature)
		mc.Temperature = &t
	}
	if mi.MaxTokens > 0 {
		n := mi.MaxTokens
		mc.MaxTokens = &n
	}
	chatModel, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, "", fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}

	limits := make(map[string]LLMLimitConfig, len(cfg.RateLimits.LLM))
	for name, l := range cfg.RateLimits.LLM {
		limits[name] = LLMLimitConfig{RequestsPerMinute: l.RequestsPerMinute, MaxConcurrent: l.MaxConcurrent}
	}
	if len(limits) == 0 {
		return chatModel, provider, nil
	}
	return NewRateLimitedModel(chatModel, provider, NewLLMRateLimiter(limits, nil)), provider, nil
}

func parseDefaultKey(key string) (provider, modelKey string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("default key 格式应为 provider.model_key，如 openai.gpt_4o_mini，当前: %q", key)
	}
	return parts[0], parts[1], nil
}
