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
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"hitl-chat/pkg/metrics"
)

// RateLimitedModel 包装任意 ToolCallingChatModel，在真实调用前后执行限流控制。
// 流式调用在流读完或被关闭后才释放并发 slot。
type RateLimitedModel struct {
	inner    model.ToolCallingChatModel
	provider string
	limiter  *LLMRateLimiter
}

// NewRateLimitedModel 创建带限流的模型。limiter 为 nil 时退化为直接调用。
func NewRateLimitedModel(inner model.ToolCallingChatModel, provider string, limiter *LLMRateLimiter) *RateLimitedModel {
	return &RateLimitedModel{inner: inner, provider: provider, limiter: limiter}
}

func (m *RateLimitedModel) acquire(ctx context.Context) (func(), error) {
	if m.limiter == nil {
		return func() {}, nil
	}
	start := time.Now()
	if err := m.limiter.Wait(ctx, m.provider); err != nil {
		return nil, err
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		metrics.RateLimitWaitSeconds.WithLabelValues("llm", m.provider).Observe(waited.Seconds())
	}
	var once sync.Once
	return func() { once.Do(func() { m.limiter.Release(m.provider) }) }, nil
}

// Generate 实现 model.BaseChatModel
func (m *RateLimitedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return m.inner.Generate(ctx, input, opts...)
}

// Stream 实现 model.BaseChatModel
func (m *RateLimitedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	inner, err := m.inner.Stream(ctx, input, opts...)
	if err != nil {
		release()
		return nil, err
	}
	if m.limiter == nil {
		return inner, nil
	}

	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer release()
		defer inner.Close()
		defer sw.Close()
		for {
			chunk, err := inner.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if closed := sw.Send(chunk, err); closed || err != nil {
				return
			}
		}
	}()
	return sr, nil
}

// WithTools 实现 model.ToolCallingChatModel；返回的实例共享同一个限流器
func (m *RateLimitedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	inner, err := m.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &RateLimitedModel{inner: inner, provider: m.provider, limiter: m.limiter}, nil
}

var _ model.ToolCallingChatModel = (*RateLimitedModel)(nil)
