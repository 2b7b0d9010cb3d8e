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

package pipeline

import (
	"errors"
	"fmt"
)

// 请求所处阶段
const (
	StageReceived      = "received"
	StageSystemMessage = "system-message-ensured"
	StageToolsResolved = "tool-calls-resolved"
	StageModelStream   = "model-streaming"
	StageComplete      = "complete"
	StageError         = "error"
)

var (
	// ErrEmptyConversation 请求没有任何消息
	ErrEmptyConversation = errors.New("messages 不能为空")
	// ErrStreamClosed 流已写出终止标记
	ErrStreamClosed = errors.New("stream 已结束")
	// ErrSinkWrite 写出响应失败，通常是客户端已断开
	ErrSinkWrite = errors.New("写出响应失败")
)

// PipelineError 带阶段信息的管线错误
type PipelineError struct {
	Stage   string
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[Pipeline] %s 阶段错误: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[Pipeline] %s 阶段错误: %s", e.Stage, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError 创建新的 Pipeline 错误
func NewPipelineError(stage string, message string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Message: message, Err: err}
}

// StageOf 返回错误发生的阶段，非 PipelineError 返回 StageError
func StageOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return StageError
}
