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
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"hitl-chat/internal/chat"
	"hitl-chat/pkg/metrics"
)

// Sink 响应体：每次写入后立即 Flush 到客户端
type Sink interface {
	io.Writer
	Flush() error
}

// EventWriter 结构化事件流
type EventWriter interface {
	WriteEvent(e chat.Event) error
	// Done 写出正常结束标记
	Done() error
	// Fail 写出异常结束标记
	Fail() error
}

// TextWriter 纯文本流
type TextWriter interface {
	WriteText(s string) error
}

// SSEWriter 以 "data: <json>\n\n" 帧写出事件，结束时写 [DONE] 或 [ERROR]。并发安全
type SSEWriter struct {
	mu     sync.Mutex
	sink   Sink
	closed bool
}

// NewSSEWriter 创建 SSE 写出器
func NewSSEWriter(sink Sink) *SSEWriter {
	return &SSEWriter{sink: sink}
}

func (w *SSEWriter) WriteEvent(e chat.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return NewPipelineError(StageError, "事件序列化失败", err)
	}
	if err := w.frame(data); err != nil {
		return err
	}
	metrics.StreamEventsTotal.WithLabelValues(string(e.Type)).Inc()
	return nil
}

func (w *SSEWriter) Done() error { return w.terminate("[DONE]") }

func (w *SSEWriter) Fail() error { return w.terminate("[ERROR]") }

func (w *SSEWriter) terminate(marker string) error {
	if err := w.frame([]byte(marker)); err != nil {
		return err
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *SSEWriter) frame(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrStreamClosed
	}
	if _, err := fmt.Fprintf(w.sink, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return flush(w.sink)
}

func flush(sink Sink) error {
	if err := sink.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return nil
}

// PlainWriter 直接写出文本增量。并发安全
type PlainWriter struct {
	mu   sync.Mutex
	sink Sink
}

// NewPlainWriter 创建纯文本写出器
func NewPlainWriter(sink Sink) *PlainWriter {
	return &PlainWriter{sink: sink}
}

func (w *PlainWriter) WriteText(s string) error {
	if s == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.sink, s); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return flush(w.sink)
}
