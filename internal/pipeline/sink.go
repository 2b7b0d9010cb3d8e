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
	"github.com/google/uuid"

	"hitl-chat/internal/chat"
	"hitl-chat/pkg/redaction"
)

// dataSink 把单步输出写成结构化事件；文本增量与工具入参先经脱敏
type dataSink struct {
	w        EventWriter
	engine   *redaction.Engine
	redactor *redaction.StreamRedactor
	inputs   map[string]*redaction.StreamRedactor // 按工具调用缓冲入参增量
	textID   string
}

func newDataSink(w EventWriter, engine *redaction.Engine) *dataSink {
	return &dataSink{
		w:        w,
		engine:   engine,
		redactor: redaction.NewStreamRedactor(engine),
		inputs:   make(map[string]*redaction.StreamRedactor),
	}
}

func (s *dataSink) startStep() error {
	return s.w.WriteEvent(chat.Event{Type: chat.EventStartStep})
}

func (s *dataSink) startText() error {
	s.textID = "txt-" + uuid.New().String()
	return s.w.WriteEvent(chat.Event{Type: chat.EventTextStart, ID: s.textID})
}

func (s *dataSink) text(delta string) error {
	return s.delta(s.redactor.Write(delta))
}

func (s *dataSink) delta(d string) error {
	if d == "" {
		return nil
	}
	return s.w.WriteEvent(chat.Event{Type: chat.EventTextDelta, ID: s.textID, Delta: d})
}

func (s *dataSink) endText() error {
	if err := s.delta(s.redactor.Flush()); err != nil {
		return err
	}
	return s.w.WriteEvent(chat.Event{Type: chat.EventTextEnd, ID: s.textID})
}

func (s *dataSink) toolInputStart(id, name string) error {
	return s.w.WriteEvent(chat.Event{Type: chat.EventToolInputStart, ToolCallID: id, ToolName: name})
}

func (s *dataSink) toolInputDelta(id, delta string) error {
	r, ok := s.inputs[id]
	if !ok {
		r = redaction.NewStreamRedactor(s.engine)
		s.inputs[id] = r
	}
	return s.inputDelta(id, r.Write(delta))
}

func (s *dataSink) inputDelta(id, d string) error {
	if d == "" {
		return nil
	}
	return s.w.WriteEvent(chat.Event{Type: chat.EventToolInputDelta, ToolCallID: id, InputTextDelta: d})
}

// toolInputAvailable 先释放该调用缓冲的入参增量，再写出脱敏后的完整入参
func (s *dataSink) toolInputAvailable(id, name string, input any) error {
	if r, ok := s.inputs[id]; ok {
		delete(s.inputs, id)
		if err := s.inputDelta(id, r.Flush()); err != nil {
			return err
		}
	}
	return s.w.WriteEvent(chat.Event{Type: chat.EventToolInputAvailable, ToolCallID: id, ToolName: name, Input: s.engine.RedactDeep(input)})
}

func (s *dataSink) toolOutput(id string, output any) error {
	return s.w.WriteEvent(chat.Event{Type: chat.EventToolOutputAvailable, ToolCallID: id, Output: output})
}

func (s *dataSink) finishStep() error {
	return s.w.WriteEvent(chat.Event{Type: chat.EventFinishStep})
}

// textSink 只写出脱敏后的文本，工具调用不可见
type textSink struct {
	w        TextWriter
	redactor *redaction.StreamRedactor
}

func (s *textSink) startStep() error { return nil }
func (s *textSink) startText() error { return nil }

func (s *textSink) text(delta string) error {
	return s.w.WriteText(s.redactor.Write(delta))
}

func (s *textSink) endText() error {
	return s.w.WriteText(s.redactor.Flush())
}

func (s *textSink) toolInputStart(string, string) error { return nil }
func (s *textSink) toolInputDelta(string, string) error { return nil }
func (s *textSink) toolInputAvailable(string, string, any) error { return nil }
func (s *textSink) toolOutput(string, any) error { return nil }
func (s *textSink) finishStep() error { return nil }
