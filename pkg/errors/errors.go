// Package errors 提供统一错误辅助与带错误类型的错误，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidArg  = errors.New("invalid argument")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// TypedError 携带对外错误类型（如 INVALID_REQUEST）的错误，HTTP 层据此输出 {error, errorType}
type TypedError struct {
	Type string
	Msg  string
	Err  error
}

func (e *TypedError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *TypedError) Unwrap() error { return e.Err }

// Typed 构造 TypedError；err 可为 nil
func Typed(typ, msg string, err error) error {
	return &TypedError{Type: typ, Msg: msg, Err: err}
}

// TypeOf 取错误链上第一个 TypedError 的类型，没有则返回 def
func TypeOf(err error, def string) string {
	var te *TypedError
	if errors.As(err, &te) {
		return te.Type
	}
	return def
}
