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
	"net"
	"strings"
)

// ErrorKind 连接/校验失败分类，对外作为 errorType
type ErrorKind string

const (
	KindMissingFields  ErrorKind = "MISSING_FIELDS"
	KindInvalidURL     ErrorKind = "INVALID_URL"
	KindAuthentication ErrorKind = "AUTHENTICATION_ERROR"
	KindPermission     ErrorKind = "PERMISSION_ERROR"
	KindNotFound       ErrorKind = "RESOURCE_NOT_FOUND"
	KindNetwork        ErrorKind = "NETWORK_ERROR"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindUnknown        ErrorKind = "UNKNOWN"
)

// ErrNotConnected 网关未连接
var ErrNotConnected = errors.New("gateway not connected")

// ConnectError 带分类的网关错误
type ConnectError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Message 面向用户的分类说明
func (k ErrorKind) Message() string {
	switch k {
	case KindMissingFields:
		return "Some required credential fields are missing."
	case KindInvalidURL:
		return "The auth or API URL is not a valid http(s) URL."
	case KindAuthentication:
		return "Authentication failed. Check the client id and secret."
	case KindPermission:
		return "The credentials lack the scopes required for this operation."
	case KindNotFound:
		return "The project was not found. Check the project key and region URLs."
	case KindNetwork:
		return "Could not reach the platform. Check the URLs and network connectivity."
	case KindTimeout:
		return "The platform did not respond in time."
	}
	return "Connecting to the platform failed."
}

// Classify 按错误链与错误文本归类
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return KindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(msg, "401", "unauthorized", "invalid_client", "invalid client", "authentication"):
		return KindAuthentication
	case containsAny(msg, "403", "forbidden", "insufficient_scope", "insufficient scope", "permission"):
		return KindPermission
	case containsAny(msg, "404", "not found", "unknown project", "project does not exist"):
		return KindNotFound
	case containsAny(msg, "econnrefused", "connection refused", "no such host", "enotfound", "dial tcp", "network is unreachable", "connection reset"):
		return KindNetwork
	}
	return KindUnknown
}

func classified(err error) *ConnectError {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConnectError{Kind: Classify(err), Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
