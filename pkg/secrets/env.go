// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type envStore struct {
	prefix string
}

// NewEnvStore 创建环境变量 secret store；GetFields 读取 prefix+key 开头的全部变量
func NewEnvStore(prefix string) Store {
	return &envStore{prefix: prefix}
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s", key)
	}
	return value, nil
}

// GetFields 如 prefix=CTP_，key="" 时 CTP_CLIENT_ID → client_id
func (e *envStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	p := strings.ToUpper(e.prefix + key)
	if key != "" && !strings.HasSuffix(p, "_") {
		p += "_"
	}
	fields := make(map[string]string)
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || value == "" || !strings.HasPrefix(name, p) {
			continue
		}
		fields[strings.ToLower(strings.TrimPrefix(name, p))] = value
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no environment variables with prefix %s", p)
	}
	return fields, nil
}
