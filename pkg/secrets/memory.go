// Copyright 2026 fanjia1024
// In-memory secret store (for development and tests)

package secrets

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 内存 secret store
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewMemoryStore 创建内存 secret store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]map[string]string)}
}

// Set 写入单值（存为 value 字段）
func (m *MemoryStore) Set(key, value string) {
	m.SetFields(key, map[string]string{"value": value})
}

// SetFields 写入一组字段
func (m *MemoryStore) SetFields(key string, fields map[string]string) {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	m.mu.Lock()
	m.secrets[key] = cp
	m.mu.Unlock()
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	fields, err := m.GetFields(ctx, key)
	if err != nil {
		return "", err
	}
	if v, ok := fields["value"]; ok {
		return v, nil
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}

func (m *MemoryStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.secrets[key]
	if !ok {
		return nil, fmt.Errorf("secret not found: %s", key)
	}
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return cp, nil
}
