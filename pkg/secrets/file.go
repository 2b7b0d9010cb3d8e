// Copyright 2026 fanjia1024
// Mounted-file secret store (Kubernetes secret volumes)

package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type fileStore struct {
	dir string
}

// NewFileStore 读取挂载目录：<dir>/<key> 为单值文件，<dir>/<key>/<field> 为字段文件
func NewFileStore(dir string) (Store, error) {
	if dir == "" {
		dir = "/etc/secrets"
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("secrets path not found: %s", dir)
	}
	return &fileStore{dir: dir}, nil
}

func (f *fileStore) Get(ctx context.Context, key string) (string, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, filepath.Clean("/"+key)))
	if err != nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *fileStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	root := filepath.Join(f.dir, filepath.Clean("/"+key))
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("secret not found: %s", key)
	}
	fields := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		fields[strings.ToLower(e.Name())] = strings.TrimSpace(string(data))
	}
	return fields, nil
}
