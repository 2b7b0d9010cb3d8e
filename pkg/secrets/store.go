// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
)

// Store 只读 secret 存储：单值或一组字段（如一套平台凭证）
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// GetFields 获取 key 下的全部字段，字段名统一为小写 snake_case
	GetFields(ctx context.Context, key string) (map[string]string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider   string // env | vault | file | memory
	EnvPrefix  string // env：字段前缀，如 CTP_
	VaultAddr  string
	VaultToken string
	VaultMount string // vault：路径前缀，默认 secret
	Dir        string // file：挂载目录，<dir>/<key>/<field>
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return NewEnvStore(config.EnvPrefix), nil
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(VaultConfig{Address: config.VaultAddr, Token: config.VaultToken, PathPrefix: config.VaultMount})
	case "file":
		return NewFileStore(config.Dir)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}
