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

package app

import (
	"context"
	"errors"

	"hitl-chat/internal/audit"
	"hitl-chat/internal/gateway"
	"hitl-chat/internal/storage/cache"
	"hitl-chat/pkg/config"
	perrors "hitl-chat/pkg/errors"
	"hitl-chat/pkg/log"
	"hitl-chat/pkg/metrics"
	"hitl-chat/pkg/redaction"
	"hitl-chat/pkg/secrets"
)

// Bootstrap 统一初始化基础设施：配置、日志、密钥、缓存、审计、脱敏
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Secrets  secrets.Store
	Cache    cache.Store
	Audit    audit.Store
	Redactor *redaction.Engine // 关闭脱敏时为 nil
}

// NewBootstrap 根据配置创建 Bootstrap；cfg 为 nil 时全部使用默认值
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, perrors.Wrap(err, "初始化日志failed")
	}
	b := &Bootstrap{Config: cfg, Logger: logger}

	s := cfg.Platform.Secrets
	b.Secrets, err = secrets.NewStore(secrets.Config{
		Provider:   s.Provider,
		EnvPrefix:  s.EnvPrefix,
		VaultAddr:  s.VaultAddr,
		VaultToken: s.VaultToken,
		VaultMount: s.VaultMount,
	})
	if err != nil {
		return nil, b.fail(perrors.Wrap(err, "初始化密钥存储failed"))
	}

	b.Cache, err = cache.NewCache(cfg.Storage.Cache)
	if err != nil {
		return nil, b.fail(perrors.Wrap(err, "初始化缓存failed"))
	}

	b.Audit, err = audit.NewStore(ctx, cfg.Audit)
	if err != nil {
		return nil, b.fail(perrors.Wrap(err, "初始化审计存储failed"))
	}

	if cfg.Redaction.Enabled() {
		rules, err := redaction.LoadRulesFile(cfg.Redaction.RulesFile)
		if err != nil {
			return nil, b.fail(perrors.Wrap(err, "加载脱敏规则failed"))
		}
		b.Redactor = redaction.NewEngine(rules,
			redaction.WithLogger(logger.Logger),
			redaction.WithObserver(metrics.ObserveRedaction),
		)
	}
	return b, nil
}

// DefaultCredentials 请求未携带凭证时使用的平台凭证：
// 配置了 secrets.key 时从密钥存储读取，否则取 platform 段的明文配置（可为空）
func (b *Bootstrap) DefaultCredentials(ctx context.Context) (gateway.Credentials, error) {
	p := b.Config.Platform
	if p.Secrets.Key != "" && b.Secrets != nil {
		fields, err := b.Secrets.GetFields(ctx, p.Secrets.Key)
		if err != nil {
			return gateway.Credentials{}, perrors.Wrap(err, "读取默认平台凭证failed")
		}
		return gateway.CredentialsFromFields(fields), nil
	}
	return gateway.Credentials{
		ProjectKey:   p.ProjectKey,
		AuthURL:      p.AuthURL,
		APIURL:       p.APIURL,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		AccessToken:  p.AccessToken,
	}, nil
}

// Close 关闭存储与日志输出
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Cache != nil {
		errs = append(errs, b.Cache.Close())
	}
	if b.Audit != nil {
		errs = append(errs, b.Audit.Close())
	}
	if b.Logger != nil {
		errs = append(errs, b.Logger.Close())
	}
	return errors.Join(errs...)
}

func (b *Bootstrap) fail(err error) error {
	_ = b.Close()
	return err
}
