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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Model      ModelConfig      `mapstructure:"model"`
	Chat       ChatConfig       `mapstructure:"chat"`
	HITL       HITLConfig       `mapstructure:"hitl"`
	Redaction  RedactionConfig  `mapstructure:"redaction"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Platform   PlatformConfig   `mapstructure:"platform"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	RateLimit    bool `mapstructure:"rate_limit"`
	RateLimitRPS int  `mapstructure:"rate_limit_rps"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// LLMConfig LLM 模型配置
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name          string  `mapstructure:"name"`
	ContextWindow int     `mapstructure:"context_window"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型，格式 provider.model_key，如 "openai.gpt_4o_mini"
type DefaultsConfig struct {
	LLM string `mapstructure:"llm"`
}

// ChatConfig 对话管线配置
type ChatConfig struct {
	SystemPrompt string `mapstructure:"system_prompt"` // 为空时使用内置人设
	MaxSteps     int    `mapstructure:"max_steps"`     // 单轮最多模型调用次数，<=0 默认 5
}

// HITLConfig 人工确认配置
type HITLConfig struct {
	// ConfirmationRequired 额外需要人工确认的工具名（无执行器的工具始终需要确认）
	ConfirmationRequired   []string `mapstructure:"confirmation_required"`
	ConfirmRemoteMutations bool     `mapstructure:"confirm_remote_mutations"`
}

// RedactionConfig PII 脱敏配置
type RedactionConfig struct {
	Enable    *bool  `mapstructure:"enable"`     // 未配置时默认开启
	RulesFile string `mapstructure:"rules_file"` // 为空使用内置规则
}

// Enabled 是否启用脱敏
func (c RedactionConfig) Enabled() bool {
	return c.Enable == nil || *c.Enable
}

// GatewayConfig 远端工具进程配置
type GatewayConfig struct {
	Command        string   `mapstructure:"command"` // 默认 npx
	Args           []string `mapstructure:"args"`
	ConnectTimeout string   `mapstructure:"connect_timeout"`
	CallTimeout    string   `mapstructure:"call_timeout"`
	SweepInterval  string   `mapstructure:"sweep_interval"`
	IdleTTL        string   `mapstructure:"idle_ttl"`
}

// PlatformConfig 默认平台凭证；请求未携带凭证时使用
type PlatformConfig struct {
	Secrets      SecretsConfig `mapstructure:"secrets"`
	ProjectKey   string        `mapstructure:"project_key"`
	AuthURL      string        `mapstructure:"auth_url"`
	APIURL       string        `mapstructure:"api_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	AccessToken  string        `mapstructure:"access_token"`
}

// SecretsConfig 凭证来源：env | vault | memory
type SecretsConfig struct {
	Provider   string `mapstructure:"provider"`
	VaultAddr  string `mapstructure:"vault_addr"`
	VaultToken string `mapstructure:"vault_token"`
	VaultMount string `mapstructure:"vault_mount"`
	EnvPrefix  string `mapstructure:"env_prefix"`
	Key        string `mapstructure:"key"` // 凭证在 store 中的 key
}

// ToolsConfig 内置工具配置
type ToolsConfig struct {
	Weather WeatherToolConfig `mapstructure:"weather"`
	Email   EmailToolConfig   `mapstructure:"email"`
}

// WeatherToolConfig 天气工具
type WeatherToolConfig struct {
	GeocodingURL string `mapstructure:"geocoding_url"`
	ForecastURL  string `mapstructure:"forecast_url"`
	CacheTTL     string `mapstructure:"cache_ttl"`
}

// EmailToolConfig 邮件工具
type EmailToolConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// AuditConfig 人工决策审计存储
type AuditConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// RateLimitsConfig 限流配置
type RateLimitsConfig struct {
	LLM map[string]LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 单个 LLM Provider 的限流配置
type LLMRateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// replaceEnvVars 替换配置中形如 ${ENV} 的密钥字段
func replaceEnvVars(config *Config) {
	for provider, providerConfig := range config.Model.LLM.Providers {
		providerConfig.APIKey = expandEnv(providerConfig.APIKey)
		config.Model.LLM.Providers[provider] = providerConfig
	}
	p := &config.Platform
	for _, f := range []*string{&p.ProjectKey, &p.AuthURL, &p.APIURL, &p.ClientID, &p.ClientSecret, &p.AccessToken, &p.Secrets.VaultToken} {
		*f = expandEnv(*f)
	}
	config.Tools.Email.APIKey = expandEnv(config.Tools.Email.APIKey)
	config.Audit.DSN = expandEnv(config.Audit.DSN)
	config.Storage.Cache.Password = expandEnv(config.Storage.Cache.Password)
}

// expandEnv 仅处理整串为 ${NAME} 的值；环境变量未设置时置空，避免把占位符当作密钥
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")); val != "" {
		return val
	}
	return ""
}

// ParseDuration 解析时长字符串，为空或非法时返回 def
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
