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

package builtin

import (
	"log/slog"

	"hitl-chat/internal/storage/cache"
	"hitl-chat/internal/tool/registry"
	"hitl-chat/pkg/config"
)

// Deps 内置工具依赖
type Deps struct {
	Config config.ToolsConfig
	Cache  cache.Store // 可为 nil，不缓存天气
	Logger *slog.Logger
}

// RegisterBuiltin 注册内置工具：天气与邮件需人工确认，本地时间自动执行
func RegisterBuiltin(reg *registry.Registry, deps Deps) {
	if reg == nil {
		return
	}
	weather := NewWeatherTool(WeatherOptions{
		GeocodingURL: deps.Config.Weather.GeocodingURL,
		ForecastURL:  deps.Config.Weather.ForecastURL,
		Cache:        deps.Cache,
		CacheTTL:     config.ParseDuration(deps.Config.Weather.CacheTTL, 0),
		Logger:       deps.Logger,
	})
	reg.RegisterConfirmed(WeatherToolName,
		"Get the current weather for a city. Requires user confirmation before running.",
		weather.Schema(), weather.Execute)

	clock := NewLocalTimeTool()
	reg.Register(LocalTimeToolName,
		"Get the current local date and time for an IANA time zone.",
		clock.Schema(), clock.Execute)

	email := NewEmailTool(EmailOptions{
		Endpoint: deps.Config.Email.Endpoint,
		APIKey:   deps.Config.Email.APIKey,
		From:     deps.Config.Email.From,
	})
	reg.RegisterConfirmed(EmailToolName,
		"Send an email on the user's behalf. Requires user confirmation before sending.",
		email.Schema(), email.Execute)
}
