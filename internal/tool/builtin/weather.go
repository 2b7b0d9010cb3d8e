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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"hitl-chat/internal/storage/cache"
	"hitl-chat/internal/tool"
)

const (
	WeatherToolName = "getWeatherInformation"

	defaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

// Weather 城市当前天气
type Weather struct {
	City        string  `json:"city"`
	Country     string  `json:"country,omitempty"`
	Temperature float64 `json:"temperature"`
	Unit        string  `json:"unit"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Condition   string  `json:"condition"`
	ObservedAt  string  `json:"observedAt,omitempty"`
}

// WeatherTool 通过 Open-Meteo 查询天气：先地理编码城市，再取当前天气；结果按城市缓存
type WeatherTool struct {
	client       *resty.Client
	geocodingURL string
	forecastURL  string
	cache        cache.Store
	ttl          time.Duration
	logger       *slog.Logger
}

// WeatherOptions 天气工具配置；URL 为空时使用 Open-Meteo 公共端点
type WeatherOptions struct {
	GeocodingURL string
	ForecastURL  string
	Cache        cache.Store
	CacheTTL     time.Duration // 默认 10m
	Timeout      time.Duration
	Logger       *slog.Logger
}

// NewWeatherTool 创建天气工具
func NewWeatherTool(opts WeatherOptions) *WeatherTool {
	if opts.GeocodingURL == "" {
		opts.GeocodingURL = defaultGeocodingURL
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = defaultForecastURL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WeatherTool{
		client:       newClient(opts.Timeout),
		geocodingURL: opts.GeocodingURL,
		forecastURL:  opts.ForecastURL,
		cache:        opts.Cache,
		ttl:          opts.CacheTTL,
		logger:       opts.Logger,
	}
}

// Schema 入参
func (t *WeatherTool) Schema() tool.Schema {
	return tool.Object(map[string]*tool.Schema{
		"city": tool.String("City name, e.g. Paris"),
	}, "city")
}

// Execute 实现 tool.Executor
func (t *WeatherTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	city := strings.TrimSpace(stringArg(input, "city"))
	if city == "" {
		return nil, errors.New("city is required")
	}
	key := "weather:" + strings.ToLower(city)
	if t.cache != nil {
		var cached Weather
		if err := t.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			t.logger.Warn("天气缓存读取失败", "error", err)
		}
	}

	w, err := t.fetch(ctx, city)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		if err := t.cache.Set(ctx, key, w, t.ttl); err != nil {
			t.logger.Warn("天气缓存写入失败", "error", err)
		}
	}
	return w, nil
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	CurrentUnits struct {
		Temperature string `json:"temperature_2m"`
	} `json:"current_units"`
}

func (t *WeatherTool) fetch(ctx context.Context, city string) (Weather, error) {
	var geo geocodingResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"name": city, "count": "1", "language": "en", "format": "json"}).
		SetResult(&geo).
		Get(t.geocodingURL)
	if err != nil {
		return Weather{}, fmt.Errorf("geocoding failed: %w", err)
	}
	if err := checkStatus(resp, "geocoding"); err != nil {
		return Weather{}, err
	}
	if len(geo.Results) == 0 {
		return Weather{}, fmt.Errorf("city not found: %s", city)
	}
	place := geo.Results[0]

	var fc forecastResponse
	resp, err = t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":  fmt.Sprintf("%.4f", place.Latitude),
			"longitude": fmt.Sprintf("%.4f", place.Longitude),
			"current":   "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code",
		}).
		SetResult(&fc).
		Get(t.forecastURL)
	if err != nil {
		return Weather{}, fmt.Errorf("forecast failed: %w", err)
	}
	if err := checkStatus(resp, "forecast"); err != nil {
		return Weather{}, err
	}
	unit := fc.CurrentUnits.Temperature
	if unit == "" {
		unit = "°C"
	}
	return Weather{
		City:        place.Name,
		Country:     place.Country,
		Temperature: fc.Current.Temperature,
		Unit:        unit,
		Humidity:    fc.Current.Humidity,
		WindSpeed:   fc.Current.WindSpeed,
		Condition:   weatherCondition(fc.Current.WeatherCode),
		ObservedAt:  fc.Current.Time,
	}, nil
}

// weatherCondition WMO 天气代码
func weatherCondition(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	}
	return "unknown"
}
