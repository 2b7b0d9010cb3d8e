package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ChatTurnsTotal, StreamEventsTotal,
		ToolDuration, HITLDecisionsTotal,
		RedactionsTotal, GatewayConnections, GatewayConnectTotal,
		RateLimitWaitSeconds,
	)
}

// ChatTurnsTotal 对话轮次（按模式与结果）
var ChatTurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hitl_chat_turns_total",
		Help: "对话轮次总数",
	},
	[]string{"mode", "status"}, // text|data, complete|error|cancelled|rejected
)

// StreamEventsTotal 已写出的流事件数（按事件类型）
var StreamEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hitl_stream_events_total",
		Help: "已写出的流事件数",
	},
	[]string{"type"},
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "hitl_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool", "outcome"}, // ok | error
)

// HITLDecisionsTotal 人工决策数
var HITLDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hitl_decisions_total",
		Help: "人工确认决策总数",
	},
	[]string{"tool", "decision"}, // approved | denied
)

// RedactionsTotal PII 替换次数
var RedactionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hitl_redactions_total",
		Help: "PII 替换次数",
	},
	[]string{"category"},
)

// GatewayConnections 当前远端工具连接数
var GatewayConnections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "hitl_gateway_connections",
		Help: "当前存活的远端工具连接数",
	},
)

// GatewayConnectTotal 远端工具建连次数（按结果）
var GatewayConnectTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hitl_gateway_connect_total",
		Help: "远端工具建连次数",
	},
	[]string{"result"}, // ok | error
)

// RateLimitWaitSeconds 限流等待耗时（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "hitl_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"kind", "key"}, // llm | http
)

// ObserveRedaction 供脱敏引擎回调
func ObserveRedaction(category string, n int) {
	RedactionsTotal.WithLabelValues(category).Add(float64(n))
}

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
