package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/CLI 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ConversionDuration, ConversionTotal,
		VerificationScore, BatchDocumentsTotal,
		WorkerBusy,
	)
}

// ConversionDuration 单次转换耗时（秒）
var ConversionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "docconv_conversion_duration_seconds",
		Help:    "单次转换耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"source", "target"},
)

// ConversionTotal 转换总数（按终态）
var ConversionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docconv_conversion_total",
		Help: "转换总数（按终态）",
	},
	[]string{"status"}, // completed | failed | cancelled
)

// VerificationScore 校验总分分布
var VerificationScore = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "docconv_verification_score",
		Help:    "校验总分分布",
		Buckets: []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.9, 0.95, 1},
	},
)

// BatchDocumentsTotal 批量转换中处理的文档数（按结果）
var BatchDocumentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docconv_batch_documents_total",
		Help: "批量转换处理的文档数",
	},
	[]string{"status"}, // completed | failed
)

// WorkerBusy 当前占用的引擎 worker 数
var WorkerBusy = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "docconv_worker_busy",
		Help: "当前占用的引擎 worker 数",
	},
)

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

// Handler 独立 metrics 端口使用的 http.Handler
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{})
}
