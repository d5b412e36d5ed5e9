// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 同期パスの結果ラベル。
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期マネージャとワーカーから利用する。
type MetricsCollector interface {
	RecordBatch(recordType string, count int)
	RecordTombstones(count int)
	RecordWatermark(watermark int64)
	RecordRun(result string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	recordsProcessed *prometheus.CounterVec
	tombstones       prometheus.Counter
	watermark        prometheus.Gauge
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		recordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chargesync_records_processed_total",
			Help: "レコードタイプ別の同期済みレコード数",
		}, []string{"record_type"}),
		tombstones: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chargesync_tombstones_total",
			Help: "論理削除したチェックインの合計数",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chargesync_watermark_timestamp_seconds",
			Help: "直近の同期パス開始時のウォーターマーク（UNIX秒）",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chargesync_runs_total",
			Help: "結果別の同期パス実行回数",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chargesync_run_duration_seconds",
			Help:    "同期パスの所要時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
	}

	reg.MustRegister(
		c.recordsProcessed,
		c.tombstones,
		c.watermark,
		c.runs,
		c.runDuration,
	)

	return c
}

// RecordBatch は同期したレコード数を記録する。
func (c *Collector) RecordBatch(recordType string, count int) {
	c.recordsProcessed.WithLabelValues(recordType).Add(float64(count))
}

// RecordTombstones は論理削除したチェックイン数を記録する。
func (c *Collector) RecordTombstones(count int) {
	c.tombstones.Add(float64(count))
}

// RecordWatermark はエポックミリ秒のウォーターマークを秒に変換して記録する。
func (c *Collector) RecordWatermark(watermark int64) {
	c.watermark.Set(float64(watermark) / 1000)
}

// RecordRun は同期パスの結果と所要時間を記録する。
// skippedは実行されなかったパスのため所要時間を記録しない。
func (c *Collector) RecordRun(result string, duration time.Duration) {
	c.runs.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		c.runDuration.Observe(duration.Seconds())
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
