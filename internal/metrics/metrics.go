// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 取り込み解析の結果ラベル。エラー時はAPIErrorのコードを使う。
const OutcomeOK = "ok"

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAnalyze(mode, outcome string)
	RecordImport(created int, failed bool)
	RecordHTTPStatus(statusCode int)
	RecordEnrichment(success bool)
	RecordFetchLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	analyze       *prometheus.CounterVec
	importBatches *prometheus.CounterVec
	itemsImported prometheus.Counter
	httpStatus    *prometheus.CounterVec
	enrichment    *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		analyze: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_import_analyze_total",
			Help: "取り込み解析の実行数（モード・結果別）",
		}, []string{"mode", "outcome"}),
		importBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_import_batches_total",
			Help: "一括取り込みの実行数（結果別）",
		}, []string{"result"}),
		itemsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_items_imported_total",
			Help: "一括取り込みで作成された記事の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_enrichment_total",
			Help: "リンク先メタデータ補完の実行数（結果別）",
		}, []string{"result"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdigest_fetch_latency_seconds",
			Help:    "外部URL取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.analyze,
		c.importBatches,
		c.itemsImported,
		c.httpStatus,
		c.enrichment,
		c.fetchLatency,
	)

	return c
}

// RecordAnalyze は取り込み解析の結果を記録する。
func (c *Collector) RecordAnalyze(mode, outcome string) {
	c.analyze.WithLabelValues(mode, outcome).Inc()
}

// RecordImport は一括取り込みの結果と作成件数を記録する。
func (c *Collector) RecordImport(created int, failed bool) {
	result := "success"
	if failed {
		result = "failure"
	}
	c.importBatches.WithLabelValues(result).Inc()
	c.itemsImported.Add(float64(created))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordEnrichment は記事補完の成否を記録する。
func (c *Collector) RecordEnrichment(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.enrichment.WithLabelValues(result).Inc()
}

// RecordFetchLatency は外部URL取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
