// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordListEntryUpsert(action string)
	RecordCalendarEventUpsert(action string)
	RecordCalendarSync(outcome string)
	RecordTokenRefresh(result string)
	RecordHTTPStatus(statusCode int)
	RecordUpstreamLatency(operation string, duration time.Duration)
}

// カレンダー同期の結果ラベル
const (
	SyncOutcomeCreated       = "created"
	SyncOutcomeNotConnected  = "not_connected"
	SyncOutcomeNoRefresh     = "no_refresh_token"
	SyncOutcomeRefreshFailed = "refresh_failed"
	SyncOutcomeDecryptFailed = "decrypt_failed"
	SyncOutcomeCreateFailed  = "create_failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	listEntryUpserts *prometheus.CounterVec
	eventUpserts     *prometheus.CounterVec
	calendarSync     *prometheus.CounterVec
	tokenRefresh     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		listEntryUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collegetrack_list_entry_upserts_total",
			Help: "リストエントリのupsert数（created/updated別）",
		}, []string{"action"}),
		eventUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collegetrack_calendar_event_upserts_total",
			Help: "カレンダーイベントのupsert数（created/updated別）",
		}, []string{"action"}),
		calendarSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collegetrack_calendar_sync_total",
			Help: "外部カレンダーへのイベント作成要求の結果別件数",
		}, []string{"outcome"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collegetrack_token_refresh_total",
			Help: "アクセストークン更新の結果別件数",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collegetrack_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collegetrack_upstream_latency_seconds",
			Help:    "外部カレンダーAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.listEntryUpserts,
		c.eventUpserts,
		c.calendarSync,
		c.tokenRefresh,
		c.httpRequests,
		c.upstreamLatency,
	)

	return c
}

// RecordListEntryUpsert はリストエントリのupsertを記録する。
func (c *Collector) RecordListEntryUpsert(action string) {
	c.listEntryUpserts.WithLabelValues(action).Inc()
}

// RecordCalendarEventUpsert はカレンダーイベントのupsertを記録する。
func (c *Collector) RecordCalendarEventUpsert(action string) {
	c.eventUpserts.WithLabelValues(action).Inc()
}

// RecordCalendarSync は外部カレンダー同期の結果を記録する。
func (c *Collector) RecordCalendarSync(outcome string) {
	c.calendarSync.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh はトークン更新の結果（success/failure）を記録する。
func (c *Collector) RecordTokenRefresh(result string) {
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は外部API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(operation string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
