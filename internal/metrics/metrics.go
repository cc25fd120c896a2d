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
// 認証サービス、プロフィールゲートウェイ、ブラウザコンテキスト管理、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(operation, result string)
	RecordProfileRequest(operation, mode, outcome string, d time.Duration)
	RecordSyncTransition(from, to string)
	SetBrowserContexts(n int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts    *prometheus.CounterVec
	profileRequests *prometheus.CounterVec
	profileLatency  *prometheus.HistogramVec
	syncTransitions *prometheus.CounterVec
	browserContexts prometheus.Gauge
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ebuddy_auth_attempts_total",
			Help: "ログイン、登録、ログアウトの試行数",
		}, []string{"operation", "result"}),
		profileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ebuddy_profile_requests_total",
			Help: "プロフィールゲートウェイの呼び出し数",
		}, []string{"operation", "mode", "outcome"}),
		profileLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ebuddy_profile_latency_seconds",
			Help:    "プロフィールゲートウェイのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "mode"}),
		syncTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ebuddy_session_sync_transitions_total",
			Help: "セッション同期の状態遷移数",
		}, []string{"from", "to"}),
		browserContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ebuddy_browser_contexts",
			Help: "保持しているブラウザコンテキスト数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ebuddy_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.profileRequests,
		c.profileLatency,
		c.syncTransitions,
		c.browserContexts,
		c.httpStatus,
	)

	return c
}

// RecordAuthAttempt は認証操作の試行を記録する。
func (c *Collector) RecordAuthAttempt(operation, result string) {
	c.authAttempts.WithLabelValues(operation, result).Inc()
}

// RecordProfileRequest はプロフィールゲートウェイの呼び出しを記録する。
func (c *Collector) RecordProfileRequest(operation, mode, outcome string, d time.Duration) {
	c.profileRequests.WithLabelValues(operation, mode, outcome).Inc()
	c.profileLatency.WithLabelValues(operation, mode).Observe(d.Seconds())
}

// RecordSyncTransition はセッション同期の状態遷移を記録する。
func (c *Collector) RecordSyncTransition(from, to string) {
	c.syncTransitions.WithLabelValues(from, to).Inc()
}

// SetBrowserContexts はブラウザコンテキスト数を設定する。
func (c *Collector) SetBrowserContexts(n int) {
	c.browserContexts.Set(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
