// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証操作の結果ラベル
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(operation, outcome string)
	RecordSessionIssued()
	RecordSessionRevoked()
	RecordSessionsRewritten(count int)
	RecordSessionsCleaned(count int64)
	RecordPrediction(outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts      *prometheus.CounterVec
	sessionsIssued    prometheus.Counter
	sessionsRevoked   prometheus.Counter
	sessionsRewritten prometheus.Counter
	sessionsCleaned   prometheus.Counter
	predictions       *prometheus.CounterVec
	predictLatency    prometheus.Histogram
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodmate_auth_attempts_total",
			Help: "認証操作の試行数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodmate_sessions_issued_total",
			Help: "発行されたセッションの合計数",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodmate_sessions_revoked_total",
			Help: "ログアウトで破棄されたセッションの合計数",
		}),
		sessionsRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodmate_sessions_rewritten_total",
			Help: "アカウントのリネームで所有者が書き換えられたセッションの合計数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodmate_sessions_cleaned_total",
			Help: "クリーンアップジョブで削除された期限切れセッションの合計数",
		}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodmate_predictions_total",
			Help: "気分予測リクエストの合計数（結果別）",
		}, []string{"outcome"}),
		predictLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moodmate_prediction_latency_seconds",
			Help:    "気分予測APIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodmate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.sessionsIssued,
		c.sessionsRevoked,
		c.sessionsRewritten,
		c.sessionsCleaned,
		c.predictions,
		c.predictLatency,
		c.httpStatus,
	)

	return c
}

// RecordAuthAttempt は認証操作の結果を記録する。
func (c *Collector) RecordAuthAttempt(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued() {
	c.sessionsIssued.Inc()
}

// RecordSessionRevoked はセッション破棄を記録する。
func (c *Collector) RecordSessionRevoked() {
	c.sessionsRevoked.Inc()
}

// RecordSessionsRewritten は所有者が書き換えられたセッション数を記録する。
func (c *Collector) RecordSessionsRewritten(count int) {
	c.sessionsRewritten.Add(float64(count))
}

// RecordSessionsCleaned はクリーンアップで削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// RecordPrediction は気分予測の結果とレイテンシを記録する。
func (c *Collector) RecordPrediction(outcome string, duration time.Duration) {
	c.predictions.WithLabelValues(outcome).Inc()
	c.predictLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)       {}
func (Nop) RecordSessionIssued()                   {}
func (Nop) RecordSessionRevoked()                  {}
func (Nop) RecordSessionsRewritten(int)            {}
func (Nop) RecordSessionsCleaned(int64)            {}
func (Nop) RecordPrediction(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
