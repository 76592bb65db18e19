// Package metrics 在 /metrics 暴露的 Prometheus 指标
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 业务与HTTP指标；nil 的 *Metrics 上所有方法都是空操作
type Metrics struct {
	electionsCreated     prometheus.Counter
	votesCast            prometheus.Counter
	duplicateVotes       prometheus.Counter
	tallyUpdateFailures  prometheus.Counter
	reconcileCorrections prometheus.Counter
	rateLimited          prometheus.Counter
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// New 向 registry 注册全部指标
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		electionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainvote_elections_created_total",
			Help: "Total number of elections created",
		}),
		votesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainvote_votes_cast_total",
			Help: "Total number of votes recorded",
		}),
		duplicateVotes: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainvote_duplicate_votes_total",
			Help: "Total number of rejected second votes",
		}),
		tallyUpdateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainvote_tally_update_failures_total",
			Help: "Total number of vote count increments that failed after the vote was recorded",
		}),
		reconcileCorrections: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainvote_reconcile_corrections_total",
			Help: "Total number of candidate counters repaired by the reconciler",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "chainvote_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chainvote_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainvote_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) IncElectionCreated() {
	if m != nil {
		m.electionsCreated.Inc()
	}
}

func (m *Metrics) IncVoteCast() {
	if m != nil {
		m.votesCast.Inc()
	}
}

func (m *Metrics) IncDuplicateVote() {
	if m != nil {
		m.duplicateVotes.Inc()
	}
}

func (m *Metrics) IncTallyUpdateFailure() {
	if m != nil {
		m.tallyUpdateFailures.Inc()
	}
}

func (m *Metrics) AddReconcileCorrections(n int) {
	if m != nil && n > 0 {
		m.reconcileCorrections.Add(float64(n))
	}
}

func (m *Metrics) IncRateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// Middleware 记录请求数与耗时，route 使用注册的路由模板避免标签基数爆炸
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
