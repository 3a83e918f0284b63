package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus 的 registry 不允许重复注册同名指标（会 panic），用 once 保证只注册一次。
	once sync.Once

	// HTTPRequestsTotal：累计请求数，用于算 QPS / 错误率。
	//
	// route 必须是路由模板（例如 /api/:shortCode），不能用真实 path，否则每个短码一个 label。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布，Grafana 上据此算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：正在处理中的请求数。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// ShortlinksCreated：创建请求的结果计数。
	//
	// labels：
	// - result：ok / alias_taken / missing_url / invalid / error
	ShortlinksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_created_total",
			Help: "Shorten requests by result.",
		},
		[]string{"result"},
	)

	// ShortlinkRedirects：解析跳转的结果计数，result 为 ok / not_found / error。
	ShortlinkRedirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_redirects_total",
			Help: "Short code resolutions by result.",
		},
		[]string{"result"},
	)

	// CacheOperations：分层缓存的命中情况。
	//
	// labels：
	// - tier：bloom / l1 / l2
	// - result：hit / hit_negative / miss / reject / error
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Shortlink cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)
)

// Init 注册全部指标，重复调用无副作用。
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			ShortlinksCreated,
			ShortlinkRedirects,
			CacheOperations,
		)
	})
}
