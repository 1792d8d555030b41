package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteFetchSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "box3", Name: "route_fetch_seconds", Help: "Directions lookup latency", Buckets: prometheus.DefBuckets},
		[]string{"provider", "result"},
	)
	OrdersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "box3", Name: "orders_by_status", Help: "Orders per status in the last dashboard built for a role"},
		[]string{"role", "status"},
	)
	BoxOpens        = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "box3", Name: "box_opens_total", Help: "Box open attempts"}, []string{"result"})
	LedgerCalls     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "box3", Name: "ledger_calls_total", Help: "Ledger calls by method and result"}, []string{"method", "result"})
	RouteViewsOpen  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "box3", Name: "route_views_open", Help: "Open websocket route views"})
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "box3", Name: "events_published_total", Help: "Order events published"}, []string{"type", "result"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "box3", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "box3",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Result turns an error into the result label used across counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
