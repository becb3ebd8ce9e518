// File: internal/metrics/metrics.go
// ============================================
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "evaluations_total", Help: "Evaluations by outcome"},
		[]string{"symbol", "outcome"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Strategy decisions by action"},
		[]string{"symbol", "strategy", "action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side", "reduce_only"},
	)
	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_request_seconds",
			Help:    "Exchange REST latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	StrategyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strategy_duration_seconds",
			Help:    "Time spent computing a decision",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"strategy"},
	)
)

// Evaluation outcomes.
const (
	OutcomeHold      = "hold"
	OutcomeNoData    = "no_data"
	OutcomeRejected  = "rejected"
	OutcomeDefect    = "defect"
	OutcomeError     = "error"
	OutcomeSubmitted = "submitted"
)

func init() {
	prometheus.MustRegister(EvaluationsTotal, SignalsTotal, OrdersTotal, APILatency, StrategyDuration)
}

// ObserveAPI records the latency of one exchange call started at start.
func ObserveAPI(endpoint string, start time.Time) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
