// Package metrics exposes Prometheus counters for the signal pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_ingested_total", Help: "Signals accepted into the store"},
		[]string{"source"},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "executions_total", Help: "Copy executions attempted"},
		[]string{"broker", "status"},
	)
	PollCycles = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "master_poll_cycles_total", Help: "Master position poll cycles completed"},
	)
	PollErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "master_poll_errors_total", Help: "Master position poll cycles that failed"},
	)
)

func init() {
	prometheus.MustRegister(SignalsIngested, ExecutionsTotal, PollCycles, PollErrors)
}

// Serve starts the /metrics listener in the background and returns the
// server so the caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
