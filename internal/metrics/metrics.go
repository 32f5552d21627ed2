// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nl2sql/internal/resolve"
)

const namespace = "nl2sql"

var (
	// Labels: outcome, kind ("none" for accepted attempts)
	resolveAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolve",
		Name:      "attempts_total",
		Help:      "Resolve attempts by outcome and error kind",
	}, []string{"outcome", "kind"})

	// Labels: state (accepted, exhausted)
	resolveResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolve",
		Name:      "results_total",
		Help:      "Resolve calls by final state",
	}, []string{"state"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "resolve",
		Name:      "duration_seconds",
		Help:      "Wall time of a resolve call",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"state"})

	resolveAttemptsUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "resolve",
		Name:      "attempts_used",
		Help:      "Attempts consumed per resolve call",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
	})

	// Labels: mode (readonly, dba), success
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "query_duration_seconds",
		Help:      "Query execution time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode", "success"})

	queryRows = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "rows_returned",
		Help:      "Rows returned per query",
		Buckets:   []float64{0, 1, 10, 100, 1000, 10000},
	}, []string{"mode"})

	// Labels: method, route, status
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Labels: intent
	intents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gatekeeper",
		Name:      "intents_total",
		Help:      "Classified user intents",
	}, []string{"intent"})
)

// ResolveObserver records the resolve timeline in Prometheus.
type ResolveObserver struct {
	resolve.BaseObserver
}

func (ResolveObserver) OnAttempt(_ context.Context, a resolve.Attempt) {
	kind := "none"
	if a.Err != nil {
		kind = a.Err.Kind.String()
	}
	resolveAttempts.WithLabelValues(a.Outcome.String(), kind).Inc()
}

func (ResolveObserver) OnAccepted(_ context.Context, r resolve.Result) {
	observeResult(r)
}

func (ResolveObserver) OnExhausted(_ context.Context, r resolve.Result) {
	observeResult(r)
}

func observeResult(r resolve.Result) {
	state := r.State.String()
	resolveResults.WithLabelValues(state).Inc()
	resolveDuration.WithLabelValues(state).Observe(r.Duration.Seconds())
	resolveAttemptsUsed.Observe(float64(r.AttemptsMade))
}

func ObserveQuery(mode string, success bool, elapsed time.Duration, rows int) {
	queryDuration.WithLabelValues(mode, strconv.FormatBool(success)).Observe(elapsed.Seconds())
	if success {
		queryRows.WithLabelValues(mode).Observe(float64(rows))
	}
}

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func ObserveIntent(intent string) {
	intents.WithLabelValues(intent).Inc()
}
