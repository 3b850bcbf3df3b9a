package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdump_runs_total",
			Help: "Total number of search orchestrations by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serpdump_run_duration_seconds",
			Help:    "Wall-clock duration of search orchestrations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdump_api_requests_total",
			Help: "Total number of dataset API calls by operation and HTTP status",
		},
		[]string{"op", "status"},
	)

	PollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serpdump_polls_total",
			Help: "Total number of progress checks issued",
		},
	)

	SnapshotBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serpdump_snapshot_bytes_total",
			Help: "Total bytes of downloaded snapshots",
		},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdump_proxy_failures_total",
			Help: "Total number of proxy failures during API calls",
		},
		[]string{"proxy_url"},
	)

	BlockedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdump_blocked_responses_total",
			Help: "Total number of API calls answered by a bot-protection page",
		},
		[]string{"source"},
	)
)

// RecordAPIRequest counts one dataset API call. A zero status means the
// request never got a response.
func RecordAPIRequest(op string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	APIRequestsTotal.WithLabelValues(op, label).Inc()
}

// RecordRun updates the run metrics once an orchestration has finished.
func RecordRun(outcome string, d time.Duration, snapshotBytes int) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if snapshotBytes > 0 {
		SnapshotBytesTotal.Add(float64(snapshotBytes))
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics. Serve
// errors other than a clean shutdown are passed to onError if non-nil.
func Start(port int, onError func(error)) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
