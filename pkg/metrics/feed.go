package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zfogg/feedline/pkg/logger"
)

// FeedMetrics tracks page fetch activity per list kind
type FeedMetrics struct {
	FetchesTotal       *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
	FetchesInFlight    *prometheus.GaugeVec
	TriggersSuppressed *prometheus.CounterVec
	ResultsDropped     *prometheus.CounterVec
	DuplicateItems     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewFeedMetrics creates and registers the feed metrics on a private registry
func NewFeedMetrics() *FeedMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &FeedMetrics{
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedline_page_fetches_total",
				Help: "Total number of page fetches",
			},
			[]string{"kind", "result"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedline_page_fetch_duration_seconds",
				Help:    "Page fetch duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		FetchesInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedline_page_fetches_in_flight",
				Help: "Page fetches currently waiting on the network",
			},
			[]string{"kind"},
		),
		TriggersSuppressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedline_triggers_suppressed_total",
				Help: "Scroll triggers ignored because a fetch was already in flight",
			},
			[]string{"kind"},
		),
		ResultsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedline_results_dropped_total",
				Help: "Fetch results discarded after a reset, identity change or close",
			},
			[]string{"kind"},
		),
		DuplicateItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedline_duplicate_items_total",
				Help: "Items hidden because an earlier page already held them",
			},
			[]string{"kind"},
		),
		registry: reg,
	}
}

func (m *FeedMetrics) FetchStarted(kind string) {
	m.FetchesInFlight.WithLabelValues(kind).Inc()
}

func (m *FeedMetrics) FetchFinished(kind string, elapsed time.Duration, err error) {
	m.FetchesInFlight.WithLabelValues(kind).Dec()
	m.FetchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	result := "success"
	if err != nil {
		result = "error"
		if errors.Is(err, context.Canceled) {
			result = "canceled"
		}
	}
	m.FetchesTotal.WithLabelValues(kind, result).Inc()
}

func (m *FeedMetrics) TriggerSuppressed(kind string) {
	m.TriggersSuppressed.WithLabelValues(kind).Inc()
}

func (m *FeedMetrics) ResultDropped(kind string) {
	m.ResultsDropped.WithLabelValues(kind).Inc()
}

func (m *FeedMetrics) DuplicatesDropped(kind string, n int) {
	m.DuplicateItems.WithLabelValues(kind).Add(float64(n))
}

// Registry returns the registry the metrics live on
func (m *FeedMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the metrics in the Prometheus text format
func (m *FeedMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *FeedMetrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
