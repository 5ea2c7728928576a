package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedMetricsCounts(t *testing.T) {
	m := NewFeedMetrics()

	m.FetchStarted("posts")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesInFlight.WithLabelValues("posts")))

	m.FetchFinished("posts", 120*time.Millisecond, nil)
	m.FetchStarted("posts")
	m.FetchFinished("posts", time.Second, errors.New("connection refused"))
	m.FetchStarted("products")
	m.FetchFinished("products", time.Millisecond, context.Canceled)
	m.TriggerSuppressed("posts")
	m.TriggerSuppressed("posts")
	m.ResultDropped("products")
	m.DuplicatesDropped("posts", 3)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.FetchesInFlight.WithLabelValues("posts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("posts", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("posts", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("products", "canceled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TriggersSuppressed.WithLabelValues("posts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultsDropped.WithLabelValues("products")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DuplicateItems.WithLabelValues("posts")))
}

func TestFeedMetricsHandler(t *testing.T) {
	m := NewFeedMetrics()
	m.TriggerSuppressed("notifications")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `feedline_triggers_suppressed_total{kind="notifications"} 1`))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewFeedMetrics()
	b := NewFeedMetrics()

	a.ResultDropped("posts")

	assert.NotSame(t, a.Registry(), b.Registry())
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ResultsDropped.WithLabelValues("posts")))
}
