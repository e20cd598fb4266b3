package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.URLsCreated.Inc()
	m.URLsCreated.Inc()
	m.Redirects.WithLabelValues(ResultOK).Inc()
	m.Redirects.WithLabelValues(ResultNotFound).Inc()
	m.QueueDepth.Set(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.URLsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redirects.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redirects.WithLabelValues(ResultNotFound)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth))
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.EventsStored.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "shortr_hit_events_stored_total 1")
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not clash on registration.
	a := New()
	b := New()
	a.URLsCreated.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.URLsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.URLsCreated))
}
