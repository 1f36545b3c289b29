package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("/x", 200, 1)
		m.ObserveCheckout("completed")
		m.ObserveCheckoutLine("ordered")
		m.ObserveTransition("pending", "accepted")
	})
}

func TestCountersAndHandler(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	m.ObserveTransition("pending", "accepted")
	m.ObserveTransition("pending", "accepted")
	m.ObserveCheckoutLine("insufficient_stock")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckoutLines.WithLabelValues("insufficient_stock")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bookmarket_test_order_transitions_total")
}

func TestServiceNameIsSanitized(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m = New("order-api", prometheus.NewRegistry()) })
	m.ObserveCheckout("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "bookmarket_order_api_checkouts_total")
}
