package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.CyclesCompleted.Inc()
	prom.Metrics.CyclesSkipped.Inc()
	prom.Metrics.CyclesFailed.Inc()
	prom.Metrics.OrdersSubmitted.Inc()
	prom.Metrics.OrdersSubmitted.Inc()
	prom.Metrics.OrdersRejected.Inc()
	prom.Metrics.EmergencyShutdowns.Inc()
	prom.Metrics.LedgerConnectFailed.Inc()

	assertCounter(t, prom.cyclesCompleted, 1)
	assertCounter(t, prom.cyclesSkipped, 1)
	assertCounter(t, prom.cyclesFailed, 1)
	assertCounter(t, prom.ordersSubmitted, 2)
	assertCounter(t, prom.ordersRejected, 1)
	assertCounter(t, prom.ordersSimulated, 0)
	assertCounter(t, prom.emergencyShutdowns, 1)
	assertCounter(t, prom.ledgerConnectFailed, 1)
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.AlertsRaised.Inc()
	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "xrpl_lp_bot_alerts_raised_total 1") {
		t.Fatalf("expected alerts counter in output, got:\n%s", body)
	}
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
