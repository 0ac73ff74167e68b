package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "xrpl_lp_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry            *prometheus.Registry
	cyclesCompleted     prometheus.Counter
	cyclesSkipped       prometheus.Counter
	cyclesFailed        prometheus.Counter
	ordersSubmitted     prometheus.Counter
	ordersSimulated     prometheus.Counter
	ordersRejected      prometheus.Counter
	ordersFailed        prometheus.Counter
	alertsRaised        prometheus.Counter
	emergencyShutdowns  prometheus.Counter
	ledgerConnected     prometheus.Counter
	ledgerConnectFailed prometheus.Counter
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{registry: prometheus.NewRegistry()}
	p.cyclesCompleted = p.counter("cycles_completed_total", "Total number of completed orchestration cycles.")
	p.cyclesSkipped = p.counter("cycles_skipped_total", "Total number of ticks skipped while a cycle was still running.")
	p.cyclesFailed = p.counter("cycles_failed_total", "Total number of orchestration cycles that ended with an error.")
	p.ordersSubmitted = p.counter("orders_submitted_total", "Total number of offers submitted to the ledger.")
	p.ordersSimulated = p.counter("orders_simulated_total", "Total number of offers recorded in simulation mode.")
	p.ordersRejected = p.counter("orders_rejected_total", "Total number of offers rejected by transaction limits.")
	p.ordersFailed = p.counter("orders_failed_total", "Total number of offer submission failures.")
	p.alertsRaised = p.counter("alerts_raised_total", "Total number of risk alerts raised.")
	p.emergencyShutdowns = p.counter("emergency_shutdowns_total", "Total number of emergency shutdowns.")
	p.ledgerConnected = p.counter("ledger_connected_total", "Total number of successful ledger connections.")
	p.ledgerConnectFailed = p.counter("ledger_connect_failed_total", "Total number of failed ledger endpoint attempts.")

	p.Metrics = &Metrics{
		CyclesCompleted:     promCounter{p.cyclesCompleted},
		CyclesSkipped:       promCounter{p.cyclesSkipped},
		CyclesFailed:        promCounter{p.cyclesFailed},
		OrdersSubmitted:     promCounter{p.ordersSubmitted},
		OrdersSimulated:     promCounter{p.ordersSimulated},
		OrdersRejected:      promCounter{p.ordersRejected},
		OrdersFailed:        promCounter{p.ordersFailed},
		AlertsRaised:        promCounter{p.alertsRaised},
		EmergencyShutdowns:  promCounter{p.emergencyShutdowns},
		LedgerConnected:     promCounter{p.ledgerConnected},
		LedgerConnectFailed: promCounter{p.ledgerConnectFailed},
	}
	return p
}

func (p *Prometheus) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
	p.registry.MustRegister(c)
	return c
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
