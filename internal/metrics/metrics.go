package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesCompleted     Counter
	CyclesSkipped       Counter
	CyclesFailed        Counter
	OrdersSubmitted     Counter
	OrdersSimulated     Counter
	OrdersRejected      Counter
	OrdersFailed        Counter
	AlertsRaised        Counter
	EmergencyShutdowns  Counter
	LedgerConnected     Counter
	LedgerConnectFailed Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesCompleted:     n,
		CyclesSkipped:       n,
		CyclesFailed:        n,
		OrdersSubmitted:     n,
		OrdersSimulated:     n,
		OrdersRejected:      n,
		OrdersFailed:        n,
		AlertsRaised:        n,
		EmergencyShutdowns:  n,
		LedgerConnected:     n,
		LedgerConnectFailed: n,
	}
}
