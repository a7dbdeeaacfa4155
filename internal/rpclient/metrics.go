package rpclient

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK          = "ok"
	outcomeServerError = "server_error"
	outcomeDecodeError = "decode_error"
	outcomeTimeout     = "timeout"
	outcomeFailed      = "failed"
	outcomeAbandoned   = "abandoned"
)

// Metrics — счётчики клиента в Prometheus. nil *Metrics допустим: все методы
// тогда ничего не делают.
type Metrics struct {
	pending    prometheus.Gauge
	results    *prometheus.CounterVec
	pushes     *prometheus.CounterVec
	drops      *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	state      prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "pending_calls",
			Help: "Requests waiting for a response.",
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "results_total",
			Help: "Completed requests by outcome.",
		}, []string{"outcome"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "pushes_total",
			Help: "Inbound push/notify messages by delivery status.",
		}, []string{"status"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "dropped_frames_total",
			Help: "Inbound frames dropped as protocol violations.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "reconnects_total",
			Help: "Reconnect cycles by result.",
		}, []string{"result"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "connection_state",
			Help: "Current connection state (0 disconnected .. 4 closed).",
		}),
	}
	for _, c := range []prometheus.Collector{m.pending, m.results, m.pushes, m.drops, m.reconnects, m.state} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}

func (m *Metrics) result(outcome string) {
	if m != nil {
		m.results.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) push(status string) {
	if m != nil {
		m.pushes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.drops.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) reconnect(result string) {
	if m != nil {
		m.reconnects.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}
