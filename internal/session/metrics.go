package session

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the session's Prometheus instruments on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	transitions  *prometheus.CounterVec
	transactions *prometheus.CounterVec
	readFailures *prometheus.CounterVec
	loading      prometheus.Gauge
}

// NewMetrics creates and registers the session instruments.
func NewMetrics() *Metrics {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "potions_session_transitions_total",
		Help: "Session status transitions by target status",
	}, []string{"status"})

	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "potions_transactions_total",
		Help: "Submitted transactions by operation and result",
	}, []string{"op", "result"})

	readFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "potions_read_failures_total",
		Help: "Read-path fetches that failed after retries",
	}, []string{"source"})

	loading := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "potions_session_loading",
		Help: "1 while an init or login is in flight",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(transitions, transactions, readFailures, loading)

	return &Metrics{
		registry:     r,
		transitions:  transitions,
		transactions: transactions,
		readFailures: readFailures,
		loading:      loading,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) incTransition(status string) {
	m.transitions.WithLabelValues(strings.ToLower(status)).Inc()
}

func (m *Metrics) incTransaction(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transactions.WithLabelValues(op, result).Inc()
}

func (m *Metrics) incReadFailure(source string) {
	m.readFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) setLoading(loading bool) {
	if loading {
		m.loading.Set(1)
		return
	}
	m.loading.Set(0)
}
