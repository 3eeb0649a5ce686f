package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// dispatch outcomes recorded by the hub
const (
	resultOK          = "ok"
	resultError       = "error"
	resultRateLimited = "rate_limited"
)

type metrics struct {
	registry   *prometheus.Registry
	dispatches *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prisignal",
			Name:      "dispatch_total",
			Help:      "Dispatches requested through the hub, by signal and result.",
		}, []string{"signal", "result"}),
	}
	m.registry.MustRegister(m.dispatches)
	return m
}

// watch exports the listener count and dispatch depth of a hosted signal.
func (m *metrics) watch(name string, e *entry) {
	labels := prometheus.Labels{"signal": name}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "prisignal",
			Name:        "listeners",
			Help:        "Registered listeners.",
			ConstLabels: labels,
		}, func() float64 { return float64(e.sig.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "prisignal",
			Name:        "dispatch_depth",
			Help:        "Dispatch calls in progress.",
			ConstLabels: labels,
		}, func() float64 { return float64(e.sig.Depth()) }),
	)
	for _, result := range []string{resultOK, resultError, resultRateLimited} {
		m.dispatches.WithLabelValues(name, result)
	}
}

func (m *metrics) observe(name, result string) {
	m.dispatches.WithLabelValues(name, result).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
