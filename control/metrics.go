// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus counters for the reactor and gauges over live server state.

package control

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/momentics/hioload-httpd/api"
)

const namespace = "hioload_httpd"

// Metrics holds the server's collectors in a private registry. It satisfies
// the reactor's Observer.
type Metrics struct {
	registry *prometheus.Registry

	accepted     prometheus.Counter
	rejected     prometheus.Counter
	backpressure prometheus.Counter
	responses    *prometheus.CounterVec
	bytes        prometheus.Counter
	closed       *prometheus.CounterVec
}

// NewMetrics creates the registry with Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_accepted_total",
			Help: "Client connections accepted.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_rejected_total",
			Help: "Client connections refused at the connection limit.",
		}),
		backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_full_total",
			Help: "Requests parked because the worker queue was full.",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "responses_total",
			Help: "Responses fully written, by status code.",
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "response_bytes_total",
			Help: "Response bytes written, headers included.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_closed_total",
			Help: "Connections closed, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.accepted, m.rejected, m.backpressure, m.responses, m.bytes, m.closed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for handlers and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Gauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn))
}

func (m *Metrics) Accepted()     { m.accepted.Inc() }
func (m *Metrics) Rejected()     { m.rejected.Inc() }
func (m *Metrics) Backpressure() { m.backpressure.Inc() }

func (m *Metrics) Responded(status, bytes int) {
	m.responses.WithLabelValues(strconv.Itoa(status)).Inc()
	m.bytes.Add(float64(bytes))
}

func (m *Metrics) Closed(kind api.Kind) {
	reason := kind.String()
	if kind == api.KindNone {
		reason = "done"
	}
	m.closed.WithLabelValues(reason).Inc()
}
