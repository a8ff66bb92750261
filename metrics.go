package rics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is implemented by anything that wants to observe server activity.
// The connection handler and forwarder call Increment*; an operator-facing
// exporter reads back via Get*.
type Metrics interface {
	IncrementConnectionsAccepted()
	IncrementRequestsHandled()
	IncrementPacketsForwarded()
	IncrementPacketsDropped()
	IncrementBytesSent(n int64)
	IncrementBytesReceived(n int64)

	GetConnectionsAccepted() int64
	GetRequestsHandled() int64
	GetPacketsForwarded() int64
	GetPacketsDropped() int64
	GetBytesSent() int64
	GetBytesReceived() int64
}

// DefaultMetrics implements Metrics with plain atomic counters. It is the
// zero-dependency metrics sink a Server falls back to when no other
// implementation is supplied via WithMetrics.
type DefaultMetrics struct {
	connectionsAccepted int64
	requestsHandled     int64
	packetsForwarded    int64
	packetsDropped      int64
	bytesSent           int64
	bytesReceived       int64
}

// NewDefaultMetrics returns a DefaultMetrics instance with all counters at 0.
func NewDefaultMetrics() *DefaultMetrics { return &DefaultMetrics{} }

func (m *DefaultMetrics) IncrementConnectionsAccepted() { atomic.AddInt64(&m.connectionsAccepted, 1) }
func (m *DefaultMetrics) IncrementRequestsHandled()     { atomic.AddInt64(&m.requestsHandled, 1) }
func (m *DefaultMetrics) IncrementPacketsForwarded()    { atomic.AddInt64(&m.packetsForwarded, 1) }
func (m *DefaultMetrics) IncrementPacketsDropped()      { atomic.AddInt64(&m.packetsDropped, 1) }
func (m *DefaultMetrics) IncrementBytesSent(n int64)    { atomic.AddInt64(&m.bytesSent, n) }
func (m *DefaultMetrics) IncrementBytesReceived(n int64) {
	atomic.AddInt64(&m.bytesReceived, n)
}

func (m *DefaultMetrics) GetConnectionsAccepted() int64 {
	return atomic.LoadInt64(&m.connectionsAccepted)
}
func (m *DefaultMetrics) GetRequestsHandled() int64 { return atomic.LoadInt64(&m.requestsHandled) }
func (m *DefaultMetrics) GetPacketsForwarded() int64 {
	return atomic.LoadInt64(&m.packetsForwarded)
}
func (m *DefaultMetrics) GetPacketsDropped() int64 { return atomic.LoadInt64(&m.packetsDropped) }
func (m *DefaultMetrics) GetBytesSent() int64      { return atomic.LoadInt64(&m.bytesSent) }
func (m *DefaultMetrics) GetBytesReceived() int64  { return atomic.LoadInt64(&m.bytesReceived) }

// PrometheusMetrics adapts Metrics onto real prometheus.Counter vectors, for
// servers that expose a /metrics endpoint via promhttp. It still satisfies
// Get*, reading back through prometheus' own counter value so a Server can
// treat it exactly like DefaultMetrics.
type PrometheusMetrics struct {
	connectionsAccepted prometheus.Counter
	requestsHandled     prometheus.Counter
	packetsForwarded    prometheus.Counter
	packetsDropped      prometheus.Counter
	bytesSent           prometheus.Counter
	bytesReceived       prometheus.Counter
}

// NewPrometheusMetrics registers a fresh set of counters against reg and
// returns a Metrics implementation backed by them. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rics", Name: "connections_accepted_total",
			Help: "Total number of accepted client connections.",
		}),
		requestsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rics", Name: "requests_handled_total",
			Help: "Total number of decoded requests dispatched.",
		}),
		packetsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rics", Name: "packets_forwarded_total",
			Help: "Total number of data packet deliveries written to a destination.",
		}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rics", Name: "packets_dropped_total",
			Help: "Total number of CAN packets discarded by the drop injector.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rics", Name: "bytes_sent_total",
			Help: "Total number of payload bytes written to clients.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rics", Name: "bytes_received_total",
			Help: "Total number of payload bytes read from clients.",
		}),
	}
	reg.MustRegister(
		m.connectionsAccepted,
		m.requestsHandled,
		m.packetsForwarded,
		m.packetsDropped,
		m.bytesSent,
		m.bytesReceived,
	)
	return m
}

func (m *PrometheusMetrics) IncrementConnectionsAccepted() { m.connectionsAccepted.Inc() }
func (m *PrometheusMetrics) IncrementRequestsHandled()     { m.requestsHandled.Inc() }
func (m *PrometheusMetrics) IncrementPacketsForwarded()    { m.packetsForwarded.Inc() }
func (m *PrometheusMetrics) IncrementPacketsDropped()      { m.packetsDropped.Inc() }
func (m *PrometheusMetrics) IncrementBytesSent(n int64)    { m.bytesSent.Add(float64(n)) }
func (m *PrometheusMetrics) IncrementBytesReceived(n int64) {
	m.bytesReceived.Add(float64(n))
}

func (m *PrometheusMetrics) GetConnectionsAccepted() int64 {
	return int64(counterValue(m.connectionsAccepted))
}
func (m *PrometheusMetrics) GetRequestsHandled() int64 {
	return int64(counterValue(m.requestsHandled))
}
func (m *PrometheusMetrics) GetPacketsForwarded() int64 {
	return int64(counterValue(m.packetsForwarded))
}
func (m *PrometheusMetrics) GetPacketsDropped() int64 {
	return int64(counterValue(m.packetsDropped))
}
func (m *PrometheusMetrics) GetBytesSent() int64     { return int64(counterValue(m.bytesSent)) }
func (m *PrometheusMetrics) GetBytesReceived() int64 { return int64(counterValue(m.bytesReceived)) }

func counterValue(c prometheus.Counter) float64 {
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
