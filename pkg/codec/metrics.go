package codec

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels
const (
	OpEncode = "encode"
	OpDecode = "decode"
)

// Result labels
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultError     = "error"
)

// Metrics holds the Prometheus collectors for codec calls.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	bits          *prometheus.CounterVec
	correctedBits prometheus.Counter
}

// NewMetrics registers the codec collectors with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbocodec_operations_total",
				Help: "Total number of encode and decode calls by result.",
			},
			[]string{"op", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turbocodec_operation_duration_seconds",
				Help:    "Duration of encode and decode calls in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"op"},
		),
		bits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbocodec_message_bits_total",
				Help: "Message bits processed.",
			},
			[]string{"op"},
		),
		correctedBits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "turbocodec_corrected_bits_total",
				Help: "Systematic bits whose decoded value differs from the received value.",
			},
		),
	}
}

func (m *Metrics) observe(op, result string, bits int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result).Inc()
	if result != ResultOK {
		return
	}
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.bits.WithLabelValues(op).Add(float64(bits))
}

func (m *Metrics) corrected(n int) {
	if m == nil || n == 0 {
		return
	}
	m.correctedBits.Add(float64(n))
}
