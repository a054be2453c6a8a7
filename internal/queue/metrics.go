package queue

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// queueLabel normalizes a task kind into a bounded metric label. Kinds may
// carry a "<namespace>:" prefix on the wire; only the bare kind is reported
// so label cardinality stays fixed.
func queueLabel(kind string) string {
	if i := strings.LastIndexByte(kind, ':'); i >= 0 {
		return kind[i+1:]
	}
	return kind
}

var (
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Approximate number of ready tasks per kind",
		},
		[]string{"kind"},
	)
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"kind", "status"},
	)
	QueueDLQSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_dlq_size",
			Help: "Number of tasks stored in DLQ",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth, QueueProcessedTotal, QueueDLQSize)
}
