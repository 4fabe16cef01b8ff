// Package metrics wraps the per-collection counters and histograms a host
// process can mount on its own Prometheus registry. It never starts an
// HTTP listener; wiring a /metrics endpoint is the host's job.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Collector holds every metric a collection or database reports.
type Collector struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	pipelineDepth     *prometheus.GaugeVec
	flushDuration     *prometheus.HistogramVec
	reclaimedSlots    *prometheus.CounterVec
}

// New builds a Collector registered on a dedicated registry, so multiple
// Collectors (one per process, or one per test) never collide on the
// global DefaultRegisterer.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slotkv_operations_total",
				Help: "Total number of collection operations by kind and outcome.",
			},
			[]string{"collection", "operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slotkv_operation_duration_seconds",
				Help:    "Collection operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		pipelineDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slotkv_pipeline_queue_depth",
				Help: "Number of submissions currently queued in a collection's write pipeline.",
			},
			[]string{"collection"},
		),
		flushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slotkv_flush_duration_seconds",
				Help:    "Flush duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection"},
		),
		reclaimedSlots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slotkv_reclaimed_slots_total",
				Help: "Total number of free slots reused by Add/Update instead of appending.",
			},
			[]string{"collection"},
		),
	}

	reg.MustRegister(c.operationsTotal, c.operationDuration, c.pipelineDepth, c.flushDuration, c.reclaimedSlots)
	return c
}

// Registry returns the registry a host process can mount on its own
// /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveOperation records one operation's outcome and duration.
func (c *Collector) ObserveOperation(collection, operation, status string, duration time.Duration) {
	c.operationsTotal.WithLabelValues(collection, operation, status).Inc()
	c.operationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

// SetPipelineDepth reports a collection's current pipeline queue depth.
func (c *Collector) SetPipelineDepth(collection string, depth int) {
	c.pipelineDepth.WithLabelValues(collection).Set(float64(depth))
}

// ObserveFlush records one flush's duration.
func (c *Collector) ObserveFlush(collection string, duration time.Duration) {
	c.flushDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

// IncReclaimedSlot records one Add/Update that reused a free slot instead
// of appending to the file's tail.
func (c *Collector) IncReclaimedSlot(collection string) {
	c.reclaimedSlots.WithLabelValues(collection).Inc()
}
