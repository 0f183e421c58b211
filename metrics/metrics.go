// Package metrics exposes the operation counters and usage gauges the
// sharding core emits, grounded on the teacher's own metrics package
// minus the gRPC-specific instrumentation (this module exposes no
// network server; that is the Database facade's concern, out of scope
// per spec.md §1).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Registry = prometheus.NewRegistry()

	DriverOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sharding",
		Subsystem: "driver",
		Name:      "operations_total",
		Help:      "storage driver operations by table and outcome",
	}, []string{"table", "op", "result"})

	ChangesEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sharding",
		Subsystem: "cdc",
		Name:      "changes_emitted_total",
		Help:      "change rows inserted per listener",
	}, []string{"table", "listener", "action"})

	StorageUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sharding",
		Subsystem: "storage",
		Name:      "usage",
		Help:      "last reported getUsage() value per storage id",
	}, []string{"storage"})

	BucketsAssigned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sharding",
		Subsystem: "assigner",
		Name:      "buckets_assigned_total",
		Help:      "buckets bound to a storage by assignStorage",
	}, []string{"name"})
)

func init() {
	Registry.MustRegister(DriverOps, ChangesEmitted, StorageUsage, BucketsAssigned)
}
