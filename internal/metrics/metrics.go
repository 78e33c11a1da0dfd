// Package metrics exposes the ambient Prometheus counters carried per
// SPEC_FULL §12: no Non-goal in spec.md names observability out of
// scope, so the engine instruments its own dispatch loop directly rather
// than leaving this to an external collaborator.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	NodesOKTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runbookengine_nodes_ok_total",
		Help: "Node attempts that finished OK, by workflow.",
	}, []string{"workflow_name"})

	NodesNOKTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runbookengine_nodes_nok_total",
		Help: "Node attempts that finished NOK, by workflow.",
	}, []string{"workflow_name"})

	NodesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runbookengine_nodes_skipped_total",
		Help: "Nodes that finished SKIPPED, by workflow.",
	}, []string{"workflow_name"})

	RunDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "runbookengine_run_duration_seconds",
		Help:    "Wall-clock duration of a full run, by workflow and final status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"workflow_name", "status"})
)

// Registry bundles the counters above into a single *prometheus.Registry
// a caller (e.g. cmd/) can expose on a /metrics endpoint, or pass nil to
// Register if they'd rather wire prometheus.DefaultRegisterer themselves.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NodesOKTotal, NodesNOKTotal, NodesSkippedTotal, RunDurationSeconds)
	return reg
}
