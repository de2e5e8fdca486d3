package metrics

import (
	"fmt"
	"io"

	"github.com/cuemby/crmcore/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Run outcomes used as the "result" label
const (
	ResultOK    = "ok"
	ResultWarn  = "warn"
	ResultError = "error"
)

var (
	// Unpack metrics
	UnpackRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmcore_unpack_runs_total",
			Help: "Total number of reconciliation runs by result",
		},
		[]string{"result"},
	)

	UnpackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crmcore_unpack_duration_seconds",
			Help:    "Time taken to unpack one configuration and status input",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cluster state metrics, reset on every run
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmcore_nodes",
			Help: "Nodes in the last unpacked snapshot by kind and state",
		},
		[]string{"kind", "state"},
	)

	ResourcesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmcore_resources",
			Help: "Primitive resources in the last unpacked snapshot by role",
		},
		[]string{"role"},
	)

	// Decision metrics
	FenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmcore_fence_requests_total",
			Help: "Total number of fence requests by node kind",
		},
		[]string{"kind"},
	)

	FailedOperationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crmcore_failed_operations_total",
			Help: "Total number of failed operations surfaced",
		},
	)

	OrphanResourcesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crmcore_orphan_resources_total",
			Help: "Total number of orphan resources found in operation history",
		},
	)

	ConfigErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crmcore_config_errors_total",
			Help: "Total number of configuration errors",
		},
	)

	// Archive metrics
	InputsArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmcore_inputs_archived_total",
			Help: "Total number of inputs written to the archive by class",
		},
		[]string{"class"},
	)

	InputsPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmcore_inputs_pruned_total",
			Help: "Total number of archived inputs removed by retention",
		},
		[]string{"class"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UnpackRunsTotal)
	prometheus.MustRegister(UnpackDuration)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(FenceRequestsTotal)
	prometheus.MustRegister(FailedOperationsTotal)
	prometheus.MustRegister(OrphanResourcesTotal)
	prometheus.MustRegister(ConfigErrorsTotal)
	prometheus.MustRegister(InputsArchivedTotal)
	prometheus.MustRegister(InputsPrunedTotal)
}

// NodeState reduces a node's flags to a single label, most severe first
func NodeState(n *types.Node) string {
	switch {
	case n.Unclean:
		return "unclean"
	case n.Shutdown:
		return "shutdown"
	case n.Maintenance:
		return "maintenance"
	case n.Online && n.Standby:
		return "standby"
	case n.Online && n.Pending:
		return "pending"
	case n.Online:
		return "online"
	default:
		return "offline"
	}
}

// RecordWorkingSet publishes the state of a successfully unpacked snapshot
func RecordWorkingSet(ws *types.WorkingSet) {
	result := ResultOK
	if len(ws.ConfigErrors) > 0 || len(ws.Warnings) > 0 {
		result = ResultWarn
	}
	UnpackRunsTotal.WithLabelValues(result).Inc()

	NodesTotal.Reset()
	for _, n := range ws.Nodes {
		NodesTotal.WithLabelValues(string(n.Kind), NodeState(n)).Inc()
	}

	ResourcesTotal.Reset()
	orphans := 0
	for _, r := range ws.AllResources() {
		if r.Variant != types.VariantPrimitive {
			continue
		}
		ResourcesTotal.WithLabelValues(r.Role.String()).Inc()
		if r.Is(types.FlagOrphan) {
			orphans++
		}
	}

	for _, req := range ws.FenceRequests {
		kind := "unknown"
		if n := ws.FindNodeByID(req.NodeID); n != nil {
			kind = string(n.Kind)
		}
		FenceRequestsTotal.WithLabelValues(kind).Inc()
	}

	FailedOperationsTotal.Add(float64(len(ws.Failed)))
	OrphanResourcesTotal.Add(float64(orphans))
	ConfigErrorsTotal.Add(float64(len(ws.ConfigErrors)))
}

// WriteText writes every registered metric in the Prometheus text format
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
