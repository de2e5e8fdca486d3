package types

import "time"

// NoQuorumPolicy is what the cluster does with resources when it loses quorum
type NoQuorumPolicy string

const (
	NoQuorumStop    NoQuorumPolicy = "stop"
	NoQuorumFreeze  NoQuorumPolicy = "freeze"
	NoQuorumIgnore  NoQuorumPolicy = "ignore"
	NoQuorumSuicide NoQuorumPolicy = "suicide"
)

// PlacementStrategy selects how utilization affects placement
type PlacementStrategy string

const (
	PlacementDefault     PlacementStrategy = "default"
	PlacementUtilization PlacementStrategy = "utilization"
	PlacementMinimal     PlacementStrategy = "minimal"
	PlacementBalanced    PlacementStrategy = "balanced"
)

// ClusterOptions holds the typed cluster-wide policy for one run.
// Node health scores live here rather than in package state so that
// concurrent runs never share them.
type ClusterOptions struct {
	StonithEnabled  bool
	StonithAction   string
	StonithTimeout  time.Duration
	StartupFencing  bool
	ConcurrentFence bool
	HaveWatchdog    bool

	SymmetricCluster  bool
	NoQuorumPolicy    NoQuorumPolicy
	PlacementStrategy PlacementStrategy

	StopOrphanResources bool
	StopOrphanActions   bool
	RemoveAfterStop     bool
	MaintenanceMode     bool
	StartFailureIsFatal bool
	StopAllResources    bool
	StartupProbes       bool

	NodeHealthRed    int
	NodeHealthYellow int
	NodeHealthGreen  int

	ClusterName string

	InputSeriesMax int
	ErrorSeriesMax int
	WarnSeriesMax  int

	// Raw keeps every option as declared, recognised or not
	Raw map[string]string
}
