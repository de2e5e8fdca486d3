package config

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cuemby/crmcore/pkg/log"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/rs/zerolog"
)

// ClusterState carries the facts from the status report that option
// handling depends on
type ClusterState struct {
	HaveQuorum  bool
	QuorumPanic bool
}

// Once emits each keyed warning at most once per run
type Once struct {
	logger zerolog.Logger
	seen   map[string]bool
	// Messages holds every warning emitted, in order
	Messages []string
}

// NewOnce creates a warning deduplicator for one run
func NewOnce(logger zerolog.Logger) *Once {
	return &Once{logger: logger, seen: make(map[string]bool)}
}

// Warn logs msg unless a warning with the same key was already emitted
func (o *Once) Warn(key, msg string) bool {
	if o.seen[key] {
		return false
	}
	o.seen[key] = true
	o.Messages = append(o.Messages, msg)
	o.logger.Warn().Str("key", key).Msg(msg)
	return true
}

type kind int

const (
	kindBool kind = iota
	kindTime
	kindInt
	kindScore
	kindEnum
	kindString
)

type definition struct {
	name    string
	kind    kind
	def     string
	allowed []string
}

var definitions = []definition{
	{name: "stonith-enabled", kind: kindBool, def: "true"},
	{name: "stonith-action", kind: kindEnum, def: "reboot", allowed: []string{"reboot", "off", "poweroff"}},
	{name: "stonith-timeout", kind: kindTime, def: "60s"},
	{name: "startup-fencing", kind: kindBool, def: "true"},
	{name: "concurrent-fencing", kind: kindBool, def: "false"},
	{name: "have-watchdog", kind: kindBool, def: "false"},
	{name: "symmetric-cluster", kind: kindBool, def: "true"},
	{name: "no-quorum-policy", kind: kindEnum, def: "stop", allowed: []string{"stop", "freeze", "ignore", "suicide"}},
	{name: "placement-strategy", kind: kindEnum, def: "default", allowed: []string{"default", "utilization", "minimal", "balanced"}},
	{name: "stop-orphan-resources", kind: kindBool, def: "true"},
	{name: "stop-orphan-actions", kind: kindBool, def: "true"},
	{name: "remove-after-stop", kind: kindBool, def: "false"},
	{name: "maintenance-mode", kind: kindBool, def: "false"},
	{name: "start-failure-is-fatal", kind: kindBool, def: "true"},
	{name: "stop-all-resources", kind: kindBool, def: "false"},
	{name: "enable-startup-probes", kind: kindBool, def: "true"},
	{name: "node-health-red", kind: kindScore, def: "-INFINITY"},
	{name: "node-health-yellow", kind: kindScore, def: "0"},
	{name: "node-health-green", kind: kindScore, def: "0"},
	{name: "cluster-name", kind: kindString, def: ""},
	{name: "pe-input-series-max", kind: kindInt, def: "4000"},
	{name: "pe-error-series-max", kind: kindInt, def: "-1"},
	{name: "pe-warn-series-max", kind: kindInt, def: "5000"},
}

func (d definition) valid(value string) bool {
	switch d.kind {
	case kindBool:
		_, ok := ParseBool(value)
		return ok
	case kindTime:
		_, err := ParseInterval(value)
		return err == nil
	case kindInt:
		_, err := strconv.Atoi(value)
		return err == nil
	case kindScore:
		_, err := ParseScore(value)
		return err == nil
	case kindEnum:
		for _, a := range d.allowed {
			if a == value {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Defaults returns every recognised option with its default value
func Defaults() map[string]string {
	out := make(map[string]string, len(definitions))
	for _, d := range definitions {
		out[d.name] = d.def
	}
	return out
}

// Parse turns declared cluster options into typed values. Invalid values
// fall back to their default with a warning. The returned errors are
// configuration errors; parsing always produces usable options.
func Parse(raw map[string]string, state ClusterState, once *Once) (*types.ClusterOptions, []error) {
	logger := log.WithComponent("config")
	if once == nil {
		once = NewOnce(logger)
	}

	values := make(map[string]string, len(definitions))
	for _, d := range definitions {
		v, ok := raw[d.name]
		if !ok {
			values[d.name] = d.def
			continue
		}
		if !d.valid(v) {
			logger.Warn().
				Str("option", d.name).
				Str("value", v).
				Str("default", d.def).
				Msg("Invalid value for cluster option, using default")
			values[d.name] = d.def
			continue
		}
		values[d.name] = v
	}

	opts := &types.ClusterOptions{Raw: make(map[string]string, len(raw))}
	for k, v := range raw {
		opts.Raw[k] = v
	}

	var errs []error

	opts.StartupProbes = IsTrue(values["enable-startup-probes"])
	if !opts.StartupProbes {
		logger.Info().Msg("Startup probes: disabled (dangerous)")
	}

	opts.HaveWatchdog = IsTrue(values["have-watchdog"])
	if opts.HaveWatchdog {
		logger.Info().Msg("Watchdog will be used via SBD if fencing is required")
	}

	opts.StonithTimeout, _ = ParseInterval(values["stonith-timeout"])
	opts.StonithEnabled = IsTrue(values["stonith-enabled"])
	logger.Debug().Bool("enabled", opts.StonithEnabled).Msg("Fencing of failed nodes")

	opts.StonithAction = values["stonith-action"]
	if opts.StonithAction == "poweroff" {
		once.Warn("poweroff", "Support for stonith-action of 'poweroff' is deprecated and will be removed in a future release (use 'off' instead)")
		opts.StonithAction = "off"
	}

	opts.ConcurrentFence = IsTrue(values["concurrent-fencing"])
	opts.StopAllResources = IsTrue(values["stop-all-resources"])
	opts.SymmetricCluster = IsTrue(values["symmetric-cluster"])

	switch types.NoQuorumPolicy(values["no-quorum-policy"]) {
	case types.NoQuorumIgnore:
		opts.NoQuorumPolicy = types.NoQuorumIgnore
	case types.NoQuorumFreeze:
		opts.NoQuorumPolicy = types.NoQuorumFreeze
	case types.NoQuorumSuicide:
		switch {
		case !opts.StonithEnabled:
			errs = append(errs, fmt.Errorf("resetting no-quorum-policy to 'stop': stonith is not configured"))
			opts.NoQuorumPolicy = types.NoQuorumStop
		case state.QuorumPanic || state.HaveQuorum:
			opts.NoQuorumPolicy = types.NoQuorumSuicide
		default:
			logger.Info().Msg("Resetting no-quorum-policy to 'stop': cluster has never had quorum")
			opts.NoQuorumPolicy = types.NoQuorumStop
		}
	default:
		opts.NoQuorumPolicy = types.NoQuorumStop
	}
	logger.Debug().Str("policy", string(opts.NoQuorumPolicy)).Msg("On loss of quorum")

	opts.StopOrphanResources = IsTrue(values["stop-orphan-resources"])
	opts.StopOrphanActions = IsTrue(values["stop-orphan-actions"])
	opts.RemoveAfterStop = IsTrue(values["remove-after-stop"])
	opts.MaintenanceMode = IsTrue(values["maintenance-mode"])
	opts.StartFailureIsFatal = IsTrue(values["start-failure-is-fatal"])

	if opts.StonithEnabled {
		opts.StartupFencing = IsTrue(values["startup-fencing"])
	}
	if !opts.StartupFencing {
		once.Warn("blind", "Blind faith: not fencing unseen nodes")
	}

	opts.NodeHealthRed, _ = ParseScore(values["node-health-red"])
	opts.NodeHealthYellow, _ = ParseScore(values["node-health-yellow"])
	opts.NodeHealthGreen, _ = ParseScore(values["node-health-green"])

	opts.PlacementStrategy = types.PlacementStrategy(values["placement-strategy"])
	opts.ClusterName = values["cluster-name"]

	opts.InputSeriesMax, _ = strconv.Atoi(values["pe-input-series-max"])
	opts.ErrorSeriesMax, _ = strconv.Atoi(values["pe-error-series-max"])
	opts.WarnSeriesMax, _ = strconv.Atoi(values["pe-warn-series-max"])

	var unknown []string
	for k := range raw {
		if !known(k) {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		logger.Debug().Str("option", k).Msg("Unrecognised cluster option kept as raw value")
	}

	return opts, errs
}

func known(name string) bool {
	for _, d := range definitions {
		if d.name == name {
			return true
		}
	}
	return false
}
