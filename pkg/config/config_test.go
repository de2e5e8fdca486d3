package config

import (
	"testing"
	"time"

	"github.com/cuemby/crmcore/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	once := NewOnce(zerolog.Nop())
	opts, errs := Parse(nil, ClusterState{}, once)
	require.Empty(t, errs)

	assert.True(t, opts.StonithEnabled)
	assert.Equal(t, "reboot", opts.StonithAction)
	assert.Equal(t, 60*time.Second, opts.StonithTimeout)
	assert.True(t, opts.StartupFencing)
	assert.True(t, opts.SymmetricCluster)
	assert.Equal(t, types.NoQuorumStop, opts.NoQuorumPolicy)
	assert.True(t, opts.StopOrphanResources)
	assert.True(t, opts.StopOrphanActions)
	assert.True(t, opts.StartFailureIsFatal)
	assert.True(t, opts.StartupProbes)
	assert.False(t, opts.MaintenanceMode)
	assert.Equal(t, types.MinusInfinity, opts.NodeHealthRed)
	assert.Equal(t, 0, opts.NodeHealthYellow)
	assert.Equal(t, types.PlacementDefault, opts.PlacementStrategy)
	assert.Equal(t, 4000, opts.InputSeriesMax)
	assert.Equal(t, -1, opts.ErrorSeriesMax)
	assert.Empty(t, once.Messages)
}

func TestParsePoweroffWarnsOnce(t *testing.T) {
	once := NewOnce(zerolog.Nop())
	raw := map[string]string{"stonith-action": "poweroff"}

	opts, _ := Parse(raw, ClusterState{}, once)
	assert.Equal(t, "off", opts.StonithAction)
	_, _ = Parse(raw, ClusterState{}, once)

	assert.Len(t, once.Messages, 1)
}

func TestParseStartupFencing(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]string
		expected bool
		blind    bool
	}{
		{"default", nil, true, false},
		{"disabled explicitly", map[string]string{"startup-fencing": "false"}, false, true},
		{"ignored without stonith", map[string]string{"stonith-enabled": "false", "startup-fencing": "true"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := NewOnce(zerolog.Nop())
			opts, _ := Parse(tt.raw, ClusterState{}, once)
			assert.Equal(t, tt.expected, opts.StartupFencing)
			assert.Equal(t, tt.blind, len(once.Messages) == 1)
		})
	}
}

func TestParseNoQuorumSuicide(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]string
		state    ClusterState
		expected types.NoQuorumPolicy
		errs     int
	}{
		{"with quorum", map[string]string{"no-quorum-policy": "suicide"}, ClusterState{HaveQuorum: true}, types.NoQuorumSuicide, 0},
		{"quorum panic", map[string]string{"no-quorum-policy": "suicide"}, ClusterState{QuorumPanic: true}, types.NoQuorumSuicide, 0},
		{"never had quorum", map[string]string{"no-quorum-policy": "suicide"}, ClusterState{}, types.NoQuorumStop, 0},
		{"no stonith", map[string]string{"no-quorum-policy": "suicide", "stonith-enabled": "no"}, ClusterState{HaveQuorum: true}, types.NoQuorumStop, 1},
		{"freeze", map[string]string{"no-quorum-policy": "freeze"}, ClusterState{}, types.NoQuorumFreeze, 0},
		{"invalid", map[string]string{"no-quorum-policy": "panic"}, ClusterState{}, types.NoQuorumStop, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, errs := Parse(tt.raw, tt.state, NewOnce(zerolog.Nop()))
			assert.Equal(t, tt.expected, opts.NoQuorumPolicy)
			assert.Len(t, errs, tt.errs)
		})
	}
}

func TestParseInvalidFallsBack(t *testing.T) {
	raw := map[string]string{
		"stonith-timeout":   "soon",
		"symmetric-cluster": "maybe",
		"custom-option":     "kept",
	}
	opts, _ := Parse(raw, ClusterState{}, nil)
	assert.Equal(t, 60*time.Second, opts.StonithTimeout)
	assert.True(t, opts.SymmetricCluster)
	assert.Equal(t, "kept", opts.Raw["custom-option"])
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "On", "YES", "y", "1"} {
		assert.True(t, IsTrue(s), s)
	}
	for _, s := range []string{"false", "off", "no", "n", "0"} {
		v, ok := ParseBool(s)
		assert.True(t, ok, s)
		assert.False(t, v, s)
	}
	_, ok := ParseBool("maybe")
	assert.False(t, ok)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Duration
		err      bool
	}{
		{"10", 10 * time.Second, false},
		{"10s", 10 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"2min", 2 * time.Minute, false},
		{"2m", 2 * time.Minute, false},
		{"1h", time.Hour, false},
		{"3 hr", 3 * time.Hour, false},
		{"0", 0, false},
		{"", 0, true},
		{"-5s", 0, true},
		{"10 days", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseInterval(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestScore(t *testing.T) {
	opts := &types.ClusterOptions{NodeHealthRed: types.MinusInfinity, NodeHealthYellow: -10, NodeHealthGreen: 5}

	assert.Equal(t, types.Infinity, Score("INFINITY", opts))
	assert.Equal(t, types.Infinity, Score("+INFINITY", opts))
	assert.Equal(t, types.MinusInfinity, Score("-INFINITY", opts))
	assert.Equal(t, types.Infinity, Score("5000000", opts))
	assert.Equal(t, 42, Score("42", opts))
	assert.Equal(t, -10, Score("yellow", opts))
	assert.Equal(t, 5, Score("green", opts))
	assert.Equal(t, types.MinusInfinity, Score("red", opts))
	assert.Equal(t, 0, Score("bogus", opts))
}
