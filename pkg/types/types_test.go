package types

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoleOrdering tests that roles compare by activity level
func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleUnknown < RoleStopped)
	assert.True(t, RoleStopped < RoleStarted)
	assert.True(t, RoleStarted < RoleSlave)
	assert.True(t, RoleSlave < RoleMaster)
	assert.Equal(t, RoleMaster, MaxRole(RoleSlave, RoleMaster))
	assert.Equal(t, RoleStarted, MaxRole(RoleStarted, RoleUnknown))
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in       string
		expected Role
		ok       bool
	}{
		{"Started", RoleStarted, true},
		{"stopped", RoleStopped, true},
		{"Promoted", RoleMaster, true},
		{"Unpromoted", RoleSlave, true},
		{" master ", RoleMaster, true},
		{"bogus", RoleUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			role, ok := ParseRole(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, role)
		})
	}
}

func TestMergeScores(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int
		expected int
	}{
		{"finite", 10, 20, 30},
		{"minus infinity wins", Infinity, MinusInfinity, MinusInfinity},
		{"infinity absorbs", Infinity, -50, Infinity},
		{"saturates high", 999999, 10, Infinity},
		{"saturates low", -999999, -10, MinusInfinity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MergeScores(tt.a, tt.b))
		})
	}
}

func TestNaturalLess(t *testing.T) {
	names := []string{"node10", "Node2", "node1", "alpha", "node02a"}
	sort.Slice(names, func(i, j int) bool { return NaturalLess(names[i], names[j]) })
	assert.Equal(t, []string{"alpha", "node1", "Node2", "node02a", "node10"}, names)
}

func TestCloneStrip(t *testing.T) {
	tests := []struct {
		id       string
		base     string
		zeroForm string
	}{
		{"web:1", "web", "web:0"},
		{"web:12", "web", "web:0"},
		{"web", "web", "web:0"},
		{"db:master", "db:master", "db:master:0"},
		{"a:b:3", "a:b", "a:b:0"},
		{"web:", "web:", "web::0"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.base, CloneStrip(tt.id))
			assert.Equal(t, tt.zeroForm, CloneZero(tt.id))
		})
	}
}

func TestParseTransitionKey(t *testing.T) {
	key, err := ParseTransitionKey("3:12:7:5a6b1c2d-0e1f-4a3b-8c7d-9e0f1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, 3, key.Action)
	assert.Equal(t, 12, key.Transition)
	assert.Equal(t, 7, key.TargetRC)
	assert.Equal(t, "3:12:7:5a6b1c2d-0e1f-4a3b-8c7d-9e0f1a2b3c4d", key.String())

	legacy, err := ParseTransitionKey("3:12:5a6b1c2d-0e1f-4a3b-8c7d-9e0f1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, -1, legacy.TargetRC)

	_, err = ParseTransitionKey("3:12:0:not-a-uuid")
	assert.Error(t, err)

	_, err = ParseTransitionKey("garbage")
	assert.Error(t, err)
}

func TestOpEntryTargetRC(t *testing.T) {
	op := &OpEntry{TransitionKey: "1:2:8:5a6b1c2d-0e1f-4a3b-8c7d-9e0f1a2b3c4d"}
	assert.Equal(t, 8, op.TargetRC())

	assert.Equal(t, -1, (&OpEntry{}).TargetRC())
	assert.Equal(t, RCOK, (&OpEntry{TransitionKey: "broken"}).TargetRC())
}

func TestOpKey(t *testing.T) {
	assert.Equal(t, "db_monitor_10000", OpKey("db", TaskMonitor, 10*time.Second))
	assert.Equal(t, "db_start_0", OpKey("db", TaskStart, 0))
}

func TestNodeSetAttr(t *testing.T) {
	n := NewNode("1", "node1", NodeMember)
	n.SetAttr("rack", "a", false)
	n.SetAttr("rack", "b", false)
	v, _ := n.Attr("rack")
	assert.Equal(t, "a", v)

	n.SetAttr("rack", "c", true)
	v, ok := n.Attr("rack")
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	n.Ban()
	assert.True(t, n.Fixed)
	assert.Equal(t, MinusInfinity, n.Weight)
}

func TestWorkingSetNodes(t *testing.T) {
	ws := NewWorkingSet(time.Unix(1000, 0))
	ws.AddNode(NewNode("3", "node10", NodeMember))
	ws.AddNode(NewNode("1", "node1", NodeMember))
	ws.AddNode(NewNode("2", "node2", NodeRemote))

	require.Len(t, ws.Nodes, 3)
	assert.Equal(t, "node1", ws.Nodes[0].Name)
	assert.Equal(t, "node2", ws.Nodes[1].Name)
	assert.Equal(t, "node10", ws.Nodes[2].Name)

	assert.Equal(t, "2", ws.FindNode("NODE2").ID)
	assert.Equal(t, "node10", ws.FindNodeByID("3").Name)
	assert.Equal(t, "node1", ws.FindNodeAny("missing", "node1").Name)
	assert.Nil(t, ws.FindNode("node4"))
	assert.Equal(t, 2, ws.ClusterNodeCount())
}

func TestWorkingSetTree(t *testing.T) {
	ws := NewWorkingSet(time.Now())

	bundle := NewResource("httpd-bundle", VariantContainer)
	clone := NewResource("httpd-bundle-clone", VariantClone)
	clone.ParentID = bundle.ID
	inst := NewResource("httpd:0", VariantPrimitive)
	inst.ParentID = clone.ID
	clone.Children = append(clone.Children, inst)
	bundle.Children = append(bundle.Children, clone)

	ws.Resources = append(ws.Resources, bundle)
	ws.Register(bundle)

	assert.Same(t, clone, ws.Parent(inst))
	assert.Same(t, clone, ws.UberParent(inst))
	assert.Same(t, bundle, ws.UberParent(bundle))

	inst.CloneName = "httpd"
	assert.Same(t, inst, ws.FindResource("httpd"))
	assert.Same(t, inst, ws.FindResource("httpd:0"))
	assert.Same(t, inst, bundle.FindByBaseName("httpd"))
	assert.Len(t, ws.AllResources(), 3)
}

func TestWorkingSetDedup(t *testing.T) {
	ws := NewWorkingSet(time.Now())
	ws.AddNode(NewNode("1", "node1", NodeMember))
	r := NewResource("db", VariantPrimitive)
	ws.Resources = append(ws.Resources, r)
	ws.Register(r)

	rec := FailureRecord{ResourceID: "db", Node: "node1", Key: "db_start_0"}
	assert.True(t, ws.AddFailure(rec))
	assert.False(t, ws.AddFailure(rec))
	assert.Len(t, ws.Failed, 1)

	assert.True(t, ws.AddFenceRequest(FenceRequest{NodeID: "1", Reason: "a"}))
	assert.False(t, ws.AddFenceRequest(FenceRequest{NodeID: "1", Reason: "b"}))
	assert.Len(t, ws.FenceRequests, 1)

	assert.True(t, ws.AddAction(Action{Key: "db_monitor_10000", NodeID: "1"}))
	assert.False(t, ws.AddAction(Action{Key: "db_monitor_10000", NodeID: "1"}))
	assert.NotNil(t, ws.FindAction("db_monitor_10000", "1"))

	ws.AddConstraint(LocationConstraint{ID: "ban", ResourceID: "db", Score: MinusInfinity})
	assert.Equal(t, MinusInfinity, r.AllowedNodes["1"])
}

func TestFlagsNames(t *testing.T) {
	r := NewResource("db", VariantPrimitive)
	r.Set(FlagManaged | FlagFailed)
	assert.True(t, r.Is(FlagManaged))
	assert.Equal(t, []string{"managed", "failed"}, r.Flags.Names())
	r.Clear(FlagFailed)
	assert.False(t, r.Is(FlagFailed))
}
