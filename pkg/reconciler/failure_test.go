package reconciler

import (
	"testing"
	"time"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failedMonitorDoc has db started on node1 with its 10s monitor failing
func failedMonitorDoc(onFail string, rc int) *document.Document {
	doc := newDoc(nil, "node1", "node2")
	doc.Config.Resources = []document.ResourceDef{withMonitor(primitive("db"), "10s", onFail)}
	addStatus(doc, onlineState("1", "node1"), history("db",
		opRecord("db", types.TaskStart, 1, types.RCOK, 0),
		opRecord("db", types.TaskMonitor, 2, rc, 10000),
	))
	addStatus(doc, onlineState("2", "node2"))
	return doc
}

func TestMonitorFailureRecovers(t *testing.T) {
	ws, rec := run(t, failedMonitorDoc("", types.RCUnknownError))

	db := mustResource(t, ws, "db")
	assert.True(t, db.Is(types.FlagFailed))
	assert.Equal(t, []string{"1"}, db.RunningOn)

	require.Len(t, ws.Failed, 1)
	failure := ws.Failed[0]
	assert.Equal(t, "db", failure.ResourceID)
	assert.Equal(t, "node1", failure.Node)
	assert.Equal(t, "db_monitor_10000", failure.Key)
	assert.Equal(t, 10*time.Second, failure.Interval)
	assert.Equal(t, types.RCUnknownError, failure.RC)
	assert.Len(t, rec.Filter(events.EventResourceFailed), 1)

	stop := ws.FindAction("db_stop_0", "1")
	require.NotNil(t, stop)
	assert.False(t, stop.Optional)
	assert.Equal(t, "recover", stop.Reason)
}

func TestOnFailPolicies(t *testing.T) {
	tests := []struct {
		name   string
		onFail string
		check  func(t *testing.T, ws *types.WorkingSet)
	}{
		{
			name:   "block",
			onFail: "block",
			check: func(t *testing.T, ws *types.WorkingSet) {
				db := mustResource(t, ws, "db")
				assert.True(t, db.Is(types.FlagFailed))
				assert.False(t, db.Is(types.FlagManaged))
				assert.True(t, db.Is(types.FlagBlock))
				assert.Nil(t, ws.FindAction("db_stop_0", "1"))
				assert.Equal(t, 0, db.AllowedNodes["2"], "no placement change")
			},
		},
		{
			name:   "standby",
			onFail: "standby",
			check: func(t *testing.T, ws *types.WorkingSet) {
				n := mustNode(t, ws, "node1")
				assert.True(t, n.Standby)
				assert.True(t, n.StandbyOnFail)
			},
		},
		{
			name:   "migrate",
			onFail: "migrate",
			check: func(t *testing.T, ws *types.WorkingSet) {
				db := mustResource(t, ws, "db")
				assert.Equal(t, types.MinusInfinity, db.AllowedNodes["1"])
				assert.Equal(t, 0, db.AllowedNodes["2"])
			},
		},
		{
			name:   "stop",
			onFail: "stop",
			check: func(t *testing.T, ws *types.WorkingSet) {
				db := mustResource(t, ws, "db")
				assert.Equal(t, types.RoleStopped, db.NextRole)
				assert.Equal(t, types.MinusInfinity, db.AllowedNodes["1"])
				assert.Equal(t, types.MinusInfinity, db.AllowedNodes["2"])
			},
		},
		{
			name:   "ignore",
			onFail: "ignore",
			check: func(t *testing.T, ws *types.WorkingSet) {
				db := mustResource(t, ws, "db")
				assert.False(t, db.Is(types.FlagFailed))
				assert.True(t, db.Is(types.FlagFailureIgnored))
				assert.Len(t, ws.Failed, 1)
				assert.Equal(t, []string{"1"}, db.RunningOn)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, _ := run(t, failedMonitorDoc(tt.onFail, types.RCUnknownError))
			tt.check(t, ws)
		})
	}
}

func TestOnFailFenceMarksNodeUnclean(t *testing.T) {
	doc := withFencing(failedMonitorDoc("fence", types.RCUnknownError))

	ws, _ := run(t, doc)

	n := mustNode(t, ws, "node1")
	assert.True(t, n.Unclean)
	assert.Equal(t, "db failed there", n.FenceReason)
	require.Len(t, ws.FenceRequests, 1)
	assert.Equal(t, "1", ws.FenceRequests[0].NodeID)
}

func TestOnFailFenceWithoutFencingStops(t *testing.T) {
	ws, _ := run(t, failedMonitorDoc("fence", types.RCUnknownError))

	db := mustResource(t, ws, "db")
	assert.Equal(t, types.RoleStopped, db.NextRole)
	assert.False(t, mustNode(t, ws, "node1").Unclean)
	assert.Contains(t, ws.ConfigErrors, "Specifying on_fail=fence and stonith-enabled=false makes no sense")
}

func TestStopFailureWithoutFencingBlocks(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Resources = []document.ResourceDef{primitive("db")}
	addStatus(doc, onlineState("1", "node1"), history("db",
		opRecord("db", types.TaskStart, 1, types.RCOK, 0),
		opRecord("db", types.TaskStop, 2, types.RCUnknownError, 0),
	))

	ws, _ := run(t, doc)

	db := mustResource(t, ws, "db")
	assert.False(t, db.Is(types.FlagManaged))
	assert.True(t, db.Is(types.FlagBlock))
	assert.Equal(t, types.MinusInfinity, db.AllowedNodes["1"])
	assert.Equal(t, []string{"1"}, db.RunningOn)
}

func TestStopFailureWithFencingFences(t *testing.T) {
	doc := withFencing(newDoc(nil, "node1"))
	doc.Config.Resources = append(doc.Config.Resources, primitive("db"))
	addStatus(doc, onlineState("1", "node1"), history("db",
		opRecord("db", types.TaskStart, 1, types.RCOK, 0),
		opRecord("db", types.TaskStop, 2, types.RCUnknownError, 0),
	))

	ws, _ := run(t, doc)

	n := mustNode(t, ws, "node1")
	assert.True(t, n.Unclean)
	assert.Equal(t, "db failed there", n.FenceReason)
}

func TestHardAndFatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		rc       int
		localBan bool
		allBan   bool
	}{
		{"not installed", types.RCNotInstalled, true, false},
		{"invalid parameter", types.RCInvalidParam, true, false},
		{"not configured", types.RCNotConfigured, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc(nil, "node1", "node2")
			doc.Config.Resources = []document.ResourceDef{primitive("db")}
			addStatus(doc, onlineState("1", "node1"), history("db",
				opRecord("db", types.TaskStart, 1, tt.rc, 0),
			))
			addStatus(doc, onlineState("2", "node2"))

			ws, _ := run(t, doc)

			db := mustResource(t, ws, "db")
			assert.True(t, db.Is(types.FlagFailed))
			assert.Equal(t, tt.localBan, db.AllowedNodes["1"] == types.MinusInfinity)
			assert.Equal(t, tt.allBan, db.AllowedNodes["2"] == types.MinusInfinity)
			assert.Len(t, ws.Failed, 1)
		})
	}
}

func TestFailedProbeOfMissingAgent(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Resources = []document.ResourceDef{primitive("db")}
	probe := opRecord("db", types.TaskMonitor, 1, types.RCNotInstalled, 0)
	probe.TransitionKey = probeKey
	addStatus(doc, onlineState("1", "node1"), history("db", probe))

	ws, _ := run(t, doc)

	db := mustResource(t, ws, "db")
	assert.Equal(t, types.RoleStopped, db.Role)
	assert.Empty(t, db.RunningOn)
	assert.Equal(t, types.MinusInfinity, db.AllowedNodes["1"])
}

func TestDegradedMonitorIsReportedButHealthy(t *testing.T) {
	ws, _ := run(t, failedMonitorDoc("", types.RCDegraded))

	db := mustResource(t, ws, "db")
	assert.False(t, db.Is(types.FlagFailed))
	assert.Equal(t, types.RoleStarted, db.Role)
	require.Len(t, ws.Failed, 1)
	assert.Equal(t, types.RCDegraded, ws.Failed[0].RC)
}

func TestLaterSuccessClearsFailure(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Resources = []document.ResourceDef{withMonitor(primitive("db"), "10s", "")}
	addStatus(doc, onlineState("1", "node1"), history("db",
		opRecord("db", types.TaskStart, 1, types.RCUnknownError, 0),
		opRecord("db", types.TaskStop, 2, types.RCOK, 0),
		opRecord("db", types.TaskStart, 3, types.RCOK, 0),
	))

	ws, _ := run(t, doc)

	db := mustResource(t, ws, "db")
	assert.False(t, db.Is(types.FlagFailed))
	assert.Equal(t, types.RoleStarted, db.Role)
	assert.Len(t, ws.Failed, 1, "the earlier failure is still shown")
}

func TestFillerFailureRestartsContainer(t *testing.T) {
	doc := newDoc(nil, "node1")
	app := withMonitor(primitive("app"), "10s", "")
	app.Meta = map[string]string{"container": "vm1"}
	doc.Config.Resources = []document.ResourceDef{primitive("vm1"), app}
	addStatus(doc, onlineState("1", "node1"),
		history("vm1", opRecord("vm1", types.TaskStart, 1, types.RCOK, 0)),
		history("app",
			opRecord("app", types.TaskStart, 2, types.RCOK, 0),
			opRecord("app", types.TaskMonitor, 3, types.RCUnknownError, 10000),
		),
	)

	ws, _ := run(t, doc)

	assert.True(t, mustResource(t, ws, "app").Is(types.FlagFailed))
	stop := ws.FindAction("vm1_stop_0", "1")
	require.NotNil(t, stop)
	assert.Equal(t, "restart-container", stop.Reason)
}

func TestCombineOnFail(t *testing.T) {
	tests := []struct {
		cur, next, expected types.OnFail
	}{
		{types.OnFailIgnore, types.OnFailBlock, types.OnFailBlock},
		{types.OnFailBlock, types.OnFailRecover, types.OnFailRecover},
		{types.OnFailRecover, types.OnFailBlock, types.OnFailRecover},
		{types.OnFailRecover, types.OnFailStop, types.OnFailStop},
		{types.OnFailStop, types.OnFailMigrate, types.OnFailStop},
		{types.OnFailStandby, types.OnFailRestartContainer, types.OnFailRestartContainer},
		{types.OnFailRestartContainer, types.OnFailResetRemote, types.OnFailRestartContainer},
		{types.OnFailResetRemote, types.OnFailFence, types.OnFailFence},
		{types.OnFailFence, types.OnFailResetRemote, types.OnFailFence},
		{types.OnFailFence, types.OnFailIgnore, types.OnFailFence},
	}

	for _, tt := range tests {
		t.Run(tt.cur.String()+"+"+tt.next.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, combineOnFail(tt.cur, tt.next))
		})
	}
}

func TestActionOnFail(t *testing.T) {
	doc := newDoc(nil, "node1")
	remote := document.ResourceDef{
		ID: "remote1", Kind: document.KindPrimitive, Class: "ocf", Provider: "pacemaker", Type: "remote",
		Params: map[string]string{"reconnect_interval": "60s"},
	}
	db := primitive("db")
	db.Ops = []document.OpDef{
		{Name: types.TaskMonitor, Interval: "10s", OnFail: "stop"},
		{Name: types.TaskStop, OnFail: "standby"},
		{Name: types.TaskStart, OnFail: "bogus"},
	}
	app := primitive("app")
	app.Meta = map[string]string{"container": "vm1"}
	doc.Config.Resources = []document.ResourceDef{db, app, primitive("vm1"), remote}

	r, ws, _ := runReconciler(t, doc)

	tests := []struct {
		name     string
		rsc      string
		task     string
		interval time.Duration
		stonith  bool
		onFail   types.OnFail
		role     types.Role
	}{
		{"explicit stop", "db", types.TaskMonitor, 10 * time.Second, false, types.OnFailStop, types.RoleStopped},
		{"standby not allowed on stop", "db", types.TaskStop, 0, false, types.OnFailBlock, types.RoleStarted},
		{"stop defaults to fence", "db", types.TaskStop, 0, true, types.OnFailFence, types.RoleStarted},
		{"unknown value", "db", types.TaskStart, 0, false, types.OnFailRecover, types.RoleStarted},
		{"promote falls back to slave", "db", types.TaskPromote, 0, false, types.OnFailRecover, types.RoleSlave},
		{"filler restarts container", "app", types.TaskMonitor, 10 * time.Second, false, types.OnFailRestartContainer, types.RoleStarted},
		{"remote connection resets", "remote1", types.TaskMonitor, 30 * time.Second, false, types.OnFailResetRemote, types.RoleStopped},
		{"remote connection start recovers", "remote1", types.TaskStart, 0, false, types.OnFailRecover, types.RoleStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws.Config.StonithEnabled = tt.stonith
			onFail, role := r.actionOnFail(mustResource(t, ws, tt.rsc), tt.task, tt.interval)
			assert.Equal(t, tt.onFail, onFail)
			assert.Equal(t, tt.role, role)
		})
	}

	assert.Contains(t, ws.ConfigErrors, "on-fail=standby is not allowed for stop actions: db")
	assert.Contains(t, ws.ConfigErrors, "Resource db: Unknown failure type (bogus)")
}

func TestDetermineOpStatus(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Resources = []document.ResourceDef{primitive("db")}
	addStatus(doc, onlineState("1", "node1"))
	r, ws, _ := runReconciler(t, doc)
	n := mustNode(t, ws, "node1")

	tests := []struct {
		name     string
		task     string
		interval time.Duration
		rc       int
		target   int
		expected types.OpStatus
		role     types.Role
	}{
		{"probe not running", types.TaskMonitor, 0, types.RCNotRunning, -1, types.OpDone, types.RoleStopped},
		{"probe found active", types.TaskMonitor, 0, types.RCOK, types.RCNotRunning, types.OpDone, types.RoleStarted},
		{"probe found master", types.TaskMonitor, 0, types.RCRunningMaster, -1, types.OpDone, types.RoleMaster},
		{"unexpected success", types.TaskStart, 0, types.RCOK, types.RCNotRunning, types.OpError, types.RoleStarted},
		{"monitor found stopped", types.TaskMonitor, 10 * time.Second, types.RCNotRunning, types.RCOK, types.OpError, types.RoleStarted},
		{"expected stop", types.TaskStop, 0, types.RCNotRunning, types.RCNotRunning, types.OpDone, types.RoleStopped},
		{"failed master", types.TaskMonitor, 10 * time.Second, types.RCFailedMaster, -1, types.OpError, types.RoleMaster},
		{"not configured", types.TaskStart, 0, types.RCNotConfigured, -1, types.OpErrorFatal, types.RoleStarted},
		{"unimplemented recurring", types.TaskMonitor, 10 * time.Second, types.RCUnimplemented, -1, types.OpNotSupported, types.RoleStarted},
		{"invalid parameter", types.TaskStart, 0, types.RCInvalidParam, -1, types.OpErrorHard, types.RoleStarted},
		{"generic error", types.TaskStart, 0, types.RCUnknownError, -1, types.OpError, types.RoleStarted},
		{"unknown rc", types.TaskStart, 0, 42, -1, types.OpError, types.RoleStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsc := mustResource(t, ws, "db")
			rsc.Role = types.RoleStarted
			onFail := types.OnFailRecover
			op := &types.OpEntry{ID: "db_op", Task: tt.task, Interval: tt.interval, RC: tt.rc}

			status := r.determineOpStatus(rsc, n, op, tt.rc, tt.target, &onFail)

			assert.Equal(t, tt.expected, status)
			assert.Equal(t, tt.role, rsc.Role)
		})
	}
}

func TestStopOfMissingAgentWithoutFencingBlocks(t *testing.T) {
	doc := newDoc(nil, "node1")
	doc.Config.Resources = []document.ResourceDef{primitive("db")}
	r, ws, _ := runReconciler(t, doc)

	rsc := mustResource(t, ws, "db")
	onFail := types.OnFailIgnore
	op := &types.OpEntry{ID: "db_stop_0", Task: types.TaskStop, RC: types.RCNotInstalled}

	status := r.determineOpStatus(rsc, mustNode(t, ws, "node1"), op, op.RC, -1, &onFail)

	assert.Equal(t, types.OpErrorHard, status)
	assert.False(t, rsc.Is(types.FlagManaged))
	assert.True(t, rsc.Is(types.FlagBlock))
}
