package reconciler

import (
	"strings"
	"time"

	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/types"
)

// actionOnFail resolves the failure response and the role to fall back to
// for an operation of rsc
func (r *Reconciler) actionOnFail(rsc *types.Resource, task string, interval time.Duration) (types.OnFail, types.Role) {
	conf, ok := rsc.OpFor(task, interval)
	if !ok && (task == types.TaskMigrateTo || task == types.TaskMigrateFrom) {
		conf, _ = rsc.OpFor("migrate", 0)
	}
	value := strings.ToLower(strings.TrimSpace(conf.OnFail))

	onFail := types.OnFailRecover
	failRole := types.RoleUnknown
	explicit := true

	if task == types.TaskStop && value == "standby" {
		r.configErrorOnce("on-fail=standby is not allowed for stop actions: %s", rsc.ID)
		value = ""
	}

	switch value {
	case "":
		explicit = false
	case "block":
		onFail = types.OnFailBlock
	case "fence":
		onFail = types.OnFailFence
		if !r.ws.Config.StonithEnabled {
			r.configErrorOnce("Specifying on_fail=fence and stonith-enabled=false makes no sense")
			onFail = types.OnFailStop
			failRole = types.RoleStopped
		}
	case "standby":
		onFail = types.OnFailStandby
	case "ignore", "nothing":
		onFail = types.OnFailIgnore
	case "migrate":
		onFail = types.OnFailMigrate
	case "stop":
		onFail = types.OnFailStop
		failRole = types.RoleStopped
	case "restart":
		onFail = types.OnFailRecover
	case "restart-container":
		if rsc.ContainerID != "" {
			onFail = types.OnFailRestartContainer
		} else {
			explicit = false
		}
	default:
		r.configErrorOnce("Resource %s: Unknown failure type (%s)", rsc.ID, conf.OnFail)
		explicit = false
	}

	managed := rsc.Is(types.FlagManaged)
	switch {
	case !explicit && rsc.ContainerID != "":
		onFail = types.OnFailRestartContainer

	case (!explicit || !managed) && r.isBaremetalConnection(rsc) &&
		!(task == types.TaskMonitor && interval == 0) && task != types.TaskStart:
		// Dropping an active connection must fence the remote node
		if !managed {
			onFail = types.OnFailStop
			failRole = types.RoleStopped
		} else {
			onFail = types.OnFailResetRemote
			if rsc.RemoteReconnect > 0 {
				failRole = types.RoleStopped
			}
		}

	case !explicit && task == types.TaskStop:
		if r.ws.Config.StonithEnabled {
			onFail = types.OnFailFence
		} else {
			onFail = types.OnFailBlock
		}

	case !explicit:
		onFail = types.OnFailRecover
	}

	if failRole == types.RoleUnknown {
		if task == types.TaskPromote {
			failRole = types.RoleSlave
		} else {
			failRole = types.RoleStarted
		}
	}
	return onFail, failRole
}

func (r *Reconciler) isBaremetalConnection(rsc *types.Resource) bool {
	if !rsc.Is(types.FlagRemoteConnection) || rsc.ContainerID != "" {
		return false
	}
	n := r.ws.FindNode(rsc.ID)
	return n != nil && n.IsBaremetalRemote()
}

// onFailSeverity ranks failure responses. Responses of equal rank keep
// whichever was seen first.
func onFailSeverity(f types.OnFail) int {
	switch f {
	case types.OnFailFence:
		return 5
	case types.OnFailResetRemote, types.OnFailRestartContainer:
		return 4
	case types.OnFailStop, types.OnFailMigrate, types.OnFailStandby:
		return 3
	case types.OnFailRecover:
		return 2
	case types.OnFailBlock:
		return 1
	}
	return 0
}

// combineOnFail merges the response of a newly seen failure into the
// response accumulated so far
func combineOnFail(cur, next types.OnFail) types.OnFail {
	if onFailSeverity(next) > onFailSeverity(cur) {
		return next
	}
	return cur
}

// recordFailedOp surfaces a failure once per resource, node and key.
// Failures on offline nodes are not shown.
func (r *Reconciler) recordFailedOp(rsc *types.Resource, n *types.Node, op *types.OpEntry) {
	if !n.Online {
		return
	}
	rec := types.FailureRecord{
		ResourceID: rsc.ID,
		Node:       n.Name,
		Key:        op.OpKey(),
		Task:       op.Task,
		Interval:   op.Interval,
		RC:         op.RC,
		Status:     op.Status,
		CallID:     op.CallID,
	}
	if r.ws.AddFailure(rec) {
		r.recorder.Record(events.EventResourceFailed, n.Name, rsc.ID, types.RCString(op.RC), map[string]string{
			"key":    rec.Key,
			"status": op.Status.String(),
		})
	}
}

// opFailure applies the side effects of a failed operation
func (r *Reconciler) opFailure(rsc *types.Resource, n *types.Node, op *types.OpEntry, rc int, lastFailure **types.OpEntry, onFail *types.OnFail) {
	logger := r.rscLogger(rsc).With().Str("node", n.Name).Str("op", op.OpKey()).Int("rc", rc).Logger()
	*lastFailure = op

	probe := op.IsProbe()
	if rc != types.RCNotInstalled || r.ws.Config.SymmetricCluster {
		task := op.Task
		if probe {
			task = "probe"
		}
		logger.Warn().Str("task", task).Str("result", types.RCString(rc)).Msg("Processing failed operation")
		if probe && rc != types.RCOK && rc != types.RCNotRunning && rc != types.RCRunningMaster {
			logger.Info().Msg("If it is not possible for the resource to run on this node, see the resource-discovery option for location constraints")
		}
		r.recordFailedOp(rsc, n, op)
	} else {
		logger.Trace().Msg("Processing failed operation of an uninstalled agent")
	}

	actFail, failRole := r.actionOnFail(rsc, op.Task, op.Interval)
	if next := combineOnFail(*onFail, actFail); next != *onFail {
		logger.Trace().Str("from", onFail.String()).Str("to", next.String()).Msg("Escalating failure response")
		*onFail = next
	}

	switch op.Task {
	case types.TaskStop:
		r.ws.AddConstraint(types.LocationConstraint{
			ID: "__stop_fail__", ResourceID: rsc.ID, NodeID: n.ID, Score: types.MinusInfinity,
		})
	case types.TaskMigrateTo, types.TaskMigrateFrom:
		r.migrationFailure(rsc, n, op)
	case types.TaskPromote:
		rsc.Role = types.RoleMaster
	case types.TaskDemote:
		switch {
		case actFail == types.OnFailBlock:
			rsc.Role = types.RoleMaster
			rsc.NextRole = types.RoleStopped
		case rc == types.RCNotRunning:
			rsc.Role = types.RoleStopped
		default:
			// Staying master would loop; the stop of the recovery orders
			// any new promotion after it
			rsc.Role = types.RoleSlave
		}
	}

	if probe && rc == types.RCNotInstalled {
		rsc.Role = types.RoleStopped
	} else if rsc.Role < types.RoleStarted {
		r.setActive(rsc)
	}

	if failRole != types.RoleStarted && rsc.NextRole < failRole {
		rsc.NextRole = failRole
	}

	if failRole == types.RoleStopped {
		target := rsc
		if rsc.ParentID != "" {
			if parent := r.ws.UberParent(rsc); parent.IsAnonymousClone() {
				target = parent
			}
		}
		logger.Warn().Str("target", target.ID).Msg("Making sure resource doesn't come up again")
		r.ws.AddConstraint(types.LocationConstraint{
			ID: "__fail_role_stopped__", ResourceID: target.ID, Score: types.MinusInfinity,
		})
	}
}

// determineOpStatus maps a completed operation's return code to an
// operation status, adjusting the role as a side effect
func (r *Reconciler) determineOpStatus(rsc *types.Resource, n *types.Node, op *types.OpEntry, rc, targetRC int, onFail *types.OnFail) types.OpStatus {
	logger := r.rscLogger(rsc).With().Str("node", n.Name).Str("op", op.OpKey()).Logger()
	result := types.OpDone
	probe := op.IsProbe()

	if targetRC >= 0 && targetRC != rc {
		result = types.OpError
		logger.Debug().
			Str("result", types.RCString(rc)).
			Str("expected", types.RCString(targetRC)).
			Msg("Operation returned an unexpected value")
	}

	switch rc {
	case types.RCOK:
		if probe && targetRC == types.RCNotRunning {
			result = types.OpDone
			logger.Info().Msg("Probe found resource active")
		} else if targetRC < 0 && op.Interval > 0 && rsc.Role == types.RoleMaster {
			// A monitor returning 0 instead of 8 while master
			result = types.OpError
		}

	case types.RCNotRunning:
		if probe || targetRC == rc || !rsc.Is(types.FlagManaged) {
			result = types.OpDone
			rsc.Role = types.RoleStopped
			*onFail = types.OnFailIgnore
			rsc.NextRole = types.RoleUnknown
		} else if op.Task != types.TaskStop {
			result = types.OpError
		}

	case types.RCRunningMaster:
		switch {
		case probe:
			result = types.OpDone
			logger.Info().Msg("Probe found resource active in master mode")
		case targetRC == rc:
		case targetRC >= 0:
			result = types.OpError
		case op.Task != types.TaskMonitor || rsc.Role != types.RoleMaster:
			result = types.OpError
			if rsc.Role != types.RoleMaster {
				logger.Error().Msg("Operation reported resource in master mode")
			}
		}
		rsc.Role = types.RoleMaster

	case types.RCDegradedMaster, types.RCFailedMaster:
		rsc.Role = types.RoleMaster
		result = types.OpError

	case types.RCNotConfigured:
		result = types.OpErrorFatal

	case types.RCNotInstalled, types.RCInvalidParam, types.RCInsufficientPriv, types.RCUnimplemented:
		if rc == types.RCUnimplemented && op.Interval > 0 {
			result = types.OpNotSupported
			break
		}
		if !r.canFence(n) && op.Task == types.TaskStop {
			logger.Error().
				Str("result", types.RCString(rc)).
				Msg("No further recovery can be attempted: stop failed and the node cannot be fenced")
			rsc.Clear(types.FlagManaged)
			rsc.Set(types.FlagBlock)
		}
		result = types.OpErrorHard

	default:
		if result == types.OpDone {
			logger.Info().Int("rc", rc).Msg("Treating unknown result as an error")
			result = types.OpError
		}
	}
	return result
}

// updateResourceState applies a successful operation to the role and
// decides whether it clears earlier failures
func (r *Reconciler) updateResourceState(rsc *types.Resource, n *types.Node, op *types.OpEntry, rc int, lastFailure *types.OpEntry, onFail *types.OnFail) {
	clearPast := false

	switch {
	case rc == types.RCNotRunning:
		clearPast = true
	case rc == types.RCNotInstalled:
		rsc.Role = types.RoleStopped
	case op.Task == types.TaskMonitor:
		if lastFailure != nil && op.OpKey() == lastFailure.OpKey() {
			clearPast = true
		}
		if rsc.Role < types.RoleStarted {
			r.setActive(rsc)
		}
	case op.Task == types.TaskStart:
		rsc.Role = types.RoleStarted
		clearPast = true
	case op.Task == types.TaskStop:
		rsc.Role = types.RoleStopped
		clearPast = true
	case op.Task == types.TaskPromote:
		rsc.Role = types.RoleMaster
		clearPast = true
	case op.Task == types.TaskDemote:
		// Demoting does not clear an error
		rsc.Role = types.RoleSlave
	case op.Task == types.TaskMigrateFrom:
		rsc.Role = types.RoleStarted
		clearPast = true
	case op.Task == types.TaskMigrateTo:
		r.unpackRscMigration(rsc, n, op)
	case rsc.Role < types.RoleStarted:
		r.rscLogger(rsc).Trace().Str("node", n.Name).Msg("Resource active")
		r.setActive(rsc)
	}

	if !clearPast {
		return
	}
	switch *onFail {
	case types.OnFailStop, types.OnFailFence, types.OnFailMigrate, types.OnFailStandby:
		r.rscLogger(rsc).Trace().Str("on_fail", onFail.String()).Msg("Failure response is not cleared by a completed operation")
	case types.OnFailBlock, types.OnFailIgnore, types.OnFailRecover, types.OnFailRestartContainer:
		*onFail = types.OnFailIgnore
		rsc.NextRole = types.RoleUnknown
	case types.OnFailResetRemote:
		// With a reconnect delay the failure has to expire first
		if rsc.RemoteReconnect == 0 {
			*onFail = types.OnFailIgnore
			rsc.NextRole = types.RoleUnknown
		}
	}
}

// unpackRscOp replays one history entry
func (r *Reconciler) unpackRscOp(rsc *types.Resource, n *types.Node, op *types.OpEntry, lastFailure **types.OpEntry, onFail *types.OnFail) {
	task := op.Task
	if task == types.TaskNotify || task == types.TaskMetadata {
		return
	}

	logger := r.rscLogger(rsc).With().Str("node", n.Name).Str("op", op.OpKey()).Logger()
	targetRC := op.TargetRC()
	rc := op.RC
	status := op.Status

	parent := rsc
	if !rsc.Is(types.FlagUnique) {
		parent = r.ws.UberParent(rsc)
	}

	logger.Trace().
		Int("call_id", op.CallID).
		Int("status", int(status)).
		Int("rc", rc).
		Str("role", rsc.Role.String()).
		Msg("Unpacking operation")
	if n.Unclean {
		logger.Trace().Msg("Node is unclean, further action depends on the stop's on-fail")
	}

	// Older executors reported error here; deciding is up to us
	if status == types.OpError {
		status = types.OpDone
	}

	expired := false
	if status != types.OpNotInstalled {
		expired = r.checkOperationExpiry(rsc, n, rc, op)
	}

	// Degraded results are informational and shown as failures only
	if rc == types.RCDegraded && task == types.TaskMonitor {
		rc = types.RCOK
		if !n.Shutdown || n.Online {
			r.recordFailedOp(rsc, n, op)
		}
	} else if rc == types.RCDegradedMaster && task == types.TaskMonitor {
		rc = types.RCRunningMaster
		if !n.Shutdown || n.Online {
			r.recordFailedOp(rsc, n, op)
		}
	}

	if expired && targetRC != rc {
		if op.Interval == 0 {
			logger.Info().Int("rc", rc).Str("magic", op.Magic).Msg("Ignoring expired calculated failure")
			return
		}
		if n.Online && !n.Unclean {
			logger.Info().Int("rc", rc).Str("magic", op.Magic).Msg("Re-initiated expired calculated failure")
			r.customAction(rsc, task, op.Interval, n, false, "calculated-failure-timeout")
			return
		}
	}

	if status == types.OpDone {
		status = r.determineOpStatus(rsc, n, op, rc, targetRC, onFail)
	}

	switch status {
	case types.OpCancelled:
		logger.Error().Msg("Don't know what to do for cancelled ops yet")

	case types.OpPending:
		switch {
		case task == types.TaskStart:
			rsc.Set(types.FlagStartPending)
			r.setActive(rsc)
		case task == types.TaskPromote:
			rsc.Role = types.RoleMaster
		case task == types.TaskMigrateTo && n.Unclean:
			// The target must be stopped when the source cannot finish
			if target := r.ws.FindNode(op.MigrateTarget); target != nil {
				r.stopAction(rsc, target, "pending migration on unclean node")
			}
		}
		if rsc.PendingTask == "" && !op.IsProbe() {
			rsc.PendingTask = task
		}

	case types.OpDone:
		logger.Trace().Msg("Operation completed")
		r.updateResourceState(rsc, n, op, rc, *lastFailure, onFail)

	case types.OpNotInstalled:
		if strategy, _ := r.actionOnFail(rsc, task, op.Interval); strategy == types.OnFailIgnore {
			logger.Warn().Int("rc", rc).Msg("Cannot ignore failed operation: resource agent doesn't exist")
			*onFail = types.OnFailMigrate
		}
		r.ws.AddConstraint(types.LocationConstraint{
			ID: "hard-error", ResourceID: parent.ID, NodeID: n.ID, Score: types.MinusInfinity,
		})
		r.opFailure(rsc, n, op, rc, lastFailure, onFail)

	case types.OpError, types.OpErrorHard, types.OpErrorFatal, types.OpTimeout, types.OpNotSupported:
		strategy, _ := r.actionOnFail(rsc, task, op.Interval)
		if strategy == types.OnFailIgnore || (strategy == types.OnFailRestartContainer && task == types.TaskStop) {
			logger.Warn().Msgf("Pretending the failure of %s (rc=%d) on %s succeeded", op.OpKey(), rc, n.Name)
			r.updateResourceState(rsc, n, op, targetRC, *lastFailure, onFail)
			rsc.Set(types.FlagFailureIgnored)
			r.recordFailedOp(rsc, n, op)
			if strategy == types.OnFailRestartContainer && onFailSeverity(*onFail) <= onFailSeverity(types.OnFailRecover) {
				*onFail = strategy
			}
			break
		}

		r.opFailure(rsc, n, op, rc, lastFailure, onFail)
		switch status {
		case types.OpErrorHard:
			ev := logger.Error()
			if rc == types.RCNotInstalled {
				ev = logger.Info()
			}
			ev.Str("parent", parent.ID).Str("result", types.RCString(rc)).Msg("Preventing resource from re-starting on this node")
			r.ws.AddConstraint(types.LocationConstraint{
				ID: "hard-error", ResourceID: parent.ID, NodeID: n.ID, Score: types.MinusInfinity,
			})
		case types.OpErrorFatal:
			logger.Error().Str("parent", parent.ID).Str("result", types.RCString(rc)).Msg("Preventing resource from re-starting anywhere")
			r.ws.AddConstraint(types.LocationConstraint{
				ID: "fatal-error", ResourceID: parent.ID, Score: types.MinusInfinity,
			})
		}
	}

	logger.Trace().
		Str("role", rsc.Role.String()).
		Str("next_role", rsc.NextRole.String()).
		Msg("Resource state after operation")
}
