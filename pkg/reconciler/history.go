package reconciler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/types"
)

// rscHistory is the operation history of one resource on one node
type rscHistory struct {
	ID        string
	Class     string
	Provider  string
	Type      string
	Container string
	// Ops is sorted by call id
	Ops []*types.OpEntry
}

// opEntry converts a recorded operation. Entries without a task or with an
// out-of-range status are dropped with a warning.
func (r *Reconciler) opEntry(rscID, nodeName string, rec document.OpRecord) (*types.OpEntry, bool) {
	op, err := newOpEntry(rec)
	if err != nil {
		r.configWarn("Skipping operation %s of %s on %s: %v", rec.ID, rscID, nodeName, err)
		return nil, false
	}
	return op, true
}

func newOpEntry(rec document.OpRecord) (*types.OpEntry, error) {
	if rec.Operation == "" {
		return nil, fmt.Errorf("no task")
	}
	status := types.OpStatus(rec.OpStatus)
	if status < types.OpPending || status > types.OpNotInstalled {
		return nil, fmt.Errorf("invalid status %d", rec.OpStatus)
	}
	return &types.OpEntry{
		ID:            rec.ID,
		Task:          rec.Operation,
		Key:           rec.OperationKey,
		CallID:        rec.CallID,
		Interval:      time.Duration(rec.Interval) * time.Millisecond,
		RC:            rec.RCCode,
		Status:        status,
		TransitionKey: rec.TransitionKey,
		Magic:         rec.TransitionMagic,
		MigrateSource: rec.MigrateSource,
		MigrateTarget: rec.MigrateTarget,
		LastRCChange:  rec.LastRCChange,
		LastRun:       rec.LastRun,
		OpDigest:      rec.OpDigest,
		RestartDigest: rec.RestartDigest,
	}, nil
}

// sortOps orders entries by call id. Pending entries (call id -1) go last.
func sortOps(ops []*types.OpEntry) {
	sort.SliceStable(ops, func(i, j int) bool {
		a, b := ops[i].CallID, ops[j].CallID
		switch {
		case a == b:
			return false
		case a < 0:
			return false
		case b < 0:
			return true
		}
		return a < b
	})
}

// loadHistories converts and caches the histories of one status entry
func (r *Reconciler) loadHistories(n *types.Node, st *document.NodeState) []*rscHistory {
	if h, ok := r.histories[n.ID]; ok {
		return h
	}
	var out []*rscHistory
	for _, rh := range st.Resources {
		if rh.ID == "" {
			r.configWarn("Skipping resource history without id on %s", n.Name)
			continue
		}
		h := &rscHistory{
			ID:        rh.ID,
			Class:     rh.Class,
			Provider:  rh.Provider,
			Type:      rh.Type,
			Container: rh.Container,
		}
		for _, rec := range rh.Ops {
			if op, ok := r.opEntry(rh.ID, n.Name, rec); ok {
				h.Ops = append(h.Ops, op)
			}
		}
		sortOps(h.Ops)
		out = append(out, h)
	}
	r.histories[n.ID] = out
	return out
}

func (r *Reconciler) unpackLRMResources(n *types.Node, st *document.NodeState) {
	r.nodeLogger(n).Trace().Msg("Unpacking resources")

	foundFiller := false
	for _, h := range r.loadHistories(n, st) {
		rsc := r.unpackRscState(n, h)
		if r.err != nil {
			return
		}
		if rsc != nil && rsc.Is(types.FlagOrphanContainerFiller) {
			foundFiller = true
		}
	}

	if foundFiller {
		r.handleOrphanedContainerFillers(r.histories[n.ID])
	}
}

// handleOrphanedContainerFillers links orphaned fillers to the container
// named in their history
func (r *Reconciler) handleOrphanedContainerFillers(histories []*rscHistory) {
	for _, h := range histories {
		if h.Container == "" {
			continue
		}
		container := r.ws.FindResource(h.Container)
		if container == nil {
			continue
		}
		rsc := r.ws.FindResource(h.ID)
		if rsc == nil || !rsc.Is(types.FlagOrphanContainerFiller) || rsc.ContainerID != "" {
			continue
		}
		r.rscLogger(rsc).Trace().Str("container", container.ID).Msg("Mapped container of orphaned resource")
		rsc.ContainerID = container.ID
		container.Fillers = append(container.Fillers, rsc)
	}
}

// unpackRscState replays one resource's history on a node and returns the
// resource it was attributed to
func (r *Reconciler) unpackRscState(n *types.Node, h *rscHistory) *types.Resource {
	if len(h.Ops) == 0 {
		return nil
	}

	rsc, obsolete := r.unpackFindResource(n, h.ID)
	if r.err != nil {
		return nil
	}
	if obsolete {
		r.logger.Debug().Str("resource", h.ID).Str("node", n.Name).Msg("Ignoring obsolete history of a resource that is no longer primitive")
		return nil
	}
	if rsc == nil {
		rsc = r.processOrphan(h, n)
	}
	if rsc.Variant != types.VariantPrimitive {
		r.invariant("history of %s on %s resolved to %s %s", h.ID, n.Name, rsc.Variant, rsc.ID)
		return nil
	}

	saved := rsc.Role
	onFail := types.OnFailIgnore
	rsc.Role = types.RoleUnknown

	var lastFailure *types.OpEntry
	for _, op := range h.Ops {
		r.unpackRscOp(rsc, n, op, &lastFailure, &onFail)
		if r.err != nil {
			return nil
		}
	}

	start, stop := calculateActiveOps(h.Ops)
	r.processRecurring(n, rsc, start, stop, h.Ops)
	r.processRscState(rsc, n, onFail)

	if req, ok := r.targetRole(rsc); ok {
		if rsc.NextRole == types.RoleUnknown || req < rsc.NextRole {
			r.rscLogger(rsc).Debug().
				Str("calculated", rsc.NextRole.String()).
				Str("requested", req.String()).
				Msg("Overwriting calculated next role with requested next role")
			rsc.NextRole = req
		} else if req > rsc.NextRole {
			r.rscLogger(rsc).Info().
				Str("calculated", rsc.NextRole.String()).
				Str("requested", req.String()).
				Msg("Not overwriting calculated next role with requested next role")
		}
	}

	if saved > rsc.Role {
		rsc.Role = saved
	}
	return rsc
}

// targetRole returns the role requested through the target-role meta
// attribute, if it restricts the resource at all
func (r *Reconciler) targetRole(rsc *types.Resource) (types.Role, bool) {
	v, ok := rsc.Meta[metaTargetRole]
	if !ok || strings.EqualFold(v, "started") || strings.EqualFold(v, "default") {
		return types.RoleUnknown, false
	}
	role, valid := types.ParseRole(v)
	if !valid || role == types.RoleUnknown {
		r.configErrorOnce("%s: Unknown value for %s: %s", rsc.ID, metaTargetRole, v)
		return types.RoleUnknown, false
	}
	if role > types.RoleStarted {
		if !r.ws.UberParent(rsc).Is(types.FlagPromotable) {
			r.configErrorOnce("%s is not part of a promotable clone resource, a %s of '%s' makes no sense", rsc.ID, metaTargetRole, v)
			return types.RoleUnknown, false
		}
		if role > types.RoleSlave {
			return types.RoleUnknown, false
		}
	}
	return role, true
}

// calculateActiveOps finds the index of the last successful stop and of the
// operation that last started the resource, -1 when absent
func calculateActiveOps(ops []*types.OpEntry) (start, stop int) {
	start, stop = -1, -1
	impliedMonitorStart, impliedCloneStart := -1, -1

	for i, op := range ops {
		switch {
		case op.Task == types.TaskStop && op.Status == types.OpDone:
			stop = i
		case op.Task == types.TaskStart || op.Task == types.TaskMigrateFrom:
			start = i
		case impliedMonitorStart <= stop && op.Task == types.TaskMonitor:
			if op.RC == types.RCOK || op.RC == types.RCRunningMaster {
				impliedMonitorStart = i
			}
		case op.Task == types.TaskPromote || op.Task == types.TaskDemote:
			impliedCloneStart = i
		}
	}

	if start == -1 {
		if impliedCloneStart != -1 {
			start = impliedCloneStart
		} else if impliedMonitorStart != -1 {
			start = impliedMonitorStart
		}
	}
	return start, stop
}

// processRecurring re-creates the recurring operations that were active
// after the last start as optional actions
func (r *Reconciler) processRecurring(n *types.Node, rsc *types.Resource, start, stop int, ops []*types.OpEntry) {
	logger := r.rscLogger(rsc)
	for i, op := range ops {
		if !n.Online {
			logger.Trace().Str("node", n.Name).Msg("Skipping recurring operations: node is offline")
			break
		}
		if start < stop && i <= stop {
			logger.Trace().Str("op", op.ID).Msg("Skipping recurring operation: resource is not active")
			continue
		}
		if i < start {
			logger.Trace().Str("op", op.ID).Msg("Skipping recurring operation: old")
			continue
		}
		if op.Interval == 0 {
			continue
		}
		if op.Status == types.OpPending {
			logger.Trace().Str("op", op.ID).Msg("Skipping recurring operation: pending")
			continue
		}
		r.customAction(rsc, op.Task, op.Interval, n, true, "")
	}
}

// processRscState applies the outcome of a replayed history
func (r *Reconciler) processRscState(rsc *types.Resource, n *types.Node, onFail types.OnFail) {
	logger := r.rscLogger(rsc).With().Str("node", n.Name).Logger()
	logger.Trace().
		Str("role", rsc.Role.String()).
		Str("on_fail", onFail.String()).
		Msg("Processing resource state")

	if rsc.Role != types.RoleUnknown {
		for iter := rsc; iter != nil; iter = r.ws.Parent(iter) {
			if _, ok := iter.KnownOn[n.ID]; !ok {
				iter.KnownOn[n.ID] = n.Snapshot()
			}
			if iter.Variant == types.VariantPrimitive {
				n.KnownResources[iter.ID] = true
			}
			if iter.Is(types.FlagUnique) {
				break
			}
		}
	}

	if rsc.Role > types.RoleStopped && !n.Online && !n.Maintenance && rsc.Is(types.FlagManaged) {
		shouldFence := false
		reason := ""
		if n.IsGuest() {
			// the container must be restarted with this resource recovered
			rsc.Set(types.FlagFailed)
			shouldFence = true
		} else if r.ws.Config.StonithEnabled {
			if conn := r.ws.RemoteResource(n); n.IsBaremetalRemote() && conn != nil && !conn.Is(types.FlagFailed) {
				n.Unseen = true
				reason = rsc.ID + " is active there (fencing will be revoked if remote connection can be re-established elsewhere)"
			}
			shouldFence = true
		}
		if shouldFence {
			if reason == "" {
				reason = rsc.ID + " is thought to be active there"
			}
			r.fenceNode(n, reason)
		}
	}

	if n.Unclean {
		// Lets the resource be started again once the node is shot
		onFail = types.OnFailIgnore
	}

	switch onFail {
	case types.OnFailIgnore:
	case types.OnFailFence:
		r.fenceNode(n, rsc.ID+" failed there")
	case types.OnFailStandby:
		n.Standby = true
		n.StandbyOnFail = true
	case types.OnFailBlock:
		rsc.Clear(types.FlagManaged)
		rsc.Set(types.FlagBlock)
	case types.OnFailMigrate:
		r.ws.AddConstraint(types.LocationConstraint{
			ID: "__action_migration_auto__", ResourceID: rsc.ID, NodeID: n.ID, Score: types.MinusInfinity,
		})
	case types.OnFailStop:
		rsc.NextRole = types.RoleStopped
	case types.OnFailRecover:
		if rsc.Role != types.RoleStopped && rsc.Role != types.RoleUnknown {
			rsc.Set(types.FlagFailed)
			r.stopAction(rsc, n, "recover")
		}
	case types.OnFailRestartContainer:
		rsc.Set(types.FlagFailed)
		if container := r.ws.Container(rsc); container != nil {
			r.stopAction(container, n, "restart-container")
		} else if rsc.Role != types.RoleStopped && rsc.Role != types.RoleUnknown {
			r.stopAction(rsc, n, "restart-container")
		}
	case types.OnFailResetRemote:
		rsc.Set(types.FlagFailed)
		if r.ws.Config.StonithEnabled && rsc.Is(types.FlagRemoteConnection) {
			if remote := r.ws.FindNode(rsc.ID); remote != nil && remote.IsBaremetalRemote() && !remote.RemoteWasFenced {
				r.fenceNode(remote, "remote connection is unrecoverable")
			}
		}
		if rsc.Role > types.RoleStopped {
			r.stopAction(rsc, n, "reset-remote")
		}
		if rsc.RemoteReconnect > 0 {
			rsc.NextRole = types.RoleStopped
		}
	}

	// A failed connection must fence its unclean node whether or not a
	// reconnect is attempted this run
	if rsc.Is(types.FlagFailed) && rsc.Is(types.FlagRemoteConnection) {
		if remote := r.ws.FindNode(rsc.ID); remote != nil && remote.Unclean {
			remote.Unseen = false
		}
	}

	if rsc.Role != types.RoleStopped && rsc.Role != types.RoleUnknown {
		if rsc.Is(types.FlagOrphan) {
			if rsc.Is(types.FlagManaged) {
				r.configWarn("Detected active orphan %s running on %s", rsc.ID, n.Name)
			} else {
				r.configWarn("Cluster configured not to stop active orphans. %s must be stopped manually on %s", rsc.ID, n.Name)
			}
		}
		r.addRunning(rsc, n)
		if onFail != types.OnFailIgnore {
			rsc.Set(types.FlagFailed)
		}
	} else if strings.Contains(rsc.CloneName, ":") {
		logger.Trace().Str("clone_name", rsc.CloneName).Msg("Resetting clone name (stopped)")
		rsc.CloneName = ""
	} else {
		r.makeStopsOptional(rsc, n)
	}
}

// addRunning records that rsc is active on n and propagates the location
// to its parents
func (r *Reconciler) addRunning(rsc *types.Resource, n *types.Node) {
	if rsc.RunsOn(n.ID) {
		return
	}
	logger := r.rscLogger(rsc)
	logger.Trace().Str("node", n.Name).Bool("managed", rsc.Is(types.FlagManaged)).Msg("Adding running location")

	rsc.AddRunningOn(n.ID)
	if rsc.Variant == types.VariantPrimitive {
		n.AddRunning(rsc.ID)
		if n.Maintenance {
			rsc.Clear(types.FlagManaged)
		}
	}

	if !rsc.Is(types.FlagManaged) {
		logger.Info().Msg("Resource isn't managed")
		r.ws.AddConstraint(types.LocationConstraint{
			ID: "not_managed_default", ResourceID: rsc.ID, NodeID: n.ID, Score: types.Infinity,
		})
		for p := r.ws.Parent(rsc); p != nil && n.Online; p = r.ws.Parent(p) {
			p.AddRunningOn(n.ID)
		}
		return
	}

	if rsc.Variant == types.VariantPrimitive && len(rsc.RunningOn) > 1 {
		switch rsc.MultipleActive {
		case types.MultipleActiveStopOnly:
			r.ws.AddConstraint(types.LocationConstraint{
				ID: "multiple_active_stop_only", ResourceID: rsc.ID, Score: types.MinusInfinity,
			})
		case types.MultipleActiveBlock:
			rsc.Clear(types.FlagManaged)
			rsc.Set(types.FlagBlock)
			parent := r.ws.Parent(rsc)
			if parent != nil && (parent.Variant == types.VariantGroup || parent.Variant == types.VariantContainer) &&
				parent.MultipleActive == types.MultipleActiveBlock {
				for _, child := range parent.Children {
					child.Clear(types.FlagManaged)
					child.Set(types.FlagBlock)
				}
			}
		}
		logger.Debug().
			Str("node", n.Name).
			Str("recovery", string(rsc.MultipleActive)).
			Msg("Resource is active on multiple nodes")
	}

	if parent := r.ws.Parent(rsc); parent != nil {
		r.addRunning(parent, n)
	}
}

// setActive marks a resource as running in the lowest active role
func (r *Reconciler) setActive(rsc *types.Resource) {
	if r.ws.UberParent(rsc).Is(types.FlagPromotable) {
		rsc.Role = types.RoleSlave
		return
	}
	rsc.Role = types.RoleStarted
}

