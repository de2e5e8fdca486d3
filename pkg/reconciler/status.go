package reconciler

import (
	"github.com/cuemby/crmcore/pkg/config"
	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/types"
)

// Peer states reported in node status entries
const (
	crmdOnline = "online"

	joinMember  = "member"
	joinDown    = "down"
	joinPending = "pending"
	joinBanned  = "banned"
)

// Node attributes that change how a node is treated
const (
	attrShutdown          = "shutdown"
	attrTerminate         = "terminate"
	attrStandby           = "standby"
	attrMaintenance       = "maintenance"
	attrResourceDiscovery = "resource-discovery-enabled"
)

func (r *Reconciler) unpackTickets() {
	for _, t := range r.doc.Status.Tickets {
		if t.ID == "" {
			r.configError("Failed unpacking ticket: missing id")
			continue
		}
		ticket, ok := r.ws.Tickets[t.ID]
		if !ok {
			ticket = &types.Ticket{ID: t.ID, State: make(map[string]string)}
			r.ws.Tickets[t.ID] = ticket
		}
		for k, v := range t.Attributes {
			ticket.State[k] = v
		}
		ticket.Granted = t.Granted
		ticket.Standby = t.Standby
		if t.LastGranted > 0 {
			ticket.LastGranted = t.LastGranted
		}
		r.logger.Trace().Str("ticket", t.ID).Bool("granted", t.Granted).Msg("Unpacked ticket")
	}
}

func (r *Reconciler) unpackStatus() {
	r.unpackTickets()

	for i := range r.doc.Status.Nodes {
		st := &r.doc.Status.Nodes[i]
		if st.Uname == "" {
			r.logger.Trace().Str("id", st.ID).Msg("Skipping status entry without a name")
			continue
		}
		n := r.ws.FindNodeAny(st.ID, st.Uname)
		if n == nil {
			r.configWarn("Node %s in status section no longer exists", st.Uname)
			continue
		}

		if n.IsRemote() {
			// Everything else waits until the connection state is known
			n.RemoteWasFenced = st.NodeFenced
			continue
		}

		n.Unclean = false
		n.Unseen = false
		r.addNodeAttrs(n, st.Attributes, true)

		if v, _ := n.Attr(attrStandby); config.IsTrue(v) {
			r.nodeLogger(n).Info().Msg("Node is in standby-mode")
			n.Standby = true
		}
		if v, _ := n.Attr(attrMaintenance); config.IsTrue(v) {
			r.nodeLogger(n).Info().Msg("Node is in maintenance-mode")
			n.Maintenance = true
		}
		if v, ok := n.Attr(attrResourceDiscovery); ok && !config.IsTrue(v) {
			r.configWarn("Ignoring %s attribute on cluster node %s", attrResourceDiscovery, n.Name)
		}

		r.determineOnlineStatus(st, n)

		if n.Online && !r.ws.HaveQuorum && r.ws.Config.NoQuorumPolicy == types.NoQuorumSuicide {
			r.fenceNode(n, "cluster does not have quorum")
			n.Online = false
			n.Ban()
		}
	}

	limit := len(r.ws.Nodes) + 1
	for pass := 0; r.unpackNodeLoop(false); pass++ {
		if pass >= limit {
			r.invariant("node history replay did not settle after %d passes", pass)
			return
		}
		r.logger.Trace().Int("pass", pass).Msg("Start another loop")
	}
	// Without fencing, offline nodes keep their histories unreplayed
	r.unpackNodeLoop(r.ws.Config.StonithEnabled)

	for _, n := range r.ws.Nodes {
		if n.IsRemote() && !n.Unpacked {
			r.determineRemoteOnlineStatus(n)
		}
	}
}

// unpackNodeLoop replays the histories of every node that is ready to be
// processed. A remote node is ready once its connection is known to be
// started. With force set every remaining node is processed.
func (r *Reconciler) unpackNodeLoop(force bool) bool {
	changed := false
	for i := range r.doc.Status.Nodes {
		if r.err != nil {
			return false
		}
		st := &r.doc.Status.Nodes[i]
		n := r.ws.FindNodeAny(st.ID, st.Uname)
		if n == nil || n.Unpacked {
			continue
		}

		process := false
		switch {
		case !n.IsRemote() && r.ws.Config.StonithEnabled:
			process = true
		case n.IsRemote():
			if r.remoteReady(n, force) {
				r.determineRemoteOnlineStatus(n)
				r.handleRemoteAttrs(n, st)
				process = true
			}
		case n.Online:
			process = true
		case force:
			process = true
		}
		if !process {
			continue
		}

		r.nodeLogger(n).Trace().
			Bool("online", n.Online).
			Bool("unclean", n.Unclean).
			Msg("Processing resource history")
		changed = true
		n.Unpacked = true
		r.unpackLRMResources(n, st)
	}
	return changed
}

func (r *Reconciler) remoteReady(n *types.Node, force bool) bool {
	if force {
		return true
	}
	rsc := r.ws.RemoteResource(n)
	if rsc == nil {
		return false
	}
	if n.IsGuest() {
		container := r.ws.Container(rsc)
		return rsc.Role == types.RoleStarted && container != nil && container.Role == types.RoleStarted
	}
	return rsc.Role == types.RoleStarted
}

// determineOnlineStatus derives whether a cluster node can run resources
func (r *Reconciler) determineOnlineStatus(st *document.NodeState, n *types.Node) bool {
	online := false

	n.Shutdown = false
	n.ExpectedUp = false
	if v, ok := n.Attr(attrShutdown); ok && v != "" && v != "0" {
		n.Shutdown = true
	} else if st.Expected == joinMember {
		n.ExpectedUp = true
	}

	switch {
	case n.Kind == types.NodePing:
		n.Unclean = false
		online = false
	case !r.ws.Config.StonithEnabled:
		online = r.onlineWithoutFencing(st, n)
	default:
		online = r.onlineWithFencing(st, n)
	}

	if online {
		n.Online = true
	} else {
		n.Ban()
	}
	if n.Online && n.Shutdown {
		n.Ban()
	}

	logger := r.nodeLogger(n)
	switch {
	case n.Kind == types.NodePing:
		logger.Info().Msg("Node is not a cluster member")
	case n.Unclean:
		logger.Warn().Str("reason", n.FenceReason).Msg("Node is unclean")
	case n.Online && n.Pending:
		logger.Info().Msg("Node is pending")
	case n.Online && n.Standby:
		logger.Info().Msg("Node is standby")
	case n.Online && n.Shutdown:
		logger.Info().Msg("Node is shutting down")
	case n.Online:
		logger.Info().Msg("Node is online")
	default:
		logger.Info().Msg("Node is offline")
	}
	return online
}

func inCluster(st *document.NodeState) bool {
	return st.InCluster != nil && *st.InCluster
}

func (r *Reconciler) onlineWithoutFencing(st *document.NodeState, n *types.Node) bool {
	logger := r.nodeLogger(n)
	switch {
	case !inCluster(st):
		logger.Trace().Msg("Node is down: not in cluster")
	case st.Crmd == crmdOnline:
		if st.Join == joinMember {
			return true
		}
		logger.Debug().Str("join", st.Join).Msg("Node is not ready to run resources")
	case !n.ExpectedUp:
		logger.Trace().Str("join", st.Join).Msg("Node is down")
	default:
		r.fenceNode(n, "peer is unexpectedly down")
		logger.Info().
			Bool("in_cluster", inCluster(st)).
			Str("crmd", st.Crmd).
			Str("join", st.Join).
			Str("expected", st.Expected).
			Msg("Node state is unexpected")
	}
	return false
}

// terminateRequested reports whether the terminate attribute is true or
// holds a timestamp
func terminateRequested(n *types.Node) bool {
	v, ok := n.Attr(attrTerminate)
	if !ok || v == "" {
		return false
	}
	if config.IsTrue(v) {
		return true
	}
	return v[0] != '0' && v[0] >= '0' && v[0] <= '9'
}

func (r *Reconciler) onlineWithFencing(st *document.NodeState, n *types.Node) bool {
	logger := r.nodeLogger(n)
	terminate := terminateRequested(n)
	member := inCluster(st)
	crmdUp := st.Crmd == crmdOnline
	expected := st.Expected
	if expected == "" {
		expected = joinDown
	}

	online := member
	switch {
	case n.Shutdown:
		logger.Debug().Msg("Node is shutting down")
		online = crmdUp

	case st.InCluster == nil:
		r.fenceNode(n, "peer has not been seen by the cluster")
		online = false

	case st.Join == joinBanned:
		r.fenceNode(n, "peer failed the pacemaker membership criteria")
		online = false

	case !terminate && expected == joinDown:
		if member || crmdUp {
			logger.Info().Msg("Node is not ready to run resources")
			n.Standby = true
			n.Pending = true
		} else {
			logger.Trace().Msg("Node is down or still coming up")
		}

	case terminate && st.Join == joinDown && !member && !crmdUp:
		logger.Info().Msg("Node was just shot")
		online = false

	case !member:
		r.fenceNode(n, "peer is no longer part of the cluster")
		online = false

	case !crmdUp:
		r.fenceNode(n, "peer process is no longer available")
		online = false

	case terminate:
		r.fenceNode(n, "termination was requested")
		online = false

	case st.Join == joinMember:
		logger.Info().Msg("Node is active")

	case st.Join == joinPending || st.Join == joinDown:
		logger.Info().Msg("Node is not ready to run resources")
		n.Standby = true
		n.Pending = true

	default:
		r.fenceNode(n, "peer was in an unknown state")
		online = false
		logger.Warn().
			Bool("in_cluster", member).
			Str("crmd", st.Crmd).
			Str("join", st.Join).
			Str("expected", expected).
			Bool("terminate", terminate).
			Bool("shutdown", n.Shutdown).
			Msg("Node state is unknown")
	}
	return online
}

// determineRemoteOnlineStatus derives a remote node's state from its
// connection resource and, for guests, the container
func (r *Reconciler) determineRemoteOnlineStatus(n *types.Node) {
	rsc := r.ws.RemoteResource(n)
	logger := r.nodeLogger(n)

	if rsc == nil {
		n.Online = false
		n.Ban()
		logger.Trace().Msg("Remote node has no connection resource")
		return
	}

	container := r.ws.Container(rsc)
	var host *types.Node
	if container != nil && len(rsc.RunningOn) == 1 {
		host = r.ws.FindNodeByID(rsc.RunningOn[0])
	}

	if rsc.Role == types.RoleStarted {
		n.Online = true
		if rsc.NextRole == types.RoleStopped {
			n.Shutdown = true
		}
	}

	switch {
	case container != nil && container.Is(types.FlagFailed):
		logger.Trace().Msg("Guest node container failed")
		n.Online = false
		n.RemoteRequiresReset = true
	case rsc.Is(types.FlagFailed):
		logger.Trace().Msg("Remote node connection failed")
		n.Online = false
	case rsc.Role == types.RoleStopped || (container != nil && container.Role == types.RoleStopped):
		logger.Trace().Msg("Remote node connection stopped")
		n.Online = false
		n.RemoteRequiresReset = false
	case host != nil && !host.Online && host.Unclean:
		logger.Trace().Str("host", host.Name).Msg("Guest node host is unclean")
		n.Online = false
		n.RemoteRequiresReset = true
	}

	if !n.Online || n.Shutdown {
		n.Ban()
	}

	state := "offline"
	switch {
	case n.Shutdown:
		state = "shutting down"
	case n.Online:
		state = "online"
	case n.RemoteRequiresReset:
		state = "unclean"
	}
	logger.Trace().Str("state", state).Msg("Remote node state")
}

// handleRemoteAttrs applies the status entry of a remote node once its
// connection state is known
func (r *Reconciler) handleRemoteAttrs(n *types.Node, st *document.NodeState) {
	logger := r.nodeLogger(n)
	rsc := r.ws.RemoteResource(n)

	n.RemoteMaintenance = st.NodeInMaintenance
	if !n.RemoteRequiresReset {
		n.Unclean = false
		n.Unseen = false
	}
	r.addNodeAttrs(n, st.Attributes, true)

	if v, ok := n.Attr(attrShutdown); ok && v != "" && v != "0" {
		logger.Info().Msg("Node is shutting down")
		n.Shutdown = true
		if rsc != nil {
			rsc.NextRole = types.RoleStopped
		}
	}
	if v, _ := n.Attr(attrStandby); config.IsTrue(v) {
		logger.Info().Msg("Node is in standby-mode")
		n.Standby = true
	}
	if v, _ := n.Attr(attrMaintenance); config.IsTrue(v) || (rsc != nil && !rsc.Is(types.FlagManaged)) {
		logger.Info().Msg("Node is in maintenance-mode")
		n.Maintenance = true
	}

	if v, ok := n.Attr(attrResourceDiscovery); ok && !config.IsTrue(v) {
		if n.IsBaremetalRemote() && !r.ws.Config.StonithEnabled {
			r.configWarn("Ignoring %s attribute on remote node %s because fencing is disabled", attrResourceDiscovery, n.Name)
		} else {
			logger.Info().Msg("Node has resource discovery disabled")
			n.RscDiscoveryEnabled = false
		}
	}
}
