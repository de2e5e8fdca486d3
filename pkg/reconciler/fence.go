package reconciler

import (
	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/types"
)

// fenceNode declares a node unclean. Guest nodes are recovered through
// their container instead of being fenced. Calling it again for a node that
// is already unclean changes nothing.
func (r *Reconciler) fenceNode(n *types.Node, reason string) {
	logger := r.nodeLogger(n).With().Str("reason", reason).Logger()

	if n.IsGuest() {
		rsc := r.ws.RemoteResource(n)
		container := r.ws.Container(rsc)
		switch {
		case container == nil:
			logger.Warn().Msg("Guest node has no container to recover")
		case container.Is(types.FlagFailed):
		case !container.Is(types.FlagManaged):
			logger.Info().
				Str("container", container.ID).
				Msg("Not fencing guest node: its guest resource is unmanaged")
		default:
			logger.Warn().
				Str("container", container.ID).
				Msg("Guest node will be fenced by recovering its guest resource")
			n.RemoteRequiresReset = true
			container.Set(types.FlagFailed)
			r.recorder.Record(events.EventGuestRecovery, n.Name, container.ID, reason, nil)
		}
		return
	}

	if rsc := r.ws.RemoteResource(n); n.IsRemote() && rsc != nil &&
		rsc.ContainerID == "" && rsc.Is(types.FlagOrphanContainerFiller) {
		logger.Info().
			Str("resource", rsc.ID).
			Msg("Cleaning up dangling connection for guest node: guest resource no longer exists")
		rsc.Set(types.FlagFailed)
		return
	}

	if n.IsRemote() {
		rsc := r.ws.RemoteResource(n)
		if rsc != nil && !rsc.Is(types.FlagManaged) {
			logger.Info().Msg("Not fencing remote node: connection is unmanaged")
			return
		}
		if !n.RemoteRequiresReset {
			n.RemoteRequiresReset = true
			logger.Warn().Bool("can_fence", r.canFence(n)).Msg("Remote node will be fenced")
		}
		r.markUnclean(n, reason)
		return
	}

	if n.Unclean {
		logger.Trace().Bool("can_fence", r.canFence(n)).Msg("Cluster node is already unclean")
		return
	}
	logger.Warn().Bool("can_fence", r.canFence(n)).Msg("Cluster node will be fenced")
	r.markUnclean(n, reason)
}

func (r *Reconciler) markUnclean(n *types.Node, reason string) {
	if !n.Unclean {
		r.recorder.Record(events.EventNodeUnclean, n.Name, "", reason, nil)
	}
	n.Unclean = true
	if n.FenceReason == "" {
		n.FenceReason = reason
	}
	r.requestFence(n, reason)
}

// requestFence records one fence request per node, only when fencing is
// enabled
func (r *Reconciler) requestFence(n *types.Node, reason string) {
	if !r.ws.Config.StonithEnabled {
		return
	}
	req := types.FenceRequest{
		NodeID:   n.ID,
		NodeName: n.Name,
		Reason:   reason,
		Action:   r.ws.Config.StonithAction,
		CanFence: r.canFence(n),
	}
	if r.ws.AddFenceRequest(req) {
		r.recorder.Record(events.EventFenceRequested, n.Name, "", reason, map[string]string{
			"action": req.Action,
			"kind":   string(n.Kind),
		})
	}
}

// canFence reports whether the cluster is able to fence a node right now
func (r *Reconciler) canFence(n *types.Node) bool {
	if n != nil && n.IsGuest() {
		return true
	}
	opts := r.ws.Config
	switch {
	case !opts.StonithEnabled:
		return false
	case !r.ws.HasFencingResource:
		return false
	case r.ws.HaveQuorum:
		return true
	case opts.NoQuorumPolicy == types.NoQuorumIgnore:
		return true
	case n == nil:
		return false
	case n.Online:
		r.nodeLogger(n).Info().Msg("We can fence node without quorum because it is in our membership")
		return true
	}
	r.nodeLogger(n).Trace().Msg("Cannot fence node without quorum")
	return false
}
