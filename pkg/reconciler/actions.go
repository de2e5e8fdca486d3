package reconciler

import (
	"time"

	"github.com/cuemby/crmcore/pkg/types"
)

// customAction records a scheduler hint for rsc on n. An existing action
// with the same key only ever becomes more mandatory.
func (r *Reconciler) customAction(rsc *types.Resource, task string, interval time.Duration, n *types.Node, optional bool, reason string) *types.Action {
	key := types.OpKey(rsc.ID, task, interval)
	if a := r.ws.FindAction(key, n.ID); a != nil {
		if !optional && a.Optional {
			a.Optional = false
			if reason != "" {
				a.Reason = reason
			}
		}
		return a
	}

	r.ws.AddAction(types.Action{
		Key:        key,
		ResourceID: rsc.ID,
		Task:       task,
		Interval:   interval,
		NodeID:     n.ID,
		Optional:   optional,
		Reason:     reason,
	})
	r.rscLogger(rsc).Trace().
		Str("action", key).
		Str("node", n.Name).
		Bool("optional", optional).
		Msg("Created action")
	return r.ws.FindAction(key, n.ID)
}

func (r *Reconciler) stopAction(rsc *types.Resource, n *types.Node, reason string) {
	r.customAction(rsc, types.TaskStop, 0, n, false, reason)
}

// makeStopsOptional relaxes stops of rsc on n once it is known to be stopped
func (r *Reconciler) makeStopsOptional(rsc *types.Resource, n *types.Node) {
	if a := r.ws.FindAction(types.OpKey(rsc.ID, types.TaskStop, 0), n.ID); a != nil {
		a.Optional = true
	}
}
