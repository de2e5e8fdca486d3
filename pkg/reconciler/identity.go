package reconciler

import (
	"fmt"
	"slices"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/types"
)

// unpackFindResource resolves the resource a history id belongs to. Anonymous
// clone histories are mapped to a concrete instance. obsolete is set when the
// id now names a group, clone or container.
func (r *Reconciler) unpackFindResource(n *types.Node, id string) (rsc *types.Resource, obsolete bool) {
	var parent *types.Resource

	rsc = r.ws.FindResource(id)
	switch {
	case rsc == nil:
		// Even a clone with no instances has an orphan :0 to match against
		clone0 := r.ws.FindResource(types.CloneZero(id))
		if clone0 != nil && !clone0.Is(types.FlagUnique) {
			rsc = clone0
			parent = r.ws.UberParent(clone0)
			r.logger.Trace().Str("resource", id).Str("instance", clone0.ID).Msg("Found history as clone instance")
		} else {
			r.logger.Trace().Str("resource", id).Msg("History does not match any resource (orphan)")
		}
	case rsc.Variant != types.VariantPrimitive:
		return nil, true
	default:
		parent = r.ws.UberParent(rsc)
	}

	if parent != nil && parent.IsAnonymousClone() {
		rsc = r.findAnonymousClone(n, parent, types.CloneStrip(id))
		if rsc == nil {
			r.invariant("no instance of %s available for %s on %s", parent.ID, id, n.Name)
			return nil, false
		}
	}

	if rsc != nil && id != rsc.ID && id != rsc.CloneName {
		rsc.CloneName = id
		r.rscLogger(rsc).Debug().
			Str("history_id", id).
			Str("node", n.Name).
			Bool("orphan", rsc.Is(types.FlagOrphan)).
			Msg("Internally renamed resource")
	}
	return rsc, false
}

// findAnonymousClone picks the instance of an anonymous clone that a
// history entry on n belongs to: the instance already active there, else
// the first free instance, else a new orphan instance.
func (r *Reconciler) findAnonymousClone(n *types.Node, parent *types.Resource, base string) *types.Resource {
	logger := r.rscLogger(parent).With().Str("node", n.Name).Str("base", base).Logger()
	logger.Trace().Msg("Looking for clone instance")

	var rsc, inactive *types.Resource
	skipInactive := false

	for _, child := range parent.Children {
		if rsc != nil {
			break
		}
		locations := child.Locations()
		if len(locations) > 0 {
			if len(locations) > 1 {
				logger.Warn().Str("instance", child.ID).Strs("nodes", locations).Msg("Anonymous clone instance is active on several nodes")
			}
			if !slices.Contains(locations, n.ID) {
				continue
			}
			rsc = child.FindByBaseName(base)
			if rsc != nil && len(rsc.RunningOn) > 0 {
				logger.Info().Msg("Active (now-)anonymous clone has multiple (orphan) instance histories")
				skipInactive = true
				rsc = nil
			}
			continue
		}

		if !skipInactive && inactive == nil && !child.Is(types.FlagBlock) {
			inactive = child.FindByBaseName(base)
		}
	}

	if rsc == nil && !skipInactive && inactive != nil {
		logger.Trace().Str("instance", inactive.ID).Msg("Using empty clone slot")
		rsc = inactive
	}

	if rsc == nil {
		instance := r.createOrphanInstance(parent)
		if instance == nil {
			return nil
		}
		rsc = instance.FindByBaseName(base)
		logger.Trace().Str("instance", instance.ID).Msg("Created orphan clone instance")
	}
	return rsc
}

// createOrphanInstance adds a numbered instance beyond the configured ones
func (r *Reconciler) createOrphanInstance(clone *types.Resource) *types.Resource {
	def, ok := r.cloneDefs[clone.ID]
	if !ok {
		return nil
	}
	instance := r.buildResource(instanceDef(def, len(clone.Children)), clone)
	instance.Walk(func(rsc *types.Resource) { rsc.Set(types.FlagOrphan) })
	clone.Children = append(clone.Children, instance)
	return instance
}

// processOrphan creates a resource for history that matches nothing in the
// configuration
func (r *Reconciler) processOrphan(h *rscHistory, n *types.Node) *types.Resource {
	r.logger.Debug().Str("resource", h.ID).Str("node", n.Name).Msg("Detected orphan resource")

	def := document.ResourceDef{
		ID:       h.ID,
		Kind:     document.KindPrimitive,
		Class:    h.Class,
		Provider: h.Provider,
		Type:     h.Type,
	}
	rsc := r.buildResource(def, nil)

	if rsc.Is(types.FlagRemoteConnection) {
		r.logger.Debug().Str("node", h.ID).Msg("Detected orphaned remote node")
		remote := r.ws.FindNode(h.ID)
		if remote == nil {
			remote = r.createNode(h.ID, h.ID, "remote", "")
		}
		r.linkRemoteNode(rsc)
		r.nodeLogger(remote).Trace().Msg("Setting node as shutting down due to orphaned connection resource")
		remote.Shutdown = true
	}

	if h.Container != "" {
		r.rscLogger(rsc).Trace().Str("container", h.Container).Msg("Detected orphaned container filler")
		rsc.Set(types.FlagOrphanContainerFiller)
	}
	rsc.Set(types.FlagOrphan)
	r.ws.Resources = append(r.ws.Resources, rsc)

	if !r.ws.Config.StopOrphanResources {
		rsc.Clear(types.FlagManaged)
	} else {
		r.ws.AddConstraint(types.LocationConstraint{
			ID: "__orphan_dont_run__", ResourceID: rsc.ID, Score: types.MinusInfinity,
		})
	}

	r.recorder.Record(events.EventResourceOrphan, n.Name, rsc.ID,
		fmt.Sprintf("history of %s on %s matches no configured resource", h.ID, n.Name),
		map[string]string{"class": h.Class, "type": h.Type})
	return rsc
}
