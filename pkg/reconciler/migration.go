package reconciler

import (
	"strings"

	"github.com/cuemby/crmcore/pkg/types"
)

// findLRMOp returns the most recent recorded operation of a resource with
// the given task on the named node. With source set only migrations from
// that node match.
func (r *Reconciler) findLRMOp(rsc *types.Resource, task, nodeName, source string) *types.OpEntry {
	if nodeName == "" {
		return nil
	}
	var found *types.OpEntry
	for _, st := range r.doc.Status.Nodes {
		if !strings.EqualFold(st.Uname, nodeName) {
			continue
		}
		for _, rh := range st.Resources {
			if rh.ID != rsc.ID && (rsc.CloneName == "" || rh.ID != rsc.CloneName) {
				continue
			}
			for _, rec := range rh.Ops {
				if rec.Operation != task || (source != "" && rec.MigrateSource != source) {
					continue
				}
				if found != nil && rec.CallID <= found.CallID {
					continue
				}
				if op, err := newOpEntry(rec); err == nil {
					found = op
				}
			}
		}
	}
	return found
}

// unpackRscMigration handles a successful migrate_to. A migration is
// complete once a stop follows it on the source. Otherwise a successful
// migrate_from on the target leaves a dangling source to clean up, a failed
// one leaves the resource active on the target, and a missing one makes the
// migration partial.
func (r *Reconciler) unpackRscMigration(rsc *types.Resource, n *types.Node, op *types.OpEntry) {
	logger := r.rscLogger(rsc)

	stop := r.findLRMOp(rsc, types.TaskStop, n.Name, "")
	if stop != nil && stop.CallID >= op.CallID {
		return
	}

	target := r.ws.FindNode(op.MigrateTarget)
	source := r.ws.FindNode(op.MigrateSource)
	from := r.findLRMOp(rsc, types.TaskMigrateFrom, op.MigrateTarget, op.MigrateSource)

	rsc.Role = types.RoleStarted

	switch {
	case from != nil && from.RC == types.RCOK && from.Status == types.OpDone:
		logger.Trace().Str("op", op.ID).Str("source", op.MigrateSource).Msg("Detected dangling migration")
		rsc.Role = types.RoleStopped
		rsc.DanglingMigrations = append(rsc.DanglingMigrations, n.ID)

	case from != nil:
		if target != nil && target.Online {
			logger.Trace().Str("target", target.Name).Msg("Marking active on migration target")
			r.addRunning(rsc, target)
		}

	default:
		if target != nil && target.Online {
			logger.Trace().Str("target", target.Name).Msg("Marking active on migration target")
			r.addRunning(rsc, target)
			if source != nil && source.Online {
				rsc.PartialMigrationTarget = target.ID
				rsc.PartialMigrationSource = source.ID
			}
		} else {
			// Forces a restart and prevents another migration attempt
			rsc.Set(types.FlagFailed)
			rsc.Clear(types.FlagAllowMigrate)
		}
	}
}

// migrationFailure handles a failed migrate_to or migrate_from
func (r *Reconciler) migrationFailure(rsc *types.Resource, n *types.Node, op *types.OpEntry) {
	switch op.Task {
	case types.TaskMigrateFrom:
		stop := r.findLRMOp(rsc, types.TaskStop, op.MigrateSource, "")
		migrate := r.findLRMOp(rsc, types.TaskMigrateTo, op.MigrateSource, op.MigrateTarget)
		rsc.Role = types.RoleStarted

		if stop == nil || stop.CallID < callID(migrate) {
			if source := r.ws.FindNode(op.MigrateSource); source != nil && source.Online {
				r.addRunning(rsc, source)
			}
		}

	case types.TaskMigrateTo:
		stop := r.findLRMOp(rsc, types.TaskStop, op.MigrateTarget, "")
		migrated := r.findLRMOp(rsc, types.TaskMigrateFrom, op.MigrateTarget, op.MigrateSource)
		rsc.Role = types.RoleStarted

		if stop == nil || stop.CallID < callID(migrated) {
			if target := r.ws.FindNode(op.MigrateTarget); target != nil && target.Online {
				r.addRunning(rsc, target)
			}
		} else if migrated == nil {
			// The stop may predate the migrate_from, so clean up the source
			rsc.DanglingMigrations = append(rsc.DanglingMigrations, n.ID)
		}
	}
}

func callID(op *types.OpEntry) int {
	if op == nil {
		return 0
	}
	return op.CallID
}
