/*
Package types defines the data model of a reconciliation run.

Every other package operates on these types. A run starts from an empty
WorkingSet, fills it from the declared configuration and the observed status
report, and hands it to the scheduler. Nothing in a WorkingSet survives the
run.

# Architecture

The WorkingSet is an arena. It owns every Node and every Resource, and it
is the only place where identifiers are turned back into objects:

	┌─────────────────────── WorkingSet ───────────────────────┐
	│                                                           │
	│  Nodes (natural name order)     Resources (priority order)│
	│   ├─ node1                       ├─ db (primitive)        │
	│   ├─ node2                       ├─ web-clone (clone)     │
	│   └─ guest1 ──RemoteResourceID──►│   ├─ web:0             │
	│                                  │   └─ web:1             │
	│                                  └─ guest1 (connection)   │
	│                                                           │
	│  Tickets  Failed  FenceRequests  Actions  Constraints     │
	└───────────────────────────────────────────────────────────┘

Owning edges are pointer slices: Resource.Children and Resource.Fillers.
Reverse edges are plain identifiers: Resource.ParentID,
Resource.ContainerID and Node.RemoteResourceID. Resolve them with
WorkingSet.Parent, WorkingSet.Container and WorkingSet.RemoteResource.

# Resources

A Resource is one struct tagged with a Variant (primitive, group, clone,
container). Algorithms that differ per variant switch on the tag. Flags
hold the boolean state (managed, failed, orphan and so on) as a bit set.

Roles are ordered:

	RoleUnknown < RoleStopped < RoleStarted < RoleSlave < RoleMaster

Clone instances carry an instance suffix ("web:1"). CloneStrip and
CloneZero convert between instance ids and base ids.

# Operation history

OpEntry is an immutable history record. CallID is the only trustworthy
ordering key. The expected return code is decoded from the transition key:

	key, err := types.ParseTransitionKey("3:12:0:5a6b1c2d-0e1f-4a3b-8c7d-9e0f1a2b3c4d")
	// key.TargetRC == 0

# Scores

Scores saturate at Infinity (1000000) and MinusInfinity. MergeScores adds
two scores with -INFINITY taking precedence.
*/
package types
