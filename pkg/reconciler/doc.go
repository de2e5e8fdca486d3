/*
Package reconciler turns a cluster document into a consistent in-memory
snapshot of the cluster that a scheduler can act on.

The document has two halves: the declared configuration (options, nodes,
the resource tree) and the observed status (node membership, per-node
operation histories, tickets). The reconciler merges them into a
types.WorkingSet, deciding on the way which nodes are online, which must
be fenced, where every resource is running and how each recorded failure
has to be answered.

# Architecture

A run is a fixed sequence of passes over one document:

	┌──────────────────────────────────────────────────────────────┐
	│                        Reconcile()                            │
	└──────────────┬───────────────────────────────────────────────┘
	               │
	   ┌───────────▼───────────┐
	   │ unpackConfig          │  cluster options, quorum
	   ├───────────────────────┤
	   │ unpackNodes           │  declared nodes, startup fencing
	   ├───────────────────────┤
	   │ unpackRemoteNodes     │  baremetal and guest remote nodes
	   ├───────────────────────┤
	   │ unpackResources       │  resource tree, clone instances
	   ├───────────────────────┤
	   │ unpackTags            │
	   ├───────────────────────┤
	   │ unpackStatus          │  membership, then history replay
	   └───────────────────────┘

Configuration problems never stop a run. They are logged, appended to
WorkingSet.ConfigErrors and emitted as config.error events. Only broken
internal invariants abort, with an error wrapping ErrInvariant.

# Node State

Cluster nodes get their state from the membership fields of their status
entry. With fencing enabled every unexpected combination (not seen, no
longer a member, process gone, termination requested, unknown join
state) marks the node unclean and records a fence request.

Remote nodes cannot be judged from membership. Their histories are
replayed in repeated passes: a remote node is processed once its
connection resource (and, for guests, the container) is known to be
started. The passes repeat until nothing changes; a final forcing pass
processes whatever is left.

# History Replay

Each resource history on a node is sorted by call id and replayed:

	history id ──► resource  (anonymous clones map to an instance,
	                          unknown ids become orphans)
	     │
	     ▼
	for each op:  rc + expected rc ──► status ──► role / on-fail
	     │
	     ▼
	active ops ──► optional recurring actions
	     │
	     ▼
	on-fail ──► fence, standby, block, ban, stop, restart container

Failures combine by severity so the most drastic response seen on a node
wins. Failures past their failure-timeout are ignored or re-initiated,
and a changed parameter digest schedules a fail count clear.

# Usage

	doc, err := document.Load("cluster.yaml")
	if err != nil {
		return err
	}

	rec := events.NewRecorder("run-1", time.Now())
	r := reconciler.NewReconciler(doc, reconciler.Options{Recorder: rec})
	ws, err := r.Reconcile()
	if err != nil {
		return err
	}

	for _, req := range ws.FenceRequests {
		fmt.Println(req.NodeName, req.Reason)
	}

# Thread Safety

A Reconciler handles one run and is not safe for concurrent use. The
returned WorkingSet is owned by the caller.
*/
package reconciler
