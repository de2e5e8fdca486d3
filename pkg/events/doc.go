/*
Package events records the decisions a reconciliation run takes so that
callers can report them without scraping logs.

Each run gets its own Recorder. The reconciler records an event whenever it
requests fencing, marks a node unclean, recovers a guest node through its
container, marks a resource failed, finds an orphan, clears an expired
failure, or hits a configuration error:

	rec := events.NewRecorder("input-42", now)
	ws, err := reconciler.NewReconciler(doc, reconciler.Options{Recorder: rec}).Reconcile()
	for _, e := range rec.Filter(events.EventFenceRequested) {
		fmt.Println(e.Node, e.Message)
	}

# Event ids

Event ids are version 5 UUIDs derived from the run id and the position of
the event in the run. Replaying the same input with the same run id yields
identical ids, which keeps archived reports comparable across reruns.

# Delivery

Subscribers are plain functions called synchronously, in registration
order, after the event has been appended. A run is single threaded, so
there is no buffering and no event is ever dropped. A nil *Recorder is
valid and discards everything.
*/
package events
