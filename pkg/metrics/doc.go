/*
Package metrics provides Prometheus metrics for crmcore reconciliation runs.

All collectors are package level and registered with the default registry
at init, so importing the package is enough to make them available.

# Metrics

Run metrics:
  - crmcore_unpack_runs_total{result}: runs by outcome (ok, warn, error)
  - crmcore_unpack_duration_seconds: time to unpack one input

Snapshot metrics (reset on every successful run):
  - crmcore_nodes{kind,state}: nodes by kind and reduced state
  - crmcore_resources{role}: primitives by role

Decision metrics:
  - crmcore_fence_requests_total{kind}: fence requests by node kind
  - crmcore_failed_operations_total: failed operations surfaced
  - crmcore_orphan_resources_total: orphans found in history
  - crmcore_config_errors_total: configuration errors

Archive metrics:
  - crmcore_inputs_archived_total{class}
  - crmcore_inputs_pruned_total{class}

# Usage

Time an operation with a Timer:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.UnpackDuration)

After a run, publish the snapshot and dump everything in text format:

	metrics.RecordWorkingSet(ws)
	_ = metrics.WriteText(os.Stdout)

The CLI is a one-shot process, so there is no HTTP endpoint. WriteText
produces the same exposition format a scrape would return.
*/
package metrics
