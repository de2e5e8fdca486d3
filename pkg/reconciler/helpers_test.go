package reconciler

import (
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func boolPtr(b bool) *bool { return &b }

// newDoc builds a document with the given cluster nodes declared. Fencing
// is disabled unless opts says otherwise.
func newDoc(opts map[string]string, nodes ...string) *document.Document {
	options := map[string]string{"stonith-enabled": "false"}
	for k, v := range opts {
		options[k] = v
	}
	doc := &document.Document{
		Config: document.Configuration{Options: options},
		Status: document.Status{HaveQuorum: true},
	}
	for i, name := range nodes {
		doc.Config.Nodes = append(doc.Config.Nodes, document.NodeDef{
			ID:   fmt.Sprint(i + 1),
			Name: name,
		})
	}
	return doc
}

// withFencing enables fencing and declares a fencing device
func withFencing(doc *document.Document) *document.Document {
	doc.Config.Options["stonith-enabled"] = "true"
	doc.Config.Resources = append(doc.Config.Resources, document.ResourceDef{
		ID:    "fencing",
		Kind:  document.KindPrimitive,
		Class: "stonith",
		Type:  "fence_xvm",
	})
	return doc
}

func primitive(id string) document.ResourceDef {
	return document.ResourceDef{
		ID:       id,
		Kind:     document.KindPrimitive,
		Class:    "ocf",
		Provider: "heartbeat",
		Type:     "Dummy",
	}
}

func withMonitor(def document.ResourceDef, interval, onFail string) document.ResourceDef {
	def.Ops = append(def.Ops, document.OpDef{Name: types.TaskMonitor, Interval: interval, OnFail: onFail})
	return def
}

// onlineState is the status entry of a healthy cluster member
func onlineState(id, name string) document.NodeState {
	return document.NodeState{
		ID:        id,
		Uname:     name,
		InCluster: boolPtr(true),
		Crmd:      "online",
		Join:      "member",
		Expected:  "member",
	}
}

// opRecord builds a completed operation. interval is in milliseconds.
func opRecord(rsc, task string, callID, rc int, interval int64) document.OpRecord {
	key := fmt.Sprintf("%s_%s_%d", rsc, task, interval)
	return document.OpRecord{
		ID:           key,
		Operation:    task,
		OperationKey: key,
		CallID:       callID,
		Interval:     interval,
		RCCode:       rc,
	}
}

func history(id string, ops ...document.OpRecord) document.ResourceHistory {
	return document.ResourceHistory{ID: id, Class: "ocf", Provider: "heartbeat", Type: "Dummy", Ops: ops}
}

func addStatus(doc *document.Document, st document.NodeState, histories ...document.ResourceHistory) {
	st.Resources = append(st.Resources, histories...)
	doc.Status.Nodes = append(doc.Status.Nodes, st)
}

// run reconciles doc and fails the test on an invariant error
func run(t *testing.T, doc *document.Document) (*types.WorkingSet, *events.Recorder) {
	t.Helper()
	_, ws, rec := runReconciler(t, doc)
	return ws, rec
}

func runReconciler(t *testing.T, doc *document.Document) (*Reconciler, *types.WorkingSet, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder(t.Name(), testNow)
	r := NewReconciler(doc, Options{Now: testNow, Recorder: rec})
	ws, err := r.Reconcile()
	require.NoError(t, err)
	require.NotNil(t, ws)
	return r, ws, rec
}

func mustResource(t *testing.T, ws *types.WorkingSet, id string) *types.Resource {
	t.Helper()
	rsc := ws.FindResource(id)
	require.NotNil(t, rsc, "resource %s", id)
	return rsc
}

func mustNode(t *testing.T, ws *types.WorkingSet, name string) *types.Node {
	t.Helper()
	n := ws.FindNode(name)
	require.NotNil(t, n, "node %s", name)
	return n
}
