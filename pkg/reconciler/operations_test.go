package reconciler

import (
	"testing"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func operationsDoc() *document.Document {
	doc := newDoc(nil, "node1", "node2")
	doc.Config.Resources = []document.ResourceDef{withMonitor(primitive("db"), "10s", ""), primitive("web")}
	addStatus(doc, onlineState("1", "node1"),
		history("db",
			opRecord("db", types.TaskMonitor, 4, types.RCOK, 10000),
			opRecord("db", types.TaskStart, 1, types.RCOK, 0),
			opRecord("db", types.TaskStop, 2, types.RCOK, 0),
			opRecord("db", types.TaskStart, 3, types.RCOK, 0),
		),
		history("web",
			opRecord("web", types.TaskStart, 5, types.RCOK, 0),
			opRecord("web", types.TaskStop, 6, types.RCOK, 0),
		),
	)
	addStatus(doc, onlineState("2", "node2"),
		history("web", opRecord("web", types.TaskStart, 1, types.RCOK, 0)),
	)
	return doc
}

func tasks(records []OperationRecord) []string {
	var out []string
	for _, rec := range records {
		out = append(out, rec.Op.Task)
	}
	return out
}

func TestFindOperationsBeforeReconcile(t *testing.T) {
	r := NewReconciler(operationsDoc(), Options{Now: testNow})

	_, err := r.FindOperations("", "", false)
	assert.Error(t, err)
}

func TestFindOperations(t *testing.T) {
	r, _, _ := runReconciler(t, operationsDoc())

	tests := []struct {
		name       string
		rsc        string
		node       string
		activeOnly bool
		expected   []string
	}{
		{"whole history in call order", "db", "node1", false, []string{"start", "stop", "start", "monitor"}},
		{"since last start", "db", "node1", true, []string{"start", "monitor"}},
		{"stopped resource", "web", "node1", true, nil},
		{"node names are case insensitive", "web", "NODE2", false, []string{"start"}},
		{"unknown resource", "ghost", "", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := r.FindOperations(tt.rsc, tt.node, tt.activeOnly)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tasks(records))
		})
	}
}

func TestFindOperationsAcrossCluster(t *testing.T) {
	r, _, _ := runReconciler(t, operationsDoc())

	records, err := r.FindOperations("web", "", false)
	require.NoError(t, err)
	require.Len(t, records, 3)

	var nodes []string
	for _, rec := range records {
		assert.Equal(t, "web", rec.Resource)
		nodes = append(nodes, rec.Node)
	}
	assert.Equal(t, []string{"node1", "node1", "node2"}, nodes)

	all, err := r.FindOperations("", "", false)
	require.NoError(t, err)
	assert.Len(t, all, 7)
}

func TestFindOperationsSkipsOfflineNodes(t *testing.T) {
	doc := operationsDoc()
	doc.Status.Nodes[1].InCluster = boolPtr(false)
	doc.Status.Nodes[1].Crmd = "offline"
	r, ws, _ := runReconciler(t, doc)
	require.False(t, mustNode(t, ws, "node2").Online)

	records, err := r.FindOperations("web", "", false)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
