package reconciler

import (
	"bytes"
	"testing"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/log"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestTraceLogsCarryNodeAndResource(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.TraceLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { log.Init(log.Config{Level: log.ErrorLevel}) })

	doc := newDoc(nil, "node1")
	doc.Config.Resources = []document.ResourceDef{primitive("db")}
	addStatus(doc, onlineState("1", "node1"), history("db", opRecord("db", types.TaskStart, 1, types.RCOK, 0)))

	run(t, doc)

	out := buf.String()
	assert.Contains(t, out, `"component":"reconciler"`)
	assert.Contains(t, out, `"node":"node1"`)
	assert.Contains(t, out, `"resource":"db"`)
}
