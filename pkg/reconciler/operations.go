package reconciler

import (
	"fmt"
	"strings"

	"github.com/cuemby/crmcore/pkg/types"
)

// OperationRecord is one recorded operation together with where it ran
type OperationRecord struct {
	Resource string
	Node     string
	Op       *types.OpEntry
}

// FindOperations lists the recorded operations of a resource on a node.
// An empty rscID or nodeName matches everything. With activeOnly set only
// the entries since the resource last started are returned. It must be
// called after a successful Reconcile.
func (r *Reconciler) FindOperations(rscID, nodeName string, activeOnly bool) ([]OperationRecord, error) {
	if r.ws == nil {
		return nil, fmt.Errorf("no working set: reconcile first")
	}

	var out []OperationRecord
	for i := range r.doc.Status.Nodes {
		st := &r.doc.Status.Nodes[i]
		if st.Uname == "" || (nodeName != "" && !strings.EqualFold(st.Uname, nodeName)) {
			continue
		}
		n := r.ws.FindNode(st.Uname)
		if n == nil {
			r.logger.Debug().Str("node", st.Uname).Msg("Skipping history of unknown node")
			continue
		}
		if !n.Online && !r.ws.Config.StonithEnabled {
			continue
		}

		for _, h := range r.loadHistories(n, st) {
			if rscID != "" && h.ID != rscID {
				continue
			}
			ops := h.Ops
			if activeOnly {
				start, stop := calculateActiveOps(ops)
				if start < stop {
					continue
				}
				if start > 0 {
					ops = ops[start:]
				}
			}
			for _, op := range ops {
				out = append(out, OperationRecord{Resource: h.ID, Node: n.Name, Op: op})
			}
		}
	}
	return out, nil
}
