package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/metrics"
	"github.com/cuemby/crmcore/pkg/reconciler"
	"github.com/cuemby/crmcore/pkg/storage"
	"github.com/cuemby/crmcore/pkg/types"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// nodeNames maps node ids to names for display
func nodeNames(ws *types.WorkingSet, ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if n := ws.FindNodeByID(id); n != nil {
			names = append(names, n.Name)
		} else {
			names = append(names, id)
		}
	}
	return strings.Join(names, ",")
}

func printWorkingSet(w io.Writer, ws *types.WorkingSet) error {
	tw := newTabWriter(w)

	fmt.Fprintf(tw, "Nodes: %d\n", len(ws.Nodes))
	fmt.Fprintln(tw, "NAME\tID\tKIND\tSTATE\tRESOURCES")
	for _, n := range ws.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", n.Name, n.ID, n.Kind, metrics.NodeState(n), len(n.RunningResources))
	}

	fmt.Fprintf(tw, "\nResources: %d\n", len(ws.AllResources()))
	fmt.Fprintln(tw, "ID\tVARIANT\tROLE\tRUNNING ON\tFLAGS")
	var walk func(rsc *types.Resource, depth int)
	walk = func(rsc *types.Resource, depth int) {
		flags := strings.Join(rsc.Flags.Names(), ",")
		if flags == "" {
			flags = "-"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n",
			strings.Repeat("  ", depth), rsc.ID, rsc.Variant, rsc.Role, nodeNames(ws, rsc.RunningOn), flags)
		for _, child := range rsc.Children {
			walk(child, depth+1)
		}
	}
	for _, rsc := range ws.Resources {
		walk(rsc, 0)
	}

	if len(ws.Failed) > 0 {
		fmt.Fprintf(tw, "\nFailed operations: %d\n", len(ws.Failed))
		fmt.Fprintln(tw, "RESOURCE\tNODE\tOPERATION\tRESULT\tSTATUS")
		for _, f := range ws.Failed {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.ResourceID, f.Node, f.Key, types.RCString(f.RC), f.Status)
		}
	}

	if len(ws.FenceRequests) > 0 {
		fmt.Fprintf(tw, "\nFence requests: %d\n", len(ws.FenceRequests))
		fmt.Fprintln(tw, "NODE\tACTION\tCAN FENCE\tREASON")
		for _, req := range ws.FenceRequests {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", req.NodeName, req.Action, req.CanFence, req.Reason)
		}
	}

	if len(ws.Actions) > 0 {
		fmt.Fprintf(tw, "\nActions: %d\n", len(ws.Actions))
		fmt.Fprintln(tw, "KEY\tNODE\tOPTIONAL\tREASON")
		for _, a := range ws.Actions {
			node := a.NodeID
			if n := ws.FindNodeByID(a.NodeID); n != nil {
				node = n.Name
			}
			reason := a.Reason
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", a.Key, node, a.Optional, reason)
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	printMessages(w, "Configuration errors", ws.ConfigErrors)
	printMessages(w, "Warnings", ws.Warnings)
	return nil
}

func printMessages(w io.Writer, title string, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s: %d\n", title, len(msgs))
	for _, msg := range msgs {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

func printEvents(w io.Writer, evs []*events.Event) error {
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "\nEvents: %d\n", len(evs))
	fmt.Fprintln(tw, "SEQ\tTYPE\tNODE\tRESOURCE\tMESSAGE")
	for _, e := range evs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.Type, dash(e.Node), dash(e.Resource), e.Message)
	}
	return tw.Flush()
}

func printOperations(w io.Writer, records []reconciler.OperationRecord) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "NODE\tRESOURCE\tCALL\tOPERATION\tINTERVAL\tRESULT\tSTATUS")
	for _, rec := range records {
		op := rec.Op
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			rec.Node, rec.Resource, op.CallID, op.Task, formatInterval(op.Interval), types.RCString(op.RC), op.Status)
	}
	return tw.Flush()
}

func printRecords(w io.Writer, records []*storage.Record) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "SEQ\tCLASS\tTIMESTAMP\tFORMAT\tSIZE\tDIGEST")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			rec.Seq, rec.Class, rec.Timestamp.Format(time.RFC3339), rec.Format, len(rec.Data), rec.Digest)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
