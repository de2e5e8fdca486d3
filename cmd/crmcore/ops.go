package main

import (
	"fmt"
	"time"

	"github.com/cuemby/crmcore/pkg/reconciler"
	"github.com/spf13/cobra"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List recorded operations of resources",
	Long: `List the operation history recorded in a cluster document, ordered
by call id per node and resource.

Examples:
  # All operations of db
  crmcore ops -f cluster.yaml -r db

  # Operations since db last started on node1
  crmcore ops -f cluster.yaml -r db -n node1 --active`,
	RunE: runOps,
}

func init() {
	opsCmd.Flags().StringP("file", "f", "", "Cluster document (required)")
	opsCmd.Flags().StringP("resource", "r", "", "Only operations of this resource")
	opsCmd.Flags().StringP("node", "n", "", "Only operations on this node")
	opsCmd.Flags().Bool("active", false, "Only operations since the resource last started")
	opsCmd.Flags().String("now", "", "Evaluation time (RFC 3339), defaults to the current time")
	_ = opsCmd.MarkFlagRequired("file")
}

func runOps(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	rscID, _ := cmd.Flags().GetString("resource")
	nodeName, _ := cmd.Flags().GetString("node")
	activeOnly, _ := cmd.Flags().GetBool("active")
	nowStr, _ := cmd.Flags().GetString("now")

	now, err := parseNow(nowStr)
	if err != nil {
		return err
	}
	in, err := loadInput(file, "", 0)
	if err != nil {
		return err
	}

	r := reconciler.NewReconciler(in.doc, reconciler.Options{Now: now})
	if _, err := r.Reconcile(); err != nil {
		return fmt.Errorf("unpack failed: %w", err)
	}

	records, err := r.FindOperations(rscID, nodeName, activeOnly)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No operations found")
		return nil
	}
	return printOperations(cmd.OutOrStdout(), records)
}

func formatInterval(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.String()
}
