package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/log"
	"github.com/cuemby/crmcore/pkg/metrics"
	"github.com/cuemby/crmcore/pkg/reconciler"
	"github.com/cuemby/crmcore/pkg/storage"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/spf13/cobra"
)

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Reconcile a cluster document and print the resulting state",
	Long: `Reconcile a cluster document (YAML or TOML) and print node states,
resource placement, failed operations and fence requests.

Examples:
  # Reconcile a document
  crmcore unpack -f cluster.yaml

  # Reconcile as of a fixed time and archive the input
  crmcore unpack -f cluster.yaml --now 2026-03-01T12:00:00Z --archive ./crmcore-data

  # Replay an archived input
  crmcore unpack --archive ./crmcore-data --replay 42`,
	RunE: runUnpack,
}

func init() {
	unpackCmd.Flags().StringP("file", "f", "", "Cluster document to reconcile")
	unpackCmd.Flags().String("archive", "", "Directory of the input archive")
	unpackCmd.Flags().Uint64("replay", 0, "Reconcile the archived input with this sequence number instead of --file")
	unpackCmd.Flags().String("now", "", "Evaluation time (RFC 3339), defaults to the current time")
	unpackCmd.Flags().String("local-node", "", "Name of the node running this command")
	unpackCmd.Flags().Bool("events", false, "Print the events recorded during the run")
	unpackCmd.Flags().Bool("print-metrics", false, "Print metrics in the Prometheus text format after the run")
}

// input is a document together with the bytes it was decoded from
type input struct {
	doc    *document.Document
	data   []byte
	format document.Format
}

// loadInput reads the document named by path, or the archived input seq
// when seq is set
func loadInput(path, archiveDir string, seq uint64) (*input, error) {
	var in input
	switch {
	case seq > 0:
		if archiveDir == "" {
			return nil, fmt.Errorf("--replay requires --archive")
		}
		store, err := storage.NewBoltStore(archiveDir)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		rec, err := store.Get(seq)
		if err != nil {
			return nil, err
		}
		in.data, in.format = rec.Data, document.Format(rec.Format)

	case path != "":
		format, err := document.FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
		in.data, in.format = data, format

	default:
		return nil, fmt.Errorf("--file or --replay is required")
	}

	doc, err := document.Decode(in.data, in.format)
	if err != nil {
		return nil, err
	}
	in.doc = doc
	return &in, nil
}

func parseNow(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now: %w", err)
	}
	return t, nil
}

// archiveInput stores the input of a finished run according to the
// retention configured in the document
func archiveInput(dir string, in *input, ws *types.WorkingSet, runErr error, now time.Time) (*storage.Record, error) {
	store, err := storage.NewBoltStore(dir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	class := storage.ClassFor(ws, runErr)
	var opts *types.ClusterOptions
	if ws != nil {
		opts = ws.Config
	}
	return storage.Archive(store, class, storage.Retention(opts, class), string(in.format), in.data, now)
}

func runUnpack(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	archiveDir, _ := cmd.Flags().GetString("archive")
	replay, _ := cmd.Flags().GetUint64("replay")
	nowStr, _ := cmd.Flags().GetString("now")
	localNode, _ := cmd.Flags().GetString("local-node")
	showEvents, _ := cmd.Flags().GetBool("events")
	printMetrics, _ := cmd.Flags().GetBool("print-metrics")

	logger := log.WithComponent("cli")
	out := cmd.OutOrStdout()

	now, err := parseNow(nowStr)
	if err != nil {
		return err
	}
	in, err := loadInput(file, archiveDir, replay)
	if err != nil {
		return err
	}

	rec := events.NewRecorder(storage.Digest(in.data), now)
	r := reconciler.NewReconciler(in.doc, reconciler.Options{
		Now:       now,
		Recorder:  rec,
		LocalNode: localNode,
	})
	ws, runErr := r.Reconcile()

	if archiveDir != "" && replay == 0 {
		archived, err := archiveInput(archiveDir, in, ws, runErr, now)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to archive input")
		} else if archived != nil {
			fmt.Fprintf(out, "Archived input %d (%s)\n\n", archived.Seq, archived.Class)
		}
	}

	if runErr != nil {
		return fmt.Errorf("unpack failed: %w", runErr)
	}

	if err := printWorkingSet(out, ws); err != nil {
		return err
	}
	if showEvents {
		if err := printEvents(out, rec.Events()); err != nil {
			return err
		}
	}
	if printMetrics {
		fmt.Fprintln(out)
		if err := metrics.WriteText(out); err != nil {
			return err
		}
	}
	return nil
}
