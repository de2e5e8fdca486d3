package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/crmcore/pkg/storage"
	"github.com/spf13/cobra"
)

// Archive commands
var inputsCmd = &cobra.Command{
	Use:   "inputs",
	Short: "Manage archived inputs",
}

var inputsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived inputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		class, err := classFlag(cmd)
		if err != nil {
			return err
		}
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(class)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archived inputs")
			return nil
		}
		return printRecords(cmd.OutOrStdout(), records)
	},
}

var inputsShowCmd = &cobra.Command{
	Use:   "show [SEQ]",
	Short: "Print an archived input",
	Long: `Print the document archived under SEQ, or the newest one of
--class when SEQ is omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		class, err := classFlag(cmd)
		if err != nil {
			return err
		}
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		var rec *storage.Record
		if len(args) == 1 {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence number %q", args[0])
			}
			rec, err = store.Get(seq)
			if err != nil {
				return err
			}
		} else {
			rec, err = store.Latest(class)
			if err != nil {
				return err
			}
		}

		_, err = cmd.OutOrStdout().Write(rec.Data)
		return err
	},
}

var inputsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove the oldest archived inputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		class, err := classFlag(cmd)
		if err != nil {
			return err
		}
		keep, _ := cmd.Flags().GetInt("keep")

		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := store.Prune(class, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d archived inputs\n", removed)
		return nil
	},
}

func openArchive(cmd *cobra.Command) (*storage.BoltStore, error) {
	dir, _ := cmd.Flags().GetString("archive")
	if dir == "" {
		return nil, fmt.Errorf("--archive is required")
	}
	return storage.NewBoltStore(dir)
}

func classFlag(cmd *cobra.Command) (storage.Class, error) {
	s, _ := cmd.Flags().GetString("class")
	class, ok := storage.ParseClass(s)
	if !ok {
		return "", fmt.Errorf("class must be 'input', 'warn' or 'error'")
	}
	return class, nil
}

func init() {
	inputsCmd.PersistentFlags().String("archive", "", "Directory of the input archive (required)")
	inputsCmd.PersistentFlags().String("class", "", "Only inputs of this class (input, warn, error)")

	inputsPruneCmd.Flags().Int("keep", -1, "Number of inputs to keep")
	_ = inputsPruneCmd.MarkFlagRequired("keep")

	inputsCmd.AddCommand(inputsListCmd)
	inputsCmd.AddCommand(inputsShowCmd)
	inputsCmd.AddCommand(inputsPruneCmd)
}
