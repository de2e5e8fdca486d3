package main

import (
	"fmt"
	"os"

	"github.com/cuemby/crmcore/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crmcore",
	Short: "crmcore - cluster state reconciliation",
	Long: `crmcore reads a cluster document (configuration plus observed status)
and reconciles it into a snapshot of the cluster: which nodes are online
or must be fenced, where resources run and how failures are answered.

Inputs can be archived so a run can be replayed later.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		log.Init(log.Config{
			Level:      log.ParseLevel(level),
			JSONOutput: jsonLogs,
			Output:     cmd.ErrOrStderr(),
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crmcore version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"crmcore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(opsCmd)
	rootCmd.AddCommand(inputsCmd)
}
