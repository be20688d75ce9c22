package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillvee/mend/cmd/mend/commands"
	"github.com/skillvee/mend/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "mend - job failure recovery daemon",
	Long: `mend - failure classification and bounded retry for processing jobs.

mend watches asynchronous processing jobs (video analysis, live sessions,
document parsing), classifies their failures, retries them within a bounded
cap, and exposes an administrative API for operators to inspect and force
retries.

Available commands:
  serve   - Start the recovery daemon and administrative API
  db      - Manage the mend database
  jobs    - Inspect jobs from the command line
  version - Show version information

Examples:
  mend serve               # Start the daemon
  mend jobs ls             # List failed jobs
  mend db stats            # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
