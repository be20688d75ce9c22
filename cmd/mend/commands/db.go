package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillvee/mend/config"
	"github.com/skillvee/mend/errors"
	"github.com/skillvee/mend/jobs"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the mend database",
	Long: `db — Manage mend database operations

Examples:
  mend db stats    # Show job and error-log statistics`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display job counts by status and recorded error-log volume",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := jobs.NewStore(database)
	counts, err := store.CountsByStatus()
	if err != nil {
		return errors.Wrap(err, "failed to count jobs")
	}

	var errorLogCount int
	if err := database.QueryRow(`SELECT COUNT(*) FROM job_error_logs`).Scan(&errorLogCount); err != nil {
		return errors.Wrap(err, "failed to count error logs")
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)
	for _, status := range []jobs.Status{jobs.StatusPending, jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusFailed} {
		fmt.Printf("%-12s %d\n", string(status)+":", counts[status])
	}
	fmt.Printf("\nError log entries: %d\n", errorLogCount)

	return nil
}
