package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/skillvee/mend/config"
	"github.com/skillvee/mend/errors"
	"github.com/skillvee/mend/jobs"
)

// JobsCmd represents the jobs command
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs from the command line",
	Long: `jobs — Inspect processing jobs

Examples:
  mend jobs ls              # List failed jobs with their latest error
  mend jobs ls --limit 10   # Limit output
  mend jobs show <id>       # Show one job and its failure history`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List failed jobs with their latest recorded error",
	RunE:  runJobsLs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job and its failure history",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsLsLimit int

func init() {
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
	jobsLsCmd.Flags().IntVar(&jobsLsLimit, "limit", 50, "Maximum jobs to list")
}

func runJobsLs(cmd *cobra.Command, args []string) error {
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
	failed, err := store.ListFailedWithLastError(cfg.Retry.MaxAutoRetries, jobsLsLimit)
	if err != nil {
		return errors.Wrap(err, "failed to list failed jobs")
	}

	if len(failed) == 0 {
		pterm.Success.Println("No failed jobs")
		return nil
	}

	rows := pterm.TableData{{"ID", "Kind", "Retries", "Auto-retry", "Last error"}}
	for _, fj := range failed {
		autoRetry := "no"
		if fj.CanAutoRetry {
			autoRetry = "yes"
		}
		lastError := fj.LastErrorMessage
		if lastError == "" {
			lastError = fj.LastFailureReason
		}
		rows = append(rows, []string{shortID(fj.ID), fj.Kind, fmt.Sprintf("%d", fj.RetryCount), autoRetry, lastError})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := jobs.NewStore(database)
	job, err := store.GetJob(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to get job")
	}
	if job == nil {
		return errors.Wrapf(errors.ErrNotFound, "job %s", args[0])
	}

	fmt.Printf("ID:          %s\n", job.ID)
	fmt.Printf("Kind:        %s\n", job.Kind)
	fmt.Printf("Status:      %s\n", job.Status)
	fmt.Printf("Retries:     %d\n", job.RetryCount)
	if job.LastFailureReason != "" {
		fmt.Printf("Last error:  %s\n", job.LastFailureReason)
	}
	fmt.Printf("Created:     %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))

	errorLogs := jobs.NewErrorLogStore(database)
	history, err := errorLogs.ListForJob(job.ID, 10)
	if err != nil {
		return errors.Wrap(err, "failed to load failure history")
	}
	if len(history) > 0 {
		fmt.Println("\nFailure history (newest first):")
		for _, entry := range history {
			fmt.Printf("  %s  [%s]  %s\n",
				entry.CreatedAt.Format("2006-01-02 15:04:05"),
				entry.Category,
				entry.Message,
			)
		}
	}

	return nil
}

// shortID truncates an ID to 8 characters for display
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
