package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"queuectl/internal/domain"
)

func newListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, err := store.List(cmd.Context(), state)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}
			printJobs(jobs)
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending, processing, completed, failed, dead)")
	return cmd
}

func printJobs(jobs []domain.Job) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tATTEMPTS\tMAX_RETRIES\tNEXT_RUN_AT\tLAST_ERROR\tCOMMAND")
	for _, j := range jobs {
		nextRun := "-"
		if j.NextRunAt != nil {
			nextRun = j.NextRunAt.UTC().Format(time.RFC3339)
		}
		lastErr := j.LastError
		if len(lastErr) > 40 {
			lastErr = lastErr[:40] + "..."
		}
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			j.ID, j.State, j.Attempts, j.MaxRetries, nextRun, lastErr, j.Command)
	}
	w.Flush()
}
