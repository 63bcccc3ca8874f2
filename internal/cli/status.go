package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/domain"
	"queuectl/internal/queue"
	"queuectl/internal/worker"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job state counts, metrics, and worker pool status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			counts, err := store.CountByState(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("Job states:")
			for _, state := range domain.States {
				fmt.Printf("  %-10s %d\n", state, counts[state])
			}

			metrics, err := store.Metrics(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("Metrics:")
			for _, key := range []string{queue.MetricJobsProcessed, queue.MetricJobsFailed, queue.MetricJobsRetried} {
				fmt.Printf("  %-15s %d\n", key, metrics[key])
			}

			if pid, ok := worker.ReadPID(dataDir); ok {
				fmt.Printf("Worker pool:   running (pid %d)\n", pid)
			} else {
				fmt.Println("Worker pool:   stopped")
			}
			if worker.StopRequested(dataDir) {
				fmt.Println("Stop pending:  yes")
			}
			return nil
		},
	}
}
