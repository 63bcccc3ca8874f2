package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/domain"
)

func newDLQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and revive dead jobs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the dead letter queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, err := store.List(cmd.Context(), domain.StateDead)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("Dead letter queue is empty.")
				return nil
			}
			printJobs(jobs)
			return nil
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead job back to pending with attempts reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.RetryDead(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Job %s moved back to pending.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, retryCmd)
	return cmd
}
