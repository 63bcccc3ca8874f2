package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/domain"
)

// jobDescriptor is the JSON shape accepted by enqueue. max_retries
// defaults to 3 when omitted; an explicit 0 means "die on first failure".
type jobDescriptor struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	MaxRetries *int   `json:"max_retries"`
	Timeout    int    `json:"timeout"`
}

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `enqueue <job-json>`,
		Short: "Add a job to the queue",
		Long:  `Add a job to the queue, e.g. queuectl enqueue '{"id":"job1","command":"sleep 2","max_retries":3}'`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var desc jobDescriptor
			if err := json.Unmarshal([]byte(args[0]), &desc); err != nil {
				return fmt.Errorf("invalid job JSON: %w", err)
			}
			if desc.Command == "" {
				return fmt.Errorf("job 'command' is required")
			}
			maxRetries := 3
			if desc.MaxRetries != nil {
				maxRetries = *desc.MaxRetries
			}

			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			j, err := store.Enqueue(cmd.Context(), domain.Job{
				ID:         desc.ID,
				Command:    desc.Command,
				MaxRetries: maxRetries,
				Timeout:    desc.Timeout,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue: %w", err)
			}
			fmt.Printf("Enqueued job %s\n", j.ID)
			return nil
		},
	}
}
