// Package cli wires the queuectl subcommands: enqueue, worker start/stop,
// status, list, dlq, and config.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"queuectl/internal/queue"
)

var dataDir string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "queuectl",
		Short:        "Persistent background job queue for shell commands",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "directory for the queue database and worker files")

	root.AddCommand(
		newEnqueueCmd(),
		newWorkerCmd(),
		newStatusCmd(),
		newListCmd(),
		newDLQCmd(),
		newConfigCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

// openStore opens the queue database under the data dir, creating both on
// first use. The returned func closes the database.
func openStore() (*queue.Store, func(), error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, err
	}
	db, err := queue.Open(filepath.Join(dataDir, "queue.db"))
	if err != nil {
		return nil, nil, err
	}
	return queue.NewStore(db), func() { db.Close() }, nil
}
