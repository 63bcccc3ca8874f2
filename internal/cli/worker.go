package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"queuectl/internal/api"
	"queuectl/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage the worker pool",
	}
	cmd.AddCommand(newWorkerStartCmd(), newWorkerStopCmd())
	return cmd
}

func newWorkerStartCmd() *cobra.Command {
	var (
		count   int
		poll    time.Duration
		timeout time.Duration
		addr    string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the worker pool in the foreground until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			if err := worker.ClearStop(dataDir); err != nil {
				return err
			}
			if err := worker.WritePID(dataDir); err != nil {
				return err
			}
			defer worker.RemovePID(dataDir)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool := worker.NewPool(store, worker.ShellRunner{}, worker.Config{
				Count:          count,
				Poll:           poll,
				DefaultTimeout: timeout,
				LogsDir:        filepath.Join(dataDir, "logs"),
			})

			var srv *http.Server
			if addr != "" {
				srv = &http.Server{Addr: addr, Handler: api.NewServer(store)}
				go func() {
					log.Info().Str("addr", addr).Msg("admin server starting")
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error().Err(err).Msg("admin server")
					}
				}()
			}

			// Shutdown on SIGINT/SIGTERM, or on the stopfile written by
			// "queuectl worker stop" from another process.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				ticker := time.NewTicker(500 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case sig := <-sigCh:
						log.Info().Str("signal", sig.String()).Msg("shutting down")
						cancel()
						return
					case <-ticker.C:
						if worker.StopRequested(dataDir) {
							log.Info().Msg("stop requested, shutting down")
							cancel()
							return
						}
					}
				}
			}()

			log.Info().Int("count", count).Dur("poll", poll).Msg("worker pool starting")
			pool.Run(ctx)

			if srv != nil {
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelShutdown()
				_ = srv.Shutdown(shutdownCtx)
			}
			_ = worker.ClearStop(dataDir)
			log.Info().Msg("worker pool stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of concurrent workers")
	cmd.Flags().DurationVar(&poll, "poll", 500*time.Millisecond, "poll interval when the queue is idle")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "default command timeout for jobs that set none")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "admin API bind address, empty to disable")
	return cmd
}

func newWorkerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Request a graceful shutdown of the running pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			if err := worker.RequestStop(dataDir); err != nil {
				return err
			}
			fmt.Println("Stop requested. Workers will exit after finishing current jobs.")
			return nil
		},
	}
}
