package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"queuectl/internal/backoff"
	"queuectl/internal/domain"
	"queuectl/internal/queue"
)

type Config struct {
	Count          int           // worker goroutines
	Poll           time.Duration // idle sleep when nothing is claimable
	DefaultTimeout time.Duration // per-command timeout when the job sets none
	LogsDir        string        // per-job log files; empty disables them
}

func DefaultConfig() Config {
	return Config{
		Count:          1,
		Poll:           500 * time.Millisecond,
		DefaultTimeout: 30 * time.Second,
	}
}

// Pool owns N worker loops over one shared store. Workers coordinate only
// through the store's atomic claim; there is no in-memory job state.
type Pool struct {
	store  *queue.Store
	runner Runner
	cfg    Config
}

func NewPool(store *queue.Store, runner Runner, cfg Config) *Pool {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 500 * time.Millisecond
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &Pool{store: store, runner: runner, cfg: cfg}
}

// Run starts the worker loops and blocks until ctx is canceled and every
// in-flight job has been resolved. In-flight commands are never aborted
// by shutdown; each worker finishes its current job and then exits.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 1; i <= p.cfg.Count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			p.runWorker(ctx, idx)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, idx int) {
	logger := log.With().Int("worker", idx).Logger()
	logger.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker exiting")
			return
		default:
		}

		job, err := p.store.ClaimNext(ctx, time.Now())
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("claim failed")
			}
			p.idle(ctx)
			continue
		}
		if job == nil {
			p.idle(ctx)
			continue
		}
		p.execute(job, logger)
	}
}

func (p *Pool) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.Poll):
	}
}

// execute runs a claimed job to completion and applies the outcome exactly
// once, using the attempts/max_retries read at claim time. The command gets
// its own timeout context detached from the pool's, so cancellation never
// kills a running command.
func (p *Pool) execute(j *domain.Job, logger zerolog.Logger) {
	logger.Info().Str("job", j.ID).Int("attempt", j.Attempts).Str("command", j.Command).Msg("picked job")

	timeout := p.cfg.DefaultTimeout
	if j.Timeout > 0 {
		timeout = time.Duration(j.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)
	out, runErr := p.runner.Run(runCtx, j.Command)
	cancel()

	p.appendJobLog(j.ID, out, runErr)

	if runErr == nil {
		p.apply(logger, j.ID, func(ctx context.Context) error {
			return p.store.MarkCompleted(ctx, j.ID)
		})
		p.bump(queue.MetricJobsProcessed)
		logger.Info().Str("job", j.ID).Msg("job completed")
		return
	}

	p.bump(queue.MetricJobsFailed)

	base, err := p.backoffBase()
	if err != nil {
		// Bad config aborts only this outcome; the job stays in
		// processing for manual inspection and the pool keeps running.
		logger.Error().Err(err).Str("job", j.ID).Msg("cannot compute backoff, leaving job in processing")
		return
	}
	dec, err := backoff.Decide(j.Attempts, j.MaxRetries, base)
	if err != nil {
		logger.Error().Err(err).Str("job", j.ID).Msg("cannot compute backoff, leaving job in processing")
		return
	}

	if dec.Exhausted {
		p.apply(logger, j.ID, func(ctx context.Context) error {
			return p.store.MarkDead(ctx, j.ID, runErr.Error())
		})
		logger.Warn().Str("job", j.ID).Int("attempts", j.Attempts).Err(runErr).Msg("retries exhausted, job moved to dlq")
		return
	}

	next := time.Now().Add(dec.Delay)
	p.apply(logger, j.ID, func(ctx context.Context) error {
		return p.store.MarkRetry(ctx, j.ID, next, runErr.Error())
	})
	p.bump(queue.MetricJobsRetried)
	logger.Warn().Str("job", j.ID).Err(runErr).Time("next_run_at", next).Msg("job failed, retry scheduled")
}

// backoffBase reads backoff_base fresh from the store on every failure so
// "config set" applies to a running pool without restart.
func (p *Pool) backoffBase() (float64, error) {
	raw, err := p.store.GetConfig(context.Background(), "backoff_base")
	if errors.Is(err, domain.ErrNotFound) {
		return backoff.DefaultBase, nil
	}
	if err != nil {
		return 0, err
	}
	return backoff.ParseBase(raw)
}

// apply records an outcome, retrying transient store errors. If the write
// keeps failing the job is left in processing for manual inspection rather
// than guessing a terminal state.
func (p *Pool) apply(logger zerolog.Logger, id string, fn func(context.Context) error) {
	var err error
	for i := 0; i < 3; i++ {
		if err = fn(context.Background()); err == nil {
			return
		}
		if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrNotFound) {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	logger.Error().Err(err).Str("job", id).Msg("failed to record job outcome")
}

func (p *Pool) bump(key string) {
	_ = p.store.IncrMetric(context.Background(), key, 1)
}

// appendJobLog appends one run's captured output to <LogsDir>/<id>.log.
func (p *Pool) appendJobLog(id, out string, runErr error) {
	if p.cfg.LogsDir == "" {
		return
	}
	if err := os.MkdirAll(p.cfg.LogsDir, 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(p.cfg.LogsDir, id+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "--- run %s ---\n", time.Now().UTC().Format(time.RFC3339))
	if out != "" {
		f.WriteString(out)
		if !strings.HasSuffix(out, "\n") {
			f.WriteString("\n")
		}
	}
	if runErr != nil {
		fmt.Fprintf(f, "error: %v\n", runErr)
	}
}
