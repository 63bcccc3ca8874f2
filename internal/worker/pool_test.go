package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"queuectl/internal/domain"
	"queuectl/internal/queue"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs map[string]int
	fn   func(command string) (string, error)
}

func (r *fakeRunner) Run(_ context.Context, command string) (string, error) {
	r.mu.Lock()
	if r.runs == nil {
		r.runs = make(map[string]int)
	}
	r.runs[command]++
	r.mu.Unlock()
	if r.fn == nil {
		return "", nil
	}
	return r.fn(command)
}

func newTestStore(t *testing.T) *queue.Store {
	t.Helper()
	db, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return queue.NewStore(db)
}

func enqueue(t *testing.T, s *queue.Store, id, command string, maxRetries int) {
	t.Helper()
	if _, err := s.Enqueue(context.Background(), domain.Job{ID: id, Command: command, MaxRetries: maxRetries}); err != nil {
		t.Fatalf("enqueue %s: %v", id, err)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestPoolCompletesJob(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enqueue(t, s, "ok", "echo hi", 3)

	p := NewPool(s, &fakeRunner{}, Config{Count: 1, Poll: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	waitUntil(t, 5*time.Second, func() bool {
		j, err := s.Get(context.Background(), "ok")
		return err == nil && j.State == domain.StateCompleted
	})
	cancel()
	<-done

	j, err := s.Get(context.Background(), "ok")
	if err != nil {
		t.Fatal(err)
	}
	if j.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", j.Attempts)
	}

	m, err := s.Metrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m[queue.MetricJobsProcessed] != 1 {
		t.Fatalf("jobs_processed = %d", m[queue.MetricJobsProcessed])
	}
}

// TestFailureTrace walks one always-failing job through the whole retry
// ladder without sleeping, by claiming with a "now" past each next_run_at:
// fail -> +2s, fail -> +4s, fail -> dead (attempts 3 > max_retries 2).
func TestFailureTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	enqueue(t, s, "flaky", "false", 2)

	p := NewPool(s, &fakeRunner{fn: func(string) (string, error) {
		return "boom", errors.New("exit 1")
	}}, DefaultConfig())

	delays := []time.Duration{2 * time.Second, 4 * time.Second}
	now := time.Now()
	for attempt := 1; attempt <= 2; attempt++ {
		j, err := s.ClaimNext(ctx, now.Add(time.Duration(attempt)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if j == nil || j.ID != "flaky" || j.Attempts != attempt {
			t.Fatalf("attempt %d: claimed %+v", attempt, j)
		}

		before := time.Now()
		p.execute(j, logger)

		got, err := s.Get(ctx, "flaky")
		if err != nil {
			t.Fatal(err)
		}
		if got.State != domain.StateFailed {
			t.Fatalf("attempt %d: state = %s, want failed", attempt, got.State)
		}
		if got.NextRunAt == nil {
			t.Fatalf("attempt %d: no next_run_at", attempt)
		}
		want := delays[attempt-1]
		d := got.NextRunAt.Sub(before)
		if d < want-time.Second || d > want+2*time.Second {
			t.Fatalf("attempt %d: next_run_at in %s, want about %s", attempt, d, want)
		}
		if got.LastError == "" {
			t.Fatalf("attempt %d: last_error not recorded", attempt)
		}
	}

	// Third failure exhausts max_retries=2.
	j, err := s.ClaimNext(ctx, now.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if j == nil || j.Attempts != 3 {
		t.Fatalf("final claim: %+v", j)
	}
	p.execute(j, logger)

	got, err := s.Get(ctx, "flaky")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StateDead {
		t.Fatalf("state = %s, want dead", got.State)
	}
	if got.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", got.Attempts)
	}

	m, err := s.Metrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m[queue.MetricJobsFailed] != 3 || m[queue.MetricJobsRetried] != 2 {
		t.Fatalf("metrics = %v", m)
	}
}

func TestBackoffBaseReadFresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	if err := s.SetConfig(ctx, "backoff_base", "3"); err != nil {
		t.Fatal(err)
	}
	enqueue(t, s, "b3", "false", 5)

	p := NewPool(s, &fakeRunner{fn: func(string) (string, error) {
		return "", errors.New("exit 1")
	}}, DefaultConfig())

	j, err := s.ClaimNext(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	before := time.Now()
	p.execute(j, logger)

	got, _ := s.Get(ctx, "b3")
	d := got.NextRunAt.Sub(before)
	if d < 2*time.Second || d > 5*time.Second {
		t.Fatalf("first retry delay = %s, want about 3s with base 3", d)
	}
}

func TestInvalidBackoffBaseLeavesProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetConfig(ctx, "backoff_base", "banana"); err != nil {
		t.Fatal(err)
	}
	enqueue(t, s, "stuck", "false", 3)

	p := NewPool(s, &fakeRunner{fn: func(string) (string, error) {
		return "", errors.New("exit 1")
	}}, DefaultConfig())

	j, err := s.ClaimNext(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	p.execute(j, zerolog.Nop())

	got, _ := s.Get(ctx, "stuck")
	if got.State != domain.StateProcessing {
		t.Fatalf("state = %s, want processing (bad config must not guess an outcome)", got.State)
	}
}

func TestTenJobsTwoWorkersEachRunsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 10; i++ {
		enqueue(t, s, fmt.Sprintf("bulk-%d", i), fmt.Sprintf("echo %d", i), 1)
	}

	r := &fakeRunner{}
	p := NewPool(s, r, Config{Count: 2, Poll: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	waitUntil(t, 10*time.Second, func() bool {
		counts, err := s.CountByState(context.Background())
		if err != nil {
			return false
		}
		return counts[domain.StateCompleted]+counts[domain.StateDead] == 10
	})
	cancel()
	<-done

	counts, err := s.CountByState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.StateProcessing] != 0 {
		t.Fatalf("jobs left in processing after shutdown: %v", counts)
	}
	if counts[domain.StateCompleted] != 10 {
		t.Fatalf("counts = %v, want 10 completed", counts)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < 10; i++ {
		cmd := fmt.Sprintf("echo %d", i)
		if r.runs[cmd] != 1 {
			t.Fatalf("command %q ran %d times", cmd, r.runs[cmd])
		}
	}
}

func TestJobLogAppended(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	logs := t.TempDir()

	enqueue(t, s, "logged", "echo out", 0)

	p := NewPool(s, &fakeRunner{fn: func(string) (string, error) {
		return "some output", nil
	}}, Config{LogsDir: logs})

	j, err := s.ClaimNext(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	p.execute(j, zerolog.Nop())

	data, err := os.ReadFile(filepath.Join(logs, "logged.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "some output") {
		t.Fatalf("log file missing output: %q", data)
	}
}
