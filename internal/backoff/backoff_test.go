package backoff

import (
	"errors"
	"testing"
	"time"

	"queuectl/internal/domain"
)

func TestDecideDelaySequence(t *testing.T) {
	// base 2, plenty of retries left: delays must be 2^1, 2^2, 2^3 seconds.
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		d, err := Decide(i+1, 10, 2)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if d.Exhausted {
			t.Fatalf("attempt %d: unexpectedly exhausted", i+1)
		}
		if d.Delay != w {
			t.Fatalf("attempt %d: delay = %s, want %s", i+1, d.Delay, w)
		}
	}
}

func TestDecideExhaustedBoundary(t *testing.T) {
	// attempts == maxRetries still retries; attempts > maxRetries is dead.
	d, err := Decide(2, 2, 2)
	if err != nil || d.Exhausted {
		t.Fatalf("Decide(2,2) = %+v, %v; want retry", d, err)
	}
	d, err = Decide(3, 2, 2)
	if err != nil || !d.Exhausted {
		t.Fatalf("Decide(3,2) = %+v, %v; want exhausted", d, err)
	}
}

func TestDecideZeroRetries(t *testing.T) {
	d, err := Decide(1, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Exhausted {
		t.Fatal("max_retries=0 must exhaust on the first failure")
	}
}

func TestDecideFractionalBase(t *testing.T) {
	d, err := Decide(2, 5, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if d.Delay != 2250*time.Millisecond {
		t.Fatalf("delay = %s, want 2.25s", d.Delay)
	}
}

func TestDecideInvalidBase(t *testing.T) {
	for _, base := range []float64{0, -1} {
		if _, err := Decide(1, 3, base); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("base %v: err = %v, want ErrInvalidConfig", base, err)
		}
	}
}

func TestParseBase(t *testing.T) {
	got, err := ParseBase("2.5")
	if err != nil || got != 2.5 {
		t.Fatalf("ParseBase(2.5) = %v, %v", got, err)
	}
	for _, raw := range []string{"", "abc", "0", "-3", "NaN"} {
		if _, err := ParseBase(raw); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("ParseBase(%q): err = %v, want ErrInvalidConfig", raw, err)
		}
	}
}
