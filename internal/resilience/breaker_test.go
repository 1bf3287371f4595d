package resilience

import (
	"errors"
	"testing"
	"time"
)

func failingBreaker(t *testing.T, reset time.Duration) *Breaker {
	t.Helper()
	return NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  3,
		ResetTimeout: reset,
		ProbeBudget:  2,
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, time.Hour)
	boom := errors.New("backend down")

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Open breaker rejects without calling the function.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("want ErrOpen, got %v", err)
	}
	if called {
		t.Error("open breaker forwarded the call")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, time.Hour)
	boom := errors.New("flaky")

	b.Execute(func() error { return boom })
	b.Execute(func() error { return boom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return boom })
	b.Execute(func() error { return boom })

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after interleaved success", b.State())
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, 10*time.Millisecond)
	boom := errors.New("down")
	for i := 0; i < 3; i++ {
		b.Execute(func() error { return boom })
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", b.State())
	}

	// ProbeBudget is 2; two successful probes close the breaker.
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, 10*time.Millisecond)
	boom := errors.New("down")
	for i := 0; i < 3; i++ {
		b.Execute(func() error { return boom })
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := failingBreaker(t, time.Hour)
	boom := errors.New("down")
	for i := 0; i < 3; i++ {
		b.Execute(func() error { return boom })
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("call after reset: %v", err)
	}
}
