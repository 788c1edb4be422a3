package backoff_test

import (
	"testing"
	"time"

	"github.com/assaka/daino-sub010/backoff"
)

func TestDeterministicStrategies(t *testing.T) {
	tests := []struct {
		name  string
		s     backoff.Strategy
		retry int
		want  time.Duration
	}{
		{"constant first", backoff.Constant(3 * time.Second), 1, 3 * time.Second},
		{"constant later", backoff.Constant(3 * time.Second), 9, 3 * time.Second},
		{"constant zero", backoff.Constant(0), 4, 0},
		{"linear 1", backoff.Linear(time.Second, time.Minute), 1, time.Second},
		{"linear 4", backoff.Linear(time.Second, time.Minute), 4, 4 * time.Second},
		{"linear capped", backoff.Linear(time.Second, 5*time.Second), 40, 5 * time.Second},
		{"linear uncapped", backoff.Linear(time.Second, 0), 90, 90 * time.Second},
		{"exponential 1", backoff.Exponential(time.Second, time.Hour), 1, time.Second},
		{"exponential 3", backoff.Exponential(time.Second, time.Hour), 3, 4 * time.Second},
		{"exponential 5", backoff.Exponential(time.Second, time.Hour), 5, 16 * time.Second},
		{"exponential capped", backoff.Exponential(time.Second, 10*time.Second), 5, 10 * time.Second},
		{"exponential huge retry", backoff.Exponential(time.Second, time.Minute), 500, time.Minute},
		{"retry zero treated as first", backoff.Exponential(2*time.Second, 0), 0, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Delay(tt.retry); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.retry, got, tt.want)
			}
		})
	}
}

func TestFunc(t *testing.T) {
	s := backoff.Func(func(retry int) time.Duration { return time.Duration(retry) * time.Millisecond })
	if got := s.Delay(7); got != 7*time.Millisecond {
		t.Errorf("Delay(7) = %v", got)
	}
}

func TestJitterBounds(t *testing.T) {
	base := backoff.Constant(8 * time.Second)

	full := backoff.Jitter(base, true)
	equal := backoff.Jitter(base, false)
	seen := make(map[time.Duration]bool)
	for range 200 {
		d := full.Delay(1)
		if d < 0 || d >= 8*time.Second {
			t.Fatalf("full jitter delay %v out of [0, 8s)", d)
		}
		seen[d] = true

		d = equal.Delay(1)
		if d < 4*time.Second || d >= 8*time.Second {
			t.Fatalf("equal jitter delay %v out of [4s, 8s)", d)
		}
	}
	if len(seen) < 2 {
		t.Errorf("expected jitter to vary, got %d distinct values", len(seen))
	}

	if got := backoff.Jitter(backoff.Constant(0), true).Delay(3); got != 0 {
		t.Errorf("jitter of zero = %v, want 0", got)
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	for retry := 1; retry <= 12; retry++ {
		d := s.Delay(retry)
		if d < 0 || d > time.Minute {
			t.Errorf("Delay(%d) = %v, want within [0, 1m]", retry, d)
		}
	}
	if d := s.Delay(1); d > time.Second {
		t.Errorf("Delay(1) = %v, want <= 1s", d)
	}
}
