package budget

import (
	"context"
	"testing"
	"time"
)

func TestRemaining(t *testing.T) {
	b := New(100 * time.Millisecond)

	if rem := b.Remaining(); rem <= 0 || rem > 100*time.Millisecond {
		t.Fatalf("Remaining() = %v, want (0, 100ms]", rem)
	}

	time.Sleep(20 * time.Millisecond)
	if rem := b.Remaining(); rem > 80*time.Millisecond {
		t.Errorf("Remaining() = %v after 20ms, want <= 80ms", rem)
	}
}

func TestRemainingFloorsAtZero(t *testing.T) {
	b := New(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if rem := b.Remaining(); rem != 0 {
		t.Errorf("Remaining() = %v after overspend, want 0", rem)
	}
	if !b.Expired() {
		t.Error("Expired() = false after overspend, want true")
	}
}

func TestForOperation(t *testing.T) {
	tests := []struct {
		name  string
		total time.Duration
		opMax time.Duration
		check func(t *testing.T, got time.Duration)
	}{
		{
			name:  "op ceiling below remaining",
			total: time.Second,
			opMax: 50 * time.Millisecond,
			check: func(t *testing.T, got time.Duration) {
				if got != 50*time.Millisecond {
					t.Errorf("got %v, want op ceiling 50ms", got)
				}
			},
		},
		{
			name:  "op ceiling above remaining clamps",
			total: 50 * time.Millisecond,
			opMax: time.Second,
			check: func(t *testing.T, got time.Duration) {
				if got > 50*time.Millisecond || got <= 0 {
					t.Errorf("got %v, want clamped to remaining (0, 50ms]", got)
				}
			},
		},
		{
			name:  "zero op ceiling",
			total: time.Second,
			opMax: 0,
			check: func(t *testing.T, got time.Duration) {
				if got != 0 {
					t.Errorf("got %v, want 0", got)
				}
			},
		},
		{
			name:  "negative op ceiling",
			total: time.Second,
			opMax: -time.Second,
			check: func(t *testing.T, got time.Duration) {
				if got != 0 {
					t.Errorf("got %v, want 0", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, New(tt.total).ForOperation(tt.opMax))
		})
	}
}

func TestZeroBudgetExpiredImmediately(t *testing.T) {
	b := New(0)
	if !b.Expired() {
		t.Error("Expired() = false for zero budget, want true")
	}
	if got := b.ForOperation(time.Second); got != 0 {
		t.Errorf("ForOperation() = %v for zero budget, want 0", got)
	}
}

func TestNegativeTotalTreatedAsZero(t *testing.T) {
	b := New(-time.Second)
	if b.Total() != 0 {
		t.Errorf("Total() = %v, want 0", b.Total())
	}
	if !b.Expired() {
		t.Error("Expired() = false for negative total, want true")
	}
}

func TestContextCarriage(t *testing.T) {
	b := New(time.Second)
	ctx := NewContext(context.Background(), b)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("FromContext() did not find the budget")
	}
	if got != b {
		t.Error("FromContext() returned a different budget")
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() found a budget in an empty context")
	}
}

func TestContextDeadlineMatchesRemaining(t *testing.T) {
	b := New(80 * time.Millisecond)
	ctx, cancel := Context(context.Background(), b)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("derived context has no deadline")
	}
	until := time.Until(deadline)
	if until > 80*time.Millisecond || until <= 0 {
		t.Errorf("deadline in %v, want within remaining budget", until)
	}

	if _, ok := FromContext(ctx); !ok {
		t.Error("derived context should still carry the budget")
	}
}

func TestChildNeverExceedsParent(t *testing.T) {
	parent := New(60 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	child := parent.ForOperation(time.Minute)
	if child > 40*time.Millisecond {
		t.Errorf("child timeout %v exceeds parent remaining", child)
	}
}
