package budget

import (
	"context"
	"time"
)

// Budget tracks how much wall time a request has left. It is created once
// when a request arrives and consulted before every downstream operation,
// so a child operation can never outlive its caller's deadline. Elapsed
// time is measured with the monotonic clock.
type Budget struct {
	total time.Duration
	start time.Time
}

// New starts a budget of the given total duration. Totals below zero are
// treated as zero, which makes the budget expired immediately.
func New(total time.Duration) *Budget {
	if total < 0 {
		total = 0
	}
	return &Budget{total: total, start: time.Now()}
}

// Total returns the duration the budget started with.
func (b *Budget) Total() time.Duration {
	return b.total
}

// Remaining returns the unspent portion of the budget, floored at zero.
func (b *Budget) Remaining() time.Duration {
	rem := b.total - time.Since(b.start)
	if rem < 0 {
		return 0
	}
	return rem
}

// ForOperation clamps an operation's own ceiling by the remaining budget.
// The result is min(opMax, Remaining()); an operation never gets more
// time than its caller has left.
func (b *Budget) ForOperation(opMax time.Duration) time.Duration {
	if opMax < 0 {
		opMax = 0
	}
	if rem := b.Remaining(); opMax > rem {
		return rem
	}
	return opMax
}

// Expired reports whether the budget is fully spent.
func (b *Budget) Expired() bool {
	return b.Remaining() == 0
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying the budget. Nested dispatches
// read it back with FromContext so inner calls inherit the outer budget
// instead of starting a fresh one.
func NewContext(ctx context.Context, b *Budget) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext extracts the budget carried by ctx, if any.
func FromContext(ctx context.Context) (*Budget, bool) {
	b, ok := ctx.Value(ctxKey{}).(*Budget)
	return b, ok
}

// Context derives a child context whose deadline is the remaining budget,
// carrying the budget for further nesting. The caller must call cancel.
func Context(ctx context.Context, b *Budget) (context.Context, context.CancelFunc) {
	child, cancel := context.WithTimeout(ctx, b.Remaining())
	return NewContext(child, b), cancel
}
