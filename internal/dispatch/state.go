package dispatch

import "fmt"

// State is a stage in the request lifecycle.
type State string

const (
	StateReceived      State = "received"
	StateAuthenticated State = "authenticated"
	StateResolved      State = "resolved"
	StateCacheHit      State = "cache_hit"
	StateExecuting     State = "executing"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// transitions lists the legal successor states. Completed and Failed are
// terminal: every request passes through exactly one of them, exactly once.
var transitions = map[State][]State{
	StateReceived:      {StateAuthenticated, StateFailed},
	StateAuthenticated: {StateResolved, StateFailed},
	StateResolved:      {StateCacheHit, StateExecuting, StateFailed},
	StateCacheHit:      {StateCompleted},
	StateExecuting:     {StateCompleted, StateFailed},
	StateCompleted:     {},
	StateFailed:        {},
}

// Terminal reports whether s ends the lifecycle.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// lifecycle tracks one request through the state machine and rejects
// illegal transitions.
type lifecycle struct {
	state State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateReceived}
}

// advance moves the lifecycle to the next state.
func (l *lifecycle) advance(next State) error {
	for _, allowed := range transitions[l.state] {
		if allowed == next {
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", l.state, next)
}

// mustAdvance is advance for transitions the dispatcher controls itself.
// An illegal transition here is a programming error, not a request error.
func (l *lifecycle) mustAdvance(next State) {
	if err := l.advance(next); err != nil {
		panic(err)
	}
}
