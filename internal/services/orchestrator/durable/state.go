// Package durable runs workflow activities with retries, identity locks and
// tracked execution state
package durable

import (
	"slices"

	perr "signalroom/internal/platform/errors"
)

// State is the lifecycle position of an execution
type State string

// Execution states
const (
	Pending         State = "PENDING"
	Running         State = "RUNNING"
	Succeeded       State = "SUCCEEDED"
	FailedRetryable State = "FAILED_RETRYABLE"
	FailedTerminal  State = "FAILED_TERMINAL"
)

var transitions = map[State][]State{
	Pending:         {Running},
	Running:         {Succeeded, FailedRetryable, FailedTerminal},
	FailedRetryable: {Running, FailedTerminal},
}

// CanTransition reports whether s may move to next
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

// Final reports whether s admits no further transition
func (s State) Final() bool { return len(transitions[s]) == 0 }

// Transition returns next or an error naming the illegal move
func (s State) Transition(next State) (State, error) {
	if !s.CanTransition(next) {
		return s, perr.Newf(perr.ErrorCodeConflict, "illegal transition %s -> %s", s, next)
	}
	return next, nil
}
