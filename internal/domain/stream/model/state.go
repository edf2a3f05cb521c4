// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "fmt"

// State is the lifecycle state of a stream session.
type State string

const (
	StateIdle     State = "idle" // conceptual pre-creation state, never persisted
	StateStarting State = "starting"
	StateLive     State = "live"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// IsTerminal reports whether no transition may leave s.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// OccupiesSlot reports whether a session in s holds the owner's concurrency
// slot and a process handle.
func (s State) OccupiesSlot() bool {
	switch s {
	case StateStarting, StateLive, StateStopping:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateStarting, StateLive, StateStopping, StateStopped, StateFailed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateLive, StateFailed},
	// Live -> Stopped is natural completion of a single-pass stream.
	StateLive:     {StateStopping, StateFailed, StateStopped},
	// A stop that was already requested always ends in Stopped.
	StateStopping: {StateStopped},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IllegalTransitionError is returned when a caller attempts an edge that is
// not part of the state machine.
type IllegalTransitionError struct {
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
