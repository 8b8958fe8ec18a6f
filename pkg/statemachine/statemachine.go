// Package statemachine runs state functions: each state does its work and
// returns the next state, and a nil state ends the machine.
package statemachine

import (
	"context"
	"sync"
)

// StateFn is a state. It returns the next state, or nil to stop.
type StateFn[T any] func(ctx context.Context, entity *T) StateFn[T]

// StateMachine drives an entity through its states.
type StateMachine[T any] struct {
	entity *T

	mu      sync.RWMutex
	stateFn StateFn[T]
	steps   uint64
}

// NewStateMachine creates a machine for entity starting at initial.
func NewStateMachine[T any](entity *T, initial StateFn[T]) *StateMachine[T] {
	return &StateMachine[T]{
		entity:  entity,
		stateFn: initial,
	}
}

// Dispatch runs the current state once and moves to the state it returns. It
// reports whether the machine can continue.
func (sm *StateMachine[T]) Dispatch(ctx context.Context) bool {
	sm.mu.RLock()
	fn := sm.stateFn
	sm.mu.RUnlock()
	if fn == nil {
		return false
	}

	next := fn(ctx, sm.entity)

	sm.mu.Lock()
	sm.stateFn = next
	sm.steps++
	sm.mu.Unlock()
	return next != nil
}

// Run dispatches until a state returns nil or ctx is done.
func (sm *StateMachine[T]) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sm.Dispatch(ctx) {
			return nil
		}
	}
}

// GetCurrentState returns the state that runs next.
func (sm *StateMachine[T]) GetCurrentState() StateFn[T] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateFn
}

// SetState replaces the state that runs next.
func (sm *StateMachine[T]) SetState(fn StateFn[T]) {
	sm.mu.Lock()
	sm.stateFn = fn
	sm.mu.Unlock()
}

// Steps returns how many states have run.
func (sm *StateMachine[T]) Steps() uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.steps
}
