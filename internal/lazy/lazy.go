// Package lazy provides a process-wide resource that is initialized on first use.
package lazy

import (
	"context"
	"sync"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Value runs its init function at most once at a time. Callers arriving while an
// init is in flight wait for that same attempt. A failed attempt is retried by
// the next caller; a successful one is kept for the life of the process.
type Value[T any] struct {
	init func(context.Context) (T, error)

	mu    sync.Mutex
	state State
	val   T
	err   error
	done  chan struct{}
}

func New[T any](init func(context.Context) (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

func (v *Value[T]) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.mu.Lock()
	switch v.state {
	case Ready:
		val := v.val
		v.mu.Unlock()
		return val, nil
	case Loading:
		done := v.done
		v.mu.Unlock()
		return v.wait(ctx, done)
	}

	v.state = Loading
	done := make(chan struct{})
	v.done = done
	v.mu.Unlock()

	// The init is shared by every waiter, so it must outlive this caller's cancellation.
	val, err := v.init(context.WithoutCancel(ctx))

	v.mu.Lock()
	if err != nil {
		v.state = Failed
		v.err = err
	} else {
		v.state = Ready
		v.val = val
		v.err = nil
	}
	close(done)
	v.mu.Unlock()

	return val, err
}

func (v *Value[T]) wait(ctx context.Context, done <-chan struct{}) (T, error) {
	select {
	case <-done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == Ready {
		return v.val, nil
	}
	var zero T
	return zero, v.err
}
