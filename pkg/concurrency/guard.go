package concurrency

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when a session-mutating operation is already running.
var ErrBusy = errors.New("another session operation is in progress")

// Guard serializes session-mutating operations: at most one task runs at a
// time, and a second caller gets ErrBusy instead of queueing.
type Guard struct {
	mu   sync.Mutex
	busy bool
}

// NewGuard returns an idle guard.
func NewGuard() *Guard {
	return &Guard{}
}

func (g *Guard) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	return true
}

func (g *Guard) release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

// Begin reserves the guard for a task that outlives the calling
// function, reporting whether the reservation succeeded. The release
// function must be called exactly once when the task finishes.
func (g *Guard) Begin() (release func(), ok bool) {
	if !g.acquire() {
		return nil, false
	}
	return g.release, true
}

// Execute runs task if the guard is free, returning ErrBusy otherwise.
func (g *Guard) Execute(task func() error) error {
	if !g.acquire() {
		return ErrBusy
	}
	defer g.release()
	return task()
}

// ExecuteWithContext runs task with ctx if the guard is free. The context
// is checked once before the task starts; cancellation during the task is
// the task's own responsibility.
func (g *Guard) ExecuteWithContext(ctx context.Context, task func(context.Context) error) error {
	if !g.acquire() {
		return ErrBusy
	}
	defer g.release()
	if err := ctx.Err(); err != nil {
		return err
	}
	return task(ctx)
}
