// Package task tracks in-flight agent runs keyed by session id.
//
// The registry gives the cancel endpoint a handle on a running session: one
// run per session at a time, cancellation through the run's context.
package task

import (
	"context"
	"errors"
	"sync"
)

// ErrTaskExists indicates a run is already registered for the session.
var ErrTaskExists = errors.New("task already running for session")

// Task is one registered run. Cancelling a task cancels its context; the
// owning goroutine marks it done when the run finishes for any reason.
type Task struct {
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
}

// Cancel requests cancellation of the run's context.
func (t *Task) Cancel() {
	t.cancel()
}

// MarkDone records that the run has finished. Safe to call more than once.
func (t *Task) MarkDone() {
	t.once.Do(func() { close(t.done) })
}

// Done returns a channel closed when the run finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Registry maps session ids to their single in-flight task.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register records a new task for the session. Returns ErrTaskExists when the
// session already has a run in flight.
func (r *Registry) Register(sessionID string, cancel context.CancelFunc) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[sessionID]; ok {
		return nil, ErrTaskExists
	}

	t := &Task{cancel: cancel, done: make(chan struct{})}
	r.tasks[sessionID] = t
	return t, nil
}

// Unregister removes the session's task. A no-op when nothing is registered,
// so the deferred cleanup path can call it unconditionally.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, sessionID)
}

// Cancel cancels the session's in-flight task. It reports whether a task was
// found; false means the session has no running task (never started, already
// finished, or already cleaned up).
func (r *Registry) Cancel(sessionID string) bool {
	r.mu.Lock()
	t, ok := r.tasks[sessionID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// Lookup returns the session's in-flight task, if any.
func (r *Registry) Lookup(sessionID string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[sessionID]
	return t, ok
}

// Running reports whether the session currently has a registered task.
func (r *Registry) Running(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[sessionID]
	return ok
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
