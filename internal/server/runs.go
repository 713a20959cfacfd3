package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RunManager tracks in-flight gradings so shutdown and client disconnects
// can cancel them.
type RunManager struct {
	mu     sync.Mutex
	runs   map[string]context.CancelFunc
	closed bool
}

// NewRunManager creates a new RunManager.
func NewRunManager() *RunManager {
	return &RunManager{
		runs: make(map[string]context.CancelFunc),
	}
}

// Start registers a run and returns its ID and context. release cancels
// the context and forgets the run; it is safe to call more than once.
// After CloseAll, the returned context is already cancelled.
func (rm *RunManager) Start(parent context.Context) (id string, ctx context.Context, release func()) {
	ctx, cancel := context.WithCancel(parent)
	id = uuid.NewString()

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		cancel()
		return id, ctx, func() {}
	}
	rm.runs[id] = cancel

	return id, ctx, func() {
		cancel()
		rm.mu.Lock()
		delete(rm.runs, id)
		rm.mu.Unlock()
	}
}

// Cancel stops a single run. It reports whether the run was active.
func (rm *RunManager) Cancel(id string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	cancel, ok := rm.runs[id]
	if ok {
		cancel()
		delete(rm.runs, id)
	}
	return ok
}

// Active returns the number of runs in flight.
func (rm *RunManager) Active() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.runs)
}

// CloseAll cancels every active run and refuses new ones.
func (rm *RunManager) CloseAll() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.closed = true
	for id, cancel := range rm.runs {
		cancel()
		delete(rm.runs, id)
	}
}
