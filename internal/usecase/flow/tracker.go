package flow

import (
	"context"
	"sync"
)

// tracker counts background goroutines and lets callers wait for all of them.
// Unlike sync.WaitGroup it can be waited on with a context while work is still being added.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

// goTracked runs fn in a tracked goroutine
func (t *tracker) goTracked(fn func()) {
	t.add()
	go func() {
		defer t.done()
		fn()
	}()
}

// wait blocks until no tracked goroutine is running or ctx ends
func (t *tracker) wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.n == 0 {
			t.mu.Unlock()
			return nil
		}
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
