package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Future is a Handle implementation backends can complete from any goroutine.
type Future struct {
	id       string
	started  atomic.Bool
	done     chan struct{}
	once     sync.Once
	value    any
	err      error
	outputs  map[string]Handle
	children []*Future
}

// NewFuture creates a pending future with one child future per output path.
func NewFuture(id string, outputs []string) *Future {
	f := &Future{id: id, done: make(chan struct{}), outputs: make(map[string]Handle, len(outputs))}
	for _, path := range outputs {
		if _, exists := f.outputs[path]; exists {
			continue
		}
		child := &Future{id: id + ":" + path, done: make(chan struct{}), outputs: map[string]Handle{}}
		f.outputs[path] = child
		f.children = append(f.children, child)
	}
	return f
}

func (f *Future) TaskID() string { return f.id }

func (f *Future) Started() bool { return f.started.Load() }

func (f *Future) Finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Start marks the future as running.
func (f *Future) Start() {
	f.started.Store(true)
	for _, c := range f.children {
		c.started.Store(true)
	}
}

// Complete resolves the future and its output futures. Only the first call has effect.
func (f *Future) Complete(value any, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		for _, c := range f.children {
			c.Complete(nil, err)
		}
		close(f.done)
	})
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome once resolved. A resolved future answers even
// when ctx is already done.
func (f *Future) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) Outputs() map[string]Handle {
	out := make(map[string]Handle, len(f.outputs))
	for k, v := range f.outputs {
		out[k] = v
	}
	return out
}
