// Package schedule maps work units to executors and registers them with an engine
// in dependency order.
package schedule

import "github.com/sourceplane/flowline/internal/engine"

// Selector chooses the backend executor label for a unit.
type Selector struct {
	// PipelinePools are the executor pools the pipeline declares.
	PipelinePools []string
	// BackendExecutors are the executor labels the engine exposes.
	BackendExecutors []string
	// DefaultPool is the pipeline's default pool, empty when undefined.
	DefaultPool string
}

// Select returns the executor label for a unit with the given hint.
// When either side has at most one pool there is nothing to choose and the
// backend gets "all". Otherwise a hint known to the backend wins, then the
// default pool, then "all".
func (s Selector) Select(hint string) string {
	if len(s.PipelinePools) <= 1 || len(s.BackendExecutors) <= 1 {
		return engine.AllExecutors
	}
	if hint != "" && s.known(hint) {
		return hint
	}
	if s.DefaultPool != "" && s.known(s.DefaultPool) {
		return s.DefaultPool
	}
	return engine.AllExecutors
}

func (s Selector) known(label string) bool {
	for _, e := range s.BackendExecutors {
		if e == label {
			return true
		}
	}
	return false
}
