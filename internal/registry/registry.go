// Package registry holds the blueprints and artifact declarations assembled for one run.
package registry

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sourceplane/flowline/internal/model"
)

// Capture is a default stream file the registry assigned to a unit.
type Capture struct {
	ID     string
	Name   string
	Stream string
	Path   string
}

// Registry is an append-only store of blueprints keyed by generated id.
type Registry struct {
	mu         sync.Mutex
	captureDir string
	counter    int
	order      []string
	blueprints map[string]*model.Blueprint
	artifacts  map[string]*model.Artifact
	paths      []string
	captures   []Capture
}

// New creates a registry that places default stream files under captureDir.
func New(captureDir string) *Registry {
	return &Registry{
		captureDir: captureDir,
		blueprints: make(map[string]*model.Blueprint),
		artifacts:  make(map[string]*model.Artifact),
	}
}

// Register assigns an id of the form <prefix>_<n> and stores a copy of the blueprint.
// Inputs and outputs are declared as artifacts.
func (r *Registry) Register(prefix string, bp *model.Blueprint) (string, error) {
	if bp == nil {
		return "", fmt.Errorf("blueprint cannot be nil")
	}
	if bp.Unit == nil {
		return "", fmt.Errorf("blueprint %q has no unit", bp.Name)
	}
	prefix = idPrefix(prefix)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := fmt.Sprintf("%s_%d", prefix, r.counter)
	r.counter++

	stored := bp.Clone()
	stored.ID = id
	if stored.Stdout == "" {
		stored.Stdout = filepath.Join(r.captureDir, id+".stdout")
		r.captures = append(r.captures, Capture{ID: id, Name: stored.Label(), Stream: "stdout", Path: stored.Stdout})
	}
	if stored.Stderr == "" {
		stored.Stderr = filepath.Join(r.captureDir, id+".stderr")
		r.captures = append(r.captures, Capture{ID: id, Name: stored.Label(), Stream: "stderr", Path: stored.Stderr})
	}

	for _, in := range stored.Inputs {
		r.declareLocked(in, model.ModeInput, false)
	}
	for _, out := range stored.Outputs {
		r.declareLocked(out, model.ModeOutput, false)
	}

	r.blueprints[id] = stored
	r.order = append(r.order, id)
	return id, nil
}

// Declare records a path with its mode. The last declaration wins for mode; temporary is sticky.
func (r *Registry) Declare(path string, mode model.ArtifactMode, temporary bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declareLocked(path, mode, temporary)
}

func (r *Registry) declareLocked(path string, mode model.ArtifactMode, temporary bool) {
	a, ok := r.artifacts[path]
	if !ok {
		a = &model.Artifact{Path: path}
		r.artifacts[path] = a
		r.paths = append(r.paths, path)
	}
	a.Mode = mode
	if temporary {
		a.Temporary = true
	}
}

// Get returns a copy of the blueprint with the given id.
func (r *Registry) Get(id string) (*model.Blueprint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.blueprints[id]
	if !ok {
		return nil, false
	}
	return bp.Clone(), true
}

// Blueprints returns copies of all blueprints in registration order.
func (r *Registry) Blueprints() []*model.Blueprint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Blueprint, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.blueprints[id].Clone())
	}
	return out
}

// Artifact returns the declaration for a path.
func (r *Registry) Artifact(path string) (model.Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[path]
	if !ok {
		return model.Artifact{}, false
	}
	return *a, true
}

// Artifacts returns every declared artifact in first-seen order.
func (r *Registry) Artifacts() []model.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Artifact, 0, len(r.paths))
	for _, p := range r.paths {
		out = append(out, *r.artifacts[p])
	}
	return out
}

// Captures returns the default stream files assigned during registration.
func (r *Registry) Captures() []Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Capture(nil), r.captures...)
}

// Len returns the number of registered blueprints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func idPrefix(prefix string) string {
	prefix = filepath.Base(strings.TrimSpace(prefix))
	if prefix == "" || prefix == "." || prefix == "/" {
		return "unit"
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '_'
		}
		return r
	}, prefix)
}
