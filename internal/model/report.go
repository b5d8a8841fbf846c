package model

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle state of a unit as observed by the monitor.
type RunState string

const (
	StatePending   RunState = "pending"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// UnitStatus is the final status of one unit in a run.
type UnitStatus struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Executor string   `json:"executor" yaml:"executor"`
	State    RunState `json:"state" yaml:"state"`
	Started  bool     `json:"started" yaml:"started"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// CapturedStream is the content of one captured stdout or stderr file.
type CapturedStream struct {
	Unit    string `json:"unit" yaml:"unit"`
	Stream  string `json:"stream" yaml:"stream"`
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	Missing bool   `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// RunReport summarizes a monitored run.
type RunReport struct {
	RunID            uuid.UUID        `json:"runId" yaml:"runId"`
	Pipeline         string           `json:"pipeline" yaml:"pipeline"`
	Start            time.Time        `json:"start" yaml:"start"`
	End              time.Time        `json:"end" yaml:"end"`
	Elapsed          time.Duration    `json:"elapsed" yaml:"elapsed"`
	Interrupted      bool             `json:"interrupted" yaml:"interrupted"`
	Units            []UnitStatus     `json:"units" yaml:"units"`
	Failed           []string         `json:"failed" yaml:"failed"`
	NeverRan         []string         `json:"neverRan" yaml:"neverRan"`
	Captured         []CapturedStream `json:"captured,omitempty" yaml:"captured,omitempty"`
	Temporary        []string         `json:"temporary,omitempty" yaml:"temporary,omitempty"`
	TemporaryDeleted bool             `json:"temporaryDeleted" yaml:"temporaryDeleted"`
}

// Succeeded reports whether every unit completed and the run was not interrupted.
func (r *RunReport) Succeeded() bool {
	if r.Interrupted {
		return false
	}
	for _, u := range r.Units {
		if u.State != StateCompleted {
			return false
		}
	}
	return true
}

// Status returns the status of a unit by id.
func (r *RunReport) Status(id string) (UnitStatus, bool) {
	for _, u := range r.Units {
		if u.ID == id {
			return u, true
		}
	}
	return UnitStatus{}, false
}
