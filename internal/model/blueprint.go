package model

import (
	"context"
	"io"
)

// UnitKind discriminates the two kinds of work a blueprint can describe.
type UnitKind int

const (
	KindShell UnitKind = iota + 1
	KindFunction
)

func (k UnitKind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Unit is the tagged variant carried by a Blueprint: either a ShellUnit or a FunctionUnit.
type Unit interface {
	Kind() UnitKind
}

// ShellUnit runs a command line through the engine.
type ShellUnit struct {
	Command      string
	SuccessCodes []int
}

func (ShellUnit) Kind() UnitKind { return KindShell }

// Succeeded reports whether an exit code counts as success for this unit.
func (u ShellUnit) Succeeded(code int) bool {
	codes := u.SuccessCodes
	if len(codes) == 0 {
		codes = DefaultSuccessCodes
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// FunctionUnit invokes an in-process function through the engine.
type FunctionUnit struct {
	Name   string
	Func   Func
	Args   []any
	Kwargs map[string]any
}

func (FunctionUnit) Kind() UnitKind { return KindFunction }

// Func is the signature of functions that can be scheduled as units.
type Func func(ctx context.Context, call Call) (any, error)

// Call carries everything a Func receives when the engine invokes it.
type Call struct {
	Args    []any
	Kwargs  map[string]any
	Inputs  []string
	Outputs []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// DefaultSuccessCodes is used when a shell unit declares none.
var DefaultSuccessCodes = []int{0}

// Blueprint is the declarative description of one unit of work.
type Blueprint struct {
	ID           string
	Name         string
	Unit         Unit
	Inputs       []string
	Outputs      []string
	WaitOn       []string
	Stdout       string
	Stderr       string
	ExecutorHint string
	Resources    map[string]string
}

// Label returns the name used in log lines, falling back to the id.
func (b *Blueprint) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}

// Clone returns a deep copy so callers cannot mutate registered state.
func (b *Blueprint) Clone() *Blueprint {
	c := *b
	c.Inputs = append([]string(nil), b.Inputs...)
	c.Outputs = append([]string(nil), b.Outputs...)
	c.WaitOn = append([]string(nil), b.WaitOn...)
	if b.Resources != nil {
		c.Resources = make(map[string]string, len(b.Resources))
		for k, v := range b.Resources {
			c.Resources[k] = v
		}
	}
	return &c
}

// ArtifactMode records the last role a path was declared with.
type ArtifactMode int

const (
	ModeUnset ArtifactMode = iota
	ModeInput
	ModeOutput
)

func (m ArtifactMode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	default:
		return "unset"
	}
}

// Artifact is a file path declared as a unit input or output.
type Artifact struct {
	Path      string
	Mode      ArtifactMode
	Temporary bool
}
