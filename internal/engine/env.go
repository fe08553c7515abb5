package engine

import (
	"github.com/roach88/dustrun/internal/ir"
)

// Binding is a named value in the K environment.
type Binding struct {
	Name  string   `json:"name"`
	Value ir.Value `json:"value"`
}

// frame is one lexical scope. Bindings are kept in acquisition order so
// release can walk them backwards.
type frame struct {
	names  []string
	values map[string]ir.Value
}

func newFrame() *frame {
	return &frame{values: make(map[string]ir.Value)}
}

// Env is the scoped K environment of a run.
//
// The root frame lives for the whole run. enter pushes a frame, leave
// pops it and releases its bindings in reverse order of acquisition.
// Releases are logged so tests and tooling can observe the order.
type Env struct {
	frames   []*frame
	releases []string
}

// NewEnv creates an environment holding only the root frame.
func NewEnv() *Env {
	return &Env{frames: []*frame{newFrame()}}
}

// Bind binds name in the innermost frame. Rebinding a name already bound
// in that frame replaces its value and keeps its original position.
func (e *Env) Bind(name string, v ir.Value) {
	f := e.frames[len(e.frames)-1]
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = v
}

// Lookup resolves name from the innermost frame outwards.
func (e *Env) Lookup(name string) (ir.Value, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if v, ok := e.frames[i].values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// depth returns the number of open frames, root included.
func (e *Env) depth() int {
	return len(e.frames)
}

// Push opens a new scope.
func (e *Env) Push() {
	e.frames = append(e.frames, newFrame())
}

// Pop closes the innermost scope. The root frame cannot be popped.
func (e *Env) Pop() error {
	if e.depth() == 1 {
		return NewFault(KindRuntimeFault, "leave without matching enter")
	}
	e.release(e.frames[len(e.frames)-1])
	e.frames = e.frames[:len(e.frames)-1]
	return nil
}

// UnwindAll releases every open frame, innermost first, root last.
// Called once when the run terminates, whatever the outcome.
func (e *Env) UnwindAll() {
	for i := len(e.frames) - 1; i >= 0; i-- {
		e.release(e.frames[i])
	}
	e.frames = e.frames[:1]
	e.frames[0] = newFrame()
}

func (e *Env) release(f *frame) {
	for i := len(f.names) - 1; i >= 0; i-- {
		e.releases = append(e.releases, f.names[i])
	}
}

// Releases returns binding names in the order they were released.
func (e *Env) Releases() []string {
	out := make([]string, len(e.releases))
	copy(out, e.releases)
	return out
}

// Bindings returns the visible bindings, outermost frame first, each
// frame in acquisition order. Shadowed bindings are omitted.
func (e *Env) Bindings() []Binding {
	var out []Binding
	for i, f := range e.frames {
		for _, name := range f.names {
			if e.shadowed(name, i) {
				continue
			}
			out = append(out, Binding{Name: name, Value: f.values[name]})
		}
	}
	return out
}

func (e *Env) shadowed(name string, depth int) bool {
	for j := depth + 1; j < len(e.frames); j++ {
		if _, ok := e.frames[j].values[name]; ok {
			return true
		}
	}
	return false
}
