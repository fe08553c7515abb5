package engine

import (
	"fmt"

	"github.com/roach88/dustrun/internal/ir"
)

// HandleState is the lifecycle state of a Q resource handle.
type HandleState string

const (
	HandleAllocated   HandleState = "Allocated"
	HandleInUse       HandleState = "InUse"
	HandleMeasured    HandleState = "Measured"
	HandleDeallocated HandleState = "Deallocated"
)

// Live reports whether a handle in this state still needs resolving.
func (s HandleState) Live() bool {
	return s == HandleAllocated || s == HandleInUse
}

// Handle is one arena slot. ID is the arena index and never reused.
type Handle struct {
	ID    int         `json:"id"`
	Owner string      `json:"owner"`
	Type  string      `json:"type"`
	State HandleState `json:"state"`
	Uses  int         `json:"uses"`
	bit   int64
}

// flipGates flip the classical shadow bit; every other gate leaves it alone.
var flipGates = map[string]bool{"X": true, "NOT": true}

// QState is the arena of Q resource handles for a single run.
//
// owners maps a name to the handle it currently owns. A moved-out name is
// remembered in movedTo so later misuse gets a precise message; a
// consumed name stays in owners pointing at its Measured or Deallocated
// handle until the name is reallocated.
type QState struct {
	arena   []Handle
	owners  map[string]int
	movedTo map[string]string
}

// NewQState creates an empty arena.
func NewQState() *QState {
	return &QState{owners: make(map[string]int), movedTo: make(map[string]string)}
}

// Live returns the number of Allocated or InUse handles.
func (q *QState) Live() int {
	n := 0
	for _, h := range q.arena {
		if h.State.Live() {
			n++
		}
	}
	return n
}

// Handles returns a copy of the arena in allocation order.
func (q *QState) Handles() []Handle {
	out := make([]Handle, len(q.arena))
	copy(out, q.arena)
	return out
}

func linearity(format string, args ...any) *Fault {
	return NewFault(KindLinearityViolation, format, args...)
}

// lookup returns the live handle owned by name.
func (q *QState) lookup(name string) (*Handle, error) {
	id, ok := q.owners[name]
	if !ok {
		if to, moved := q.movedTo[name]; moved {
			return nil, linearity("resource %q was moved to %q", name, to)
		}
		return nil, linearity("unknown resource %q", name)
	}
	h := &q.arena[id]
	switch h.State {
	case HandleMeasured:
		return nil, linearity("resource %q already measured", name)
	case HandleDeallocated:
		return nil, linearity("resource %q already deallocated", name)
	}
	return h, nil
}

func (q *QState) isLive(name string) bool {
	id, ok := q.owners[name]
	return ok && q.arena[id].State.Live()
}

// Alloc creates a fresh handle of resource type ty owned by name.
func (q *QState) Alloc(name, ty string) (string, error) {
	if q.isLive(name) {
		return "", linearity("resource %q is already live", name)
	}
	id := len(q.arena)
	q.arena = append(q.arena, Handle{ID: id, Owner: name, Type: ty, State: HandleAllocated})
	q.owners[name] = id
	delete(q.movedTo, name)
	return fmt.Sprintf("%s#%d", name, id), nil
}

// Use applies gate to the handle owned by name.
func (q *QState) Use(name, gate string) (string, error) {
	h, err := q.lookup(name)
	if err != nil {
		return "", err
	}
	h.State = HandleInUse
	h.Uses++
	if flipGates[gate] {
		h.bit ^= 1
	}
	return fmt.Sprintf("%s#%d %s", name, h.ID, gate), nil
}

// Measure consumes the handle and returns its classical outcome.
func (q *QState) Measure(name string) (ir.Value, string, error) {
	h, err := q.lookup(name)
	if err != nil {
		return nil, "", err
	}
	h.State = HandleMeasured
	return ir.Int(h.bit), fmt.Sprintf("%s#%d -> m=%d", name, h.ID, h.bit), nil
}

// Dealloc consumes the handle without observing it.
func (q *QState) Dealloc(name string) (string, error) {
	h, err := q.lookup(name)
	if err != nil {
		return "", err
	}
	h.State = HandleDeallocated
	return fmt.Sprintf("%s#%d", name, h.ID), nil
}

// Move transfers ownership from name to into. The old name no longer
// refers to anything, so the handle is never aliased.
func (q *QState) Move(name, into string) (string, error) {
	h, err := q.lookup(name)
	if err != nil {
		return "", err
	}
	if name == into || q.isLive(into) {
		return "", linearity("resource %q is already live", into)
	}
	h.Owner = into
	q.owners[into] = h.ID
	delete(q.owners, name)
	delete(q.movedTo, into)
	q.movedTo[name] = into
	return fmt.Sprintf("%s#%d -> %s", name, h.ID, into), nil
}

// CheckComplete fails on the first handle, in allocation order, that is
// still Allocated or InUse.
func (q *QState) CheckComplete() error {
	for _, h := range q.arena {
		if h.State.Live() {
			return linearity("resource %q was never measured or deallocated", h.Owner)
		}
	}
	return nil
}
