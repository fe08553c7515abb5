package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dustrun/internal/ir"
)

// State is the dispatcher's lifecycle state.
type State string

const (
	StateResolving State = "Resolving"
	StateStepping  State = "Stepping"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
	StateCancelled State = "Cancelled"
)

// Terminal reports whether no further step is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Machine is the regime dispatcher for one run of one program.
//
// A Machine is pull-based: every Step call advances exactly one unit of
// work and returns control. The first Step resolves admissibility; each
// later Step executes one K or Q statement. Φ statements were decided by
// the resolver and are skipped without ticking.
//
// Thread-safety: a Machine is owned by a single goroutine. Different
// Machines share nothing and may run concurrently.
//
// INVARIANTS:
//   - statements run strictly in body order
//   - the clock advances by exactly 1 per executed K or Q statement
//   - after a fault no statement runs and no effect is appended
//   - open scopes are unwound on every exit path
type Machine struct {
	prog *ir.Program
	cfg  Config
	plan *plan

	logger      *slog.Logger
	realizers   Realizers
	parallelism int
	runIDs      RunIDGenerator
	runID       string

	state      State
	pc         int
	clock      *Clock
	env        *Env
	q          *QState
	rec        *Recorder
	resolution *Resolution
	returned   ir.Value
	trace      Trace
	cancelErr  error
}

// NewMachine prepares prog for execution under cfg.
//
// A program failing structural validation, or a config with an unknown
// mode, is a PreconditionError.
func NewMachine(prog *ir.Program, cfg Config, opts ...Option) (*Machine, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeSimulate
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, NewPreconditionError("%v", err)
	}
	p, err := compile(prog)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		prog:        prog,
		cfg:         cfg,
		plan:        p,
		logger:      slog.Default(),
		parallelism: DefaultParallelism,
		runIDs:      UUIDv7Generator{},
		state:       StateResolving,
		clock:       NewClock(),
		env:         NewEnv(),
		q:           NewQState(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.runID = m.runIDs.Generate()
	m.logger = m.logger.With("run_id", m.runID)
	m.rec = NewRecorder(cfg.Mode, m.realizers, m.logger)
	return m, nil
}

// Step advances the run by one unit of work.
//
// done is true once the run has terminated. A cancelled context is
// observed before any work and ends the run with ErrCancelled; no trace
// is produced for a cancelled run.
func (m *Machine) Step(ctx context.Context) (done bool, err error) {
	if m.state.Terminal() {
		return true, m.cancelErr
	}

	if err := ctx.Err(); err != nil {
		return true, m.cancel(err)
	}

	if m.state == StateResolving {
		return m.resolveStep(ctx)
	}

	s := m.prog.Body[m.pc]
	tick := m.clock.Next()
	if m.cfg.Trace {
		m.logger.Debug("tick",
			"tick", tick,
			"regime", string(s.Regime()),
			"op", string(s.Op()),
			"pc", m.pc)
	}

	var halt bool
	switch s.Regime() {
	case ir.RegimeK:
		halt, err = m.stepK(ctx, s)
	case ir.RegimeQ:
		err = m.stepQ(ctx, s)
	default:
		err = NewFault(KindRuntimeFault, "statement %s cannot be stepped", s.Op())
	}
	if err != nil {
		return m.fail(err)
	}
	m.pc++

	if halt {
		return m.finish()
	}
	return m.advance()
}

func (m *Machine) resolveStep(ctx context.Context) (bool, error) {
	res, err := NewResolver(m.parallelism, m.logger).resolve(ctx, m.plan)
	if err != nil {
		if IsCancelled(err) {
			return true, m.cancel(err)
		}
		return true, err
	}
	m.resolution = &res
	m.logger.Info("program resolved",
		"program", m.prog.Name,
		"admissible", res.Admissible,
		"witness", res.Witness.ID)

	if !res.Admissible {
		return m.fail(NewFault(KindInadmissible, "%s", res.Reason))
	}
	m.state = StateStepping
	return m.advance()
}

// advance moves pc past Φ statements and finishes the run when no K or
// Q statement remains.
func (m *Machine) advance() (bool, error) {
	for m.pc < len(m.prog.Body) && m.prog.Body[m.pc].Regime() == ir.RegimePhi {
		m.pc++
	}
	if m.pc == len(m.prog.Body) {
		return m.finish()
	}
	return false, nil
}

func (m *Machine) finish() (bool, error) {
	m.env.UnwindAll()
	if err := m.q.CheckComplete(); err != nil {
		return m.fail(err)
	}
	m.trace = NewSuccessTrace(m.returned, m.rec.Events(), m.clock.Current())
	m.state = StateSucceeded
	m.logger.Info("run succeeded",
		"program", m.prog.Name,
		"tick", m.clock.Current(),
		"effects", m.rec.Len())
	return true, nil
}

// fail terminates the run with a FailureTrace. Errors that are not
// Faults are host errors and are returned as-is.
func (m *Machine) fail(err error) (bool, error) {
	f, ok := AsFault(err)
	if !ok {
		return true, err
	}
	m.env.UnwindAll()
	m.trace = NewFailureTrace(f)
	m.state = StateFailed
	m.logger.Info("run failed",
		"program", m.prog.Name,
		"kind", string(f.Kind),
		"message", f.Message,
		"pc", m.pc)
	return true, nil
}

func (m *Machine) cancel(cause error) error {
	m.env.UnwindAll()
	m.state = StateCancelled
	if IsCancelled(cause) {
		m.cancelErr = cause
	} else {
		m.cancelErr = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	m.logger.Warn("run cancelled", "program", m.prog.Name, "pc", m.pc)
	return m.cancelErr
}

// Run steps until the run terminates and returns its trace.
func (m *Machine) Run(ctx context.Context) (Trace, error) {
	for {
		done, err := m.Step(ctx)
		if err != nil {
			return Trace{}, err
		}
		if done {
			return m.trace, nil
		}
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// Tick returns the current logical time.
func (m *Machine) Tick() uint64 { return m.clock.Current() }

// PC returns the body index of the next statement to execute.
func (m *Machine) PC() int { return m.pc }

// RunID returns the generated run id.
func (m *Machine) RunID() string { return m.runID }

// Program returns the program being run.
func (m *Machine) Program() *ir.Program { return m.prog }

// Config returns the run configuration.
func (m *Machine) Config() Config { return m.cfg }

// Next returns the statement the next Step will execute.
func (m *Machine) Next() (ir.Stmt, bool) {
	if m.state != StateStepping || m.pc >= len(m.prog.Body) {
		return nil, false
	}
	return m.prog.Body[m.pc], true
}

// Resolution returns the resolver's decision once resolution has run.
func (m *Machine) Resolution() (Resolution, bool) {
	if m.resolution == nil {
		return Resolution{}, false
	}
	return *m.resolution, true
}

// Witness returns the admissibility witness once resolution has run.
func (m *Machine) Witness() (Witness, bool) {
	if m.resolution == nil {
		return Witness{}, false
	}
	return m.resolution.Witness, true
}

// Effects returns the events recorded so far. After a failure this is the
// partial log, which the FailureTrace itself does not carry.
func (m *Machine) Effects() []EffectEvent { return m.rec.Events() }

// Realized returns the number of successful realizer calls.
func (m *Machine) Realized() int { return m.rec.Realized() }

// Releases returns K binding names in release order.
func (m *Machine) Releases() []string { return m.env.Releases() }

// Bindings returns the currently visible K bindings.
func (m *Machine) Bindings() []Binding { return m.env.Bindings() }

// Handles returns the Q arena in allocation order.
func (m *Machine) Handles() []Handle { return m.q.Handles() }

// Trace returns the final trace once the run has succeeded or failed.
func (m *Machine) Trace() (Trace, bool) {
	if m.state != StateSucceeded && m.state != StateFailed {
		return Trace{}, false
	}
	return m.trace, true
}
