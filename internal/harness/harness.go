package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
	"github.com/roach88/dustrun/internal/loader"
	"github.com/roach88/dustrun/internal/testutil"
)

// DefaultParallelism bounds how many fixtures RunAll executes at once.
const DefaultParallelism = 4

// Harness is the fixture execution engine.
// Each fixture runs in its own machine with a fixed run id, so results are
// reproducible and fixtures share no state.
type Harness struct {
	logger      *slog.Logger
	parallelism int
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes harness and engine logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithParallelism bounds concurrent fixture runs in RunAll.
func WithParallelism(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.parallelism = n
		}
	}
}

// New creates a harness. Logs are discarded unless WithLogger is given.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a fixture with a default harness.
func Run(ctx context.Context, fx *Fixture) (*Result, error) {
	return New().Run(ctx, fx)
}

// Run executes a fixture and returns the result.
//
// Execution flow:
//  1. Load the program source
//  2. Execute it with a counting realizer bound to every effect kind
//  3. Check the expected outcome and evaluate assertions
//  4. Replay the pinned bundle if the fixture asks for it
//
// The error return is reserved for load failures and host conditions;
// a fixture that runs but disagrees with its expectations is a failed
// Result.
func (h *Harness) Run(ctx context.Context, fx *Fixture) (*Result, error) {
	prog, err := loader.LoadProgram(fx.ProgramPath())
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", fx.Name, err)
	}

	cfg := engine.DefaultConfig()
	if fx.Mode != "" {
		mode, err := engine.ParseMode(fx.Mode)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", fx.Name, err)
		}
		cfg.Mode = mode
	}

	counter := newCallCounter(fx.FailKinds)
	realizers := make(engine.Realizers)
	for _, kind := range prog.EffectKinds() {
		realizers[kind] = counter
	}

	opts := h.engineOptions(fx)
	trace, err := engine.Execute(ctx, prog, cfg, append(opts, engine.WithRealizers(realizers))...)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", fx.Name, err)
	}

	result := NewResult(fx.Name)
	result.Trace = trace
	result.RealizerCalls = counter.count()

	checkExpect(result, fx.Expect)
	for _, msg := range EvaluateAssertions(result, fx.Assertions) {
		result.AddError(msg)
	}

	if fx.Replay != nil {
		if err := h.replay(ctx, fx, prog, cfg, result); err != nil {
			return nil, fmt.Errorf("fixture %s: replay: %w", fx.Name, err)
		}
	}

	h.logger.Info("fixture completed",
		"fixture", fx.Name,
		"outcome", result.Outcome(),
		"pass", result.Pass,
	)
	return result, nil
}

// RunAll executes fixtures concurrently and returns their results in
// fixture order. A fixture that cannot be executed yields a failed result;
// only cancellation aborts the whole batch.
func (h *Harness) RunAll(ctx context.Context, fixtures []*Fixture) ([]*Result, error) {
	results := make([]*Result, len(fixtures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for i, fx := range fixtures {
		i, fx := i, fx
		g.Go(func() error {
			res, err := h.Run(gctx, fx)
			if err != nil {
				if engine.IsCancelled(err) {
					return err
				}
				res = NewResult(fx.Name)
				res.AddError(fmt.Sprintf("execution failed: %v", err))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (h *Harness) engineOptions(fx *Fixture) []engine.Option {
	return []engine.Option{
		engine.WithLogger(h.logger.With("fixture", fx.Name)),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("fixture-" + fx.Name)),
	}
}

// replay pins the run in a bundle, applies the fixture's tampering and
// replays it. Replay never calls realizers.
func (h *Harness) replay(ctx context.Context, fx *Fixture, prog *ir.Program, cfg engine.Config, result *Result) error {
	bundle, err := engine.NewBundle(prog, cfg, result.Trace)
	if err != nil {
		return err
	}
	tamper(bundle, fx.Replay.Tamper)

	replayed, err := engine.Replay(ctx, bundle, h.engineOptions(fx)...)
	if err != nil {
		return err
	}
	result.Replay = replayed

	got := OutcomeSuccess
	if f := replayed.Fault(); f != nil {
		got = string(f.Kind)
	}
	if got != fx.Replay.Expect {
		result.AddError(fmt.Sprintf("replay: expected %s, got %s", fx.Replay.Expect, replayed))
	}
	return nil
}

// tamper alters a bundle in place without touching values it shares with
// the original run.
func tamper(b *engine.Bundle, target string) {
	switch target {
	case TamperMode:
		if b.Config.Mode == engine.ModeRealize {
			b.Config.Mode = engine.ModeSimulate
		} else {
			b.Config.Mode = engine.ModeRealize
		}
	case TamperProgram:
		p := *b.Program
		p.Name += "-tampered"
		b.Program = &p
	case TamperTrace:
		if b.Trace.Success != nil {
			s := *b.Trace.Success
			s.Tick++
			b.Trace = engine.Trace{Success: &s}
		} else {
			f := *b.Trace.Failure
			f.Message += " (tampered)"
			b.Trace = engine.Trace{Failure: &f}
		}
	}
}

func checkExpect(r *Result, want Expect) {
	if got := r.Outcome(); got != want.Outcome {
		r.AddError(fmt.Sprintf("outcome: expected %s, got %s", want.Outcome, r.Trace))
		return
	}
	if f := r.Trace.Fault(); f != nil && want.Message != "" && f.Message != want.Message {
		r.AddError(fmt.Sprintf("message: expected %q, got %q", want.Message, f.Message))
	}
	if s := r.Trace.Success; s != nil && want.Tick != nil && s.Tick != *want.Tick {
		r.AddError(fmt.Sprintf("tick: expected %d, got %d", *want.Tick, s.Tick))
	}
}

// callCounter is the realizer bound to every kind during a fixture run.
type callCounter struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func newCallCounter(failKinds []string) *callCounter {
	c := &callCounter{fail: make(map[string]bool, len(failKinds))}
	for _, k := range failKinds {
		c.fail[k] = true
	}
	return c
}

// Realize implements engine.Realizer.
func (c *callCounter) Realize(_ context.Context, ev engine.EffectEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail[ev.Kind] {
		return fmt.Errorf("realizer for %q is configured to fail", ev.Kind)
	}
	return nil
}

func (c *callCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
