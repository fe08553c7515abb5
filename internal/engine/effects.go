package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// EffectEvent is one entry in a run's effect log.
// Events are immutable once appended and ordered by execution.
type EffectEvent struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// Realizer performs the external action behind an effect kind.
//
// Realize is called before the event is appended. A returned error ends
// the run with EffectRealizationFailure; the error text itself is logged,
// never traced, because it usually carries host detail.
type Realizer interface {
	Realize(ctx context.Context, ev EffectEvent) error
}

// RealizerFunc adapts a function to the Realizer interface.
type RealizerFunc func(ctx context.Context, ev EffectEvent) error

// Realize calls f(ctx, ev).
func (f RealizerFunc) Realize(ctx context.Context, ev EffectEvent) error {
	return f(ctx, ev)
}

// Realizers maps effect kinds to realizers.
type Realizers map[string]Realizer

// NewWriterRealizer writes one "kind: payload" line per event to w.
// Writes are serialized so one writer may serve concurrent runs.
func NewWriterRealizer(w io.Writer) Realizer {
	var mu sync.Mutex
	return RealizerFunc(func(_ context.Context, ev EffectEvent) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintf(w, "%s: %s\n", ev.Kind, ev.Payload)
		return err
	})
}

// NewLogRealizer realizes events as Info log records.
func NewLogRealizer(logger *slog.Logger) Realizer {
	return RealizerFunc(func(ctx context.Context, ev EffectEvent) error {
		logger.InfoContext(ctx, "effect realized", "kind", ev.Kind, "payload", ev.Payload)
		return nil
	})
}

// Recorder owns the effect log of a single run.
//
// In simulate mode Record only appends. In realize mode the realizer for
// the event kind runs first; the event is appended only once it succeeded.
// Kinds without a realizer are recorded without an external action.
type Recorder struct {
	mode      Mode
	realizers Realizers
	logger    *slog.Logger
	events    []EffectEvent
	realized  int
}

// NewRecorder creates an empty recorder.
func NewRecorder(mode Mode, realizers Realizers, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{mode: mode, realizers: realizers, logger: logger}
}

// Record handles one effect event according to the recorder's mode.
func (r *Recorder) Record(ctx context.Context, ev EffectEvent) error {
	if r.mode == ModeRealize {
		if realizer, ok := r.realizers[ev.Kind]; ok {
			if err := realizer.Realize(ctx, ev); err != nil {
				r.logger.Warn("effect realization failed",
					"kind", ev.Kind,
					"error", err)
				return NewFault(KindEffectRealizationFailure, "effect %q could not be realized", ev.Kind)
			}
			r.realized++
		}
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the log in execution order.
func (r *Recorder) Events() []EffectEvent {
	out := make([]EffectEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	return len(r.events)
}

// Realized returns how many realizer calls succeeded.
func (r *Recorder) Realized() int {
	return r.realized
}
