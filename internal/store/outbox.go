package store

import (
	"context"
	"sync"

	"github.com/roach88/dustrun/internal/engine"
)

// Outbox records every successful external action of one run.
//
// Wrap a realizer with Realizer; the wrapped realizer runs first and its
// success is written to realized_effects before the engine appends the
// event. A failed write fails the realization, so the outbox never lags
// behind what actually happened.
//
// Thread-safety: Outbox is safe for concurrent use via internal mutex.
type Outbox struct {
	store *Store
	runID string

	mu  sync.Mutex
	seq int
}

// NewOutbox creates an outbox for runID. The run must have been begun.
func (s *Store) NewOutbox(runID string) *Outbox {
	return &Outbox{store: s, runID: runID}
}

// Realizer wraps inner so its successes are recorded. A nil inner
// records without any other action.
func (o *Outbox) Realizer(inner engine.Realizer) engine.Realizer {
	return engine.RealizerFunc(func(ctx context.Context, ev engine.EffectEvent) error {
		if inner != nil {
			if err := inner.Realize(ctx, ev); err != nil {
				return err
			}
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if err := o.store.WriteRealizedEffect(ctx, o.runID, o.seq+1, ev); err != nil {
			return err
		}
		o.seq++
		return nil
	})
}

// Wrap returns realizers for kinds, each recording through the outbox.
// inner may be nil or lack a kind; such kinds are recorded only.
func (o *Outbox) Wrap(kinds []string, inner engine.Realizers) engine.Realizers {
	out := make(engine.Realizers, len(kinds))
	for _, k := range kinds {
		out[k] = o.Realizer(inner[k])
	}
	return out
}

// Count returns how many effects the outbox has recorded.
func (o *Outbox) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq
}
