package store

import (
	"context"
	"fmt"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// OutcomeSuccess is the outcome recorded for a SuccessTrace. Failures
// record their ErrorKind.
const OutcomeSuccess = "Success"

// OutcomeAborted is recorded for a run that ended on a host error
// without producing a trace.
const OutcomeAborted = "Aborted"

// RunStart describes a run about to execute.
type RunStart struct {
	ID          string
	ProgramName string
	Digest      string // bundle input digest
	Mode        engine.Mode
}

// BeginRun inserts a run in status running.
// A duplicate run id is an error: run ids are never reused.
func (s *Store) BeginRun(ctx context.Context, r RunStart) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, program_name, input_digest, mode, status, engine_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.ProgramName,
		r.Digest,
		string(r.Mode),
		StatusRunning,
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun stores the bundle of a terminated run and marks it succeeded
// or failed according to its trace.
func (s *Store) FinishRun(ctx context.Context, runID string, b *engine.Bundle) error {
	bundleJSON, err := marshalBundle(b)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	status := StatusSucceeded
	if !b.Trace.IsSuccess() {
		status = StatusFailed
	}

	return s.updateRun(ctx, "finish run", `
		UPDATE runs
		SET status = ?, outcome = ?, trace_digest = ?, bundle = ?
		WHERE id = ? AND status = ?
	`,
		status,
		outcomeOf(b.Trace),
		b.Trace.Digest(),
		bundleJSON,
		runID,
		StatusRunning,
	)
}

// CancelRun marks a running run cancelled. Cancelled runs have no trace
// and no bundle; their realized effects stay in the outbox.
func (s *Store) CancelRun(ctx context.Context, runID string) error {
	return s.updateRun(ctx, "cancel run", `
		UPDATE runs SET status = ? WHERE id = ? AND status = ?
	`, StatusCancelled, runID, StatusRunning)
}

// AbortRun marks a running run failed with OutcomeAborted. Like a
// cancelled run it has no trace and no bundle.
func (s *Store) AbortRun(ctx context.Context, runID string) error {
	return s.updateRun(ctx, "abort run", `
		UPDATE runs SET status = ?, outcome = ? WHERE id = ? AND status = ?
	`, StatusFailed, OutcomeAborted, runID, StatusRunning)
}

func (s *Store) updateRun(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: no running run with that id", op)
	}
	return nil
}

// WriteRealizedEffect appends one row to a run's realized-effect outbox.
// seq is the 1-based position among the run's realized effects.
func (s *Store) WriteRealizedEffect(ctx context.Context, runID string, seq int, ev engine.EffectEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO realized_effects (run_id, seq, kind, payload)
		VALUES (?, ?, ?, ?)
	`, runID, seq, ev.Kind, ev.Payload)
	if err != nil {
		return fmt.Errorf("write realized effect: %w", err)
	}
	return nil
}
