package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dustrun/internal/engine"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of run history.
type Run struct {
	Seq           int64  `json:"seq"`
	ID            string `json:"id"`
	ProgramName   string `json:"program_name"`
	Digest        string `json:"input_digest"`
	Mode          string `json:"mode"`
	Status        string `json:"status"`
	Outcome       string `json:"outcome,omitempty"`
	TraceDigest   string `json:"trace_digest,omitempty"`
	EngineVersion string `json:"engine_version"`

	bundle sql.NullString
}

// HasBundle reports whether the run terminated with a replayable bundle.
func (r Run) HasBundle() bool {
	return r.bundle.Valid && r.bundle.String != ""
}

// Bundle decodes the run's stored bundle.
func (r Run) Bundle() (*engine.Bundle, error) {
	if !r.HasBundle() {
		return nil, fmt.Errorf("run %s has no bundle (status %s)", r.ID, r.Status)
	}
	return unmarshalBundle(r.bundle.String)
}

// RealizedEffect is one outbox row.
type RealizedEffect struct {
	Seq     int    `json:"seq"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// ListOptions filters ListRuns.
type ListOptions struct {
	Program string // exact program name; empty matches all
	Digest  string // exact input digest; empty matches all
	Status  string // empty matches all
	Limit   int    // 0 means no limit
}

const runColumns = `seq, id, program_name, input_digest, mode, status, outcome, trace_digest, engine_version, bundle`

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns runs in insertion order: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no run matches.
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	var args []any
	if opts.Program != "" {
		query += ` AND program_name = ?`
		args = append(args, opts.Program)
	}
	if opts.Digest != "" {
		query += ` AND input_digest = ?`
		args = append(args, opts.Digest)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RealizedEffects returns a run's outbox in realization order.
func (s *Store) RealizedEffects(ctx context.Context, runID string) ([]RealizedEffect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, payload
		FROM realized_effects
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query realized effects: %w", err)
	}
	defer rows.Close()

	effects := []RealizedEffect{}
	for rows.Next() {
		var e RealizedEffect
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan realized effect: %w", err)
		}
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate realized effects: %w", err)
	}
	return effects, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	err := sc.Scan(
		&r.Seq,
		&r.ID,
		&r.ProgramName,
		&r.Digest,
		&r.Mode,
		&r.Status,
		&r.Outcome,
		&r.TraceDigest,
		&r.EngineVersion,
		&r.bundle,
	)
	if err != nil {
		return Run{}, err
	}
	return r, nil
}
