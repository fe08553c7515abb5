package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestRun inserts a running run for prog.
func beginTestRun(t *testing.T, s *Store, id string, prog *ir.Program, cfg engine.Config) {
	t.Helper()
	digest, err := engine.InputDigest(prog, cfg)
	if err != nil {
		t.Fatalf("InputDigest() failed: %v", err)
	}
	err = s.BeginRun(context.Background(), RunStart{
		ID:          id,
		ProgramName: prog.Name,
		Digest:      digest,
		Mode:        cfg.Mode,
	})
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
}

// runAndFinish executes prog, then stores the bundle under id.
func runAndFinish(t *testing.T, s *Store, id string, prog *ir.Program, cfg engine.Config, opts ...engine.Option) engine.Trace {
	t.Helper()
	beginTestRun(t, s, id, prog, cfg)

	opts = append([]engine.Option{engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	trace, err := engine.Execute(context.Background(), prog, cfg, opts...)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	b, err := engine.NewBundle(prog, cfg, trace)
	if err != nil {
		t.Fatalf("NewBundle() failed: %v", err)
	}
	if err := s.FinishRun(context.Background(), id, b); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}
	return trace
}
