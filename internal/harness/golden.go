package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

const (
	goldenDir    = "golden"
	goldenSuffix = ".golden"
)

// snapshot is the golden form of a result. Traces are embedded as their
// canonical bytes.
type snapshot struct {
	Fixture string          `json:"fixture"`
	Trace   json.RawMessage `json:"trace"`
	Replay  json.RawMessage `json:"replay,omitempty"`
}

// Snapshot renders r as a single JSON line ending in a newline.
func Snapshot(r *Result) ([]byte, error) {
	trace, err := r.Trace.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", r.Name, err)
	}
	s := snapshot{Fixture: r.Name, Trace: trace}
	if !r.Replay.IsZero() {
		if s.Replay, err = r.Replay.MarshalJSON(); err != nil {
			return nil, fmt.Errorf("snapshot %s: replay: %w", r.Name, err)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", r.Name, err)
	}
	return buf.Bytes(), nil
}

// GoldenPath returns the golden file for a fixture file:
// <dir>/golden/<base>.golden.
func GoldenPath(fixturePath string) string {
	base := filepath.Base(fixturePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(fixturePath), goldenDir, name+goldenSuffix)
}

// CompareGolden reports whether r's snapshot equals the golden file.
// A missing golden file is an error wrapping os.ErrNotExist.
func CompareGolden(fixturePath string, r *Result) (bool, error) {
	want, err := os.ReadFile(GoldenPath(fixturePath))
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := Snapshot(r)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

// UpdateGolden writes r's snapshot as the golden file.
func UpdateGolden(fixturePath string, r *Result) error {
	data, err := Snapshot(r)
	if err != nil {
		return err
	}
	path := GoldenPath(fixturePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// AssertGolden compares r's snapshot against the fixture's golden file
// using goldie. To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, fixturePath string, r *Result) {
	t.Helper()

	data, err := Snapshot(r)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	path := GoldenPath(fixturePath)
	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Dir(path)),
		goldie.WithNameSuffix(goldenSuffix),
	)
	g.Assert(t, strings.TrimSuffix(filepath.Base(path), goldenSuffix), data)
}
