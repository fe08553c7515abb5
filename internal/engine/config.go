package engine

import (
	"fmt"
	"log/slog"
)

// Mode selects how effects are handled.
type Mode string

const (
	// ModeSimulate records effects without calling any realizer.
	ModeSimulate Mode = "simulate"

	// ModeRealize calls the registered realizer before recording.
	ModeRealize Mode = "realize"
)

// ParseMode converts a flag or bundle value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSimulate, ModeRealize:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid effect mode %q (want simulate or realize)", s)
}

// Config is the semantic configuration of a run. It is stored in bundles
// and covered by the bundle digest.
type Config struct {
	Mode Mode `json:"mode"`

	// Trace logs every tick at Debug level. It never changes the trace.
	Trace bool `json:"trace,omitempty"`
}

// DefaultConfig runs in simulate mode.
func DefaultConfig() Config {
	return Config{Mode: ModeSimulate}
}

// DefaultParallelism bounds concurrent constraint component solving.
const DefaultParallelism = 4

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger for run diagnostics.
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRealizers registers realizers by effect kind. They are only called
// in realize mode.
func WithRealizers(r Realizers) Option {
	return func(m *Machine) {
		m.realizers = r
	}
}

// WithParallelism bounds how many constraint components the resolver
// solves at once. Values below 1 mean sequential solving.
func WithParallelism(n int) Option {
	return func(m *Machine) {
		if n < 1 {
			n = 1
		}
		m.parallelism = n
	}
}

// WithRunIDGenerator sets the generator used to name the run.
// Default: UUIDv7Generator
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(m *Machine) {
		if g != nil {
			m.runIDs = g
		}
	}
}
