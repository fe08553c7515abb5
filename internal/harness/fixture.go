package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dustrun/internal/engine"
)

// Fixture defines a conformance fixture.
type Fixture struct {
	// Name uniquely identifies this fixture.
	Name string `yaml:"name"`

	// Description explains what this fixture validates.
	Description string `yaml:"description"`

	// Program is the path to a .json or .cue program source.
	// Relative paths are resolved against the fixture file's directory.
	Program string `yaml:"program"`

	// Mode is the effect mode; empty means simulate.
	Mode string `yaml:"mode,omitempty"`

	// FailKinds lists effect kinds whose realizers report an error.
	FailKinds []string `yaml:"fail_kinds,omitempty"`

	// Expect is the expected outcome of the run.
	Expect Expect `yaml:"expect"`

	// Assertions validate the effect log and the realizer calls.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Replay, when set, replays the run's bundle.
	Replay *ReplayCheck `yaml:"replay,omitempty"`

	// Path is the file the fixture was loaded from.
	Path string `yaml:"-"`
}

// Expect describes the expected trace.
type Expect struct {
	// Outcome is "Success" or an error kind such as "LinearityViolation".
	Outcome string `yaml:"outcome"`

	// Message, if set, must equal the failure message exactly.
	Message string `yaml:"message,omitempty"`

	// Tick, if set, must equal the final logical time of a success.
	Tick *uint64 `yaml:"tick,omitempty"`
}

// ReplayCheck describes a replay of the fixture's run.
type ReplayCheck struct {
	// Tamper alters the bundle before replay: "", "mode", "program" or "trace".
	Tamper string `yaml:"tamper,omitempty"`

	// Expect is "Success" or "ReplayMismatch".
	Expect string `yaml:"expect"`
}

// Assertion validates the recorded run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the effect kind (effect_contains, effect_count).
	Kind string `yaml:"kind,omitempty"`

	// Payload, if set, must match exactly (effect_contains).
	Payload string `yaml:"payload,omitempty"`

	// Kinds is the expected first-appearance order (effect_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences (effect_count, realizer_calls).
	Count int `yaml:"count,omitempty"`

	// Value is the expected rendered return value (returned).
	Value string `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertEffectContains = "effect_contains"
	AssertEffectOrder    = "effect_order"
	AssertEffectCount    = "effect_count"
	AssertReturned       = "returned"
	AssertRealizerCalls  = "realizer_calls"
)

// OutcomeSuccess is the expected outcome of a successful run.
const OutcomeSuccess = "Success"

// Tamper targets.
const (
	TamperMode    = "mode"
	TamperProgram = "program"
	TamperTrace   = "trace"
)

// LoadFixture reads and parses a fixture YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fx Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	fx.Path = path

	if err := validateFixture(&fx); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &fx, nil
}

// ProgramPath resolves the fixture's program against its file location.
func (f *Fixture) ProgramPath() string {
	if filepath.IsAbs(f.Program) || f.Path == "" {
		return f.Program
	}
	return filepath.Join(filepath.Dir(f.Path), f.Program)
}

// FindFixtures returns the YAML fixtures under dir in lexical order. A
// non-empty filter is a glob matched against the file name without its
// extension.
func FindFixtures(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == goldenDir {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// validateFixture checks that required fields are present and valid.
func validateFixture(f *Fixture) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if f.Description == "" {
		return fmt.Errorf("description is required")
	}
	if f.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(f.ProgramPath()); os.IsNotExist(err) {
		return fmt.Errorf("program file not found: %s", f.ProgramPath())
	}
	if f.Mode != "" {
		if _, err := engine.ParseMode(f.Mode); err != nil {
			return err
		}
	}
	if err := validateOutcome("expect.outcome", f.Expect.Outcome); err != nil {
		return err
	}
	if f.Expect.Tick != nil && f.Expect.Outcome != OutcomeSuccess {
		return fmt.Errorf("expect.tick only applies to a Success outcome")
	}

	for i := range f.Assertions {
		if err := validateAssertion(i, &f.Assertions[i]); err != nil {
			return err
		}
	}

	if r := f.Replay; r != nil {
		switch r.Tamper {
		case "", TamperMode, TamperProgram, TamperTrace:
		default:
			return fmt.Errorf("replay.tamper: unknown target %q", r.Tamper)
		}
		if r.Expect != OutcomeSuccess && r.Expect != string(engine.KindReplayMismatch) {
			return fmt.Errorf("replay.expect must be %s or %s, got %q", OutcomeSuccess, engine.KindReplayMismatch, r.Expect)
		}
	}
	return nil
}

func validateOutcome(field, outcome string) error {
	if outcome == "" {
		return fmt.Errorf("%s is required", field)
	}
	if outcome != OutcomeSuccess && !engine.ErrorKind(outcome).Valid() {
		return fmt.Errorf("%s: unknown outcome %q", field, outcome)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEffectContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for effect_contains", index)
		}
	case AssertEffectOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for effect_order", index)
		}
	case AssertEffectCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for effect_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for effect_count", index)
		}
	case AssertReturned:
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for returned", index)
		}
	case AssertRealizerCalls:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for realizer_calls", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
