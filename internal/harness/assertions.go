package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the effect log to help debug the failure.
type AssertionError struct {
	Type     string               // Assertion type for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	Effects  []engine.EffectEvent // Recorded events for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Effects) > 0 {
		fmt.Fprintf(&buf, "\nEffect log:\n")
		for i, ev := range e.Effects {
			fmt.Fprintf(&buf, "  [%d] %s: %s\n", i+1, ev.Kind, ev.Payload)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against r and returns the
// failure messages in assertion order.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(r, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertEffectContains:
		return assertEffectContains(r.Effects(), a)
	case AssertEffectOrder:
		return assertEffectOrder(r.Effects(), a)
	case AssertEffectCount:
		return assertEffectCount(r.Effects(), a)
	case AssertReturned:
		return assertReturned(r.Trace, a)
	case AssertRealizerCalls:
		if r.RealizerCalls != a.Count {
			return &AssertionError{
				Type:     AssertRealizerCalls,
				Expected: fmt.Sprintf("%d realizer calls", a.Count),
				Actual:   fmt.Sprintf("%d realizer calls", r.RealizerCalls),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEffectContains checks that an event of the kind was recorded. An
// empty payload matches any payload.
func assertEffectContains(effects []engine.EffectEvent, a Assertion) error {
	for _, ev := range effects {
		if ev.Kind == a.Kind && (a.Payload == "" || ev.Payload == a.Payload) {
			return nil
		}
	}

	expected := fmt.Sprintf("effect %s", a.Kind)
	if a.Payload != "" {
		expected = fmt.Sprintf("effect %s with payload %q", a.Kind, a.Payload)
	}
	return &AssertionError{
		Type:     AssertEffectContains,
		Expected: expected,
		Actual:   "not found in effect log",
		Effects:  effects,
	}
}

// assertEffectOrder checks that kinds first appear in the given order.
// Other events may appear in between.
func assertEffectOrder(effects []engine.EffectEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range effects {
		if positions[ev.Kind] == 0 {
			positions[ev.Kind] = i + 1 // 1-indexed for readability
		}
	}

	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertEffectOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Effects:  effects,
			}
		}
	}

	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEffectOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Effects: effects,
			}
		}
	}
	return nil
}

// assertEffectCount checks that the kind appears exactly Count times.
func assertEffectCount(effects []engine.EffectEvent, a Assertion) error {
	count := 0
	for _, ev := range effects {
		if ev.Kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEffectCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Effects:  effects,
		}
	}
	return nil
}

// assertReturned compares the rendered return value. A run that returned
// nothing renders as "null".
func assertReturned(trace engine.Trace, a Assertion) error {
	if trace.Success == nil {
		return &AssertionError{
			Type:     AssertReturned,
			Expected: fmt.Sprintf("returned %s", a.Value),
			Actual:   fmt.Sprintf("run failed: %s", trace.Fault()),
		}
	}

	got := "null"
	if v := trace.Success.Returned; v != nil {
		got = ir.Render(v)
	}
	if got != a.Value {
		return &AssertionError{
			Type:     AssertReturned,
			Expected: fmt.Sprintf("returned %s", a.Value),
			Actual:   fmt.Sprintf("returned %s", got),
			Effects:  trace.Success.Effects,
		}
	}
	return nil
}
