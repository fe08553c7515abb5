package store

import (
	"bytes"
	"fmt"

	"github.com/roach88/dustrun/internal/engine"
)

// marshalBundle converts a bundle to JSON TEXT for storage.
func marshalBundle(b *engine.Bundle) (string, error) {
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	return buf.String(), nil
}

// unmarshalBundle parses stored bundle TEXT.
func unmarshalBundle(data string) (*engine.Bundle, error) {
	if data == "" {
		return nil, fmt.Errorf("unmarshal bundle: run has no bundle")
	}
	b, err := engine.DecodeBundle(bytes.NewReader([]byte(data)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	return b, nil
}

// outcomeOf names the outcome of a trace: "Success" or its error kind.
func outcomeOf(t engine.Trace) string {
	if t.Failure != nil {
		return string(t.Failure.Kind)
	}
	return OutcomeSuccess
}
