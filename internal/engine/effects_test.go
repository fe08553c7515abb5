package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SimulateNeverRealizes(t *testing.T) {
	r := &countingRealizer{}
	rec := NewRecorder(ModeSimulate, Realizers{"emit": r}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, rec.Record(context.Background(), EffectEvent{Kind: "emit", Payload: "a"}))
	require.NoError(t, rec.Record(context.Background(), EffectEvent{Kind: "emit", Payload: "b"}))

	assert.Empty(t, r.calls)
	assert.Equal(t, 0, rec.Realized())
	assert.Equal(t, []EffectEvent{{Kind: "emit", Payload: "a"}, {Kind: "emit", Payload: "b"}}, rec.Events())
}

func TestRecorder_RealizeBeforeAppend(t *testing.T) {
	r := &countingRealizer{}
	rec := NewRecorder(ModeRealize, Realizers{"emit": r}, nil)

	require.NoError(t, rec.Record(context.Background(), EffectEvent{Kind: "emit", Payload: "a"}))
	require.NoError(t, rec.Record(context.Background(), EffectEvent{Kind: "audit", Payload: "b"}))

	// audit has no realizer and is recorded only.
	assert.Equal(t, []EffectEvent{{Kind: "emit", Payload: "a"}}, r.calls)
	assert.Equal(t, 1, rec.Realized())
	assert.Equal(t, 2, rec.Len())
}

func TestRecorder_RealizationFailure(t *testing.T) {
	var logs bytes.Buffer
	r := &countingRealizer{failOn: map[string]bool{"emit": true}}
	rec := NewRecorder(ModeRealize, Realizers{"emit": r}, slog.New(slog.NewTextHandler(&logs, nil)))

	err := rec.Record(context.Background(), EffectEvent{Kind: "emit", Payload: "a"})
	require.Error(t, err)
	assert.True(t, IsFault(err, KindEffectRealizationFailure))
	assert.Equal(t, `EffectRealizationFailure: effect "emit" could not be realized`, err.Error())

	// Host detail goes to the log, and the event is not appended.
	assert.Contains(t, logs.String(), "sink /dev/effects unavailable")
	assert.Equal(t, 0, rec.Len())
}

func TestRecorder_EventsIsCopy(t *testing.T) {
	rec := NewRecorder(ModeSimulate, nil, nil)
	require.NoError(t, rec.Record(context.Background(), EffectEvent{Kind: "emit", Payload: "a"}))

	events := rec.Events()
	events[0].Payload = "mutated"
	assert.Equal(t, "a", rec.Events()[0].Payload)
}

func TestWriterRealizer(t *testing.T) {
	var out bytes.Buffer
	r := NewWriterRealizer(&out)
	require.NoError(t, r.Realize(context.Background(), EffectEvent{Kind: "emit", Payload: "Hello"}))
	require.NoError(t, r.Realize(context.Background(), EffectEvent{Kind: "log", Payload: "Point{x:1}"}))
	assert.Equal(t, "emit: Hello\nlog: Point{x:1}\n", out.String())
}

func TestLogRealizer(t *testing.T) {
	var logs bytes.Buffer
	r := NewLogRealizer(slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, r.Realize(context.Background(), EffectEvent{Kind: "emit", Payload: "Hello"}))
	assert.Contains(t, logs.String(), "effect realized")
	assert.Contains(t, logs.String(), "payload=Hello")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("realize")
	require.NoError(t, err)
	assert.Equal(t, ModeRealize, m)

	_, err = ParseMode("dry-run")
	assert.EqualError(t, err, `invalid effect mode "dry-run" (want simulate or realize)`)
}
