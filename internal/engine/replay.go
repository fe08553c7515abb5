package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/dustrun/internal/ir"
)

// Replay and reproducibility
//
// A run is a pure function of (program, config). A Bundle pins both,
// together with the trace the run produced and a digest over the inputs:
//
//	digest = SHA256("dustrun/bundle/v1" + 0x00 + canonical({program, config}))
//
// Replay re-executes the pinned inputs and compares trace bytes. It never
// trusts the recorded trace to describe the inputs: editing the mode, or
// any part of the program, breaks the digest and is reported as a
// ReplayMismatch before anything runs.
//
// Replay passes no realizers unless the caller supplies some, so external
// actions recorded in realize mode are not repeated.

// compatibleFormats is the range of bundle formats this engine reads.
const compatibleFormats = "^1"

// Bundle is a self-contained, replayable record of one run.
type Bundle struct {
	Format        string      `json:"format"`
	EngineVersion string      `json:"engine_version"`
	Program       *ir.Program `json:"program"`
	Config        Config      `json:"config"`
	Trace         Trace       `json:"trace"`
	Digest        string      `json:"digest"`
}

// bundleInputs is the digested part of a bundle.
type bundleInputs struct {
	Program *ir.Program `json:"program"`
	Config  Config      `json:"config"`
}

// InputDigest computes the bundle digest of (prog, cfg).
func InputDigest(prog *ir.Program, cfg Config) (string, error) {
	return ir.DigestExact(ir.DomainBundle, bundleInputs{Program: prog, Config: cfg})
}

// NewBundle pins a finished run.
func NewBundle(prog *ir.Program, cfg Config, trace Trace) (*Bundle, error) {
	if trace.IsZero() {
		return nil, fmt.Errorf("bundle: trace is empty")
	}
	digest, err := InputDigest(prog, cfg)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	return &Bundle{
		Format:        ir.BundleFormat,
		EngineVersion: ir.EngineVersion,
		Program:       prog,
		Config:        cfg,
		Trace:         trace,
		Digest:        digest,
	}, nil
}

// DecodeBundle reads a bundle, rejecting unknown keys.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Program == nil {
		return nil, fmt.Errorf("decode bundle: program is missing")
	}
	return &b, nil
}

// Encode writes the bundle as indented JSON.
func (b *Bundle) Encode(w io.Writer) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// CheckFormat verifies the bundle format is one this engine reads.
func (b *Bundle) CheckFormat() error {
	v, err := semver.NewVersion(b.Format)
	if err != nil {
		return NewPreconditionError("bundle format %q is not a version: %v", b.Format, err)
	}
	c, err := semver.NewConstraint(compatibleFormats)
	if err != nil {
		return fmt.Errorf("bundle format constraint: %w", err)
	}
	if !c.Check(v) {
		return NewPreconditionError("bundle format %s is not supported (want %s)", b.Format, compatibleFormats)
	}
	return nil
}

// ReplayReport describes the outcome of verifying a bundle.
type ReplayReport struct {
	Match          bool
	Reason         string // set when !Match
	RecordedDigest string // trace digest of the recorded trace
	ReplayedDigest string // empty if nothing was re-executed
	Trace          Trace  // reproduced trace, or a ReplayMismatch failure
}

// ExternallyFailed reports whether b recorded a realize-mode run stopped
// by a failing realizer. Replay never realizes, so such a bundle cannot
// reproduce its trace and always verifies as a mismatch.
func (b *Bundle) ExternallyFailed() bool {
	return b.Config.Mode == ModeRealize &&
		b.Trace.Failure != nil &&
		b.Trace.Failure.Kind == KindEffectRealizationFailure
}

// VerifyBundle replays b and reports how the result compares.
//
// Replay runs without realizers, so a bundle whose trace is an
// EffectRealizationFailure (see ExternallyFailed) replays past the failed
// effect and is reported as a mismatch.
func VerifyBundle(ctx context.Context, b *Bundle, opts ...Option) (ReplayReport, error) {
	if err := b.CheckFormat(); err != nil {
		return ReplayReport{}, err
	}
	recorded, err := b.Trace.MarshalJSON()
	if err != nil {
		return ReplayReport{}, NewPreconditionError("bundle trace: %v", err)
	}
	report := ReplayReport{RecordedDigest: ir.TraceDigest(recorded)}

	digest, err := InputDigest(b.Program, b.Config)
	if err != nil {
		return ReplayReport{}, NewPreconditionError("bundle inputs: %v", err)
	}
	if digest != b.Digest {
		return mismatch(report, "bundle digest does not match its contents"), nil
	}

	opts = append([]Option{WithRealizers(nil)}, opts...)
	replayed, err := Execute(ctx, b.Program, b.Config, opts...)
	if err != nil {
		return ReplayReport{}, err
	}
	got := replayed.Bytes()
	report.ReplayedDigest = ir.TraceDigest(got)
	if !bytes.Equal(got, recorded) {
		return mismatch(report, "replayed trace differs from recorded trace"), nil
	}

	report.Match = true
	report.Trace = replayed
	return report, nil
}

func mismatch(r ReplayReport, reason string) ReplayReport {
	r.Match = false
	r.Reason = reason
	r.Trace = NewFailureTrace(NewFault(KindReplayMismatch, "%s", reason))
	return r
}

// Replay re-executes a bundle. On a match it returns the reproduced
// trace; on any divergence a ReplayMismatch FailureTrace.
func Replay(ctx context.Context, b *Bundle, opts ...Option) (Trace, error) {
	report, err := VerifyBundle(ctx, b, opts...)
	if err != nil {
		return Trace{}, err
	}
	return report.Trace, nil
}
