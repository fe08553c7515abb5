package loader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Source formats.
const (
	FormatJSON = "json"
	FormatCUE  = "cue"
)

// LoadResult contains a loaded program and where it came from.
type LoadResult struct {
	Program *ir.Program
	Path    string
	Format  string
}

// Load reads, schema-checks, decodes and validates the program at path.
// The format is chosen by extension (.json or .cue).
//
// The returned errors are *LoadError values. With LoadModeFailFast at
// most one is returned.
func Load(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("error accessing program: %v", err)}}
	}
	if info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("is a directory: %s", path)}}
	}

	switch filepath.Ext(path) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading program: %v", err)}}
		}
		prog, errs := ParseJSON(path, data, mode)
		if len(errs) > 0 {
			return nil, errs
		}
		return &LoadResult{Program: prog, Path: path, Format: FormatJSON}, nil
	case ".cue":
		ctx := cuecontext.New()
		value, errs := buildCUE(ctx, path)
		if len(errs) > 0 {
			return nil, limit(errs, mode)
		}
		prog, errs := fromValue(ctx, value, mode)
		if len(errs) > 0 {
			return nil, errs
		}
		return &LoadResult{Program: prog, Path: path, Format: FormatCUE}, nil
	default:
		return nil, []error{&LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported program extension %q (want .json or .cue)", filepath.Ext(path))}}
	}
}

// LoadProgram is Load in fail-fast mode returning a single error.
func LoadProgram(path string) (*ir.Program, error) {
	res, errs := Load(path, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return res.Program, nil
}

// ParseJSON loads a program from JSON bytes. filename is used in
// positions only.
func ParseJSON(filename string, data []byte, mode LoadMode) (*ir.Program, []error) {
	ctx := cuecontext.New()
	value, errs := extractJSON(ctx, filename, data)
	if len(errs) > 0 {
		return nil, limit(errs, mode)
	}
	return fromValue(ctx, value, mode)
}

func extractJSON(ctx *cue.Context, filename string, data []byte) (cue.Value, []error) {
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return cue.Value{}, fromCUE(ErrCodeBuildFailed, err)
	}
	value := ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return cue.Value{}, fromCUE(ErrCodeBuildFailed, err)
	}
	return value, nil
}

func buildCUE(ctx *cue.Context, path string) (cue.Value, []error) {
	cfg := &load.Config{Dir: filepath.Dir(path)}
	instances := load.Instances([]string{filepath.Base(path)}, cfg)
	if len(instances) == 0 {
		return cue.Value{}, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fromCUE(ErrCodeLoadFailed, inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, fromCUE(ErrCodeBuildFailed, err)
	}
	return value, nil
}

// fromValue unifies value with #Program, decodes it and runs the engine's
// structural checks.
func fromValue(ctx *cue.Context, value cue.Value, mode LoadMode) (*ir.Program, []error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("compiling embedded schema: %v", err)}}
	}

	unified := schema.LookupPath(cue.ParsePath("#Program")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, limit(fromCUE(ErrCodeSchema, err), mode)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, limit(fromCUE(ErrCodeSchema, err), mode)
	}

	prog, err := decodeProgram(data)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeDecode, Message: err.Error()}}
	}

	if errs := validate(prog, mode); len(errs) > 0 {
		return nil, errs
	}
	return prog, nil
}

func decodeProgram(data []byte) (*ir.Program, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var prog ir.Program
	if err := dec.Decode(&prog); err != nil {
		return nil, fmt.Errorf("decoding program: %w", err)
	}
	if prog.Body == nil {
		prog.Body = ir.Body{}
	}
	return &prog, nil
}

// validate reports ir validation errors by their own codes, then, if the
// structure is sound, expression and constraint problems.
func validate(prog *ir.Program, mode LoadMode) []error {
	var errs []error
	for _, ve := range prog.Validate() {
		errs = append(errs, &LoadError{Code: ve.Code, Message: fmt.Sprintf("%s: %s", ve.Field, ve.Message)})
	}
	if len(errs) > 0 {
		return limit(errs, mode)
	}

	if err := engine.Check(prog); err != nil {
		var pe *engine.PreconditionError
		if !errors.As(err, &pe) {
			return []error{&LoadError{Code: ErrCodeGeneric, Message: err.Error()}}
		}
		for _, p := range pe.Problems {
			errs = append(errs, &LoadError{Code: ErrCodeInvalidProgram, Message: p})
		}
	}
	return limit(errs, mode)
}

func limit(errs []error, mode LoadMode) []error {
	if mode == LoadModeFailFast && len(errs) > 1 {
		return errs[:1]
	}
	return errs
}
