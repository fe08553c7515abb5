package engine

import (
	"fmt"

	"github.com/roach88/dustrun/internal/ir"
)

// WitnessKind records what the resolver proved.
type WitnessKind string

const (
	WitnessAdmissible  WitnessKind = "Admissible"
	WitnessNonExistent WitnessKind = "NonExistent"
)

// Witness is the resolver's evidence for its decision.
//
// It is kept on the Machine for explanation tooling only: steppers never
// read it and it never appears in a trace.
type Witness struct {
	ID               string      `json:"id"`
	Kind             WitnessKind `json:"kind"`
	ConstraintDigest string      `json:"constraint_digest"`
	Assignment       []Binding   `json:"assignment"`
	PeakLive         int         `json:"peak_live"`
	Note             string      `json:"note,omitempty"`
}

// Resolution is the outcome of admissibility resolution.
type Resolution struct {
	Admissible bool
	Witness    Witness
	Reason     string // set when !Admissible
}

func newWitness(kind WitnessKind, predicates []string, assignment []Binding, peak int, note string) Witness {
	digest := ir.ConstraintDigest(predicates)
	if assignment == nil {
		assignment = []Binding{}
	}
	return Witness{
		ID:               fmt.Sprintf("witness-%s", digest[:16]),
		Kind:             kind,
		ConstraintDigest: digest,
		Assignment:       assignment,
		PeakLive:         peak,
		Note:             note,
	}
}
