// Package loader reads DIR programs from .json and .cue sources.
//
// Both formats are unified with the embedded #Program CUE schema, decoded
// into ir.Program and checked with the same rules the engine enforces, so
// a program that loads cleanly never trips an engine precondition.
package loader
