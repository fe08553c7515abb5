// Package expr parses and evaluates the DIR expression language.
//
// Expressions are plain strings embedded in DIR statements. Binary operators
// are written as capitalised words between operands:
//
//	x Add 1 Mul 2          // x + (1 * 2)
//	Point{x: 1, y: n}.y    // struct literal and field access
//	n Gt 2 And Not done    // boolean logic
//
// Precedence, tightest first: Mul/Div, Add/Sub, comparisons
// (Eq Ne Lt Le Gt Ge), And, Or. Unary Not and unary minus bind tighter than
// any binary operator.
//
// Parsing happens once per program; evaluation is pure over an Env and never
// consults host state. Evaluation errors carry stable messages suitable for
// a FailureTrace.
package expr
