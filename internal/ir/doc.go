// Package ir provides the in-memory representation shared by every other
// dustrun package: runtime values, DIR programs and their canonical encodings.
//
// This package contains type definitions and encoders only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - Int is always int64
//   - Struct fields are ordered; declaration order is part of identity
//   - All JSON tags use snake_case
//   - Logical ticks only, never wall-clock timestamps
package ir
