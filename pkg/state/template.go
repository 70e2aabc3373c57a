// Package state describes replicated entity state: per-field value templates,
// the ordered StateTemplate schema, and immutable State snapshots.
//
// A ValueTemplate owns the wire format and motion model of one field. It
// packs and unpacks the field, measures how far two values are apart, and
// predicts the value at a later time from up to three samples:
//
//	Sn2 @ Tn2   oldest, may be nil
//	Sn1 @ Tn1   may be nil
//	S0  @ T0    newest
//
// Templates are immutable after construction and may be shared by any number
// of StateTemplates.
package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// MaxExtrapolationDelta is how far past the newest sample a prediction is
// trusted, in seconds.
const MaxExtrapolationDelta = 4.0

// FuzzyEpsilon is the smallest time delta used as a divisor.
const FuzzyEpsilon = vecmath.FuzzyEpsilon

// Template errors.
var (
	ErrValueType        = errors.New("state: value type does not match template")
	ErrInvalidTemplate  = errors.New("state: invalid template")
	ErrFieldCount       = errors.New("state: field count does not match template")
	ErrSnapshotTooLarge = errors.New("state: snapshot exceeds buffer")
)

// ValueTemplate is the pack, unpack, error and extrapolate policy of one field.
type ValueTemplate interface {
	// Tag names the field for diagnostics.
	Tag() string

	// Accepts reports whether v has the concrete type this template handles.
	Accepts(v Value) bool

	// Validate checks the template configuration.
	Validate() error

	// Pack writes v to w.
	Pack(w *bitio.Writer, v Value) error

	// Unpack reads a value written by Pack.
	Unpack(r *bitio.Reader) (Value, error)

	// Error returns the scale-weighted distance between a and b. A result of
	// one or more means the difference is worth sending.
	Error(a, b Value) float32

	// Extrapolate predicts the value at t. vn2 and vn1 may be nil.
	Extrapolate(vn2 Value, tn2 float64, vn1 Value, tn1 float64, v0 Value, t0 float64, t float64) Value
}

// Precision selects the wire width of a numeric template.
type Precision uint8

const (
	// Precision32 sends full 32-bit IEEE754 components.
	Precision32 Precision = iota
	// Precision16 sends IEEE754 binary16 components.
	Precision16
	// Precision8 quantizes a ranged float to 8 bits.
	Precision8
	// Precision4 quantizes a ranged float to 4 bits.
	Precision4
	// PrecisionPacked sends a direction in 3 bytes plus a 32-bit magnitude.
	PrecisionPacked
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case Precision32:
		return "32"
	case Precision16:
		return "16"
	case Precision8:
		return "8"
	case Precision4:
		return "4"
	case PrecisionPacked:
		return "packed"
	default:
		return fmt.Sprintf("Precision(%d)", p)
	}
}

// safeDelta clamps a time delta away from zero, keeping its sign.
func safeDelta(dt float64) float64 {
	if math.Abs(dt) >= FuzzyEpsilon {
		return dt
	}
	if dt < 0 {
		return -FuzzyEpsilon
	}
	return FuzzyEpsilon
}

func valueTypeError(tag string, v Value) error {
	return fmt.Errorf("%w: %s got %T", ErrValueType, tag, v)
}

func scaleError(d, threshold float32) float32 {
	if threshold > 0 {
		return d / threshold
	}
	return d
}
