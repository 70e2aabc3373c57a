// Package bitio reads and writes arbitrary-width integers and single bits
// to and from a fixed-capacity byte buffer.
//
// Bits are stored most significant first within each byte. A Writer or Reader
// owns its buffer exclusively; neither type is safe for concurrent use.
//
// Signed values use sign-magnitude encoding: one sign bit followed by nbits-1
// magnitude bits, so a signed field of nbits occupies exactly as many bits as
// an unsigned field of the same width.
package bitio

import "errors"

// Codec errors.
var (
	// ErrOutOfSpace is returned when an operation would read or write past
	// the end of the underlying buffer.
	ErrOutOfSpace = errors.New("bitio: out of space")

	// ErrOverflow is returned when a value does not fit in the requested width.
	ErrOverflow = errors.New("bitio: value overflows bit width")

	// ErrInvalidWidth is returned for a bit width outside 1..64.
	ErrInvalidWidth = errors.New("bitio: invalid bit width")
)

// MaxWidth is the widest field a single call can transfer.
const MaxWidth = 64

func checkWidth(nbits int) error {
	if nbits < 1 || nbits > MaxWidth {
		return ErrInvalidWidth
	}
	return nil
}

// mask returns the low nbits set.
func mask(nbits int) uint64 {
	if nbits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << nbits) - 1
}
