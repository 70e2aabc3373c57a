package state

import (
	"errors"
	"fmt"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
)

// MaxSnapshotSize bounds a packed snapshot in bytes.
const MaxSnapshotSize = 1024

// State is an immutable snapshot: one Value per field of a StateTemplate.
// A *State may be shared freely once built.
type State struct {
	values []Value
}

// NewState builds a snapshot from values. The slice is copied.
func NewState(values ...Value) *State {
	return &State{values: append([]Value(nil), values...)}
}

// Len returns the number of fields.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Value returns field i.
func (s *State) Value(i int) Value {
	return s.values[i]
}

// Values returns a copy of the field values.
func (s *State) Values() []Value {
	return append([]Value(nil), s.values...)
}

// StateTemplate is the ordered schema of an entity's replicated fields.
type StateTemplate struct {
	templates []ValueTemplate
}

// NewStateTemplate validates and binds templates to field slots in order.
func NewStateTemplate(templates ...ValueTemplate) (*StateTemplate, error) {
	for i, t := range templates {
		if t == nil {
			return nil, fmt.Errorf("%w: field %d is nil", ErrInvalidTemplate, i)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, t.Tag(), err)
		}
	}
	return &StateTemplate{templates: append([]ValueTemplate(nil), templates...)}, nil
}

// MustStateTemplate is like NewStateTemplate but panics on error.
func MustStateTemplate(templates ...ValueTemplate) *StateTemplate {
	st, err := NewStateTemplate(templates...)
	if err != nil {
		panic(err)
	}
	return st
}

// Len returns the number of fields.
func (st *StateTemplate) Len() int {
	return len(st.templates)
}

// Template returns the template of field i.
func (st *StateTemplate) Template(i int) ValueTemplate {
	return st.templates[i]
}

// Validate checks that s matches the schema.
func (st *StateTemplate) Validate(s *State) error {
	if s.Len() != len(st.templates) {
		return fmt.Errorf("%w: have %d, want %d", ErrFieldCount, s.Len(), len(st.templates))
	}
	for i, t := range st.templates {
		if !t.Accepts(s.values[i]) {
			return valueTypeError(t.Tag(), s.values[i])
		}
	}
	return nil
}

// Pack writes every field of s through its template.
func (st *StateTemplate) Pack(w *bitio.Writer, s *State) error {
	if err := st.Validate(s); err != nil {
		return err
	}
	for i, t := range st.templates {
		if err := t.Pack(w, s.values[i]); err != nil {
			return fmt.Errorf("pack %s: %w", t.Tag(), err)
		}
	}
	return nil
}

// Unpack reads a snapshot. Either every field decodes or no State is
// returned.
func (st *StateTemplate) Unpack(r *bitio.Reader) (*State, error) {
	values := make([]Value, len(st.templates))
	for i, t := range st.templates {
		v, err := t.Unpack(r)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", t.Tag(), err)
		}
		values[i] = v
	}
	return &State{values: values}, nil
}

// PackBytes packs s into a new byte slice padded to a byte boundary.
func (st *StateTemplate) PackBytes(s *State) ([]byte, error) {
	return st.AppendPacked(nil, s)
}

// AppendPacked appends the packed form of s, at most MaxSnapshotSize bytes,
// to dst.
func (st *StateTemplate) AppendPacked(dst []byte, s *State) ([]byte, error) {
	buf := make([]byte, MaxSnapshotSize)
	w := bitio.NewWriter(buf)
	if err := st.Pack(w, s); err != nil {
		if errors.Is(err, bitio.ErrOutOfSpace) {
			return nil, ErrSnapshotTooLarge
		}
		return nil, err
	}
	w.Flush()
	return append(dst, w.Bytes()...), nil
}

// UnpackBytes reads a snapshot from data.
func (st *StateTemplate) UnpackBytes(data []byte) (*State, error) {
	return st.Unpack(bitio.NewReader(data))
}

// Extrapolate predicts the whole snapshot at t from up to three samples.
//
// Missing history degrades gracefully: with only s0 the result is s0, with
// s0 and sn1 every field extrapolates linearly, and with all three each
// template uses its full model. A nil s0, or t further than
// MaxExtrapolationDelta past t0, yields nil.
func (st *StateTemplate) Extrapolate(sn2 *State, tn2 float64, sn1 *State, tn1 float64, s0 *State, t0 float64, t float64) *State {
	if s0 == nil || t > t0+MaxExtrapolationDelta {
		return nil
	}
	if t == t0 || sn1 == nil {
		return s0
	}
	if sn2 != nil && sn2.Len() != s0.Len() {
		sn2 = nil
	}
	if s0.Len() != len(st.templates) || sn1.Len() != s0.Len() {
		return s0
	}
	values := make([]Value, len(st.templates))
	for i, tpl := range st.templates {
		var vn2 Value
		if sn2 != nil {
			vn2 = sn2.values[i]
		}
		values[i] = tpl.Extrapolate(vn2, tn2, sn1.values[i], tn1, s0.values[i], t0, t)
	}
	return &State{values: values}
}

// Error sums the field errors between a and b.
func (st *StateTemplate) Error(a, b *State) float32 {
	var sum float32
	for i, t := range st.templates {
		sum += t.Error(a.values[i], b.values[i])
	}
	return sum
}

// Critical reports whether any field of b differs enough from a to be worth
// sending.
func (st *StateTemplate) Critical(a, b *State) bool {
	if a.Len() != len(st.templates) || b.Len() != len(st.templates) {
		return true
	}
	for i, t := range st.templates {
		if t.Error(a.values[i], b.values[i]) >= 1 {
			return true
		}
	}
	return false
}
