package state

import (
	"github.com/apistol78/traktor-sub009/pkg/bitio"
)

// BoolTemplate replicates a boolean flag in one bit.
type BoolTemplate struct {
	Name string

	// Penalty is the error reported when two values differ. Zero means 1.
	Penalty float32
}

// NewBoolTemplate returns a boolean template whose changes are always
// worth sending.
func NewBoolTemplate(name string) *BoolTemplate {
	return &BoolTemplate{Name: name, Penalty: 1}
}

func (t *BoolTemplate) Tag() string { return t.Name }

func (t *BoolTemplate) Accepts(v Value) bool {
	_, ok := v.(Bool)
	return ok
}

func (t *BoolTemplate) Validate() error {
	if t.Penalty < 0 {
		return ErrInvalidTemplate
	}
	return nil
}

func (t *BoolTemplate) Pack(w *bitio.Writer, v Value) error {
	b, ok := v.(Bool)
	if !ok {
		return valueTypeError(t.Name, v)
	}
	return w.WriteBit(bool(b))
}

func (t *BoolTemplate) Unpack(r *bitio.Reader) (Value, error) {
	b, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	return Bool(b), nil
}

func (t *BoolTemplate) Error(a, b Value) float32 {
	if a.(Bool) == b.(Bool) {
		return 0
	}
	if t.Penalty == 0 {
		return 1
	}
	return t.Penalty
}

// Extrapolate holds the newest value; flags do not move between samples.
func (t *BoolTemplate) Extrapolate(_ Value, _ float64, _ Value, _ float64, v0 Value, _ float64, _ float64) Value {
	return v0
}
