package state

import (
	"fmt"
	"math"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/compact"
)

// FloatTemplate replicates a scalar.
//
// Precision8 and Precision4 quantize over [Min, Max] and need a valid range.
// When Cyclic is set the value wraps around the range (angles, phases) and
// both the error metric and extrapolation take the shortest way around.
type FloatTemplate struct {
	Name      string
	Threshold float32
	Min, Max  float32
	Precision Precision
	Cyclic    bool
}

// NewFloatTemplate returns a full precision, unbounded float template.
func NewFloatTemplate(name string, threshold float32) *FloatTemplate {
	return &FloatTemplate{Name: name, Threshold: threshold}
}

// NewRangedFloatTemplate returns a quantized float template.
func NewRangedFloatTemplate(name string, threshold, min, max float32, p Precision, cyclic bool) *FloatTemplate {
	return &FloatTemplate{Name: name, Threshold: threshold, Min: min, Max: max, Precision: p, Cyclic: cyclic}
}

func (t *FloatTemplate) Tag() string { return t.Name }

func (t *FloatTemplate) Accepts(v Value) bool {
	_, ok := v.(Float)
	return ok
}

func (t *FloatTemplate) Validate() error {
	switch t.Precision {
	case Precision32, Precision16:
		if t.Cyclic && !(t.Max > t.Min) {
			return fmt.Errorf("%w: %s cyclic without range", ErrInvalidTemplate, t.Name)
		}
	case Precision8, Precision4:
		if !(t.Max > t.Min) {
			return fmt.Errorf("%w: %s quantized without range", ErrInvalidTemplate, t.Name)
		}
	default:
		return fmt.Errorf("%w: %s precision %s", ErrInvalidTemplate, t.Name, t.Precision)
	}
	return nil
}

func (t *FloatTemplate) bits() int {
	if t.Precision == Precision4 {
		return 4
	}
	return 8
}

// Tolerance is the largest round trip error of the template's precision.
func (t *FloatTemplate) Tolerance() float32 {
	switch t.Precision {
	case Precision8, Precision4:
		steps := float32(uint(1)<<t.bits() - 1)
		return (t.Max - t.Min) / steps / 2
	default:
		return 0
	}
}

func (t *FloatTemplate) Pack(w *bitio.Writer, v Value) error {
	f, ok := v.(Float)
	if !ok {
		return valueTypeError(t.Name, v)
	}
	x := float32(f)
	if t.Cyclic {
		x = t.wrap(x)
	}
	switch t.Precision {
	case Precision8, Precision4:
		if x < t.Min {
			x = t.Min
		} else if x > t.Max {
			x = t.Max
		}
		steps := float32(uint(1)<<t.bits() - 1)
		q := uint64((x-t.Min)/(t.Max-t.Min)*steps + 0.5)
		return w.WriteUnsigned(t.bits(), q)
	case Precision16:
		return compact.NewWriter(w, nil).HalfFloat32(&x)
	default:
		return compact.NewWriter(w, nil).Float32(&x)
	}
}

func (t *FloatTemplate) Unpack(r *bitio.Reader) (Value, error) {
	var x float32
	switch t.Precision {
	case Precision8, Precision4:
		q, err := r.ReadUnsigned(t.bits())
		if err != nil {
			return nil, err
		}
		steps := float32(uint(1)<<t.bits() - 1)
		x = float32(q)/steps*(t.Max-t.Min) + t.Min
	case Precision16:
		if err := compact.NewReader(r, nil).HalfFloat32(&x); err != nil {
			return nil, err
		}
	default:
		if err := compact.NewReader(r, nil).Float32(&x); err != nil {
			return nil, err
		}
	}
	return Float(x), nil
}

func (t *FloatTemplate) Error(a, b Value) float32 {
	d := float32(math.Abs(float64(t.delta(float32(a.(Float)), float32(b.(Float))))))
	return scaleError(d, t.Threshold)
}

// Extrapolate continues the velocity of the last two samples.
func (t *FloatTemplate) Extrapolate(_ Value, _ float64, vn1 Value, tn1 float64, v0 Value, t0 float64, tt float64) Value {
	if vn1 == nil {
		return v0
	}
	f0 := float32(v0.(Float))
	vel := float64(t.delta(float32(vn1.(Float)), f0)) / safeDelta(t0-tn1)
	x := f0 + float32(vel*(tt-t0))
	if t.Cyclic {
		x = t.wrap(x)
	}
	return Float(x)
}

// delta returns b - a, the short way around when cyclic.
func (t *FloatTemplate) delta(a, b float32) float32 {
	d := b - a
	if !t.Cyclic {
		return d
	}
	r := t.Max - t.Min
	d = float32(math.Mod(float64(d), float64(r)))
	if d > r/2 {
		d -= r
	} else if d < -r/2 {
		d += r
	}
	return d
}

// wrap maps x into [Min, Max). Values already in range are returned as is.
func (t *FloatTemplate) wrap(x float32) float32 {
	if x >= t.Min && x < t.Max {
		return x
	}
	r := float64(t.Max - t.Min)
	m := math.Mod(float64(x-t.Min), r)
	if m < 0 {
		m += r
	}
	return t.Min + float32(m)
}
