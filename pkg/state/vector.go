package state

import (
	"fmt"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// VectorTemplate replicates a point or direction.
//
// Precision32 and Precision16 send XYZ per component. PrecisionPacked sends
// the direction in 3 bytes and the length as a float, which suits
// velocities and other direction-heavy fields. W is restored from Point.
type VectorTemplate struct {
	Name      string
	Threshold float32
	Precision Precision
	Point     bool
}

// NewVectorTemplate returns a full precision vector template.
func NewVectorTemplate(name string, threshold float32, point bool) *VectorTemplate {
	return &VectorTemplate{Name: name, Threshold: threshold, Point: point}
}

func (t *VectorTemplate) Tag() string { return t.Name }

func (t *VectorTemplate) Accepts(v Value) bool {
	_, ok := v.(Vector)
	return ok
}

func (t *VectorTemplate) Validate() error {
	switch t.Precision {
	case Precision32, Precision16, PrecisionPacked:
		return nil
	default:
		return fmt.Errorf("%w: %s precision %s", ErrInvalidTemplate, t.Name, t.Precision)
	}
}

func (t *VectorTemplate) w() float32 {
	if t.Point {
		return 1
	}
	return 0
}

func (t *VectorTemplate) Pack(w *bitio.Writer, v Value) error {
	vv, ok := v.(Vector)
	if !ok {
		return valueTypeError(t.Name, v)
	}
	x := vecmath.Vector4(vv)
	s := compact.NewWriter(w, nil)
	switch t.Precision {
	case Precision16:
		return s.Vector(&x, compact.VectorHalf)
	case PrecisionPacked:
		if err := s.Vector(&x, compact.VectorUnit); err != nil {
			return err
		}
		l := x.Length3()
		return s.Float32(&l)
	default:
		return s.Vector(&x, compact.VectorDirection)
	}
}

func (t *VectorTemplate) Unpack(r *bitio.Reader) (Value, error) {
	var x vecmath.Vector4
	s := compact.NewReader(r, nil)
	switch t.Precision {
	case Precision16:
		if err := s.Vector(&x, compact.VectorHalf); err != nil {
			return nil, err
		}
	case PrecisionPacked:
		if err := s.Vector(&x, compact.VectorUnit); err != nil {
			return nil, err
		}
		var l float32
		if err := s.Float32(&l); err != nil {
			return nil, err
		}
		x = x.Scale(l)
	default:
		if err := s.Vector(&x, compact.VectorDirection); err != nil {
			return nil, err
		}
	}
	x.W = t.w()
	return Vector(x), nil
}

func (t *VectorTemplate) Error(a, b Value) float32 {
	d := vecmath.Vector4(a.(Vector)).Sub(vecmath.Vector4(b.(Vector))).Length3()
	return scaleError(d, t.Threshold)
}

// Extrapolate continues the velocity of the last two samples.
func (t *VectorTemplate) Extrapolate(_ Value, _ float64, vn1 Value, tn1 float64, v0 Value, t0 float64, tt float64) Value {
	if vn1 == nil {
		return v0
	}
	return Vector(extrapolateLinear(vecmath.Vector4(vn1.(Vector)), tn1, vecmath.Vector4(v0.(Vector)), t0, tt))
}

func extrapolateLinear(pn1 vecmath.Vector4, tn1 float64, p0 vecmath.Vector4, t0 float64, t float64) vecmath.Vector4 {
	k := float32((t - t0) / safeDelta(t0-tn1))
	d := p0.Sub(pn1).XYZ0()
	return p0.Add(d.Scale(k))
}
