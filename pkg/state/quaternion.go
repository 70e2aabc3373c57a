package state

import (
	"fmt"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// QuaternionTemplate replicates an orientation. Threshold is in radians.
type QuaternionTemplate struct {
	Name      string
	Threshold float32
	Precision Precision
}

// NewQuaternionTemplate returns a full precision orientation template.
func NewQuaternionTemplate(name string, threshold float32) *QuaternionTemplate {
	return &QuaternionTemplate{Name: name, Threshold: threshold}
}

func (t *QuaternionTemplate) Tag() string { return t.Name }

func (t *QuaternionTemplate) Accepts(v Value) bool {
	_, ok := v.(Quaternion)
	return ok
}

func (t *QuaternionTemplate) Validate() error {
	if t.Precision != Precision32 && t.Precision != Precision16 {
		return fmt.Errorf("%w: %s precision %s", ErrInvalidTemplate, t.Name, t.Precision)
	}
	return nil
}

func (t *QuaternionTemplate) Pack(w *bitio.Writer, v Value) error {
	qv, ok := v.(Quaternion)
	if !ok {
		return valueTypeError(t.Name, v)
	}
	q := vecmath.Quaternion(qv)
	s := compact.NewWriter(w, nil)
	if t.Precision == Precision16 {
		for _, f := range []*float32{&q.X, &q.Y, &q.Z, &q.W} {
			if err := s.HalfFloat32(f); err != nil {
				return err
			}
		}
		return nil
	}
	return s.Quaternion(&q)
}

func (t *QuaternionTemplate) Unpack(r *bitio.Reader) (Value, error) {
	var q vecmath.Quaternion
	s := compact.NewReader(r, nil)
	if t.Precision == Precision16 {
		for _, f := range []*float32{&q.X, &q.Y, &q.Z, &q.W} {
			if err := s.HalfFloat32(f); err != nil {
				return nil, err
			}
		}
		return Quaternion(q.Normalized()), nil
	}
	if err := s.Quaternion(&q); err != nil {
		return nil, err
	}
	return Quaternion(q), nil
}

func (t *QuaternionTemplate) Error(a, b Value) float32 {
	d := vecmath.AngleBetween(vecmath.Quaternion(a.(Quaternion)), vecmath.Quaternion(b.(Quaternion)))
	return scaleError(d, t.Threshold)
}

// Extrapolate keeps rotating by the relative rotation of the last two
// samples, scaled by how far t lies past t0.
func (t *QuaternionTemplate) Extrapolate(_ Value, _ float64, vn1 Value, tn1 float64, v0 Value, t0 float64, tt float64) Value {
	if vn1 == nil {
		return v0
	}
	return Quaternion(extrapolateRotation(vecmath.Quaternion(vn1.(Quaternion)), tn1, vecmath.Quaternion(v0.(Quaternion)), t0, tt))
}

func extrapolateRotation(qn1 vecmath.Quaternion, tn1 float64, q0 vecmath.Quaternion, t0 float64, t float64) vecmath.Quaternion {
	k := float32((t - t0) / safeDelta(t0-tn1))
	if k == 0 {
		return q0
	}
	rel := q0.Mul(qn1.Inverse())
	return vecmath.Slerp(vecmath.Identity, rel, k).Mul(q0).Normalized()
}
