package state

import (
	"fmt"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// BodyStateTemplate replicates a rigid body.
//
// Position and orientation travel at full precision, velocities as binary16.
// Prediction integrates the newest velocities with a second order term from
// the acceleration the history implies. Past Window seconds from the newest
// sample the template stops predicting and returns that sample.
type BodyStateTemplate struct {
	Name                 string
	PositionThreshold    float32
	OrientationThreshold float32

	// Window bounds extrapolation. Zero means MaxExtrapolationDelta.
	Window float64
}

// NewBodyStateTemplate returns a body state template.
func NewBodyStateTemplate(name string, positionThreshold, orientationThreshold float32) *BodyStateTemplate {
	return &BodyStateTemplate{
		Name:                 name,
		PositionThreshold:    positionThreshold,
		OrientationThreshold: orientationThreshold,
	}
}

func (t *BodyStateTemplate) Tag() string { return t.Name }

func (t *BodyStateTemplate) Accepts(v Value) bool {
	_, ok := v.(BodyState)
	return ok
}

func (t *BodyStateTemplate) Validate() error {
	if t.Window < 0 {
		return fmt.Errorf("%w: %s negative window", ErrInvalidTemplate, t.Name)
	}
	return nil
}

func (t *BodyStateTemplate) window() float64 {
	if t.Window > 0 {
		return t.Window
	}
	return MaxExtrapolationDelta
}

func (t *BodyStateTemplate) Pack(w *bitio.Writer, v Value) error {
	b, ok := v.(BodyState)
	if !ok {
		return valueTypeError(t.Name, v)
	}
	s := compact.NewWriter(w, nil)
	if err := s.Vector(&b.Position, compact.VectorPoint); err != nil {
		return err
	}
	if err := s.Quaternion(&b.Orientation); err != nil {
		return err
	}
	if err := s.Vector(&b.LinearVelocity, compact.VectorHalf); err != nil {
		return err
	}
	return s.Vector(&b.AngularVelocity, compact.VectorHalf)
}

func (t *BodyStateTemplate) Unpack(r *bitio.Reader) (Value, error) {
	var b BodyState
	s := compact.NewReader(r, nil)
	if err := s.Vector(&b.Position, compact.VectorPoint); err != nil {
		return nil, err
	}
	if err := s.Quaternion(&b.Orientation); err != nil {
		return nil, err
	}
	if err := s.Vector(&b.LinearVelocity, compact.VectorHalf); err != nil {
		return nil, err
	}
	if err := s.Vector(&b.AngularVelocity, compact.VectorHalf); err != nil {
		return nil, err
	}
	return b, nil
}

func (t *BodyStateTemplate) Error(a, b Value) float32 {
	ba, bb := a.(BodyState), b.(BodyState)
	return scaleError(vecmath.Distance3(ba.Position, bb.Position), t.PositionThreshold) +
		scaleError(vecmath.AngleBetween(ba.Orientation, bb.Orientation), t.OrientationThreshold)
}

func (t *BodyStateTemplate) Extrapolate(vn2 Value, tn2 float64, vn1 Value, tn1 float64, v0 Value, t0 float64, tt float64) Value {
	dt := tt - t0
	if dt > t.window() {
		return v0
	}
	b0 := v0.(BodyState)

	var accel vecmath.Vector4
	if vn1 != nil {
		b1 := vn1.(BodyState)
		accel = b0.LinearVelocity.Sub(b1.LinearVelocity).Scale(float32(1 / safeDelta(t0-tn1)))
		if vn2 != nil {
			// Mean acceleration over both intervals.
			b2 := vn2.(BodyState)
			a2 := b1.LinearVelocity.Sub(b2.LinearVelocity).Scale(float32(1 / safeDelta(tn1-tn2)))
			accel = accel.Add(a2).Scale(0.5)
		}
		accel = accel.XYZ0()
	}

	k := float32(dt)
	out := b0
	out.Position = b0.Position.Add(b0.LinearVelocity.XYZ0().Scale(k)).Add(accel.Scale(0.5 * k * k))
	out.LinearVelocity = b0.LinearVelocity.Add(accel.Scale(k))

	w := b0.AngularVelocity.XYZ0()
	if angle := w.Length3() * k; angle != 0 && w.Length3() > vecmath.FuzzyEpsilon {
		out.Orientation = vecmath.AxisAngle(w.Normalized3(), angle).Mul(b0.Orientation).Normalized()
	}
	return out
}
