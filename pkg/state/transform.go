package state

import (
	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// TransformTemplate replicates a translation and rotation pair at full
// precision.
type TransformTemplate struct {
	Name                 string
	TranslationThreshold float32
	RotationThreshold    float32
}

// NewTransformTemplate returns a transform template.
func NewTransformTemplate(name string, translationThreshold, rotationThreshold float32) *TransformTemplate {
	return &TransformTemplate{
		Name:                 name,
		TranslationThreshold: translationThreshold,
		RotationThreshold:    rotationThreshold,
	}
}

func (t *TransformTemplate) Tag() string { return t.Name }

func (t *TransformTemplate) Accepts(v Value) bool {
	_, ok := v.(Transform)
	return ok
}

func (t *TransformTemplate) Validate() error { return nil }

func (t *TransformTemplate) Pack(w *bitio.Writer, v Value) error {
	tf, ok := v.(Transform)
	if !ok {
		return valueTypeError(t.Name, v)
	}
	s := compact.NewWriter(w, nil)
	if err := s.Vector(&tf.Translation, compact.VectorPoint); err != nil {
		return err
	}
	return s.Quaternion(&tf.Rotation)
}

func (t *TransformTemplate) Unpack(r *bitio.Reader) (Value, error) {
	var tf Transform
	s := compact.NewReader(r, nil)
	if err := s.Vector(&tf.Translation, compact.VectorPoint); err != nil {
		return nil, err
	}
	if err := s.Quaternion(&tf.Rotation); err != nil {
		return nil, err
	}
	return tf, nil
}

func (t *TransformTemplate) Error(a, b Value) float32 {
	ta, tb := a.(Transform), b.(Transform)
	return scaleError(vecmath.Distance3(ta.Translation, tb.Translation), t.TranslationThreshold) +
		scaleError(vecmath.AngleBetween(ta.Rotation, tb.Rotation), t.RotationThreshold)
}

func (t *TransformTemplate) Extrapolate(_ Value, _ float64, vn1 Value, tn1 float64, v0 Value, t0 float64, tt float64) Value {
	if vn1 == nil {
		return v0
	}
	a, b := vn1.(Transform), v0.(Transform)
	return Transform{
		Translation: extrapolateLinear(a.Translation, tn1, b.Translation, t0, tt),
		Rotation:    extrapolateRotation(a.Rotation, tn1, b.Rotation, t0, tt),
	}
}
