package vecmath

import "math"

// Quaternion is a rotation quaternion (X, Y, Z imaginary, W real).
type Quaternion struct {
	X, Y, Z, W float32
}

// Identity is the identity rotation.
var Identity = Quaternion{W: 1}

// AxisAngle returns a rotation of angle radians around a unit axis.
func AxisAngle(axis Vector4, angle float32) Quaternion {
	h := float64(angle) * 0.5
	s := float32(math.Sin(h))
	return Quaternion{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: float32(math.Cos(h)),
	}
}

// Mul returns the composition q * o (o applied first).
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Inverse returns the conjugate, which is the inverse of a unit quaternion.
func (q Quaternion) Inverse() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Dot is the four component dot product.
func (q Quaternion) Dot(o Quaternion) float32 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Negate flips every component; the rotation is unchanged.
func (q Quaternion) Negate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, -q.W}
}

// Normalized returns q scaled to unit length, or Identity when degenerate.
func (q Quaternion) Normalized() Quaternion {
	l := float32(math.Sqrt(float64(q.Dot(q))))
	if l <= FuzzyEpsilon {
		return Identity
	}
	return Quaternion{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// Angle returns the rotation angle of q in radians, in [0, pi].
func (q Quaternion) Angle() float32 {
	w := math.Abs(float64(q.W))
	if w > 1 {
		w = 1
	}
	return float32(2 * math.Acos(w))
}

// AngleBetween returns the rotation angle taking a to b.
func AngleBetween(a, b Quaternion) float32 {
	return b.Mul(a.Inverse()).Angle()
}

// Rotate applies q to the XYZ part of v; W is kept.
func (q Quaternion) Rotate(v Vector4) Vector4 {
	p := Quaternion{X: v.X, Y: v.Y, Z: v.Z}
	r := q.Mul(p).Mul(q.Inverse())
	return Vector4{X: r.X, Y: r.Y, Z: r.Z, W: v.W}
}

// Slerp interpolates along the shortest arc from a to b. k outside [0, 1]
// extrapolates along the same great circle.
func Slerp(a, b Quaternion, k float32) Quaternion {
	if k == 0 {
		return a
	}
	d := a.Dot(b)
	if d < 0 {
		b = b.Negate()
		d = -d
	}
	if d > 1-FuzzyEpsilon {
		// Nearly parallel; a normalized lerp is accurate enough.
		return Quaternion{
			X: a.X + (b.X-a.X)*k,
			Y: a.Y + (b.Y-a.Y)*k,
			Z: a.Z + (b.Z-a.Z)*k,
			W: a.W + (b.W-a.W)*k,
		}.Normalized()
	}
	theta := math.Acos(float64(d))
	sin := math.Sin(theta)
	ka := float32(math.Sin((1-float64(k))*theta) / sin)
	kb := float32(math.Sin(float64(k)*theta) / sin)
	return Quaternion{
		X: a.X*ka + b.X*kb,
		Y: a.Y*ka + b.Y*kb,
		Z: a.Z*ka + b.Z*kb,
		W: a.W*ka + b.W*kb,
	}.Normalized()
}
