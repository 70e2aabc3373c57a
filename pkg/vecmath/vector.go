// Package vecmath holds the small amount of 3D math the replication templates
// need: a four component vector and a unit quaternion.
package vecmath

import "math"

// FuzzyEpsilon is the smallest magnitude treated as non-zero.
const FuzzyEpsilon = 1e-4

// Vector4 is a homogeneous vector. Points carry W = 1, directions W = 0.
type Vector4 struct {
	X, Y, Z, W float32
}

// Zero is the zero direction.
var Zero = Vector4{}

// Point returns a point (W = 1).
func Point(x, y, z float32) Vector4 {
	return Vector4{X: x, Y: y, Z: z, W: 1}
}

// Direction returns a direction (W = 0).
func Direction(x, y, z float32) Vector4 {
	return Vector4{X: x, Y: y, Z: z}
}

// Add returns v + o.
func (v Vector4) Add(o Vector4) Vector4 {
	return Vector4{v.X + o.X, v.Y + o.Y, v.Z + o.Z, v.W + o.W}
}

// Sub returns v - o.
func (v Vector4) Sub(o Vector4) Vector4 {
	return Vector4{v.X - o.X, v.Y - o.Y, v.Z - o.Z, v.W - o.W}
}

// Scale returns v * s.
func (v Vector4) Scale(s float32) Vector4 {
	return Vector4{v.X * s, v.Y * s, v.Z * s, v.W * s}
}

// Dot3 is the dot product of the XYZ parts.
func (v Vector4) Dot3(o Vector4) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length3 is the length of the XYZ part.
func (v Vector4) Length3() float32 {
	return float32(math.Sqrt(float64(v.Dot3(v))))
}

// Length4 is the length over all four components.
func (v Vector4) Length4() float32 {
	return float32(math.Sqrt(float64(v.Dot3(v) + v.W*v.W)))
}

// Normalized3 returns the XYZ part scaled to unit length with W cleared, or
// the zero vector when the length is below FuzzyEpsilon.
func (v Vector4) Normalized3() Vector4 {
	l := v.Length3()
	if l <= FuzzyEpsilon {
		return Zero
	}
	return Direction(v.X/l, v.Y/l, v.Z/l)
}

// XYZ0 returns v with W cleared.
func (v Vector4) XYZ0() Vector4 {
	return Vector4{X: v.X, Y: v.Y, Z: v.Z}
}

// XYZ1 returns v with W set to one.
func (v Vector4) XYZ1() Vector4 {
	return Vector4{X: v.X, Y: v.Y, Z: v.Z, W: 1}
}

// Lerp interpolates between a and b.
func Lerp(a, b Vector4, k float32) Vector4 {
	return a.Add(b.Sub(a).Scale(k))
}

// Distance3 is the XYZ distance between two points.
func Distance3(a, b Vector4) float32 {
	return a.Sub(b).Length3()
}

// Finite reports whether all components are finite.
func (v Vector4) Finite() bool {
	for _, c := range [4]float32{v.X, v.Y, v.Z, v.W} {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
