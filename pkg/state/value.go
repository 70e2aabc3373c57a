package state

import "github.com/apistol78/traktor-sub009/pkg/vecmath"

// Value is one immutable field value of a snapshot. The concrete types are
// small Go values, so sharing a Value between history slots never aliases
// mutable memory.
type Value interface {
	isValue()
}

// Bool is a boolean field value.
type Bool bool

// Float is a scalar field value.
type Float float32

// Vector is a vector field value.
type Vector vecmath.Vector4

// Quaternion is a rotation field value.
type Quaternion vecmath.Quaternion

// Transform is a rigid transform field value.
type Transform struct {
	Translation vecmath.Vector4
	Rotation    vecmath.Quaternion
}

// BodyState is the kinematic state of a rigid body.
type BodyState struct {
	Position        vecmath.Vector4
	Orientation     vecmath.Quaternion
	LinearVelocity  vecmath.Vector4
	AngularVelocity vecmath.Vector4
}

func (Bool) isValue()       {}
func (Float) isValue()      {}
func (Vector) isValue()     {}
func (Quaternion) isValue() {}
func (Transform) isValue()  {}
func (BodyState) isValue()  {}
