package node

import (
	"math"

	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/state"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// DemoTemplate is the snapshot schema of the orbiting demo entity.
func DemoTemplate() *state.StateTemplate {
	return state.MustStateTemplate(
		state.NewBodyStateTemplate("body", 0.01, 0.01),
		state.NewRangedFloatTemplate("heading", 0.02, 0, 2*math.Pi, state.Precision8, true),
	)
}

// Greeting is sent to every peer once the handshake completes.
type Greeting struct {
	Name string
	Peer int32
}

func (g *Greeting) TypeName() string { return "replicad.Greeting" }

func (g *Greeting) Serialize(s *compact.Serializer) error {
	if err := s.String(&g.Name); err != nil {
		return err
	}
	return s.Int32(&g.Peer)
}

// DemoEvents lists the event types nodes exchange.
var DemoEvents = compact.MustTypeTable(compact.TypeDescriptor{
	Name: "replicad.Greeting",
	New:  func() compact.Serializable { return &Greeting{} },
})

// orbit moves a body on a horizontal circle around origin.
type orbit struct {
	origin vecmath.Vector4
	radius float32
	speed  float32
}

// at returns the demo state and heading t seconds into the orbit.
func (o orbit) at(t float64) *state.State {
	angle := float32(math.Mod(float64(o.speed)*t, 2*math.Pi))
	if angle < 0 {
		angle += 2 * math.Pi
	}
	sin, cos := float32(math.Sin(float64(angle))), float32(math.Cos(float64(angle)))

	position := o.origin.Add(vecmath.Direction(o.radius*cos, 0, o.radius*sin))
	velocity := vecmath.Direction(-o.radius*o.speed*sin, 0, o.radius*o.speed*cos)
	return state.NewState(
		state.BodyState{
			Position:        position,
			Orientation:     vecmath.AxisAngle(vecmath.Direction(0, 1, 0), -angle),
			LinearVelocity:  velocity,
			AngularVelocity: vecmath.Direction(0, -o.speed, 0),
		},
		state.Float(angle),
	)
}
