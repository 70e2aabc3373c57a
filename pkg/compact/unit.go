package compact

import (
	"math"

	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

const unitSearchSteps = 128

// PackUnit packs the direction of v into 24 bits, one byte per axis.
//
// Decoding renormalizes, so any positive scale of v decodes to roughly the
// same direction. The packer tries unitSearchSteps scales and keeps the one
// whose decoded direction is closest to v.
func PackUnit(v vecmath.Vector4) uint32 {
	n := v.Normalized3()
	if n == vecmath.Zero {
		return quantizeUnit(n)
	}
	best := quantizeUnit(n)
	bestErr := unitError(UnpackUnit(best), n)
	for i := 1; i < unitSearchSteps; i++ {
		k := 1 - float32(i)/unitSearchSteps
		u := quantizeUnit(n.Scale(k))
		if e := unitError(UnpackUnit(u), n); e < bestErr {
			best, bestErr = u, e
		}
	}
	return best
}

// UnpackUnit decodes a direction packed by PackUnit. The result has W = 0.
func UnpackUnit(u uint32) vecmath.Vector4 {
	x := float32((u>>16)&0xff)/127 - 1
	y := float32((u>>8)&0xff)/127 - 1
	z := float32(u&0xff)/127 - 1
	return vecmath.Direction(x, y, z).Normalized3()
}

func quantizeUnit(v vecmath.Vector4) uint32 {
	q := func(f float32) uint32 {
		i := int((f*0.5 + 0.5) * 255)
		if i < 0 {
			i = 0
		} else if i > 255 {
			i = 255
		}
		return uint32(i)
	}
	return q(v.X)<<16 | q(v.Y)<<8 | q(v.Z)
}

func unitError(a, b vecmath.Vector4) float32 {
	d := a.Sub(b)
	return float32(math.Abs(float64(d.X)) + math.Abs(float64(d.Y)) + math.Abs(float64(d.Z)))
}
