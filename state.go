package sixdof

import (
	"fmt"
	"math"
)

// StateSize is the number of components of the rigid body state vector.
const StateSize = 13

// State is the rigid body state vector of the rocket:
// position (x, y, z) and velocity (vx, vy, vz) in the inertial launch frame,
// Euler parameters (e0, e1, e2, e3) and body angular velocity (ω1, ω2, ω3).
type State [StateSize]float64

// NewState returns the State from a slice, which must have 13 components.
func NewState(s []float64) (u State) {
	if len(s) != StateSize {
		panic(fmt.Errorf("state vector must have %d components, got %d", StateSize, len(s)))
	}
	copy(u[:], s)
	return
}

// Slice returns a copy of the state as a slice.
func (u State) Slice() []float64 {
	s := make([]float64, StateSize)
	copy(s, u[:])
	return s
}

// Position returns (x, y, z).
func (u State) Position() []float64 { return []float64{u[0], u[1], u[2]} }

// Velocity returns (vx, vy, vz).
func (u State) Velocity() []float64 { return []float64{u[3], u[4], u[5]} }

// EulerParameters returns (e0, e1, e2, e3).
func (u State) EulerParameters() []float64 { return []float64{u[6], u[7], u[8], u[9]} }

// AngularVelocity returns (ω1, ω2, ω3) in the body frame.
func (u State) AngularVelocity() []float64 { return []float64{u[10], u[11], u[12]} }

// X returns the East position.
func (u State) X() float64 { return u[0] }

// Y returns the North position.
func (u State) Y() float64 { return u[1] }

// Z returns the altitude above the launch site.
func (u State) Z() float64 { return u[2] }

// Vz returns the vertical velocity.
func (u State) Vz() float64 { return u[5] }

// QuaternionNorm returns the norm of the Euler parameters, which should remain close to one.
func (u State) QuaternionNorm() float64 {
	return math.Sqrt(u[6]*u[6] + u[7]*u[7] + u[8]*u[8] + u[9]*u[9])
}

// IsFinite returns false if any component is NaN or infinite.
func (u State) IsFinite() bool {
	for _, v := range u {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AttitudeFromLaunch returns the Euler parameters of a rocket on a rail of the
// given inclination (from the horizontal) and heading (from North), in degrees.
func AttitudeFromLaunch(inclination, heading float64) (e0, e1, e2, e3 float64) {
	launchAngle := Deg2rad(90 - inclination)
	rotAngle := Deg2rad(90 - heading)
	s, c := math.Sincos(rotAngle)
	axis := []float64{-s, c, 0}
	sh, ch := math.Sincos(launchAngle / 2)
	return ch, sh * axis[0], sh * axis[1], 0
}
