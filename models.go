package sixdof

import (
	"fmt"
	"math"
)

const (
	// machReferenceSpeed is the speed of sound used to compute the Mach number of the drag curves.
	machReferenceSpeed = 340.40
	// Parachute canopy added mass, modelled as a sphere of air.
	canopyAddedMassCoeff = 1.0
	canopyRadius         = 1.5 // m
)

// DynamicsModel defines the equations of motion of a flight phase.
type DynamicsModel interface {
	// Returns the name of this model.
	Name() string
	// Returns the time derivative of the state. When rec is not nil, the
	// auxiliary quantities of the computation are recorded in it.
	Derivative(t float64, u State, rec *Recorder) State
}

// freestream returns the wind velocity at the altitude of u minus the
// velocity of the rocket, and its norm.
func freestream(env *Environment, u State) (stream []float64, speed float64) {
	z := u[2]
	stream = []float64{env.WindVelocityX.Value(z) - u[3], env.WindVelocityY.Value(z) - u[4], -u[5]}
	return stream, norm(stream)
}

// RailModel constrains the rocket to translate along its axis while on the launch rail.
type RailModel struct {
	rocket *Rocket
	env    *Environment
}

// NewRailModel returns the rail dynamics of the rocket in env.
func NewRailModel(rocket *Rocket, env *Environment) *RailModel {
	return &RailModel{rocket, env}
}

// Name implements the DynamicsModel interface.
func (m *RailModel) Name() string { return "rail" }

// Derivative implements the DynamicsModel interface. The rail holds the rocket
// while the net axial acceleration is not positive.
func (m *RailModel) Derivative(t float64, u State, rec *Recorder) State {
	r, env := m.rocket, m.env
	z := u[2]
	e0, e1, e2, e3 := u[6], u[7], u[8], u[9]
	mass := r.TotalMass.Value(t)
	stream, speed := freestream(env, u)
	cd := r.PowerOnDrag.Value(speed / machReferenceSpeed)
	thrust := r.Motor.Thrust().Value(t)
	R3 := -0.5 * env.Density.Value(z) * speed * speed * r.Area * cd
	a3 := (R3+thrust)/mass - (e0*e0-e1*e1-e2*e2+e3*e3)*env.Gravity
	var ax, ay, az float64
	if a3 > 0 {
		ax = 2 * (e1*e3 + e0*e2) * a3
		ay = 2 * (e2*e3 - e0*e1) * a3
		az = (1 - 2*(e1*e1+e2*e2)) * a3
	}
	if rec != nil {
		rec.Record(t, map[Quantity]float64{
			QuantityAttackAngle:     0,
			QuantityStaticMargin:    r.StaticMargin.Value(t),
			QuantityFreestreamSpeed: speed,
			QuantityStreamVelocityX: stream[0],
			QuantityStreamVelocityY: stream[1],
			QuantityStreamVelocityZ: stream[2],
			QuantityR1:              0,
			QuantityR2:              0,
			QuantityR3:              R3,
			QuantityM1:              0,
			QuantityM2:              0,
			QuantityM3:              0,
			QuantityAx:              ax,
			QuantityAy:              ay,
			QuantityAz:              az,
		})
	}
	return State{u[3], u[4], u[5], ax, ay, az}
}

// FreeFlightModel is the six degrees of freedom model of the powered and
// coasting flight of a variable mass rocket.
type FreeFlightModel struct {
	rocket *Rocket
	env    *Environment
}

// NewFreeFlightModel returns the free flight dynamics of the rocket in env.
func NewFreeFlightModel(rocket *Rocket, env *Environment) *FreeFlightModel {
	return &FreeFlightModel{rocket, env}
}

// Name implements the DynamicsModel interface.
func (m *FreeFlightModel) Name() string { return "free flight" }

// Derivative implements the DynamicsModel interface.
func (m *FreeFlightModel) Derivative(t float64, u State, rec *Recorder) State {
	r, env, motor := m.rocket, m.env, m.rocket.Motor
	z, vx, vy, vz := u[2], u[3], u[4], u[5]
	e0, e1, e2, e3 := u[6], u[7], u[8], u[9]
	w1, w2, w3 := u[10], u[11], u[12]

	var R1, R2, M1, M2, M3 float64
	var Tz, Ti, TzDot, TiDot, MtDot, Mt, thrust float64
	burning := t < motor.BurnOutTime()
	if burning {
		Tz, Ti = motor.InertiaZ().Value(t), motor.InertiaI().Value(t)
		TzDot, TiDot = motor.InertiaZDot().Value(t), motor.InertiaIDot().Value(t)
		MtDot, Mt = motor.MassDot().Value(t), motor.Mass().Value(t)
		thrust = motor.Thrust().Value(t)
		M1 += r.ThrustEccentricityX * thrust
		M2 -= r.ThrustEccentricityY * thrust
	}
	Rz, Ri, Mr := r.InertiaZ, r.InertiaI, r.Mass
	M := Mt + Mr
	mu := Mt * Mr / M
	b := -r.DistanceRocketPropellant
	c := -r.DistanceRocketNozzle
	a := b * Mt / M
	rN := motor.NozzleRadius()
	k := K(e0, e1, e2, e3)
	kt := k.T()

	// Drag
	stream, speed := freestream(env, u)
	mach := speed / machReferenceSpeed
	cd := r.PowerOffDrag.Value(mach)
	if burning {
		cd = r.PowerOnDrag.Value(mach)
	}
	rho := env.Density.Value(z)
	R3 := -0.5 * rho * speed * speed * r.Area * cd
	M1 += r.CPEccentricityY * R3
	M2 -= r.CPEccentricityX * R3

	// Lift of each surface, from its local angle of attack.
	vB := MxV33(kt, []float64{vx, vy, vz})
	for _, s := range r.Surfaces {
		compV := []float64{vB[0] + s.CP*w2, vB[1] - s.CP*w1, vB[2]}
		windB := MxV33(kt, []float64{env.WindVelocityX.Value(z + s.CP), env.WindVelocityY.Value(z + s.CP), 0})
		compStream := sub(windB, compV)
		lateral := compStream[0]*compStream[0] + compStream[1]*compStream[1]
		if lateral == 0 {
			continue
		}
		compSpeed := norm(compStream)
		if -compStream[2]/compSpeed >= 1 {
			continue
		}
		attack := math.Acos(-compStream[2] / compSpeed)
		lift := 0.5 * rho * compSpeed * compSpeed * r.Area * s.ClAlpha * attack
		liftX := lift * compStream[0] / math.Sqrt(lateral)
		liftY := lift * compStream[1] / math.Sqrt(lateral)
		R1 += liftX
		R2 += liftY
		M1 -= (s.CP + a) * liftY
		M2 += (s.CP + a) * liftX
	}

	// Rotation, with the inertia transferred by the propellant flow.
	lateralI := Ri + Ti + mu*b*b
	damping := (TiDot + MtDot*(Mr-1)*(b/M)*(b/M)) - MtDot*((rN/2)*(rN/2)+(c-b*mu/Mr)*(c-b*mu/Mr))
	alpha1 := (M1 - (w2*w3*(Rz+Tz-Ri-Ti-mu*b*b) + w1*damping)) / lateralI
	alpha2 := (M2 - (w1*w3*(Ri+Ti+mu*b*b-Rz-Tz) + w2*damping)) / lateralI
	alpha3 := (M3 - w3*(TzDot-MtDot*rN*rN/2)) / (Rz + Tz)
	e0Dot, e1Dot, e2Dot, e3Dot := quaternionDerivative(e0, e1, e2, e3, []float64{w1, w2, w3})

	// Translation
	L := []float64{
		(R1 - b*Mt*(w2*w2+w3*w3) - 2*c*MtDot*w2) / M,
		(R2 + b*Mt*(alpha3+w1*w2) + 2*c*MtDot*w1) / M,
		(R3 - b*Mt*(alpha2-w1*w3) + thrust) / M,
	}
	acc := MxV33(k, L)
	acc[2] -= env.Gravity

	if rec != nil {
		var attack float64
		if speed > 0 {
			dir := MxV33(kt, []float64{stream[0] / speed, stream[1] / speed, stream[2] / speed})
			if -dir[2] < 1 {
				attack = math.Acos(-dir[2])
			}
		}
		if attack == math.Pi {
			R3 *= -1
		}
		if math.IsNaN(attack) {
			attack = 0
		}
		axis := MxV33(k, []float64{0, 0, 1})
		rSq := R1*R1 + R2*R2
		if rSq == 0 {
			rSq = 1e-5
		}
		cp := cross(MxV33(kt, []float64{R1, R2, 0}), []float64{M1, M2, M3})
		rec.Record(t, map[Quantity]float64{
			QuantityAttackAngle:       Rad2deg(attack),
			QuantityStaticMargin:      r.StaticMargin.Value(t),
			QuantityFreestreamSpeed:   speed,
			QuantityStreamVelocityX:   stream[0],
			QuantityStreamVelocityY:   stream[1],
			QuantityStreamVelocityZ:   stream[2],
			QuantityR1:                R1,
			QuantityR2:                R2,
			QuantityR3:                R3,
			QuantityM1:                M1,
			QuantityM2:                M2,
			QuantityM3:                M3,
			QuantityAx:                acc[0],
			QuantityAy:                acc[1],
			QuantityAz:                acc[2],
			QuantityAlpha1:            alpha1,
			QuantityAlpha2:            alpha2,
			QuantityAlpha3:            alpha3,
			QuantityCPPosition1:       cp[0] / rSq,
			QuantityCPPosition2:       cp[1] / rSq,
			QuantityCPPosition3:       cp[2] / rSq,
			QuantityTrajectoryAngleXZ: Rad2deg(math.Atan2(axis[0], axis[2])),
			QuantityTrajectoryAngleYZ: Rad2deg(math.Atan2(axis[1], axis[2])),
		})
	}
	return State{vx, vy, vz, acc[0], acc[1], acc[2], e0Dot, e1Dot, e2Dot, e3Dot, alpha1, alpha2, alpha3}
}

// ParachuteModel is the three degrees of freedom descent under a canopy. The
// attitude is frozen.
type ParachuteModel struct {
	Parachute *Parachute
	CdS       float64
	rocket    *Rocket
	env       *Environment
}

// NewParachuteModel returns the descent dynamics under the provided parachute.
func NewParachuteModel(p *Parachute, rocket *Rocket, env *Environment) *ParachuteModel {
	return &ParachuteModel{Parachute: p, CdS: p.CdS, rocket: rocket, env: env}
}

// Name implements the DynamicsModel interface.
func (m *ParachuteModel) Name() string { return fmt.Sprintf("parachute %s", m.Parachute.Name) }

// Derivative implements the DynamicsModel interface.
func (m *ParachuteModel) Derivative(t float64, u State, rec *Recorder) State {
	env := m.env
	rho := env.Density.Value(u[2])
	ma := canopyAddedMassCoeff * rho * (4.0 / 3) * math.Pi * canopyRadius * canopyRadius * canopyRadius
	mp := m.rocket.Mass
	stream, speed := freestream(env, u)
	pseudoD := -0.5 * m.CdS * speed
	// The drag opposes the velocity relative to the air.
	Dx, Dy, Dz := -pseudoD*stream[0], -pseudoD*stream[1], -pseudoD*stream[2]
	ax := Dx / (mp + ma)
	ay := Dy / (mp + ma)
	az := (Dz - env.Gravity*mp) / (mp + ma)
	if rec != nil {
		rec.Record(t, map[Quantity]float64{
			QuantityFreestreamSpeed: speed,
			QuantityStreamVelocityX: stream[0],
			QuantityStreamVelocityY: stream[1],
			QuantityStreamVelocityZ: stream[2],
			QuantityR1:              Dx,
			QuantityR2:              Dy,
			QuantityR3:              Dz,
			QuantityAx:              ax,
			QuantityAy:              ay,
			QuantityAz:              az,
		})
	}
	return State{u[3], u[4], u[5], ax, ay, az}
}
