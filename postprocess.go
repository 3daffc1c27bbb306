package sixdof

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/sixdof/function"
	"gonum.org/v1/gonum/floats"
)

// ParachuteSignals are the pressure signals seen by a parachute trigger.
type ParachuteSignals struct {
	Clean, Noise, Noisy *function.Function
}

// PostProcessed holds the time series of a simulated flight.
type PostProcessed struct {
	X, Y, Z, Vx, Vy, Vz    *function.Function
	E0, E1, E2, E3         *function.Function
	W1, W2, W3             *function.Function
	Recorded               map[Quantity]*function.Function
	Speed, Acceleration    *function.Function
	RotationalEnergy       *function.Function
	TranslationalEnergy    *function.Function
	KineticEnergy          *function.Function
	PotentialEnergy        *function.Function
	TotalEnergy            *function.Function
	TrajectoryXZ           [][2]float64
	TrajectoryYZ           [][2]float64
	TrajectoryXY           [][2]float64
	Parachutes             map[string]ParachuteSignals
	OutOfRailVelocity      float64
	ApogeeVelocity         float64 // Horizontal velocity at apogee.
	MaxVelocity            float64
	MaxVelocityTime        float64
	MaxAcceleration        float64
	MaxAccelerationTime    float64
	solutionT, speed, accn []float64
}

var stateLabels = [StateSize]string{"X (m)", "Y (m)", "Z (m)", "Vx (m/s)", "Vy (m/s)", "Vz (m/s)",
	"e0", "e1", "e2", "e3", "ω1 (rad/s)", "ω2 (rad/s)", "ω3 (rad/s)"}

// PostProcess builds the time series of the flight by replaying the solution
// through the dynamics model of each phase.
func (f *Flight) PostProcess() error {
	if !f.simulated {
		return ErrNotSimulated
	}
	n := len(f.Solution)
	ts := make([]float64, n)
	columns := make([][]float64, StateSize)
	for c := range columns {
		columns[c] = make([]float64, n)
	}
	for k, p := range f.Solution {
		ts[k] = p.T
		for c := range columns {
			columns[c][k] = p.State[c]
		}
	}
	p := &PostProcessed{solutionT: ts, Recorded: make(map[Quantity]*function.Function), Parachutes: make(map[string]ParachuteSignals)}
	state := make([]*function.Function, StateSize)
	for c := range columns {
		fn, err := function.NewFromXY(ts, columns[c], function.Spline, function.Natural)
		if err != nil {
			return fmt.Errorf("post-processing %s: %w", stateLabels[c], err)
		}
		state[c] = labelled(fn, "Time (s)", stateLabels[c])
	}
	p.X, p.Y, p.Z, p.Vx, p.Vy, p.Vz = state[0], state[1], state[2], state[3], state[4], state[5]
	p.E0, p.E1, p.E2, p.E3 = state[6], state[7], state[8], state[9]
	p.W1, p.W2, p.W3 = state[10], state[11], state[12]

	for _, chute := range f.Rocket.Parachutes {
		clean, noise, noisy, err := chute.SignalFunctions()
		if err != nil {
			return fmt.Errorf("post-processing parachute %s: %w", chute.Name, err)
		}
		p.Parachutes[chute.Name] = ParachuteSignals{clean, noise, noisy}
	}

	// Replay each phase with a recorder.
	rec := NewRecorder()
	for i := 0; i < f.phases.Len()-1; i++ {
		phase := f.phases.At(i)
		if phase.Model == nil {
			break
		}
		t0, t1 := phase.T, f.phases.At(i+1).T
		for _, cb := range phase.Callbacks {
			cb(f)
		}
		for _, pt := range f.Solution {
			if t0 < pt.T && pt.T <= t1 {
				phase.Model.Derivative(pt.T, pt.State, rec)
			}
		}
	}
	for _, q := range Quantities() {
		fn, err := rec.Function(q)
		if err != nil {
			return fmt.Errorf("post-processing: %w", err)
		}
		p.Recorded[q] = fn
	}

	// Magnitudes, extrema and trajectories.
	ax, ay, az := p.Recorded[QuantityAx], p.Recorded[QuantityAy], p.Recorded[QuantityAz]
	p.speed = make([]float64, n)
	p.accn = make([]float64, n)
	for k, pt := range f.Solution {
		p.speed[k] = norm(pt.State.Velocity())
		p.accn[k] = norm([]float64{ax.Value(pt.T), ay.Value(pt.T), az.Value(pt.T)})
		p.TrajectoryXZ = append(p.TrajectoryXZ, [2]float64{pt.State[0], pt.State[2]})
		p.TrajectoryYZ = append(p.TrajectoryYZ, [2]float64{pt.State[1], pt.State[2]})
		p.TrajectoryXY = append(p.TrajectoryXY, [2]float64{pt.State[0], pt.State[1]})
	}
	var err error
	if p.Speed, err = function.NewFromXY(ts, p.speed, function.Linear, function.Constant); err != nil {
		return fmt.Errorf("post-processing speed: %w", err)
	}
	if p.Acceleration, err = function.NewFromXY(ts, p.accn, function.Linear, function.Constant); err != nil {
		return fmt.Errorf("post-processing acceleration: %w", err)
	}
	labelled(p.Speed, "Time (s)", "Velocity Magnitude (m/s)")
	labelled(p.Acceleration, "Time (s)", "Acceleration Magnitude (m/s²)")
	k := floats.MaxIdx(p.speed)
	p.MaxVelocity, p.MaxVelocityTime = p.speed[k], ts[k]
	k = floats.MaxIdx(p.accn)
	p.MaxAcceleration, p.MaxAccelerationTime = p.accn[k], ts[k]
	if f.OutOfRail {
		t := f.OutOfRailTime
		p.OutOfRailVelocity = math.Sqrt(math.Pow(p.Vx.Value(t), 2) + math.Pow(p.Vy.Value(t), 2) + math.Pow(p.Vz.Value(t), 2))
	}
	if f.ApogeeReached {
		p.ApogeeVelocity = math.Hypot(p.Vx.Value(f.ApogeeTime), p.Vy.Value(f.ApogeeTime))
	}
	if err := p.evaluateEnergies(f); err != nil {
		return err
	}
	f.post = p
	f.logger.Log("level", "info", "subsys", "post", "message", "post-processing completed", "samples", n, "max_velocity", p.MaxVelocity, "max_acceleration", p.MaxAcceleration)
	return nil
}

// evaluateEnergies computes the kinetic, potential and total mechanical
// energies at each solution time.
func (p *PostProcessed) evaluateEnergies(f *Flight) error {
	r := f.Rocket
	b := -r.DistanceRocketPropellant
	n := len(p.solutionT)
	rot := make([]float64, n)
	trans := make([]float64, n)
	kin := make([]float64, n)
	pot := make([]float64, n)
	total := make([]float64, n)
	for k, pt := range f.Solution {
		t, u := pt.T, pt.State
		mu := r.ReducedMass.Value(t)
		lateral := r.InertiaI + r.Motor.InertiaI().Value(t) + mu*b*b
		axial := r.InertiaZ + r.Motor.InertiaZ().Value(t)
		mass := r.TotalMass.Value(t)
		rot[k] = 0.5 * (lateral*u[10]*u[10] + lateral*u[11]*u[11] + axial*u[12]*u[12])
		trans[k] = 0.5 * mass * p.speed[k] * p.speed[k]
		kin[k] = rot[k] + trans[k]
		pot[k] = mass * f.Env.Gravity * u[2]
		total[k] = kin[k] + pot[k]
	}
	series := []struct {
		dst    **function.Function
		ys     []float64
		output string
	}{
		{&p.RotationalEnergy, rot, "Rotational Kinetic Energy (J)"},
		{&p.TranslationalEnergy, trans, "Translational Kinetic Energy (J)"},
		{&p.KineticEnergy, kin, "Kinetic Energy (J)"},
		{&p.PotentialEnergy, pot, "Potential Energy (J)"},
		{&p.TotalEnergy, total, "Total Mechanical Energy (J)"},
	}
	for _, s := range series {
		fn, err := function.NewFromXY(p.solutionT, s.ys, function.Linear, function.Constant)
		if err != nil {
			return fmt.Errorf("post-processing %s: %w", s.output, err)
		}
		*s.dst = labelled(fn, "Time (s)", s.output)
	}
	return nil
}

// Results returns the time series of the flight, or ErrNotSimulated before
// post-processing.
func (f *Flight) Results() (*PostProcessed, error) {
	if f.post == nil {
		return nil, ErrNotSimulated
	}
	return f.post, nil
}
