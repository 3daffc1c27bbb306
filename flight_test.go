package sixdof

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ChristopherRabotin/sixdof/function"
	"gonum.org/v1/gonum/floats/scalar"
)

var calistoThrust = [][2]float64{
	{0, 0}, {0.055, 100}, {0.092, 1500}, {0.1, 2000}, {0.15, 2200}, {0.2, 1800},
	{0.5, 1950}, {1, 2034}, {1.5, 2000}, {2, 1900}, {2.5, 1760}, {2.9, 1700},
	{3, 1650}, {3.3, 530}, {3.4, 350}, {3.9, 0},
}

func testEnvironment(t *testing.T, railLength float64) *Environment {
	env, err := NewEnvironment(EnvironmentConfig{RailLength: railLength})
	if err != nil {
		t.Fatalf("err %s", err)
	}
	return env
}

// calisto returns a rocket similar to the Calisto with an M1670-like motor.
func calisto(t *testing.T, withParachutes bool) *Rocket {
	motor, err := NewSolidMotor(SolidMotorConfig{
		Thrust:                  ThrustSource{Points: calistoThrust},
		BurnOut:                 3.9,
		GrainNumber:             5,
		GrainSeparation:         0.005,
		GrainDensity:            1815,
		GrainOuterRadius:        0.033,
		GrainInitialInnerRadius: 0.015,
		GrainInitialHeight:      0.12,
		NozzleRadius:            0.033,
		ThroatRadius:            0.011,
	})
	if err != nil {
		t.Fatalf("motor: %s", err)
	}
	r, err := NewRocket(motor, 16.241, 6.6, 0.0351, 0.0635, -1.255, -0.85704, function.NewConstant(0.45), function.NewConstant(0.42))
	if err != nil {
		t.Fatalf("rocket: %s", err)
	}
	r.AddNose(0.55829, NoseVonKarman, 0.71971)
	if _, err := r.AddFins(4, 0.1, 0.12, 0.04, -1.04956, 0); err != nil {
		t.Fatalf("fins: %s", err)
	}
	if _, err := r.AddTail(0.0635, 0.0435, 0.06, -1.194656); err != nil {
		t.Fatalf("tail: %s", err)
	}
	if withParachutes {
		if _, err := r.AddParachute(ParachuteConfig{Name: "Main", CdS: 10, SamplingRate: 105, Lag: 1.5, Seed: 1,
			Noise: Noise{0, 8.3, 0.5},
			Trigger: func(p float64, u State) bool {
				return u.Vz() < 0 && u.Z() < 800
			}}); err != nil {
			t.Fatalf("main: %s", err)
		}
		if _, err := r.AddParachute(ParachuteConfig{Name: "Drogue", CdS: 1, SamplingRate: 105, Lag: 1.5, Seed: 2,
			Noise: Noise{0, 8.3, 0.5},
			Trigger: func(p float64, u State) bool {
				return u.Vz() < 0
			}}); err != nil {
			t.Fatalf("drogue: %s", err)
		}
	}
	return r
}

// constantThrustRocket has a constant mass and no drag.
func constantThrustRocket(t *testing.T, thrust, mass float64) *Rocket {
	motor, err := NewLiquidMotor(LiquidMotorConfig{Thrust: ConstantThrust(thrust), BurnOut: 10})
	if err != nil {
		t.Fatalf("motor: %s", err)
	}
	r, err := NewRocket(motor, mass, 1, 0.01, 0.05, -1, -0.5, function.NewConstant(0), function.NewConstant(0))
	if err != nil {
		t.Fatalf("rocket: %s", err)
	}
	return r
}

func simulate(t *testing.T, r *Rocket, env *Environment, conf FlightConfig) *Flight {
	f, err := NewFlight(r, env, conf)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if err := f.Simulate(context.Background()); err != nil {
		t.Fatalf("simulation failed: %s", err)
	}
	return f
}

func TestFlightRailExitTime(t *testing.T) {
	env := testEnvironment(t, 5.2)
	conf := DefaultFlightConfig()
	conf.Inclination = 90
	conf.TerminateOnApogee = true
	conf.MaxTimeStep = 0.01
	conf.MaxTime = 2
	f := simulate(t, constantThrustRocket(t, 1000, 20), env, conf)
	if !f.OutOfRail {
		t.Fatal("rocket never left the rail")
	}
	a := 1000.0/20 - env.Gravity
	exp := math.Sqrt(2 * env.RailLength / a)
	if !scalar.EqualWithinAbs(f.OutOfRailTime, exp, 1e-4) {
		t.Fatalf("rail exit at %f s, expected %f s", f.OutOfRailTime, exp)
	}
	if !scalar.EqualWithinAbs(f.OutOfRailVelocity, a*exp, 1e-3) {
		t.Fatalf("rail exit velocity %f m/s, expected %f m/s", f.OutOfRailVelocity, a*exp)
	}
	if !scalar.EqualWithinAbs(f.OutOfRailState.Z(), env.RailLength, 1e-4) {
		t.Fatalf("rail exit altitude %f m, expected %f m", f.OutOfRailState.Z(), env.RailLength)
	}
	// The free flight phase starts at the rail exit.
	if f.Phases().At(1).Model.Name() != "free flight" || f.Phases().At(1).T != f.OutOfRailTime {
		t.Fatalf("unexpected phases %s", f.Phases())
	}
}

func TestFlightRailHoldsRocket(t *testing.T) {
	env := testEnvironment(t, 5.2)
	conf := DefaultFlightConfig()
	conf.Inclination = 90
	conf.MaxTime = 1
	// The thrust does not overcome the weight.
	f := simulate(t, constantThrustRocket(t, 100, 20), env, conf)
	if f.OutOfRail {
		t.Fatal("rocket should not leave the rail")
	}
	for _, p := range f.Solution {
		if p.State.Z() != 0 || p.State.Vz() != 0 {
			t.Fatalf("rocket moved on the rail at t=%f: %v", p.T, p.State)
		}
	}
	if f.TFinal != 1 {
		t.Fatalf("simulation should end at the maximum time, got %f", f.TFinal)
	}
}

func TestFlightSymmetry(t *testing.T) {
	conf := DefaultFlightConfig()
	conf.Inclination = 90
	conf.TerminateOnApogee = true
	f := simulate(t, calisto(t, false), testEnvironment(t, 5.2), conf)
	if !f.ApogeeReached {
		t.Fatal("apogee not reached")
	}
	for _, p := range f.Solution {
		if math.Abs(p.State.X()) > 1e-9 || math.Abs(p.State.Y()) > 1e-9 {
			t.Fatalf("vertical flight drifted at t=%f: x=%g y=%g", p.T, p.State.X(), p.State.Y())
		}
		if w := norm(p.State.AngularVelocity()); w > 1e-9 {
			t.Fatalf("vertical flight started rotating at t=%f: |ω|=%g", p.T, w)
		}
	}
	if last := f.Solution[len(f.Solution)-1]; last.T != f.ApogeeTime {
		t.Fatalf("solution should end at apogee: %f != %f", last.T, f.ApogeeTime)
	}
	if err := f.PostProcess(); err != nil {
		t.Fatalf("err %s", err)
	}
	p, err := f.Results()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	for _, pt := range f.Solution[1:] {
		if R1, R2 := p.Recorded[QuantityR1].Value(pt.T), p.Recorded[QuantityR2].Value(pt.T); math.Abs(R1) > 1e-9 || math.Abs(R2) > 1e-9 {
			t.Fatalf("off axis aerodynamic force at t=%f: (%g, %g)", pt.T, R1, R2)
		}
	}
}

// cubicDescentModel flies z(t) = -(t-1)(t-2)(t-3): its vertical velocity
// vanishes twice between t=1 and t=3.
type cubicDescentModel struct{}

func (cubicDescentModel) Name() string { return "cubic descent" }

func (cubicDescentModel) Derivative(t float64, u State, rec *Recorder) State {
	return State{u[3], u[4], u[5], 0, 0, 12 - 6*t}
}

func TestFlightAmbiguousApogee(t *testing.T) {
	conf := DefaultFlightConfig()
	u := make([]float64, StateSize+1)
	u[3] = 6   // z
	u[6] = -11 // vz
	u[7] = 1   // e0
	conf.InitialSolution = u
	// A single step covers both roots.
	conf.MinTimeStep, conf.MaxTimeStep = 4, 4
	conf.MaxTime = 100
	f, err := NewFlight(calisto(t, false), testEnvironment(t, 100), conf)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	f.rail = cubicDescentModel{}
	err = f.Simulate(context.Background())
	if !errors.Is(err, ErrAmbiguousEventTime) {
		t.Fatalf("expected ErrAmbiguousEventTime, got %v", err)
	}
	var simErr *SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected a *SimulationError, got %T", err)
	}
	if simErr.Event != "apogee" || simErr.Phase != 0 || simErr.Time != 4 {
		t.Fatalf("unexpected simulation error %s", simErr)
	}
	if f.ApogeeReached {
		t.Fatal("ambiguous apogee should not be recorded")
	}
}

func TestFlightBallistic(t *testing.T) {
	conf := DefaultFlightConfig()
	conf.Inclination = 85
	conf.Heading = 0
	f := simulate(t, calisto(t, false), testEnvironment(t, 5.2), conf)
	if !f.OutOfRail || f.OutOfRailTime >= f.Rocket.Motor.BurnOutTime() {
		t.Fatalf("rail exit should happen before burn out: %f s", f.OutOfRailTime)
	}
	if f.OutOfRailVelocity <= 0 {
		t.Fatalf("invalid rail exit velocity %f", f.OutOfRailVelocity)
	}
	if !f.ApogeeReached || f.Apogee < 1000 {
		t.Fatalf("apogee %f m is too low", f.Apogee)
	}
	if math.Abs(f.ApogeeState.Vz()) > 0.1 {
		t.Fatalf("vertical velocity at apogee should vanish, got %f", f.ApogeeState.Vz())
	}
	// The vertical velocity changes sign at the apogee.
	for _, p := range f.Solution {
		switch {
		case p.T < f.ApogeeTime-1e-6 && p.State.Vz() < 0:
			t.Fatalf("descending before apogee at t=%f: vz=%f", p.T, p.State.Vz())
		case p.T > f.ApogeeTime+1e-6 && p.State.Vz() > 0:
			t.Fatalf("ascending after apogee at t=%f: vz=%f", p.T, p.State.Vz())
		}
	}
	if !f.Impacted {
		t.Fatal("rocket did not impact")
	}
	if f.ImpactTime <= 0 || f.ImpactTime >= conf.MaxTime {
		t.Fatalf("invalid impact time %f", f.ImpactTime)
	}
	if math.Abs(f.ZImpact) > 0.5 {
		t.Fatalf("impact altitude %f m should be zero", f.ZImpact)
	}
	if f.ImpactVelocity >= 0 {
		t.Fatalf("impact velocity %f should be negative", f.ImpactVelocity)
	}
	if f.TFinal != f.ImpactTime {
		t.Fatalf("simulation should end on impact: %f != %f", f.TFinal, f.ImpactTime)
	}
	// Heading north: the rocket drifts along +y only.
	if f.ApogeeY <= 0 || math.Abs(f.ApogeeX) > 1e-6 {
		t.Fatalf("unexpected apogee position (%f, %f)", f.ApogeeX, f.ApogeeY)
	}
	for _, p := range f.Solution {
		if n := p.State.QuaternionNorm(); math.Abs(n-1) > 1e-3 {
			t.Fatalf("quaternion norm drifted to %f at t=%f", n, p.T)
		}
	}
	for k := 1; k < len(f.Solution); k++ {
		if f.Solution[k].T <= f.Solution[k-1].T {
			t.Fatalf("solution times are not increasing at %d: %f <= %f", k, f.Solution[k].T, f.Solution[k-1].T)
		}
	}
	if len(f.TimeSteps) == 0 || len(f.FunctionEvaluations) != len(f.TimeSteps) {
		t.Fatalf("inconsistent statistics: %d steps, %d evaluations", len(f.TimeSteps), len(f.FunctionEvaluations))
	}
	// Events end their step in place and the apogee adds no point.
	if len(f.Solution) != len(f.TimeSteps)+1 {
		t.Fatalf("%d solution points for %d steps", len(f.Solution), len(f.TimeSteps))
	}
}

func TestFlightParachutes(t *testing.T) {
	conf := DefaultFlightConfig()
	conf.Inclination = 85
	f := simulate(t, calisto(t, true), testEnvironment(t, 5.2), conf)
	if len(f.ParachuteEvents) != 2 {
		t.Fatalf("expected two parachute events, got %d", len(f.ParachuteEvents))
	}
	drogue, main := f.ParachuteEvents[0], f.ParachuteEvents[1]
	if drogue.Parachute.Name != "Drogue" || main.Parachute.Name != "Main" {
		t.Fatalf("unexpected deployment order %s, %s", drogue.Parachute.Name, main.Parachute.Name)
	}
	if drogue.T < f.ApogeeTime || drogue.T > f.ApogeeTime+2/drogue.Parachute.SamplingRate {
		t.Fatalf("drogue triggered at %f, apogee at %f", drogue.T, f.ApogeeTime)
	}
	// The descent under each parachute starts one lag after its trigger.
	for _, ev := range f.ParachuteEvents {
		found := false
		for i := 0; i < f.Phases().Len(); i++ {
			phase := f.Phases().At(i)
			if m, ok := phase.Model.(*ParachuteModel); ok && m.Parachute == ev.Parachute {
				found = true
				if !scalar.EqualWithinAbs(phase.T, ev.T+ev.Parachute.Lag, 1e-6) {
					t.Fatalf("%s phase at %f, expected %f", ev.Parachute.Name, phase.T, ev.T+ev.Parachute.Lag)
				}
			}
		}
		if !found {
			t.Fatalf("no descent phase for %s", ev.Parachute.Name)
		}
	}
	if !f.Impacted || math.Abs(f.ZImpact) > 0.5 {
		t.Fatalf("rocket did not land: impacted=%v z=%f", f.Impacted, f.ZImpact)
	}
	if f.ParachuteCdS != 10 {
		t.Fatalf("main parachute should be installed, CdS=%f", f.ParachuteCdS)
	}
	if f.ImpactVelocity < -15 {
		t.Fatalf("landing under the main parachute is too fast: %f m/s", f.ImpactVelocity)
	}
	if len(f.ActiveParachutes()) != 0 {
		t.Fatalf("%d parachutes still active", len(f.ActiveParachutes()))
	}
}

func TestFlightNoDeploymentOnRail(t *testing.T) {
	for _, overshoot := range []bool{true, false} {
		conf := DefaultFlightConfig()
		conf.Inclination = 85
		conf.MaxTime = 30
		conf.TimeOvershoot = overshoot
		f := simulate(t, calisto(t, true), testEnvironment(t, 5.2), conf)
		if !f.OutOfRail || !f.ApogeeReached {
			t.Fatalf("overshoot=%v: rail exit %v, apogee %v", overshoot, f.OutOfRail, f.ApogeeReached)
		}
		if len(f.ParachuteEvents) == 0 {
			t.Fatalf("overshoot=%v: drogue should have been triggered", overshoot)
		}
		drogue := f.ParachuteEvents[0]
		if drogue.Parachute.Name != "Drogue" || drogue.T < f.ApogeeTime {
			t.Fatalf("overshoot=%v: %s triggered at %f, apogee at %f", overshoot, drogue.Parachute.Name, drogue.T, f.ApogeeTime)
		}
		for _, p := range f.Rocket.Parachutes {
			if len(p.CleanPressureSignal) == 0 || p.CleanPressureSignal[0].T < f.OutOfRailTime {
				t.Fatalf("overshoot=%v: %s sampled before the rail exit at %f", overshoot, p.Name, f.OutOfRailTime)
			}
		}
	}
}

func TestFlightDeterministic(t *testing.T) {
	env := testEnvironment(t, 5.2)
	conf := DefaultFlightConfig()
	f1 := simulate(t, calisto(t, true), env, conf)
	f2 := simulate(t, calisto(t, true), env, conf)
	if len(f1.Solution) != len(f2.Solution) || f1.TFinal != f2.TFinal {
		t.Fatalf("different solutions: %d points until %f, %d points until %f", len(f1.Solution), f1.TFinal, len(f2.Solution), f2.TFinal)
	}
	for k := range f1.ParachuteEvents {
		if f1.ParachuteEvents[k].T != f2.ParachuteEvents[k].T {
			t.Fatalf("parachute %d triggered at %f and %f", k, f1.ParachuteEvents[k].T, f2.ParachuteEvents[k].T)
		}
	}
	// Simulating again the same flight resets its parachutes.
	noisy := append([]Sample(nil), f1.Rocket.Parachutes[0].NoisyPressureSignal...)
	if err := f1.Simulate(context.Background()); err != nil {
		t.Fatalf("err %s", err)
	}
	again := f1.Rocket.Parachutes[0].NoisyPressureSignal
	if len(again) != len(noisy) || again[0] != noisy[0] || again[len(again)-1] != noisy[len(noisy)-1] {
		t.Fatal("second simulation saw a different noise")
	}
}

func TestFlightStrictSampling(t *testing.T) {
	conf := DefaultFlightConfig()
	conf.TimeOvershoot = false
	conf.MaxTime = 60
	f := simulate(t, calisto(t, true), testEnvironment(t, 5.2), conf)
	if len(f.ParachuteEvents) == 0 {
		t.Fatal("drogue should have been triggered")
	}
	drogue := f.ParachuteEvents[0]
	// Triggers happen on the sampling grid.
	k := drogue.T * drogue.Parachute.SamplingRate
	if !scalar.EqualWithinAbs(k, math.Round(k), 1e-6) {
		t.Fatalf("drogue triggered off its sampling grid at %f", drogue.T)
	}
}

func TestFlightInitialSolution(t *testing.T) {
	r := calisto(t, false)
	conf := DefaultFlightConfig()
	u := make([]float64, StateSize+1)
	u[0] = 10 // t
	u[3] = 100
	u[6] = 1
	conf.InitialSolution = u
	if _, err := NewFlight(r, testEnvironment(t, 5.2), conf); err != nil {
		t.Fatalf("err %s", err)
	}
	conf.InitialSolution = u[:5]
	if _, err := NewFlight(r, testEnvironment(t, 5.2), conf); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFlightCanceled(t *testing.T) {
	f, err := NewFlight(calisto(t, false), testEnvironment(t, 5.2), DefaultFlightConfig())
	if err != nil {
		t.Fatalf("err %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Simulate(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := f.PostProcess(); !errors.Is(err, ErrNotSimulated) {
		t.Fatalf("expected ErrNotSimulated, got %v", err)
	}
}

func TestFlightPostProcess(t *testing.T) {
	conf := DefaultFlightConfig()
	f := simulate(t, calisto(t, true), testEnvironment(t, 5.2), conf)
	if _, err := f.Results(); !errors.Is(err, ErrNotSimulated) {
		t.Fatalf("results should not be available before post-processing: %v", err)
	}
	if err := f.PostProcess(); err != nil {
		t.Fatalf("err %s", err)
	}
	p, err := f.Results()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !scalar.EqualWithinAbs(p.Z.Value(f.ApogeeTime), f.Apogee, 1) {
		t.Fatalf("altitude at apogee %f != %f", p.Z.Value(f.ApogeeTime), f.Apogee)
	}
	if !scalar.EqualWithinAbs(p.OutOfRailVelocity, f.OutOfRailVelocity, 1e-2) {
		t.Fatalf("rail exit velocity %f != %f", p.OutOfRailVelocity, f.OutOfRailVelocity)
	}
	if p.MaxVelocity < p.OutOfRailVelocity || p.MaxVelocityTime > f.ApogeeTime {
		t.Fatalf("unexpected max velocity %f at %f", p.MaxVelocity, p.MaxVelocityTime)
	}
	if p.MaxAcceleration <= 0 || p.MaxAccelerationTime > f.Rocket.Motor.BurnOutTime() {
		t.Fatalf("max acceleration %f at %f should happen during the burn", p.MaxAcceleration, p.MaxAccelerationTime)
	}
	if len(p.TrajectoryXZ) != len(f.Solution) {
		t.Fatalf("trajectory has %d points, solution %d", len(p.TrajectoryXZ), len(f.Solution))
	}
	if _, ok := p.Parachutes["Drogue"]; !ok {
		t.Fatal("missing drogue signals")
	}
	if samples := f.Rocket.Parachutes[1].NoisyPressureSignal; p.Parachutes["Drogue"].Noisy.Value(samples[0].T) != samples[0].Value {
		t.Fatal("noisy signal function does not match its samples")
	}
	if p.Recorded[QuantityAttackAngle] == nil || p.Recorded[QuantityAz] == nil {
		t.Fatal("missing recorded quantities")
	}
	// The potential energy is largest at apogee.
	if pot := p.PotentialEnergy.Value(f.ApogeeTime); pot <= p.PotentialEnergy.Value(f.OutOfRailTime) {
		t.Fatalf("potential energy at apogee %f is too low", pot)
	}
	if !scalar.EqualWithinAbs(p.TotalEnergy.Value(1), p.KineticEnergy.Value(1)+p.PotentialEnergy.Value(1), 1e-6) {
		t.Fatal("total energy is not the sum of kinetic and potential energies")
	}
}
