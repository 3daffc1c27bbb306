package sixdof

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/ode"
	"github.com/ChristopherRabotin/sixdof/function"
	"gonum.org/v1/gonum/floats"
)

const (
	// callableThrustSamples is the number of samples used to discretize a constant or callable thrust.
	callableThrustSamples = 50
	// grainGeometrySteps is the number of fixed RK4 steps used to integrate the grain regression.
	grainGeometrySteps = 2000
)

// Motor defines the time dependent quantities of a rocket motor consumed by the flight.
type Motor interface {
	// Returns the thrust in N as a function of time.
	Thrust() *function.Function
	// Returns the propellant mass in kg as a function of time.
	Mass() *function.Function
	// Returns the propellant mass rate of change in kg/s (negative while burning).
	MassDot() *function.Function
	// Returns the propellant moment of inertia about a transverse axis through its center of mass.
	InertiaI() *function.Function
	// Returns the propellant moment of inertia about the motor axis.
	InertiaZ() *function.Function
	InertiaIDot() *function.Function
	InertiaZDot() *function.Function
	// Returns the burn out time in seconds.
	BurnOutTime() float64
	// Returns the nozzle exit radius in m.
	NozzleRadius() float64
	// Returns the total impulse in N·s.
	TotalImpulse() float64
}

// motorCurves implements the Function getters shared by all motors.
type motorCurves struct {
	thrust, mass, massDot                        *function.Function
	inertiaI, inertiaZ, inertiaIDot, inertiaZDot *function.Function
	burnOutTime, nozzleRadius, totalImpulse      float64
	MaxThrust, MaxThrustTime, AverageThrust      float64
}

// Thrust implements the Motor interface.
func (m *motorCurves) Thrust() *function.Function { return m.thrust }

// Mass implements the Motor interface.
func (m *motorCurves) Mass() *function.Function { return m.mass }

// MassDot implements the Motor interface.
func (m *motorCurves) MassDot() *function.Function { return m.massDot }

// InertiaI implements the Motor interface.
func (m *motorCurves) InertiaI() *function.Function { return m.inertiaI }

// InertiaZ implements the Motor interface.
func (m *motorCurves) InertiaZ() *function.Function { return m.inertiaZ }

// InertiaIDot implements the Motor interface.
func (m *motorCurves) InertiaIDot() *function.Function { return m.inertiaIDot }

// InertiaZDot implements the Motor interface.
func (m *motorCurves) InertiaZDot() *function.Function { return m.inertiaZDot }

// BurnOutTime implements the Motor interface.
func (m *motorCurves) BurnOutTime() float64 { return m.burnOutTime }

// NozzleRadius implements the Motor interface.
func (m *motorCurves) NozzleRadius() float64 { return m.nozzleRadius }

// TotalImpulse implements the Motor interface.
func (m *motorCurves) TotalImpulse() float64 { return m.totalImpulse }

// ThrustReshape rescales a thrust curve to a new burn time and total impulse,
// keeping its shape.
type ThrustReshape struct {
	BurnTime, TotalImpulse float64
}

// ThrustSource is the thrust curve of a motor: either tabulated points of
// (time, thrust) or a Function. Constant and callable Functions are sampled
// over the burn.
type ThrustSource struct {
	Points   [][2]float64
	Function *function.Function
}

// ConstantThrust returns a thrust source of constant thrust.
func ConstantThrust(thrust float64) ThrustSource {
	return ThrustSource{Function: function.NewConstant(thrust)}
}

// setThrust builds the thrust Function, optionally reshapes it and computes
// the impulse and thrust statistics.
func (m *motorCurves) setThrust(src ThrustSource, burnOut float64, interp function.Interpolation, reshape *ThrustReshape) error {
	if interp == 0 {
		interp = function.Linear
	}
	if burnOut <= 0 {
		return fmt.Errorf("%w: burn out time must be positive", ErrInvalidConfig)
	}
	var thrust *function.Function
	var err error
	switch {
	case len(src.Points) > 0:
		thrust, err = function.NewFromPoints(src.Points, interp, function.Zero)
	case src.Function != nil && src.Function.IsTabulated():
		xs, ys := src.Function.Source()
		thrust, err = function.NewFromXY(xs, ys, interp, function.Zero)
	case src.Function != nil:
		thrust = function.NewFromCallable(src.Function.Value)
		err = thrust.SetDiscrete(0, burnOut, callableThrustSamples, interp, function.Zero)
	default:
		return fmt.Errorf("%w: motor has no thrust source", ErrInvalidConfig)
	}
	if err != nil {
		return fmt.Errorf("thrust curve: %w", err)
	}
	m.burnOutTime = burnOut
	if reshape != nil {
		xs, ys := thrust.Source()
		t0 := xs[0]
		span := xs[len(xs)-1] - t0
		for i := range xs {
			xs[i] = (xs[i] - t0) * reshape.BurnTime / span
		}
		scaled, err := function.NewFromXY(xs, ys, interp, function.Zero)
		if err != nil {
			return fmt.Errorf("reshaped thrust curve: %w", err)
		}
		oldImpulse := scaled.Integral(0, reshape.BurnTime)
		thrust = scaled.Scale(reshape.TotalImpulse / oldImpulse)
		m.burnOutTime = reshape.BurnTime
	}
	thrust.Inputs, thrust.Outputs = "Time (s)", "Thrust (N)"
	m.thrust = thrust
	m.totalImpulse = thrust.Integral(0, m.burnOutTime)
	m.MaxThrustTime, m.MaxThrust = thrust.Max()
	m.AverageThrust = m.totalImpulse / m.burnOutTime
	return nil
}

// SolidMotorConfig holds the parameters of a solid motor made of identical
// cylindrical grains with a central bore.
type SolidMotorConfig struct {
	Thrust                  ThrustSource
	BurnOut                 float64 // s
	GrainNumber             int
	GrainDensity            float64 // kg/m³
	GrainOuterRadius        float64 // m
	GrainInitialInnerRadius float64 // m
	GrainInitialHeight      float64 // m
	GrainSeparation         float64 // m
	NozzleRadius            float64 // m, defaults to 0.0335
	ThroatRadius            float64 // m, defaults to 0.0114
	Reshape                 *ThrustReshape
	Interpolation           function.Interpolation // Defaults to linear.
}

// SolidMotor is a solid rocket motor whose mass and inertia follow from its
// thrust curve and grain geometry.
type SolidMotor struct {
	motorCurves
	conf SolidMotorConfig

	PropellantInitialMass float64
	ExhaustVelocity       float64

	GrainInnerRadius, GrainHeight *function.Function
	BurnArea, BurnRate            *function.Function
	Kn                            *function.Function // Burn area over throat area, function of the grain inner radius.
}

// NewSolidMotor returns a solid motor with all its curves evaluated.
func NewSolidMotor(conf SolidMotorConfig) (*SolidMotor, error) {
	if conf.GrainNumber <= 0 || conf.GrainDensity <= 0 || conf.GrainInitialHeight <= 0 {
		return nil, fmt.Errorf("%w: grain number, density and height must be positive", ErrInvalidConfig)
	}
	if conf.GrainOuterRadius <= conf.GrainInitialInnerRadius || conf.GrainInitialInnerRadius < 0 {
		return nil, fmt.Errorf("%w: grain outer radius must exceed its inner radius", ErrInvalidConfig)
	}
	if conf.NozzleRadius == 0 {
		conf.NozzleRadius = 0.0335
	}
	if conf.ThroatRadius == 0 {
		conf.ThroatRadius = 0.0114
	}
	if conf.Interpolation == 0 {
		conf.Interpolation = function.Linear
	}
	m := &SolidMotor{conf: conf}
	m.nozzleRadius = conf.NozzleRadius
	if err := m.setThrust(conf.Thrust, conf.BurnOut, conf.Interpolation, conf.Reshape); err != nil {
		return nil, err
	}
	ro, ri0, h0 := conf.GrainOuterRadius, conf.GrainInitialInnerRadius, conf.GrainInitialHeight
	m.PropellantInitialMass = float64(conf.GrainNumber) * conf.GrainDensity * h0 * math.Pi * (ro*ro - ri0*ri0)
	m.ExhaustVelocity = m.totalImpulse / m.PropellantInitialMass
	m.massDot = m.thrust.Scale(-1 / m.ExhaustVelocity)
	m.massDot.Inputs, m.massDot.Outputs = "Time (s)", "Mass Dot (kg/s)"
	mass, err := m.massDot.CumulativeIntegral(m.PropellantInitialMass)
	if err != nil {
		return nil, fmt.Errorf("propellant mass: %w", err)
	}
	mass.SetExtrapolation(function.Constant)
	mass.Inputs, mass.Outputs = "Time (s)", "Propellant Total Mass (kg)"
	m.mass = mass
	if err := m.evaluateGeometry(); err != nil {
		return nil, err
	}
	if err := m.evaluateInertia(); err != nil {
		return nil, err
	}
	return m, nil
}

// grainGeometry is an ode.Integrable of the grain inner radius and height.
// Time is carried as the last state component.
type grainGeometry struct {
	m         *SolidMotor
	steps     int
	max       int
	state     []float64
	ts, ri, h []float64
}

// GetState gets the state.
func (g *grainGeometry) GetState() []float64 {
	return []float64{g.state[0], g.state[1], g.state[2]}
}

// SetState sets the next state.
func (g *grainGeometry) SetState(t float64, s []float64) {
	g.steps++
	g.state = []float64{s[0], s[1], s[2]}
	g.ts = append(g.ts, s[2])
	g.ri = append(g.ri, s[0])
	g.h = append(g.h, s[1])
}

// Stop returns whether we should stop the integration.
func (g *grainGeometry) Stop(t float64) bool {
	return g.steps >= g.max
}

// Func is the grain regression: the bore widens while both faces burn.
func (g *grainGeometry) Func(t float64, s []float64) []float64 {
	conf := g.m.conf
	ro, ri, h := conf.GrainOuterRadius, s[0], s[1]
	if ri >= ro || h <= 0 {
		return []float64{0, 0, 1}
	}
	gmd := g.m.massDot.Value(s[2]) / float64(conf.GrainNumber)
	den := conf.GrainDensity * math.Pi * (ro*ro - ri*ri + ri*h)
	return []float64{-0.5 * gmd / den, gmd / den, 1}
}

func (m *SolidMotor) evaluateGeometry() error {
	xs, _ := m.massDot.Source()
	t0, t1 := xs[0], xs[len(xs)-1]
	g := &grainGeometry{m: m, max: grainGeometrySteps,
		state: []float64{m.conf.GrainInitialInnerRadius, m.conf.GrainInitialHeight, t0}}
	g.ts = []float64{t0}
	g.ri = []float64{g.state[0]}
	g.h = []float64{g.state[1]}
	ode.NewRK4(t0, (t1-t0)/grainGeometrySteps, g).Solve() // Blocking.
	ri, err := function.NewFromXY(g.ts, g.ri, function.Linear, function.Constant)
	if err != nil {
		return fmt.Errorf("grain inner radius: %w", err)
	}
	h, err := function.NewFromXY(g.ts, g.h, function.Linear, function.Constant)
	if err != nil {
		return fmt.Errorf("grain height: %w", err)
	}
	// Resample on the thrust grid so that all curves share abscissae.
	interp := m.conf.Interpolation
	if m.GrainInnerRadius, err = function.NewFromXY(xs, ri.Values(xs), interp, function.Constant); err != nil {
		return err
	}
	if m.GrainHeight, err = function.NewFromXY(xs, h.Values(xs), interp, function.Constant); err != nil {
		return err
	}
	m.GrainInnerRadius.Inputs, m.GrainInnerRadius.Outputs = "Time (s)", "Grain Inner Radius (m)"
	m.GrainHeight.Inputs, m.GrainHeight.Outputs = "Time (s)", "Grain Height (m)"

	ro := m.conf.GrainOuterRadius
	n := float64(m.conf.GrainNumber)
	riS := m.GrainInnerRadius.Values(xs)
	hS := m.GrainHeight.Values(xs)
	mdS := m.massDot.Values(xs)
	area := make([]float64, len(xs))
	rate := make([]float64, len(xs))
	kn := make([]float64, len(xs))
	throatArea := math.Pi * m.conf.ThroatRadius * m.conf.ThroatRadius
	for i := range xs {
		area[i] = 2 * math.Pi * (ro*ro - riS[i]*riS[i] + riS[i]*hS[i]) * n
		if area[i] > 0 {
			rate[i] = -mdS[i] / (area[i] * m.conf.GrainDensity)
		}
		kn[i] = area[i] / throatArea
	}
	if m.BurnArea, err = function.NewFromXY(xs, area, interp, function.Constant); err != nil {
		return err
	}
	if m.BurnRate, err = function.NewFromXY(xs, rate, interp, function.Zero); err != nil {
		return err
	}
	if m.Kn, err = function.NewFromXY(riS, kn, interp, function.Constant); err != nil {
		return err
	}
	m.BurnArea.Inputs, m.BurnArea.Outputs = "Time (s)", "Burn Area (m²)"
	m.BurnRate.Inputs, m.BurnRate.Outputs = "Time (s)", "Burn Rate (m/s)"
	m.Kn.Inputs, m.Kn.Outputs = "Grain Inner Radius (m)", "Kn (m²/m²)"
	return nil
}

// evaluateInertia computes the propellant inertia by the parallel axis
// theorem over the grains, which are evenly spaced around the propellant
// center of mass.
func (m *SolidMotor) evaluateInertia() error {
	conf := m.conf
	n := conf.GrainNumber
	half := float64(n-1) / 2
	d := make([]float64, n)
	if n > 1 {
		floats.Span(d, -half, half)
	}
	floats.Scale(conf.GrainInitialHeight+conf.GrainSeparation, d)
	sumD2 := floats.Dot(d, d)

	xs, _ := m.massDot.Source()
	ro2 := conf.GrainOuterRadius * conf.GrainOuterRadius
	mass := m.mass.Values(xs)
	massDot := m.massDot.Values(xs)
	ri := m.GrainInnerRadius.Values(xs)
	h := m.GrainHeight.Values(xs)
	rate := m.BurnRate.Values(xs)
	I := make([]float64, len(xs))
	IDot := make([]float64, len(xs))
	Z := make([]float64, len(xs))
	ZDot := make([]float64, len(xs))
	N := float64(n)
	for k := range xs {
		gm, gmd := mass[k]/N, massDot[k]/N
		shape := 0.25*(ro2+ri[k]*ri[k]) + h[k]*h[k]/12
		I[k] = N*gm*shape + gm*sumD2
		IDot[k] = N*(gmd*shape+gm*(0.5*ri[k]-h[k]/3)*rate[k]) + gmd*sumD2
		Z[k] = 0.5 * mass[k] * (ro2 + ri[k]*ri[k])
		ZDot[k] = 0.5*massDot[k]*ro2 + 0.5*massDot[k]*ri[k]*ri[k] + mass[k]*ri[k]*rate[k]
	}
	var err error
	interp := conf.Interpolation
	if m.inertiaI, err = function.NewFromXY(xs, I, interp, function.Constant); err != nil {
		return err
	}
	if m.inertiaIDot, err = function.NewFromXY(xs, IDot, interp, function.Zero); err != nil {
		return err
	}
	if m.inertiaZ, err = function.NewFromXY(xs, Z, interp, function.Constant); err != nil {
		return err
	}
	if m.inertiaZDot, err = function.NewFromXY(xs, ZDot, interp, function.Zero); err != nil {
		return err
	}
	m.inertiaI.Inputs, m.inertiaI.Outputs = "Time (s)", "Propellant Inertia I (kg·m²)"
	m.inertiaIDot.Inputs, m.inertiaIDot.Outputs = "Time (s)", "Propellant Inertia I Dot (kg·m²/s)"
	m.inertiaZ.Inputs, m.inertiaZ.Outputs = "Time (s)", "Propellant Inertia Z (kg·m²)"
	m.inertiaZDot.Inputs, m.inertiaZDot.Outputs = "Time (s)", "Propellant Inertia Z Dot (kg·m²/s)"
	return nil
}

func (m *SolidMotor) String() string {
	return fmt.Sprintf("solid motor: %d grains, %.3f kg propellant, I=%.1f N·s, burn out %.2f s", m.conf.GrainNumber, m.PropellantInitialMass, m.totalImpulse, m.burnOutTime)
}
