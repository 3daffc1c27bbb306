package sixdof

import (
	"fmt"

	"github.com/ChristopherRabotin/sixdof/function"
)

// liquidSamples is the number of samples used to tabulate the combined tank curves.
const liquidSamples = 100

// Tank is a propellant tank of a liquid motor. Its curves are functions of time.
type Tank struct {
	Name         string
	Mass         *function.Function // kg
	MassFlowRate *function.Function // kg/s, negative while draining.
	CenterOfMass *function.Function // m, from the tank reference.
	InertiaXX    *function.Function // kg·m², about the tank center of mass.
}

type positionedTank struct {
	Tank
	position float64
}

// LiquidMotorConfig holds the parameters of a liquid motor.
type LiquidMotorConfig struct {
	Thrust        ThrustSource
	BurnOut       float64 // s
	NozzleRadius  float64 // m, defaults to 0.0335
	Reshape       *ThrustReshape
	Interpolation function.Interpolation // Defaults to linear.
}

// LiquidMotor is a motor fed by tanks positioned along its axis, measured from the nozzle.
type LiquidMotor struct {
	motorCurves
	conf  LiquidMotorConfig
	tanks []positionedTank

	CenterOfMass    *function.Function
	ExhaustVelocity *function.Function
}

// NewLiquidMotor returns a liquid motor without tanks.
func NewLiquidMotor(conf LiquidMotorConfig) (*LiquidMotor, error) {
	if conf.NozzleRadius == 0 {
		conf.NozzleRadius = 0.0335
	}
	if conf.Interpolation == 0 {
		conf.Interpolation = function.Linear
	}
	m := &LiquidMotor{conf: conf}
	m.nozzleRadius = conf.NozzleRadius
	if err := m.setThrust(conf.Thrust, conf.BurnOut, conf.Interpolation, conf.Reshape); err != nil {
		return nil, err
	}
	if err := m.evaluate(); err != nil {
		return nil, err
	}
	return m, nil
}

// AddTank adds a tank at the provided position and reevaluates the motor curves.
func (m *LiquidMotor) AddTank(tank Tank, position float64) error {
	if tank.Mass == nil || tank.MassFlowRate == nil {
		return fmt.Errorf("%w: tank %q requires its mass and mass flow rate", ErrInvalidConfig, tank.Name)
	}
	if tank.CenterOfMass == nil {
		tank.CenterOfMass = function.NewConstant(0)
	}
	if tank.InertiaXX == nil {
		tank.InertiaXX = function.NewConstant(0)
	}
	m.tanks = append(m.tanks, positionedTank{tank, position})
	return m.evaluate()
}

// Tanks returns the number of tanks.
func (m *LiquidMotor) Tanks() int {
	return len(m.tanks)
}

func (m *LiquidMotor) evaluate() error {
	tanks := append([]positionedTank(nil), m.tanks...)
	massAt := func(t float64) float64 {
		total := 0.0
		for _, tk := range tanks {
			total += tk.Mass.Value(t)
		}
		return total
	}
	massDotAt := func(t float64) float64 {
		total := 0.0
		for _, tk := range tanks {
			total += tk.MassFlowRate.Value(t)
		}
		return total
	}
	comAt := func(t float64) float64 {
		total, moment := 0.0, 0.0
		for _, tk := range tanks {
			mass := tk.Mass.Value(t)
			total += mass
			moment += mass * (tk.position + tk.CenterOfMass.Value(t))
		}
		if total == 0 {
			return 0
		}
		return moment / total
	}
	inertiaAt := func(t float64) float64 {
		cm := comAt(t)
		total := 0.0
		for _, tk := range tanks {
			d := tk.position + tk.CenterOfMass.Value(t) - cm
			total += tk.InertiaXX.Value(t) + tk.Mass.Value(t)*d*d
		}
		return total
	}
	tabulate := func(fn func(float64) float64, inputs, outputs string) (*function.Function, error) {
		f := function.NewFromCallable(fn)
		if err := f.SetDiscrete(0, m.burnOutTime, liquidSamples, m.conf.Interpolation, function.Constant); err != nil {
			return nil, fmt.Errorf("%s: %w", outputs, err)
		}
		return labelled(f, inputs, outputs), nil
	}
	var err error
	if m.mass, err = tabulate(massAt, "Time (s)", "Propellant Total Mass (kg)"); err != nil {
		return err
	}
	if m.massDot, err = tabulate(massDotAt, "Time (s)", "Mass Dot (kg/s)"); err != nil {
		return err
	}
	m.massDot.SetExtrapolation(function.Zero)
	if m.CenterOfMass, err = tabulate(comAt, "Time (s)", "Center of Mass (m)"); err != nil {
		return err
	}
	if m.inertiaI, err = tabulate(inertiaAt, "Time (s)", "Propellant Inertia I (kg·m²)"); err != nil {
		return err
	}
	m.inertiaIDot = m.inertiaI.Derivative(0)
	m.inertiaZ = labelled(function.NewConstant(0), "Time (s)", "Propellant Inertia Z (kg·m²)")
	m.inertiaZDot = labelled(function.NewConstant(0), "Time (s)", "Propellant Inertia Z Dot (kg·m²/s)")
	thrust, massDot := m.thrust, m.massDot
	m.ExhaustVelocity = labelled(function.NewFromCallable(func(t float64) float64 {
		md := massDot.Value(t)
		if md == 0 {
			return 0
		}
		return -thrust.Value(t) / md
	}), "Time (s)", "Exhaust Velocity (m/s)")
	return nil
}

func (m *LiquidMotor) String() string {
	return fmt.Sprintf("liquid motor: %d tanks, I=%.1f N·s, burn out %.2f s", len(m.tanks), m.totalImpulse, m.burnOutTime)
}
