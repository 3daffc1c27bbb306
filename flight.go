package sixdof

import (
	"context"
	"fmt"
	"math"

	kitlog "github.com/go-kit/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ChristopherRabotin/sixdof"

// FlightConfig holds the launch and integration parameters of a flight.
// Start from DefaultFlightConfig: zero inclinations and headings are valid.
type FlightConfig struct {
	Inclination float64 // Rail inclination from the ground, in degrees.
	Heading     float64 // Rail heading from North, clockwise, in degrees.
	// InitialSolution overrides the launch conditions: time followed by the
	// 13 components of the state.
	InitialSolution   []float64
	TerminateOnApogee bool
	MaxTime           float64   // s
	MaxTimeStep       float64   // s, zero means unbounded.
	MinTimeStep       float64   // s
	RTol              float64   // Relative tolerance of the solver.
	ATol              []float64 // Absolute tolerance of the solver, one or 13 values.
	// TimeOvershoot lets the solver step past the parachute sampling times,
	// which are then evaluated on the dense output of each step.
	TimeOvershoot bool
	Logger        kitlog.Logger
	Metrics       *Metrics
}

// DefaultATol returns the default absolute tolerances of each state component.
func DefaultATol() []float64 {
	return []float64{3e-3, 3e-3, 3e-3, 3e-3, 3e-3, 3e-3, 4e-6, 4e-6, 4e-6, 4e-6, 3e-3, 3e-3, 3e-3}
}

// DefaultFlightConfig returns the default flight configuration.
func DefaultFlightConfig() FlightConfig {
	return FlightConfig{
		Inclination:   80,
		Heading:       90,
		MaxTime:       600,
		MaxTimeStep:   math.Inf(1),
		RTol:          1e-6,
		ATol:          DefaultATol(),
		TimeOvershoot: true,
	}
}

// SolutionPoint is an accepted (time, state) pair of the solution.
type SolutionPoint struct {
	T     float64
	State State
}

// ParachuteEvent is the trigger of a parachute.
type ParachuteEvent struct {
	T         float64
	Parachute *Parachute
}

// Flight simulates the trajectory of a rocket launched from a rail.
type Flight struct {
	ID     uuid.UUID
	Rocket *Rocket
	Env    *Environment

	conf        FlightConfig
	stepperConf StepperConfig
	logger      kitlog.Logger
	metrics     *Metrics
	rail        DynamicsModel
	free        DynamicsModel

	phases     *FlightPhases
	parachutes []*Parachute
	t          float64
	y          State
	simulated  bool

	// ParachuteCdS is the drag area of the deployed parachute.
	ParachuteCdS float64

	// Solution holds the accepted steps. Rail exit, impact, parachute triggers
	// and a terminating apogee end a step; an apogee crossed within a step
	// is only recorded in the Apogee fields.
	Solution []SolutionPoint

	OutOfRail         bool
	OutOfRailTime     float64
	OutOfRailState    State
	OutOfRailVelocity float64

	ApogeeReached bool
	ApogeeTime    float64
	ApogeeState   State
	ApogeeX       float64
	ApogeeY       float64
	Apogee        float64

	Impacted       bool
	ImpactTime     float64
	ImpactState    State
	XImpact        float64
	YImpact        float64
	ZImpact        float64
	ImpactVelocity float64

	ParachuteEvents []ParachuteEvent

	FunctionEvaluations            []int
	FunctionEvaluationsPerTimeStep []int
	TimeSteps                      []float64
	TFinal                         float64

	post *PostProcessed
}

// NewFlight returns a flight of the rocket from the environment's launch rail.
func NewFlight(rocket *Rocket, env *Environment, conf FlightConfig) (*Flight, error) {
	if rocket == nil || env == nil {
		return nil, fmt.Errorf("%w: flight requires a rocket and an environment", ErrInvalidConfig)
	}
	if conf.MaxTime <= 0 {
		conf.MaxTime = 600
	}
	if conf.RTol == 0 {
		conf.RTol = 1e-6
	}
	if len(conf.ATol) == 0 {
		conf.ATol = DefaultATol()
	}
	if conf.MaxTimeStep == 0 {
		conf.MaxTimeStep = math.Inf(1)
	}
	if conf.MinTimeStep < 0 || conf.MaxTimeStep < conf.MinTimeStep {
		return nil, fmt.Errorf("%w: invalid time step limits [%f, %f]", ErrInvalidConfig, conf.MinTimeStep, conf.MaxTimeStep)
	}
	if conf.InitialSolution != nil && len(conf.InitialSolution) != StateSize+1 {
		return nil, fmt.Errorf("%w: initial solution must have %d components", ErrInvalidConfig, StateSize+1)
	}
	if conf.InitialSolution != nil && conf.InitialSolution[0] >= conf.MaxTime {
		return nil, fmt.Errorf("%w: initial time is after the maximum time", ErrInvalidConfig)
	}
	if conf.Logger == nil {
		conf.Logger = kitlog.NewNopLogger()
	}
	f := &Flight{ID: uuid.New(), Rocket: rocket, Env: env, conf: conf, metrics: conf.Metrics}
	f.logger = kitlog.With(conf.Logger, "flight", f.ID.String())
	f.stepperConf = StepperConfig{RTol: conf.RTol, ATol: conf.ATol, MinStep: conf.MinTimeStep, MaxStep: conf.MaxTimeStep}
	f.rail = NewRailModel(rocket, env)
	f.free = NewFreeFlightModel(rocket, env)
	return f, nil
}

// Config returns the configuration of the flight.
func (f *Flight) Config() FlightConfig {
	return f.conf
}

// Phases returns the flight phases of the last simulation.
func (f *Flight) Phases() *FlightPhases {
	return f.phases
}

// ActiveParachutes returns the parachutes which have not been triggered.
func (f *Flight) ActiveParachutes() []*Parachute {
	return f.parachutes
}

// Time returns the current time of the simulation.
func (f *Flight) Time() float64 {
	return f.t
}

// State returns the current state of the simulation.
func (f *Flight) State() State {
	return f.y
}

// initialSolution returns the initial time and state.
func (f *Flight) initialSolution() (float64, State) {
	if f.conf.InitialSolution != nil {
		return f.conf.InitialSolution[0], NewState(f.conf.InitialSolution[1:])
	}
	var u State
	u[6], u[7], u[8], u[9] = AttitudeFromLaunch(f.conf.Inclination, f.conf.Heading)
	return 0, u
}

// reset clears all results so that the flight may be simulated again.
func (f *Flight) reset() {
	f.t, f.y = f.initialSolution()
	f.Solution = []SolutionPoint{{f.t, f.y}}
	f.parachutes = append([]*Parachute(nil), f.Rocket.Parachutes...)
	for _, p := range f.parachutes {
		p.Reset()
	}
	f.phases = NewFlightPhases(f.logger)
	f.phases.AddPhase(f.t, f.rail, nil, false, -1)
	f.phases.AddPhase(f.conf.MaxTime, nil, nil, true, -1)
	f.ParachuteCdS = 0
	f.OutOfRail, f.OutOfRailTime, f.OutOfRailState, f.OutOfRailVelocity = false, 0, State{}, 0
	f.ApogeeReached, f.ApogeeTime, f.ApogeeState = false, 0, State{}
	f.ApogeeX, f.ApogeeY, f.Apogee = 0, 0, 0
	f.Impacted, f.ImpactTime, f.ImpactState = false, 0, State{}
	f.XImpact, f.YImpact, f.ZImpact, f.ImpactVelocity = 0, 0, 0, 0
	f.ParachuteEvents = nil
	f.FunctionEvaluations, f.FunctionEvaluationsPerTimeStep, f.TimeSteps = nil, nil, nil
	f.TFinal = 0
	f.simulated = false
	f.post = nil
}

// Simulate integrates the flight, phase after phase, until the last phase
// ends. The context is checked between phases.
func (f *Flight) Simulate(ctx context.Context) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Flight.Simulate", trace.WithAttributes(
		attribute.String("flight.id", f.ID.String()),
		attribute.Float64("flight.max_time", f.conf.MaxTime),
		attribute.Bool("flight.time_overshoot", f.conf.TimeOvershoot),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			f.metrics.IncFlight("error")
		} else {
			f.metrics.IncFlight("ok")
		}
		span.End()
	}()
	f.reset()
	f.logger.Log("level", "info", "subsys", "flight", "message", "starting simulation", "rocket", f.Rocket, "env", f.Env)
	for i := 0; i < f.phases.Len()-1; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("flight %s: %w", f.ID, err)
		}
		if f.phases.At(i).Model == nil {
			// Phases scheduled after the maximum time are never flown.
			break
		}
		if err := f.runPhase(ctx, i); err != nil {
			return err
		}
	}
	f.TFinal = f.t
	f.simulated = true
	f.logger.Log("level", "info", "subsys", "flight", "message", "simulation completed", "t", f.t, "steps", len(f.TimeSteps), "phases", f.phases.Len()-1)
	span.SetAttributes(attribute.Float64("flight.t_final", f.t), attribute.Int("flight.steps", len(f.TimeSteps)))
	return nil
}

// stateDerivative adapts a dynamics model to the solver.
func stateDerivative(model DynamicsModel) func(t float64, y []float64) []float64 {
	return func(t float64, y []float64) []float64 {
		d := model.Derivative(t, NewState(y), nil)
		return d[:]
	}
}

func (f *Flight) runPhase(ctx context.Context, i int) error {
	phase := f.phases.At(i)
	bound := f.phases.At(i + 1).T
	_, span := otel.Tracer(tracerName).Start(ctx, "Flight.phase", trace.WithAttributes(
		attribute.Int("phase.index", i),
		attribute.String("phase.model", phase.Model.Name()),
		attribute.Float64("phase.t", phase.T),
		attribute.Float64("phase.bound", bound),
	))
	defer span.End()

	for _, cb := range phase.Callbacks {
		cb(f)
	}
	f.metrics.IncPhase(phase.Model.Name())
	f.logger.Log("level", "info", "subsys", "flight", "message", "phase started", "phase", i, "model", phase.Model.Name(), "t", phase.T, "bound", bound)
	stepper, err := NewStepper(stateDerivative(phase.Model), phase.T, f.y[:], bound, f.stepperConf, f.logger)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("phase %d: %w", i, err)
	}

	nodes := &TimeNodes{}
	nodes.AddNode(phase.T, nil, nil)
	if !f.conf.TimeOvershoot {
		nodes.AddParachutes(f.sampled(phase), phase.T, bound)
	}
	nodes.AddNode(bound, nil, nil)
	nodes.Sort()
	nodes.Merge()
	if phase.Clear {
		nodes.At(0).Parachutes, nodes.At(0).Callbacks = nil, nil
	}

	for j := 0; j < nodes.Len()-1; j++ {
		node := nodes.At(j)
		stepper.SetBound(nodes.At(j + 1).T)
		for _, cb := range node.Callbacks {
			cb(f)
		}
		for _, p := range node.Parachutes {
			if p.Sample(node.T, f.Env.Pressure.Value(f.y[2]), f.y) {
				f.triggerParachute(p, node.T, i, phase.Model)
				nodes.FlushAfter(j)
				nodes.AddNode(f.t, nil, nil)
				stepper.Finish()
			}
		}
		for stepper.Status() == StepperRunning {
			rejected, evaluations := stepper.Rejected, stepper.Evaluations
			if err := stepper.Step(); err != nil {
				simErr := &SimulationError{Event: "step", Phase: i, Time: stepper.T(), State: f.y, Err: err}
				span.RecordError(simErr)
				return simErr
			}
			f.t, f.y = stepper.T(), NewState(stepper.Y())
			f.Solution = append(f.Solution, SolutionPoint{f.t, f.y})
			perStep := stepper.Evaluations - evaluations
			total := perStep
			if n := len(f.FunctionEvaluations); n > 0 {
				total += f.FunctionEvaluations[n-1]
			}
			f.FunctionEvaluations = append(f.FunctionEvaluations, total)
			f.FunctionEvaluationsPerTimeStep = append(f.FunctionEvaluationsPerTimeStep, perStep)
			f.TimeSteps = append(f.TimeSteps, stepper.LastStep())
			f.metrics.ObserveStep(stepper.LastStep(), stepper.Rejected-rejected, perStep)
			if err := f.checkEvents(stepper, i, phase, nodes, j); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}
	return nil
}

// checkEvents detects the rail exit, apogee and impact within the last step
// and evaluates the parachute sampling times it overshot.
func (f *Flight) checkEvents(stepper *Stepper, i int, phase *FlightPhase, nodes *TimeNodes, j int) error {
	dense := stepper.Dense()
	leave := func() {
		nodes.FlushAfter(j)
		nodes.AddNode(f.t, nil, nil)
		stepper.Finish()
	}

	railLength := f.Env.RailLength
	if pos := f.y.Position(); !f.OutOfRail && dot(pos, pos) >= railLength*railLength {
		p0, p1 := f.bracket()
		r0, v0 := p0.State.Position(), p0.State.Velocity()
		r1, v1 := p1.State.Position(), p1.State.Velocity()
		t, err := f.eventTime("rail exit", i, p0.T, p1.T,
			dot(r0, r0)-railLength*railLength, 2*dot(r0, v0),
			dot(r1, r1)-railLength*railLength, 2*dot(r1, v1))
		if err != nil {
			return err
		}
		f.rollback(t, NewState(dense.At(t)))
		f.OutOfRail = true
		f.OutOfRailTime, f.OutOfRailState = f.t, f.y
		f.OutOfRailVelocity = norm(f.y.Velocity())
		f.event("rail exit", "velocity", f.OutOfRailVelocity)
		f.phases.AddPhase(f.t, f.free, nil, true, i+1)
		leave()
	}

	if !f.ApogeeReached && f.y.Vz() < 0 {
		p0, p1 := f.bracket()
		az0 := phase.Model.Derivative(p0.T, p0.State, nil)[5]
		az1 := phase.Model.Derivative(p1.T, p1.State, nil)[5]
		t, err := f.eventTime("apogee", i, p0.T, p1.T, p0.State.Vz(), az0, p1.State.Vz(), az1)
		if err != nil {
			return err
		}
		apogee := NewState(dense.At(t))
		f.ApogeeReached = true
		f.ApogeeTime, f.ApogeeState = t, apogee
		f.ApogeeX, f.ApogeeY, f.Apogee = apogee[0], apogee[1], apogee[2]
		f.event("apogee", "altitude", f.Apogee)
		if f.conf.TerminateOnApogee {
			f.rollback(t, apogee)
			f.TFinal = t
			f.phases.FlushAfter(i)
			f.phases.AddPhase(t, nil, nil, true, -1)
			leave()
		}
	}

	if f.y.Z() < 0 {
		p0, p1 := f.bracket()
		t, err := f.eventTime("impact", i, p0.T, p1.T, p0.State.Z(), p0.State.Vz(), p1.State.Z(), p1.State.Vz())
		if err != nil {
			return err
		}
		f.rollback(t, NewState(dense.At(t)))
		f.Impacted = true
		f.ImpactTime, f.ImpactState = f.t, f.y
		f.XImpact, f.YImpact, f.ZImpact = f.y[0], f.y[1], f.y[2]
		f.ImpactVelocity = f.y.Vz()
		f.TFinal = f.t
		f.event("impact", "velocity", f.ImpactVelocity)
		f.phases.FlushAfter(i)
		f.phases.AddPhase(f.t, nil, nil, true, -1)
		leave()
	}

	if !f.conf.TimeOvershoot {
		return nil
	}
	over := &TimeNodes{}
	over.AddParachutes(f.sampled(phase), dense.T0, f.t)
	over.AddNode(f.t, nil, nil)
	if over.Len() < 2 {
		return nil
	}
	over.Sort()
	over.Merge()
	if over.At(0).T == phase.T && phase.Clear {
		over.At(0).Parachutes, over.At(0).Callbacks = nil, nil
	}
	for k := 0; k < over.Len()-1; k++ {
		node := over.At(k)
		y := NewState(dense.At(node.T))
		pressure := f.Env.Pressure.Value(y[2])
		for _, p := range node.Parachutes {
			if p.Sample(node.T, pressure, y) {
				f.triggerParachute(p, node.T, i, phase.Model)
				f.rollback(node.T, y)
				over.FlushAfter(k)
				leave()
			}
		}
	}
	return nil
}

// sampled returns the parachutes whose sensors are sampled during the phase.
// Nothing is sampled while the rocket is on the rail.
func (f *Flight) sampled(phase *FlightPhase) []*Parachute {
	if phase.Model == f.rail {
		return nil
	}
	return f.parachutes
}

// bracket returns the last two points of the solution.
func (f *Flight) bracket() (SolutionPoint, SolutionPoint) {
	n := len(f.Solution)
	return f.Solution[n-2], f.Solution[n-1]
}

// eventTime returns the time at which the indicator, known with its derivative
// at t0 and t1, crosses zero.
func (f *Flight) eventTime(event string, phase int, t0, t1, y0, yp0, y1, yp1 float64) (float64, error) {
	tau, found, err := eventRoot(y0, yp0, y1, yp1, t1-t0)
	if err != nil {
		f.logger.Log("level", "critical", "subsys", "events", "event", event, "message", "multiple roots within step", "t0", t0, "t1", t1)
		return 0, &SimulationError{Event: event, Phase: phase, Time: t1, State: f.y, Err: err}
	}
	if !found {
		f.logger.Log("level", "warning", "subsys", "events", "event", event, "message", "no root within step, using its end", "t0", t0, "t1", t1)
	}
	return t0 + tau, nil
}

// rollback moves the solution back to (t, y), dropping the points at or after t.
func (f *Flight) rollback(t float64, y State) {
	n := len(f.Solution)
	for n > 1 && f.Solution[n-1].T >= t {
		n--
	}
	f.Solution = append(f.Solution[:n], SolutionPoint{t, y})
	f.t, f.y = t, y
}

func (f *Flight) event(name string, keyvals ...interface{}) {
	f.metrics.IncEvent(name)
	f.logger.Log(append([]interface{}{"level", "info", "subsys", "events", "event", name, "t", f.t, "z", f.y.Z()}, keyvals...)...)
}

// triggerParachute removes p from the active parachutes and schedules the
// inflation lag and the descent under p.
func (f *Flight) triggerParachute(p *Parachute, t float64, i int, current DynamicsModel) {
	for k, active := range f.parachutes {
		if active == p {
			f.parachutes = append(f.parachutes[:k], f.parachutes[k+1:]...)
			break
		}
	}
	f.phases.AddPhase(t, current, nil, true, i+1)
	descent := NewParachuteModel(p, f.Rocket, f.Env)
	cds := p.CdS
	install := func(fl *Flight) {
		fl.ParachuteCdS = cds
		descent.CdS = cds
	}
	f.phases.AddPhase(t+p.Lag, descent, []Callback{install}, false, i+2)
	f.ParachuteEvents = append(f.ParachuteEvents, ParachuteEvent{t, p})
	f.metrics.IncEvent("parachute")
	f.logger.Log("level", "info", "subsys", "events", "event", "parachute", "parachute", p.Name, "t", t, "inflation", t+p.Lag)
}

func (f *Flight) String() string {
	if !f.simulated {
		return fmt.Sprintf("flight %s (not simulated)", f.ID)
	}
	return fmt.Sprintf("flight %s: rail exit %.3f s at %.2f m/s; apogee %.2f m at %.3f s; impact (%.2f, %.2f) at %.3f s, %.2f m/s",
		f.ID, f.OutOfRailTime, f.OutOfRailVelocity, f.Apogee, f.ApogeeTime, f.XImpact, f.YImpact, f.ImpactTime, f.ImpactVelocity)
}
