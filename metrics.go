package sixdof

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the solver and flight event counters of simulations as
// Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Steps       prometheus.Counter
	Rejected    prometheus.Counter
	Evaluations prometheus.Counter
	StepSize    prometheus.Histogram
	Phases      *prometheus.CounterVec
	Events      *prometheus.CounterVec
	Flights     *prometheus.CounterVec
}

// NewMetrics registers the flight metrics against the provided registerer,
// or the default one if nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	m := &Metrics{gatherer: gatherer}
	var err error
	if m.Steps, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sixdof_solver_steps_total",
		Help: "Number of integration steps accepted by the adaptive solver.",
	}), "sixdof_solver_steps_total"); err != nil {
		return nil, err
	}
	if m.Rejected, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sixdof_solver_rejected_steps_total",
		Help: "Number of trial steps rejected by the adaptive solver.",
	}), "sixdof_solver_rejected_steps_total"); err != nil {
		return nil, err
	}
	if m.Evaluations, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sixdof_solver_function_evaluations_total",
		Help: "Number of evaluations of the equations of motion.",
	}), "sixdof_solver_function_evaluations_total"); err != nil {
		return nil, err
	}
	if m.StepSize, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sixdof_solver_step_size_seconds",
		Help:    "Size of the accepted integration steps.",
		Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
	}), "sixdof_solver_step_size_seconds"); err != nil {
		return nil, err
	}
	if m.Phases, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sixdof_flight_phases_total",
		Help: "Number of flight phases integrated, by dynamics model.",
	}, []string{"model"}), "sixdof_flight_phases_total"); err != nil {
		return nil, err
	}
	if m.Events, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sixdof_flight_events_total",
		Help: "Number of flight events detected, by kind.",
	}, []string{"event"}), "sixdof_flight_events_total"); err != nil {
		return nil, err
	}
	if m.Flights, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sixdof_flights_total",
		Help: "Number of simulated flights, by outcome.",
	}, []string{"outcome"}), "sixdof_flights_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// Gatherer returns the Prometheus gatherer associated with the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

// ObserveStep records an accepted step of size h with its rejected trials and evaluations.
func (m *Metrics) ObserveStep(h float64, rejected, evaluations int) {
	if m == nil {
		return
	}
	m.Steps.Inc()
	m.Rejected.Add(float64(rejected))
	m.Evaluations.Add(float64(evaluations))
	m.StepSize.Observe(h)
}

// IncPhase counts a flight phase integrated with the provided model.
func (m *Metrics) IncPhase(model string) {
	if m == nil {
		return
	}
	m.Phases.WithLabelValues(model).Inc()
}

// IncEvent counts a flight event.
func (m *Metrics) IncEvent(event string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(event).Inc()
}

// IncFlight counts a finished simulation.
func (m *Metrics) IncFlight(outcome string) {
	if m == nil {
		return
	}
	m.Flights.WithLabelValues(outcome).Inc()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
