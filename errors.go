package sixdof

import (
	"errors"
	"fmt"
)

var (
	// ErrAmbiguousEventTime is returned when more than one root of an event
	// indicator lies within a single integration step. It is fatal.
	ErrAmbiguousEventTime = errors.New("sixdof: ambiguous event time (multiple roots in step)")

	// ErrStepTooSmall is returned when the adaptive step collapsed below the numeric floor.
	ErrStepTooSmall = errors.New("sixdof: adaptive time step below minimum")

	// ErrInvalidState is returned when the state vector contains NaN or infinite values.
	ErrInvalidState = errors.New("sixdof: invalid state (NaN or Inf detected)")

	// ErrInvalidConfig is returned when a constructor receives unusable parameters.
	ErrInvalidConfig = errors.New("sixdof: invalid configuration")

	// ErrNoMotor is returned when a rocket is built without a motor.
	ErrNoMotor = errors.New("sixdof: rocket has no motor")

	// ErrNotSimulated is returned when results are requested before Simulate.
	ErrNotSimulated = errors.New("sixdof: flight was not simulated")
)

// SimulationError wraps an error with the flight context in which it occurred.
type SimulationError struct {
	Event string
	Phase int
	Time  float64
	State State
	Err   error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("%s: %s (phase %d, t=%.6f s, z=%.3f m)", e.Event, e.Err, e.Phase, e.Time, e.State.Z())
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}
