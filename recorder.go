package sixdof

import (
	"fmt"

	"github.com/ChristopherRabotin/sixdof/function"
)

// Quantity is an auxiliary flight quantity captured by a Recorder.
type Quantity uint8

// Recorded quantities. Angles are in degrees.
const (
	QuantityAttackAngle Quantity = iota
	QuantityStaticMargin
	QuantityFreestreamSpeed
	QuantityStreamVelocityX
	QuantityStreamVelocityY
	QuantityStreamVelocityZ
	QuantityR1
	QuantityR2
	QuantityR3
	QuantityM1
	QuantityM2
	QuantityM3
	QuantityAx
	QuantityAy
	QuantityAz
	QuantityAlpha1
	QuantityAlpha2
	QuantityAlpha3
	QuantityCPPosition1
	QuantityCPPosition2
	QuantityCPPosition3
	QuantityTrajectoryAngleXZ
	QuantityTrajectoryAngleYZ
	quantityCount
)

var quantityLabels = [quantityCount]string{
	"Attack Angle (deg)",
	"Static Margin (c)",
	"Freestream Speed (m/s)",
	"Freestream Velocity X (m/s)",
	"Freestream Velocity Y (m/s)",
	"Freestream Velocity Z (m/s)",
	"R1 (N)",
	"R2 (N)",
	"R3 (N)",
	"M1 (N·m)",
	"M2 (N·m)",
	"M3 (N·m)",
	"Ax (m/s²)",
	"Ay (m/s²)",
	"Az (m/s²)",
	"α1 (rad/s²)",
	"α2 (rad/s²)",
	"α3 (rad/s²)",
	"CP Position 1 (m)",
	"CP Position 2 (m)",
	"CP Position 3 (m)",
	"Trajectory Angle XZ (deg)",
	"Trajectory Angle YZ (deg)",
}

// Quantities returns all recorded quantities in order.
func Quantities() []Quantity {
	qs := make([]Quantity, quantityCount)
	for i := range qs {
		qs[i] = Quantity(i)
	}
	return qs
}

func (q Quantity) String() string {
	if q >= quantityCount {
		return fmt.Sprintf("quantity(%d)", uint8(q))
	}
	return quantityLabels[q]
}

// Recorder accumulates the auxiliary quantities computed by the dynamics
// models when replaying a solution.
type Recorder struct {
	samples [quantityCount][]Sample
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record stores the provided values at time t.
func (r *Recorder) Record(t float64, values map[Quantity]float64) {
	for q, v := range values {
		r.samples[q] = append(r.samples[q], Sample{t, v})
	}
}

// Samples returns the samples recorded for q.
func (r *Recorder) Samples(q Quantity) []Sample {
	return r.samples[q]
}

// Function returns the samples of q as a linearly interpolated Function of time.
func (r *Recorder) Function(q Quantity) (*function.Function, error) {
	f, err := samplesToFunction(r.samples[q], "Time (s)", q.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", q, err)
	}
	return f, nil
}
