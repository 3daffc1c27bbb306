package sixdof

import (
	"fmt"
	"math"

	kitlog "github.com/go-kit/log"
)

// StepperStatus is the status of an adaptive Stepper.
type StepperStatus uint8

const (
	// StepperRunning means the stepper has not reached its bound.
	StepperRunning StepperStatus = iota + 1
	// StepperFinished means the stepper reached its bound or was finished by its caller.
	StepperFinished
)

func (s StepperStatus) String() string {
	switch s {
	case StepperRunning:
		return "running"
	case StepperFinished:
		return "finished"
	default:
		panic("unknown stepper status")
	}
}

// Dormand-Prince 5(4) tableau.
var (
	dp5c = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dp5a = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// Difference between the fifth and fourth order solutions.
	dp5e = [7]float64{71.0 / 57600, 0, -71.0 / 16695, 71.0 / 1920, -17253.0 / 339200, 22.0 / 525, -1.0 / 40}
	// Dense output coefficients (Hairer, Nørsett and Wanner).
	dp5d = [7]float64{-12715105075.0 / 11282082432, 0, 87487479700.0 / 32700410799, -10690763975.0 / 1880347072,
		701980252875.0 / 199316789632, -1453857185.0 / 822651844, 69997945.0 / 29380423}
)

const (
	dp5Order     = 5
	stepSafety   = 0.9
	stepMinScale = 0.2
	stepMaxScale = 5.0
)

// StepperConfig holds the tolerances and step size limits of a Stepper.
type StepperConfig struct {
	RTol    float64
	ATol    []float64 // One per component, or a single value for all.
	MinStep float64
	MaxStep float64
}

// Stepper is an adaptive Dormand-Prince 5(4) integrator which advances one
// accepted step at a time and provides a dense output over the last step.
type Stepper struct {
	fcn    func(t float64, y []float64) []float64
	conf   StepperConfig
	atol   []float64
	logger kitlog.Logger

	t, tBound float64
	y, f      []float64
	h         float64
	status    StepperStatus

	tOld, hLast float64
	rcont       [5][]float64

	Steps, Rejected, Evaluations int
}

// NewStepper returns a Stepper for dy/dt = fcn(t, y), starting at (t0, y0) and
// integrating up to tBound.
func NewStepper(fcn func(t float64, y []float64) []float64, t0 float64, y0 []float64, tBound float64, conf StepperConfig, logger kitlog.Logger) (*Stepper, error) {
	n := len(y0)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty initial state", ErrInvalidConfig)
	}
	if conf.RTol <= 0 {
		return nil, fmt.Errorf("%w: relative tolerance must be positive", ErrInvalidConfig)
	}
	atol := make([]float64, n)
	switch len(conf.ATol) {
	case 1:
		for i := range atol {
			atol[i] = conf.ATol[0]
		}
	case n:
		copy(atol, conf.ATol)
	default:
		return nil, fmt.Errorf("%w: %d absolute tolerances for %d components", ErrInvalidConfig, len(conf.ATol), n)
	}
	if conf.MaxStep <= 0 {
		conf.MaxStep = math.Inf(1)
	}
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	s := &Stepper{fcn: fcn, conf: conf, atol: atol, logger: logger, t: t0, tBound: tBound, status: StepperRunning}
	s.y = make([]float64, n)
	copy(s.y, y0)
	s.f = fcn(t0, s.y)
	s.Evaluations = 1
	if t0 >= tBound {
		s.status = StepperFinished
	}
	s.h = s.initialStep()
	return s, nil
}

// initialStep estimates the first step size from the first and second derivatives.
func (s *Stepper) initialStep() float64 {
	n := len(s.y)
	dnf, dny := 0.0, 0.0
	for i := 0; i < n; i++ {
		sc := s.atol[i] + s.conf.RTol*math.Abs(s.y[i])
		dnf += math.Pow(s.f[i]/sc, 2)
		dny += math.Pow(s.y[i]/sc, 2)
	}
	var h float64
	if math.Min(dnf, dny) < 1e-10 {
		h = 1e-6
	} else {
		h = 1e-2 * math.Sqrt(dny/dnf)
	}
	h = math.Min(h, s.conf.MaxStep)
	if s.status == StepperRunning {
		h = math.Min(h, s.tBound-s.t)
	}
	y2 := make([]float64, n)
	for i := range y2 {
		y2[i] = s.y[i] + h*s.f[i]
	}
	f2 := s.fcn(s.t+h, y2)
	s.Evaluations++
	der2 := 0.0
	for i := 0; i < n; i++ {
		sc := s.atol[i] + s.conf.RTol*math.Abs(s.y[i])
		der2 += math.Pow((f2[i]-s.f[i])/sc, 2)
	}
	der2 = math.Sqrt(der2) / h
	der12 := math.Max(der2, math.Sqrt(dnf))
	var h1 float64
	if der12 <= 1e-15 {
		h1 = math.Max(1e-6, h*1e-3)
	} else {
		h1 = math.Pow(1e-2/der12, 1.0/dp5Order)
	}
	return math.Max(math.Min(100*h, math.Min(h1, s.conf.MaxStep)), s.conf.MinStep)
}

// T returns the current time.
func (s *Stepper) T() float64 { return s.t }

// Y returns a copy of the current state.
func (s *Stepper) Y() []float64 {
	y := make([]float64, len(s.y))
	copy(y, s.y)
	return y
}

// Status returns whether the stepper is running or finished.
func (s *Stepper) Status() StepperStatus { return s.status }

// LastStep returns the size of the last accepted step.
func (s *Stepper) LastStep() float64 { return s.hLast }

// Bound returns the current time bound.
func (s *Stepper) Bound() float64 { return s.tBound }

// SetBound moves the time bound, keeping the internal state. The stepper
// resumes running if the new bound is ahead of the current time.
func (s *Stepper) SetBound(tBound float64) {
	s.tBound = tBound
	if s.t < tBound {
		s.status = StepperRunning
	} else {
		s.status = StepperFinished
	}
}

// Finish stops the stepper before it reaches its bound.
func (s *Stepper) Finish() {
	s.status = StepperFinished
}

// Step performs one accepted step, rejecting and shrinking as many trial steps as needed.
func (s *Stepper) Step() error {
	if s.status == StepperFinished {
		return nil
	}
	n := len(s.y)
	var k [7][]float64
	k[0] = s.f
	yc := make([]float64, n)
	ye := make([]float64, n)
	for {
		hMin := math.Max(s.conf.MinStep, 10*math.Abs(math.Nextafter(s.t, math.Inf(1))-s.t))
		h := math.Min(s.h, s.conf.MaxStep)
		h = math.Max(h, hMin)
		last := false
		if s.t+h >= s.tBound {
			h = s.tBound - s.t
			last = true
		}
		for stg := 1; stg < 7; stg++ {
			for i := 0; i < n; i++ {
				acc := 0.0
				for j := 0; j < stg; j++ {
					acc += dp5a[stg][j] * k[j][i]
				}
				yc[i] = s.y[i] + h*acc
			}
			if stg == 6 {
				// Last stage is evaluated on the fifth order solution (FSAL).
				yNew := make([]float64, n)
				copy(yNew, yc)
				k[6] = s.fcn(s.t+h, yNew)
				s.Evaluations++
				continue
			}
			k[stg] = s.fcn(s.t+h*dp5c[stg], append([]float64(nil), yc...))
			s.Evaluations++
		}
		errNorm := 0.0
		for i := 0; i < n; i++ {
			acc := 0.0
			for j := 0; j < 7; j++ {
				acc += dp5e[j] * k[j][i]
			}
			ye[i] = h * acc
			sc := s.atol[i] + s.conf.RTol*math.Max(math.Abs(s.y[i]), math.Abs(yc[i]))
			errNorm += math.Pow(ye[i]/sc, 2)
		}
		errNorm = math.Sqrt(errNorm / float64(n))
		if math.IsNaN(errNorm) {
			return fmt.Errorf("%w: non finite error estimate at t=%f", ErrInvalidState, s.t)
		}
		factor := stepSafety * math.Pow(math.Max(errNorm, 1e-10), -1.0/dp5Order)
		factor = math.Max(stepMinScale, math.Min(factor, stepMaxScale))
		if errNorm > 1 {
			s.Rejected++
			if h > hMin {
				s.h = math.Max(h*factor, hMin)
				continue
			}
			if s.conf.MinStep <= 0 {
				return fmt.Errorf("%w: h=%g at t=%f", ErrStepTooSmall, h, s.t)
			}
			s.logger.Log("level", "warning", "subsys", "stepper", "message", "accepting step at minimum step size", "t", s.t, "h", h, "error", errNorm)
		}
		s.accept(h, k, yc, last)
		if !last {
			s.h = h * factor
		}
		return nil
	}
}

func (s *Stepper) accept(h float64, k [7][]float64, yNew []float64, last bool) {
	n := len(s.y)
	for i := range s.rcont {
		s.rcont[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		ydiff := yNew[i] - s.y[i]
		bspl := h*k[0][i] - ydiff
		s.rcont[0][i] = s.y[i]
		s.rcont[1][i] = ydiff
		s.rcont[2][i] = bspl
		s.rcont[3][i] = ydiff - h*k[6][i] - bspl
		acc := 0.0
		for j := 0; j < 7; j++ {
			acc += dp5d[j] * k[j][i]
		}
		s.rcont[4][i] = h * acc
	}
	s.tOld, s.hLast = s.t, h
	copy(s.y, yNew)
	s.f = k[6]
	s.Steps++
	if last {
		s.t = s.tBound
		s.status = StepperFinished
	} else {
		s.t += h
	}
}

// Dense returns the continuous interpolant over the last accepted step.
func (s *Stepper) Dense() *DenseOutput {
	d := &DenseOutput{T0: s.tOld, T1: s.tOld + s.hLast}
	for i := range s.rcont {
		d.rcont[i] = append([]float64(nil), s.rcont[i]...)
	}
	return d
}

// DenseOutput is the quartic interpolant of a Dormand-Prince step.
type DenseOutput struct {
	T0, T1 float64
	rcont  [5][]float64
}

// At returns the interpolated state at t, which should be within [T0, T1].
func (d *DenseOutput) At(t float64) []float64 {
	h := d.T1 - d.T0
	y := make([]float64, len(d.rcont[0]))
	if h == 0 {
		copy(y, d.rcont[0])
		return y
	}
	θ := (t - d.T0) / h
	θ1 := 1 - θ
	for i := range y {
		y[i] = d.rcont[0][i] + θ*(d.rcont[1][i]+θ1*(d.rcont[2][i]+θ*(d.rcont[3][i]+θ1*d.rcont[4][i])))
	}
	return y
}
