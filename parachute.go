package sixdof

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ChristopherRabotin/sixdof/function"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultSamplingRate is the default parachute sensor sampling rate in Hz.
	DefaultSamplingRate = 100
	// noiseSeedTime is the time of the sample which seeds the noise signal, before lift off.
	noiseSeedTime = -1e-6
)

// Trigger decides whether a parachute ejection is triggered from the
// (noisy) freestream pressure in Pa and the current state.
type Trigger func(pressure float64, u State) bool

// Noise describes a time correlated Gaussian noise: each sample is
// Correlation × previous + sqrt(1 - Correlation²) × N(Bias, Deviation).
type Noise struct {
	Bias, Deviation, Correlation float64
}

// Sample is a single timestamped value of a signal.
type Sample struct {
	T, Value float64
}

// ParachuteConfig holds the parameters of a parachute.
type ParachuteConfig struct {
	Name         string
	CdS          float64 // Drag coefficient times reference area, in m².
	Trigger      Trigger
	SamplingRate float64 // In Hz, defaults to DefaultSamplingRate.
	Lag          float64 // Time between trigger and full inflation, in seconds.
	Noise        Noise   // Pressure noise, in Pa.
	Seed         uint64  // Seed of the noise generator.
}

// Parachute is a recovery device deployed when its trigger fires on a sampled
// and noisy barometric signal.
type Parachute struct {
	Name         string
	CdS          float64
	Trigger      Trigger
	SamplingRate float64
	Lag          float64
	Noise        Noise
	Seed         uint64

	alpha, beta float64
	normal      distuv.Normal

	CleanPressureSignal []Sample
	NoiseSignal         []Sample
	NoisyPressureSignal []Sample
}

// NewParachute returns a parachute from its configuration.
func NewParachute(conf ParachuteConfig) (*Parachute, error) {
	if conf.Trigger == nil {
		return nil, fmt.Errorf("%w: parachute %q has no trigger", ErrInvalidConfig, conf.Name)
	}
	if conf.CdS <= 0 {
		return nil, fmt.Errorf("%w: parachute %q CdS must be positive", ErrInvalidConfig, conf.Name)
	}
	if conf.SamplingRate == 0 {
		conf.SamplingRate = DefaultSamplingRate
	}
	if conf.SamplingRate < 0 || conf.Lag < 0 {
		return nil, fmt.Errorf("%w: parachute %q sampling rate and lag must be positive", ErrInvalidConfig, conf.Name)
	}
	if math.Abs(conf.Noise.Correlation) > 1 || conf.Noise.Deviation < 0 {
		return nil, fmt.Errorf("%w: parachute %q noise is invalid", ErrInvalidConfig, conf.Name)
	}
	p := &Parachute{Name: conf.Name, CdS: conf.CdS, Trigger: conf.Trigger, SamplingRate: conf.SamplingRate,
		Lag: conf.Lag, Noise: conf.Noise, Seed: conf.Seed}
	p.alpha = conf.Noise.Correlation
	p.beta = math.Sqrt(1 - conf.Noise.Correlation*conf.Noise.Correlation)
	p.Reset()
	return p, nil
}

// Reset clears the signals and restarts the noise generator from the seed, so
// that two flights with the same parachute see the same noise.
func (p *Parachute) Reset() {
	p.normal = distuv.Normal{Mu: p.Noise.Bias, Sigma: p.Noise.Deviation, Src: rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)}
	p.CleanPressureSignal = nil
	p.NoisyPressureSignal = nil
	p.NoiseSignal = []Sample{{noiseSeedTime, p.normal.Rand()}}
}

// nextNoise returns the next correlated noise sample.
func (p *Parachute) nextNoise() float64 {
	prev := p.NoiseSignal[len(p.NoiseSignal)-1].Value
	return p.alpha*prev + p.beta*p.normal.Rand()
}

// Sample records the clean, noise and noisy pressure signals at t and
// returns whether the trigger fires on the noisy pressure.
func (p *Parachute) Sample(t, pressure float64, u State) bool {
	noise := p.nextNoise()
	p.CleanPressureSignal = append(p.CleanPressureSignal, Sample{t, pressure})
	p.NoiseSignal = append(p.NoiseSignal, Sample{t, noise})
	p.NoisyPressureSignal = append(p.NoisyPressureSignal, Sample{t, pressure + noise})
	return p.Trigger(pressure+noise, u)
}

// SignalFunctions returns the recorded signals as linearly interpolated functions of time.
func (p *Parachute) SignalFunctions() (clean, noise, noisy *function.Function, err error) {
	if clean, err = samplesToFunction(p.CleanPressureSignal, "Time (s)", p.Name+" clean pressure (Pa)"); err != nil {
		return
	}
	if noise, err = samplesToFunction(p.NoiseSignal, "Time (s)", p.Name+" pressure noise (Pa)"); err != nil {
		return
	}
	noisy, err = samplesToFunction(p.NoisyPressureSignal, "Time (s)", p.Name+" noisy pressure (Pa)")
	return
}

func (p *Parachute) String() string {
	return fmt.Sprintf("%s (CdS=%.3f m², %.0f Hz, lag=%.2f s)", p.Name, p.CdS, p.SamplingRate, p.Lag)
}

func samplesToFunction(samples []Sample, inputs, outputs string) (*function.Function, error) {
	if len(samples) == 0 {
		f := function.NewConstant(0)
		f.Inputs, f.Outputs = inputs, outputs
		return f, nil
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i], ys[i] = s.T, s.Value
	}
	f, err := function.NewFromXY(xs, ys, function.Linear, function.Constant)
	if err != nil {
		return nil, err
	}
	f.Inputs, f.Outputs = inputs, outputs
	return f, nil
}
