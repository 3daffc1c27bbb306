// Package function provides scalar functions of a single variable, backed by a
// constant, a Go callable or tabulated samples with interpolation.
package function

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/interp"
)

var (
	// ErrNoSamples is returned when a tabulated Function is built without data.
	ErrNoSamples = errors.New("function: no samples")
	// ErrLengthMismatch is returned when abscissae and ordinates differ in length.
	ErrLengthMismatch = errors.New("function: abscissae and ordinates differ in length")
	// ErrNotFinite is returned when a sample is NaN or infinite.
	ErrNotFinite = errors.New("function: sample is not finite")
	// ErrNotTabulated is returned by operations which require samples.
	ErrNotTabulated = errors.New("function: source is not tabulated")
)

// quadPoints is the number of Gauss-Legendre nodes used to integrate non tabulated sources.
const quadPoints = 64

// Interpolation defines how a tabulated Function is evaluated between samples.
type Interpolation uint8

const (
	// Linear interpolation between neighbouring samples.
	Linear Interpolation = iota + 1
	// Spline is a natural cubic spline (zero second derivative at both ends).
	Spline
	// Akima is the Akima cubic spline, less prone to overshoot.
	Akima
)

func (i Interpolation) String() string {
	switch i {
	case Linear:
		return "linear"
	case Spline:
		return "spline"
	case Akima:
		return "akima"
	default:
		return fmt.Sprintf("interpolation(%d)", uint8(i))
	}
}

// Extrapolation defines how a tabulated Function is evaluated outside of its samples.
type Extrapolation uint8

const (
	// Constant returns the closest end sample.
	Constant Extrapolation = iota + 1
	// Zero returns zero.
	Zero
	// Natural continues the curve with the slope it has at the closest end.
	Natural
)

func (e Extrapolation) String() string {
	switch e {
	case Constant:
		return "constant"
	case Zero:
		return "zero"
	case Natural:
		return "natural"
	default:
		return fmt.Sprintf("extrapolation(%d)", uint8(e))
	}
}

type sourceKind uint8

const (
	constantSource sourceKind = iota
	callableSource
	tabulatedSource
)

// Function maps one scalar to another.
type Function struct {
	Inputs, Outputs string

	kind     sourceKind
	constant float64
	callable func(float64) float64

	xs, ys        []float64
	interpolation Interpolation
	extrapolation Extrapolation
	predictor     interp.Predictor
	slopeLo       float64
	slopeHi       float64
}

// NewConstant returns a Function which always evaluates to v.
func NewConstant(v float64) *Function {
	return &Function{kind: constantSource, constant: v}
}

// NewFromCallable wraps a Go function.
func NewFromCallable(fn func(float64) float64) *Function {
	return &Function{kind: callableSource, callable: fn}
}

// NewFromXY returns a tabulated Function. The samples are copied, sorted by
// abscissa and, for duplicated abscissae, only the last ordinate is kept.
func NewFromXY(xs, ys []float64, i Interpolation, e Extrapolation) (*Function, error) {
	if len(xs) != len(ys) {
		return nil, ErrLengthMismatch
	}
	if len(xs) == 0 {
		return nil, ErrNoSamples
	}
	for k := range xs {
		if !finite(xs[k]) || !finite(ys[k]) {
			return nil, fmt.Errorf("%w: (%f, %f) at index %d", ErrNotFinite, xs[k], ys[k], k)
		}
	}
	idx := make([]int, len(xs))
	for k := range idx {
		idx[k] = k
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	sx := make([]float64, 0, len(xs))
	sy := make([]float64, 0, len(ys))
	for _, k := range idx {
		if n := len(sx); n > 0 && sx[n-1] == xs[k] {
			sy[n-1] = ys[k]
			continue
		}
		sx = append(sx, xs[k])
		sy = append(sy, ys[k])
	}
	f := &Function{kind: tabulatedSource, xs: sx, ys: sy}
	if err := f.fit(i, e); err != nil {
		return nil, err
	}
	return f, nil
}

// NewFromPoints is NewFromXY for a list of (x, y) pairs.
func NewFromPoints(points [][2]float64, i Interpolation, e Extrapolation) (*Function, error) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for k, p := range points {
		xs[k], ys[k] = p[0], p[1]
	}
	return NewFromXY(xs, ys, i, e)
}

// Must panics if err is not nil, otherwise returns f.
func Must(f *Function, err error) *Function {
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Function) fit(i Interpolation, e Extrapolation) error {
	if i == 0 {
		i = Spline
	}
	if e == 0 {
		e = Constant
	}
	f.interpolation, f.extrapolation = i, e
	n := len(f.xs)
	if n == 1 {
		f.predictor = interp.Constant(f.ys[0])
		f.slopeLo, f.slopeHi = 0, 0
		return nil
	}
	if i == Spline && n < 3 {
		i = Linear
	}
	switch i {
	case Linear:
		var pl interp.PiecewiseLinear
		pl.Fit(f.xs, f.ys)
		f.predictor = pl
		f.slopeLo = (f.ys[1] - f.ys[0]) / (f.xs[1] - f.xs[0])
		f.slopeHi = (f.ys[n-1] - f.ys[n-2]) / (f.xs[n-1] - f.xs[n-2])
		return nil
	case Spline:
		var nc interp.NaturalCubic
		if err := nc.Fit(f.xs, f.ys); err != nil {
			return fmt.Errorf("function: spline fit: %w", err)
		}
		f.predictor = &nc
		f.slopeLo = nc.PredictDerivative(f.xs[0])
		f.slopeHi = nc.PredictDerivative(f.xs[n-1])
		return nil
	case Akima:
		var as interp.AkimaSpline
		as.Fit(f.xs, f.ys)
		f.predictor = &as
		f.slopeLo = as.PredictDerivative(f.xs[0])
		f.slopeHi = as.PredictDerivative(f.xs[n-1])
		return nil
	default:
		return fmt.Errorf("function: unknown interpolation %s", i)
	}
}

// SetInterpolation refits a tabulated Function with another interpolation.
func (f *Function) SetInterpolation(i Interpolation) error {
	if f.kind != tabulatedSource {
		return ErrNotTabulated
	}
	return f.fit(i, f.extrapolation)
}

// SetExtrapolation changes the behavior outside of the samples.
func (f *Function) SetExtrapolation(e Extrapolation) {
	f.extrapolation = e
}

// SetDiscrete samples the Function on a uniform grid of the given size over
// [lower, upper] and turns it into a tabulated Function.
func (f *Function) SetDiscrete(lower, upper float64, samples int, i Interpolation, e Extrapolation) error {
	if samples < 2 {
		return fmt.Errorf("function: need at least two samples, got %d", samples)
	}
	xs := floats.Span(make([]float64, samples), lower, upper)
	ys := f.Values(xs)
	g, err := NewFromXY(xs, ys, i, e)
	if err != nil {
		return err
	}
	g.Inputs, g.Outputs = f.Inputs, f.Outputs
	*f = *g
	return nil
}

// IsTabulated returns whether this Function is backed by samples.
func (f *Function) IsTabulated() bool {
	return f.kind == tabulatedSource
}

// Value evaluates the Function at x.
func (f *Function) Value(x float64) float64 {
	switch f.kind {
	case constantSource:
		return f.constant
	case callableSource:
		return f.callable(x)
	}
	n := len(f.xs)
	if x < f.xs[0] || x > f.xs[n-1] {
		switch f.extrapolation {
		case Zero:
			return 0
		case Natural:
			if x < f.xs[0] {
				return f.ys[0] + f.slopeLo*(x-f.xs[0])
			}
			return f.ys[n-1] + f.slopeHi*(x-f.xs[n-1])
		}
		if x < f.xs[0] {
			return f.ys[0]
		}
		return f.ys[n-1]
	}
	return f.predictor.Predict(x)
}

// Values evaluates the Function at each of the provided abscissae.
func (f *Function) Values(xs []float64) []float64 {
	ys := make([]float64, len(xs))
	for k, x := range xs {
		ys[k] = f.Value(x)
	}
	return ys
}

// Source returns a copy of the samples of a tabulated Function.
func (f *Function) Source() (xs, ys []float64) {
	xs = make([]float64, len(f.xs))
	ys = make([]float64, len(f.ys))
	copy(xs, f.xs)
	copy(ys, f.ys)
	return
}

// Domain returns the first and last abscissae of a tabulated Function.
func (f *Function) Domain() (lower, upper float64, ok bool) {
	if f.kind != tabulatedSource {
		return math.Inf(-1), math.Inf(1), false
	}
	return f.xs[0], f.xs[len(f.xs)-1], true
}

// Max returns the sample with the largest ordinate. Constant Functions return
// (0, value) and callables (NaN, NaN).
func (f *Function) Max() (x, y float64) {
	switch f.kind {
	case constantSource:
		return 0, f.constant
	case callableSource:
		return math.NaN(), math.NaN()
	}
	k := floats.MaxIdx(f.ys)
	return f.xs[k], f.ys[k]
}

// Integral returns the definite integral of the Function between a and b.
// Linearly interpolated samples are integrated exactly with the trapezoidal
// rule, everything else with a fixed Gauss-Legendre quadrature.
func (f *Function) Integral(a, b float64) float64 {
	if a == b {
		return 0
	}
	if a > b {
		return -f.Integral(b, a)
	}
	switch f.kind {
	case constantSource:
		return f.constant * (b - a)
	case tabulatedSource:
		if f.interpolation == Linear || len(f.xs) < 3 {
			xs := []float64{a}
			for _, x := range f.xs {
				if x > a && x < b {
					xs = append(xs, x)
				}
			}
			xs = append(xs, b)
			return integrate.Trapezoidal(xs, f.Values(xs))
		}
		total := 0.0
		lo := a
		for _, x := range f.xs {
			if x > a && x < b {
				total += quad.Fixed(f.Value, lo, x, 8, nil, 0)
				lo = x
			}
		}
		return total + quad.Fixed(f.Value, lo, b, 8, nil, 0)
	}
	return quad.Fixed(f.Value, a, b, quadPoints, nil, 0)
}

// CumulativeIntegral returns the running trapezoidal integral of a tabulated
// Function, starting at initial on its first sample.
func (f *Function) CumulativeIntegral(initial float64) (*Function, error) {
	if f.kind != tabulatedSource {
		return nil, ErrNotTabulated
	}
	ys := make([]float64, len(f.xs))
	ys[0] = initial
	for k := 1; k < len(f.xs); k++ {
		ys[k] = ys[k-1] + 0.5*(f.ys[k]+f.ys[k-1])*(f.xs[k]-f.xs[k-1])
	}
	return NewFromXY(f.xs, ys, f.interpolation, f.extrapolation)
}

// Differentiate returns the central finite difference derivative at x. A zero
// dx uses the default step of the formula.
func (f *Function) Differentiate(x, dx float64) float64 {
	if f.kind == constantSource {
		return 0
	}
	return fd.Derivative(f.Value, x, &fd.Settings{Formula: fd.Central, Step: dx})
}

// Derivative returns the derivative of this Function as a callable Function.
func (f *Function) Derivative(dx float64) *Function {
	if f.kind == constantSource {
		return NewConstant(0)
	}
	d := NewFromCallable(func(x float64) float64 { return f.Differentiate(x, dx) })
	d.Inputs, d.Outputs = f.Inputs, "d"+f.Outputs
	return d
}

func (f *Function) String() string {
	in, out := f.Inputs, f.Outputs
	if in == "" {
		in = "Scalar"
	}
	if out == "" {
		out = "Scalar"
	}
	return fmt.Sprintf("Function from R1 to R1 : (%s) → (%s)", in, out)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
