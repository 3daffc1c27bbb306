package sixdof

import (
	"math"
	"sort"
)

const (
	// rootImagTolerance is the largest imaginary part of a complex root pair still considered real.
	rootImagTolerance = 1e-3
	cubicDegenerate   = 1e-14
)

// hermiteCubic returns the coefficients of p(τ) = aτ³ + bτ² + cτ + d which
// matches the values (y0, y1) and derivatives (yp0, yp1) at τ = 0 and τ = D.
func hermiteCubic(y0, yp0, y1, yp1, D float64) (a, b, c, d float64) {
	d = y0
	c = yp0
	b = (3*y1 - yp1*D - 2*c*D - 3*d) / (D * D)
	a = -(2*y1 - yp1*D - c*D - 2*d) / (D * D * D)
	return
}

// realCubicRoots returns the real roots of aτ³ + bτ² + cτ + d = 0 in
// increasing order. A complex conjugate pair whose imaginary part is below
// rootImagTolerance contributes its real part twice. Degenerate cubics are
// solved as quadratics or linear equations.
func realCubicRoots(a, b, c, d float64) []float64 {
	scale := math.Max(math.Abs(b), math.Max(math.Abs(c), math.Abs(d)))
	if math.Abs(a) <= cubicDegenerate*scale || a == 0 {
		return realQuadraticRoots(b, c, d)
	}
	B, C, D := b/a, c/a, d/a
	shift := B / 3
	p := C - B*B/3
	q := 2*B*B*B/27 - B*C/3 + D
	disc := q*q/4 + p*p*p/27
	var roots []float64
	switch {
	case disc > 0:
		sq := math.Sqrt(disc)
		u := math.Cbrt(-q/2 + sq)
		v := math.Cbrt(-q/2 - sq)
		roots = append(roots, u+v-shift)
		if imag := math.Sqrt(3) / 2 * math.Abs(u-v); imag < rootImagTolerance {
			re := -(u+v)/2 - shift
			roots = append(roots, re, re)
		}
	case p == 0:
		roots = append(roots, -shift, -shift, -shift)
	default:
		r := 2 * math.Sqrt(-p/3)
		arg := 3 * q / (p * r)
		arg = math.Max(-1, math.Min(1, arg))
		φ := math.Acos(arg) / 3
		for k := 0; k < 3; k++ {
			roots = append(roots, r*math.Cos(φ-2*math.Pi*float64(k)/3)-shift)
		}
	}
	sort.Float64s(roots)
	return roots
}

// realQuadraticRoots returns the real roots of aτ² + bτ + c = 0.
func realQuadraticRoots(a, b, c float64) []float64 {
	if math.Abs(a) <= cubicDegenerate*math.Max(math.Abs(b), math.Abs(c)) || a == 0 {
		if b == 0 {
			return nil
		}
		return []float64{-c / b}
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		if imag := math.Sqrt(-disc) / (2 * math.Abs(a)); imag < rootImagTolerance {
			re := -b / (2 * a)
			return []float64{re, re}
		}
		return nil
	}
	sq := math.Sqrt(disc)
	// Numerically stable pair.
	qq := -0.5 * (b + math.Copysign(sq, b))
	r1 := qq / a
	var r2 float64
	if qq != 0 {
		r2 = c / qq
	} else {
		r2 = r1
	}
	roots := []float64{r1, r2}
	sort.Float64s(roots)
	return roots
}

// eventRoot fits a cubic Hermite polynomial over a step of length D and
// returns the unique root strictly within (0, D). The boolean is false when
// no root lies within the step, in which case D is returned. More than one
// root returns ErrAmbiguousEventTime.
func eventRoot(y0, yp0, y1, yp1, D float64) (float64, bool, error) {
	a, b, c, d := hermiteCubic(y0, yp0, y1, yp1, D)
	var valid []float64
	for _, τ := range realCubicRoots(a, b, c, d) {
		if τ > 0 && τ < D {
			valid = append(valid, τ)
		}
	}
	switch len(valid) {
	case 0:
		return D, false, nil
	case 1:
		return valid[0], true, nil
	default:
		return valid[0], false, ErrAmbiguousEventTime
	}
}
