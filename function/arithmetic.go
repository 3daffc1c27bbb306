package function

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// combine applies op pointwise. Two tabulated Functions sharing the same
// abscissae, or a tabulated Function and a constant, yield a tabulated
// Function; any other combination yields a callable.
func (f *Function) combine(g *Function, op func(a, b float64) float64) *Function {
	callable := func() *Function {
		return NewFromCallable(func(x float64) float64 { return op(f.Value(x), g.Value(x)) })
	}
	var base *Function
	var ys []float64
	switch {
	case f.kind == constantSource && g.kind == constantSource:
		return NewConstant(op(f.constant, g.constant))
	case f.kind == tabulatedSource && g.kind == tabulatedSource && floats.Equal(f.xs, g.xs):
		base, ys = f, make([]float64, len(f.ys))
		for k := range ys {
			ys[k] = op(f.ys[k], g.ys[k])
		}
	case f.kind == tabulatedSource && g.kind == constantSource:
		base, ys = f, make([]float64, len(f.ys))
		for k := range ys {
			ys[k] = op(f.ys[k], g.constant)
		}
	case f.kind == constantSource && g.kind == tabulatedSource:
		base, ys = g, make([]float64, len(g.ys))
		for k := range ys {
			ys[k] = op(f.constant, g.ys[k])
		}
	default:
		return callable()
	}
	h, err := NewFromXY(base.xs, ys, base.interpolation, base.extrapolation)
	if err != nil {
		// Non finite samples, e.g. a division by zero.
		return callable()
	}
	h.Inputs = base.Inputs
	return h
}

// Add returns f + g.
func (f *Function) Add(g *Function) *Function {
	return f.combine(g, func(a, b float64) float64 { return a + b })
}

// Sub returns f - g.
func (f *Function) Sub(g *Function) *Function {
	return f.combine(g, func(a, b float64) float64 { return a - b })
}

// Mul returns f * g.
func (f *Function) Mul(g *Function) *Function {
	return f.combine(g, func(a, b float64) float64 { return a * b })
}

// Div returns f / g.
func (f *Function) Div(g *Function) *Function {
	return f.combine(g, func(a, b float64) float64 { return a / b })
}

// Scale returns k * f.
func (f *Function) Scale(k float64) *Function {
	return f.Mul(NewConstant(k))
}

// Shift returns f + k.
func (f *Function) Shift(k float64) *Function {
	return f.Add(NewConstant(k))
}

// Pow returns f^p.
func (f *Function) Pow(p float64) *Function {
	return f.Map(func(y float64) float64 { return math.Pow(y, p) })
}

// Map applies fn to the output of f.
func (f *Function) Map(fn func(float64) float64) *Function {
	switch f.kind {
	case constantSource:
		return NewConstant(fn(f.constant))
	case tabulatedSource:
		ys := make([]float64, len(f.ys))
		for k, y := range f.ys {
			ys[k] = fn(y)
		}
		if h, err := NewFromXY(f.xs, ys, f.interpolation, f.extrapolation); err == nil {
			h.Inputs = f.Inputs
			return h
		}
	}
	return NewFromCallable(func(x float64) float64 { return fn(f.Value(x)) })
}
