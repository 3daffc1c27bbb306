package function

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestFunctionConstant(t *testing.T) {
	f := NewConstant(3.5)
	for _, x := range []float64{-10, 0, 1e6} {
		if f.Value(x) != 3.5 {
			t.Fatalf("constant function returned %f at %f", f.Value(x), x)
		}
	}
	if f.Integral(0, 2) != 7 {
		t.Fatalf("incorrect integral of constant: %f", f.Integral(0, 2))
	}
	if f.Differentiate(4, 0) != 0 {
		t.Fatal("derivative of a constant should be zero")
	}
}

func TestFunctionSortAndDeduplicate(t *testing.T) {
	f, err := NewFromXY([]float64{2, 0, 1, 1}, []float64{4, 0, 1, 2}, Linear, Constant)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	xs, ys := f.Source()
	if len(xs) != 3 || xs[0] != 0 || xs[1] != 1 || xs[2] != 2 {
		t.Fatalf("abscissae not sorted or deduplicated: %v", xs)
	}
	if ys[1] != 2 {
		t.Fatalf("duplicate abscissa should keep the last ordinate, got %f", ys[1])
	}
}

func TestFunctionErrors(t *testing.T) {
	if _, err := NewFromXY(nil, nil, Linear, Constant); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
	if _, err := NewFromXY([]float64{1, 2}, []float64{1}, Linear, Constant); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if _, err := NewFromXY([]float64{1, 2}, []float64{1, math.NaN()}, Linear, Constant); !errors.Is(err, ErrNotFinite) {
		t.Fatalf("expected ErrNotFinite, got %v", err)
	}
	if err := NewConstant(1).SetInterpolation(Akima); !errors.Is(err, ErrNotTabulated) {
		t.Fatalf("expected ErrNotTabulated, got %v", err)
	}
}

func TestFunctionExtrapolation(t *testing.T) {
	pts := [][2]float64{{0, 0}, {1, 2}, {2, 4}}
	for _, tc := range []struct {
		e         Extrapolation
		low, high float64
	}{
		{Constant, 0, 4},
		{Zero, 0, 0},
		{Natural, -2, 6},
	} {
		f := Must(NewFromPoints(pts, Linear, tc.e))
		if !scalar.EqualWithinAbs(f.Value(-1), tc.low, 1e-12) {
			t.Fatalf("[%s] low value %f != %f", tc.e, f.Value(-1), tc.low)
		}
		if !scalar.EqualWithinAbs(f.Value(3), tc.high, 1e-12) {
			t.Fatalf("[%s] high value %f != %f", tc.e, f.Value(3), tc.high)
		}
		if !scalar.EqualWithinAbs(f.Value(1.5), 3, 1e-12) {
			t.Fatalf("[%s] interpolated value %f != 3", tc.e, f.Value(1.5))
		}
	}
}

func TestFunctionSpline(t *testing.T) {
	f := NewFromCallable(math.Sin)
	if err := f.SetDiscrete(0, math.Pi, 100, Spline, Natural); err != nil {
		t.Fatalf("err %s", err)
	}
	if !f.IsTabulated() {
		t.Fatal("SetDiscrete should produce a tabulated function")
	}
	for _, x := range []float64{0.1, 1, 2.5} {
		if !scalar.EqualWithinAbs(f.Value(x), math.Sin(x), 1e-5) {
			t.Fatalf("spline at %f: %f != %f", x, f.Value(x), math.Sin(x))
		}
	}
	if !scalar.EqualWithinAbs(f.Integral(0, math.Pi), 2, 1e-5) {
		t.Fatalf("spline integral %f != 2", f.Integral(0, math.Pi))
	}
	if !scalar.EqualWithinAbs(f.Differentiate(1, 1e-4), math.Cos(1), 1e-4) {
		t.Fatalf("spline derivative %f != %f", f.Differentiate(1, 1e-4), math.Cos(1))
	}
	// Two samples fall back to linear interpolation.
	g := Must(NewFromXY([]float64{0, 1}, []float64{0, 1}, Spline, Constant))
	if !scalar.EqualWithinAbs(g.Value(0.25), 0.25, 1e-12) {
		t.Fatalf("two point spline should be linear, got %f", g.Value(0.25))
	}
}

func TestFunctionAkima(t *testing.T) {
	f := Must(NewFromXY([]float64{0, 1, 2, 3, 4}, []float64{0, 1, 4, 9, 16}, Akima, Constant))
	if !scalar.EqualWithinAbs(f.Value(2), 4, 1e-12) {
		t.Fatalf("akima should pass through samples, got %f", f.Value(2))
	}
	if v := f.Value(2.5); v < 4 || v > 9 {
		t.Fatalf("akima value %f outside of the neighbouring samples", v)
	}
}

func TestFunctionIntegral(t *testing.T) {
	f := Must(NewFromPoints([][2]float64{{0, 0}, {1, 1}, {2, 0}}, Linear, Zero))
	if !scalar.EqualWithinAbs(f.Integral(0, 2), 1, 1e-12) {
		t.Fatalf("triangle integral %f != 1", f.Integral(0, 2))
	}
	if !scalar.EqualWithinAbs(f.Integral(0.5, 1), 0.375, 1e-12) {
		t.Fatalf("partial integral %f != 0.375", f.Integral(0.5, 1))
	}
	if !scalar.EqualWithinAbs(f.Integral(2, 0), -1, 1e-12) {
		t.Fatalf("reversed integral %f != -1", f.Integral(2, 0))
	}
	if !scalar.EqualWithinAbs(f.Integral(-5, 10), 1, 1e-12) {
		t.Fatalf("zero extrapolated integral %f != 1", f.Integral(-5, 10))
	}
	sq := NewFromCallable(func(x float64) float64 { return x * x })
	if !scalar.EqualWithinAbs(sq.Integral(0, 3), 9, 1e-9) {
		t.Fatalf("quadrature integral %f != 9", sq.Integral(0, 3))
	}
	cum, err := f.CumulativeIntegral(10)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	_, ys := cum.Source()
	if ys[0] != 10 || !scalar.EqualWithinAbs(ys[1], 10.5, 1e-12) || !scalar.EqualWithinAbs(ys[2], 11, 1e-12) {
		t.Fatalf("incorrect cumulative integral %v", ys)
	}
}

func TestFunctionArithmetic(t *testing.T) {
	xs := []float64{0, 1, 2}
	f := Must(NewFromXY(xs, []float64{1, 2, 3}, Linear, Constant))
	g := Must(NewFromXY(xs, []float64{2, 2, 2}, Linear, Constant))
	sum := f.Add(g)
	if !sum.IsTabulated() {
		t.Fatal("sum over identical grids should remain tabulated")
	}
	if sum.Value(1) != 4 {
		t.Fatalf("sum %f != 4", sum.Value(1))
	}
	if f.Mul(g).Value(2) != 6 || f.Sub(g).Value(0) != -1 || f.Div(g).Value(2) != 1.5 {
		t.Fatal("incorrect pointwise arithmetic")
	}
	if f.Scale(3).Value(1) != 6 || f.Shift(-1).Value(2) != 2 || f.Pow(2).Value(2) != 9 {
		t.Fatal("incorrect scalar arithmetic")
	}
	h := Must(NewFromXY([]float64{0, 0.5, 2}, []float64{0, 0, 0}, Linear, Constant))
	mixed := f.Add(h)
	if mixed.IsTabulated() {
		t.Fatal("sum over different grids should be a callable")
	}
	if !scalar.EqualWithinAbs(mixed.Value(1.5), 2.5, 1e-12) {
		t.Fatalf("mixed sum %f != 2.5", mixed.Value(1.5))
	}
	zero := Must(NewFromXY(xs, []float64{0, 1, 1}, Linear, Constant))
	if q := f.Div(zero); q.IsTabulated() || !math.IsInf(q.Value(0), 1) {
		t.Fatal("division by zero samples should fall back to a callable")
	}
}

func TestFunctionMax(t *testing.T) {
	f := Must(NewFromPoints([][2]float64{{0, 1}, {1, 7}, {2, 3}}, Linear, Constant))
	if x, y := f.Max(); x != 1 || y != 7 {
		t.Fatalf("max at (%f, %f)", x, y)
	}
	if x, y := NewConstant(2).Max(); x != 0 || y != 2 {
		t.Fatalf("constant max at (%f, %f)", x, y)
	}
	if x, _ := NewFromCallable(math.Sin).Max(); !math.IsNaN(x) {
		t.Fatal("callable max should be NaN")
	}
}
