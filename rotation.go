package sixdof

import (
	"gonum.org/v1/gonum/mat"
)

// K returns the rotation matrix from the body 123 frame to the inertial XYZ
// frame from the Euler parameters. The parameters are not normalized.
func K(e0, e1, e2, e3 float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		e0*e0 + e1*e1 - e2*e2 - e3*e3, 2 * (e1*e2 - e0*e3), 2 * (e1*e3 + e0*e2),
		2 * (e1*e2 + e0*e3), e0*e0 - e1*e1 + e2*e2 - e3*e3, 2 * (e2*e3 - e0*e1),
		2 * (e1*e3 - e0*e2), 2 * (e2*e3 + e0*e1), e0*e0 - e1*e1 - e2*e2 + e3*e3})
}

// StateK returns the body to inertial rotation matrix of the provided state.
func StateK(u State) *mat.Dense {
	return K(u[6], u[7], u[8], u[9])
}

// MxV33 multiplies a matrix with a vector. Note that there is no dimension check!
func MxV33(m mat.Matrix, v []float64) (o []float64) {
	vVec := mat.NewVecDense(len(v), v)
	var rVec mat.VecDense
	rVec.MulVec(m, vVec)
	return []float64{rVec.AtVec(0), rVec.AtVec(1), rVec.AtVec(2)}
}

// BodyToInertial rotates a body frame vector into the inertial frame.
func BodyToInertial(u State, v []float64) []float64 {
	return MxV33(StateK(u), v)
}

// InertialToBody rotates an inertial frame vector into the body frame.
func InertialToBody(u State, v []float64) []float64 {
	return MxV33(StateK(u).T(), v)
}

// quaternionDerivative returns the time derivative of the Euler parameters for
// the body angular velocity w.
func quaternionDerivative(e0, e1, e2, e3 float64, w []float64) (d0, d1, d2, d3 float64) {
	d0 = 0.5 * (-w[0]*e1 - w[1]*e2 - w[2]*e3)
	d1 = 0.5 * (w[0]*e0 + w[2]*e2 - w[1]*e3)
	d2 = 0.5 * (w[1]*e0 - w[2]*e1 + w[0]*e3)
	d3 = 0.5 * (w[2]*e0 + w[1]*e1 - w[0]*e2)
	return
}
