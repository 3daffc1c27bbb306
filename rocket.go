package sixdof

import (
	"fmt"
	"math"
	"strings"

	"github.com/ChristopherRabotin/sixdof/function"
)

// Nose cone kinds.
const (
	NoseConical   = "conical"
	NoseOgive     = "ogive"
	NoseLVHaack   = "lvhaack"
	NoseVonKarman = "vonKarman"
)

// AerodynamicSurface is a lifting surface of the rocket, reduced to the axial
// position of its center of pressure (positive towards the nose, from the
// unloaded center of mass) and its lift coefficient derivative.
type AerodynamicSurface struct {
	Name    string
	CP      float64 // m
	ClAlpha float64 // 1/rad
}

func (s AerodynamicSurface) String() string {
	return fmt.Sprintf("%s (cp=%.4f m, clα=%.4f)", s.Name, s.CP, s.ClAlpha)
}

// Rocket is the rigid body being flown: the unloaded airframe, its motor,
// aerodynamic surfaces and parachutes.
type Rocket struct {
	Motor                    Motor
	Mass                     float64 // kg, without propellant
	InertiaI, InertiaZ       float64 // kg·m², without propellant
	Radius, Area             float64
	DistanceRocketNozzle     float64 // m, from the unloaded center of mass
	DistanceRocketPropellant float64 // m, from the unloaded center of mass
	PowerOffDrag             *function.Function
	PowerOnDrag              *function.Function

	TotalMass, ReducedMass, CenterOfMass *function.Function
	StaticMargin                         *function.Function
	TotalLiftCoeffDer, CPPosition        float64

	CPEccentricityX, CPEccentricityY         float64
	ThrustEccentricityX, ThrustEccentricityY float64

	Surfaces   []AerodynamicSurface
	Parachutes []*Parachute
}

// DragCurve returns a drag coefficient Function of Mach number from (Mach, Cd)
// points, spline interpolated.
func DragCurve(points [][2]float64) (*function.Function, error) {
	f, err := function.NewFromPoints(points, function.Spline, function.Constant)
	if err != nil {
		return nil, fmt.Errorf("drag curve: %w", err)
	}
	return f, nil
}

// NewRocket returns a new Rocket. Drag coefficients are functions of Mach number.
func NewRocket(motor Motor, mass, inertiaI, inertiaZ, radius, distanceRocketNozzle, distanceRocketPropellant float64, powerOffDrag, powerOnDrag *function.Function) (*Rocket, error) {
	if motor == nil {
		return nil, ErrNoMotor
	}
	if mass <= 0 || radius <= 0 || inertiaI <= 0 || inertiaZ <= 0 {
		return nil, fmt.Errorf("%w: rocket mass, inertias and radius must be positive", ErrInvalidConfig)
	}
	if powerOffDrag == nil || powerOnDrag == nil {
		return nil, fmt.Errorf("%w: rocket requires both drag curves", ErrInvalidConfig)
	}
	r := &Rocket{Motor: motor, Mass: mass, InertiaI: inertiaI, InertiaZ: inertiaZ, Radius: radius,
		Area: math.Pi * radius * radius, DistanceRocketNozzle: distanceRocketNozzle,
		DistanceRocketPropellant: distanceRocketPropellant}
	r.PowerOffDrag = labelled(powerOffDrag, "Mach Number", "Drag Coefficient with Power Off")
	r.PowerOnDrag = labelled(powerOnDrag, "Mach Number", "Drag Coefficient with Power On")
	mt := motor.Mass()
	dry := function.NewConstant(mass)
	r.TotalMass = labelled(mt.Add(dry), "Time (s)", "Total Mass (Rocket + Propellant) (kg)")
	r.ReducedMass = labelled(mt.Mul(dry).Div(r.TotalMass), "Time (s)", "Reduced Mass (kg)")
	r.CenterOfMass = labelled(mt.Scale(distanceRocketPropellant).Div(r.TotalMass), "Time (s)", "Center of Mass (m)")
	r.evaluateStaticMargin()
	return r, nil
}

func (r *Rocket) evaluateStaticMargin() {
	r.TotalLiftCoeffDer, r.CPPosition = 0, 0
	for _, s := range r.Surfaces {
		r.TotalLiftCoeffDer += s.ClAlpha
		r.CPPosition += s.ClAlpha * s.CP
	}
	if r.TotalLiftCoeffDer != 0 {
		r.CPPosition /= r.TotalLiftCoeffDer
	}
	r.StaticMargin = labelled(r.CenterOfMass.Shift(-r.CPPosition).Scale(1/(2*r.Radius)), "Time (s)", "Static Margin (c)")
}

func (r *Rocket) addSurface(s AerodynamicSurface) AerodynamicSurface {
	r.Surfaces = append(r.Surfaces, s)
	r.evaluateStaticMargin()
	return s
}

// AddNose adds a nose cone whose base is at distanceToCM.
func (r *Rocket) AddNose(length float64, kind string, distanceToCM float64) AerodynamicSurface {
	var k float64
	switch strings.ToLower(kind) {
	case NoseConical:
		k = 1 - 1.0/3
	case NoseOgive:
		k = 1 - 0.534
	case NoseLVHaack:
		k = 1 - 0.437
	default:
		k = 0.5
	}
	cp := distanceToCM - k*length
	if distanceToCM > 0 {
		cp = distanceToCM + k*length
	}
	return r.addSurface(AerodynamicSurface{Name: "Nose Cone", CP: cp, ClAlpha: 2})
}

// AddFins adds a set of n trapezoidal fins whose root chord leading edge is at
// distanceToCM. A zero radius uses the rocket radius as the reference.
func (r *Rocket) AddFins(n int, span, rootChord, tipChord, distanceToCM, radius float64) (AerodynamicSurface, error) {
	if n < 2 || span <= 0 || rootChord <= 0 || tipChord < 0 {
		return AerodynamicSurface{}, fmt.Errorf("%w: invalid fin set", ErrInvalidConfig)
	}
	if radius == 0 {
		radius = r.Radius
	}
	cr, ct := rootChord, tipChord
	yr := cr + ct
	lf := math.Hypot(cr/2-ct/2, span)
	d := 2 * radius
	offset := ((cr-ct)/3)*((cr+2*ct)/(cr+ct)) + (cr+ct-cr*ct/(cr+ct))/6
	cp := distanceToCM + offset
	if distanceToCM < 0 {
		cp = distanceToCM - offset
	}
	clalpha := 4 * float64(n) * (span / d) * (span / d) / (1 + math.Sqrt(1+(2*lf/yr)*(2*lf/yr)))
	clalpha *= 1 + radius/(span+radius)
	return r.addSurface(AerodynamicSurface{Name: "Fins", CP: cp, ClAlpha: clalpha}), nil
}

// AddTail adds a tail or diameter change whose closest point to the unloaded
// center of mass is at distanceToCM.
func (r *Rocket) AddTail(topRadius, bottomRadius, length, distanceToCM float64) (AerodynamicSurface, error) {
	if topRadius <= 0 || bottomRadius <= 0 || topRadius == bottomRadius || length <= 0 {
		return AerodynamicSurface{}, fmt.Errorf("%w: invalid tail", ErrInvalidConfig)
	}
	ratio := topRadius / bottomRadius
	offset := (length / 3) * (1 + (1-ratio)/(1-ratio*ratio))
	cp := distanceToCM + offset
	if distanceToCM < 0 {
		cp = distanceToCM - offset
	}
	clalpha := -2 * (1 - 1/(ratio*ratio)) * (topRadius / r.Radius) * (topRadius / r.Radius)
	return r.addSurface(AerodynamicSurface{Name: "Tail", CP: cp, ClAlpha: clalpha}), nil
}

// AddParachute creates a parachute and attaches it to the rocket.
func (r *Rocket) AddParachute(conf ParachuteConfig) (*Parachute, error) {
	p, err := NewParachute(conf)
	if err != nil {
		return nil, err
	}
	r.Parachutes = append(r.Parachutes, p)
	return p, nil
}

// SetCMEccentricity moves the line of action of aerodynamic and thrust forces
// to model a center of mass offset from the geometric center line.
func (r *Rocket) SetCMEccentricity(x, y float64) {
	r.CPEccentricityX, r.CPEccentricityY = -x, -y
	r.ThrustEccentricityY, r.ThrustEccentricityX = -x, -y
}

// SetCPEccentricity moves the line of action of aerodynamic forces.
func (r *Rocket) SetCPEccentricity(x, y float64) {
	r.CPEccentricityX, r.CPEccentricityY = x, y
}

// SetThrustEccentricity moves the line of action of the thrust.
func (r *Rocket) SetThrustEccentricity(x, y float64) {
	r.ThrustEccentricityY, r.ThrustEccentricityX = x, y
}

func (r *Rocket) String() string {
	return fmt.Sprintf("rocket: %.3f kg dry, r=%.4f m, %d surfaces, %d parachutes, static margin %.3f c", r.Mass, r.Radius, len(r.Surfaces), len(r.Parachutes), r.StaticMargin.Value(0))
}
