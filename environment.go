package sixdof

import (
	"fmt"
	"math"
	"time"

	"github.com/ChristopherRabotin/sixdof/function"
	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/meeus/v3/julian"
	sunit "github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
)

// Standard sea level conditions.
const (
	DensitySL      = 1.225    // kg/m³
	PressureSL     = 1.0132e5 // Pa
	TemperatureSL  = 288.15   // K
	SpeedOfSoundSL = 340.3    // m/s
	ViscositySL    = 1.79e-5  // kg/(m·s)
	airGasConstant = 287.04   // J/(kg·K)
	gammaR         = 401.856  // γR for air
	defaultGravity = 9.8      // m/s²
)

// Wind is the wind speed (m/s) and heading (degrees from North, clockwise) as
// functions of altitude in meters.
type Wind struct {
	Speed, Heading *function.Function
}

// ConstantWind returns a wind which does not depend on altitude.
func ConstantWind(speed, heading float64) Wind {
	return Wind{function.NewConstant(speed), function.NewConstant(heading)}
}

// WindProfile returns a wind from rows of (altitude, speed, heading), linearly interpolated.
func WindProfile(rows [][3]float64) (Wind, error) {
	h := make([]float64, len(rows))
	ws := make([]float64, len(rows))
	wd := make([]float64, len(rows))
	for i, r := range rows {
		h[i], ws[i], wd[i] = r[0], r[1], r[2]
	}
	speed, err := function.NewFromXY(h, ws, function.Linear, function.Constant)
	if err != nil {
		return Wind{}, fmt.Errorf("wind speed profile: %w", err)
	}
	heading, err := function.NewFromXY(h, wd, function.Linear, function.Constant)
	if err != nil {
		return Wind{}, fmt.Errorf("wind heading profile: %w", err)
	}
	return Wind{speed, heading}, nil
}

// EnvironmentConfig holds the launch site parameters.
type EnvironmentConfig struct {
	RailLength float64 // m
	Gravity    float64 // m/s², positive down. Defaults to 9.8.
	Wind       Wind    // Defaults to no wind.
	Latitude   float64 // degrees
	Longitude  float64 // degrees
	Date       time.Time
}

// Environment is the launch site: rail, gravity, standard atmosphere and wind.
type Environment struct {
	RailLength          float64
	Gravity             float64
	Latitude, Longitude float64
	Date                time.Time
	MaxExpectedHeight   float64

	Pressure, Temperature, SpeedOfSound, Density *function.Function
	WindSpeed, WindHeading                       *function.Function
	WindVelocityX, WindVelocityY                 *function.Function
}

// NewEnvironment returns an Environment with the standard atmosphere.
func NewEnvironment(conf EnvironmentConfig) (*Environment, error) {
	if conf.RailLength <= 0 {
		return nil, fmt.Errorf("%w: rail length must be positive", ErrInvalidConfig)
	}
	if conf.Gravity == 0 {
		conf.Gravity = defaultGravity
	}
	if conf.Wind.Speed == nil || conf.Wind.Heading == nil {
		conf.Wind = ConstantWind(0, 0)
	}
	e := &Environment{RailLength: conf.RailLength, Gravity: conf.Gravity, Latitude: conf.Latitude,
		Longitude: conf.Longitude, Date: conf.Date, MaxExpectedHeight: 1000}
	e.Pressure = labelled(function.NewFromCallable(standardPressure), "Altitude (m)", "Pressure (Pa)")
	e.Temperature = labelled(function.NewFromCallable(standardTemperature), "Altitude (m)", "Temperature (K)")
	e.SpeedOfSound = labelled(function.NewFromCallable(func(z float64) float64 {
		return math.Sqrt(gammaR * standardTemperature(z))
	}), "Altitude (m)", "Speed of Sound (m/s)")
	e.Density = labelled(function.NewFromCallable(func(z float64) float64 {
		return standardPressure(z) / (airGasConstant * standardTemperature(z))
	}), "Altitude (m)", "Density (kg/m³)")
	e.setWind(conf.Wind)
	return e, nil
}

func standardPressure(z float64) float64 {
	k := z / 1000
	return PressureSL * math.Exp(-0.118*k-(0.0015*k*k)/(1-0.018*k+0.0011*k*k))
}

func standardTemperature(z float64) float64 {
	k := z / 1000
	return 216.65 + 2*math.Log(1+math.Exp(35.75-3.25*k)+math.Exp(-3+0.0003*k*k*k))
}

func (e *Environment) setWind(w Wind) {
	e.WindSpeed = labelled(w.Speed, "Height (m)", "Wind Speed (m/s)")
	e.WindHeading = labelled(w.Heading, "Height (m)", "Wind Heading (deg)")
	sin := w.Heading.Map(func(h float64) float64 { return math.Sin(Deg2rad(h)) })
	cos := w.Heading.Map(func(h float64) float64 { return math.Cos(Deg2rad(h)) })
	e.WindVelocityX = labelled(w.Speed.Mul(sin), "Height (m)", "Wind Velocity X (m/s)")
	e.WindVelocityY = labelled(w.Speed.Mul(cos), "Height (m)", "Wind Velocity Y (m/s)")
	if _, hi, ok := w.Speed.Domain(); ok {
		e.MaxExpectedHeight = hi
	}
}

// AddWindGust adds velocity components, as functions of altitude, to the
// current wind. Speed and heading are recomputed from the new components.
func (e *Environment) AddWindGust(gustX, gustY *function.Function) {
	wx := e.WindVelocityX.Add(gustX)
	wy := e.WindVelocityY.Add(gustY)
	e.WindVelocityX = labelled(wx, "Height (m)", "Wind Velocity X (m/s)")
	e.WindVelocityY = labelled(wy, "Height (m)", "Wind Velocity Y (m/s)")
	e.WindHeading = labelled(function.NewFromCallable(func(h float64) float64 {
		return math.Mod(Rad2deg(math.Atan2(wx.Value(h), wy.Value(h)))+360, 360)
	}), "Height (m)", "Wind Heading (deg)")
	e.WindSpeed = labelled(function.NewFromCallable(func(h float64) float64 {
		return math.Hypot(wx.Value(h), wy.Value(h))
	}), "Height (m)", "Wind Speed (m/s)")
}

// SetDate sets the launch date.
func (e *Environment) SetDate(date time.Time) {
	e.Date = date.UTC()
}

// LaunchJD returns the Julian date of the launch, or zero if no date is set.
func (e *Environment) LaunchJD() float64 {
	if e.Date.IsZero() {
		return 0
	}
	return julian.TimeToJD(e.Date)
}

// SiteECEF returns the Earth fixed position of the launch site in meters, on
// the IAU 1976 ellipsoid.
func (e *Environment) SiteECEF() []float64 {
	s, c := globe.Earth76.ParallaxConstants(sunit.AngleFromDeg(e.Latitude), 0)
	sλ, cλ := math.Sincos(e.Longitude * math.Pi / 180)
	er := globe.Earth76.Er * 1e3
	return []float64{er * c * cλ, er * c * sλ, er * s}
}

// LaunchToECEF returns the rotation from the launch frame (x East, y North,
// z up) to the Earth fixed frame.
func (e *Environment) LaunchToECEF() *mat.Dense {
	sφ, cφ := math.Sincos(e.Latitude * math.Pi / 180)
	sλ, cλ := math.Sincos(e.Longitude * math.Pi / 180)
	return mat.NewDense(3, 3, []float64{
		-sλ, -sφ * cλ, cφ * cλ,
		cλ, -sφ * sλ, cφ * sλ,
		0, cφ, sφ})
}

func (e *Environment) String() string {
	return fmt.Sprintf("rail=%.2f m; g=%.4f m/s²; site=(%.6f, %.6f); date=%s", e.RailLength, e.Gravity, e.Latitude, e.Longitude, e.Date.Format(time.RFC3339))
}

func labelled(f *function.Function, inputs, outputs string) *function.Function {
	f.Inputs, f.Outputs = inputs, outputs
	return f
}
