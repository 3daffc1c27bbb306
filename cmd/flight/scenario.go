package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChristopherRabotin/sixdof"
	"github.com/ChristopherRabotin/sixdof/function"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/viper"
)

// scenario is a launch described by a TOML file.
type scenario struct {
	env    *sixdof.Environment
	rocket *sixdof.Rocket
	conf   sixdof.FlightConfig
	export sixdof.ExportConfig
}

func setDefaults(v *viper.Viper) {
	def := sixdof.DefaultFlightConfig()
	v.SetDefault("flight.inclination", def.Inclination)
	v.SetDefault("flight.heading", def.Heading)
	v.SetDefault("flight.max_time", def.MaxTime)
	v.SetDefault("flight.rtol", def.RTol)
	v.SetDefault("flight.time_overshoot", def.TimeOvershoot)
	v.SetDefault("environment.gravity", 9.8)
	v.SetDefault("motor.kind", "solid")
	v.SetDefault("motor.interpolation", "linear")
	v.SetDefault("export.csv", true)
	v.SetDefault("export.json", true)
}

// loadScenario reads the scenario from the viper instance.
func loadScenario(v *viper.Viper) (*scenario, error) {
	setDefaults(v)
	s := &scenario{}
	var err error
	if s.env, err = readEnvironment(v); err != nil {
		return nil, err
	}
	motor, err := readMotor(v)
	if err != nil {
		return nil, err
	}
	if s.rocket, err = readRocket(v, motor); err != nil {
		return nil, err
	}
	s.conf = sixdof.DefaultFlightConfig()
	s.conf.Inclination = v.GetFloat64("flight.inclination")
	s.conf.Heading = v.GetFloat64("flight.heading")
	s.conf.MaxTime = v.GetFloat64("flight.max_time")
	s.conf.RTol = v.GetFloat64("flight.rtol")
	s.conf.TerminateOnApogee = v.GetBool("flight.terminate_on_apogee")
	s.conf.TimeOvershoot = v.GetBool("flight.time_overshoot")
	if v.IsSet("flight.max_step") {
		s.conf.MaxTimeStep = v.GetFloat64("flight.max_step")
	}
	s.conf.MinTimeStep = v.GetFloat64("flight.min_step")
	s.export = sixdof.ExportConfig{
		Filename:  v.GetString("export.filename"),
		CSV:       v.GetBool("export.csv"),
		JSON:      v.GetBool("export.json"),
		Cosmo:     v.GetBool("export.cosmo"),
		Timestamp: v.GetBool("export.timestamp"),
	}
	return s, nil
}

func readEnvironment(v *viper.Viper) (*sixdof.Environment, error) {
	conf := sixdof.EnvironmentConfig{
		RailLength: v.GetFloat64("environment.rail_length"),
		Gravity:    v.GetFloat64("environment.gravity"),
		Latitude:   v.GetFloat64("environment.latitude"),
		Longitude:  v.GetFloat64("environment.longitude"),
		Wind:       sixdof.ConstantWind(v.GetFloat64("environment.wind_speed"), v.GetFloat64("environment.wind_heading")),
	}
	if v.IsSet("environment.wind_profile") {
		rows, err := readRows(v, "environment.wind_profile", 3)
		if err != nil {
			return nil, err
		}
		profile := make([][3]float64, len(rows))
		for i, r := range rows {
			profile[i] = [3]float64{r[0], r[1], r[2]}
		}
		if conf.Wind, err = sixdof.WindProfile(profile); err != nil {
			return nil, err
		}
	}
	if v.IsSet("environment.date") {
		conf.Date = confReadJDEorTime(v, "environment.date")
	}
	return sixdof.NewEnvironment(conf)
}

func readMotor(v *viper.Viper) (sixdof.Motor, error) {
	thrust, err := readThrust(v)
	if err != nil {
		return nil, err
	}
	interp := function.Linear
	if v.GetString("motor.interpolation") == "spline" {
		interp = function.Spline
	}
	var reshape *sixdof.ThrustReshape
	if v.IsSet("motor.reshape_burn_time") {
		reshape = &sixdof.ThrustReshape{BurnTime: v.GetFloat64("motor.reshape_burn_time"), TotalImpulse: v.GetFloat64("motor.reshape_impulse")}
	}
	switch kind := v.GetString("motor.kind"); kind {
	case "solid":
		return sixdof.NewSolidMotor(sixdof.SolidMotorConfig{
			Thrust:                  thrust,
			BurnOut:                 v.GetFloat64("motor.burn_out"),
			GrainNumber:             v.GetInt("motor.grain_number"),
			GrainDensity:            v.GetFloat64("motor.grain_density"),
			GrainOuterRadius:        v.GetFloat64("motor.grain_outer_radius"),
			GrainInitialInnerRadius: v.GetFloat64("motor.grain_initial_inner_radius"),
			GrainInitialHeight:      v.GetFloat64("motor.grain_initial_height"),
			GrainSeparation:         v.GetFloat64("motor.grain_separation"),
			NozzleRadius:            v.GetFloat64("motor.nozzle_radius"),
			ThroatRadius:            v.GetFloat64("motor.throat_radius"),
			Reshape:                 reshape,
			Interpolation:           interp,
		})
	case "liquid":
		burnOut := v.GetFloat64("motor.burn_out")
		m, err := sixdof.NewLiquidMotor(sixdof.LiquidMotorConfig{
			Thrust:        thrust,
			BurnOut:       burnOut,
			NozzleRadius:  v.GetFloat64("motor.nozzle_radius"),
			Reshape:       reshape,
			Interpolation: interp,
		})
		if err != nil {
			return nil, err
		}
		for i := 0; v.IsSet(fmt.Sprintf("motor.tanks.%d", i)); i++ {
			key := fmt.Sprintf("motor.tanks.%d", i)
			if err := m.AddTank(drainingTank(v.GetString(key+".name"), v.GetFloat64(key+".mass"), burnOut), v.GetFloat64(key+".position")); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown motor kind `%s`", kind)
	}
}

// drainingTank returns a tank emptied at a constant rate during the burn.
func drainingTank(name string, mass, burnOut float64) sixdof.Tank {
	rate := mass / burnOut
	return sixdof.Tank{
		Name: name,
		Mass: function.NewFromCallable(func(t float64) float64 {
			if t >= burnOut {
				return 0
			}
			return mass - rate*t
		}),
		MassFlowRate: function.NewFromCallable(func(t float64) float64 {
			if t >= burnOut {
				return 0
			}
			return -rate
		}),
	}
}

func readThrust(v *viper.Viper) (sixdof.ThrustSource, error) {
	if v.IsSet("motor.thrust_constant") {
		return sixdof.ConstantThrust(v.GetFloat64("motor.thrust_constant")), nil
	}
	rows, err := readRows(v, "motor.thrust", 2)
	if err != nil {
		return sixdof.ThrustSource{}, err
	}
	return sixdof.ThrustSource{Points: pairs(rows)}, nil
}

func readRocket(v *viper.Viper, motor sixdof.Motor) (*sixdof.Rocket, error) {
	offRows, err := readRows(v, "rocket.power_off_drag", 2)
	if err != nil {
		return nil, err
	}
	powerOff, err := sixdof.DragCurve(pairs(offRows))
	if err != nil {
		return nil, err
	}
	powerOn := powerOff
	if v.IsSet("rocket.power_on_drag") {
		onRows, err := readRows(v, "rocket.power_on_drag", 2)
		if err != nil {
			return nil, err
		}
		if powerOn, err = sixdof.DragCurve(pairs(onRows)); err != nil {
			return nil, err
		}
	}
	r, err := sixdof.NewRocket(motor,
		v.GetFloat64("rocket.mass"),
		v.GetFloat64("rocket.inertia_i"),
		v.GetFloat64("rocket.inertia_z"),
		v.GetFloat64("rocket.radius"),
		v.GetFloat64("rocket.distance_nozzle"),
		v.GetFloat64("rocket.distance_propellant"),
		powerOff, powerOn)
	if err != nil {
		return nil, err
	}
	if v.IsSet("nose") {
		r.AddNose(v.GetFloat64("nose.length"), v.GetString("nose.kind"), v.GetFloat64("nose.distance"))
	}
	if v.IsSet("fins") {
		if _, err := r.AddFins(v.GetInt("fins.n"), v.GetFloat64("fins.span"), v.GetFloat64("fins.root_chord"),
			v.GetFloat64("fins.tip_chord"), v.GetFloat64("fins.distance"), v.GetFloat64("fins.radius")); err != nil {
			return nil, err
		}
	}
	if v.IsSet("tail") {
		if _, err := r.AddTail(v.GetFloat64("tail.top_radius"), v.GetFloat64("tail.bottom_radius"),
			v.GetFloat64("tail.length"), v.GetFloat64("tail.distance")); err != nil {
			return nil, err
		}
	}
	if v.IsSet("eccentricity") {
		r.SetCPEccentricity(v.GetFloat64("eccentricity.cp_x"), v.GetFloat64("eccentricity.cp_y"))
		r.SetThrustEccentricity(v.GetFloat64("eccentricity.thrust_x"), v.GetFloat64("eccentricity.thrust_y"))
	}
	for i := 0; v.IsSet(fmt.Sprintf("parachutes.%d", i)); i++ {
		key := fmt.Sprintf("parachutes.%d", i)
		trigger, err := parseTrigger(v.GetString(key + ".trigger"))
		if err != nil {
			return nil, fmt.Errorf("parachute %d: %w", i, err)
		}
		var noise sixdof.Noise
		if v.IsSet(key + ".noise") {
			n := v.GetStringSlice(key + ".noise")
			vals, err := parseFloats(n, 3)
			if err != nil {
				return nil, fmt.Errorf("parachute %d noise: %w", i, err)
			}
			noise = sixdof.Noise{Bias: vals[0], Deviation: vals[1], Correlation: vals[2]}
		}
		if _, err := r.AddParachute(sixdof.ParachuteConfig{
			Name:         v.GetString(key + ".name"),
			CdS:          v.GetFloat64(key + ".cds"),
			Trigger:      trigger,
			SamplingRate: v.GetFloat64(key + ".sampling_rate"),
			Lag:          v.GetFloat64(key + ".lag"),
			Noise:        noise,
			Seed:         uint64(v.GetInt64(key + ".seed")),
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// parseTrigger returns the trigger function for the provided name.
func parseTrigger(name string) (sixdof.Trigger, error) {
	switch {
	case name == "descending":
		return func(p float64, u sixdof.State) bool { return u.Vz() < 0 }, nil
	case strings.HasPrefix(name, "descending_below:"):
		alt, err := strconv.ParseFloat(strings.TrimPrefix(name, "descending_below:"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid trigger altitude in `%s`: %w", name, err)
		}
		return func(p float64, u sixdof.State) bool { return u.Vz() < 0 && u.Z() < alt }, nil
	case name == "never":
		return func(p float64, u sixdof.State) bool { return false }, nil
	default:
		return nil, fmt.Errorf("unknown trigger `%s`", name)
	}
}

// readRows reads an array of arrays of numbers of the provided width.
func readRows(v *viper.Viper, key string, width int) ([][]float64, error) {
	raw, ok := v.Get(key).([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("`%s` must be a non empty array", key)
	}
	rows := make([][]float64, len(raw))
	for i, r := range raw {
		items, ok := r.([]interface{})
		if !ok || len(items) != width {
			return nil, fmt.Errorf("`%s` row %d must have %d values", key, i, width)
		}
		strs := make([]string, width)
		for j, item := range items {
			strs[j] = fmt.Sprint(item)
		}
		vals, err := parseFloats(strs, width)
		if err != nil {
			return nil, fmt.Errorf("`%s` row %d: %w", key, i, err)
		}
		rows[i] = vals
	}
	return rows, nil
}

func parseFloats(strs []string, n int) ([]float64, error) {
	if len(strs) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(strs))
	}
	vals := make([]float64, n)
	for i, s := range strs {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = f
	}
	return vals, nil
}

func pairs(rows [][]float64) [][2]float64 {
	out := make([][2]float64, len(rows))
	for i, r := range rows {
		out[i] = [2]float64{r[0], r[1]}
	}
	return out
}

func confReadJDEorTime(v *viper.Viper, key string) (dt time.Time) {
	jde := v.GetFloat64(key)
	if jde == 0 {
		dt = v.GetTime(key)
	} else {
		dt = julian.JDToTime(jde)
	}
	return
}
