package sixdof

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 86400

// ExportConfig configures the exporting of a simulated flight.
type ExportConfig struct {
	Filename  string
	OutputDir string // Defaults to the output path of LoadOutputConfig.
	Cosmo     bool   // Cosmographia interpolated states and catalog.
	CSV       bool
	JSON      bool
	Timestamp bool
	// CSVAppend returns extra columns for a solution point (do not include a
	// leading comma), with CSVAppendHdr returning their header.
	CSVAppend    func(t float64, u State) []string
	CSVAppendHdr func() []string
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return !c.Cosmo && !c.CSV && !c.JSON
}

func (c ExportConfig) path(prefix, ext string) string {
	name := fmt.Sprintf("%s-%s", prefix, c.Filename)
	if c.Timestamp {
		t := time.Now()
		name = fmt.Sprintf("%s-%d-%02d-%02dT%02d.%02d.%02d", name, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	return filepath.Join(c.OutputDir, name+"."+ext)
}

// CgCatalog definition.
type CgCatalog struct {
	Version string     `json:"version"`
	Name    string     `json:"name"`
	Items   []*CgItems `json:"items"`
	Require []string   `json:"require,omitempty"`
}

// CgItems definition.
type CgItems struct {
	Class           string            `json:"class"`
	Name            string            `json:"name"`
	StartTime       string            `json:"startTime"`
	EndTime         string            `json:"endTime"`
	Center          string            `json:"center"`
	TrajectoryFrame string            `json:"trajectoryFrame"`
	Trajectory      *CgTrajectory     `json:"trajectory,omitempty"`
	Label           *CgLabel          `json:"label,omitempty"`
	TrajectoryPlot  *CgTrajectoryPlot `json:"trajectoryPlot,omitempty"`
}

// CgTrajectory definition.
type CgTrajectory struct {
	Type   string `json:"type,omitempty"`
	Source string `json:"source,omitempty"`
}

// Validate validates a CgTrajectory.
func (t *CgTrajectory) Validate() error {
	if t.Type != "InterpolatedStates" || !strings.HasSuffix(t.Source, "xyzv") {
		return errors.New("only InterpolatedStates are currently supported in Cosmographia trajectory types")
	}
	return nil
}

// CgLabel definition.
type CgLabel struct {
	Color    []float64 `json:"color,omitempty"`
	FadeSize int       `json:"fadeSize,omitempty"`
	ShowText bool      `json:"showText,omitempty"`
}

// CgTrajectoryPlot definition.
type CgTrajectoryPlot struct {
	Color       []float64 `json:"color,omitempty"`
	LineWidth   int       `json:"lineWidth,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	Lead        string    `json:"lead,omitempty"`
	Fade        int       `json:"fade,omitempty"`
	SampleCount int       `json:"sampleCount,omitempty"`
}

// CgInterpolatedState is a record of a Cosmographia xyzv file. Positions are
// in km and velocities in km/s.
type CgInterpolatedState struct {
	JD       float64
	Position []float64
	Velocity []float64
}

// ToText converts to text for written output.
func (i *CgInterpolatedState) ToText() string {
	return fmt.Sprintf("%f %f %f %f %f %f %f", i.JD, i.Position[0], i.Position[1], i.Position[2], i.Velocity[0], i.Velocity[1], i.Velocity[2])
}

// FlightSummary is the JSON summary of a simulated flight.
type FlightSummary struct {
	ID                string             `json:"id"`
	Rocket            string             `json:"rocket"`
	LaunchJD          float64            `json:"launchJD,omitempty"`
	OutOfRailTime     float64            `json:"outOfRailTime"`
	OutOfRailVelocity float64            `json:"outOfRailVelocity"`
	ApogeeTime        *float64           `json:"apogeeTime,omitempty"`
	Apogee            *float64           `json:"apogee,omitempty"`
	ApogeeX           *float64           `json:"apogeeX,omitempty"`
	ApogeeY           *float64           `json:"apogeeY,omitempty"`
	ImpactTime        *float64           `json:"impactTime,omitempty"`
	XImpact           *float64           `json:"xImpact,omitempty"`
	YImpact           *float64           `json:"yImpact,omitempty"`
	ImpactVelocity    *float64           `json:"impactVelocity,omitempty"`
	Parachutes        []ParachuteSummary `json:"parachutes,omitempty"`
	MaxVelocity       *float64           `json:"maxVelocity,omitempty"`
	MaxAcceleration   *float64           `json:"maxAcceleration,omitempty"`
	FinalTime         float64            `json:"finalTime"`
	Steps             int                `json:"steps"`
	Evaluations       int                `json:"evaluations"`
}

// ParachuteSummary is the trigger of a parachute in a FlightSummary.
type ParachuteSummary struct {
	Name string  `json:"name"`
	T    float64 `json:"t"`
}

// Summary returns the events of a simulated flight.
func (f *Flight) Summary() (FlightSummary, error) {
	if !f.simulated {
		return FlightSummary{}, ErrNotSimulated
	}
	s := FlightSummary{ID: f.ID.String(), Rocket: f.Rocket.String(), LaunchJD: f.Env.LaunchJD(), FinalTime: f.TFinal, Steps: len(f.TimeSteps)}
	if n := len(f.FunctionEvaluations); n > 0 {
		s.Evaluations = f.FunctionEvaluations[n-1]
	}
	if f.OutOfRail {
		s.OutOfRailTime, s.OutOfRailVelocity = f.OutOfRailTime, f.OutOfRailVelocity
	}
	if f.ApogeeReached {
		s.ApogeeTime, s.Apogee, s.ApogeeX, s.ApogeeY = ptr(f.ApogeeTime), ptr(f.Apogee), ptr(f.ApogeeX), ptr(f.ApogeeY)
	}
	if f.Impacted {
		s.ImpactTime, s.XImpact, s.YImpact, s.ImpactVelocity = ptr(f.ImpactTime), ptr(f.XImpact), ptr(f.YImpact), ptr(f.ImpactVelocity)
	}
	for _, e := range f.ParachuteEvents {
		s.Parachutes = append(s.Parachutes, ParachuteSummary{e.Parachute.Name, e.T})
	}
	if f.post != nil {
		s.MaxVelocity, s.MaxAcceleration = ptr(f.post.MaxVelocity), ptr(f.post.MaxAcceleration)
	}
	return s, nil
}

func ptr(v float64) *float64 { return &v }

// ExportSolution writes the solution of a simulated flight as configured and
// returns the names of the written files.
func ExportSolution(f *Flight, conf ExportConfig) ([]string, error) {
	if !f.simulated {
		return nil, ErrNotSimulated
	}
	if conf.IsUseless() {
		return nil, nil
	}
	if conf.Filename == "" {
		conf.Filename = f.ID.String()
	}
	if conf.OutputDir == "" {
		out, err := LoadOutputConfig()
		if err != nil {
			return nil, err
		}
		conf.OutputDir = out.OutputDir
	}
	var written []string
	if conf.CSV {
		name := conf.path("flight", "csv")
		if err := writeFile(name, func(w io.Writer) error { return WriteCSV(w, f, conf) }); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	if conf.Cosmo {
		name := conf.path("prop", "xyzv")
		if err := writeFile(name, func(w io.Writer) error { return WriteInterpolatedStates(w, f) }); err != nil {
			return written, err
		}
		written = append(written, name)
		catalog := conf.path("catalog", "json")
		if err := writeFile(catalog, func(w io.Writer) error { return writeCatalog(w, f, filepath.Base(name)) }); err != nil {
			return written, err
		}
		written = append(written, catalog)
	}
	if conf.JSON {
		name := conf.path("summary", "json")
		if err := writeFile(name, func(w io.Writer) error {
			s, err := f.Summary()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	f.logger.Log("level", "info", "subsys", "export", "message", "flight exported", "files", strings.Join(written, ","))
	return written, nil
}

func writeFile(name string, write func(w io.Writer) error) error {
	fh, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := write(fh); err != nil {
		fh.Close()
		return fmt.Errorf("export %s: %w", name, err)
	}
	return fh.Close()
}

// WriteCSV writes one record per solution point: time, Julian date and the
// state. Speed and acceleration magnitudes are appended once post-processed.
func WriteCSV(w io.Writer, f *Flight, conf ExportConfig) error {
	if _, err := fmt.Fprintf(w, "# Creation date (UTC): %s\n# Flight %s\n# Positions in m, velocities in m/s, angular velocities in rad/s\n", time.Now().UTC(), f.ID); err != nil {
		return err
	}
	hdr := []string{"time", "jd", "x", "y", "z", "vx", "vy", "vz", "e0", "e1", "e2", "e3", "w1", "w2", "w3"}
	if f.post != nil {
		hdr = append(hdr, "speed", "acceleration")
	}
	if conf.CSVAppendHdr != nil {
		hdr = append(hdr, conf.CSVAppendHdr()...)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(hdr); err != nil {
		return err
	}
	launchJD := f.Env.LaunchJD()
	for k, pt := range f.Solution {
		record := make([]string, 0, len(hdr))
		record = append(record, formatFloat(pt.T), formatFloat(launchJD+pt.T/secondsPerDay))
		for _, v := range pt.State {
			record = append(record, formatFloat(v))
		}
		if f.post != nil {
			record = append(record, formatFloat(f.post.speed[k]), formatFloat(f.post.accn[k]))
		}
		if conf.CSVAppend != nil {
			record = append(record, conf.CSVAppend(pt.T, pt.State)...)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// WriteInterpolatedStates writes the trajectory as Cosmographia interpolated
// states, in the Earth fixed frame.
func WriteInterpolatedStates(w io.Writer, f *Flight) error {
	launch := f.Env.Date
	if launch.IsZero() {
		launch = time.Now().UTC()
	}
	if _, err := fmt.Fprintf(w, `# Creation date (UTC): %s
# Records are <jd> <x> <y> <z> <vel x> <vel y> <vel z>
#   Time is a Julian date
#   Position in km
#   Velocity in km/sec
#   Simulation time start (UTC): %s
`, time.Now().UTC(), launch.UTC()); err != nil {
		return err
	}
	launchJD := f.Env.LaunchJD()
	site, rot := f.Env.SiteECEF(), f.Env.LaunchToECEF()
	for _, pt := range f.Solution {
		r := MxV33(rot, pt.State.Position())
		v := MxV33(rot, pt.State.Velocity())
		for i := range r {
			r[i] = (r[i] + site[i]) / 1e3
			v[i] /= 1e3
		}
		rec := CgInterpolatedState{JD: launchJD + pt.T/secondsPerDay, Position: r, Velocity: v}
		if _, err := fmt.Fprintln(w, rec.ToText()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "# Simulation time end (UTC): %s\n", launch.Add(time.Duration(f.TFinal*float64(time.Second))).UTC())
	return err
}

func writeCatalog(w io.Writer, f *Flight, source string) error {
	launch := f.Env.Date
	if launch.IsZero() {
		launch = time.Now().UTC()
	}
	end := launch.Add(time.Duration(f.TFinal * float64(time.Second)))
	traj := &CgTrajectory{Type: "InterpolatedStates", Source: source}
	if err := traj.Validate(); err != nil {
		return err
	}
	color := []float64{0.6, 1, 1}
	item := &CgItems{Class: "spacecraft", Name: f.ID.String(), StartTime: launch.UTC().String(), EndTime: end.UTC().String(),
		Center: "Earth", TrajectoryFrame: "EarthFixed", Trajectory: traj,
		Label:          &CgLabel{Color: color, FadeSize: 1000000, ShowText: true},
		TrajectoryPlot: &CgTrajectoryPlot{Color: color, LineWidth: 1, Duration: fmt.Sprintf("%.0f s", f.TFinal), Lead: "0 d", SampleCount: 10}}
	c := CgCatalog{Version: "1.0", Name: f.ID.String(), Items: []*CgItems{item}}
	marsh, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(marsh)
	return err
}
