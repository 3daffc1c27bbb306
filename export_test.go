package sixdof

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestExportSolution(t *testing.T) {
	env := testEnvironment(t, 5.2)
	env.SetDate(time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC))
	conf := DefaultFlightConfig()
	conf.TerminateOnApogee = true
	f, err := NewFlight(calisto(t, false), env, conf)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	dir := t.TempDir()
	if _, err := ExportSolution(f, ExportConfig{CSV: true, OutputDir: dir}); !errors.Is(err, ErrNotSimulated) {
		t.Fatalf("expected ErrNotSimulated, got %v", err)
	}
	f = simulate(t, calisto(t, false), env, conf)
	if err := f.PostProcess(); err != nil {
		t.Fatalf("err %s", err)
	}
	if files, err := ExportSolution(f, ExportConfig{OutputDir: dir}); err != nil || len(files) != 0 {
		t.Fatalf("useless export wrote %v (%v)", files, err)
	}

	exp := ExportConfig{Filename: "test", OutputDir: dir, CSV: true, JSON: true, Cosmo: true,
		CSVAppendHdr: func() []string { return []string{"stage"} },
		CSVAppend:    func(t float64, u State) []string { return []string{"1"} }}
	files, err := ExportSolution(f, exp)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if len(files) != 4 {
		t.Fatalf("expected 4 files, got %v", files)
	}

	fh, err := os.Open(filepath.Join(dir, "flight-test.csv"))
	if err != nil {
		t.Fatalf("err %s", err)
	}
	defer fh.Close()
	r := csv.NewReader(fh)
	r.Comment = '#'
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if len(records) != len(f.Solution)+1 {
		t.Fatalf("expected %d records, got %d", len(f.Solution)+1, len(records))
	}
	if hdr := records[0]; len(hdr) != 18 || hdr[0] != "time" || hdr[15] != "speed" || hdr[17] != "stage" {
		t.Fatalf("unexpected header %v", hdr)
	}
	if last := records[len(records)-1]; last[17] != "1" || !strings.HasPrefix(last[1], "24604") {
		t.Fatalf("unexpected last record %v", last)
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary-test.json"))
	if err != nil {
		t.Fatalf("err %s", err)
	}
	var s FlightSummary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("err %s", err)
	}
	if s.ID != f.ID.String() || s.Apogee == nil || *s.Apogee != f.Apogee || s.ImpactTime != nil {
		t.Fatalf("unexpected summary %+v", s)
	}

	data, err = os.ReadFile(filepath.Join(dir, "catalog-test.json"))
	if err != nil {
		t.Fatalf("err %s", err)
	}
	var c CgCatalog
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("err %s", err)
	}
	if len(c.Items) != 1 || c.Items[0].Trajectory.Source != "prop-test.xyzv" {
		t.Fatalf("unexpected catalog %+v", c)
	}
	data, err = os.ReadFile(filepath.Join(dir, "prop-test.xyzv"))
	if err != nil {
		t.Fatalf("err %s", err)
	}
	var states int
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 7 {
			t.Fatalf("malformed state %q", line)
		}
		var r [3]float64
		for i := range r {
			if r[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
				t.Fatalf("err %s", err)
			}
		}
		// The pad is on the equator at the prime meridian: up is along x.
		if states == 0 && (!scalar.EqualWithinAbs(r[0], 6378.14, 1e-6) || r[1] != 0 || r[2] != 0) {
			t.Fatalf("first state should be on the launch site, got %v", r)
		}
		if d := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2]); d < 6378.14-1e-6 {
			t.Fatalf("state %d is below the surface of the Earth: %f km from its center", states, d)
		}
		states++
	}
	if states != len(f.Solution) {
		t.Fatalf("expected %d interpolated states, got %d", len(f.Solution), states)
	}
}

func TestCgTrajectoryValidate(t *testing.T) {
	if err := (&CgTrajectory{Type: "InterpolatedStates", Source: "prop.xyzv"}).Validate(); err != nil {
		t.Fatalf("err %s", err)
	}
	if err := (&CgTrajectory{Type: "Builtin", Source: "prop.xyzv"}).Validate(); err == nil {
		t.Fatal("only interpolated states are supported")
	}
	if err := (&CgTrajectory{Type: "InterpolatedStates", Source: "prop.csv"}).Validate(); err == nil {
		t.Fatal("interpolated states must be read from an xyzv file")
	}
}
