package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/ChristopherRabotin/sixdof"
	kitlog "github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

// This code reads a launch scenario, simulates the flight and exports it.

const defaultScenario = "~~unset~~"

var (
	scenarioName string
	metricsAddr  string
	verbose      bool
)

func init() {
	flag.StringVar(&scenarioName, "scenario", defaultScenario, "flight scenario TOML file")
	flag.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address while simulating (e.g. :9090)")
	flag.BoolVar(&verbose, "verbose", false, "really verbose (esp. for configuration)")
}

func main() {
	flag.Parse()
	if scenarioName == defaultScenario {
		log.Fatal("no scenario provided")
	}
	out, err := sixdof.LoadOutputConfig()
	if err != nil {
		log.Fatalf("%s", err)
	}
	if verbose {
		out.LogLevel = "debug"
	}
	logger := out.Logger()

	scenarioName = strings.Replace(scenarioName, ".toml", "", 1)
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName(scenarioName)
	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("./%s.toml: Error %s", scenarioName, err)
	}
	s, err := loadScenario(v)
	if err != nil {
		log.Fatalf("./%s.toml: %s", scenarioName, err)
	}
	logger.Log("level", "debug", "subsys", "conf", "message", "scenario loaded", "env", s.env, "rocket", s.rocket)

	reg := prometheus.NewRegistry()
	metrics, err := sixdof.NewMetrics(reg)
	if err != nil {
		log.Fatalf("metrics: %s", err)
	}
	if metricsAddr != "" {
		go serveMetrics(logger, reg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s.conf.Logger = logger
	s.conf.Metrics = metrics
	f, err := sixdof.NewFlight(s.rocket, s.env, s.conf)
	if err != nil {
		log.Fatalf("%s", err)
	}
	if err := f.Simulate(ctx); err != nil {
		log.Fatalf("simulation failed: %s", err)
	}
	if err := f.PostProcess(); err != nil {
		log.Fatalf("post-processing failed: %s", err)
	}
	summary, err := f.Summary()
	if err != nil {
		log.Fatalf("%s", err)
	}
	logger.Log("level", "notice", "subsys", "flight", "message", "summary",
		"out_of_rail_time", summary.OutOfRailTime, "out_of_rail_velocity", summary.OutOfRailVelocity,
		"apogee", deref(summary.Apogee), "apogee_time", deref(summary.ApogeeTime),
		"impact_time", deref(summary.ImpactTime), "parachutes", len(summary.Parachutes),
		"steps", summary.Steps, "evaluations", summary.Evaluations)

	s.export.OutputDir = out.OutputDir
	if s.export.Filename == "" {
		s.export.Filename = scenarioName
	}
	if _, err := sixdof.ExportSolution(f, s.export); err != nil {
		log.Fatalf("export failed: %s", err)
	}
}

func serveMetrics(logger kitlog.Logger, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Log("level", "info", "subsys", "metrics", "message", "serving metrics", "addr", metricsAddr)
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		logger.Log("level", "warning", "subsys", "metrics", "message", "metrics server stopped", "err", err)
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
