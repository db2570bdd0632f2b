// Command forecast runs one forecast of the plant and prints the result as
// JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"ecocontrol/internal/config"
	"ecocontrol/internal/forecast"
	"ecocontrol/internal/ingest"
	"ecocontrol/internal/logging"
	"ecocontrol/internal/optimizer"
	"ecocontrol/internal/simulator"
	"ecocontrol/internal/store"
	"ecocontrol/internal/weather"
)

type options struct {
	hours        float64
	start        int64
	stepSize     int64
	autoOptimize bool
	codeFile     string

	csvPath     string
	separator   string
	timeColumn  string
	valueColumn string
	scale       float64
	sph         int
}

type output struct {
	Demand   *demandInfo               `json:"demand,omitempty"`
	Decision *simulator.Decision       `json:"last_decision,omitempty"`
	Balance  float64                   `json:"total_balance"`
	Result   *simulator.ForecastResult `json:"forecast"`
}

type demandInfo struct {
	From       time.Time           `json:"from"`
	To         time.Time           `json:"to"`
	Parameters [7]forecast.FitInfo `json:"parameters"`
}

func main() {
	var opts options
	configPath := flag.String("config", "", "path to JSON configuration file")
	flag.Float64Var(&opts.hours, "hours", 24, "forecast horizon in hours")
	flag.Int64Var(&opts.start, "start", simulator.DefaultInitialTime, "start time as Unix seconds")
	flag.Int64Var(&opts.stepSize, "step", simulator.DefaultStepSize, "simulated seconds per tick")
	flag.BoolVar(&opts.autoOptimize, "optimize", false, "enable hourly auto-optimization of the cogeneration unit")
	flag.StringVar(&opts.codeFile, "code", "", "file with user control code")
	flag.StringVar(&opts.csvPath, "csv", "", "electrical demand history CSV")
	flag.StringVar(&opts.separator, "separator", "\t", "CSV field separator")
	flag.StringVar(&opts.timeColumn, "time-column", "Datum", "CSV timestamp column")
	flag.StringVar(&opts.valueColumn, "value-column", "Strom - Verbrauchertotal (Aktuell)", "CSV demand column")
	flag.Float64Var(&opts.scale, "scale", 0.001, "factor applied to demand values, 0.001 converts W to kW")
	flag.IntVar(&opts.sph, "samples-per-hour", 1, "resampling rate of the demand history")
	flag.Parse()

	cfg, err := config.Load(*configPath, "")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var repo simulator.Definition = store.NewMemory(store.DefaultScenario())
	if cfg.PostgresDSN != "" {
		pg, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer pg.Close()
		repo = pg
	}

	var provider weather.Provider
	if cfg.Weather.Enabled {
		provider = weather.NewClient(cfg.Weather.UserAgent, cfg.Weather.Location, weather.DefaultHistory(), logger)
	}

	if err := run(ctx, repo, provider, opts, os.Stdout, logger); err != nil {
		logger.Error("forecast failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, repo simulator.Definition, provider weather.Provider, opts options, w io.Writer, logger *slog.Logger) error {
	if opts.hours <= 0 {
		return fmt.Errorf("hours must be positive, got %g", opts.hours)
	}

	var out output
	var demand simulator.DemandSource
	if opts.csvPath != "" {
		fc, err := trainDemand(opts, logger)
		if err != nil {
			return err
		}
		from, to := fc.Range()
		out.Demand = &demandInfo{From: from, To: to, Parameters: fc.Parameters()}
		demand = fc
	}

	code := ""
	if opts.codeFile != "" {
		b, err := os.ReadFile(opts.codeFile)
		if err != nil {
			return fmt.Errorf("reading user code: %w", err)
		}
		code = string(b)
	}

	s, sensors, err := simulator.Load(ctx, repo, simulator.LoadOptions{
		InitialTime: opts.start,
		StepSize:    opts.stepSize,
		Forecast:    true,
		Weather:     provider,
		Demand:      demand,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	s.AutoOptimize = s.AutoOptimize || opts.autoOptimize

	engine, err := simulator.NewEngine(s, simulator.Options{
		Sensors:   sensors,
		Optimizer: optimizer.New(logger),
		UserCode:  code,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	started := time.Now()
	result, err := engine.Run(ctx, time.Duration(opts.hours*float64(time.Hour)))
	if err != nil {
		return fmt.Errorf("running forecast: %w", err)
	}
	st := engine.Status()
	logger.Info("forecast finished",
		slog.Int64("ticks", st.Ticks),
		slog.Duration("took", time.Since(started)))

	out.Result = &result
	out.Decision = st.Decision
	out.Balance = st.Balance

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func trainDemand(opts options, logger *slog.Logger) (*forecast.Forecaster, error) {
	if len(opts.separator) != 1 {
		return nil, fmt.Errorf("separator must be a single character, got %q", opts.separator)
	}
	if opts.sph <= 0 {
		return nil, fmt.Errorf("samples-per-hour must be positive, got %d", opts.sph)
	}
	f, err := os.Open(opts.csvPath)
	if err != nil {
		return nil, fmt.Errorf("opening demand history: %w", err)
	}
	defer f.Close()

	p := ingest.NewDemandParser(rune(opts.separator[0]), opts.timeColumn, opts.valueColumn)
	p.Scale = opts.scale
	samples, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", opts.csvPath, err)
	}
	start, values, err := ingest.Regularize(samples, time.Hour/time.Duration(opts.sph))
	if err != nil {
		return nil, fmt.Errorf("resampling %s: %w", opts.csvPath, err)
	}
	return forecast.New(values, opts.sph, start, forecast.WithLogger(logger))
}
