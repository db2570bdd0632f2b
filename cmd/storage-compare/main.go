// Command storage-compare runs the same forecast for several heat storage
// sizes and compares the operating results.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"ecocontrol/internal/logging"
	"ecocontrol/internal/model"
	"ecocontrol/internal/optimizer"
	"ecocontrol/internal/simulator"
	"ecocontrol/internal/store"
)

type options struct {
	hours        float64
	start        int64
	stepSize     int64
	autoOptimize bool
}

type result struct {
	capacity     float64 // l
	balance      float64 // €
	cuHours      float64
	cuPowerOns   int
	boilerGas    float64 // kWh
	minimumTemp  float64 // °C
	endTemp      float64 // °C
	undersupply  int     // ticks below the minimum temperature
	electricity  float64 // kWh produced
	purchasedKWh float64
}

func main() {
	var opts options
	flag.Float64Var(&opts.hours, "hours", 168, "forecast horizon in hours")
	flag.Int64Var(&opts.start, "start", simulator.DefaultInitialTime, "start time as Unix seconds")
	flag.Int64Var(&opts.stepSize, "step", simulator.DefaultStepSize, "simulated seconds per tick")
	flag.BoolVar(&opts.autoOptimize, "optimize", false, "enable hourly auto-optimization of the cogeneration unit")
	capsFlag := flag.String("capacities", "1000,1500,2000,2500,3000,4000,5000", "comma-separated heat storage capacities in litres")
	flag.Parse()

	capacities, err := parseCapacities(*capsFlag)
	if err != nil {
		log.Fatalf("Invalid capacities %q: %v", *capsFlag, err)
	}
	sort.Float64s(capacities)

	logger := logging.New(os.Stderr, "warn", "text")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := compare(ctx, capacities, opts, logger)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}
	printTable(os.Stdout, results, opts)
}

func compare(ctx context.Context, capacities []float64, opts options, logger *slog.Logger) ([]result, error) {
	if opts.hours <= 0 {
		return nil, fmt.Errorf("hours must be positive, got %g", opts.hours)
	}
	results := make([]result, 0, len(capacities))
	for _, c := range capacities {
		r, err := runCapacity(ctx, c, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("capacity %g l: %w", c, err)
		}
		results = append(results, r)
		fmt.Fprintf(os.Stderr, "  %.0f l done\n", c)
	}
	return results, nil
}

// runCapacity forecasts the default plant with the storage resized to
// capacity litres.
func runCapacity(ctx context.Context, capacity float64, opts options, logger *slog.Logger) (result, error) {
	repo := store.NewMemory(store.DefaultScenario())
	err := repo.SaveConfig(ctx, []model.ConfigEntry{{
		DeviceID:  store.HeatStorageID,
		Key:       "capacity",
		Value:     strconv.FormatFloat(capacity, 'f', -1, 64),
		ValueType: model.ValueFloat,
		Unit:      "l",
	}})
	if err != nil {
		return result{}, err
	}

	s, sensors, err := simulator.Load(ctx, repo, simulator.LoadOptions{
		InitialTime: opts.start,
		StepSize:    opts.stepSize,
		Forecast:    true,
		Logger:      logger,
	})
	if err != nil {
		return result{}, err
	}
	s.AutoOptimize = s.AutoOptimize || opts.autoOptimize

	engine, err := simulator.NewEngine(s, simulator.Options{
		Sensors:   sensors,
		Optimizer: optimizer.New(logger),
		Logger:    logger,
	})
	if err != nil {
		return result{}, err
	}

	hs := s.HeatStorage()
	r := result{capacity: capacity, minimumTemp: hs.Temperature()}
	steps := int(opts.hours * 3600 / float64(s.Env.StepSize))
	for i := 0; i < steps; i++ {
		if err := engine.Step(ctx); err != nil {
			return result{}, err
		}
		t := hs.Temperature()
		r.minimumTemp = min(r.minimumTemp, t)
		if hs.Undersupplied() {
			r.undersupply++
		}
	}

	cu := s.CogenerationUnit()
	pm := s.PowerMeter()
	r.balance = engine.Status().Balance
	r.cuHours = cu.TotalHoursOfOperation
	r.cuPowerOns = cu.PowerOnCount
	r.electricity = cu.TotalElectricalProduction
	r.boilerGas = s.PeakLoadBoiler().TotalGasConsumption
	r.purchasedKWh = pm.TotalPurchased
	r.endTemp = hs.Temperature()
	return r, nil
}

func printTable(w io.Writer, results []result, opts options) {
	if len(results) == 0 {
		return
	}

	start := time.Unix(opts.start, 0).UTC()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Heat Storage Size Comparison")
	fmt.Fprintf(w, "  Forecast: %s, %.0f hours, auto-optimization %v\n", start.Format("2006-01-02 15:04"), opts.hours, opts.autoOptimize)
	fmt.Fprintln(w)

	fmt.Fprintf(w, " %8s │ %9s │ %8s │ %7s │ %10s │ %10s │ %8s │ %9s │ %8s\n",
		"Capacity", " Balance ", "Marginal", "CU h", "CU starts", "PLB gas", "Min temp", "Purchased", "Under")
	fmt.Fprintf(w, "──────────┼───────────┼──────────┼─────────┼────────────┼────────────┼──────────┼───────────┼─────────\n")

	for i, r := range results {
		// marginal is the balance change per additional 1000 l
		marginal := "-"
		if i > 0 {
			prev := results[i-1]
			if d := r.capacity - prev.capacity; d > 0 {
				marginal = fmt.Sprintf("%.2f", (r.balance-prev.balance)/d*1000)
			}
		}
		fmt.Fprintf(w, " %6.0f l │ %7.2f € │ %8s │ %7.1f │ %10d │ %6.1f kWh│ %6.1f°C │ %5.1f kWh│ %8d\n",
			r.capacity,
			r.balance,
			marginal,
			r.cuHours,
			r.cuPowerOns,
			r.boilerGas,
			r.minimumTemp,
			r.purchasedKWh,
			r.undersupply,
		)
	}
	fmt.Fprintln(w)
}

func parseCapacities(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	caps := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("capacity must be positive, got %v", v)
		}
		caps = append(caps, v)
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("no capacities specified")
	}
	return caps, nil
}
