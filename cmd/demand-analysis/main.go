package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"ecocontrol/internal/forecast"
	"ecocontrol/internal/ingest"
	"ecocontrol/internal/logging"
	"ecocontrol/internal/simulator"
)

type HourlyBucket struct {
	KWh     float64
	Cost    float64
	Samples int
}

type Backtest struct {
	Days int
	MASE float64
	RMSE float64
}

// Report summarizes a demand history. WeekdayKWh is the average daily
// consumption and Fits the chosen model, both indexed by time.Weekday.
type Report struct {
	Start      time.Time
	End        time.Time
	Hourly     [24]HourlyBucket
	TotalKWh   float64
	TotalCost  float64
	WeekdayKWh [7]float64
	Fits       [7]forecast.FitInfo
	Backtest   *Backtest // nil when skipped
}

func main() {
	csvPath := flag.String("csv", "", "electrical demand history CSV")
	separator := flag.String("separator", "\t", "CSV field separator")
	timeColumn := flag.String("time-column", "Datum", "CSV timestamp column")
	valueColumn := flag.String("value-column", "Strom - Verbrauchertotal (Aktuell)", "CSV demand column")
	scale := flag.Float64("scale", 0.001, "factor applied to demand values, 0.001 converts W to kW")
	sph := flag.Int("samples-per-hour", 1, "resampling rate")
	holdout := flag.Int("holdout", 7, "days held back to test the forecast")
	price := flag.Float64("price", simulator.DefaultPrices().ElectricalCosts, "electricity price in €/kWh")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("-csv is required")
	}
	if len(*separator) != 1 || *sph <= 0 {
		log.Fatal("-separator must be one character and -samples-per-hour positive")
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("opening %s: %v", *csvPath, err)
	}
	p := ingest.NewDemandParser(rune((*separator)[0]), *timeColumn, *valueColumn)
	p.Scale = *scale
	samples, err := p.Parse(f)
	f.Close()
	if err != nil {
		log.Fatalf("parsing %s: %v", *csvPath, err)
	}
	log.Printf("Loaded %d samples from %s", len(samples), *csvPath)

	start, values, err := ingest.Regularize(samples, time.Hour/time.Duration(*sph))
	if err != nil {
		log.Fatalf("resampling: %v", err)
	}

	logger := logging.New(os.Stderr, "warn", "text")
	report, err := analyze(start, values, *sph, *holdout, *price, logger)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	printReport(os.Stdout, report)
}

// analyze aggregates values (kW, samplesPerHour per hour from start) and
// fits the weekday models. With holdout > 0 the last holdout days are also
// forecast from the rest and compared.
func analyze(start time.Time, values []float64, samplesPerHour, holdout int, price float64, logger *slog.Logger) (Report, error) {
	step := time.Hour / time.Duration(samplesPerHour)
	r := Report{
		Start: start,
		End:   start.Add(time.Duration(len(values)) * step),
	}

	var weekdayDays [7]map[string]bool
	for i := range weekdayDays {
		weekdayDays[i] = map[string]bool{}
	}
	for i, v := range values {
		t := start.Add(time.Duration(i) * step)
		kwh := v / float64(samplesPerHour)
		b := &r.Hourly[t.Hour()]
		b.KWh += kwh
		b.Cost += kwh * price
		b.Samples++
		r.TotalKWh += kwh
		r.TotalCost += kwh * price
		r.WeekdayKWh[t.Weekday()] += kwh
		weekdayDays[t.Weekday()][t.Format("2006-01-02")] = true
	}
	for wd := range r.WeekdayKWh {
		r.WeekdayKWh[wd] = safeDivide(r.WeekdayKWh[wd], float64(len(weekdayDays[wd])))
	}

	full, err := forecast.New(values, samplesPerHour, start, forecast.WithLogger(logger))
	if err != nil {
		return r, err
	}
	r.Fits = full.Parameters()

	if holdout > 0 {
		split := len(values) - holdout*24*samplesPerHour
		if split > 0 {
			train := values[:split]
			fc, err := forecast.New(train, samplesPerHour, start, forecast.WithLogger(logger))
			if err == nil {
				actual := values[split:]
				predicted := make([]float64, len(actual))
				for i := range actual {
					predicted[i] = fc.ForecastAt(start.Add(time.Duration(split+i) * step))
				}
				r.Backtest = &Backtest{
					Days: holdout,
					MASE: forecast.MASE(train, actual, predicted),
					RMSE: forecast.RMSE(actual, predicted),
				}
			} else {
				logger.Warn("skipping backtest", slog.Any("err", err))
			}
		}
	}
	return r, nil
}

func printReport(w io.Writer, r Report) {
	days := r.End.Sub(r.Start).Hours() / 24

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Electrical Demand Analysis")
	fmt.Fprintf(w, "  Data: %s to %s (%.0f days)\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), days)
	fmt.Fprintf(w, "  Consumption: %s   Cost: %.2f €   Avg per day: %s\n",
		formatKWh(r.TotalKWh), r.TotalCost, formatKWh(safeDivide(r.TotalKWh, days)))
	fmt.Fprintln(w)

	printHourlyTable(w, r.Hourly, r.TotalKWh)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Weekday Models:")
	fmt.Fprintf(w, "   %-9s │ %9s │ %6s │ %6s │ %6s │ %6s │ %6s\n", "Day", "kWh/day", "alpha", "beta", "gamma", "RMSE", "MASE")
	fmt.Fprintf(w, "  ───────────┼───────────┼────────┼────────┼────────┼────────┼───────\n")
	for i := 1; i <= 7; i++ {
		wd := time.Weekday(i % 7)
		fit := r.Fits[wd]
		marker := ""
		if fit.Manual {
			marker = " (manual)"
		}
		fmt.Fprintf(w, "   %-9s │ %9.1f │ %6.3f │ %6.3f │ %6.3f │ %6.2f │ %6.2f%s\n",
			wd, r.WeekdayKWh[wd], fit.Alpha, fit.Beta, fit.Gamma, fit.RMSE, fit.MASE, marker)
	}

	if r.Backtest != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Backtest (last %d days):\n", r.Backtest.Days)
		fmt.Fprintf(w, "    MASE: %.3f\n", r.Backtest.MASE)
		fmt.Fprintf(w, "    RMSE: %.3f kW\n", r.Backtest.RMSE)
	}
	fmt.Fprintln(w)
}

func printHourlyTable(w io.Writer, hourly [24]HourlyBucket, totalKWh float64) {
	fmt.Fprintln(w, "  Hourly Distribution:")
	fmt.Fprintf(w, "   %4s │ %8s │ %9s │ %5s\n", "Hour", "kWh", "Cost", "Share")
	fmt.Fprintf(w, "  ──────┼──────────┼───────────┼──────\n")

	var peakHour int
	var peak float64
	for h := 0; h < 24; h++ {
		if hourly[h].KWh > peak {
			peak = hourly[h].KWh
			peakHour = h
		}
	}

	for h := 0; h < 24; h++ {
		b := hourly[h]
		if b.Samples == 0 {
			continue
		}
		share := safeDivide(b.KWh, totalKWh) * 100
		marker := ""
		if h == peakHour && peak > 0 {
			marker = " ← peak"
		}
		fmt.Fprintf(w, "     %02d │ %8.1f │ %9.2f │ %4.1f%%%s\n", h, b.KWh, b.Cost, share, marker)
	}
}

func safeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func formatKWh(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.1f MWh", v/1000)
	}
	return fmt.Sprintf("%.1f kWh", v)
}
