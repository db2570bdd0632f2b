// Command samples imports sensor values from CSV into the database and
// exports them again.
//
//	samples import -input values.csv
//	samples export -sensor 1 -sensor 3 -start 1356998400 -end 1357084800 -output values.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"ecocontrol/internal/config"
	"ecocontrol/internal/ingest"
	"ecocontrol/internal/model"
	"ecocontrol/internal/store"
)

const batchSize = 1000

type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*l = append(*l, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: samples import|export [flags]")
	}
	cfg, err := config.Load(os.Getenv("ECOCONTROL_CONFIG"), ".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("ECOCONTROL_POSTGRES_DSN not set: samples needs a database")
	}

	ctx := context.Background()
	pg, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer pg.Close()
	if _, err := pg.Seed(ctx, store.DefaultScenario()); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	switch os.Args[1] {
	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		input := fs.String("input", "", "CSV file with sensor_id,timestamp,value (stdin when empty)")
		_ = fs.Parse(os.Args[2:])

		in := io.Reader(os.Stdin)
		if *input != "" {
			f, err := os.Open(*input)
			if err != nil {
				log.Fatalf("opening %s: %v", *input, err)
			}
			defer f.Close()
			in = f
		}
		n, err := importSamples(ctx, pg, in)
		if err != nil {
			log.Fatalf("import failed after %d samples: %v", n, err)
		}
		log.Printf("imported %d samples", n)

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		var sensors intList
		fs.Var(&sensors, "sensor", "sensor id to export, repeatable (all when omitted)")
		start := fs.Int64("start", 0, "first timestamp, Unix seconds")
		end := fs.Int64("end", time.Now().Unix(), "end timestamp (exclusive), Unix seconds")
		output := fs.String("output", "", "output CSV path (stdout when empty)")
		_ = fs.Parse(os.Args[2:])

		out := io.Writer(os.Stdout)
		if *output != "" {
			f, err := os.Create(*output)
			if err != nil {
				log.Fatalf("creating %s: %v", *output, err)
			}
			defer f.Close()
			out = f
		}
		n, err := exportSamples(ctx, pg, sensors, time.Unix(*start, 0), time.Unix(*end, 0), out)
		if err != nil {
			log.Fatalf("export failed: %v", err)
		}
		log.Printf("exported %d samples", n)

	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}
}

// importSamples stores the parsed samples in batches and returns how many
// were stored.
func importSamples(ctx context.Context, repo store.Repository, r io.Reader) (int, error) {
	samples, err := ingest.SampleParser{}.Parse(r)
	if err != nil {
		return 0, err
	}
	stored := 0
	for start := 0; start < len(samples); start += batchSize {
		end := min(start+batchSize, len(samples))
		if err := repo.StoreSamples(ctx, samples[start:end]); err != nil {
			return stored, fmt.Errorf("storing samples %d-%d: %w", start, end, err)
		}
		stored = end
	}
	return stored, nil
}

func exportSamples(ctx context.Context, repo store.Repository, ids []int, start, end time.Time, w io.Writer) (int, error) {
	if len(ids) == 0 {
		sensors, err := repo.Sensors(ctx)
		if err != nil {
			return 0, err
		}
		for _, s := range sensors {
			ids = append(ids, s.ID)
		}
	}

	var all []model.Sample
	for _, id := range ids {
		samples, err := repo.SamplesInRange(ctx, id, start, end)
		if err != nil {
			return 0, fmt.Errorf("sensor %d: %w", id, err)
		}
		all = append(all, samples...)
	}
	if err := ingest.WriteSamples(w, all); err != nil {
		return 0, fmt.Errorf("writing CSV: %w", err)
	}
	return len(all), nil
}
