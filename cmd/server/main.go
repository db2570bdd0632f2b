package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/handlers"

	"ecocontrol/internal/api"
	"ecocontrol/internal/config"
	"ecocontrol/internal/forecast"
	"ecocontrol/internal/ingest"
	"ecocontrol/internal/logging"
	"ecocontrol/internal/metrics"
	"ecocontrol/internal/model"
	"ecocontrol/internal/optimizer"
	"ecocontrol/internal/publish"
	"ecocontrol/internal/simulator"
	"ecocontrol/internal/store"
	"ecocontrol/internal/weather"
	"ecocontrol/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	envFile := flag.String("env-file", ".env", "file with environment overrides")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *frontendDir, logger); err != nil {
		logger.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, frontendDir string, logger *slog.Logger) error {
	m := metrics.New()

	repo, closeRepo, err := openRepository(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	sensors, err := repo.Sensors(ctx)
	if err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}

	var provider weather.Provider
	if cfg.Weather.Enabled {
		provider = weather.NewClient(cfg.Weather.UserAgent, cfg.Weather.Location, weather.DefaultHistory(), logger)
	}
	demand, err := loadDemand(cfg, logger)
	if err != nil {
		return err
	}
	code, err := readUserCode(cfg.UserCodeFile)
	if err != nil {
		return err
	}

	sink, closeSinks, err := buildSink(cfg, repo, sensors, logger, m)
	if err != nil {
		return err
	}
	defer closeSinks()

	scenario, _, err := simulator.Load(ctx, repo, simulator.LoadOptions{
		InitialTime: cfg.InitialTime,
		StepSize:    cfg.StepSize,
		Demo:        true,
		Weather:     provider,
		Demand:      demand,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("building live scenario: %w", err)
	}

	hub := ws.NewHub(logger, m)
	opt := optimizer.New(logger)
	engine, err := simulator.NewEngine(scenario, simulator.Options{
		Sensors:   sensors,
		Optimizer: opt,
		UserCode:  code,
		Sink:      sink,
		Callback:  ws.NewBridge(hub, sensors),
		Logger:    logger,
		Metrics:   m,
		Speed:     cfg.DemoSpeed,
	})
	if err != nil {
		return fmt.Errorf("creating live engine: %w", err)
	}
	registry := simulator.NewRegistry()
	defer registry.StopAll()
	if err := registry.Add(api.LiveID, engine); err != nil {
		return err
	}
	if cfg.StartDemo {
		if err := engine.Start(ctx); err != nil {
			return fmt.Errorf("starting demo: %w", err)
		}
	}

	srv := api.NewServer(ctx, api.Options{
		Repo:        repo,
		Registry:    registry,
		Optimizer:   opt,
		Weather:     provider,
		Demand:      demand,
		Metrics:     m,
		Logger:      logger,
		WebSocket:   ws.NewHandler(ctx, hub, engine, sensors),
		InitialTime: cfg.InitialTime,
		StepSize:    cfg.StepSize,
		Horizon:     time.Duration(cfg.ForecastHours * float64(time.Hour)),
		UserCode:    code,
	})
	router := api.NewRouter(srv)
	if _, err := os.Stat(frontendDir); err == nil {
		logger.Info("serving frontend", slog.String("dir", frontendDir))
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(frontendDir)))
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handlers.LoggingHandler(os.Stdout, api.WithCORS(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openRepository connects to Postgres and seeds the default scenario into an
// empty database. Without a DSN it returns the seeded in-memory store.
func openRepository(ctx context.Context, dsn string, logger *slog.Logger) (store.Repository, func(), error) {
	if dsn == "" {
		logger.Info("using in-memory store")
		return store.NewMemory(store.DefaultScenario()), func() {}, nil
	}

	pg, err := store.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	seeded, err := pg.Seed(ctx, store.DefaultScenario())
	if err != nil {
		pg.Close()
		return nil, nil, err
	}
	if seeded {
		logger.Info("seeded default scenario")
	}
	return pg, func() { pg.Close() }, nil
}

// loadDemand trains the electrical demand forecaster from the configured
// CSV. It returns nil when no CSV is configured.
func loadDemand(cfg *config.Config, logger *slog.Logger) (simulator.DemandSource, error) {
	if cfg.DemandCSV == "" {
		return nil, nil
	}
	f, err := os.Open(cfg.DemandCSV)
	if err != nil {
		return nil, fmt.Errorf("opening demand history: %w", err)
	}
	defer f.Close()

	p := ingest.NewDemandParser(rune(cfg.DemandSeparator[0]), cfg.DemandTimeColumn, cfg.DemandValueColumn)
	p.Scale = cfg.DemandScale
	samples, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", cfg.DemandCSV, err)
	}
	start, values, err := ingest.Regularize(samples, time.Hour/time.Duration(cfg.SamplesPerHour))
	if err != nil {
		return nil, fmt.Errorf("resampling %s: %w", cfg.DemandCSV, err)
	}

	fc, err := forecast.New(values, cfg.SamplesPerHour, start, forecast.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("training demand forecast: %w", err)
	}
	from, to := fc.Range()
	logger.Info("demand forecast trained",
		slog.Int("samples", len(samples)),
		slog.Time("from", from),
		slog.Time("to", to))
	return fc, nil
}

func readUserCode(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading user code: %w", err)
	}
	return string(b), nil
}

// buildSink fans demo samples out to the repository and the configured
// brokers.
func buildSink(cfg *config.Config, repo store.Repository, sensors []model.Sensor, logger *slog.Logger, m *metrics.Metrics) (simulator.SampleSink, func(), error) {
	sinks := []simulator.SampleSink{repo}
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := publish.NewKafka(cfg.Kafka, sensors, logger, m)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, k)
		closers = append(closers, func() {
			if err := k.Close(); err != nil {
				logger.Warn("closing kafka writer", slog.Any("err", err))
			}
		})
		logger.Info("publishing samples to kafka", slog.String("topic", cfg.Kafka.Topic))
	}

	if cfg.MQTT.Broker != "" {
		p, client, err := publish.ConnectMQTT(cfg.MQTT, sensors, logger, m)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, p)
		closers = append(closers, func() { disconnect(client) })
	}

	if len(sinks) == 1 {
		return repo, closeAll, nil
	}
	return publish.Tee(sinks...), closeAll, nil
}

func disconnect(c mqtt.Client) {
	c.Disconnect(250)
}
