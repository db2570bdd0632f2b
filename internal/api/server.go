// Package api serves the REST interface of the plant: status, live values,
// stored data, configuration and forecast jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ecocontrol/internal/metrics"
	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
	"ecocontrol/internal/store"
	"ecocontrol/internal/weather"
)

// LiveID is the registry id of the live demo engine.
const LiveID = "live"

const (
	defaultHorizon = 14 * 24 * time.Hour
	maxHorizon     = 60 * 24 * time.Hour
)

type Options struct {
	Repo      store.Repository
	Registry  *simulator.Registry
	Optimizer simulator.Optimizer
	Weather   weather.Provider
	Demand    simulator.DemandSource
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// WebSocket, when set, is served on /ws.
	WebSocket http.Handler
	// InitialTime is used as "now" while no live engine is registered.
	InitialTime int64
	StepSize    int64
	Horizon     time.Duration
	UserCode    string
}

type Server struct {
	ctx    context.Context
	opts   Options
	logger *slog.Logger
	jobs   *jobs
}

// NewServer returns a server whose forecast jobs run until ctx is done.
func NewServer(ctx context.Context, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = simulator.NewRegistry()
	}
	if opts.Horizon <= 0 {
		opts.Horizon = defaultHorizon
	}
	if opts.InitialTime == 0 {
		opts.InitialTime = simulator.DefaultInitialTime
	}
	return &Server{
		ctx:    ctx,
		opts:   opts,
		logger: logger.With(slog.String("component", "api")),
		jobs:   newJobs(maxJobs),
	}
}

// now is the simulated time of the live engine, or the configured initial
// time when there is none.
func (s *Server) now() time.Time {
	if e, ok := s.opts.Registry.Get(LiveID); ok {
		return e.Status().Time
	}
	return time.Unix(s.opts.InitialTime, 0).UTC()
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encoding response failed", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type statusResponse struct {
	Live      *simulator.Status `json:"live"`
	Time      time.Time         `json:"time"`
	Forecasts int               `json:"forecasts_running"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Time: s.now(), Forecasts: s.jobs.running()}
	if e, ok := s.opts.Registry.Get(LiveID); ok {
		st := e.Status()
		resp.Live = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// start starts the registered live engine.
func (s *Server) start(w http.ResponseWriter, _ *http.Request) {
	e, ok := s.opts.Registry.Get(LiveID)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errors.New("no live simulation configured"))
		return
	}
	if err := e.Start(s.ctx); err != nil {
		if errors.Is(err, simulator.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("live simulation started via api")
	writeJSON(w, http.StatusOK, e.Status())
}

type liveValue struct {
	SensorID  int       `json:"sensor_id"`
	DeviceID  int       `json:"device_id"`
	Key       string    `json:"key"`
	Unit      string    `json:"unit"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type liveResponse struct {
	Time    time.Time   `json:"time"`
	Sensors []liveValue `json:"sensors"`
}

// live returns the latest stored value of every sensor.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sensors, err := s.opts.Repo.Sensors(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := liveResponse{Time: s.now(), Sensors: []liveValue{}}
	for _, sensor := range sensors {
		sample, found, err := s.opts.Repo.LatestValue(ctx, sensor.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !found {
			continue
		}
		resp.Sensors = append(resp.Sensors, liveValue{
			SensorID:  sensor.ID,
			DeviceID:  sensor.DeviceID,
			Key:       sensor.Key,
			Unit:      sensor.Unit,
			Value:     sample.Value,
			Timestamp: sample.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// configure validates entries against a freshly built scenario and stores
// them.
func (s *Server) configure(w http.ResponseWriter, r *http.Request) {
	var entries []model.ConfigEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no configuration entries"))
		return
	}

	ctx := r.Context()
	def := overlay{Repository: s.opts.Repo, entries: entries}
	if _, _, err := simulator.Load(ctx, def, simulator.LoadOptions{Demo: true, Logger: s.logger}); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := s.opts.Repo.SaveConfig(ctx, entries); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("configuration saved", slog.Int("entries", len(entries)))
	w.WriteHeader(http.StatusNoContent)
}
