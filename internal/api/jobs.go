package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

const maxJobs = 64

type job struct {
	id     string
	engine *simulator.Engine

	done   bool
	result simulator.ForecastResult
	err    error
}

// jobs keeps forecast jobs by id. Once more than limit jobs are kept, the
// oldest finished ones are dropped.
type jobs struct {
	mu    sync.Mutex
	limit int
	byID  map[string]*job
	order []string
}

func newJobs(limit int) *jobs {
	return &jobs{limit: limit, byID: make(map[string]*job)}
}

func (j *jobs) add(jb *job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.byID[jb.id] = jb
	j.order = append(j.order, jb.id)

	kept := j.order[:0]
	excess := len(j.order) - j.limit
	for _, id := range j.order {
		if excess > 0 && j.byID[id].done {
			delete(j.byID, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	j.order = kept
}

func (j *jobs) get(id string) (job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	jb, ok := j.byID[id]
	if !ok {
		return job{}, false
	}
	return *jb, true
}

func (j *jobs) finish(id string, result simulator.ForecastResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if jb, ok := j.byID[id]; ok {
		jb.done = true
		jb.result = result
		jb.err = err
	}
}

func (j *jobs) running() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, jb := range j.byID {
		if !jb.done {
			n++
		}
	}
	return n
}

type forecastRequest struct {
	// Hours is the forecast horizon; zero uses the server default.
	Hours            float64             `json:"hours"`
	Code             *string             `json:"code"`
	AutoOptimization *bool               `json:"auto_optimization"`
	Config           []model.ConfigEntry `json:"config"`
}

type jobResponse struct {
	ID       string             `json:"id"`
	State    simulator.RunState `json:"state"`
	Progress float64            `json:"progress"`
	Location string             `json:"location,omitempty"`
}

// createForecast starts a forecast job from the stored state. Config
// entries in the request apply to this job only.
func (s *Server) createForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	horizon := s.opts.Horizon
	if req.Hours != 0 {
		horizon = time.Duration(req.Hours * float64(time.Hour))
	}
	if horizon <= 0 || horizon > maxHorizon {
		writeError(w, http.StatusBadRequest, fmt.Errorf("horizon must be in (0, %s], got %s", maxHorizon, horizon))
		return
	}
	code := s.opts.UserCode
	if req.Code != nil {
		code = *req.Code
	}

	id := uuid.NewString()
	logger := s.logger.With(slog.String("job", id))
	scenario, sensors, err := simulator.Load(r.Context(), overlay{Repository: s.opts.Repo, entries: req.Config}, simulator.LoadOptions{
		InitialTime: s.now().Unix(),
		StepSize:    s.opts.StepSize,
		Forecast:    true,
		Weather:     s.opts.Weather,
		Demand:      s.opts.Demand,
		Logger:      logger,
	})
	if err != nil {
		s.opts.Metrics.ForecastJob("failed")
		writeError(w, statusFor(err), err)
		return
	}
	if req.AutoOptimization != nil {
		scenario.AutoOptimize = *req.AutoOptimization
	}

	engine, err := simulator.NewEngine(scenario, simulator.Options{
		Sensors:   sensors,
		Optimizer: s.opts.Optimizer,
		UserCode:  code,
		Logger:    logger,
		Metrics:   s.opts.Metrics,
	})
	if err != nil {
		s.opts.Metrics.ForecastJob("failed")
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.opts.Registry.Add(id, engine); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.jobs.add(&job{id: id, engine: engine})
	s.opts.Metrics.ForecastJob("started")
	logger.Info("forecast job started", slog.Duration("horizon", horizon), slog.Time("from", scenario.Env.Time()))

	go s.runJob(id, engine, horizon)

	w.Header().Set("Location", "/api/forecast/"+id+"/")
	writeJSON(w, http.StatusAccepted, jobResponse{
		ID:       id,
		State:    engine.Status().State,
		Location: "/api/forecast/" + id + "/",
	})
}

func (s *Server) runJob(id string, engine *simulator.Engine, horizon time.Duration) {
	start := time.Now()
	result, err := engine.Run(s.ctx, horizon)
	s.jobs.finish(id, result, err)
	defer s.opts.Registry.Remove(id)

	if err != nil {
		s.opts.Metrics.ForecastJob("failed")
		s.logger.Warn("forecast job failed", slog.String("job", id), slog.Any("err", err))
		return
	}
	s.opts.Metrics.ForecastJob("finished")
	s.logger.Info("forecast job finished", slog.String("job", id), slog.Duration("took", time.Since(start)))
}

// getForecast returns 202 with the progress until the job has finished.
func (s *Server) getForecast(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	jb, ok := s.jobs.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("forecast %q not found", id))
		return
	}
	if !jb.done {
		st := jb.engine.Status()
		writeJSON(w, http.StatusAccepted, jobResponse{ID: id, State: st.State, Progress: st.Progress})
		return
	}
	if jb.err != nil {
		writeError(w, http.StatusInternalServerError, jb.err)
		return
	}
	w.Header().Set("Cache-Control", "max-age=3600")
	writeJSON(w, http.StatusOK, jb.result)
}

func statusFor(err error) int {
	var cfgErr *simulator.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
