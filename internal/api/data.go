package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"ecocontrol/internal/model"
	"ecocontrol/internal/simulator"
)

const defaultDataWindow = 24 * time.Hour

type dataResponse struct {
	Start   int64                    `json:"start"`
	End     int64                    `json:"end"`
	Sensors []simulator.SensorSeries `json:"sensors"`
}

// data returns stored samples in the forecast result layout. The window is
// given by a {start} path segment or start/end query parameters in Unix
// seconds and defaults to the last day. sensor_id may be repeated.
func (s *Server) data(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	end := s.now()
	if v := q.Get("end"); v != "" {
		ts, err := parseUnix(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		end = ts
	}
	start := end.Add(-defaultDataWindow)
	startParam := mux.Vars(r)["start"]
	if startParam == "" {
		startParam = q.Get("start")
	}
	if startParam != "" {
		ts, err := parseUnix(startParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		start = ts
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("start %d is not before end %d", start.Unix(), end.Unix()))
		return
	}

	ctx := r.Context()
	sensors, err := s.opts.Repo.Sensors(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sensors, err = filterSensors(sensors, q["sensor_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := dataResponse{Start: start.Unix(), End: end.Unix(), Sensors: []simulator.SensorSeries{}}
	for _, sensor := range sensors {
		samples, err := s.opts.Repo.SamplesInRange(ctx, sensor.ID, start, end)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		series := simulator.SensorSeries{SensorID: sensor.ID, Data: make([]simulator.Point, 0, len(samples))}
		for _, smp := range samples {
			series.Data = append(series.Data, simulator.Point{Timestamp: smp.Timestamp.UnixMilli(), Value: smp.Value})
		}
		resp.Sensors = append(resp.Sensors, series)
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseUnix(s string) (time.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return time.Unix(v, 0).UTC(), nil
}

func filterSensors(sensors []model.Sensor, ids []string) ([]model.Sensor, error) {
	if len(ids) == 0 {
		return sensors, nil
	}
	byID := make(map[int]model.Sensor, len(sensors))
	for _, s := range sensors {
		byID[s.ID] = s
	}
	out := make([]model.Sensor, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid sensor_id %q: %w", raw, err)
		}
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown sensor %d", id)
		}
		out = append(out, s)
	}
	return out, nil
}
