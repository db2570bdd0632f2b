package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocontrol/internal/config"
	"ecocontrol/internal/store"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOpenRepositoryInMemory(t *testing.T) {
	repo, closeRepo, err := openRepository(context.Background(), "", quietLog)
	require.NoError(t, err)
	defer closeRepo()

	_, ok := repo.(*store.Memory)
	assert.True(t, ok)
	sensors, err := repo.Sensors(context.Background())
	require.NoError(t, err)
	assert.Len(t, sensors, 12)
}

func TestReadUserCode(t *testing.T) {
	code, err := readUserCode("")
	require.NoError(t, err)
	assert.Empty(t, code)

	path := filepath.Join(t.TempDir(), "control.expr")
	require.NoError(t, os.WriteFile(path, []byte("cu.SetOverwrite(50)\n"), 0o600))
	code, err = readUserCode(path)
	require.NoError(t, err)
	assert.Equal(t, "cu.SetOverwrite(50)\n", code)

	_, err = readUserCode(filepath.Join(t.TempDir(), "missing.expr"))
	assert.Error(t, err)
}

func writeDemandCSV(t *testing.T, start time.Time, days int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Datum\tStrom - Verbrauchertotal (Aktuell)\n")
	for i := 0; i < days*24; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		watts := 1000 * (5 + 3*math.Sin(2*math.Pi*float64(ts.Hour())/24))
		fmt.Fprintf(&b, "%d\t%.1f\n", ts.Unix(), watts)
	}
	path := filepath.Join(t.TempDir(), "demand.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func demandConfig(path string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DemandCSV = path
	cfg.DemandSeparator = "\t"
	cfg.DemandTimeColumn = "Datum"
	cfg.DemandValueColumn = "Strom - Verbrauchertotal (Aktuell)"
	cfg.DemandScale = 0.001
	return cfg
}

func TestLoadDemand(t *testing.T) {
	src, err := loadDemand(config.DefaultConfig(), quietLog)
	require.NoError(t, err)
	assert.Nil(t, src)

	start := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	src, err = loadDemand(demandConfig(writeDemandCSV(t, start, 15)), quietLog)
	require.NoError(t, err)
	require.NotNil(t, src)

	// inside the history the observed value in kW is returned
	at := start.Add(30 * time.Hour)
	assert.InDelta(t, 5+3*math.Sin(2*math.Pi*6/24), src.ForecastAt(at), 1e-3)
}

func TestLoadDemandErrors(t *testing.T) {
	start := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := loadDemand(demandConfig(filepath.Join(t.TempDir(), "missing.csv")), quietLog)
	assert.Error(t, err)

	// three days are not enough to train on
	_, err = loadDemand(demandConfig(writeDemandCSV(t, start, 3)), quietLog)
	assert.Error(t, err)
}

func TestBuildSink(t *testing.T) {
	repo := store.NewMemory(store.DefaultScenario())
	sensors, _ := repo.Sensors(context.Background())

	sink, closeSinks, err := buildSink(config.DefaultConfig(), repo, sensors, quietLog, nil)
	require.NoError(t, err)
	defer closeSinks()
	assert.Same(t, repo, sink)

	cfg := config.DefaultConfig()
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = ""
	_, _, err = buildSink(cfg, repo, sensors, quietLog, nil)
	assert.Error(t, err)

	cfg.Kafka.Topic = "samples"
	sink, closeSinks, err = buildSink(cfg, repo, sensors, quietLog, nil)
	require.NoError(t, err)
	defer closeSinks()
	_, isMemory := sink.(*store.Memory)
	assert.False(t, isMemory)
}
