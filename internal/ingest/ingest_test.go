package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecocontrol/internal/model"
)

var (
	_ Parser = (*DemandParser)(nil)
	_ Parser = SampleParser{}
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"1356998400", time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"1356998400.5", time.Date(2013, 1, 1, 0, 0, 0, 500000000, time.UTC)},
		{"2013-01-01T01:00:00+01:00", time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2013-01-01 00:10:00", time.Date(2013, 1, 1, 0, 10, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := parseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	v, err := parseValue(" 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = parseValue("12,5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	_, err = parseValue("unavailable")
	assert.Error(t, err)
}

func TestDemandParser(t *testing.T) {
	input := "Datum\tGas\tStrom - Verbrauchertotal (Aktuell)\n" +
		"1356998400\t1\t8000\n" +
		"1356999000\t1\tunavailable\n" +
		"1356999600\t1\t9500\n"

	p := NewDemandParser('\t', "Datum", "Strom - Verbrauchertotal (Aktuell)")
	p.Scale = 0.001
	samples, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, 8.0, samples[0].Value)
	assert.Equal(t, 9.5, samples[1].Value)
	assert.Equal(t, time.Date(2013, 1, 1, 0, 20, 0, 0, time.UTC), samples[1].Timestamp)
	assert.Zero(t, samples[0].SensorID)
}

func TestDemandParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing value column", "Datum,Other\n1,2\n"},
		{"bad timestamp", "Datum,Value\nnoon,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDemandParser(',', "Datum", "Value").Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestSampleParser(t *testing.T) {
	input := "sensor_id,timestamp,value\n" +
		"1,2013-01-01T00:00:00Z,65.5\n" +
		"10, 1356998400, 20\n" +
		"3,2013-01-01T00:00:00Z,unknown\n"

	samples, err := SampleParser{}.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, model.Sample{SensorID: 1, Value: 65.5, Timestamp: time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)}, samples[0])
	assert.Equal(t, 10, samples[1].SensorID)

	_, err = SampleParser{}.Parse(strings.NewReader("id,time,value\n"))
	assert.Error(t, err)

	_, err = SampleParser{}.Parse(strings.NewReader("sensor_id,timestamp,value\nx,1,2\n"))
	assert.Error(t, err)
}

func TestRegularize(t *testing.T) {
	base := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []model.Sample{
		{Value: 4, Timestamp: base.Add(2 * time.Hour)},
		{Value: 1, Timestamp: base.Add(5 * time.Minute)},
		{Value: 2, Timestamp: base.Add(65 * time.Minute)},
	}

	start, values, err := Regularize(samples, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), start)
	require.Len(t, values, 2)
	// 1h lies between 0:05 (1) and 1:05 (2)
	assert.InDelta(t, 1.0+55.0/60.0, values[0], 1e-9)
	assert.Equal(t, 4.0, values[1])
}

func TestRegularize_Errors(t *testing.T) {
	base := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := Regularize(nil, time.Hour)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, _, err = Regularize([]model.Sample{{Timestamp: base}}, 0)
	assert.Error(t, err)

	_, _, err = Regularize([]model.Sample{
		{Value: 1, Timestamp: base},
		{Value: 1, Timestamp: base.Add(MaxGap + time.Hour)},
	}, time.Hour)
	assert.Error(t, err)
}

func TestWriteSamplesIsReadBack(t *testing.T) {
	base := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []model.Sample{
		{SensorID: 2, Value: 1.25, Timestamp: base},
		{SensorID: 1, Value: 70, Timestamp: base.Add(time.Minute)},
		{SensorID: 1, Value: 69.5, Timestamp: base},
	}

	var b strings.Builder
	require.NoError(t, WriteSamples(&b, samples))
	assert.True(t, strings.HasPrefix(b.String(), "sensor_id,timestamp,value\n1,2013-01-01T00:00:00Z,69.5\n"))

	got, err := SampleParser{}.Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, []model.Sample{samples[2], samples[1], samples[0]}, got)
}
