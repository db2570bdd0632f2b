package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceType(t *testing.T) {
	dt, err := ParseDeviceType("CU")
	require.NoError(t, err)
	assert.Equal(t, DeviceCogenerationUnit, dt)

	_, err = ParseDeviceType("battery")
	assert.Error(t, err)
}

func TestConfigEntry_Float(t *testing.T) {
	tests := []struct {
		name    string
		entry   ConfigEntry
		want    float64
		wantErr bool
	}{
		{"float", ConfigEntry{Key: "gas_costs", Value: "0.0655", ValueType: ValueFloat}, 0.0655, false},
		{"int", ConfigEntry{Key: "residents", Value: "22", ValueType: ValueInt}, 22, false},
		{"bool true", ConfigEntry{Key: "auto_optimization", Value: "1", ValueType: ValueBool}, 1, false},
		{"bool false", ConfigEntry{Key: "auto_optimization", Value: "false", ValueType: ValueBool}, 0, false},
		{"string", ConfigEntry{Key: "location", Value: "Berlin", ValueType: ValueString}, 0, true},
		{"garbage", ConfigEntry{Key: "capacity", Value: "lots", ValueType: ValueFloat}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.entry.Float()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTimeRange_Contains(t *testing.T) {
	start := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := TimeRange{Start: start, End: start.Add(time.Hour)}

	assert.True(t, tr.Contains(start))
	assert.True(t, tr.Contains(start.Add(59*time.Minute)))
	assert.False(t, tr.Contains(start.Add(time.Hour)))
	assert.False(t, tr.Contains(start.Add(-time.Second)))
}
