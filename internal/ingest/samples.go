package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"ecocontrol/internal/model"
)

// SampleParser reads exported sensor values with the columns
// sensor_id, timestamp, value.
type SampleParser struct{}

func (SampleParser) Parse(r io.Reader) ([]model.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateSampleHeader(header); err != nil {
		return nil, err
	}

	var samples []model.Sample
	lineNum := 1
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		id, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing sensor id %q: %w", lineNum, record[0], err)
		}
		ts, err := parseTimestamp(record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		v, err := parseValue(record[2])
		if err != nil {
			continue
		}
		samples = append(samples, model.Sample{SensorID: id, Value: v, Timestamp: ts})
	}
	return samples, nil
}

func validateSampleHeader(header []string) error {
	expected := []string{"sensor_id", "timestamp", "value"}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("unexpected header column %d: got %q, want %q", i, header[i], col)
		}
	}
	return nil
}

// WriteSamples writes samples in the format SampleParser reads, ordered by
// sensor and time.
func WriteSamples(w io.Writer, samples []model.Sample) error {
	sorted := append([]model.Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SensorID != sorted[j].SensorID {
			return sorted[i].SensorID < sorted[j].SensorID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sensor_id", "timestamp", "value"}); err != nil {
		return err
	}
	for _, s := range sorted {
		if err := cw.Write([]string{
			strconv.Itoa(s.SensorID),
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(s.Value, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
