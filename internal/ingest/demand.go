package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"ecocontrol/internal/model"
)

// DemandParser reads a consumption history with one timestamp and one value
// column, selected by header name. Values are multiplied by Scale, e.g.
// 0.001 for W to kW.
//
// Example, tab separated:
//
//	Datum	Strom - Verbrauchertotal (Aktuell)
//	1356998400	8523.5
type DemandParser struct {
	Separator   rune
	TimeColumn  string
	ValueColumn string
	Scale       float64
}

func NewDemandParser(separator rune, timeColumn, valueColumn string) *DemandParser {
	return &DemandParser{
		Separator:   separator,
		TimeColumn:  timeColumn,
		ValueColumn: valueColumn,
		Scale:       1,
	}
}

// Parse returns the rows in file order. SensorID is left zero. Rows with a
// value that is not a number (e.g. "unavailable") are skipped.
func (p *DemandParser) Parse(r io.Reader) ([]model.Sample, error) {
	cr := csv.NewReader(r)
	cr.Comma = p.Separator
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	ti, err := columnIndex(header, p.TimeColumn)
	if err != nil {
		return nil, err
	}
	vi, err := columnIndex(header, p.ValueColumn)
	if err != nil {
		return nil, err
	}

	var samples []model.Sample
	lineNum := 1 // header was line 1
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}
		if len(record) <= ti || len(record) <= vi {
			continue
		}

		ts, err := parseTimestamp(record[ti])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		v, err := parseValue(record[vi])
		if err != nil {
			continue
		}
		samples = append(samples, model.Sample{Timestamp: ts, Value: v * p.Scale})
	}
	return samples, nil
}
