package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ecocontrol/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id          INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	device_type TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sensors (
	id            INTEGER PRIMARY KEY,
	device_id     INTEGER NOT NULL REFERENCES devices (id),
	name          TEXT NOT NULL,
	key           TEXT NOT NULL,
	setter        TEXT NOT NULL DEFAULT '',
	unit          TEXT NOT NULL DEFAULT '',
	in_diagram    BOOLEAN NOT NULL DEFAULT FALSE,
	aggregate_sum BOOLEAN NOT NULL DEFAULT FALSE,
	aggregate_avg BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS configuration (
	device_id  INTEGER NOT NULL DEFAULT 0,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	value_type TEXT NOT NULL,
	unit       TEXT NOT NULL DEFAULT '',
	tunable    BOOLEAN NOT NULL DEFAULT FALSE,
	internal   BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (device_id, key)
);
CREATE TABLE IF NOT EXISTS sensor_values (
	sensor_id INTEGER NOT NULL REFERENCES sensors (id),
	timestamp TIMESTAMPTZ NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (sensor_id, timestamp)
);
`

// Postgres stores the scenario and samples in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and creates missing tables.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	p := NewPostgres(db)
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Seed inserts the scenario unless devices already exist. It reports
// whether anything was inserted.
func (p *Postgres) Seed(ctx context.Context, seed Seed) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count devices: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	for _, d := range seed.Devices {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO devices (id, name, device_type) VALUES ($1, $2, $3)`,
			d.ID, d.Name, string(d.Type))
		if err != nil {
			return false, fmt.Errorf("failed to insert device %d: %w", d.ID, err)
		}
	}
	for _, s := range seed.Sensors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sensors (id, device_id, name, key, setter, unit, in_diagram, aggregate_sum, aggregate_avg)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			s.ID, s.DeviceID, s.Name, s.Key, s.Setter, s.Unit, s.InDiagram, s.AggregateSum, s.AggregateAvg)
		if err != nil {
			return false, fmt.Errorf("failed to insert sensor %d: %w", s.ID, err)
		}
	}
	entries := append(append([]model.ConfigEntry(nil), seed.DeviceConfig...), seed.SystemConfig...)
	if err := upsertConfig(ctx, tx, entries); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (p *Postgres) Devices(ctx context.Context) ([]model.Device, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, device_type FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		var d model.Device
		var t string
		if err := rows.Scan(&d.ID, &d.Name, &t); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.Type = model.DeviceType(t)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

func (p *Postgres) DeviceConfig(ctx context.Context) ([]model.ConfigEntry, error) {
	return p.config(ctx, `device_id <> 0`)
}

func (p *Postgres) SystemConfig(ctx context.Context) ([]model.ConfigEntry, error) {
	return p.config(ctx, `device_id = 0`)
}

func (p *Postgres) config(ctx context.Context, where string) ([]model.ConfigEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT device_id, key, value, value_type, unit, tunable, internal
		FROM configuration
		WHERE `+where+`
		ORDER BY device_id, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query configuration: %w", err)
	}
	defer rows.Close()

	var entries []model.ConfigEntry
	for rows.Next() {
		var e model.ConfigEntry
		var vt string
		if err := rows.Scan(&e.DeviceID, &e.Key, &e.Value, &vt, &e.Unit, &e.Tunable, &e.Internal); err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		e.ValueType = model.ValueType(vt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating configuration: %w", err)
	}
	return entries, nil
}

func (p *Postgres) SaveConfig(ctx context.Context, entries []model.ConfigEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertConfig(ctx, tx, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertConfig(ctx context.Context, tx *sql.Tx, entries []model.ConfigEntry) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO configuration (device_id, key, value, value_type, unit, tunable, internal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			value_type = EXCLUDED.value_type,
			unit = EXCLUDED.unit,
			tunable = EXCLUDED.tunable,
			internal = EXCLUDED.internal
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx, e.DeviceID, e.Key, e.Value, string(e.ValueType), e.Unit, e.Tunable, e.Internal)
		if err != nil {
			return fmt.Errorf("failed to save configuration %q: %w", e.Key, err)
		}
	}
	return nil
}

func (p *Postgres) Sensors(ctx context.Context) ([]model.Sensor, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, device_id, name, key, setter, unit, in_diagram, aggregate_sum, aggregate_avg
		FROM sensors
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []model.Sensor
	for rows.Next() {
		var s model.Sensor
		err := rows.Scan(&s.ID, &s.DeviceID, &s.Name, &s.Key, &s.Setter, &s.Unit,
			&s.InDiagram, &s.AggregateSum, &s.AggregateAvg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		sensors = append(sensors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sensors: %w", err)
	}
	return sensors, nil
}

func (p *Postgres) LatestValue(ctx context.Context, sensorID int) (model.Sample, bool, error) {
	s := model.Sample{SensorID: sensorID}
	err := p.db.QueryRowContext(ctx, `
		SELECT timestamp, value FROM sensor_values
		WHERE sensor_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`, sensorID).Scan(&s.Timestamp, &s.Value)
	if err == sql.ErrNoRows {
		return model.Sample{}, false, nil
	}
	if err != nil {
		return model.Sample{}, false, fmt.Errorf("failed to query latest value of sensor %d: %w", sensorID, err)
	}
	return s, true, nil
}

// StoreSamples upserts samples in one transaction. A sample for an
// existing sensor and timestamp replaces the stored value.
func (p *Postgres) StoreSamples(ctx context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sensor_values (sensor_id, timestamp, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (sensor_id, timestamp) DO UPDATE SET value = EXCLUDED.value
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.SensorID, s.Timestamp.UTC(), s.Value); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
				return fmt.Errorf("storing sample: %w %d", ErrUnknownSensor, s.SensorID)
			}
			return fmt.Errorf("failed to insert sample of sensor %d: %w", s.SensorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) SamplesInRange(ctx context.Context, sensorID int, start, end time.Time) ([]model.Sample, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT timestamp, value FROM sensor_values
		WHERE sensor_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC`, sensorID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []model.Sample
	for rows.Next() {
		s := model.Sample{SensorID: sensorID}
		if err := rows.Scan(&s.Timestamp, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return samples, nil
}
