package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    traffic_allocation REAL NOT NULL DEFAULT 100,
    variants TEXT NOT NULL,
    targeting TEXT,
    primary_metric TEXT NOT NULL DEFAULT '',
    secondary_metrics TEXT,
    start_at INTEGER,
    end_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS feature_flags (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 0,
    rollout_percentage REAL NOT NULL DEFAULT 0,
    targeting TEXT,
    value TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
    user_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    assigned_at INTEGER NOT NULL,
    exposure_count INTEGER NOT NULL DEFAULT 0,
    last_exposure_at INTEGER,
    converted INTEGER NOT NULL DEFAULT 0,
    converted_at INTEGER,
    PRIMARY KEY (user_id, experiment_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_experiment ON assignments(experiment_id);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    event_name TEXT NOT NULL DEFAULT '',
    value REAL,
    metadata TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON events(experiment_id);
CREATE INDEX IF NOT EXISTS idx_events_experiment_type ON events(experiment_id, event_type);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	targetingJSON, err := marshalNullable(exp.Targeting)
	if err != nil {
		return fmt.Errorf("failed to marshal targeting: %w", err)
	}
	var metricsJSON []byte
	if len(exp.SecondaryMetrics) > 0 {
		metricsJSON, err = json.Marshal(exp.SecondaryMetrics)
		if err != nil {
			return fmt.Errorf("failed to marshal secondary metrics: %w", err)
		}
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, description, status, traffic_allocation, variants, targeting, primary_metric, secondary_metrics, start_at, end_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Description, string(exp.Status), exp.TrafficAllocation,
		string(variantsJSON), nullableString(targetingJSON), exp.PrimaryMetric,
		nullableString(metricsJSON), nullableUnix(exp.StartAt), nullableUnix(exp.EndAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	exp.CreatedAt = time.Unix(now, 0)
	exp.UpdatedAt = time.Unix(now, 0)
	return nil
}

const experimentColumns = `id, name, description, status, traffic_allocation, variants, targeting, primary_metric, secondary_metrics, start_at, end_at, created_at, updated_at`

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var exps []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		exps = append(exps, exp)
	}
	return exps, rows.Err()
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) CreateFlag(ctx context.Context, flag *FeatureFlag) error {
	targetingJSON, err := marshalNullable(flag.Targeting)
	if err != nil {
		return fmt.Errorf("failed to marshal targeting: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feature_flags (id, name, enabled, rollout_percentage, targeting, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		flag.ID, flag.Name, boolToInt(flag.Enabled), flag.RolloutPercentage,
		nullableString(targetingJSON), nullableString(flag.Value), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flag: %w", err)
	}

	flag.CreatedAt = time.Unix(now, 0)
	flag.UpdatedAt = time.Unix(now, 0)
	return nil
}

const flagColumns = `id, name, enabled, rollout_percentage, targeting, value, created_at, updated_at`

func (s *SQLiteStore) GetFlag(ctx context.Context, id string) (*FeatureFlag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flagColumns+` FROM feature_flags WHERE id = ?`, id)
	flag, err := scanFlag(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flag: %w", err)
	}
	return flag, nil
}

func (s *SQLiteStore) ListFlags(ctx context.Context) ([]*FeatureFlag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flagColumns+` FROM feature_flags ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer rows.Close()

	var flags []*FeatureFlag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func (s *SQLiteStore) UpdateFlag(ctx context.Context, flag *FeatureFlag) error {
	targetingJSON, err := marshalNullable(flag.Targeting)
	if err != nil {
		return fmt.Errorf("failed to marshal targeting: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE feature_flags SET name = ?, enabled = ?, rollout_percentage = ?, targeting = ?, value = ?, updated_at = ? WHERE id = ?`,
		flag.Name, boolToInt(flag.Enabled), flag.RolloutPercentage,
		nullableString(targetingJSON), nullableString(flag.Value), time.Now().Unix(), flag.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update flag: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) DeleteFlag(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM feature_flags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete flag: %w", err)
	}
	return requireRows(result)
}

// InsertAssignment is insert-if-absent: the first writer for a
// (user, experiment) pair wins and every later writer gets the stored row
// back. INSERT OR IGNORE on the primary key provides the atomicity.
func (s *SQLiteStore) InsertAssignment(ctx context.Context, a *Assignment) (*Assignment, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assignments (user_id, experiment_id, variant_id, assigned_at, exposure_count, last_exposure_at, converted, converted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.ExperimentID, a.VariantID, a.AssignedAt.Unix(),
		a.ExposureCount, nullableUnix(a.LastExposureAt), boolToInt(a.Converted), nullableUnix(a.ConvertedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert assignment: %w", err)
	}
	return s.GetAssignment(ctx, a.UserID, a.ExperimentID)
}

const assignmentColumns = `user_id, experiment_id, variant_id, assigned_at, exposure_count, last_exposure_at, converted, converted_at`

func (s *SQLiteStore) GetAssignment(ctx context.Context, userID, experimentID string) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE user_id = ? AND experiment_id = ?`,
		userID, experimentID)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) RecordExposure(ctx context.Context, userID, experimentID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET exposure_count = exposure_count + 1, last_exposure_at = ? WHERE user_id = ? AND experiment_id = ?`,
		at.Unix(), userID, experimentID)
	if err != nil {
		return fmt.Errorf("failed to record exposure: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) MarkConverted(ctx context.Context, userID, experimentID string, at time.Time) (bool, error) {
	// Guarding on converted = 0 makes the first conversion the only write.
	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET converted = 1, converted_at = ? WHERE user_id = ? AND experiment_id = ? AND converted = 0`,
		at.Unix(), userID, experimentID)
	if err != nil {
		return false, fmt.Errorf("failed to mark converted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *Event) error {
	var metadataJSON []byte
	if len(e.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, experiment_id, variant_id, event_type, event_name, value, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.ExperimentID, e.VariantID, string(e.Type), e.Name,
		nullableFloat(e.Value), nullableString(metadataJSON), e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, experimentID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, experiment_id, variant_id, event_type, event_name, value, metadata, created_at
		 FROM events WHERE experiment_id = ? ORDER BY created_at`,
		experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// VariantCounts tallies participants from the assignment table and
// exposures/conversions from the event log, grouped by variant.
func (s *SQLiteStore) VariantCounts(ctx context.Context, experimentID string) ([]VariantCounts, error) {
	counts := make(map[string]*VariantCounts)
	var order []string
	get := func(variantID string) *VariantCounts {
		if c, ok := counts[variantID]; ok {
			return c
		}
		c := &VariantCounts{VariantID: variantID}
		counts[variantID] = c
		order = append(order, variantID)
		return c
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, COUNT(*) FROM assignments WHERE experiment_id = ? GROUP BY variant_id ORDER BY variant_id`,
		experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	for rows.Next() {
		var variantID string
		var n int
		if err := rows.Scan(&variantID, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan assignment counts: %w", err)
		}
		get(variantID).Participants = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT
			variant_id,
			SUM(CASE WHEN event_type = 'exposure' THEN 1 ELSE 0 END),
			SUM(CASE WHEN event_type = 'conversion' THEN 1 ELSE 0 END)
		FROM events
		WHERE experiment_id = ?
		GROUP BY variant_id
		ORDER BY variant_id
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var variantID string
		var exposures, conversions int
		if err := rows.Scan(&variantID, &exposures, &conversions); err != nil {
			return nil, fmt.Errorf("failed to scan event counts: %w", err)
		}
		c := get(variantID)
		c.Exposures = exposures
		c.Conversions = conversions
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]VariantCounts, 0, len(order))
	for _, id := range order {
		out = append(out, *counts[id])
	}
	return out, nil
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ExportAll(ctx context.Context) (*Dump, error) {
	exps, err := s.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	flags, err := s.ListFlags(ctx)
	if err != nil {
		return nil, err
	}

	var assignments []*Assignment
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments ORDER BY experiment_id, user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var events []*Event
	rows, err = s.db.QueryContext(ctx,
		`SELECT id, user_id, experiment_id, variant_id, event_type, event_name, value, metadata, created_at
		 FROM events ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Dump{
		ExportedAt:   time.Now(),
		Experiments:  exps,
		FeatureFlags: flags,
		Assignments:  assignments,
		Events:       events,
	}, nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	for _, table := range []string{"events", "assignments", "feature_flags", "experiments", "settings"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (*Experiment, error) {
	var exp Experiment
	var status string
	var variantsJSON string
	var targetingJSON, metricsJSON sql.NullString
	var startAt, endAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &exp.Description, &status, &exp.TrafficAllocation,
		&variantsJSON, &targetingJSON, &exp.PrimaryMetric, &metricsJSON,
		&startAt, &endAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	exp.Status = ExperimentStatus(status)
	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if targetingJSON.Valid && targetingJSON.String != "" {
		if err := json.Unmarshal([]byte(targetingJSON.String), &exp.Targeting); err != nil {
			return nil, fmt.Errorf("failed to unmarshal targeting: %w", err)
		}
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		if err := json.Unmarshal([]byte(metricsJSON.String), &exp.SecondaryMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal secondary metrics: %w", err)
		}
	}
	exp.StartAt = timeFromNullable(startAt)
	exp.EndAt = timeFromNullable(endAt)
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)
	return &exp, nil
}

func scanFlag(row scanner) (*FeatureFlag, error) {
	var flag FeatureFlag
	var enabled int
	var targetingJSON, valueJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&flag.ID, &flag.Name, &enabled, &flag.RolloutPercentage,
		&targetingJSON, &valueJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	flag.Enabled = enabled != 0
	if targetingJSON.Valid && targetingJSON.String != "" {
		if err := json.Unmarshal([]byte(targetingJSON.String), &flag.Targeting); err != nil {
			return nil, fmt.Errorf("failed to unmarshal targeting: %w", err)
		}
	}
	if valueJSON.Valid && valueJSON.String != "" {
		flag.Value = json.RawMessage(valueJSON.String)
	}
	flag.CreatedAt = time.Unix(createdAt, 0)
	flag.UpdatedAt = time.Unix(updatedAt, 0)
	return &flag, nil
}

func scanAssignment(row scanner) (*Assignment, error) {
	var a Assignment
	var assignedAt int64
	var lastExposureAt, convertedAt sql.NullInt64
	var converted int

	err := row.Scan(&a.UserID, &a.ExperimentID, &a.VariantID, &assignedAt,
		&a.ExposureCount, &lastExposureAt, &converted, &convertedAt)
	if err != nil {
		return nil, err
	}

	a.AssignedAt = time.Unix(assignedAt, 0)
	a.LastExposureAt = timeFromNullable(lastExposureAt)
	a.Converted = converted != 0
	a.ConvertedAt = timeFromNullable(convertedAt)
	return &a, nil
}

func scanEvent(row scanner) (*Event, error) {
	var e Event
	var eventType string
	var value sql.NullFloat64
	var metadataJSON sql.NullString
	var createdAt int64

	err := row.Scan(&e.ID, &e.UserID, &e.ExperimentID, &e.VariantID, &eventType,
		&e.Name, &value, &metadataJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	e.Type = EventType(eventType)
	if value.Valid {
		v := value.Float64
		e.Value = &v
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	// Typed nil pointers still marshal as "null"; skip them.
	if t, ok := v.(*Targeting); ok && t == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func requireRows(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func timeFromNullable(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
