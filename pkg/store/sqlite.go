package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// LogTimeLayout is the wall-clock format of the log_time column.
const LogTimeLayout = "2006-01-02 15:04:05"

const createVehicleLog = `
CREATE TABLE IF NOT EXISTS vehicle_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ms INTEGER,
    road TEXT,
    speed REAL,
    status TEXT,
    log_time TEXT
)`

const createJunctionLog = `
CREATE TABLE IF NOT EXISTS junction_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    road TEXT,
    count INTEGER,
    log_time TEXT
)`

// Columns added to junction_log after the first schema; databases created by
// older loggers are migrated in place.
var junctionLogColumns = []struct {
	name string
	def  string
}{
	{"timestamp_ms", "INTEGER"},
	{"snapshot_id", "TEXT"},
}

// SQLiteSink stores records in a SQLite database file.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// SQLiteOption configures a SQLiteSink.
type SQLiteOption func(*SQLiteSink)

// WithClock overrides the clock used for the log_time column.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteSink) {
		s.now = now
	}
}

// OpenSQLite opens (creating if needed) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// Single writer keeps appends in arrival order.
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preparing database %s: %w", path, err)
	}

	return s, nil
}

func (s *SQLiteSink) migrate(ctx context.Context) error {
	for _, stmt := range []string{createVehicleLog, createJunctionLog} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}

	existing, err := s.columns(ctx, "junction_log")
	if err != nil {
		return err
	}

	for _, col := range junctionLogColumns {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE junction_log ADD COLUMN %s %s", col.name, col.def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adding column %s: %w", col.name, err)
		}
	}

	return nil
}

func (s *SQLiteSink) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("reading schema of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("reading schema of %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Append stores rec. A CountSnapshot is written as one junction_log row per
// road, sharing a snapshot_id, in a single transaction.
func (s *SQLiteSink) Append(ctx context.Context, rec telemetry.Record) error {
	logTime := s.now().Format(LogTimeLayout)

	switch r := rec.(type) {
	case telemetry.SpeedEvent:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO vehicle_log (timestamp_ms, road, speed, status, log_time) VALUES (?, ?, ?, ?, ?)`,
			r.TimestampMillis, r.Road, r.Speed, r.Status, logTime)
		if err != nil {
			return fmt.Errorf("inserting speed event: %w", err)
		}
		return nil

	case telemetry.CountEvent:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO junction_log (road, count, log_time, timestamp_ms) VALUES (?, ?, ?, ?)`,
			r.Road, r.Count, logTime, r.TimestampMillis)
		if err != nil {
			return fmt.Errorf("inserting count event: %w", err)
		}
		return nil

	case telemetry.CountSnapshot:
		return s.appendSnapshot(ctx, r, logTime)

	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedRecord, rec)
	}
}

func (s *SQLiteSink) appendSnapshot(ctx context.Context, snap telemetry.CountSnapshot, logTime string) error {
	if len(snap.Roads) != len(snap.Counts) {
		return fmt.Errorf("snapshot has %d roads but %d counts", len(snap.Roads), len(snap.Counts))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	for i, road := range snap.Roads {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO junction_log (road, count, log_time, snapshot_id) VALUES (?, ?, ?, ?)`,
			road, snap.Counts[i], logTime, id)
		if err != nil {
			return fmt.Errorf("inserting snapshot row for road %s: %w", road, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
