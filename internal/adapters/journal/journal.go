// Package journal keeps a sqlite history of reset decisions for later
// inspection. Nothing in it is read back into the drift monitor.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/okian/anchordrift/internal/domain/confidence"
	"github.com/okian/anchordrift/internal/domain/drift"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/threshold"
	"github.com/okian/anchordrift/pkg/logger"
	"github.com/okian/anchordrift/pkg/metrics"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const defaultListLimit = 100

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal appends decisions to a sqlite table.
type Journal struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
	logger logger.Logger
}

// Option applies a configuration option to the Journal.
type Option func(*Journal)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema.
func Open(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	if path == "" {
		return nil, ErrNoPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	j := &Journal{db: db}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = logger.Get().Named("journal")
	}

	if err := j.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	j.logger.Info(ctx, "journal ready", logger.String("path", path))
	return j, nil
}

func (j *Journal) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: j.logger}

	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (j *Journal) Version(ctx context.Context) (uint, error) {
	var version uint
	err := j.db.QueryRowContext(ctx, `SELECT version FROM schema_migrations LIMIT 1`).Scan(&version)
	return version, err
}

// Record appends one decision.
func (j *Journal) Record(ctx context.Context, d model.Decision) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}

	e := d.Evaluation
	c := e.Confidence
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO decisions (
			session_id, event_id, trigger_kind, decided_at, reset, rule, decayed, at_ms,
			quality, ar_confidence, indoor_confidence, agreement, agreement_distance,
			ar_displacement, indoor_displacement,
			threshold_value, threshold_at, dynamic_value, dynamic_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.EventID, string(d.Trigger), d.Time.UnixMilli(), e.Reset, string(e.Rule), e.Decayed, e.At,
		c.Quality, c.ARConfidence, c.IndoorConfidence, c.Agreement, c.AgreementDistance,
		c.ARDisplacement, c.IndoorDisplacement,
		e.Threshold.Value, e.Threshold.Timestamp, e.DynamicThreshold.Value, e.DynamicThreshold.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record decision %s/%s: %w", d.SessionID, d.EventID, err)
	}
	metrics.RecordJournalWrite()
	return nil
}

// List returns up to limit decisions of a session, newest first.
// A non-positive limit selects the default.
func (j *Journal) List(ctx context.Context, sessionID string, limit int) ([]model.Decision, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, event_id, trigger_kind, decided_at, reset, rule, decayed, at_ms,
			quality, ar_confidence, indoor_confidence, agreement, agreement_distance,
			ar_displacement, indoor_displacement,
			threshold_value, threshold_at, dynamic_value, dynamic_at
		FROM decisions
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions %s: %w", sessionID, err)
	}
	defer rows.Close()

	out := make([]model.Decision, 0, limit)
	for rows.Next() {
		var (
			d         model.Decision
			trigger   string
			rule      string
			decidedAt int64
			c         confidence.Result
			e         drift.Evaluation
		)
		err := rows.Scan(&d.SessionID, &d.EventID, &trigger, &decidedAt, &e.Reset, &rule, &e.Decayed, &e.At,
			&c.Quality, &c.ARConfidence, &c.IndoorConfidence, &c.Agreement, &c.AgreementDistance,
			&c.ARDisplacement, &c.IndoorDisplacement,
			&e.Threshold.Value, &e.Threshold.Timestamp, &e.DynamicThreshold.Value, &e.DynamicThreshold.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Trigger = model.Kind(trigger)
		d.Time = time.UnixMilli(decidedAt).UTC()
		e.Rule = threshold.Rule(rule)
		e.Confidence = c
		d.Evaluation = e
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of stored decisions of a session.
func (j *Journal) Count(ctx context.Context, sessionID string) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return 0, ErrClosed
	}
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// Close closes the database. It is safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// migrateLogger adapts the service logger to migrate.Logger.
type migrateLogger struct {
	logger logger.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(context.Background(), fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
