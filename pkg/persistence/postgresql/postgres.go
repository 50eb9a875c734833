// Package postgresql provides PostgreSQL persistence implementation for workflows, runs, schedules and webhooks.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
)

const uniqueViolation = "23505"

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
	scheduleRepo *ScheduleRepository
	webhookRepo  *WebhookRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and brings the
// schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	connector, err := pq.NewConnector(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	database := sql.OpenDB(connector)

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		runRepo:      NewRunRepository(database, logger),
		scheduleRepo: NewScheduleRepository(database, logger),
		webhookRepo:  NewWebhookRepository(database, logger),
	}

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

func (p *Persistence) WebhookRepository() persistence.WebhookRepository {
	return p.webhookRepo
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	utc := t.Time.UTC()

	return &utc
}

// toJSON encodes a JSONB parameter as text; lib/pq would send []byte as bytea.
func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON column: %w", err)
	}

	return string(data), nil
}

func fromJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON column: %w", err)
	}

	return nil
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// collect scans every row with scan.
func collect[T any](ctx context.Context, logger *slog.Logger, rows *sql.Rows, scan func(scanner) (*T, error)) ([]*T, error) {
	defer closeRows(ctx, logger, rows)

	records := make([]*T, 0)

	for rows.Next() {
		record, err := scan(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
