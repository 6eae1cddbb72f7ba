package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/signal"
)

// Repository implements signal.Repository backed by PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL-backed signal store repository.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(zap.String("component", "signal-postgres-repository")),
	}
}

const currentRowQueryAnySource = `
SELECT id FROM application_signals
WHERE application_id = $1 AND signal_key = $2 AND superseded_at IS NULL
FOR UPDATE
`

const currentRowQueryInterviewOnly = `
SELECT id FROM application_signals
WHERE application_id = $1 AND signal_key = $2 AND superseded_at IS NULL AND source_type = 'INTERVIEW'
FOR UPDATE
`

const supersedeQuery = `
UPDATE application_signals SET superseded_at = now(), superseded_by = $2
WHERE id = $1
`

const insertQuery = `
INSERT INTO application_signals (
    id, tenant_id, application_id, signal_key, signal_type,
    value_boolean, value_numeric, value_text,
    source_type, source_id, set_by, set_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
RETURNING set_at
`

// PutSignal implements the supersede-then-insert write. Supersession
// is scoped to signal_key; an INTERVIEW-sourced write additionally
// restricts which prior row it is allowed to supersede to one that was
// itself INTERVIEW-sourced, leaving evaluation/manual signals on the
// same key untouched.
func (r *Repository) PutSignal(ctx context.Context, in signal.PutSignalInput) (*signal.Row, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin put-signal transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := currentRowQueryAnySource
	if in.SourceType == signal.SourceInterview {
		query = currentRowQueryInterviewOnly
	}

	var currentID uuid.UUID
	err = tx.QueryRow(ctx, query, in.ApplicationID, in.SignalKey).Scan(&currentID)
	hasCurrent := true
	if err != nil {
		if err == pgx.ErrNoRows {
			hasCurrent = false
		} else {
			return nil, fmt.Errorf("lock current signal row: %w", err)
		}
	}

	newID := uuid.New()

	if hasCurrent {
		if _, err := tx.Exec(ctx, supersedeQuery, currentID, newID); err != nil {
			return nil, fmt.Errorf("supersede signal row: %w", err)
		}
	}

	row := &signal.Row{
		ID:            newID,
		TenantID:      in.TenantID,
		ApplicationID: in.ApplicationID,
		SignalKey:     in.SignalKey,
		SignalType:    in.SignalType,
		Value:         in.Value,
		SourceType:    in.SourceType,
		SourceID:      in.SourceID,
		SetBy:         in.SetBy,
	}

	err = tx.QueryRow(ctx, insertQuery,
		newID, in.TenantID, in.ApplicationID, in.SignalKey, in.SignalType,
		in.Value.Boolean, in.Value.Numeric, in.Value.Text,
		in.SourceType, in.SourceID, in.SetBy,
	).Scan(&row.SetAt)
	if err != nil {
		return nil, fmt.Errorf("insert signal row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit put-signal transaction: %w", err)
	}

	r.logger.Debug("put signal",
		zap.String("application_id", in.ApplicationID.String()),
		zap.String("signal_key", in.SignalKey),
		zap.String("source_type", string(in.SourceType)),
	)

	return row, nil
}

const latestQuery = `
SELECT id, tenant_id, application_id, signal_key, signal_type,
       value_boolean, value_numeric, value_text,
       source_type, source_id, set_by, set_at, superseded_at, superseded_by
FROM application_signals
WHERE tenant_id = $1 AND application_id = $2 AND superseded_at IS NULL
`

func (r *Repository) Latest(ctx context.Context, tenantID, applicationID uuid.UUID) ([]signal.Row, error) {
	rows, err := r.pool.Query(ctx, latestQuery, tenantID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query latest signals: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

const historyQuery = `
SELECT id, tenant_id, application_id, signal_key, signal_type,
       value_boolean, value_numeric, value_text,
       source_type, source_id, set_by, set_at, superseded_at, superseded_by
FROM application_signals
WHERE tenant_id = $1 AND application_id = $2 AND signal_key = $3
ORDER BY set_at DESC
`

func (r *Repository) History(ctx context.Context, tenantID, applicationID uuid.UUID, key string) ([]signal.Row, error) {
	rows, err := r.pool.Query(ctx, historyQuery, tenantID, applicationID, key)
	if err != nil {
		return nil, fmt.Errorf("query signal history: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]signal.Row, error) {
	var result []signal.Row
	for rows.Next() {
		var row signal.Row
		if err := rows.Scan(
			&row.ID, &row.TenantID, &row.ApplicationID, &row.SignalKey, &row.SignalType,
			&row.Value.Boolean, &row.Value.Numeric, &row.Value.Text,
			&row.SourceType, &row.SourceID, &row.SetBy, &row.SetAt, &row.SupersededAt, &row.SupersededBy,
		); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
