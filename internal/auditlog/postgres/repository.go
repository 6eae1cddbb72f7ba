package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/auditlog"
)

// Repository implements auditlog.Repository backed by PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL-backed execution log repository.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(zap.String("component", "auditlog-postgres-repository")),
	}
}

const appendQuery = `
INSERT INTO action_execution_log (
    id, tenant_id, application_id, action_code, stage_id, from_stage_id, to_stage_id,
    outcome_type, is_terminal, executed_by, executed_at,
    signal_snapshot, conditions_evaluated, decision_note, override_reason, reviewed_by, approved_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), $11, $12, $13, $14, $15, $16)
RETURNING executed_at
`

func (r *Repository) Append(ctx context.Context, e *auditlog.Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	snapshotJSON, err := json.Marshal(e.SignalSnapshot)
	if err != nil {
		return fmt.Errorf("marshal signal_snapshot: %w", err)
	}
	conditionsJSON, err := json.Marshal(e.ConditionsEvaluated)
	if err != nil {
		return fmt.Errorf("marshal conditions_evaluated: %w", err)
	}

	err = r.pool.QueryRow(ctx, appendQuery,
		e.ID, e.TenantID, e.ApplicationID, e.ActionCode, e.StageID, e.FromStageID, e.ToStageID,
		e.OutcomeType, e.IsTerminal, e.ExecutedBy,
		snapshotJSON, conditionsJSON, e.DecisionNote, e.OverrideReason, e.ReviewedBy, e.ApprovedBy,
	).Scan(&e.ExecutedAt)
	if err != nil {
		return fmt.Errorf("append execution log entry: %w", err)
	}

	r.logger.Info("execution log entry appended",
		zap.String("application_id", e.ApplicationID.String()),
		zap.String("action_code", e.ActionCode),
	)
	return nil
}

// selectColumns reads the log row plus the read-time display
// enrichments: the executor's email and the acted-on stage's name.
// LEFT JOINs keep rows readable when the reference data has since
// disappeared.
const selectColumns = `
SELECT l.id, l.tenant_id, l.application_id, l.action_code, l.stage_id, l.from_stage_id, l.to_stage_id,
       l.outcome_type, l.is_terminal, l.executed_by, l.executed_at,
       l.signal_snapshot, l.conditions_evaluated, l.decision_note, l.override_reason, l.reviewed_by, l.approved_by,
       u.email, s.name
FROM action_execution_log l
LEFT JOIN users u ON u.id = l.executed_by
LEFT JOIN pipeline_stages s ON s.id = l.stage_id
`

func (r *Repository) List(ctx context.Context, tenantID, applicationID uuid.UUID, f auditlog.Filters) ([]auditlog.Entry, error) {
	query := selectColumns + `WHERE l.tenant_id = $1 AND l.application_id = $2
`
	args := []interface{}{tenantID, applicationID}
	argPos := 3

	if f.OutcomeType != nil {
		query += fmt.Sprintf(" AND l.outcome_type = $%d", argPos)
		args = append(args, *f.OutcomeType)
		argPos++
	}
	if f.ActionCode != nil {
		query += fmt.Sprintf(" AND l.action_code = $%d", argPos)
		args = append(args, *f.ActionCode)
		argPos++
	}
	if f.IsTerminal != nil {
		query += fmt.Sprintf(" AND l.is_terminal = $%d", argPos)
		args = append(args, *f.IsTerminal)
		argPos++
	}

	query += " ORDER BY l.executed_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, f.Limit)
		argPos++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution log: %w", err)
	}
	defer rows.Close()

	var entries []auditlog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const getQuery = selectColumns + `WHERE l.tenant_id = $1 AND l.application_id = $2 AND l.id = $3
`

func (r *Repository) Get(ctx context.Context, tenantID, applicationID, id uuid.UUID) (*auditlog.Entry, error) {
	row := r.pool.QueryRow(ctx, getQuery, tenantID, applicationID, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("execution log entry not found")
		}
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (auditlog.Entry, error) {
	var e auditlog.Entry
	var snapshotJSON, conditionsJSON []byte

	err := row.Scan(
		&e.ID, &e.TenantID, &e.ApplicationID, &e.ActionCode, &e.StageID, &e.FromStageID, &e.ToStageID,
		&e.OutcomeType, &e.IsTerminal, &e.ExecutedBy, &e.ExecutedAt,
		&snapshotJSON, &conditionsJSON, &e.DecisionNote, &e.OverrideReason, &e.ReviewedBy, &e.ApprovedBy,
		&e.ExecutedByEmail, &e.StageName,
	)
	if err != nil {
		return auditlog.Entry{}, fmt.Errorf("scan execution log entry: %w", err)
	}

	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &e.SignalSnapshot); err != nil {
			return auditlog.Entry{}, fmt.Errorf("unmarshal signal_snapshot: %w", err)
		}
	}
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &e.ConditionsEvaluated); err != nil {
			return auditlog.Entry{}, fmt.Errorf("unmarshal conditions_evaluated: %w", err)
		}
	}
	return e, nil
}
