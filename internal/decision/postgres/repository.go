// Package postgres implements the decision package's Store/Tx,
// ActionRepository and StageFeedbackRepository against PostgreSQL. Tx
// wraps one pgx.Tx for the lifetime of a single decision: every write
// ExecuteAction performs — stage history, pipeline state, execution
// log — goes through the same Tx so they commit or abort atomically.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/catalog"
	"github.com/hiredesk/hiredesk/internal/decision"
)

// Store implements decision.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL-backed decision store.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.With(zap.String("component", "decision-postgres-store"))}
}

func (s *Store) Begin(ctx context.Context) (decision.Tx, error) {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin decision transaction: %w", err)
	}
	return &tx{pgTx: pgTx, logger: s.logger}, nil
}

const createStateQuery = `
INSERT INTO application_pipeline_state (
    id, application_id, tenant_id, job_id, pipeline_id, current_stage_id,
    status, outcome_type, is_terminal, entered_stage_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
`

const createFirstHistoryQuery = `
INSERT INTO application_stage_history (
    id, tenant_id, application_id, event_hash, action_code,
    from_stage_id, to_stage_id, outcome_type, status, is_terminal, reason, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (event_hash) DO NOTHING
`

func (s *Store) Create(ctx context.Context, state *decision.State, firstHistory *decision.StageHistoryEntry, cascade func(ctx context.Context, exec any) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin attach transaction: %w", err)
	}
	defer pgTx.Rollback(ctx)

	_, err = pgTx.Exec(ctx, createStateQuery,
		state.ID, state.ApplicationID, state.TenantID, state.JobID, state.PipelineID, state.CurrentStageID,
		state.Status, state.OutcomeType, state.IsTerminal,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return decision.ErrStateExists
		}
		return fmt.Errorf("create pipeline state: %w", err)
	}

	var fromStage interface{} = firstHistory.FromStageID
	if firstHistory.FromStageID == uuid.Nil {
		fromStage = nil
	}

	if _, err := pgTx.Exec(ctx, createFirstHistoryQuery,
		firstHistory.ID, firstHistory.TenantID, firstHistory.ApplicationID, firstHistory.EventHash, firstHistory.ActionCode,
		fromStage, firstHistory.ToStageID, firstHistory.OutcomeType, firstHistory.Status, firstHistory.IsTerminal, firstHistory.Reason,
	); err != nil {
		return fmt.Errorf("insert first history row: %w", err)
	}

	if cascade != nil {
		if err := cascade(ctx, pgTx); err != nil {
			return fmt.Errorf("auto-create cascade: %w", err)
		}
	}

	return pgTx.Commit(ctx)
}

// tx implements decision.Tx over a single pgx.Tx.
type tx struct {
	pgTx   pgx.Tx
	logger *zap.Logger
}

const loadForUpdateQuery = `
SELECT id, application_id, tenant_id, job_id, pipeline_id, current_stage_id,
       status, outcome_type, is_terminal, entered_stage_at, updated_at
FROM application_pipeline_state
WHERE application_id = $1
FOR UPDATE
`

func (t *tx) LoadForUpdate(ctx context.Context, applicationID uuid.UUID) (*decision.State, error) {
	var s decision.State
	err := t.pgTx.QueryRow(ctx, loadForUpdateQuery, applicationID).Scan(
		&s.ID, &s.ApplicationID, &s.TenantID, &s.JobID, &s.PipelineID, &s.CurrentStageID,
		&s.Status, &s.OutcomeType, &s.IsTerminal, &s.EnteredStageAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, decision.ErrStateNotFound
		}
		return nil, fmt.Errorf("load pipeline state for update: %w", err)
	}
	return &s, nil
}

const appendHistoryQuery = `
INSERT INTO application_stage_history (
    id, tenant_id, application_id, event_hash, action_code,
    from_stage_id, to_stage_id, outcome_type, status, is_terminal, reason, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (event_hash) DO NOTHING
`

func (t *tx) AppendHistory(ctx context.Context, e *decision.StageHistoryEntry) (bool, error) {
	tag, err := t.pgTx.Exec(ctx, appendHistoryQuery,
		e.ID, e.TenantID, e.ApplicationID, e.EventHash, e.ActionCode,
		e.FromStageID, e.ToStageID, e.OutcomeType, e.Status, e.IsTerminal, e.Reason,
	)
	if err != nil {
		return false, fmt.Errorf("append stage history: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const mutateStateQuery = `
UPDATE application_pipeline_state
SET current_stage_id = $2, outcome_type = $3, is_terminal = $4, status = $5,
    entered_stage_at = CASE WHEN $6 THEN now() ELSE entered_stage_at END,
    updated_at = now()
WHERE id = $1
`

func (t *tx) MutateState(ctx context.Context, s *decision.State, stageChanged bool) error {
	if _, err := t.pgTx.Exec(ctx, mutateStateQuery, s.ID, s.CurrentStageID, s.OutcomeType, s.IsTerminal, s.Status, stageChanged); err != nil {
		return fmt.Errorf("mutate pipeline state: %w", err)
	}
	return nil
}

const appendExecutionLogQuery = `
INSERT INTO action_execution_log (
    id, tenant_id, application_id, action_code, stage_id, from_stage_id, to_stage_id,
    outcome_type, is_terminal, executed_by, executed_at,
    signal_snapshot, conditions_evaluated, decision_note, override_reason, reviewed_by, approved_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), $11, $12, $13, $14, $15, $16)
`

func (t *tx) AppendExecutionLog(ctx context.Context, e *decision.ExecutionLogWrite) error {
	snapshotJSON, err := json.Marshal(e.SignalSnapshot)
	if err != nil {
		return fmt.Errorf("marshal signal_snapshot: %w", err)
	}
	conditionsJSON, err := json.Marshal(e.ConditionsEvaluated)
	if err != nil {
		return fmt.Errorf("marshal conditions_evaluated: %w", err)
	}

	_, err = t.pgTx.Exec(ctx, appendExecutionLogQuery,
		uuid.New(), e.TenantID, e.ApplicationID, e.ActionCode, e.StageID, e.FromStageID, e.ToStageID,
		e.OutcomeType, e.IsTerminal, e.ExecutedBy,
		snapshotJSON, conditionsJSON, e.DecisionNote, e.OverrideReason, e.ReviewedBy, e.ApprovedBy,
	)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

// Executor returns the underlying pgx.Tx so a mid-transaction
// collaborator (AutoCreator's cascade) can run its own writes against
// this same transaction.
func (t *tx) Executor() any {
	return t.pgTx
}

func (t *tx) Commit(ctx context.Context) error {
	return t.pgTx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	err := t.pgTx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// --- Action repository ---

// ActionRepository implements decision.ActionRepository.
type ActionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewActionRepository creates a PostgreSQL-backed action lookup.
func NewActionRepository(pool *pgxpool.Pool, logger *zap.Logger) *ActionRepository {
	return &ActionRepository{pool: pool, logger: logger.With(zap.String("component", "decision-action-repository"))}
}

const getActionQuery = `
SELECT tenant_id, stage_id, action_code, outcome_type, moves_to_next_stage, is_terminal,
       requires_feedback, requires_notes, required_capability, signal_conditions, is_active
FROM tenant_stage_actions
WHERE tenant_id = $1 AND stage_id = $2 AND action_code = $3 AND is_active = true
`

func (r *ActionRepository) Get(ctx context.Context, tenantID, stageID uuid.UUID, actionCode string) (*decision.TenantStageAction, error) {
	var a decision.TenantStageAction
	var outcome *catalog.OutcomeType
	err := r.pool.QueryRow(ctx, getActionQuery, tenantID, stageID, actionCode).Scan(
		&a.TenantID, &a.StageID, &a.ActionCode, &outcome, &a.MovesToNextStage, &a.IsTerminal,
		&a.RequiresFeedback, &a.RequiresNotes, &a.RequiredCapability, &a.SignalConditionsRaw, &a.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, decision.ErrActionNotFound
		}
		return nil, fmt.Errorf("get tenant stage action: %w", err)
	}
	a.OutcomeType = outcome
	return &a, nil
}

// --- Stage feedback (read-only) ---

// StageFeedbackRepository implements decision.StageFeedbackRepository.
type StageFeedbackRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStageFeedbackRepository creates a PostgreSQL-backed feedback counter.
func NewStageFeedbackRepository(pool *pgxpool.Pool, logger *zap.Logger) *StageFeedbackRepository {
	return &StageFeedbackRepository{pool: pool, logger: logger.With(zap.String("component", "decision-feedback-repository"))}
}

const countFeedbackQuery = `
SELECT count(*) FROM stage_feedback
WHERE tenant_id = $1 AND application_id = $2 AND stage_name = $3
`

func (r *StageFeedbackRepository) CountForStage(ctx context.Context, tenantID, applicationID uuid.UUID, stageName string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, countFeedbackQuery, tenantID, applicationID, stageName).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stage feedback: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
