package decision

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrStateNotFound is returned when no pipeline state row exists for
	// an application.
	ErrStateNotFound = errors.New("decision: pipeline state not found")
	// ErrStateExists is returned by AttachApplicationToPipeline on a
	// duplicate application_id.
	ErrStateExists = errors.New("decision: pipeline state already exists")
	// ErrActionNotFound is returned when (tenant, stage, action_code)
	// has no active TenantStageAction row.
	ErrActionNotFound = errors.New("decision: action not configured for stage")
)

// Tx is an open transaction holding the pipeline state row lock for the
// duration of one decision. It bundles every write the core atomic step
// performs: stage history, pipeline state mutation, and the execution
// log append all happen through the same Tx so they commit or abort
// together.
type Tx interface {
	// LoadForUpdate locks and returns the pipeline state row for an
	// application. Returns ErrStateNotFound if absent.
	LoadForUpdate(ctx context.Context, applicationID uuid.UUID) (*State, error)

	// AppendHistory inserts a stage history row. A duplicate event_hash
	// is a no-op (ON CONFLICT DO NOTHING); inserted reports which.
	AppendHistory(ctx context.Context, e *StageHistoryEntry) (inserted bool, err error)

	// MutateState updates current_stage_id, outcome_type, is_terminal,
	// status, updated_at and, when stageChanged, entered_stage_at.
	MutateState(ctx context.Context, s *State, stageChanged bool) error

	// AppendExecutionLog inserts the execution log row for this decision.
	AppendExecutionLog(ctx context.Context, e *ExecutionLogWrite) error

	// Executor exposes the underlying transactional handle (a pgx.Tx,
	// for the PostgreSQL implementation) so a collaborator invoked
	// mid-transaction, such as AutoCreator's stage-entry cascade, can
	// perform its own writes against the same transaction instead of
	// opening a second one. Callers outside this package should treat
	// the result as opaque and pass it along unexamined.
	Executor() any

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens decision transactions and creates new pipeline state rows.
type Store interface {
	// Begin opens a Tx. Callers must Commit or Rollback it.
	Begin(ctx context.Context) (Tx, error)

	// Create inserts the single pipeline state row for an application
	// (AttachApplicationToPipeline). Returns ErrStateExists on a
	// duplicate application_id. cascade, if non-nil, runs inside the
	// same transaction as the insert, after it succeeds and before
	// commit; an error from cascade aborts the whole Create.
	Create(ctx context.Context, s *State, firstHistory *StageHistoryEntry, cascade func(ctx context.Context, exec any) error) error
}

// ExecutionLogWrite is the subset of auditlog.Entry the decision engine
// populates when it appends the log row for a successful action.
type ExecutionLogWrite struct {
	TenantID            uuid.UUID
	ApplicationID       uuid.UUID
	ActionCode          string
	StageID             uuid.UUID
	FromStageID         uuid.UUID
	ToStageID           uuid.UUID
	OutcomeType         string
	IsTerminal          bool
	ExecutedBy          uuid.UUID
	SignalSnapshot      map[string]any
	ConditionsEvaluated []ConditionTrace
	DecisionNote        *string
	OverrideReason      *string
	ReviewedBy          *uuid.UUID
	ApprovedBy          *uuid.UUID
}

// ConditionTrace is one evaluated clause recorded for audit.
type ConditionTrace struct {
	Signal    string `json:"signal"`
	Operator  string `json:"operator"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	OnMissing string `json:"on_missing"`
	Met       bool   `json:"met"`
	Reason    string `json:"reason"`
	Warning   bool   `json:"warning"`
}

// ActionRepository resolves configured actions for a stage.
type ActionRepository interface {
	// Get looks up an active action by (tenant, stage, action_code).
	// Returns ErrActionNotFound if missing or inactive.
	Get(ctx context.Context, tenantID, stageID uuid.UUID, actionCode string) (*TenantStageAction, error)
}

// StageFeedbackRepository is the read-only count used by the feedback
// gate. Feedback submission itself is out of scope.
type StageFeedbackRepository interface {
	CountForStage(ctx context.Context, tenantID, applicationID uuid.UUID, stageName string) (int, error)
}
