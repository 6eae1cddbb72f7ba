package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/capability"
	"github.com/hiredesk/hiredesk/internal/catalog"
	"github.com/hiredesk/hiredesk/internal/pipeline"
	"github.com/hiredesk/hiredesk/internal/signal"
)

// AutoCreator is the narrow view of the evaluation engine the action
// engine needs for the stage-entry cascade. It is its own interface,
// rather than a dependency on *evaluation.Engine directly, so decision
// never needs to know evaluation's full surface, keeping the action
// engine unaware of upstream producers. exec is the open
// transaction's executor (Tx.Executor()); the cascade must run through
// it so its writes commit or abort with the rest of the decision.
type AutoCreator interface {
	AutoCreate(ctx context.Context, exec any, tenantID, applicationID, stageID uuid.UUID, conductedBy string) error
}

// Engine implements the decision operations: ExecuteAction, MoveStage,
// UpdateStatus, AttachApplicationToPipeline and SetManualSignal.
type Engine struct {
	Store       Store
	Actions     ActionRepository
	Feedback    StageFeedbackRepository
	Statuses    catalog.Repository
	Caps        *capability.Resolver
	Signals     signal.Repository
	Stages      pipeline.Repository
	Evaluations AutoCreator
	Logger      *zap.Logger
}

// NewEngine constructs a decision Engine from its collaborators.
func NewEngine(store Store, actions ActionRepository, feedback StageFeedbackRepository, statuses catalog.Repository, caps *capability.Resolver, signals signal.Repository, stages pipeline.Repository, evaluations AutoCreator, logger *zap.Logger) *Engine {
	return &Engine{
		Store:       store,
		Actions:     actions,
		Feedback:    feedback,
		Statuses:    statuses,
		Caps:        caps,
		Signals:     signals,
		Stages:      stages,
		Evaluations: evaluations,
		Logger:      logger.With(zap.String("component", "decision-engine")),
	}
}

// ExecuteActionInput is the argument to ExecuteAction.
type ExecuteActionInput struct {
	ApplicationID  uuid.UUID
	CallerTenantID uuid.UUID
	CallerUserID   uuid.UUID
	ActionCode     string
	Notes          string
	OverrideReason string
	ReviewedBy     *uuid.UUID
	ApprovedBy     *uuid.UUID
}

// ExecuteAction executes one configured action against one application
// as a single pessimistically-locked transaction.
func (e *Engine) ExecuteAction(ctx context.Context, in ExecuteActionInput) (*State, error) {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback(ctx)
		}
	}()

	// Step 1: load & lock.
	state, err := tx.LoadForUpdate(ctx, in.ApplicationID)
	if err != nil {
		if err == ErrStateNotFound {
			return nil, newError(CodeNotFound, "application %s has no pipeline state", in.ApplicationID)
		}
		return nil, err
	}

	// Step 2: tenant assertion — never trust the caller's tenant against
	// itself, only against the persisted row.
	if state.TenantID != in.CallerTenantID {
		return nil, newError(CodeTenantMismatch, "application belongs to a different tenant")
	}

	// Step 3: terminal gate.
	if state.IsTerminal {
		return nil, newError(CodeTerminalStatus, "application %s is in a terminal state", in.ApplicationID)
	}

	// Step 4: stage load.
	currentStage, err := e.Stages.GetStage(ctx, state.TenantID, state.CurrentStageID)
	if err != nil {
		return nil, newError(CodeNotFound, "current stage %s not found", state.CurrentStageID)
	}

	// Step 5: action lookup.
	action, err := e.Actions.Get(ctx, state.TenantID, currentStage.ID, in.ActionCode)
	if err != nil {
		return nil, newError(CodeInvalidAction, "action %s is not configured for stage %s", in.ActionCode, currentStage.ID)
	}

	// Step 6: capability check, role always resolved server-side by the Resolver.
	allowed, err := e.Caps.Has(ctx, state.TenantID, in.CallerUserID, action.RequiredCapability)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, newError(CodeForbidden, "caller lacks capability %s", action.RequiredCapability)
	}

	// Step 7: notes gate.
	if action.RequiresNotes && strings.TrimSpace(in.Notes) == "" {
		return nil, newError(CodeValidation, "action %s requires notes", in.ActionCode)
	}

	// Step 8: feedback gate.
	if action.RequiresFeedback {
		count, err := e.Feedback.CountForStage(ctx, state.TenantID, in.ApplicationID, string(currentStage.StageType))
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, newError(CodeFeedbackRequired, "action %s requires feedback on the current stage", in.ActionCode)
		}
	}

	// Step 9: signal snapshot — always taken, even with no conditions.
	latest, err := e.Signals.Latest(ctx, state.TenantID, in.ApplicationID)
	if err != nil {
		return nil, err
	}
	latestByKey := make(map[string]signal.Row, len(latest))
	for _, row := range latest {
		latestByKey[row.SignalKey] = row
	}
	snapshot := make(map[string]any, len(latestByKey))
	for key, row := range latestByKey {
		snapshot[key] = row.Value.AsAny()
	}

	// Step 10: signal gate.
	var traces []ConditionTrace
	if len(action.SignalConditionsRaw) > 0 {
		conditions, err := signal.ValidateConditionsJSON(action.SignalConditionsRaw)
		if err != nil {
			return nil, newError(CodeValidation, "invalid signal_conditions: %v", err)
		}
		if conditions != nil {
			traces, err = evaluateConditions(latestByKey, conditions)
			if err != nil {
				return nil, err
			}

			requiresNoteForWarning := false
			for _, t := range traces {
				if t.Warning {
					requiresNoteForWarning = true
				}
			}
			if requiresNoteForWarning && strings.TrimSpace(in.Notes) == "" {
				return nil, newError(CodeValidation, "a warned signal condition requires notes")
			}

			if gateFailed := signalGateFails(conditions.Logic, traces); gateFailed {
				return nil, newErrorWithDetails(CodeSignalsNotMet, traces, "signal gate rejected: %s", formatFailures(traces))
			}
		}
	}

	// Step 11: HOLD/ACTIVATE guard. A nil action.OutcomeType leaves the
	// application's outcome unchanged and is unconstrained by this guard.
	if action.OutcomeType != nil {
		if !validHoldActivateGuard(*action.OutcomeType, state.OutcomeType) {
			return nil, newError(CodeInvalidAction, "outcome_type %s is not reachable from %s", *action.OutcomeType, state.OutcomeType)
		}
	}

	// Step 12: compute transition.
	newStage := currentStage
	newOutcome := state.OutcomeType
	newTerminal := action.IsTerminal
	newStatus := state.Status

	if action.MovesToNextStage {
		next, err := e.Stages.NextStage(ctx, state.TenantID, currentStage)
		if err != nil {
			return nil, newError(CodeInvalidAction, "application is at the last stage")
		}
		newStage = next
	}

	if action.OutcomeType != nil {
		newOutcome = *action.OutcomeType
		status, err := e.Statuses.ResolveForOutcome(ctx, state.TenantID, newOutcome, newTerminal)
		if err != nil {
			return nil, newError(CodeInvalidStatus, "no active status matches outcome_type=%s is_terminal=%v", newOutcome, newTerminal)
		}
		newStatus = status.StatusCode
	}

	// Step 13: idempotency.
	hash := eventHash(in.ApplicationID, in.ActionCode, currentStage.ID, newStage.ID, newOutcome, newStatus)
	stageChanged := newStage.ID != currentStage.ID
	unchanged := !stageChanged && newOutcome == state.OutcomeType && newTerminal == state.IsTerminal && newStatus == state.Status
	if unchanged {
		committed = true
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return state, nil
	}

	var notesPtr *string
	if in.Notes != "" {
		notesPtr = &in.Notes
	}

	inserted, err := tx.AppendHistory(ctx, &StageHistoryEntry{
		ID:            uuid.New(),
		TenantID:      state.TenantID,
		ApplicationID: in.ApplicationID,
		EventHash:     hash,
		ActionCode:    in.ActionCode,
		FromStageID:   currentStage.ID,
		ToStageID:     newStage.ID,
		OutcomeType:   newOutcome,
		Status:        newStatus,
		IsTerminal:    newTerminal,
		Reason:        notesPtr,
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		// A concurrent retry already recorded this exact transition.
		committed = true
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return state, nil
	}

	// Step 14: mutate pipeline state.
	state.CurrentStageID = newStage.ID
	state.OutcomeType = newOutcome
	state.IsTerminal = newTerminal
	state.Status = newStatus
	if err := tx.MutateState(ctx, state, stageChanged); err != nil {
		return nil, err
	}

	// Step 15: append execution log.
	var overridePtr *string
	if in.OverrideReason != "" {
		overridePtr = &in.OverrideReason
	}
	if err := tx.AppendExecutionLog(ctx, &ExecutionLogWrite{
		TenantID:            state.TenantID,
		ApplicationID:       in.ApplicationID,
		ActionCode:          in.ActionCode,
		StageID:             currentStage.ID,
		FromStageID:         currentStage.ID,
		ToStageID:           newStage.ID,
		OutcomeType:         string(newOutcome),
		IsTerminal:          newTerminal,
		ExecutedBy:          in.CallerUserID,
		SignalSnapshot:      snapshot,
		ConditionsEvaluated: traces,
		DecisionNote:        notesPtr,
		OverrideReason:      overridePtr,
		ReviewedBy:          in.ReviewedBy,
		ApprovedBy:          in.ApprovedBy,
	}); err != nil {
		return nil, err
	}

	// Step 16: cascade auto-create. Runs through the same transaction
	// as every other step so a failure here aborts the whole decision
	// rather than leaving a committed stage advance with no evaluation
	// instance behind it.
	if stageChanged && e.Evaluations != nil {
		if err := e.Evaluations.AutoCreate(ctx, tx.Executor(), state.TenantID, in.ApplicationID, newStage.ID, newStage.ConductedBy); err != nil {
			return nil, fmt.Errorf("auto-create cascade: %w", err)
		}
	}

	committed = true
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Step 17.
	return state, nil
}

// evaluateConditions applies each signal-gate clause against the
// latest signals, with explicit missing-signal semantics.
func evaluateConditions(latest map[string]signal.Row, conditions *signal.SignalConditions) ([]ConditionTrace, error) {
	traces := make([]ConditionTrace, 0, len(conditions.Conditions))
	for _, c := range conditions.Conditions {
		row, present := latest[c.Signal]
		trace := ConditionTrace{
			Signal:    c.Signal,
			Operator:  string(c.Operator),
			Expected:  c.Value,
			OnMissing: c.OnMissing,
		}

		if !present {
			switch c.OnMissing {
			case "ALLOW":
				trace.Met = true
				trace.Reason = "MISSING_ALLOWED"
			case "WARN":
				trace.Met = true
				trace.Reason = "MISSING_WITH_WARNING"
				trace.Warning = true
			default:
				// BLOCK, or an unknown token, fails closed.
				trace.Met = false
				trace.Reason = "SIGNAL_MISSING"
			}
			traces = append(traces, trace)
			continue
		}

		trace.Actual = row.Value.AsString()
		met, err := signal.Evaluate(row.SignalType, row.Value, c.Operator, c.Value)
		if err != nil {
			met = false
		}
		trace.Met = met
		traces = append(traces, trace)
	}
	return traces, nil
}

func signalGateFails(logic string, traces []ConditionTrace) bool {
	switch logic {
	case "ANY":
		for _, t := range traces {
			if t.Met {
				return false
			}
		}
		return true
	default: // ALL
		for _, t := range traces {
			if !t.Met {
				return true
			}
		}
		return false
	}
}

func formatFailures(traces []ConditionTrace) string {
	var failed []string
	for _, t := range traces {
		if !t.Met {
			failed = append(failed, t.Signal+" "+t.Operator+" "+t.Expected+" (actual: "+t.Actual+")")
		}
	}
	return strings.Join(failed, "; ")
}
