package decision

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hiredesk/hiredesk/internal/capability"
	"github.com/hiredesk/hiredesk/internal/catalog"
	"github.com/hiredesk/hiredesk/internal/signal"
)

// AttachApplicationToPipelineInput is the argument to
// AttachApplicationToPipeline.
type AttachApplicationToPipelineInput struct {
	TenantID      uuid.UUID
	ApplicationID uuid.UUID
	JobID         uuid.UUID
	PipelineID    uuid.UUID
	FirstStageID  uuid.UUID
	UserID        *uuid.UUID
}

// AttachApplicationToPipeline creates the single pipeline state row for
// an application and an initial history record, cascading stage
// auto-create on the first stage. A second call for the same
// application fails with CONFLICT.
func (e *Engine) AttachApplicationToPipeline(ctx context.Context, in AttachApplicationToPipelineInput) (*State, error) {
	firstStage, err := e.Stages.GetStage(ctx, in.TenantID, in.FirstStageID)
	if err != nil {
		return nil, newError(CodeNotFound, "first stage %s not found", in.FirstStageID)
	}

	status, err := e.Statuses.ResolveForOutcome(ctx, in.TenantID, catalog.OutcomeActive, false)
	if err != nil {
		return nil, newError(CodeInvalidStatus, "no active ACTIVE status configured for tenant")
	}

	state := &State{
		ID:             uuid.New(),
		ApplicationID:  in.ApplicationID,
		TenantID:       in.TenantID,
		JobID:          in.JobID,
		PipelineID:     in.PipelineID,
		CurrentStageID: in.FirstStageID,
		Status:         status.StatusCode,
		OutcomeType:    catalog.OutcomeActive,
		IsTerminal:     false,
	}

	hash := eventHash(in.ApplicationID, "ATTACH", uuid.Nil, in.FirstStageID, catalog.OutcomeActive, status.StatusCode)
	firstHistory := &StageHistoryEntry{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		ApplicationID: in.ApplicationID,
		EventHash:     hash,
		ActionCode:    "ATTACH",
		FromStageID:   uuid.Nil,
		ToStageID:     in.FirstStageID,
		OutcomeType:   catalog.OutcomeActive,
		Status:        status.StatusCode,
		IsTerminal:    false,
	}

	frozen, err := e.Stages.IsStageListFrozen(ctx, in.TenantID, in.PipelineID)
	if err != nil {
		return nil, err
	}
	if !frozen {
		if err := e.Stages.FreezeStageList(ctx, in.TenantID, in.PipelineID); err != nil {
			return nil, err
		}
	}

	var cascade func(ctx context.Context, exec any) error
	if e.Evaluations != nil {
		cascade = func(ctx context.Context, exec any) error {
			return e.Evaluations.AutoCreate(ctx, exec, in.TenantID, in.ApplicationID, firstStage.ID, firstStage.ConductedBy)
		}
	}

	if err := e.Store.Create(ctx, state, firstHistory, cascade); err != nil {
		if err == ErrStateExists {
			return nil, newError(CodeConflict, "application %s is already attached to a pipeline", in.ApplicationID)
		}
		return nil, err
	}

	return state, nil
}

// MoveStageInput is the argument to MoveStage.
type MoveStageInput struct {
	TenantID      uuid.UUID
	CallerUserID  uuid.UUID
	ApplicationID uuid.UUID
	ToStageID     uuid.UUID
	Reason        string
}

// MoveStage moves an application directly to a stage: linearized
// within the same pipeline via the same row lock as ExecuteAction,
// rejects terminal applications, and is idempotent on the same target.
// Moving outside the configured action flow requires OVERRIDE_FLOW.
func (e *Engine) MoveStage(ctx context.Context, in MoveStageInput) (*State, error) {
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

	state, err := tx.LoadForUpdate(ctx, in.ApplicationID)
	if err != nil {
		if err == ErrStateNotFound {
			return nil, newError(CodeNotFound, "application %s has no pipeline state", in.ApplicationID)
		}
		return nil, err
	}
	if state.TenantID != in.TenantID {
		return nil, newError(CodeTenantMismatch, "application belongs to a different tenant")
	}
	if state.IsTerminal {
		return nil, newError(CodeTerminalStatus, "application %s is in a terminal state", in.ApplicationID)
	}

	allowed, err := e.Caps.Has(ctx, state.TenantID, in.CallerUserID, capability.OverrideFlow)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, newError(CodeForbidden, "caller lacks capability %s", capability.OverrideFlow)
	}

	toStage, err := e.Stages.GetStage(ctx, state.TenantID, in.ToStageID)
	if err != nil {
		return nil, newError(CodeNotFound, "target stage %s not found", in.ToStageID)
	}
	if toStage.PipelineID != state.PipelineID {
		return nil, newError(CodeInvalidAction, "target stage does not belong to this application's pipeline")
	}

	hash := eventHash(in.ApplicationID, "MOVE_STAGE", state.CurrentStageID, toStage.ID, state.OutcomeType, state.Status)
	if toStage.ID == state.CurrentStageID {
		committed = true
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return state, nil
	}

	var reasonPtr *string
	if in.Reason != "" {
		reasonPtr = &in.Reason
	}

	inserted, err := tx.AppendHistory(ctx, &StageHistoryEntry{
		ID:            uuid.New(),
		TenantID:      state.TenantID,
		ApplicationID: in.ApplicationID,
		EventHash:     hash,
		ActionCode:    "MOVE_STAGE",
		FromStageID:   state.CurrentStageID,
		ToStageID:     toStage.ID,
		OutcomeType:   state.OutcomeType,
		Status:        state.Status,
		IsTerminal:    state.IsTerminal,
		Reason:        reasonPtr,
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		state.CurrentStageID = toStage.ID
		if err := tx.MutateState(ctx, state, true); err != nil {
			return nil, err
		}

		if e.Evaluations != nil {
			if err := e.Evaluations.AutoCreate(ctx, tx.Executor(), state.TenantID, in.ApplicationID, toStage.ID, toStage.ConductedBy); err != nil {
				return nil, fmt.Errorf("auto-create cascade: %w", err)
			}
		}
	}

	committed = true
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return state, nil
}

// UpdateStatusInput is the argument to UpdateStatus.
type UpdateStatusInput struct {
	TenantID      uuid.UUID
	CallerUserID  uuid.UUID
	ApplicationID uuid.UUID
	StatusCode    string
	Reason        string
}

// UpdateStatus changes an application's status directly: requires
// CHANGE_STATUS, the target status must exist in the tenant's catalog
// and be active, terminal sources are rejected, and repeating the same
// target is idempotent.
func (e *Engine) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*State, error) {
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

	state, err := tx.LoadForUpdate(ctx, in.ApplicationID)
	if err != nil {
		if err == ErrStateNotFound {
			return nil, newError(CodeNotFound, "application %s has no pipeline state", in.ApplicationID)
		}
		return nil, err
	}
	if state.TenantID != in.TenantID {
		return nil, newError(CodeTenantMismatch, "application belongs to a different tenant")
	}
	if state.IsTerminal {
		return nil, newError(CodeTerminalStatus, "application %s is in a terminal state", in.ApplicationID)
	}

	allowed, err := e.Caps.Has(ctx, state.TenantID, in.CallerUserID, capability.ChangeStatus)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, newError(CodeForbidden, "caller lacks capability %s", capability.ChangeStatus)
	}

	target, err := e.Statuses.Get(ctx, in.TenantID, in.StatusCode)
	if err != nil || !target.IsActive {
		return nil, newError(CodeInvalidStatus, "status %s is not active for this tenant", in.StatusCode)
	}

	hash := eventHash(in.ApplicationID, "UPDATE_STATUS", state.CurrentStageID, state.CurrentStageID, target.OutcomeType, target.StatusCode)
	if target.StatusCode == state.Status {
		committed = true
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return state, nil
	}

	var reasonPtr *string
	if in.Reason != "" {
		reasonPtr = &in.Reason
	}

	inserted, err := tx.AppendHistory(ctx, &StageHistoryEntry{
		ID:            uuid.New(),
		TenantID:      state.TenantID,
		ApplicationID: in.ApplicationID,
		EventHash:     hash,
		ActionCode:    "UPDATE_STATUS",
		FromStageID:   state.CurrentStageID,
		ToStageID:     state.CurrentStageID,
		OutcomeType:   target.OutcomeType,
		Status:        target.StatusCode,
		IsTerminal:    target.IsTerminal,
		Reason:        reasonPtr,
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		state.OutcomeType = target.OutcomeType
		state.Status = target.StatusCode
		state.IsTerminal = target.IsTerminal
		if err := tx.MutateState(ctx, state, false); err != nil {
			return nil, err
		}
	}

	committed = true
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return state, nil
}

// SetManualSignalInput is the argument to SetManualSignal.
type SetManualSignalInput struct {
	TenantID      uuid.UUID
	CallerUserID  uuid.UUID
	ApplicationID uuid.UUID
	SignalKey     string
	SignalType    signal.Type
	Value         signal.Value
	Note          string
}

// SetManualSignal is the manual override write: requires
// MANAGE_SETTINGS and versions the key through the signal store like
// any other write.
func (e *Engine) SetManualSignal(ctx context.Context, in SetManualSignalInput) (*signal.Row, error) {
	allowed, err := e.Caps.Has(ctx, in.TenantID, in.CallerUserID, capability.ManageSettings)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, newError(CodeForbidden, "caller lacks capability %s", capability.ManageSettings)
	}

	return e.Signals.PutSignal(ctx, signal.PutSignalInput{
		TenantID:      in.TenantID,
		ApplicationID: in.ApplicationID,
		SignalKey:     in.SignalKey,
		SignalType:    in.SignalType,
		Value:         in.Value,
		SourceType:    signal.SourceManual,
		SetBy:         in.CallerUserID,
	})
}
