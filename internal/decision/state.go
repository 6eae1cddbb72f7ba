// Package decision implements the action engine: the central
// state machine that executes one action against one application
// atomically — validating capability, gating on signals and feedback,
// mutating pipeline state, and writing stage history and the execution
// log, all inside a single pessimistically-locked transaction.
package decision

import (
	"time"

	"github.com/google/uuid"

	"github.com/hiredesk/hiredesk/internal/catalog"
)

// State is one application's pipeline state row. Exactly one row
// exists per application, owned exclusively by this package after
// AttachApplicationToPipeline.
type State struct {
	ID             uuid.UUID
	ApplicationID  uuid.UUID
	TenantID       uuid.UUID
	JobID          uuid.UUID
	PipelineID     uuid.UUID
	CurrentStageID uuid.UUID
	Status         string
	OutcomeType    catalog.OutcomeType
	IsTerminal     bool
	EnteredStageAt time.Time
	UpdatedAt      time.Time
}

// TenantStageAction is one configured action on one pipeline stage,
// unique on (tenant_id, stage_id, action_code).
type TenantStageAction struct {
	TenantID            uuid.UUID
	StageID             uuid.UUID
	ActionCode          string
	OutcomeType         *catalog.OutcomeType
	MovesToNextStage    bool
	IsTerminal          bool
	RequiresFeedback    bool
	RequiresNotes       bool
	RequiredCapability  string
	SignalConditionsRaw []byte
	IsActive            bool
}

// StageHistoryEntry is one row of the application's stage history:
// one row per state transition, keyed by a unique event_hash that
// makes retries of the identical logical transition a no-op insert.
type StageHistoryEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	ApplicationID uuid.UUID
	EventHash     string
	ActionCode    string
	FromStageID   uuid.UUID
	ToStageID     uuid.UUID
	OutcomeType   catalog.OutcomeType
	Status        string
	IsTerminal    bool
	Reason        *string
	CreatedAt     time.Time
}

// validHoldActivateGuard guards the hold/activate swap: a HOLD transition is
// only legal from ACTIVE, and an ACTIVATE transition (outcome_type
// ACTIVE) is only legal from HOLD. Any other requested outcome is
// unconstrained by this guard.
func validHoldActivateGuard(requestedOutcome, currentOutcome catalog.OutcomeType) bool {
	switch requestedOutcome {
	case catalog.OutcomeHold:
		return currentOutcome == catalog.OutcomeActive
	case catalog.OutcomeActive:
		return currentOutcome == catalog.OutcomeHold
	default:
		return true
	}
}
