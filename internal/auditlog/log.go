// Package auditlog implements the execution log: the immutable,
// append-only audit trail of every successful decision. It is written
// inside the decision engine's transaction and read by audit/reporting
// queries.
package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hiredesk/hiredesk/internal/catalog"
)

// ConditionResult is one evaluated clause of a signal gate, recorded
// verbatim into the log for audit.
type ConditionResult struct {
	Signal    string `json:"signal"`
	Operator  string `json:"operator"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual,omitempty"`
	OnMissing string `json:"on_missing"`
	Met       bool   `json:"met"`
	Reason    string `json:"reason,omitempty"`
	Warning   bool   `json:"warning,omitempty"`
}

// Entry is one immutable execution log row. ExecutedByEmail and
// StageName are display enrichments resolved at read time from the
// users and pipeline_stages reference tables; they are never persisted
// on the log row itself.
type Entry struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	ApplicationID       uuid.UUID
	ActionCode          string
	StageID             uuid.UUID
	FromStageID         uuid.UUID
	ToStageID           uuid.UUID
	OutcomeType         catalog.OutcomeType
	IsTerminal          bool
	ExecutedBy          uuid.UUID
	ExecutedAt          time.Time
	SignalSnapshot      map[string]json.RawMessage
	ConditionsEvaluated []ConditionResult
	DecisionNote        *string
	OverrideReason      *string
	ReviewedBy          *uuid.UUID
	ApprovedBy          *uuid.UUID
	ExecutedByEmail     *string
	StageName           *string
}

// Filters narrows a List query.
type Filters struct {
	OutcomeType *catalog.OutcomeType
	ActionCode  *string
	IsTerminal  *bool
	Limit       int
	Offset      int
}

// Repository is the persistence boundary for the execution log.
// Write is exposed only as Append, for callers writing the log outside
// the decision engine's transaction (the decision package writes the
// same table through its own transactional store); there is no update
// or delete method because the log is immutable by construction.
type Repository interface {
	// Append inserts a new execution log row. Populates ID and ExecutedAt.
	Append(ctx context.Context, e *Entry) error

	// List returns log entries for an application, newest first,
	// narrowed by Filters.
	List(ctx context.Context, tenantID, applicationID uuid.UUID, f Filters) ([]Entry, error)

	// Get fetches a single entry by id, scoped to (tenant, application).
	Get(ctx context.Context, tenantID, applicationID, id uuid.UUID) (*Entry, error)
}

// GetRejectionReason returns the most recent terminal FAILURE log row
// for an application, or nil if none exists.
func GetRejectionReason(ctx context.Context, repo Repository, tenantID, applicationID uuid.UUID) (*Entry, error) {
	failure := catalog.OutcomeFailure
	terminal := true
	entries, err := repo.List(ctx, tenantID, applicationID, Filters{
		OutcomeType: &failure,
		IsTerminal:  &terminal,
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}
