// Package pipeline holds the read-mostly reference data the decision
// engine needs about pipelines and their stages. Pipeline/stage
// *authoring* is out of scope; this package only
// models the shape the Action Engine must read to resolve "next
// stage by order_index" and to enforce that a stage list is frozen
// once any application has been attached to it.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// StageType is the closed set of stage kinds.
type StageType string

const (
	StageScreening   StageType = "screening"
	StageInterview   StageType = "interview"
	StageDecision    StageType = "decision"
	StageOutcome     StageType = "outcome"
	StageReview      StageType = "review"
	StageFinalReview StageType = "final_review"
)

// Stage is one ordered position in a pipeline.
type Stage struct {
	ID          uuid.UUID
	PipelineID  uuid.UUID
	Name        string
	OrderIndex  int
	StageType   StageType
	ConductedBy string
}

var (
	// ErrStageNotFound is returned when a stage id doesn't resolve.
	ErrStageNotFound = errors.New("pipeline: stage not found")
	// ErrNoNextStage is returned when a stage is the last in its pipeline.
	ErrNoNextStage = errors.New("pipeline: no next stage")
)

// Repository is the read boundary onto pipeline/stage reference data.
type Repository interface {
	// GetStage fetches a single stage by ID.
	GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (*Stage, error)

	// NextStage returns the stage with order_index = current.OrderIndex+1
	// within the same pipeline. Returns ErrNoNextStage if current is the
	// last stage.
	NextStage(ctx context.Context, tenantID uuid.UUID, current *Stage) (*Stage, error)

	// IsStageListFrozen reports whether any application has ever been
	// attached to pipelineID, which freezes its stage list.
	IsStageListFrozen(ctx context.Context, tenantID, pipelineID uuid.UUID) (bool, error)

	// FreezeStageList marks a pipeline's stage list frozen. Called once,
	// the first time an application is attached to the pipeline.
	FreezeStageList(ctx context.Context, tenantID, pipelineID uuid.UUID) error
}
