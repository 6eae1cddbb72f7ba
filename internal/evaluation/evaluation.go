// Package evaluation implements the evaluation engine: versioned
// templates, instances attached to an application's stage, panel
// participants and their immutable responses. On completion it
// aggregates responses into new signal versions in the signal store;
// it never reads or writes pipeline state itself; the signal store is
// the message bus between this package and the decision engine.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hiredesk/hiredesk/internal/signal"
)

// Aggregation is the closed set of reduction rules that turn multiple
// participant responses into one signal value.
type Aggregation string

const (
	AggregationMajority  Aggregation = "MAJORITY"
	AggregationUnanimous Aggregation = "UNANIMOUS"
	AggregationAny       Aggregation = "ANY"
	AggregationAverage   Aggregation = "AVERAGE"
)

func (a Aggregation) IsValid() bool {
	switch a {
	case AggregationMajority, AggregationUnanimous, AggregationAny, AggregationAverage:
		return true
	default:
		return false
	}
}

// ParticipantType is the closed set of evaluation participation shapes.
type ParticipantType string

const (
	ParticipantSingle     ParticipantType = "SINGLE"
	ParticipantPanel      ParticipantType = "PANEL"
	ParticipantSequential ParticipantType = "SEQUENTIAL"
)

func (p ParticipantType) IsValid() bool {
	switch p {
	case ParticipantSingle, ParticipantPanel, ParticipantSequential:
		return true
	default:
		return false
	}
}

// InstanceStatus is the closed set of evaluation instance lifecycle states.
type InstanceStatus string

const (
	InstancePending    InstanceStatus = "PENDING"
	InstanceInProgress InstanceStatus = "IN_PROGRESS"
	InstanceCompleted  InstanceStatus = "COMPLETED"
	InstanceCancelled  InstanceStatus = "CANCELLED"
)

// ParticipantStatus is the closed set of a single participant's states
// within one evaluation instance.
type ParticipantStatus string

const (
	ParticipantStatusPending   ParticipantStatus = "PENDING"
	ParticipantStatusSubmitted ParticipantStatus = "SUBMITTED"
	ParticipantStatusDeclined  ParticipantStatus = "DECLINED"
)

// SchemaField is one entry of a Template's ordered signal_schema.
// Aggregation and Min/Max are nil for signal types or configurations
// that don't use them; text signals never aggregate.
type SchemaField struct {
	Key         string       `json:"key"`
	Type        signal.Type  `json:"type"`
	Label       string       `json:"label"`
	Aggregation *Aggregation `json:"aggregation,omitempty"`
	Min         *float64     `json:"min,omitempty"`
	Max         *float64     `json:"max,omitempty"`
	Required    bool         `json:"required,omitempty"`
}

// Template is a versioned, tenant-scoped evaluation definition. Once
// any Instance references a version, its SignalSchema is immutable;
// structural edits must go through UpdateTemplate, which versions.
type Template struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	Name               string
	Version            int
	IsLatest           bool
	ParticipantType    ParticipantType
	DefaultAggregation *Aggregation
	SignalSchema       []SchemaField
	IsActive           bool
}

// Instance is one occurrence of a Template attached to an application's
// stage. (tenant_id, application_id, template_id, stage_id) is unique,
// which makes auto-creation on stage entry idempotent.
type Instance struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ApplicationID  uuid.UUID
	TemplateID     uuid.UUID
	StageID        uuid.UUID
	Status         InstanceStatus
	ForceCompleted bool
	ForceNote      *string
}

// Participant is one user's membership in an Instance.
type Participant struct {
	ID           uuid.UUID
	EvaluationID uuid.UUID
	UserID       uuid.UUID
	Status       ParticipantStatus
}

// Response is one participant's immutable submission. ResponseData
// maps a schema field key to its typed literal value.
type Response struct {
	ID            uuid.UUID
	EvaluationID  uuid.UUID
	ParticipantID uuid.UUID
	ResponseData  map[string]signal.Value
}

var (
	ErrNotFound            = errors.New("evaluation: not found")
	ErrTemplateReferenced  = errors.New("evaluation: template is referenced by an instance, schema is immutable")
	ErrNotParticipant      = errors.New("evaluation: user is not a pending participant")
	ErrAlreadySubmitted    = errors.New("evaluation: participant has already submitted")
	ErrParticipantSubmitted = errors.New("evaluation: cannot remove a submitted participant")
	ErrIncomplete          = errors.New("evaluation: submissions incomplete")
	ErrForceNoteRequired   = errors.New("evaluation: force completion requires a non-blank note")
	ErrInstanceNotActive   = errors.New("evaluation: instance is not PENDING or IN_PROGRESS")
)

// TemplateRepository is the persistence boundary for evaluation templates.
type TemplateRepository interface {
	Get(ctx context.Context, tenantID, templateID uuid.UUID) (*Template, error)
	GetLatest(ctx context.Context, tenantID uuid.UUID, name string) (*Template, error)
	Create(ctx context.Context, t *Template) error

	// IsReferenced reports whether any instance references templateID,
	// which is what makes its schema immutable.
	IsReferenced(ctx context.Context, tenantID, templateID uuid.UUID) (bool, error)

	// CreateVersion inserts a new version of an existing template family,
	// and flips is_latest on the prior latest version; next is the row inserted.
	CreateVersion(ctx context.Context, prior *Template, next *Template) error

	// UpdateInPlace updates a template that is not yet referenced by any
	// instance, without versioning.
	UpdateInPlace(ctx context.Context, t *Template) error

	SoftDelete(ctx context.Context, tenantID, templateID uuid.UUID) error
}

// InstanceRepository is the persistence boundary for evaluation instances.
type InstanceRepository interface {
	Get(ctx context.Context, tenantID, instanceID uuid.UUID) (*Instance, error)

	// Create inserts an instance. Idempotent on (tenant, application,
	// template, stage): if a row already exists it is returned instead
	// of erroring, so auto-create can be called unconditionally.
	Create(ctx context.Context, in *Instance) (*Instance, bool, error)

	UpdateStatus(ctx context.Context, tenantID, instanceID uuid.UUID, status InstanceStatus) error

	Complete(ctx context.Context, tenantID, instanceID uuid.UUID, forceCompleted bool, forceNote *string) error
}

// ParticipantRepository is the persistence boundary for evaluation participants.
type ParticipantRepository interface {
	List(ctx context.Context, evaluationID uuid.UUID) ([]Participant, error)
	Get(ctx context.Context, evaluationID, userID uuid.UUID) (*Participant, error)
	Add(ctx context.Context, p *Participant) error
	Remove(ctx context.Context, evaluationID, userID uuid.UUID) error
	UpdateStatus(ctx context.Context, participantID uuid.UUID, status ParticipantStatus) error
}

// ResponseRepository is the persistence boundary for immutable responses.
type ResponseRepository interface {
	// Put inserts a response. There is no update path: a second call for
	// the same participant must fail, enforcing response immutability.
	Put(ctx context.Context, r *Response) error
	ListByInstance(ctx context.Context, evaluationID uuid.UUID) ([]Response, error)
}

// StageEvaluationRepository is the read-only auto-create configuration
// table: which templates get instantiated automatically when an
// application enters a given stage.
type StageEvaluationRepository interface {
	AutoCreateTemplates(ctx context.Context, tenantID, stageID uuid.UUID) ([]uuid.UUID, error)
}

// HRResolver resolves the HR participant for a stage whose conducted_by
// is "HR" (case-insensitive): the job creator if still active in the
// tenant, else the tenant owner. The actual job/tenant lookup is owned
// by out-of-scope tenant/job CRUD, so it is injected here rather than
// reimplemented.
type HRResolver interface {
	ResolveHRParticipant(ctx context.Context, tenantID, applicationID uuid.UUID) (uuid.UUID, error)
}

// Engine wires the repositories above into the evaluation operations.
type Engine struct {
	Templates    TemplateRepository
	Instances    InstanceRepository
	Participants ParticipantRepository
	Responses    ResponseRepository
	StageEvals   StageEvaluationRepository
	HR           HRResolver
	Signals      signal.Repository
}

// NewEngine constructs an Engine from its collaborators.
func NewEngine(templates TemplateRepository, instances InstanceRepository, participants ParticipantRepository, responses ResponseRepository, stageEvals StageEvaluationRepository, hr HRResolver, signals signal.Repository) *Engine {
	return &Engine{
		Templates:    templates,
		Instances:    instances,
		Participants: participants,
		Responses:    responses,
		StageEvals:   stageEvals,
		HR:           hr,
		Signals:      signals,
	}
}

// CreateTemplate inserts a new template family at version 1.
func (e *Engine) CreateTemplate(ctx context.Context, t *Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Version = 1
	t.IsLatest = true
	if !t.ParticipantType.IsValid() {
		return fmt.Errorf("invalid participant_type: %s", t.ParticipantType)
	}
	return e.Templates.Create(ctx, t)
}

// UpdateTemplate edits a template: if it is already referenced
// by any instance, the schema is immutable, so the update instead
// creates a new version and flips is_latest; otherwise it updates the
// existing row in place.
func (e *Engine) UpdateTemplate(ctx context.Context, tenantID, templateID uuid.UUID, mutate func(*Template)) (*Template, error) {
	current, err := e.Templates.Get(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	referenced, err := e.Templates.IsReferenced(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	if !referenced {
		mutate(current)
		if err := e.Templates.UpdateInPlace(ctx, current); err != nil {
			return nil, err
		}
		return current, nil
	}

	next := *current
	next.ID = uuid.New()
	next.Version = current.Version + 1
	next.IsLatest = true
	mutate(&next)

	if err := e.Templates.CreateVersion(ctx, current, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// SoftDeleteTemplate marks a template family inactive.
func (e *Engine) SoftDeleteTemplate(ctx context.Context, tenantID, templateID uuid.UUID) error {
	return e.Templates.SoftDelete(ctx, tenantID, templateID)
}

// CreateInstance inserts an evaluation instance, or returns the
// existing one if (tenant, application, template, stage) already has a
// row — the uniqueness that makes auto-creation idempotent.
func (e *Engine) CreateInstance(ctx context.Context, tenantID, applicationID, templateID, stageID uuid.UUID) (*Instance, error) {
	in := &Instance{
		ID:            uuid.New(),
		TenantID:      tenantID,
		ApplicationID: applicationID,
		TemplateID:    templateID,
		StageID:       stageID,
		Status:        InstancePending,
	}
	created, _, err := e.Instances.Create(ctx, in)
	return created, err
}

// AddParticipant adds a PENDING participant to an instance.
func (e *Engine) AddParticipant(ctx context.Context, evaluationID, userID uuid.UUID) error {
	return e.Participants.Add(ctx, &Participant{
		ID:           uuid.New(),
		EvaluationID: evaluationID,
		UserID:       userID,
		Status:       ParticipantStatusPending,
	})
}

// RemoveParticipant removes a participant, forbidden once SUBMITTED.
func (e *Engine) RemoveParticipant(ctx context.Context, evaluationID, userID uuid.UUID) error {
	p, err := e.Participants.Get(ctx, evaluationID, userID)
	if err != nil {
		return err
	}
	if p.Status == ParticipantStatusSubmitted {
		return ErrParticipantSubmitted
	}
	return e.Participants.Remove(ctx, evaluationID, userID)
}

// CancelInstance marks an instance CANCELLED.
func (e *Engine) CancelInstance(ctx context.Context, tenantID, instanceID uuid.UUID) error {
	return e.Instances.UpdateStatus(ctx, tenantID, instanceID, InstanceCancelled)
}

// SubmitResponse records one participant's submission: the user must
// be a PENDING participant of an instance in {PENDING, IN_PROGRESS}. A
// successful submit flips the participant to SUBMITTED and, if the
// instance was PENDING, advances it to IN_PROGRESS. Response rows are
// immutable by construction: there is no update path, only Put.
func (e *Engine) SubmitResponse(ctx context.Context, tenantID, instanceID, userID uuid.UUID, data map[string]signal.Value) error {
	inst, err := e.Instances.Get(ctx, tenantID, instanceID)
	if err != nil {
		return err
	}
	if inst.Status != InstancePending && inst.Status != InstanceInProgress {
		return ErrInstanceNotActive
	}

	participant, err := e.Participants.Get(ctx, instanceID, userID)
	if err != nil {
		return err
	}
	if participant.Status != ParticipantStatusPending {
		return ErrAlreadySubmitted
	}

	if err := e.Responses.Put(ctx, &Response{
		ID:            uuid.New(),
		EvaluationID:  instanceID,
		ParticipantID: participant.ID,
		ResponseData:  data,
	}); err != nil {
		return err
	}

	if err := e.Participants.UpdateStatus(ctx, participant.ID, ParticipantStatusSubmitted); err != nil {
		return err
	}

	if inst.Status == InstancePending {
		return e.Instances.UpdateStatus(ctx, tenantID, instanceID, InstanceInProgress)
	}
	return nil
}

// CompleteEvaluation closes out an instance: PANEL requires
// every participant SUBMITTED unless forced; SINGLE and SEQUENTIAL
// require at least one SUBMITTED unless forced; forcing requires a
// non-blank note. On success it flips the instance to COMPLETED,
// records the force fields, and runs aggregation into the signal store,
// attributing each produced signal version to completedBy.
func (e *Engine) CompleteEvaluation(ctx context.Context, tenantID, instanceID, completedBy uuid.UUID, force bool, forceNote *string) error {
	inst, err := e.Instances.Get(ctx, tenantID, instanceID)
	if err != nil {
		return err
	}

	template, err := e.Templates.Get(ctx, tenantID, inst.TemplateID)
	if err != nil {
		return err
	}

	participants, err := e.Participants.List(ctx, instanceID)
	if err != nil {
		return err
	}

	if force && (forceNote == nil || strings.TrimSpace(*forceNote) == "") {
		return ErrForceNoteRequired
	}

	if !force {
		submitted := 0
		for _, p := range participants {
			if p.Status == ParticipantStatusSubmitted {
				submitted++
			}
		}
		switch template.ParticipantType {
		case ParticipantPanel:
			if submitted != len(participants) {
				return ErrIncomplete
			}
		default:
			if submitted == 0 {
				return ErrIncomplete
			}
		}
	}

	if err := e.Instances.Complete(ctx, tenantID, instanceID, force, forceNote); err != nil {
		return err
	}

	responses, err := e.Responses.ListByInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	return e.aggregate(ctx, tenantID, completedBy, inst, template, responses)
}

// AutoCreate runs on stage entry: for each template configured for
// auto-creation on this stage, insert an instance (idempotent on the
// unique tuple). If the stage is HR-conducted, resolve the HR
// participant and add it once per instance.
func (e *Engine) AutoCreate(ctx context.Context, tenantID, applicationID, stageID uuid.UUID, conductedBy string) error {
	templateIDs, err := e.StageEvals.AutoCreateTemplates(ctx, tenantID, stageID)
	if err != nil {
		return err
	}

	isHR := strings.EqualFold(conductedBy, "HR")

	for _, templateID := range templateIDs {
		inst := &Instance{
			ID:            uuid.New(),
			TenantID:      tenantID,
			ApplicationID: applicationID,
			TemplateID:    templateID,
			StageID:       stageID,
			Status:        InstancePending,
		}
		created, existed, err := e.Instances.Create(ctx, inst)
		if err != nil {
			return err
		}
		if existed || !isHR || e.HR == nil {
			continue
		}

		userID, err := e.HR.ResolveHRParticipant(ctx, tenantID, applicationID)
		if err != nil {
			return err
		}
		if err := e.AddParticipant(ctx, created.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

// aggregate reduces responses into signals: each schema field's present
// responses are reduced by its aggregation (or the template default),
// skipping text fields and fields with zero contributing responses.
// Each produced value is written into the signal store with
// source_type=EVALUATION in the template's schema order, keeping
// concurrent PutSignal calls deterministic.
func (e *Engine) aggregate(ctx context.Context, tenantID, completedBy uuid.UUID, inst *Instance, template *Template, responses []Response) error {
	for _, field := range template.SignalSchema {
		if field.Type == signal.TypeText {
			continue
		}

		agg := template.DefaultAggregation
		if field.Aggregation != nil {
			agg = field.Aggregation
		}
		if agg == nil {
			continue
		}

		value, ok := reduceField(field, *agg, responses)
		if !ok {
			continue
		}

		sourceID := inst.ID
		if _, err := e.Signals.PutSignal(ctx, signal.PutSignalInput{
			TenantID:      tenantID,
			ApplicationID: inst.ApplicationID,
			SignalKey:     field.Key,
			SignalType:    field.Type,
			Value:         value,
			SourceType:    signal.SourceEvaluation,
			SourceID:      &sourceID,
			SetBy:         completedBy,
		}); err != nil {
			return fmt.Errorf("aggregate signal %s: %w", field.Key, err)
		}
	}
	return nil
}

// reduceField applies one aggregation rule over the responses that
// contributed a value for field.Key. ok is false when zero responses
// contributed; such fields are skipped rather than written as null.
func reduceField(field SchemaField, agg Aggregation, responses []Response) (signal.Value, bool) {
	switch agg {
	case AggregationMajority, AggregationUnanimous, AggregationAny:
		return reduceBoolean(field.Key, agg, responses)
	case AggregationAverage:
		return reduceAverage(field.Key, responses)
	default:
		return signal.Value{}, false
	}
}

func reduceBoolean(key string, agg Aggregation, responses []Response) (signal.Value, bool) {
	var trueCount, falseCount int
	for _, r := range responses {
		v, present := r.ResponseData[key]
		if !present || v.Boolean == nil {
			continue
		}
		if *v.Boolean {
			trueCount++
		} else {
			falseCount++
		}
	}

	total := trueCount + falseCount
	if total == 0 {
		return signal.Value{}, false
	}

	var result bool
	switch agg {
	case AggregationMajority:
		// Ties (n true, n false) break toward false.
		result = trueCount > falseCount
	case AggregationUnanimous:
		result = falseCount == 0
	case AggregationAny:
		result = trueCount > 0
	}
	return signal.Value{Boolean: &result}, true
}

func reduceAverage(key string, responses []Response) (signal.Value, bool) {
	var sum float64
	var count int
	for _, r := range responses {
		v, present := r.ResponseData[key]
		if !present || v.Numeric == nil {
			continue
		}
		sum += *v.Numeric
		count++
	}
	if count == 0 {
		return signal.Value{}, false
	}
	mean := sum / float64(count)
	return signal.Value{Numeric: &mean}, true
}
