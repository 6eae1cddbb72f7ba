package evaluation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiredesk/hiredesk/internal/signal"
)

type fakeTemplateRepository struct {
	templates map[uuid.UUID]Template
	referenced map[uuid.UUID]bool
}

func newFakeTemplateRepository() *fakeTemplateRepository {
	return &fakeTemplateRepository{templates: map[uuid.UUID]Template{}, referenced: map[uuid.UUID]bool{}}
}

func (f *fakeTemplateRepository) Get(_ context.Context, _ uuid.UUID, templateID uuid.UUID) (*Template, error) {
	t, ok := f.templates[templateID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (f *fakeTemplateRepository) GetLatest(context.Context, uuid.UUID, string) (*Template, error) {
	return nil, ErrNotFound
}

func (f *fakeTemplateRepository) Create(_ context.Context, t *Template) error {
	f.templates[t.ID] = *t
	return nil
}

func (f *fakeTemplateRepository) IsReferenced(_ context.Context, _ uuid.UUID, templateID uuid.UUID) (bool, error) {
	return f.referenced[templateID], nil
}

func (f *fakeTemplateRepository) CreateVersion(_ context.Context, prior, next *Template) error {
	f.templates[prior.ID] = *prior
	f.templates[next.ID] = *next
	return nil
}

func (f *fakeTemplateRepository) UpdateInPlace(_ context.Context, t *Template) error {
	f.templates[t.ID] = *t
	return nil
}

func (f *fakeTemplateRepository) SoftDelete(_ context.Context, _ uuid.UUID, templateID uuid.UUID) error {
	t := f.templates[templateID]
	t.IsActive = false
	f.templates[templateID] = t
	return nil
}

type fakeInstanceRepository struct {
	instances map[uuid.UUID]Instance
	byTuple   map[string]uuid.UUID
}

func newFakeInstanceRepository() *fakeInstanceRepository {
	return &fakeInstanceRepository{instances: map[uuid.UUID]Instance{}, byTuple: map[string]uuid.UUID{}}
}

func tupleKey(tenantID, applicationID, templateID, stageID uuid.UUID) string {
	return tenantID.String() + "|" + applicationID.String() + "|" + templateID.String() + "|" + stageID.String()
}

func (f *fakeInstanceRepository) Get(_ context.Context, _ uuid.UUID, instanceID uuid.UUID) (*Instance, error) {
	i, ok := f.instances[instanceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &i, nil
}

func (f *fakeInstanceRepository) Create(_ context.Context, in *Instance) (*Instance, bool, error) {
	key := tupleKey(in.TenantID, in.ApplicationID, in.TemplateID, in.StageID)
	if existingID, ok := f.byTuple[key]; ok {
		existing := f.instances[existingID]
		return &existing, true, nil
	}
	f.byTuple[key] = in.ID
	f.instances[in.ID] = *in
	return in, false, nil
}

func (f *fakeInstanceRepository) UpdateStatus(_ context.Context, _ uuid.UUID, instanceID uuid.UUID, status InstanceStatus) error {
	i := f.instances[instanceID]
	i.Status = status
	f.instances[instanceID] = i
	return nil
}

func (f *fakeInstanceRepository) Complete(_ context.Context, _ uuid.UUID, instanceID uuid.UUID, forceCompleted bool, forceNote *string) error {
	i := f.instances[instanceID]
	i.Status = InstanceCompleted
	i.ForceCompleted = forceCompleted
	i.ForceNote = forceNote
	f.instances[instanceID] = i
	return nil
}

type fakeParticipantRepository struct {
	byEvaluation map[uuid.UUID][]Participant
}

func newFakeParticipantRepository() *fakeParticipantRepository {
	return &fakeParticipantRepository{byEvaluation: map[uuid.UUID][]Participant{}}
}

func (f *fakeParticipantRepository) List(_ context.Context, evaluationID uuid.UUID) ([]Participant, error) {
	return f.byEvaluation[evaluationID], nil
}

func (f *fakeParticipantRepository) Get(_ context.Context, evaluationID, userID uuid.UUID) (*Participant, error) {
	for _, p := range f.byEvaluation[evaluationID] {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, ErrNotParticipant
}

func (f *fakeParticipantRepository) Add(_ context.Context, p *Participant) error {
	f.byEvaluation[p.EvaluationID] = append(f.byEvaluation[p.EvaluationID], *p)
	return nil
}

func (f *fakeParticipantRepository) Remove(_ context.Context, evaluationID, userID uuid.UUID) error {
	ps := f.byEvaluation[evaluationID]
	for i, p := range ps {
		if p.UserID == userID {
			f.byEvaluation[evaluationID] = append(ps[:i], ps[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeParticipantRepository) UpdateStatus(_ context.Context, participantID uuid.UUID, status ParticipantStatus) error {
	for evalID, ps := range f.byEvaluation {
		for i, p := range ps {
			if p.ID == participantID {
				ps[i].Status = status
				f.byEvaluation[evalID] = ps
				return nil
			}
		}
	}
	return nil
}

type fakeResponseRepository struct {
	byEvaluation map[uuid.UUID][]Response
}

func newFakeResponseRepository() *fakeResponseRepository {
	return &fakeResponseRepository{byEvaluation: map[uuid.UUID][]Response{}}
}

func (f *fakeResponseRepository) Put(_ context.Context, r *Response) error {
	f.byEvaluation[r.EvaluationID] = append(f.byEvaluation[r.EvaluationID], *r)
	return nil
}

func (f *fakeResponseRepository) ListByInstance(_ context.Context, evaluationID uuid.UUID) ([]Response, error) {
	return f.byEvaluation[evaluationID], nil
}

type fakeStageEvaluationRepository struct {
	templateIDs []uuid.UUID
}

func (f *fakeStageEvaluationRepository) AutoCreateTemplates(context.Context, uuid.UUID, uuid.UUID) ([]uuid.UUID, error) {
	return f.templateIDs, nil
}

type fakeHRResolver struct {
	userID uuid.UUID
}

func (f fakeHRResolver) ResolveHRParticipant(context.Context, uuid.UUID, uuid.UUID) (uuid.UUID, error) {
	return f.userID, nil
}

type fakeSignalRepository struct {
	puts []signal.PutSignalInput
}

func (f *fakeSignalRepository) PutSignal(_ context.Context, in signal.PutSignalInput) (*signal.Row, error) {
	f.puts = append(f.puts, in)
	return &signal.Row{SignalKey: in.SignalKey, Value: in.Value}, nil
}

func (f *fakeSignalRepository) Latest(context.Context, uuid.UUID, uuid.UUID) ([]signal.Row, error) {
	return nil, nil
}

func (f *fakeSignalRepository) History(context.Context, uuid.UUID, uuid.UUID, string) ([]signal.Row, error) {
	return nil, nil
}

func testEngineFakes() (*Engine, *fakeTemplateRepository, *fakeInstanceRepository, *fakeParticipantRepository, *fakeResponseRepository, *fakeSignalRepository) {
	templates := newFakeTemplateRepository()
	instances := newFakeInstanceRepository()
	participants := newFakeParticipantRepository()
	responses := newFakeResponseRepository()
	signals := &fakeSignalRepository{}
	engine := NewEngine(templates, instances, participants, responses, &fakeStageEvaluationRepository{}, nil, signals)
	return engine, templates, instances, participants, responses, signals
}

func TestCreateTemplate(t *testing.T) {
	engine, templates, _, _, _, _ := testEngineFakes()

	tmpl := &Template{Name: "tech-screen", ParticipantType: ParticipantPanel}
	err := engine.CreateTemplate(context.Background(), tmpl)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tmpl.ID)
	assert.Equal(t, 1, tmpl.Version)
	assert.True(t, tmpl.IsLatest)
	assert.Contains(t, templates.templates, tmpl.ID)
}

func TestCreateTemplate_RejectsInvalidParticipantType(t *testing.T) {
	engine, _, _, _, _, _ := testEngineFakes()

	err := engine.CreateTemplate(context.Background(), &Template{Name: "x", ParticipantType: "BOGUS"})
	assert.Error(t, err)
}

func TestUpdateTemplate_InPlaceWhenUnreferenced(t *testing.T) {
	engine, templates, _, _, _, _ := testEngineFakes()
	id := uuid.New()
	templates.templates[id] = Template{ID: id, Name: "x", Version: 1, IsLatest: true}

	updated, err := engine.UpdateTemplate(context.Background(), uuid.New(), id, func(t *Template) {
		t.Name = "renamed"
	})
	require.NoError(t, err)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, "renamed", updated.Name)
}

func TestUpdateTemplate_VersionsWhenReferenced(t *testing.T) {
	engine, templates, _, _, _, _ := testEngineFakes()
	id := uuid.New()
	templates.templates[id] = Template{ID: id, Name: "x", Version: 1, IsLatest: true}
	templates.referenced[id] = true

	updated, err := engine.UpdateTemplate(context.Background(), uuid.New(), id, func(t *Template) {
		t.Name = "renamed"
	})
	require.NoError(t, err)
	assert.NotEqual(t, id, updated.ID)
	assert.Equal(t, 2, updated.Version)
	assert.True(t, updated.IsLatest)
}

func TestSubmitResponse_AdvancesPendingToInProgress(t *testing.T) {
	engine, templates, instances, participants, responses, _ := testEngineFakes()

	tenantID, instanceID, userID, participantID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	templateID := uuid.New()
	templates.templates[templateID] = Template{ID: templateID}
	instances.instances[instanceID] = Instance{ID: instanceID, TenantID: tenantID, TemplateID: templateID, Status: InstancePending}
	participants.byEvaluation[instanceID] = []Participant{{ID: participantID, EvaluationID: instanceID, UserID: userID, Status: ParticipantStatusPending}}

	err := engine.SubmitResponse(context.Background(), tenantID, instanceID, userID, map[string]signal.Value{})
	require.NoError(t, err)

	assert.Equal(t, InstanceInProgress, instances.instances[instanceID].Status)
	assert.Equal(t, ParticipantStatusSubmitted, participants.byEvaluation[instanceID][0].Status)
	assert.Len(t, responses.byEvaluation[instanceID], 1)
}

func TestSubmitResponse_RejectsAlreadySubmitted(t *testing.T) {
	engine, templates, instances, participants, _, _ := testEngineFakes()

	tenantID, instanceID, userID, participantID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	templateID := uuid.New()
	templates.templates[templateID] = Template{ID: templateID}
	instances.instances[instanceID] = Instance{ID: instanceID, TenantID: tenantID, TemplateID: templateID, Status: InstanceInProgress}
	participants.byEvaluation[instanceID] = []Participant{{ID: participantID, EvaluationID: instanceID, UserID: userID, Status: ParticipantStatusSubmitted}}

	err := engine.SubmitResponse(context.Background(), tenantID, instanceID, userID, map[string]signal.Value{})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestCompleteEvaluation_PanelRequiresAllSubmitted(t *testing.T) {
	engine, templates, instances, participants, responses, signals := testEngineFakes()

	tenantID, instanceID := uuid.New(), uuid.New()
	templateID := uuid.New()
	boolTrue := true
	field := SchemaField{Key: "passed", Type: signal.TypeBoolean, Aggregation: aggPtr(AggregationMajority)}
	templates.templates[templateID] = Template{ID: templateID, ParticipantType: ParticipantPanel, SignalSchema: []SchemaField{field}}
	instances.instances[instanceID] = Instance{ID: instanceID, TenantID: tenantID, TemplateID: templateID, Status: InstanceInProgress}
	participants.byEvaluation[instanceID] = []Participant{
		{ID: uuid.New(), EvaluationID: instanceID, Status: ParticipantStatusPending},
		{ID: uuid.New(), EvaluationID: instanceID, Status: ParticipantStatusSubmitted},
	}

	completedBy := uuid.New()
	err := engine.CompleteEvaluation(context.Background(), tenantID, instanceID, completedBy, false, nil)
	assert.ErrorIs(t, err, ErrIncomplete)

	// Forcing with a note succeeds and aggregates whatever responses exist.
	responses.byEvaluation[instanceID] = []Response{{ResponseData: map[string]signal.Value{"passed": {Boolean: &boolTrue}}}}
	note := "panelist unavailable"
	err = engine.CompleteEvaluation(context.Background(), tenantID, instanceID, completedBy, true, &note)
	require.NoError(t, err)
	assert.Equal(t, InstanceCompleted, instances.instances[instanceID].Status)
	require.Len(t, signals.puts, 1)
	assert.Equal(t, "passed", signals.puts[0].SignalKey)
	assert.Equal(t, completedBy, signals.puts[0].SetBy)
}

func TestCompleteEvaluation_ForceRequiresNote(t *testing.T) {
	engine, templates, instances, _, _, _ := testEngineFakes()

	tenantID, instanceID := uuid.New(), uuid.New()
	templateID := uuid.New()
	templates.templates[templateID] = Template{ID: templateID, ParticipantType: ParticipantSingle}
	instances.instances[instanceID] = Instance{ID: instanceID, TenantID: tenantID, TemplateID: templateID, Status: InstancePending}

	err := engine.CompleteEvaluation(context.Background(), tenantID, instanceID, uuid.New(), true, nil)
	assert.ErrorIs(t, err, ErrForceNoteRequired)
}

func TestAutoCreate_ResolvesHRParticipantOnHRStage(t *testing.T) {
	tenantID, applicationID, stageID, templateID, hrUserID := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	templates := newFakeTemplateRepository()
	instances := newFakeInstanceRepository()
	participants := newFakeParticipantRepository()
	responses := newFakeResponseRepository()
	signals := &fakeSignalRepository{}
	engine := NewEngine(templates, instances, participants, responses, &fakeStageEvaluationRepository{templateIDs: []uuid.UUID{templateID}}, fakeHRResolver{userID: hrUserID}, signals)

	err := engine.AutoCreate(context.Background(), tenantID, applicationID, stageID, "HR")
	require.NoError(t, err)

	require.Len(t, instances.instances, 1)
	var created Instance
	for _, i := range instances.instances {
		created = i
	}
	require.Len(t, participants.byEvaluation[created.ID], 1)
	assert.Equal(t, hrUserID, participants.byEvaluation[created.ID][0].UserID)
}

func TestAutoCreate_IdempotentOnRepeatStageEntry(t *testing.T) {
	tenantID, applicationID, stageID, templateID := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	engine, _, instances, _, _, _ := testEngineFakes()
	engine.StageEvals = &fakeStageEvaluationRepository{templateIDs: []uuid.UUID{templateID}}

	require.NoError(t, engine.AutoCreate(context.Background(), tenantID, applicationID, stageID, "recruiter"))
	require.NoError(t, engine.AutoCreate(context.Background(), tenantID, applicationID, stageID, "recruiter"))

	assert.Len(t, instances.instances, 1, "second AutoCreate call must not create a duplicate instance")
}

func aggPtr(a Aggregation) *Aggregation { return &a }
