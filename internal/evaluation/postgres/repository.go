// Package postgres implements the evaluation package's repository
// interfaces (templates, instances, participants, responses, and the
// stage auto-create configuration table) backed by PostgreSQL. Each
// concern gets its own repository type rather than one type serving
// every interface, since evaluation.InstanceRepository.Get and
// evaluation.ParticipantRepository.Get differ only in return type and
// cannot share a receiver.
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

	"github.com/hiredesk/hiredesk/internal/evaluation"
	"github.com/hiredesk/hiredesk/internal/pgtx"
	"github.com/hiredesk/hiredesk/internal/signal"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Templates ---

// TemplateRepository implements evaluation.TemplateRepository.
type TemplateRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTemplateRepository creates a PostgreSQL-backed template repository.
func NewTemplateRepository(pool *pgxpool.Pool, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{pool: pool, logger: logger.With(zap.String("component", "evaluation-template-repository"))}
}

const getTemplateQuery = `
SELECT id, tenant_id, name, version, is_latest, participant_type, default_aggregation, signal_schema, is_active
FROM evaluation_templates
WHERE tenant_id = $1 AND id = $2
`

func (r *TemplateRepository) Get(ctx context.Context, tenantID, templateID uuid.UUID) (*evaluation.Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, getTemplateQuery, tenantID, templateID))
}

const getLatestTemplateQuery = `
SELECT id, tenant_id, name, version, is_latest, participant_type, default_aggregation, signal_schema, is_active
FROM evaluation_templates
WHERE tenant_id = $1 AND name = $2 AND is_latest = true
`

func (r *TemplateRepository) GetLatest(ctx context.Context, tenantID uuid.UUID, name string) (*evaluation.Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, getLatestTemplateQuery, tenantID, name))
}

const createTemplateQuery = `
INSERT INTO evaluation_templates (id, tenant_id, name, version, is_latest, participant_type, default_aggregation, signal_schema, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
`

func (r *TemplateRepository) Create(ctx context.Context, t *evaluation.Template) error {
	schemaJSON, err := json.Marshal(t.SignalSchema)
	if err != nil {
		return fmt.Errorf("marshal signal_schema: %w", err)
	}
	_, err = r.pool.Exec(ctx, createTemplateQuery,
		t.ID, t.TenantID, t.Name, t.Version, t.IsLatest, t.ParticipantType, t.DefaultAggregation, schemaJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("evaluation: template %s version %d already exists", t.Name, t.Version)
		}
		return fmt.Errorf("create template: %w", err)
	}
	t.IsActive = true
	return nil
}

const isReferencedQuery = `SELECT EXISTS(SELECT 1 FROM evaluation_instances WHERE tenant_id = $1 AND template_id = $2)`

func (r *TemplateRepository) IsReferenced(ctx context.Context, tenantID, templateID uuid.UUID) (bool, error) {
	var referenced bool
	if err := r.pool.QueryRow(ctx, isReferencedQuery, tenantID, templateID).Scan(&referenced); err != nil {
		return false, fmt.Errorf("check template referenced: %w", err)
	}
	return referenced, nil
}

const unsetLatestQuery = `UPDATE evaluation_templates SET is_latest = false WHERE tenant_id = $1 AND name = $2 AND is_latest = true`

func (r *TemplateRepository) CreateVersion(ctx context.Context, prior *evaluation.Template, next *evaluation.Template) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create-version transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, unsetLatestQuery, prior.TenantID, prior.Name); err != nil {
		return fmt.Errorf("unset prior latest version: %w", err)
	}

	schemaJSON, err := json.Marshal(next.SignalSchema)
	if err != nil {
		return fmt.Errorf("marshal signal_schema: %w", err)
	}
	if _, err := tx.Exec(ctx, createTemplateQuery,
		next.ID, next.TenantID, next.Name, next.Version, next.IsLatest, next.ParticipantType, next.DefaultAggregation, schemaJSON,
	); err != nil {
		return fmt.Errorf("insert next template version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create-version transaction: %w", err)
	}
	next.IsActive = true
	return nil
}

const updateTemplateInPlaceQuery = `
UPDATE evaluation_templates
SET name = $3, participant_type = $4, default_aggregation = $5, signal_schema = $6, is_active = $7
WHERE tenant_id = $1 AND id = $2
`

func (r *TemplateRepository) UpdateInPlace(ctx context.Context, t *evaluation.Template) error {
	schemaJSON, err := json.Marshal(t.SignalSchema)
	if err != nil {
		return fmt.Errorf("marshal signal_schema: %w", err)
	}
	_, err = r.pool.Exec(ctx, updateTemplateInPlaceQuery,
		t.TenantID, t.ID, t.Name, t.ParticipantType, t.DefaultAggregation, schemaJSON, t.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update template in place: %w", err)
	}
	return nil
}

const softDeleteTemplateQuery = `UPDATE evaluation_templates SET is_active = false WHERE tenant_id = $1 AND id = $2`

func (r *TemplateRepository) SoftDelete(ctx context.Context, tenantID, templateID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, softDeleteTemplateQuery, tenantID, templateID); err != nil {
		return fmt.Errorf("soft delete template: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row scanner) (*evaluation.Template, error) {
	var t evaluation.Template
	var schemaJSON []byte
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Version, &t.IsLatest, &t.ParticipantType, &t.DefaultAggregation, &schemaJSON, &t.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, evaluation.ErrNotFound
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	if len(schemaJSON) > 0 {
		if err := json.Unmarshal(schemaJSON, &t.SignalSchema); err != nil {
			return nil, fmt.Errorf("unmarshal signal_schema: %w", err)
		}
	}
	return &t, nil
}

// --- Instances ---

// InstanceRepository implements evaluation.InstanceRepository.
type InstanceRepository struct {
	pool   pgtx.Querier
	logger *zap.Logger
}

// NewInstanceRepository creates a PostgreSQL-backed instance repository.
// pool may be *pgxpool.Pool for ordinary use or a pgx.Tx to scope this
// repository's writes to a caller's open transaction (the auto-create
// cascade on stage entry).
func NewInstanceRepository(pool pgtx.Querier, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{pool: pool, logger: logger.With(zap.String("component", "evaluation-instance-repository"))}
}

const getInstanceQuery = `
SELECT id, tenant_id, application_id, template_id, stage_id, status, force_completed, force_note
FROM evaluation_instances
WHERE tenant_id = $1 AND id = $2
`

func (r *InstanceRepository) Get(ctx context.Context, tenantID, instanceID uuid.UUID) (*evaluation.Instance, error) {
	return scanInstance(r.pool.QueryRow(ctx, getInstanceQuery, tenantID, instanceID))
}

const findInstanceQuery = `
SELECT id, tenant_id, application_id, template_id, stage_id, status, force_completed, force_note
FROM evaluation_instances
WHERE tenant_id = $1 AND application_id = $2 AND template_id = $3 AND stage_id = $4
`

const createInstanceQuery = `
INSERT INTO evaluation_instances (id, tenant_id, application_id, template_id, stage_id, status)
VALUES ($1, $2, $3, $4, $5, $6)
`

// Create inserts an instance, or returns the existing row (existed=true)
// if (tenant, application, template, stage) already has one — the
// uniqueness that makes auto-create idempotent.
func (r *InstanceRepository) Create(ctx context.Context, in *evaluation.Instance) (*evaluation.Instance, bool, error) {
	existing, err := scanInstance(r.pool.QueryRow(ctx, findInstanceQuery, in.TenantID, in.ApplicationID, in.TemplateID, in.StageID))
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, evaluation.ErrNotFound) {
		return nil, false, err
	}

	_, err = r.pool.Exec(ctx, createInstanceQuery, in.ID, in.TenantID, in.ApplicationID, in.TemplateID, in.StageID, in.Status)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := scanInstance(r.pool.QueryRow(ctx, findInstanceQuery, in.TenantID, in.ApplicationID, in.TemplateID, in.StageID))
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("create instance: %w", err)
	}
	return in, false, nil
}

const updateInstanceStatusQuery = `UPDATE evaluation_instances SET status = $3 WHERE tenant_id = $1 AND id = $2`

func (r *InstanceRepository) UpdateStatus(ctx context.Context, tenantID, instanceID uuid.UUID, status evaluation.InstanceStatus) error {
	if _, err := r.pool.Exec(ctx, updateInstanceStatusQuery, tenantID, instanceID, status); err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	return nil
}

const completeInstanceQuery = `
UPDATE evaluation_instances SET status = 'COMPLETED', force_completed = $3, force_note = $4
WHERE tenant_id = $1 AND id = $2
`

func (r *InstanceRepository) Complete(ctx context.Context, tenantID, instanceID uuid.UUID, forceCompleted bool, forceNote *string) error {
	if _, err := r.pool.Exec(ctx, completeInstanceQuery, tenantID, instanceID, forceCompleted, forceNote); err != nil {
		return fmt.Errorf("complete instance: %w", err)
	}
	return nil
}

func scanInstance(row scanner) (*evaluation.Instance, error) {
	var in evaluation.Instance
	err := row.Scan(&in.ID, &in.TenantID, &in.ApplicationID, &in.TemplateID, &in.StageID, &in.Status, &in.ForceCompleted, &in.ForceNote)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, evaluation.ErrNotFound
		}
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	return &in, nil
}

// --- Participants ---

// ParticipantRepository implements evaluation.ParticipantRepository.
type ParticipantRepository struct {
	pool   pgtx.Querier
	logger *zap.Logger
}

// NewParticipantRepository creates a PostgreSQL-backed participant
// repository. pool may be *pgxpool.Pool for ordinary use or a pgx.Tx to
// scope this repository's writes to a caller's open transaction (the
// auto-create cascade on stage entry).
func NewParticipantRepository(pool pgtx.Querier, logger *zap.Logger) *ParticipantRepository {
	return &ParticipantRepository{pool: pool, logger: logger.With(zap.String("component", "evaluation-participant-repository"))}
}

const listParticipantsQuery = `
SELECT id, evaluation_id, user_id, status
FROM evaluation_participants
WHERE evaluation_id = $1
`

func (r *ParticipantRepository) List(ctx context.Context, evaluationID uuid.UUID) ([]evaluation.Participant, error) {
	rows, err := r.pool.Query(ctx, listParticipantsQuery, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var result []evaluation.Participant
	for rows.Next() {
		var p evaluation.Participant
		if err := rows.Scan(&p.ID, &p.EvaluationID, &p.UserID, &p.Status); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

const getParticipantQuery = `
SELECT id, evaluation_id, user_id, status
FROM evaluation_participants
WHERE evaluation_id = $1 AND user_id = $2
`

func (r *ParticipantRepository) Get(ctx context.Context, evaluationID, userID uuid.UUID) (*evaluation.Participant, error) {
	var p evaluation.Participant
	err := r.pool.QueryRow(ctx, getParticipantQuery, evaluationID, userID).Scan(&p.ID, &p.EvaluationID, &p.UserID, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, evaluation.ErrNotParticipant
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return &p, nil
}

const addParticipantQuery = `
INSERT INTO evaluation_participants (id, evaluation_id, user_id, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (evaluation_id, user_id) DO NOTHING
`

func (r *ParticipantRepository) Add(ctx context.Context, p *evaluation.Participant) error {
	if _, err := r.pool.Exec(ctx, addParticipantQuery, p.ID, p.EvaluationID, p.UserID, p.Status); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

const removeParticipantQuery = `DELETE FROM evaluation_participants WHERE evaluation_id = $1 AND user_id = $2`

func (r *ParticipantRepository) Remove(ctx context.Context, evaluationID, userID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, removeParticipantQuery, evaluationID, userID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

const updateParticipantStatusQuery = `UPDATE evaluation_participants SET status = $2 WHERE id = $1`

func (r *ParticipantRepository) UpdateStatus(ctx context.Context, participantID uuid.UUID, status evaluation.ParticipantStatus) error {
	if _, err := r.pool.Exec(ctx, updateParticipantStatusQuery, participantID, status); err != nil {
		return fmt.Errorf("update participant status: %w", err)
	}
	return nil
}

// --- Responses ---

// ResponseRepository implements evaluation.ResponseRepository.
type ResponseRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewResponseRepository creates a PostgreSQL-backed response repository.
func NewResponseRepository(pool *pgxpool.Pool, logger *zap.Logger) *ResponseRepository {
	return &ResponseRepository{pool: pool, logger: logger.With(zap.String("component", "evaluation-response-repository"))}
}

const putResponseQuery = `
INSERT INTO evaluation_responses (id, evaluation_id, participant_id, response_data)
VALUES ($1, $2, $3, $4)
`

// Put inserts a response. There is no update path: a second insert for
// the same participant_id hits the table's unique constraint, enforcing
// response immutability at the store level.
func (r *ResponseRepository) Put(ctx context.Context, resp *evaluation.Response) error {
	dataJSON, err := json.Marshal(resp.ResponseData)
	if err != nil {
		return fmt.Errorf("marshal response_data: %w", err)
	}
	_, err = r.pool.Exec(ctx, putResponseQuery, resp.ID, resp.EvaluationID, resp.ParticipantID, dataJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("evaluation: participant %s has already responded", resp.ParticipantID)
		}
		return fmt.Errorf("put response: %w", err)
	}
	return nil
}

const listResponsesQuery = `
SELECT id, evaluation_id, participant_id, response_data
FROM evaluation_responses
WHERE evaluation_id = $1
`

func (r *ResponseRepository) ListByInstance(ctx context.Context, evaluationID uuid.UUID) ([]evaluation.Response, error) {
	rows, err := r.pool.Query(ctx, listResponsesQuery, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var result []evaluation.Response
	for rows.Next() {
		var resp evaluation.Response
		var dataJSON []byte
		if err := rows.Scan(&resp.ID, &resp.EvaluationID, &resp.ParticipantID, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(dataJSON, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal response_data: %w", err)
		}
		decoded := make(map[string]signal.Value, len(raw))
		for k, v := range raw {
			var val signal.Value
			if err := json.Unmarshal(v, &val); err != nil {
				return nil, fmt.Errorf("unmarshal response_data[%s]: %w", k, err)
			}
			decoded[k] = val
		}
		resp.ResponseData = decoded
		result = append(result, resp)
	}
	return result, rows.Err()
}

// --- Stage evaluations (auto-create configuration) ---

// StageEvaluationRepository implements evaluation.StageEvaluationRepository.
type StageEvaluationRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStageEvaluationRepository creates a PostgreSQL-backed stage auto-create lookup.
func NewStageEvaluationRepository(pool *pgxpool.Pool, logger *zap.Logger) *StageEvaluationRepository {
	return &StageEvaluationRepository{pool: pool, logger: logger.With(zap.String("component", "evaluation-stage-repository"))}
}

const autoCreateTemplatesQuery = `
SELECT template_id FROM stage_evaluations
WHERE tenant_id = $1 AND stage_id = $2 AND auto_create = true AND is_active = true
`

func (r *StageEvaluationRepository) AutoCreateTemplates(ctx context.Context, tenantID, stageID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, autoCreateTemplatesQuery, tenantID, stageID)
	if err != nil {
		return nil, fmt.Errorf("list auto-create templates: %w", err)
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan template id: %w", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}
