package postgres

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/catalog"
	"github.com/hiredesk/hiredesk/internal/decision"
)

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	dir = filepath.Dir(dir)
	dir = filepath.Dir(dir)
	return filepath.Join(dir, "dbprovider", "migrations")
}

type testRepos struct {
	pool  *pgxpool.Pool
	store *Store
}

func setupTestStore(t *testing.T) (*testRepos, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %s", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %s", err)
	}

	dsn := "postgres://testuser:testpass@" + host + ":" + port.Port() + "/testdb?sslmode=disable"

	m, err := migrate.New("file://"+getMigrationsPath(), dsn)
	if err != nil {
		t.Fatalf("failed to create migrate instance: %s", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to run migrations: %s", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to create pool: %s", err)
	}

	logger, _ := zap.NewDevelopment()
	store := New(pool, logger)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return &testRepos{pool: pool, store: store}, cleanup
}

func seedFixture(t *testing.T, pool *pgxpool.Pool, tenantID, pipelineID, stageID, nextStageID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `
		INSERT INTO pipeline_stages (id, tenant_id, pipeline_id, name, order_index, stage_type, conducted_by)
		VALUES ($1, $2, $3, 'Screening', 0, 'screening', 'recruiter'), ($4, $2, $3, 'Interview', 1, 'interview', 'interviewer')
	`, stageID, tenantID, pipelineID, nextStageID); err != nil {
		t.Fatalf("seed pipeline stages: %v", err)
	}

	for _, s := range catalog.DefaultStatuses {
		if _, err := pool.Exec(ctx, `
			INSERT INTO tenant_application_statuses (tenant_id, status_code, display_name, action_code, is_terminal, outcome_type, sort_order, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, tenantID, s.StatusCode, s.DisplayName, s.ActionCode, s.IsTerminal, s.OutcomeType, s.SortOrder, s.IsActive); err != nil {
			t.Fatalf("seed status %s: %v", s.StatusCode, err)
		}
	}
}

func TestStore_Create_AttachApplicationToPipeline(t *testing.T) {
	repos, cleanup := setupTestStore(t)
	defer cleanup()

	tenantID, pipelineID, stageID, nextStageID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	seedFixture(t, repos.pool, tenantID, pipelineID, stageID, nextStageID)

	ctx := context.Background()
	appID := uuid.New()
	state := &decision.State{
		ID: uuid.New(), ApplicationID: appID, TenantID: tenantID, JobID: uuid.New(),
		PipelineID: pipelineID, CurrentStageID: stageID, Status: "ACTIVE", OutcomeType: catalog.OutcomeActive,
	}
	history := &decision.StageHistoryEntry{
		ID: uuid.New(), TenantID: tenantID, ApplicationID: appID,
		EventHash: "fixture-attach-hash", ActionCode: "ATTACH",
		FromStageID: uuid.Nil, ToStageID: stageID, OutcomeType: catalog.OutcomeActive, Status: "ACTIVE",
	}

	if err := repos.store.Create(ctx, state, history, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repos.store.Create(ctx, state, history, nil); err != decision.ErrStateExists {
		t.Errorf("Create() duplicate error = %v, want ErrStateExists", err)
	}
}

// TestTx_AppendHistory_IdempotentRetry exercises the event_hash unique
// index directly: two AppendHistory calls carrying the same logical
// transition must leave exactly one row, with the second call
// reporting inserted=false rather than erroring.
func TestTx_AppendHistory_IdempotentRetry(t *testing.T) {
	repos, cleanup := setupTestStore(t)
	defer cleanup()

	tenantID, pipelineID, stageID, nextStageID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	seedFixture(t, repos.pool, tenantID, pipelineID, stageID, nextStageID)

	ctx := context.Background()
	appID := uuid.New()
	state := &decision.State{
		ID: uuid.New(), ApplicationID: appID, TenantID: tenantID, JobID: uuid.New(),
		PipelineID: pipelineID, CurrentStageID: stageID, Status: "ACTIVE", OutcomeType: catalog.OutcomeActive,
	}
	firstHistory := &decision.StageHistoryEntry{
		ID: uuid.New(), TenantID: tenantID, ApplicationID: appID,
		EventHash: "fixture-attach-hash", ActionCode: "ATTACH",
		FromStageID: uuid.Nil, ToStageID: stageID, OutcomeType: catalog.OutcomeActive, Status: "ACTIVE",
	}
	if err := repos.store.Create(ctx, state, firstHistory, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entry := &decision.StageHistoryEntry{
		ID: uuid.New(), TenantID: tenantID, ApplicationID: appID,
		EventHash: "fixture-move-hash", ActionCode: "MOVE_STAGE",
		FromStageID: stageID, ToStageID: nextStageID, OutcomeType: catalog.OutcomeActive, Status: "ACTIVE",
	}

	tx1, err := repos.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := tx1.LoadForUpdate(ctx, appID); err != nil {
		t.Fatalf("LoadForUpdate() error = %v", err)
	}
	inserted, err := tx1.AppendHistory(ctx, entry)
	if err != nil {
		t.Fatalf("AppendHistory() first call error = %v", err)
	}
	if !inserted {
		t.Fatal("AppendHistory() first call: want inserted=true")
	}
	if err := tx1.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	// A retry of the identical logical transition (e.g. a client
	// re-sending ExecuteAction after a dropped response) must be a
	// harmless no-op, not a unique-constraint error.
	tx2, err := repos.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	retryEntry := *entry
	retryEntry.ID = uuid.New()
	inserted, err = tx2.AppendHistory(ctx, &retryEntry)
	if err != nil {
		t.Fatalf("AppendHistory() retry error = %v", err)
	}
	if inserted {
		t.Error("AppendHistory() retry: want inserted=false for a duplicate event_hash")
	}
	if err := tx2.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var count int
	if err := repos.pool.QueryRow(ctx, `SELECT count(*) FROM application_stage_history WHERE event_hash = $1`, "fixture-move-hash").Scan(&count); err != nil {
		t.Fatalf("count history rows: %v", err)
	}
	if count != 1 {
		t.Errorf("history rows for event_hash = %d, want 1", count)
	}
}

func TestTx_MutateState_AndExecutionLog(t *testing.T) {
	repos, cleanup := setupTestStore(t)
	defer cleanup()

	tenantID, pipelineID, stageID, nextStageID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	seedFixture(t, repos.pool, tenantID, pipelineID, stageID, nextStageID)

	ctx := context.Background()
	appID := uuid.New()
	state := &decision.State{
		ID: uuid.New(), ApplicationID: appID, TenantID: tenantID, JobID: uuid.New(),
		PipelineID: pipelineID, CurrentStageID: stageID, Status: "ACTIVE", OutcomeType: catalog.OutcomeActive,
	}
	if err := repos.store.Create(ctx, state, &decision.StageHistoryEntry{
		ID: uuid.New(), TenantID: tenantID, ApplicationID: appID, EventHash: "attach-hash", ActionCode: "ATTACH",
		FromStageID: uuid.Nil, ToStageID: stageID, OutcomeType: catalog.OutcomeActive, Status: "ACTIVE",
	}, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tx, err := repos.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	loaded, err := tx.LoadForUpdate(ctx, appID)
	if err != nil {
		t.Fatalf("LoadForUpdate() error = %v", err)
	}
	loaded.CurrentStageID = nextStageID
	if err := tx.MutateState(ctx, loaded, true); err != nil {
		t.Fatalf("MutateState() error = %v", err)
	}

	snapshot := map[string]any{"interview_passed": true}
	if err := tx.AppendExecutionLog(ctx, &decision.ExecutionLogWrite{
		TenantID: tenantID, ApplicationID: appID, ActionCode: "MOVE_STAGE",
		StageID: stageID, FromStageID: stageID, ToStageID: nextStageID,
		OutcomeType: string(catalog.OutcomeActive), ExecutedBy: uuid.New(), SignalSnapshot: snapshot,
	}); err != nil {
		t.Fatalf("AppendExecutionLog() error = %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var currentStage uuid.UUID
	if err := repos.pool.QueryRow(ctx, `SELECT current_stage_id FROM application_pipeline_state WHERE application_id = $1`, appID).Scan(&currentStage); err != nil {
		t.Fatalf("query pipeline state: %v", err)
	}
	if currentStage != nextStageID {
		t.Errorf("current_stage_id = %v, want %v", currentStage, nextStageID)
	}

	var snapshotJSON []byte
	if err := repos.pool.QueryRow(ctx, `SELECT signal_snapshot FROM action_execution_log WHERE application_id = $1`, appID).Scan(&snapshotJSON); err != nil {
		t.Fatalf("query execution log: %v", err)
	}
	var roundTripped map[string]any
	if err := json.Unmarshal(snapshotJSON, &roundTripped); err != nil {
		t.Fatalf("unmarshal signal_snapshot: %v", err)
	}
	if diff := cmp.Diff(snapshot, roundTripped); diff != "" {
		t.Errorf("signal_snapshot mismatch (-want +got):\n%s", diff)
	}
}
