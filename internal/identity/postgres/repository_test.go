package postgres

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	dir = filepath.Dir(dir)
	dir = filepath.Dir(dir)
	return filepath.Join(dir, "dbprovider", "migrations")
}

func setupTestPool(t *testing.T) (*pgxpool.Pool, func()) {
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

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return pool, cleanup
}

func TestRoleResolver_RoleForUser(t *testing.T) {
	pool, cleanup := setupTestPool(t)
	defer cleanup()

	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	resolver := NewRoleResolver(pool, logger)

	tenantID, userID := uuid.New(), uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO tenant_user_roles (tenant_id, user_id, role_name) VALUES ($1, $2, 'recruiter')`, tenantID, userID); err != nil {
		t.Fatalf("seed role: %v", err)
	}

	role, err := resolver.RoleForUser(ctx, tenantID, userID)
	if err != nil {
		t.Fatalf("RoleForUser() error = %v", err)
	}
	if role != "recruiter" {
		t.Errorf("RoleForUser() = %q, want recruiter", role)
	}

	if _, err := resolver.RoleForUser(ctx, tenantID, uuid.New()); err == nil {
		t.Error("RoleForUser() for unknown user: want error, got nil")
	}
}

func TestHRResolver_PrefersActiveJobCreator(t *testing.T) {
	pool, cleanup := setupTestPool(t)
	defer cleanup()

	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	resolver := NewHRResolver(pool, logger)

	tenantID, ownerID, creatorID, jobID, appID, stageID, pipelineID := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	if _, err := pool.Exec(ctx, `INSERT INTO tenants (id, owner_user_id) VALUES ($1, $2)`, tenantID, ownerID); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO jobs (id, tenant_id, created_by, is_active) VALUES ($1, $2, $3, true)`, jobID, tenantID, creatorID); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO application_pipeline_state (
			id, application_id, tenant_id, job_id, pipeline_id, current_stage_id,
			status, outcome_type, is_terminal, entered_stage_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'ACTIVE', 'ACTIVE', false, now(), now())
	`, uuid.New(), appID, tenantID, jobID, pipelineID, stageID); err != nil {
		t.Fatalf("seed pipeline state: %v", err)
	}

	resolved, err := resolver.ResolveHRParticipant(ctx, tenantID, appID)
	if err != nil {
		t.Fatalf("ResolveHRParticipant() error = %v", err)
	}
	if resolved != creatorID {
		t.Errorf("ResolveHRParticipant() = %v, want job creator %v", resolved, creatorID)
	}
}

func TestHRResolver_FallsBackToTenantOwnerWhenJobInactive(t *testing.T) {
	pool, cleanup := setupTestPool(t)
	defer cleanup()

	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	resolver := NewHRResolver(pool, logger)

	tenantID, ownerID, creatorID, jobID, appID, stageID, pipelineID := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	if _, err := pool.Exec(ctx, `INSERT INTO tenants (id, owner_user_id) VALUES ($1, $2)`, tenantID, ownerID); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO jobs (id, tenant_id, created_by, is_active) VALUES ($1, $2, $3, false)`, jobID, tenantID, creatorID); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO application_pipeline_state (
			id, application_id, tenant_id, job_id, pipeline_id, current_stage_id,
			status, outcome_type, is_terminal, entered_stage_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'ACTIVE', 'ACTIVE', false, now(), now())
	`, uuid.New(), appID, tenantID, jobID, pipelineID, stageID); err != nil {
		t.Fatalf("seed pipeline state: %v", err)
	}

	resolved, err := resolver.ResolveHRParticipant(ctx, tenantID, appID)
	if err != nil {
		t.Fatalf("ResolveHRParticipant() error = %v", err)
	}
	if resolved != ownerID {
		t.Errorf("ResolveHRParticipant() = %v, want tenant owner %v", resolved, ownerID)
	}
}

func TestHRResolver_NoOwner(t *testing.T) {
	pool, cleanup := setupTestPool(t)
	defer cleanup()

	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	resolver := NewHRResolver(pool, logger)

	if _, err := resolver.ResolveHRParticipant(ctx, uuid.New(), uuid.New()); err != ErrNoOwner {
		t.Errorf("ResolveHRParticipant() for unknown tenant error = %v, want ErrNoOwner", err)
	}
}
