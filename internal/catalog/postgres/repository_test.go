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

	"github.com/hiredesk/hiredesk/internal/catalog"
)

// getMigrationsPath returns the path to the shared engine migrations.
func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)           // internal/catalog/postgres
	dir = filepath.Dir(dir)                 // internal/catalog
	dir = filepath.Dir(dir)                 // internal
	return filepath.Join(dir, "dbprovider", "migrations")
}

func setupTestRepo(t *testing.T) (*Repository, func()) {
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
	repo := New(pool, logger)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestRepository_SeedDefaults(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.New()

	if err := repo.SeedDefaults(ctx, tenantID); err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}

	statuses, err := repo.List(ctx, tenantID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(statuses) != len(catalog.DefaultStatuses) {
		t.Fatalf("List() = %d statuses, want %d", len(statuses), len(catalog.DefaultStatuses))
	}

	// Idempotent: a second call on an already-seeded tenant is a no-op.
	if err := repo.SeedDefaults(ctx, tenantID); err != nil {
		t.Fatalf("SeedDefaults() second call error = %v", err)
	}
	statuses, err = repo.List(ctx, tenantID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(statuses) != len(catalog.DefaultStatuses) {
		t.Fatalf("List() after reseed = %d statuses, want %d", len(statuses), len(catalog.DefaultStatuses))
	}
}

func TestRepository_ResolveForOutcome(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.New()
	if err := repo.SeedDefaults(ctx, tenantID); err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}

	s, err := repo.ResolveForOutcome(ctx, tenantID, catalog.OutcomeSuccess, true)
	if err != nil {
		t.Fatalf("ResolveForOutcome() error = %v", err)
	}
	if s.StatusCode != "HIRED" {
		t.Errorf("ResolveForOutcome() StatusCode = %q, want HIRED", s.StatusCode)
	}

	if _, err := repo.ResolveForOutcome(ctx, tenantID, catalog.OutcomeSuccess, false); err != catalog.ErrNotFound {
		t.Errorf("ResolveForOutcome() error = %v, want ErrNotFound", err)
	}
}

func TestRepository_Create_Duplicate(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.New()
	s := &catalog.Status{TenantID: tenantID, StatusCode: "CUSTOM", DisplayName: "Custom", OutcomeType: catalog.OutcomeNeutral, IsActive: true}

	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, s); err != catalog.ErrExists {
		t.Errorf("Create() duplicate error = %v, want ErrExists", err)
	}
}

func TestRepository_Deactivate_RejectsInUseStatus(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	ctx := context.Background()
	tenantID := uuid.New()
	if err := repo.SeedDefaults(ctx, tenantID); err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}

	// Simulate an application currently holding the ACTIVE status by
	// inserting a bare pipeline state row referencing it directly.
	appID := uuid.New()
	_, execErr := repo.pool.Exec(ctx, `
		INSERT INTO application_pipeline_state (
			id, application_id, tenant_id, job_id, pipeline_id, current_stage_id,
			status, outcome_type, is_terminal, entered_stage_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'ACTIVE', 'ACTIVE', false, now(), now())
	`, uuid.New(), appID, tenantID, uuid.New(), uuid.New(), uuid.New())
	if execErr != nil {
		t.Fatalf("seed pipeline state: %v", execErr)
	}

	if err := repo.Deactivate(ctx, tenantID, "ACTIVE"); err == nil {
		t.Fatal("Deactivate() on in-use status: want error, got nil")
	}
}
