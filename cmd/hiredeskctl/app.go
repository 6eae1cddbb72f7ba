package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/auditlog"
	auditlogpg "github.com/hiredesk/hiredesk/internal/auditlog/postgres"
	"github.com/hiredesk/hiredesk/internal/capability"
	capabilitypg "github.com/hiredesk/hiredesk/internal/capability/postgres"
	"github.com/hiredesk/hiredesk/internal/catalog"
	catalogpg "github.com/hiredesk/hiredesk/internal/catalog/postgres"
	"github.com/hiredesk/hiredesk/internal/config"
	"github.com/hiredesk/hiredesk/internal/dbprovider"
	"github.com/hiredesk/hiredesk/internal/decision"
	decisionpg "github.com/hiredesk/hiredesk/internal/decision/postgres"
	"github.com/hiredesk/hiredesk/internal/evaluation"
	evaluationpg "github.com/hiredesk/hiredesk/internal/evaluation/postgres"
	identitypg "github.com/hiredesk/hiredesk/internal/identity/postgres"
	"github.com/hiredesk/hiredesk/internal/logger"
	"github.com/hiredesk/hiredesk/internal/pipeline"
	pipelinepg "github.com/hiredesk/hiredesk/internal/pipeline/postgres"
	"github.com/hiredesk/hiredesk/internal/signal"
	signalpg "github.com/hiredesk/hiredesk/internal/signal/postgres"
)

// app bundles every engine and repository hiredeskctl's subcommands
// operate against. It is built once in the root command's
// PersistentPreRunE and torn down in PersistentPostRun.
type app struct {
	log      *zap.Logger
	provider dbprovider.Provider

	Catalog    catalog.Repository
	Capability *capability.Resolver
	Signals    signal.Repository
	Pipeline   pipeline.Repository
	Audit      auditlog.Repository

	Decision   *decision.Engine
	Evaluation *evaluation.Engine
}

var globalApp *app

func buildApp(ctx context.Context, configPath string) (*app, error) {
	v := config.NewViperInstance()
	if err := config.BindEnvironmentVariables(v); err != nil {
		return nil, fmt.Errorf("bind environment variables: %w", err)
	}

	configFile, err := config.FindConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("find config file: %w", err)
	}
	if configFile != "" {
		if err := config.LoadConfigFile(v, configFile); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	provider, err := dbprovider.NewProvider(ctx, &cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("initialize database provider: %w", err)
	}

	pool, ok := provider.Pool().(*pgxpool.Pool)
	if !ok {
		provider.Close()
		return nil, fmt.Errorf("database provider %q does not expose a pgxpool.Pool (hiredeskctl requires postgres)", cfg.Database.Provider)
	}

	catalogRepo := catalogpg.New(pool, log)
	capRepo := capabilitypg.New(pool, log)
	roleResolver := identitypg.NewRoleResolver(pool, log)
	hrResolver := identitypg.NewHRResolver(pool, log)
	capResolver := capability.NewResolver(roleResolver, capRepo)
	signalRepo := signalpg.New(pool, log)
	pipelineRepo := pipelinepg.New(pool, log)
	auditRepo := auditlogpg.New(pool, log)

	templates := evaluationpg.NewTemplateRepository(pool, log)
	instances := evaluationpg.NewInstanceRepository(pool, log)
	participants := evaluationpg.NewParticipantRepository(pool, log)
	responses := evaluationpg.NewResponseRepository(pool, log)
	stageEvals := evaluationpg.NewStageEvaluationRepository(pool, log)

	evalEngine := evaluation.NewEngine(templates, instances, participants, responses, stageEvals, hrResolver, signalRepo)
	txAutoCreator := evaluationpg.NewTxAutoCreator(stageEvals, hrResolver, log)

	decisionStore := decisionpg.New(pool, log)
	actionRepo := decisionpg.NewActionRepository(pool, log)
	feedbackRepo := decisionpg.NewStageFeedbackRepository(pool, log)

	decisionEngine := decision.NewEngine(decisionStore, actionRepo, feedbackRepo, catalogRepo, capResolver, signalRepo, pipelineRepo, txAutoCreator, log)

	return &app{
		log:        log,
		provider:   provider,
		Catalog:    catalogRepo,
		Capability: capResolver,
		Signals:    signalRepo,
		Pipeline:   pipelineRepo,
		Audit:      auditRepo,
		Decision:   decisionEngine,
		Evaluation: evalEngine,
	}, nil
}

func (a *app) Close() {
	if a == nil || a.provider == nil {
		return
	}
	a.provider.Close()
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
	os.Exit(1)
}
