package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/evaluation"
	"github.com/hiredesk/hiredesk/internal/pgtx"
)

// TxAutoCreator adapts the evaluation engine's AutoCreate cascade to
// run inside a caller's open transaction rather than
// opening one of its own. The decision engine hands it the same
// executor its own Tx is built from; TxAutoCreator type-asserts that
// executor to a pgtx.Querier and builds transaction-scoped instance and
// participant repositories against it, so the cascade's writes commit
// or abort with the rest of the decision.
//
// StageEvals and HR stay pool-backed: both are read-only lookups
// (stage auto-create configuration, HR directory) that never need to
// roll back alongside the decision's writes.
type TxAutoCreator struct {
	StageEvals *StageEvaluationRepository
	HR         evaluation.HRResolver
	Logger     *zap.Logger
}

// NewTxAutoCreator builds a TxAutoCreator from the pool-backed
// collaborators AutoCreate needs beyond the transaction itself.
func NewTxAutoCreator(stageEvals *StageEvaluationRepository, hr evaluation.HRResolver, logger *zap.Logger) *TxAutoCreator {
	return &TxAutoCreator{StageEvals: stageEvals, HR: hr, Logger: logger.With(zap.String("component", "evaluation-tx-auto-creator"))}
}

// AutoCreate implements decision.AutoCreator. exec must be the same
// value the decision engine's Store hands back from Tx.Executor() — a
// *pgxpool.Pool or pgx.Tx satisfying pgtx.Querier.
func (c *TxAutoCreator) AutoCreate(ctx context.Context, exec any, tenantID, applicationID, stageID uuid.UUID, conductedBy string) error {
	querier, ok := exec.(pgtx.Querier)
	if !ok {
		return fmt.Errorf("evaluation auto-create: executor %T does not satisfy pgtx.Querier", exec)
	}

	instances := NewInstanceRepository(querier, c.Logger)
	participants := NewParticipantRepository(querier, c.Logger)

	engine := evaluation.NewEngine(nil, instances, participants, nil, c.StageEvals, c.HR, nil)
	return engine.AutoCreate(ctx, tenantID, applicationID, stageID, conductedBy)
}
