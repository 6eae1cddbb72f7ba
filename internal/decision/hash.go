package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/hiredesk/hiredesk/internal/catalog"
)

// eventHash computes executeAction's idempotency digest: a deterministic
// SHA256 over the logical transition identity. Two executeAction calls
// that resolve to the same (application, action, from_stage, to_stage,
// outcome, status) produce the same hash, which the history table's
// unique index on event_hash turns into a harmless ON CONFLICT no-op.
func eventHash(applicationID uuid.UUID, actionCode string, fromStage, toStage uuid.UUID, outcome catalog.OutcomeType, status string) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s", applicationID, actionCode, fromStage, toStage, outcome, status)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
