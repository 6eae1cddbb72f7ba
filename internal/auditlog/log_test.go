package auditlog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiredesk/hiredesk/internal/catalog"
)

// fakeRepository records the Filters it was called with so tests can
// assert on the query GetRejectionReason builds, without a database.
type fakeRepository struct {
	lastFilters Filters
	entries     []Entry
}

func (f *fakeRepository) Append(_ context.Context, e *Entry) error {
	e.ID = uuid.New()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeRepository) List(_ context.Context, _, _ uuid.UUID, filt Filters) ([]Entry, error) {
	f.lastFilters = filt
	return f.entries, nil
}

func (f *fakeRepository) Get(_ context.Context, _, _, id uuid.UUID) (*Entry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func TestGetRejectionReason_BuildsTerminalFailureFilter(t *testing.T) {
	repo := &fakeRepository{}

	_, err := GetRejectionReason(context.Background(), repo, uuid.New(), uuid.New())
	require.NoError(t, err)

	require.NotNil(t, repo.lastFilters.OutcomeType)
	assert.Equal(t, catalog.OutcomeFailure, *repo.lastFilters.OutcomeType)
	require.NotNil(t, repo.lastFilters.IsTerminal)
	assert.True(t, *repo.lastFilters.IsTerminal)
	assert.Equal(t, 1, repo.lastFilters.Limit)
}

func TestGetRejectionReason_NoneFound(t *testing.T) {
	repo := &fakeRepository{}

	entry, err := GetRejectionReason(context.Background(), repo, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestGetRejectionReason_ReturnsMostRecent(t *testing.T) {
	applicationID := uuid.New()
	tenantID := uuid.New()
	note := "not a fit for the role"
	repo := &fakeRepository{entries: []Entry{
		{TenantID: tenantID, ApplicationID: applicationID, OutcomeType: catalog.OutcomeFailure, IsTerminal: true, DecisionNote: &note},
	}}

	entry, err := GetRejectionReason(context.Background(), repo, tenantID, applicationID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, &note, entry.DecisionNote)
}
