package capability

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentityStore struct {
	roles map[uuid.UUID]string
	err   error
}

func (f *fakeIdentityStore) RoleForUser(_ context.Context, _ uuid.UUID, userID uuid.UUID) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	role, ok := f.roles[userID]
	if !ok {
		return "", ErrRoleNotFound
	}
	return role, nil
}

type fakeGrantRepository struct {
	grants map[string][]string
}

func (f *fakeGrantRepository) Grants(_ context.Context, _ uuid.UUID, role string) ([]string, error) {
	return f.grants[role], nil
}

func (f *fakeGrantRepository) Grant(_ context.Context, _ uuid.UUID, role, capability string) error {
	f.grants[role] = append(f.grants[role], capability)
	return nil
}

func (f *fakeGrantRepository) Revoke(_ context.Context, _ uuid.UUID, role, capability string) error {
	kept := f.grants[role][:0]
	for _, g := range f.grants[role] {
		if g != capability {
			kept = append(kept, g)
		}
	}
	f.grants[role] = kept
	return nil
}

func (f *fakeGrantRepository) SeedDefaults(_ context.Context, _ uuid.UUID) error {
	for role, caps := range DefaultCapabilitySets {
		f.grants[role] = append([]string(nil), caps...)
	}
	return nil
}

func TestResolver_Has(t *testing.T) {
	tenantID := uuid.New()
	recruiterID := uuid.New()
	strangerID := uuid.New()

	identity := &fakeIdentityStore{roles: map[uuid.UUID]string{recruiterID: "recruiter"}}
	grants := &fakeGrantRepository{grants: map[string][]string{}}
	require.NoError(t, grants.SeedDefaults(context.Background(), tenantID))

	resolver := NewResolver(identity, grants)

	ok, err := resolver.Has(context.Background(), tenantID, recruiterID, AdvanceStage)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = resolver.Has(context.Background(), tenantID, recruiterID, ManageSettings)
	require.NoError(t, err)
	assert.False(t, ok, "recruiter is not seeded with MANAGE_SETTINGS")

	_, err = resolver.Has(context.Background(), tenantID, strangerID, ViewTracking)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestResolver_Has_Wildcard(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()

	identity := &fakeIdentityStore{roles: map[uuid.UUID]string{userID: "interviewer"}}
	grants := &fakeGrantRepository{grants: map[string][]string{
		"interviewer": {FeedbackWildcard},
	}}

	resolver := NewResolver(identity, grants)

	ok, err := resolver.Has(context.Background(), tenantID, userID, "feedback:technical")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = resolver.Has(context.Background(), tenantID, userID, AdvanceStage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchesWildcard(t *testing.T) {
	cases := []struct {
		grant, capability string
		want              bool
	}{
		{"feedback:*", "feedback:technical", true},
		{"feedback:*", "feedback:", true},
		{"feedback:*", "feedbac", false},
		{"feedback:*", "other:thing", false},
		{"VIEW_TRACKING", "VIEW_TRACKING", false}, // not a wildcard grant
		{"*", "anything", true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, matchesWildcard(tc.grant, tc.capability), "grant=%s capability=%s", tc.grant, tc.capability)
	}
}
