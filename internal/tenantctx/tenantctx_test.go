package tenantctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTenantID_IsNil(t *testing.T) {
	assert.True(t, TenantID(uuid.Nil).IsNil())
	assert.False(t, TenantID(uuid.New()).IsNil())
}

func TestWithCaller_RoundTrip(t *testing.T) {
	caller := Caller{TenantID: TenantID(uuid.New()), UserID: UserID(uuid.New())}
	ctx := WithCaller(context.Background(), caller)

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, caller, got)
}

func TestFromContext_Missing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
