package dbprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/config"
)

func TestNewProvider_UnknownProvider(t *testing.T) {
	cfg := &config.DatabaseConfig{Provider: "oracle"}

	_, err := NewProvider(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown database provider")
}
