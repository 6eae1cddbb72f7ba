package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineConfigValidate_Empty(t *testing.T) {
	cfg := &EngineConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestEngineConfigValidate_DuplicateStatusCode(t *testing.T) {
	cfg := &EngineConfig{
		SeedStatuses: []StatusSeed{
			{StatusCode: "ACTIVE", OutcomeType: "ACTIVE"},
			{StatusCode: "ACTIVE", OutcomeType: "HOLD"},
		},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestEngineConfigValidate_InvalidOutcomeType(t *testing.T) {
	cfg := &EngineConfig{
		SeedStatuses: []StatusSeed{
			{StatusCode: "ACTIVE", OutcomeType: "BOGUS"},
		},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid outcome_type")
}

func TestEngineConfigValidate_EmptyCapabilitySet(t *testing.T) {
	cfg := &EngineConfig{
		SeedCapabilities: map[string][]string{
			"recruiter": {},
		},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no capabilities")
}
