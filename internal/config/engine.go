package config

import "fmt"

// EngineConfig holds seed-data overrides for a new tenant's status
// catalog and capability grants. It is loaded and validated with the
// rest of Config only: the SeedDefaults implementations in
// catalog/postgres and capability/postgres install
// catalog.DefaultStatuses and capability.DefaultCapabilitySets and do
// not read these fields.
type EngineConfig struct {
	// SeedStatuses lists replacement status seed rows.
	SeedStatuses []StatusSeed `mapstructure:"seed_statuses"`

	// SeedCapabilities maps role name -> granted capability tokens.
	SeedCapabilities map[string][]string `mapstructure:"seed_capabilities"`
}

// StatusSeed is one configured status seed row.
type StatusSeed struct {
	StatusCode  string `mapstructure:"status_code"`
	DisplayName string `mapstructure:"display_name"`
	OutcomeType string `mapstructure:"outcome_type"`
	IsTerminal  bool   `mapstructure:"is_terminal"`
	SortOrder   int    `mapstructure:"sort_order"`
}

// Validate checks structural invariants of configured seed overrides.
func (e *EngineConfig) Validate() error {
	seen := make(map[string]bool, len(e.SeedStatuses))
	for _, s := range e.SeedStatuses {
		if s.StatusCode == "" {
			return fmt.Errorf("seed_statuses: status_code is required")
		}
		if seen[s.StatusCode] {
			return fmt.Errorf("seed_statuses: duplicate status_code %s", s.StatusCode)
		}
		seen[s.StatusCode] = true

		validOutcomes := map[string]bool{
			"ACTIVE": true, "HOLD": true, "SUCCESS": true, "FAILURE": true, "NEUTRAL": true,
		}
		if !validOutcomes[s.OutcomeType] {
			return fmt.Errorf("seed_statuses: invalid outcome_type %s for %s", s.OutcomeType, s.StatusCode)
		}
	}

	for role, caps := range e.SeedCapabilities {
		if role == "" {
			return fmt.Errorf("seed_capabilities: role name is required")
		}
		if len(caps) == 0 {
			return fmt.Errorf("seed_capabilities: role %s has no capabilities", role)
		}
	}

	return nil
}
