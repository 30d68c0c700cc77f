package config

import (
	"os"
	"strconv"
)

// APFCConfig configures the Atomic Planning & Feedback Core pipeline:
// workspace location, round/attempt budgets, and the layer policy atoms are
// planned against.
type APFCConfig struct {
	WorkspaceRoot string `yaml:"workspace_root" json:"workspace_root"`
	SolutionName  string `yaml:"solution_name" json:"solution_name"`

	LLMProvider string `yaml:"llm_provider" json:"llm_provider"`
	LLMModel    string `yaml:"llm_model" json:"llm_model"`
	LLMAPIKey   string `yaml:"-" json:"-"` // never serialized; sourced from env only

	RepairRoundBudget  int    `yaml:"repair_round_budget" json:"repair_round_budget"`
	AtomMaxRetries     int    `yaml:"atom_max_retries" json:"atom_max_retries"`
	PlannerMaxRetries  int    `yaml:"planner_max_retries" json:"planner_max_retries"`
	MaxConcurrentAtoms int    `yaml:"max_concurrent_atoms" json:"max_concurrent_atoms"`
	BuildTimeout       string `yaml:"build_timeout" json:"build_timeout"`
	CacheTTL           string `yaml:"cache_ttl" json:"cache_ttl"`
	Scaffold           bool   `yaml:"scaffold" json:"scaffold"`

	Layers map[string]APFCLayerPolicy `yaml:"layers" json:"layers"`
}

// APFCLayerPolicy names one layer's allowed-dependency set (yaml-facing
// mirror of apfc.LayerPolicy, kept separate so internal/config has no
// dependency on internal/apfc).
type APFCLayerPolicy struct {
	Description         string   `yaml:"description" json:"description"`
	AllowedDependencies []string `yaml:"allowed_dependencies" json:"allowed_dependencies"`
}

// DefaultAPFCConfig returns the zero-value-backfilled APFC defaults: a
// three-layer Core/Infrastructure/Presentation policy matching the spec's
// worked example, a 3-round repair budget, and 3 per-atom attempts.
func DefaultAPFCConfig() APFCConfig {
	return APFCConfig{
		WorkspaceRoot:      "./workspace",
		SolutionName:       "Generated",
		LLMProvider:        "gemini",
		LLMModel:           "gemini-2.5-pro",
		RepairRoundBudget:  3,
		AtomMaxRetries:     3,
		PlannerMaxRetries:  3,
		MaxConcurrentAtoms: 4,
		BuildTimeout:       "300s",
		CacheTTL:           "30m",
		Scaffold:           true,
		Layers: map[string]APFCLayerPolicy{
			"Core": {
				Description:         "Domain abstractions and data shapes. No dependencies permitted.",
				AllowedDependencies: nil,
			},
			"Infrastructure": {
				Description:         "Concrete implementations of Core contracts.",
				AllowedDependencies: []string{"Core"},
			},
			"Presentation": {
				Description:         "User-facing entry points.",
				AllowedDependencies: []string{"Core", "Infrastructure"},
			},
		},
	}
}

// applyAPFCEnvOverrides overrides fields from the environment: each variable
// that is set (and, for the numeric ones, parses as a positive integer)
// replaces the current value. WORKSPACE_ROOT and APFC_WORKSPACE_ROOT both set
// the workspace root; APFC_WORKSPACE_ROOT wins when both are set.
func (c *APFCConfig) applyAPFCEnvOverrides() {
	if v := os.Getenv("WORKSPACE_ROOT"); v != "" {
		c.WorkspaceRoot = v
	}
	if v := os.Getenv("APFC_WORKSPACE_ROOT"); v != "" {
		c.WorkspaceRoot = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLMModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLMAPIKey = v
	}
	if v := os.Getenv("APFC_REPAIR_ROUND_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RepairRoundBudget = n
		}
	}
	if v := os.Getenv("APFC_ATOM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.AtomMaxRetries = n
		}
	}
	if v := os.Getenv("APFC_MAX_CONCURRENT_ATOMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConcurrentAtoms = n
		}
	}
}
