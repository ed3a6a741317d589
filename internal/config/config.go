// Package config holds all rescuecore configuration: adapter endpoints and
// timeouts, matcher and allocator tuning, and the evaluation rule set. The
// configuration is loaded once at startup; a malformed configuration is a
// fatal startup error, never a per-request one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"rescuecore/internal/types"
)

// ConfigError reports an invalid configuration section at load time.
type ConfigError struct {
	Section string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Section, e.Message)
}

// Config holds all rescuecore configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM transport.
	LLM LLMConfig `yaml:"llm"`

	// Non-LLM adapter timeouts.
	Adapters AdapterConfig `yaml:"adapters"`

	// Matcher tuning.
	Matcher MatcherConfig `yaml:"matcher"`

	// Allocator tuning.
	Allocator AllocatorConfig `yaml:"allocator"`

	// Hard rules and soft-scoring weights.
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Meta-task library.
	HTN HTNConfig `yaml:"htn"`

	// Historical case store.
	Store StoreConfig `yaml:"store"`

	// Team registry.
	Registry RegistryConfig `yaml:"registry"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM adapter.
type LLMConfig struct {
	Provider string `yaml:"provider"` // genai | mock
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// AdapterConfig bounds the non-LLM collaborator calls.
type AdapterConfig struct {
	VectorTimeout string `yaml:"vector_timeout"`
	KGTimeout     string `yaml:"kg_timeout"`
	TeamTimeout   string `yaml:"team_timeout"`
}

// MatcherConfig tunes the team search.
type MatcherConfig struct {
	AverageSpeedKMH float64 `yaml:"average_speed_kmh"`
	RadiusStepKM    float64 `yaml:"radius_step_km"`
	MaxRadiusKM     float64 `yaml:"max_radius_km"`
}

// AllocatorConfig tunes the multi-objective optimizer.
type AllocatorConfig struct {
	Population    int     `yaml:"population"`
	Generations   int     `yaml:"generations"`
	Seed          int64   `yaml:"seed"`
	NSGAThreshold int     `yaml:"nsga_threshold"` // candidate count above which NSGA-II runs
	MinCoverage   float64 `yaml:"min_coverage"`
}

// HardRuleConfig is one veto rule. Kind is a closed set: min_teams,
// max_response_time, min_coverage.
type HardRuleConfig struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Kind      string  `yaml:"kind"`
	Threshold float64 `yaml:"threshold"`
	Message   string  `yaml:"message"`
}

// EvaluationConfig holds the hard rules and the 5-D weights.
type EvaluationConfig struct {
	HardRules []HardRuleConfig `yaml:"hard_rules"`
	Weights   types.Weights    `yaml:"weights"`
	// Per-disaster-type weight overrides, keyed by disaster type.
	WeightOverrides map[string]types.Weights `yaml:"weight_overrides"`
}

// HTNConfig locates the meta-task library. An empty path selects the
// embedded default library.
type HTNConfig struct {
	LibraryPath string `yaml:"library_path"`
}

// EmbeddingConfig selects the embedding backend for case retrieval.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // genai | keyword
	Model    string `yaml:"model"`
}

// StoreConfig configures the historical case store.
type StoreConfig struct {
	DatabasePath string          `yaml:"database_path"`
	TopK         int             `yaml:"top_k"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
}

// RegistryConfig configures the team registry.
type RegistryConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	Directory string `yaml:"directory"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "rescuecore",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "genai",
			Model:    "gemini-2.0-flash",
			Timeout:  "120s",
		},

		Adapters: AdapterConfig{
			VectorTimeout: "10s",
			KGTimeout:     "10s",
			TeamTimeout:   "30s",
		},

		Matcher: MatcherConfig{
			AverageSpeedKMH: 40,
			RadiusStepKM:    50,
			MaxRadiusKM:     300,
		},

		Allocator: AllocatorConfig{
			Population:    50,
			Generations:   50,
			Seed:          42,
			NSGAThreshold: 10,
			MinCoverage:   0.70,
		},

		Evaluation: EvaluationConfig{
			HardRules: []HardRuleConfig{
				{ID: "HR-001", Name: "at least one team", Kind: "min_teams", Threshold: 1, Message: "solution assigns no teams"},
				{ID: "HR-002", Name: "response within golden window", Kind: "max_response_time", Threshold: 120, Message: "slowest team arrives after 120 minutes"},
				{ID: "HR-003", Name: "minimum coverage", Kind: "min_coverage", Threshold: 0.70, Message: "capability coverage below 70%"},
			},
			Weights: types.DefaultWeights(),
			WeightOverrides: map[string]types.Weights{
				// Earthquakes weight rescue success and arrival speed higher.
				"earthquake": {SuccessRate: 0.40, ResponseTime: 0.35, CoverageRate: 0.15, Risk: 0.05, Redundancy: 0.05},
			},
		},

		HTN: HTNConfig{LibraryPath: ""},

		Store: StoreConfig{
			DatabasePath: "data/cases.db",
			TopK:         5,
			Embedding:    EmbeddingConfig{Provider: "keyword", Model: "gemini-embedding-001"},
		},

		Registry: RegistryConfig{DatabasePath: "data/teams.db"},

		Logging: LoggingConfig{Level: "info", Directory: ""},
	}
}

// Load loads configuration from a YAML file layered over the defaults. A
// missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment supply secrets.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("RESCUECORE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if dir := os.Getenv("RESCUECORE_LOG_DIR"); dir != "" {
		c.Logging.Directory = dir
	}
}

// hardRuleKinds is the closed set of veto-rule variants.
var hardRuleKinds = map[string]bool{
	"min_teams":         true,
	"max_response_time": true,
	"min_coverage":      true,
}

// Validate checks the configuration invariants that must hold before the
// core accepts requests.
func (c *Config) Validate() error {
	if !c.Evaluation.Weights.Valid() {
		return &ConfigError{
			Section: "evaluation.weights",
			Message: fmt.Sprintf("weights sum to %.6f, want 1.0", c.Evaluation.Weights.Sum()),
		}
	}
	for dt, w := range c.Evaluation.WeightOverrides {
		if !w.Valid() {
			return &ConfigError{
				Section: "evaluation.weight_overrides." + dt,
				Message: fmt.Sprintf("weights sum to %.6f, want 1.0", w.Sum()),
			}
		}
	}
	for _, hr := range c.Evaluation.HardRules {
		if !hardRuleKinds[hr.Kind] {
			return &ConfigError{
				Section: "evaluation.hard_rules",
				Message: fmt.Sprintf("unknown hard-rule kind %q (rule %s)", hr.Kind, hr.ID),
			}
		}
	}
	if c.Allocator.Population <= 0 || c.Allocator.Generations <= 0 {
		return &ConfigError{
			Section: "allocator",
			Message: "population and generations must be positive",
		}
	}
	if c.Allocator.MinCoverage < 0 || c.Allocator.MinCoverage > 1 {
		return &ConfigError{
			Section: "allocator",
			Message: fmt.Sprintf("min_coverage %.2f out of [0,1]", c.Allocator.MinCoverage),
		}
	}
	if c.Matcher.AverageSpeedKMH <= 0 {
		return &ConfigError{
			Section: "matcher",
			Message: "average_speed_kmh must be positive",
		}
	}
	return nil
}

// EvaluationWeights returns the 5-D weights for a disaster type: the
// per-type override when configured, else the defaults.
func (c *Config) EvaluationWeights(disasterType string) types.Weights {
	if w, ok := c.Evaluation.WeightOverrides[disasterType]; ok {
		return w
	}
	return c.Evaluation.Weights
}

// HardRules returns the configured veto rules.
func (c *Config) HardRules() []HardRuleConfig {
	return c.Evaluation.HardRules
}

// parseTimeout parses a duration string, falling back to def.
func parseTimeout(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetLLMTimeout returns the LLM call timeout (default 120s).
func (c *Config) GetLLMTimeout() time.Duration {
	return parseTimeout(c.LLM.Timeout, 120*time.Second)
}

// GetVectorTimeout returns the vector-store query timeout (default 10s).
func (c *Config) GetVectorTimeout() time.Duration {
	return parseTimeout(c.Adapters.VectorTimeout, 10*time.Second)
}

// GetKGTimeout returns the knowledge-graph query timeout (default 10s).
func (c *Config) GetKGTimeout() time.Duration {
	return parseTimeout(c.Adapters.KGTimeout, 10*time.Second)
}

// GetTeamTimeout returns the team registry query timeout (default 30s).
func (c *Config) GetTeamTimeout() time.Duration {
	return parseTimeout(c.Adapters.TeamTimeout, 30*time.Second)
}
