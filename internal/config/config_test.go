package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rescuecore/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.GetLLMTimeout() != 120*time.Second {
		t.Errorf("LLM timeout = %v, want 120s", cfg.GetLLMTimeout())
	}
	if cfg.GetVectorTimeout() != 10*time.Second {
		t.Errorf("vector timeout = %v, want 10s", cfg.GetVectorTimeout())
	}
	if cfg.GetKGTimeout() != 10*time.Second {
		t.Errorf("KG timeout = %v, want 10s", cfg.GetKGTimeout())
	}
	if cfg.GetTeamTimeout() != 30*time.Second {
		t.Errorf("team timeout = %v, want 30s", cfg.GetTeamTimeout())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Allocator.Seed != 42 {
		t.Errorf("seed = %d, want 42", cfg.Allocator.Seed)
	}
	if cfg.Matcher.MaxRadiusKM != 300 {
		t.Errorf("max radius = %v, want 300", cfg.Matcher.MaxRadiusKM)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rescuecore.yaml")
	body := `
matcher:
  average_speed_kmh: 60
allocator:
  population: 100
  generations: 50
  seed: 7
  nsga_threshold: 10
  min_coverage: 0.7
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matcher.AverageSpeedKMH != 60 {
		t.Errorf("speed = %v, want 60", cfg.Matcher.AverageSpeedKMH)
	}
	if cfg.Allocator.Population != 100 || cfg.Allocator.Seed != 7 {
		t.Errorf("allocator not overridden: %+v", cfg.Allocator)
	}
	// Untouched sections keep their defaults.
	if len(cfg.Evaluation.HardRules) != 3 {
		t.Errorf("hard rules = %d, want 3 defaults", len(cfg.Evaluation.HardRules))
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Evaluation.Weights = types.Weights{SuccessRate: 0.9, ResponseTime: 0.2}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for weights summing to 1.1")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *ConfigError", err)
	}
	if ce.Section != "evaluation.weights" {
		t.Errorf("section = %q", ce.Section)
	}
}

func TestValidateRejectsBadOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Evaluation.WeightOverrides["flood"] = types.Weights{SuccessRate: 0.5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-summing override")
	}
}

func TestValidateRejectsUnknownHardRuleKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Evaluation.HardRules = append(cfg.Evaluation.HardRules, HardRuleConfig{
		ID: "HR-X", Kind: "forbid_rain", Threshold: 1,
	})
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown hard-rule kind")
	}
}

func TestEvaluationWeights(t *testing.T) {
	cfg := DefaultConfig()
	w := cfg.EvaluationWeights("earthquake")
	if w.SuccessRate != 0.40 {
		t.Errorf("earthquake override not applied: %+v", w)
	}
	w = cfg.EvaluationWeights("flood")
	if w != types.DefaultWeights() {
		t.Errorf("flood should use defaults, got %+v", w)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Allocator.Seed = 99
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Allocator.Seed != 99 {
		t.Errorf("seed = %d, want 99", loaded.Allocator.Seed)
	}
}
