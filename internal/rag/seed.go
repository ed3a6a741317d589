package rag

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

type caseSeedFile struct {
	Cases []caseSeed `yaml:"cases"`
}

type caseSeed struct {
	CaseID        string   `yaml:"case_id"`
	DisasterType  string   `yaml:"disaster_type"`
	Summary       string   `yaml:"summary"`
	Lessons       []string `yaml:"lessons"`
	BestPractices []string `yaml:"best_practices"`
}

// SeedFromFile loads a YAML case document into the store. Returns the number
// of cases loaded.
func (s *CaseStore) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var doc caseSeedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, cs := range doc.Cases {
		if cs.CaseID == "" {
			return 0, fmt.Errorf("case %d has no case_id", i)
		}
		c := types.SimilarCase{
			CaseID:        cs.CaseID,
			DisasterType:  cs.DisasterType,
			Summary:       cs.Summary,
			Lessons:       cs.Lessons,
			BestPractices: cs.BestPractices,
		}
		if err := s.StoreCase(ctx, c); err != nil {
			return 0, err
		}
	}

	logging.Store("seeded %d cases from %s", len(doc.Cases), path)
	return len(doc.Cases), nil
}
