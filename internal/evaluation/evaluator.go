package evaluation

import (
	"context"

	"rescuecore/internal/config"
)

// LLMClient is the narrow LLM surface the explainer needs. The perception
// Gemini client satisfies it.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Evaluator applies the configured rule set to allocation solutions. Safe
// for concurrent use; all state is read-only after construction.
type Evaluator struct {
	cfg *config.Config
	llm LLMClient
}

// NewEvaluator creates an evaluator. A nil llm disables narrative
// explanations; the minimal form is used instead.
func NewEvaluator(cfg *config.Config, llm LLMClient) *Evaluator {
	return &Evaluator{cfg: cfg, llm: llm}
}
