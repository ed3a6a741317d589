package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rescuecore/internal/config"
	"rescuecore/internal/core"
	"rescuecore/internal/kg"
	"rescuecore/internal/perception"
	"rescuecore/internal/rag"
	"rescuecore/internal/registry"
)

// closer releases the collaborators a command opened.
type closer func()

// buildDeps opens the real collaborator set: the Gemini client, the case
// store, the knowledge graph with the built-in rule set, and the team
// registry.
func buildDeps(ctx context.Context, cfg *config.Config) (core.Deps, closer, error) {
	if cfg.LLM.APIKey == "" {
		return core.Deps{}, nil, fmt.Errorf("no LLM API key configured (set RESCUECORE_API_KEY or GEMINI_API_KEY)")
	}
	llm := perception.NewGeminiClientWithConfig(perception.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetLLMTimeout(),
	})

	store, err := openCaseStore(ctx, cfg)
	if err != nil {
		return core.Deps{}, nil, err
	}

	graph, err := kg.New(cfg.GetKGTimeout())
	if err != nil {
		store.Close()
		return core.Deps{}, nil, err
	}
	if err := graph.LoadDefaults(); err != nil {
		store.Close()
		return core.Deps{}, nil, err
	}

	reg, err := registry.Open(cfg.Registry.DatabasePath, cfg.GetTeamTimeout())
	if err != nil {
		store.Close()
		return core.Deps{}, nil, err
	}

	deps := core.Deps{LLM: llm, Cases: store, Rules: graph, Teams: reg}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close case store", zap.Error(err))
		}
		if err := reg.Close(); err != nil {
			logger.Warn("failed to close team registry", zap.Error(err))
		}
	}
	return deps, cleanup, nil
}

// openCaseStore opens the historical case store with the configured embedding
// backend. The keyword backend needs no credentials and is the default.
func openCaseStore(ctx context.Context, cfg *config.Config) (*rag.CaseStore, error) {
	var engine rag.EmbeddingEngine
	if cfg.Store.Embedding.Provider == "genai" {
		e, err := rag.NewGenAIEngine(ctx, cfg.LLM.APIKey, cfg.Store.Embedding.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding engine: %w", err)
		}
		engine = e
	}
	return rag.OpenStore(cfg.Store.DatabasePath, engine, cfg.GetVectorTimeout())
}
