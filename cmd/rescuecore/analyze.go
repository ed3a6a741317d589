package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rescuecore/internal/core"
	"rescuecore/internal/types"
)

var (
	analyzeFile        string
	analyzeFixtures    bool
	analyzeRender      bool
	analyzeOutput      string
	analyzeInteractive bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a disaster report through the decision pipeline",
	Long: `Reads a request document (JSON) and produces ranked response plans.

The request carries the free-text disaster description plus optional
structured hints (location, magnitude, urgency) and constraints. With
--fixtures the pipeline runs against deterministic offline collaborators,
which is useful for demos and request-format debugging.

Example:
  rescuecore analyze -f request.json --render`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "request JSON file (defaults to stdin)")
	analyzeCmd.Flags().BoolVar(&analyzeFixtures, "fixtures", false, "use deterministic offline collaborators")
	analyzeCmd.Flags().BoolVar(&analyzeRender, "render", false, "render the plan explanation as terminal markdown")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write the full output JSON to a file")
	analyzeCmd.Flags().BoolVarP(&analyzeInteractive, "interactive", "i", false, "open the interactive console instead of reading a request file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeInteractive {
		return runInteractive()
	}
	req, err := loadRequest(analyzeFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	analyzer, cleanup, err := buildAnalyzer(ctx, req)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("analyzing request",
		zap.String("event_id", req.EventID),
		zap.Bool("fixtures", analyzeFixtures))

	out := analyzer.Analyze(ctx, req)

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if analyzeOutput != "" {
		if err := os.WriteFile(analyzeOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		logger.Info("output written", zap.String("path", analyzeOutput))
	} else if !analyzeRender {
		fmt.Println(string(data))
	}

	if analyzeRender && out.SchemeExplanation != "" {
		rendered, err := renderMarkdown(out.SchemeExplanation)
		if err != nil {
			// Fall back to the raw markdown rather than losing the plan.
			rendered = out.SchemeExplanation
		}
		fmt.Println(rendered)
	}

	if !out.Success {
		return fmt.Errorf("analysis failed: %v", out.Errors)
	}
	return nil
}

// buildAnalyzer wires the analyzer over real or fixture collaborators.
func buildAnalyzer(ctx context.Context, req *types.Request) (*core.Analyzer, closer, error) {
	if analyzeFixtures {
		lat, lng, ok := req.Location()
		if !ok {
			return nil, nil, fmt.Errorf("fixture mode needs a location in the structured input")
		}
		deps, err := core.FixtureDeps(lat, lng)
		if err != nil {
			return nil, nil, err
		}
		analyzer, err := core.NewAnalyzer(cfg, deps)
		if err != nil {
			return nil, nil, err
		}
		return analyzer, func() {}, nil
	}

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	analyzer, err := core.NewAnalyzer(cfg, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return analyzer, cleanup, nil
}

func loadRequest(path string) (*types.Request, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	var req types.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	if req.DisasterDescription == "" {
		return nil, fmt.Errorf("request has no disaster_description")
	}
	return &req, nil
}

func renderMarkdown(md string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(md)
}
