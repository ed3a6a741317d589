package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"rescuecore/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration after defaults and overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		title := lipgloss.NewStyle().Bold(true).Underline(true)
		key := lipgloss.NewStyle().Width(24)

		section := func(name string) { fmt.Println(title.Render(name)) }
		row := func(k string, v interface{}) {
			fmt.Printf("  %s %v\n", key.Render(k), v)
		}

		section("Core")
		row("name", cfg.Name)
		row("version", cfg.Version)

		section("LLM")
		row("provider", cfg.LLM.Provider)
		row("model", cfg.LLM.Model)
		row("timeout", cfg.GetLLMTimeout())
		row("api_key", maskKey(cfg.LLM.APIKey))

		section("Matcher")
		row("average_speed_kmh", cfg.Matcher.AverageSpeedKMH)
		row("radius_step_km", cfg.Matcher.RadiusStepKM)
		row("max_radius_km", cfg.Matcher.MaxRadiusKM)

		section("Allocator")
		row("population", cfg.Allocator.Population)
		row("generations", cfg.Allocator.Generations)
		row("seed", cfg.Allocator.Seed)
		row("nsga_threshold", cfg.Allocator.NSGAThreshold)
		row("min_coverage", cfg.Allocator.MinCoverage)

		section("Evaluation")
		for _, hr := range cfg.Evaluation.HardRules {
			row(hr.ID, fmt.Sprintf("%s %s %.0f", hr.Kind, cmpSymbol(hr.Kind), hr.Threshold))
		}
		w := cfg.Evaluation.Weights
		row("weights", fmt.Sprintf("success=%.2f response=%.2f coverage=%.2f risk=%.2f redundancy=%.2f",
			w.SuccessRate, w.ResponseTime, w.CoverageRate, w.Risk, w.Redundancy))
		if len(cfg.Evaluation.WeightOverrides) > 0 {
			types := make([]string, 0, len(cfg.Evaluation.WeightOverrides))
			for dt := range cfg.Evaluation.WeightOverrides {
				types = append(types, dt)
			}
			row("weight_overrides", strings.Join(types, ", "))
		}

		section("Stores")
		row("case_db", cfg.Store.DatabasePath)
		row("case_embedding", cfg.Store.Embedding.Provider)
		row("team_db", cfg.Registry.DatabasePath)
		row("htn_library", orDefault(cfg.HTN.LibraryPath, "(embedded)"))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the config path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists, remove it first", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", configPath)
		return nil
	},
}

func cmpSymbol(kind string) string {
	if kind == "max_response_time" {
		return "<="
	}
	return ">="
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
