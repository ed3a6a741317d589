package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rescuecore/internal/kg"
	"rescuecore/internal/types"
)

var rulesDisasterType string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the trigger-response rule knowledge graph",
}

var rulesQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List the TRR rules stored for a disaster type",
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := kg.New(cfg.GetKGTimeout())
		if err != nil {
			return err
		}
		if err := graph.LoadDefaults(); err != nil {
			return err
		}

		dt := types.DisasterType(rulesDisasterType)
		rules, err := graph.QueryTRRRules(cmd.Context(), dt)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Printf("No rules stored for disaster type %q.\n", rulesDisasterType)
			return nil
		}

		for _, r := range rules {
			fmt.Printf("%s  %s  [%s, weight %.2f, scene %s]\n",
				r.RuleID, r.RuleName, r.Priority, r.Weight, r.SceneCode)
			if len(r.TriggerConditions) > 0 {
				fmt.Printf("  when (%s): %s\n",
					strings.ToUpper(orDefault(r.TriggerLogic, "AND")),
					strings.Join(r.TriggerConditions, "; "))
			}
			for _, t := range r.TriggeredTasks {
				fmt.Printf("  task %d: %s (%s, %s)\n", t.Sequence, t.TaskCode, t.TaskName, t.Priority)
			}
			if len(r.RequiredCapabilities) > 0 {
				codes := make([]string, 0, len(r.RequiredCapabilities))
				for _, c := range r.RequiredCapabilities {
					codes = append(codes, c.CapabilityCode)
				}
				fmt.Printf("  requires: %s\n", strings.Join(codes, ", "))
			}
		}
		fmt.Printf("\n%d rules, %d facts total\n", len(rules), graph.FactCount())
		return nil
	},
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func init() {
	rulesQueryCmd.Flags().StringVarP(&rulesDisasterType, "type", "t", "earthquake", "disaster type")
	rulesCmd.AddCommand(rulesQueryCmd)
}
