package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	casesSeedFile   string
	casesSearchType string
	casesSearchTopK int
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage the historical case store",
}

var casesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load historical cases from a YAML seed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCaseStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.SeedFromFile(cmd.Context(), casesSeedFile)
		if err != nil {
			return err
		}
		logger.Info("cases seeded", zap.Int("count", n), zap.String("file", casesSeedFile))
		fmt.Printf("Seeded %d cases into %s\n", n, cfg.Store.DatabasePath)
		return nil
	},
}

var casesSearchCmd = &cobra.Command{
	Use:   "search [query text]",
	Short: "Search the case store for similar historical incidents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCaseStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		query := args[0]
		results, err := store.SearchSimilarCases(cmd.Context(), query, casesSearchType, casesSearchTopK)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No similar cases found.")
			return nil
		}
		for _, c := range results {
			fmt.Printf("%-24s %-12s %.2f  %s\n", c.CaseID, c.DisasterType, c.SimilarityScore, c.Summary)
			for _, l := range c.Lessons {
				fmt.Printf("  lesson: %s\n", l)
			}
		}
		return nil
	},
}

func init() {
	casesSeedCmd.Flags().StringVarP(&casesSeedFile, "file", "f", "configs/seed_cases.yaml", "case seed YAML file")

	casesSearchCmd.Flags().StringVar(&casesSearchType, "type", "", "disaster type hint (narrows the scan)")
	casesSearchCmd.Flags().IntVar(&casesSearchTopK, "top-k", 5, "maximum results")

	casesCmd.AddCommand(casesSeedCmd)
	casesCmd.AddCommand(casesSearchCmd)
}
