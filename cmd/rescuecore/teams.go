package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rescuecore/internal/registry"
)

var (
	teamsSeedFile string
	teamsListLat  float64
	teamsListLng  float64
	teamsListKM   float64
	teamsListMax  int
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Manage the rescue-team registry",
}

var teamsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load teams from a YAML seed file into the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Open(cfg.Registry.DatabasePath, cfg.GetTeamTimeout())
		if err != nil {
			return err
		}
		defer reg.Close()

		n, err := reg.SeedFromFile(cmd.Context(), teamsSeedFile)
		if err != nil {
			return err
		}
		logger.Info("teams seeded", zap.Int("count", n), zap.String("file", teamsSeedFile))
		fmt.Printf("Seeded %d teams into %s\n", n, cfg.Registry.DatabasePath)
		return nil
	},
}

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List standby teams within a radius of a point",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Open(cfg.Registry.DatabasePath, cfg.GetTeamTimeout())
		if err != nil {
			return err
		}
		defer reg.Close()

		teams, err := reg.QueryTeams(cmd.Context(), teamsListLat, teamsListLng, teamsListKM, teamsListMax)
		if err != nil {
			return err
		}
		if len(teams) == 0 {
			fmt.Println("No standby teams in range.")
			return nil
		}

		header := lipgloss.NewStyle().Bold(true)
		fmt.Println(header.Render(fmt.Sprintf("%-12s %-28s %-16s %8s %5s %5s  %s",
			"ID", "NAME", "TYPE", "DIST_KM", "LVL", "PERS", "CAPABILITIES")))
		for _, t := range teams {
			fmt.Printf("%-12s %-28s %-16s %8.1f %5d %5d  %s\n",
				t.ID, t.Name, t.TeamType, t.DistanceM/1000,
				t.CapabilityLevel, t.AvailablePersonnel,
				strings.Join(t.Capabilities, ","))
		}
		return nil
	},
}

func init() {
	teamsSeedCmd.Flags().StringVarP(&teamsSeedFile, "file", "f", "configs/seed_teams.yaml", "team seed YAML file")

	teamsListCmd.Flags().Float64Var(&teamsListLat, "lat", 31.68, "query latitude")
	teamsListCmd.Flags().Float64Var(&teamsListLng, "lng", 103.85, "query longitude")
	teamsListCmd.Flags().Float64Var(&teamsListKM, "radius", 300, "search radius in km")
	teamsListCmd.Flags().IntVar(&teamsListMax, "max", 50, "maximum rows")

	teamsCmd.AddCommand(teamsSeedCmd)
	teamsCmd.AddCommand(teamsListCmd)
}
