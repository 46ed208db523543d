package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/store"
)

func init() {
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List recently created memories",
		Run:   runRecent,
	}
	recent.Flags().Int("days", 0, "Look back N days (default 7)")
	recent.Flags().String("type", "", "Filter by memory type")
	recent.Flags().IntP("limit", "l", store.DefaultLimit, "Max results")

	frequent := &cobra.Command{
		Use:   "frequent",
		Short: "List frequently accessed memories",
		Run:   runFrequent,
	}
	frequent.Flags().Int("min-access", 0, "Minimum access count (default 2)")
	frequent.Flags().String("type", "", "Filter by memory type")
	frequent.Flags().IntP("limit", "l", store.DefaultLimit, "Max results")

	RootCmd.AddCommand(recent, frequent)
}

func runRecent(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	memType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	m, _, done := openManager()
	defer done()

	res, err := m.Recent(cmd.Context(), days, memType, limit)
	if err != nil {
		exitErr("recent", err)
	}
	printResult(res)
}

func runFrequent(cmd *cobra.Command, args []string) {
	minAccess, _ := cmd.Flags().GetInt("min-access")
	memType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	m, _, done := openManager()
	defer done()

	res, err := m.Frequent(cmd.Context(), minAccess, memType, limit)
	if err != nil {
		exitErr("frequent", err)
	}
	printResult(res)
}
