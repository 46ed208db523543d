package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/memory"
	"github.com/rcliao/context-memory/internal/model"
	"github.com/rcliao/context-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Search memories",
		Long:  "Search memories by keyword, type, tags, age and access count. Keywords match any term, case-insensitively.",
		Run:   runSearch,
	}

	cmd.Flags().String("type", "", "Filter by memory type")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated)")
	cmd.Flags().Bool("all-tags", false, "Require every tag instead of any")
	cmd.Flags().Int("days", 0, "Only memories created in the last N days")
	cmd.Flags().Int("min-access", 0, "Only memories accessed at least N times")
	cmd.Flags().String("order", "recent", "Order: recent, relevance, access")
	cmd.Flags().IntP("limit", "l", store.DefaultLimit, "Max results")
	cmd.Flags().Int("offset", 0, "Results to skip")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	tagsStr, _ := cmd.Flags().GetString("tags")
	allTags, _ := cmd.Flags().GetBool("all-tags")
	days, _ := cmd.Flags().GetInt("days")
	minAccess, _ := cmd.Flags().GetInt("min-access")
	order, _ := cmd.Flags().GetString("order")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	m, _, done := openManager()
	defer done()

	res, err := m.Search(cmd.Context(), memory.SearchParams{
		Query:          strings.Join(args, " "),
		MemoryType:     memType,
		Tags:           splitTags(tagsStr),
		MatchAllTags:   allTags,
		DaysBack:       days,
		MinAccessCount: minAccess,
		Order:          order,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		exitErr("search", err)
	}

	printResult(res)
}

func printResult(res *store.SearchResult) {
	if res.Memories == nil {
		res.Memories = []model.Memory{}
	}
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
