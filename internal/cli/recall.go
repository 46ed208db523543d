package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Assemble relevant memories within a token budget",
		Long:  "Rank memories by relevance, recency, access and type, then pack them into a token budget for prompt injection.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().String("type", "", "Filter by memory type")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated)")
	cmd.Flags().IntP("budget", "b", memory.DefaultRecallBudget, "Token budget")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	tagsStr, _ := cmd.Flags().GetString("tags")
	budget, _ := cmd.Flags().GetInt("budget")

	m, _, done := openManager()
	defer done()

	res, err := m.Recall(cmd.Context(), memory.RecallParams{
		Query:      strings.Join(args, " "),
		MemoryType: memType,
		Tags:       splitTags(tagsStr),
		Budget:     budget,
	})
	if err != nil {
		exitErr("recall", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
