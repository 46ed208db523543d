package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runStore,
	}

	cmd.Flags().String("type", "note", "Memory type: fact, preference, conversation, note")
	cmd.Flags().String("context", "", "Optional context for the memory")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	contextText, _ := cmd.Flags().GetString("context")
	tagsStr, _ := cmd.Flags().GetString("tags")

	m, _, done := openManager()
	defer done()

	mem, err := m.Store(cmd.Context(), memory.StoreParams{
		Content:    readContent(args),
		MemoryType: memType,
		Context:    contextText,
		Tags:       splitTags(tagsStr),
	})
	if err != nil {
		exitErr("store", err)
	}

	b, _ := json.Marshal(mem)
	fmt.Println(string(b))
}
