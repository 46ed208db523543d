package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a memory",
		Long:  "Change the content, context or tags of a memory. Unset flags leave the field as is; --tags \"\" removes all tags.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("content", "", "New content")
	cmd.Flags().String("context", "", "New context")
	cmd.Flags().StringP("tags", "t", "", "New comma-separated tags")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	var p memory.UpdateParams
	if cmd.Flags().Changed("content") {
		v, _ := cmd.Flags().GetString("content")
		p.Content = &v
	}
	if cmd.Flags().Changed("context") {
		v, _ := cmd.Flags().GetString("context")
		p.Context = &v
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		tags := splitTags(v)
		if tags == nil {
			tags = []string{}
		}
		p.Tags = &tags
	}

	m, _, done := openManager()
	defer done()

	mem, err := m.Update(cmd.Context(), id, p)
	if err != nil {
		exitErr("update", err)
	}

	b, _ := json.Marshal(mem)
	fmt.Println(string(b))
}
