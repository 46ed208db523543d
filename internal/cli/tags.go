package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List tags with memory counts",
		Run:   runTags,
	}

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the tag index from the stored records",
		Run:   runTagsRebuild,
	}

	cmd.AddCommand(rebuild)
	RootCmd.AddCommand(cmd)
}

func runTags(cmd *cobra.Command, args []string) {
	m, _, done := openManager()
	defer done()

	tags, err := m.Tags(cmd.Context())
	if err != nil {
		exitErr("tags", err)
	}

	if len(tags) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(tags, "", "  ")
	fmt.Println(string(b))
}

func runTagsRebuild(cmd *cobra.Command, args []string) {
	m, _, done := openManager()
	defer done()

	n, err := m.RebuildTagIndex(cmd.Context())
	if err != nil {
		exitErr("rebuild tags", err)
	}

	fmt.Printf(`{"ok":true,"memories":%d}`+"\n", n)
}
