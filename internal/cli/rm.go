package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	m, _, done := openManager()
	defer done()

	deleted, err := m.Delete(cmd.Context(), id)
	if err != nil {
		exitErr("rm", err)
	}

	fmt.Printf(`{"ok":true,"id":%d,"deleted":%t}`+"\n", id, deleted)
}
