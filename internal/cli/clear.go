package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all memories, or all of one type",
		Run:   runClear,
	}

	cmd.Flags().String("type", "", "Only clear this memory type")
	cmd.Flags().Bool("yes", false, "Confirm the deletion")

	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	yes, _ := cmd.Flags().GetBool("yes")

	m, _, done := openManager()
	defer done()

	n, err := m.Clear(cmd.Context(), memType, yes)
	if errors.Is(err, model.ErrConfirmationRequired) {
		exitErr("clear", fmt.Errorf("%w (pass --yes)", err))
	}
	if err != nil {
		exitErr("clear", err)
	}

	fmt.Printf(`{"ok":true,"deleted":%d}`+"\n", n)
}
