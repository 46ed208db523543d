package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export every memory, decrypted, as a JSON array. Writes to stdout unless -o is given.",
		Run:   runExport,
	}

	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")

	m, _, done := openManager()
	defer done()

	memories, err := m.Export(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}

	b, _ := json.MarshalIndent(memories, "", "  ")
	if output == "" {
		fmt.Println(string(b))
		return
	}
	if err := os.WriteFile(output, append(b, '\n'), 0o600); err != nil {
		exitErr("write export", err)
	}
	fmt.Printf(`{"ok":true,"exported":%d}`+"\n", len(memories))
}
