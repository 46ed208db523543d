package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-memory/internal/privacy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	privacyCmd := &cobra.Command{
		Use:   "privacy",
		Short: "Show the active privacy settings",
		Run:   runPrivacy,
	}

	RootCmd.AddCommand(cmd, privacyCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	m, _, done := openManager()
	defer done()

	stats, err := m.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	b, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(b))
}

func runPrivacy(cmd *cobra.Command, args []string) {
	m, _, done := openManager()
	defer done()

	out := struct {
		EncryptionEnabled bool `json:"encryption_enabled"`
		privacy.Settings
	}{m.Encrypted(), m.PrivacySettings()}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
