package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete memories older than a retention period",
		Long:  "Delete memories created more than --days ago. Without --days the configured retention period applies.",
		Run:   runPurge,
	}
	purge.Flags().Int("days", 0, "Retention period in days")

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run the retention sweeper until interrupted",
		Run:   runSweep,
	}

	RootCmd.AddCommand(purge, sweep)
}

func runPurge(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")

	m, _, done := openManager()
	defer done()

	var (
		n   int
		err error
	)
	if cmd.Flags().Changed("days") {
		n, err = m.PurgeOlderThan(cmd.Context(), days)
	} else {
		n, err = m.PurgeExpired(cmd.Context())
	}
	if err != nil {
		exitErr("purge", err)
	}

	fmt.Printf(`{"ok":true,"deleted":%d}`+"\n", n)
}

func runSweep(cmd *cobra.Command, args []string) {
	m, cfg, done := openManager()
	defer done()

	if cfg.Retention.Days <= 0 {
		exitErr("sweep", fmt.Errorf("retention.days is not set"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sw := m.Sweeper()
	sw.Start(ctx)
	<-ctx.Done()
	sw.Stop()
}
