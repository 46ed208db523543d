// Package cli implements the context-memory CLI commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rcliao/context-memory/internal/config"
	"github.com/rcliao/context-memory/internal/memory"
)

var (
	configPath     string
	dbPath         string
	passphraseFlag string
	verbose        bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "context-memory",
	Short: "Private, persistent memory for AI assistants",
	Long: "A local memory store for AI assistants. Memories are filtered for secrets and PII, " +
		"optionally encrypted at rest, and searchable by keyword, tag, type and age.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONTEXT_MEMORY_CONFIG or ~/.context-memory/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $CONTEXT_MEMORY_DB or ~/.context-memory/memory.db)")
	RootCmd.PersistentFlags().StringVar(&passphraseFlag, "passphrase", "", "Encryption passphrase (default: $CONTEXT_MEMORY_PASSPHRASE)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
}

func loadConfig() *config.Config {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if passphraseFlag != "" {
		cfg.Encryption.Passphrase = passphraseFlag
	}
	return cfg
}

func newLogger(level string) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			exitErr("init logger", err)
		}
		return logger
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		exitErr("init logger", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zc.Build()
	if err != nil {
		exitErr("init logger", err)
	}
	return logger
}

// closeOpen releases whatever openManager opened. exitErr runs it too, since
// os.Exit skips deferred calls.
var closeOpen func()

// openManager loads the configuration, applies flag overrides and opens the
// memory engine. The returned func closes both the engine and the logger and
// is safe to call more than once.
func openManager() (*memory.Manager, *config.Config, func()) {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	m, err := memory.Open(cfg.Memory(), logger)
	if err != nil {
		_ = logger.Sync()
		exitErr("open store", err)
	}
	closeOpen = func() {
		m.Close()
		_ = logger.Sync()
	}
	return m, cfg, closeManager
}

func closeManager() {
	if closeOpen == nil {
		return
	}
	fn := closeOpen
	closeOpen = nil
	fn()
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// readContent returns the positional args joined, or stdin when it is piped.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func exitErr(msg string, err error) {
	closeManager()
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
