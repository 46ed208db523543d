package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/context-memory/internal/config"
)

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"work", "go"}, splitTags(" work, ,go,"))
	assert.Nil(t, splitTags(""))
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"store", "get", "update", "rm", "search", "recent", "frequent",
		"recall", "tags", "clear", "purge", "sweep", "stats", "privacy", "export", "import"} {
		cmd, _, err := RootCmd.Find([]string{name})
		if assert.NoError(t, err, name) {
			assert.Equal(t, name, cmd.Name())
		}
	}
}

func TestCloseManagerReleasesStore(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDBPath, "")
	t.Setenv(config.EnvPassphrase, "")
	dbPath = filepath.Join(t.TempDir(), "cli.db")
	t.Cleanup(func() { dbPath = "" })

	m, cfg, done := openManager()
	assert.Equal(t, dbPath, cfg.DBPath)
	_, err := m.Stats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, closeOpen)

	done()
	assert.Nil(t, closeOpen)
	_, err = m.Stats(context.Background())
	assert.Error(t, err, "store should be closed")

	assert.NotPanics(t, done)
	assert.NotPanics(t, closeManager)
}
