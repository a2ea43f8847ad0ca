package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadAppliesLevelChange(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LOG_LEVEL=info\n"), 0o644))

	var got []string
	w, err := NewWatcher(envPath, "INFO", func(level string) { got = append(got, level) })
	require.NoError(t, err)
	defer w.Stop()

	// Unchanged level is ignored.
	w.reload()
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(envPath, []byte("LOG_LEVEL=Debug\n"), 0o644))
	w.reload()
	w.reload()
	assert.Equal(t, []string{"debug"}, got)
}

func TestWatcher_ReloadIgnoresMissingFileAndEmptyLevel(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	called := false
	w, err := NewWatcher(envPath, "info", func(string) { called = true })
	require.NoError(t, err)
	defer w.Stop()

	w.reload()
	require.NoError(t, os.WriteFile(envPath, []byte("OTHER=1\n"), 0o644))
	w.reload()
	assert.False(t, called)
}

func TestWatcher_StartPicksUpWrites(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LOG_LEVEL=info\n"), 0o644))

	levels := make(chan string, 4)
	w, err := NewWatcher(envPath, "info", func(level string) { levels <- level })
	require.NoError(t, err)
	w.debounceWait = 10 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	// Writes to other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.env"), []byte("LOG_LEVEL=error\n"), 0o644))
	require.NoError(t, os.WriteFile(envPath, []byte("LOG_LEVEL=warn\n"), 0o644))

	select {
	case level := <-levels:
		assert.Equal(t, "warn", level)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the level change")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), ".env"), "info", nil)
	require.NoError(t, err)
	w.Stop()
	w.Stop()
}
