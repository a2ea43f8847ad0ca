package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTailer_LastLines(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 1; i <= 120; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "service.log"), []byte(b.String()), 0o644))

	tailer, err := NewLogTailer(dir, "service.log", 50)
	require.NoError(t, err)

	text, path, err := tailer.Tail("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "service.log"), path)
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	require.Len(t, lines, 50)
	assert.Equal(t, "line 71", lines[0])
	assert.Equal(t, "line 120", lines[49])
}

func TestLogTailer_ShortFileAndEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.log"), []byte("a\nb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.log"), nil, 0o644))

	tailer, err := NewLogTailer(dir, "short.log", 50)
	require.NoError(t, err)

	text, _, err := tailer.Tail(filepath.Join(dir, "short.log"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", text)

	text, _, err = tailer.Tail("empty.log")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestLogTailer_RejectsOutsideDir(t *testing.T) {
	dir := t.TempDir()
	tailer, err := NewLogTailer(dir, "service.log", 50)
	require.NoError(t, err)

	for _, p := range []string{"../etc/passwd", "/etc/passwd", "sub/../../x.log"} {
		_, _, err := tailer.Tail(p)
		require.Error(t, err, p)
		assert.Equal(t, cwerrors.KindInvalidInput, cwerrors.KindOf(err), p)
	}
}

func TestLogTailer_RejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.log")
	require.NoError(t, os.WriteFile(outside, []byte("secret\n"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link.log")))

	tailer, err := NewLogTailer(dir, "service.log", 50)
	require.NoError(t, err)
	_, _, err = tailer.Tail("link.log")
	assert.Equal(t, cwerrors.KindInvalidInput, cwerrors.KindOf(err))
}

func TestLogTailer_Missing(t *testing.T) {
	tailer, err := NewLogTailer(t.TempDir(), "service.log", 50)
	require.NoError(t, err)
	_, _, err = tailer.Tail("")
	assert.True(t, cwerrors.IsNotFound(err))
}
