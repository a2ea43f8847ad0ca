package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLoggingState() {
	Shutdown()

	mu.Lock()
	defer mu.Unlock()

	baseWriter = os.Stderr
	baseComponent = ""
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	broadcaster = newBroadcaster(DefaultBufferSize)
}

func TestInitSetsLevelAndComponent(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{
		Format:    "json",
		Level:     "debug",
		Component: "codeweaver",
	})

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	mu.RLock()
	defer mu.RUnlock()
	assert.Equal(t, "codeweaver", baseComponent)
}

func TestInitWritesSharedLogFile(t *testing.T) {
	t.Cleanup(resetLoggingState)

	path := filepath.Join(t.TempDir(), "logs", "service.log")
	Init(Config{Format: "json", Level: "info", FilePath: path})

	log.Info().Msg("Plan waiting for approval")
	Shutdown()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, "[AGENT] INFO")
	assert.Contains(t, line, "Plan waiting for approval")
}

func TestInitFeedsBroadcaster(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{Format: "json", Level: "info"})
	log.Warn().Msg("broadcast-me")

	history := GetBroadcaster().GetHistory()
	require.NotEmpty(t, history)
	assert.Contains(t, history[len(history)-1], "broadcast-me")
}

func TestInitInvalidLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{Format: "json", Level: "chatty"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestForComponentAddsStage(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	mu.Lock()
	baseLogger = zerolog.New(&buf)
	baseComponent = "codeweaver"
	mu.Unlock()

	logger := ForComponent("executor")
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"stage":"executor"`)

	buf.Reset()
	same := ForComponent("codeweaver")
	same.Info().Msg("plain")
	assert.NotContains(t, buf.String(), "stage")
}

func TestWithRequestID(t *testing.T) {
	ctx, id := WithRequestID(context.Background(), "  req-1  ")
	assert.Equal(t, "req-1", id)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	_, generated := WithRequestID(nil, "")
	assert.NotEmpty(t, generated)
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestIsLevelEnabled(t *testing.T) {
	t.Cleanup(resetLoggingState)

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	assert.True(t, IsLevelEnabled(zerolog.ErrorLevel))
	assert.False(t, IsLevelEnabled(zerolog.InfoLevel))
}

func TestSetGlobalLevel(t *testing.T) {
	t.Cleanup(resetLoggingState)

	SetGlobalLevel("error")
	assert.Equal(t, "error", GetGlobalLevel())
	SetGlobalLevel("WARNING")
	assert.True(t, strings.EqualFold(GetGlobalLevel(), "warn"))
}
