package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONToFileAndConsole(t *testing.T) {
	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "mailgraph.log")

	logger, err := NewLogger(Config{
		Level:      INFO,
		OutputFile: logFile,
		JSONFormat: true,
		Stdout:     &console,
	})
	require.NoError(t, err)

	logger.With("component", "test").Info("token refreshed", "attempt", 2)
	logger.Debug("hidden at info level")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"msg":"token refreshed"`)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.NotContains(t, string(data), "hidden at info level")
	assert.Equal(t, console.String(), string(data))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"DEBUG":   DEBUG,
		"warning": WARN,
		"warn":    WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestComponent_WithoutGlobalLogger(t *testing.T) {
	assert.NotNil(t, Component("msgraph"))
	assert.NotNil(t, Discard())
}
