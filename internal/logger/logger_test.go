// ABOUTME: Tests for logger construction
// ABOUTME: Checks level parsing, console output and file rotation setup
package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/hound/internal/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{LogConfig: config.LogConfig{Level: "loud"}})
	assert.Error(t, err)
}

func TestConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{LogConfig: config.LogConfig{Level: "warn"}, Console: &buf})
	require.NoError(t, err)

	log.Info("quiet")
	log.Warn("loud")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hound.log")
	log, err := New(Options{LogConfig: config.LogConfig{Level: "debug", File: path, MaxSize: 1}})
	require.NoError(t, err)

	log.Debug("written to file")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written to file"`)
}

func TestNoSinksIsNop(t *testing.T) {
	log, err := New(Options{})
	require.NoError(t, err)
	log.Error("dropped")
}
