package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathYieldsZeroValueConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Exchanges)
	assert.False(t, cfg.Sinks.Archive.Enabled)
}

func TestLoadParsesExchangeOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
exchanges:
  gdax:
    websocket_url: wss://example.test/feed
    rest_url: https://example.test
sinks:
  archive:
    enabled: true
    path: /tmp/archive.bin
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Exchanges, "gdax")
	assert.Equal(t, "wss://example.test/feed", cfg.Exchanges["gdax"].WebsocketURL)
	assert.True(t, cfg.Sinks.Archive.Enabled)
	assert.Equal(t, "/tmp/archive.bin", cfg.Sinks.Archive.Path)
}

func TestLoadRejectsSQLSinkWithoutDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "sinks:\n  sql:\n    enabled: true\n    dsn: postgres://x\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
