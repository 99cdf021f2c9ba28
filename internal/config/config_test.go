package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "wss://eventsub.wss.twitch.tv/ws", cfg.EventSub.URL)
	assert.Equal(t, 30*time.Second, cfg.EventSub.ResetDelay)
	assert.Equal(t, "https://api.twitch.tv/helix", cfg.Helix.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Helix.Timeout)
	assert.Equal(t, 5, cfg.Helix.RequestsPerSec)
	assert.Equal(t, 5*time.Second, cfg.Overlay.SnapshotInterval)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
  host: 127.0.0.1
  allowed_origins:
    - https://overlay.example.com
  auth_token: s3cret
eventsub:
  broadcaster_user_id: "1337"
  reset_delay: 45s
helix:
  client_id: client-1
  requests_per_sec: 2
overlay:
  snapshot_interval: 1s
  static_dir: ./static
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"https://overlay.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Server.AuthToken)
	assert.Equal(t, "1337", cfg.EventSub.BroadcasterUserID)
	assert.Equal(t, 45*time.Second, cfg.EventSub.ResetDelay)
	assert.Equal(t, "client-1", cfg.Helix.ClientID)
	assert.Equal(t, 2, cfg.Helix.RequestsPerSec)
	assert.Equal(t, time.Second, cfg.Overlay.SnapshotInterval)
	assert.Equal(t, "./static", cfg.Overlay.StaticDir)

	// Untouched sections keep their defaults.
	assert.Equal(t, "wss://eventsub.wss.twitch.tv/ws", cfg.EventSub.URL)
	assert.Equal(t, 30*time.Second, cfg.Helix.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a mapping"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broadcaster_user_id")

	cfg.EventSub.BroadcasterUserID = "1337"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")

	cfg.Helix.ClientID = "client-1"
	assert.NoError(t, cfg.Validate())
}
