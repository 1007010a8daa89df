package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_JSONRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var got Duration
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, d, got)
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
}

func TestServerConfig_Validate(t *testing.T) {
	cfg := &ServerConfig{Name: "bare"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ConnectionLocal, cfg.Connection)
	assert.Equal(t, QueueBasic, cfg.Queue)

	ssh := &ServerConfig{Name: "cluster", Connection: ConnectionSSH, Host: "cluster.example.org"}
	require.NoError(t, ssh.Validate())
	assert.Equal(t, 22, ssh.Port)

	bad := &ServerConfig{Name: "odd", Connection: "telepathy"}
	assert.Error(t, bad.Validate())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := &ServerConfig{Host: "cluster.example.org", Port: 2222}
	assert.Equal(t, "cluster.example.org:2222", cfg.Address())

	cfg.Port = 0
	assert.Equal(t, "cluster.example.org", cfg.Address())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, "local", cfg.Name)
	assert.True(t, cfg.IsLocal())
	assert.False(t, cfg.Created.IsZero())
}

func TestConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.ServersDir = "/opt/execd/servers"
	cfg.WatchServersDir = true
	require.NoError(t, SaveConfig(cfg, path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/execd/servers", got.ServersDir)
	assert.True(t, got.WatchServersDir)
	require.NotNil(t, got.Logging)
	assert.Equal(t, "info", got.Logging.Level)
}

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.ConnectTimeout.Duration(), time.Duration(0))
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "main.log", cfg.Logging.Filename)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
