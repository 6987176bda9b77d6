package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/relay"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "AgentAPI", cfg.App.Name)
	assert.Equal(t, "/sw.js", cfg.App.ScriptURL)
	assert.Equal(t, "/", cfg.App.Scope)
	assert.Equal(t, "/processes/%s", cfg.App.ProcessPath)
	assert.Equal(t, "@every 5m", cfg.Sync.PollSchedule)
	assert.Equal(t, entities.DefaultNotificationDefaults(), cfg.NotificationDefaults())
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Files(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: `backend:
  base_url: https://api.example.com/
  token_file: /tmp/session
vapid:
  public_key: pub
  subject: mailto:ops@example.com
app:
  name: Agents
  origin: https://app.example.com
sync:
  poll_schedule: "@every 1m"
`,
		},
		{
			name: "json",
			file: "config.json",
			content: `{
  "backend": {"base_url": "https://api.example.com/", "token_file": "/tmp/session"},
  "vapid": {"public_key": "pub", "subject": "mailto:ops@example.com"},
  "app": {"name": "Agents", "origin": "https://app.example.com"},
  "sync": {"poll_schedule": "@every 1m"}
}`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `[backend]
base_url = "https://api.example.com/"
token_file = "/tmp/session"

[vapid]
public_key = "pub"
subject = "mailto:ops@example.com"

[app]
name = "Agents"
origin = "https://app.example.com"

[sync]
poll_schedule = "@every 1m"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			cfg, err := LoadConfig(path)
			require.NoError(t, err)

			assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL, "trailing slash trimmed")
			assert.Equal(t, "/tmp/session", cfg.Backend.TokenFile)
			assert.Equal(t, "pub", cfg.VAPID.PublicKey)
			assert.Equal(t, "mailto:ops@example.com", cfg.VAPID.Subject)
			assert.Equal(t, "Agents", cfg.App.Name)
			assert.Equal(t, "https://app.example.com", cfg.App.Origin)
			assert.Equal(t, "@every 1m", cfg.Sync.PollSchedule)
			// unspecified values keep their defaults
			assert.Equal(t, "/icon-192x192.png", cfg.App.Icon)
			assert.Equal(t, "/processes/%s", cfg.App.ProcessPath)
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  base_url: https://file.example.com\n"), 0644))

	t.Setenv("AGENTAPI_PUSH_BACKEND_BASE_URL", "https://env.example.com")
	t.Setenv("AGENTAPI_PUSH_VAPID_PUBLIC_KEY", "env-key")
	t.Setenv("AGENTAPI_PUSH_APP_PROCESS_PATH", "/agents/%s/detail")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "env-key", cfg.VAPID.PublicKey)
	assert.Equal(t, "/agents/%s/detail", cfg.WorkerOptions().ProcessPath)
	assert.Equal(t, "env-key", cfg.ManagerOptions().ApplicationServerKey)
}

func TestLoad_BoundValuesWin(t *testing.T) {
	v := viper.New()
	v.Set("backend.base_url", "https://flag.example.com")

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com", cfg.Backend.BaseURL)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("app: [unterminated"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no backend", mutate: func(c *Config) { c.Backend.BaseURL = "" }},
		{name: "backend without scheme", mutate: func(c *Config) { c.Backend.BaseURL = "localhost:8080" }, wantErr: true},
		{name: "origin ftp", mutate: func(c *Config) { c.App.Origin = "ftp://app.example.com" }, wantErr: true},
		{name: "origin without host", mutate: func(c *Config) { c.App.Origin = "https://" }, wantErr: true},
		{name: "process path without placeholder", mutate: func(c *Config) { c.App.ProcessPath = "/processes" }, wantErr: true},
		{name: "process path with two placeholders", mutate: func(c *Config) { c.App.ProcessPath = "/%s/%s" }, wantErr: true},
		{name: "relative scope", mutate: func(c *Config) { c.App.Scope = "app" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_TokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session")
	require.NoError(t, os.WriteFile(path, []byte("file-token\n"), 0600))

	cfg := DefaultConfig()
	cfg.Backend.TokenFile = path
	token, err := cfg.TokenSource().Token()
	require.NoError(t, err)
	assert.Equal(t, "file-token", token)

	cfg.Backend.Token = "static-token"
	token, err = cfg.TokenSource().Token()
	require.NoError(t, err)
	assert.Equal(t, "static-token", token)

	_, err = DefaultConfig().TokenSource().Token()
	assert.True(t, errors.Is(err, relay.ErrNoToken))
}

func TestConfig_SenderConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.SenderConfig().Validate())

	cfg.VAPID = VAPIDConfig{PublicKey: "pub", PrivateKey: "priv", Subject: "mailto:ops@example.com"}
	assert.NoError(t, cfg.SenderConfig().Validate())
}
