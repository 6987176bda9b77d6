package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
	"github.com/takutakahashi/agentapi-push/pkg/notification"
	"github.com/takutakahashi/agentapi-push/pkg/relay"
	"github.com/takutakahashi/agentapi-push/pkg/statesync"
	"github.com/takutakahashi/agentapi-push/pkg/worker"
)

// EnvPrefix is prepended to every environment variable, e.g.
// AGENTAPI_PUSH_BACKEND_BASE_URL for backend.base_url
const EnvPrefix = "AGENTAPI_PUSH"

// BackendConfig represents the relay backend connection
type BackendConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	// Token is a fixed bearer token. It takes precedence over TokenFile.
	Token string `json:"token,omitempty" yaml:"token,omitempty" mapstructure:"token"`
	// TokenFile is the session file the bearer token is read from
	TokenFile string `json:"token_file,omitempty" yaml:"token_file,omitempty" mapstructure:"token_file"`
}

// VAPIDConfig represents the application server credentials
type VAPIDConfig struct {
	PublicKey  string `json:"public_key" yaml:"public_key" mapstructure:"public_key"`
	PrivateKey string `json:"private_key,omitempty" yaml:"private_key,omitempty" mapstructure:"private_key"`
	Subject    string `json:"subject" yaml:"subject" mapstructure:"subject"`
}

// AppConfig represents the application the notifications belong to
type AppConfig struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Origin      string `json:"origin" yaml:"origin" mapstructure:"origin"`
	Icon        string `json:"icon" yaml:"icon" mapstructure:"icon"`
	Badge       string `json:"badge" yaml:"badge" mapstructure:"badge"`
	Tag         string `json:"tag" yaml:"tag" mapstructure:"tag"`
	ScriptURL   string `json:"script_url" yaml:"script_url" mapstructure:"script_url"`
	Scope       string `json:"scope" yaml:"scope" mapstructure:"scope"`
	ProcessPath string `json:"process_path" yaml:"process_path" mapstructure:"process_path"`
}

// SyncConfig represents backend status polling
type SyncConfig struct {
	PollSchedule string `json:"poll_schedule" yaml:"poll_schedule" mapstructure:"poll_schedule"`
}

// Config represents the push client configuration
type Config struct {
	Backend BackendConfig `json:"backend" yaml:"backend" mapstructure:"backend"`
	VAPID   VAPIDConfig   `json:"vapid" yaml:"vapid" mapstructure:"vapid"`
	App     AppConfig     `json:"app" yaml:"app" mapstructure:"app"`
	Sync    SyncConfig    `json:"sync" yaml:"sync" mapstructure:"sync"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	defaults := entities.DefaultNotificationDefaults()
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8080",
		},
		App: AppConfig{
			Name:        defaults.Title,
			Origin:      "http://localhost:3000",
			Icon:        defaults.Icon,
			Badge:       defaults.Badge,
			Tag:         defaults.Tag,
			ScriptURL:   notification.DefaultScriptURL,
			Scope:       notification.DefaultScope,
			ProcessPath: worker.DefaultProcessPath,
		},
		Sync: SyncConfig{
			PollSchedule: statesync.DefaultPollSchedule,
		},
	}
}

// LoadConfig loads configuration from defaults, the optional file at path
// (format chosen by extension) and AGENTAPI_PUSH_* environment variables,
// in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	return Load(viper.New(), path)
}

// Load is LoadConfig on a caller-supplied viper instance, so command flags
// bound with BindPFlag take part.
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.token", d.Backend.Token)
	v.SetDefault("backend.token_file", d.Backend.TokenFile)
	v.SetDefault("vapid.public_key", d.VAPID.PublicKey)
	v.SetDefault("vapid.private_key", d.VAPID.PrivateKey)
	v.SetDefault("vapid.subject", d.VAPID.Subject)
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.origin", d.App.Origin)
	v.SetDefault("app.icon", d.App.Icon)
	v.SetDefault("app.badge", d.App.Badge)
	v.SetDefault("app.tag", d.App.Tag)
	v.SetDefault("app.script_url", d.App.ScriptURL)
	v.SetDefault("app.scope", d.App.Scope)
	v.SetDefault("app.process_path", d.App.ProcessPath)
	v.SetDefault("sync.poll_schedule", d.Sync.PollSchedule)
}

// Validate checks URLs and the process path template
func (c *Config) Validate() error {
	if c.Backend.BaseURL != "" {
		if err := validateHTTPURL(c.Backend.BaseURL); err != nil {
			return fmt.Errorf("backend.base_url: %w", err)
		}
	}
	if err := validateHTTPURL(c.App.Origin); err != nil {
		return fmt.Errorf("app.origin: %w", err)
	}
	if strings.Count(c.App.ProcessPath, "%s") != 1 {
		return errors.New("app.process_path must contain exactly one %s")
	}
	if !strings.HasPrefix(c.App.Scope, "/") {
		return errors.New("app.scope must be an absolute path")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// TokenSource returns the static token if set, else the token file
func (c *Config) TokenSource() relay.TokenSource {
	return relay.ChainToken{relay.StaticToken(c.Backend.Token), relay.FileToken(c.Backend.TokenFile)}
}

// NotificationDefaults returns the fallbacks applied to push payloads
func (c *Config) NotificationDefaults() entities.NotificationDefaults {
	return entities.NotificationDefaults{
		Title: c.App.Name,
		Icon:  c.App.Icon,
		Badge: c.App.Badge,
		Tag:   c.App.Tag,
	}
}

// WorkerOptions returns the background handler options
func (c *Config) WorkerOptions() worker.Options {
	return worker.Options{
		AppOrigin:   c.App.Origin,
		Defaults:    c.NotificationDefaults(),
		ProcessPath: c.App.ProcessPath,
	}
}

// ManagerOptions returns the subscription manager options
func (c *Config) ManagerOptions() notification.Options {
	return notification.Options{
		ScriptURL:            c.App.ScriptURL,
		Scope:                c.App.Scope,
		ApplicationServerKey: c.VAPID.PublicKey,
	}
}

// SenderConfig returns the VAPID credentials for sending test pushes
func (c *Config) SenderConfig() notification.VAPIDConfig {
	return notification.VAPIDConfig{
		PublicKey:  c.VAPID.PublicKey,
		PrivateKey: c.VAPID.PrivateKey,
		Subject:    c.VAPID.Subject,
	}
}
