package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Backend kinds
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const (
	defaultAddr            = ":8080"
	defaultCookieName      = "portal_session"
	defaultSessionTTL      = 7 * 24 * time.Hour
	defaultMutationWait    = 2 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 30 * time.Second
)

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BaseURL         string        `yaml:"baseURL" validate:"omitempty,url"`
	MutationWait    time.Duration `yaml:"mutationWait" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"min=0"`
	AllowedOrigins  []string      `yaml:"allowedOrigins,omitempty" validate:"dive,required"`
	// SecureCookies marks session and CSRF cookies as HTTPS-only
	SecureCookies bool `yaml:"secureCookies"`
}

// SessionConfig configures browser sessions
type SessionConfig struct {
	CookieName string        `yaml:"cookieName"`
	Secret     string        `yaml:"secret" validate:"required,min=32"`
	CSRFKey    string        `yaml:"csrfKey" validate:"required,len=32"`
	TTL        time.Duration `yaml:"ttl" validate:"min=0"`
	RedisURL   string        `yaml:"redisURL,omitempty" validate:"omitempty,url"`
}

// BackendConfig selects and configures the remote data backend
type BackendConfig struct {
	Kind           string        `yaml:"kind" validate:"required,oneof=supabase postgres memory"`
	SupabaseURL    string        `yaml:"supabaseURL,omitempty" validate:"required_if=Kind supabase"`
	AnonKey        string        `yaml:"anonKey,omitempty" validate:"required_if=Kind supabase"`
	ServiceKey     string        `yaml:"serviceKey,omitempty"`
	PostgresDSN    string        `yaml:"postgresDSN,omitempty" validate:"required_if=Kind postgres"`
	TokenSecret    string        `yaml:"tokenSecret,omitempty" validate:"omitempty,min=32"`
	RequestTimeout time.Duration `yaml:"requestTimeout" validate:"min=0"`
}

// MailConfig configures the optional Gmail notifications
type MailConfig struct {
	Enabled     bool   `yaml:"enabled"`
	GmailUserID string `yaml:"gmailUserID,omitempty" validate:"required_if=Enabled true"`
	Sender      string `yaml:"sender,omitempty"`
}

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Backend BackendConfig `yaml:"backend"`
	Mail    MailConfig    `yaml:"mail"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration for an environment.
// For example, env="prod" will look for "portal_config.prod.yaml" in the
// current directory first, then in the user's home directory
func Load(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv lets secrets live outside the config file
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	overrides := []struct {
		name   string
		target *string
	}{
		{"PORTAL_SESSION_SECRET", &cfg.Session.Secret},
		{"PORTAL_CSRF_KEY", &cfg.Session.CSRFKey},
		{"REDIS_URL", &cfg.Session.RedisURL},
		{"SUPABASE_URL", &cfg.Backend.SupabaseURL},
		{"SUPABASE_ANON_KEY", &cfg.Backend.AnonKey},
		{"SUPABASE_SERVICE_KEY", &cfg.Backend.ServiceKey},
		{"DATABASE_URL", &cfg.Backend.PostgresDSN},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.name); ok && v != "" {
			*o.target = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.MutationWait == 0 {
		cfg.Server.MutationWait = defaultMutationWait
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = defaultCookieName
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = defaultSessionTTL
	}
	if cfg.Backend.RequestTimeout == 0 {
		cfg.Backend.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Mail.Sender == "" {
		cfg.Mail.Sender = cfg.Mail.GmailUserID
	}
}

// Validate validates the configuration struct
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// TokenSecret returns the key used to sign self-hosted access tokens,
// falling back to the session secret
func (c *Config) TokenSecret() []byte {
	if c.Backend.TokenSecret != "" {
		return []byte(c.Backend.TokenSecret)
	}
	return []byte(c.Session.Secret)
}

func findConfigFile(env string) (string, error) {
	return searchFile(envFileName("portal_config", env, "yaml"))
}

// envFileName gives "<base>.<env>.<ext>", or "<base>.<ext>" without an env
func envFileName(base, env, ext string) string {
	if env == "" {
		return base + "." + ext
	}
	return base + "." + env + "." + ext
}

// searchFile looks for name in the working directory, then the home directory
func searchFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
