package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	testCSRFKey = "fedcba9876543210fedcba9876543210"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", MutationWait: time.Second},
		Session: SessionConfig{
			CookieName: "portal_session",
			Secret:     testSecret,
			CSRFKey:    testCSRFKey,
			TTL:        time.Hour,
		},
		Backend: BackendConfig{
			Kind:        BackendSupabase,
			SupabaseURL: "https://project.supabase.co",
			AnonKey:     "anon",
		},
	}
}

// clearEnv stops overrides in the caller's environment leaking into tests
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORTAL_SESSION_SECRET", "PORTAL_CSRF_KEY", "REDIS_URL",
		"SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_SERVICE_KEY", "DATABASE_URL",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portal_config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
	}{
		{"short session secret", func(cfg *Config) { cfg.Session.Secret = "short" }},
		{"csrf key wrong length", func(cfg *Config) { cfg.Session.CSRFKey = testSecret + "x" }},
		{"unknown backend", func(cfg *Config) { cfg.Backend.Kind = "firebase" }},
		{"supabase without url", func(cfg *Config) { cfg.Backend.SupabaseURL = "" }},
		{"supabase without anon key", func(cfg *Config) { cfg.Backend.AnonKey = "" }},
		{"postgres without dsn", func(cfg *Config) { cfg.Backend.Kind = BackendPostgres }},
		{"mail without user", func(cfg *Config) { cfg.Mail.Enabled = true }},
		{"bad redis url", func(cfg *Config) { cfg.Session.RedisURL = "not a url" }},
		{"negative wait", func(cfg *Config) { cfg.Server.MutationWait = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			assert.ErrorContains(t, err, "config validation failed")
		})
	}
}

func TestValidate_MemoryBackendNeedsNoCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Backend = BackendConfig{Kind: BackendMemory}

	assert.NoError(t, Validate(cfg))
}

func TestLoadFromPath_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9000"
  baseURL: "https://volunteer.example.org"
  mutationWait: 3s
  allowedOrigins:
    - "https://app.example.org"
session:
  secret: "`+testSecret+`"
  csrfKey: "`+testCSRFKey+`"
  ttl: 12h
  redisURL: "redis://localhost:6379/0"
backend:
  kind: postgres
  postgresDSN: "postgres://portal@localhost/portal"
mail:
  enabled: true
  gmailUserID: "portal@example.org"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.MutationWait)
	assert.Equal(t, []string{"https://app.example.org"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Session.RedisURL)
	assert.Equal(t, BackendPostgres, cfg.Backend.Kind)
	assert.Equal(t, "portal@example.org", cfg.Mail.Sender, "sender defaults to the gmail user")
}

func TestLoadFromPath_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
session:
  secret: "`+testSecret+`"
  csrfKey: "`+testCSRFKey+`"
backend:
  kind: memory
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Server.Addr)
	assert.Equal(t, defaultMutationWait, cfg.Server.MutationWait)
	assert.Equal(t, defaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, defaultCookieName, cfg.Session.CookieName)
	assert.Equal(t, defaultSessionTTL, cfg.Session.TTL)
	assert.Equal(t, defaultRequestTimeout, cfg.Backend.RequestTimeout)
	assert.Equal(t, []byte(testSecret), cfg.TokenSecret())
}

func TestLoadFromPath_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORTAL_SESSION_SECRET", testCSRFKey+"-from-env")
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "env-anon")

	path := writeConfig(t, `
session:
  secret: "`+testSecret+`"
  csrfKey: "`+testCSRFKey+`"
backend:
  kind: supabase
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, testCSRFKey+"-from-env", cfg.Session.Secret)
	assert.Equal(t, "https://env.supabase.co", cfg.Backend.SupabaseURL)
	assert.Equal(t, "env-anon", cfg.Backend.AnonKey)
}

func TestLoadFromPath_MissingRequiredField(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
backend:
  kind: memory
`)

	_, err := LoadFromPath(path)
	assert.ErrorContains(t, err, "validation failed")
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [")

	_, err := LoadFromPath(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadFromPath_FileNotFound(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/path/config.yaml")
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestTokenSecret_PrefersBackendSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.TokenSecret = testCSRFKey

	assert.Equal(t, []byte(testCSRFKey), cfg.TokenSecret())
}
