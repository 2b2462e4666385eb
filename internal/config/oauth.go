package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// GoogleClientFileEnv points at a Google client file outside the search path
const GoogleClientFileEnv = "PORTAL_GOOGLE_CLIENT_FILE"

// OAuthClientConfig is the desktop client the operator registers in the
// Google Cloud console. The portal authorises a single operator account
// with it, once, for sending mail and reading activity sheets.
type OAuthClientConfig struct {
	Installed OAuthInstalled `json:"installed" validate:"required"`
}

// OAuthInstalled holds the desktop client credentials
type OAuthInstalled struct {
	ClientID     string   `json:"client_id" validate:"required"`
	ProjectID    string   `json:"project_id" validate:"required"`
	AuthURI      string   `json:"auth_uri" validate:"required,url"`
	TokenURI     string   `json:"token_uri" validate:"required,url"`
	ClientSecret string   `json:"client_secret" validate:"required"`
	RedirectURIs []string `json:"redirect_uris" validate:"required,min=1,dive,uri"`
}

// LoadOAuthClient finds the Google client file for env and loads it.
// PORTAL_GOOGLE_CLIENT_FILE wins over oauthClient.<env>.json in the
// working or home directory.
func LoadOAuthClient(env string) (*OAuthClientConfig, error) {
	if path, ok := os.LookupEnv(GoogleClientFileEnv); ok && path != "" {
		return LoadOAuthClientFromPath(path)
	}

	path, err := searchFile(envFileName("oauthClient", env, "json"))
	if err != nil {
		return nil, fmt.Errorf("no google client file: %w", err)
	}
	return LoadOAuthClientFromPath(path)
}

func LoadOAuthClientFromPath(path string) (*OAuthClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read google client file: %w", err)
	}

	var client OAuthClientConfig
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, fmt.Errorf("failed to parse google client file %s: %w", path, err)
	}
	if err := ValidateOAuthClient(&client); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &client, nil
}

// ValidateOAuthClient requires a complete desktop client
func ValidateOAuthClient(cfg *OAuthClientConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("google client validation failed: %w", err)
	}
	return nil
}
