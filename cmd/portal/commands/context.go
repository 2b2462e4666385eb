package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/internal/config"
	"github.com/jakechorley/volunteer-portal/pkg/clients/gmailclient"
	"github.com/jakechorley/volunteer-portal/pkg/clients/supabaseclient"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
	"github.com/jakechorley/volunteer-portal/pkg/db"
	"github.com/jakechorley/volunteer-portal/pkg/postgres"
	"github.com/jakechorley/volunteer-portal/pkg/utils"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg    *config.Config
	Env    string
	Logger *zap.Logger
	Ctx    context.Context
}

// OpenBackend connects the data backend the configuration selects
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Backend, error) {
	switch cfg.Backend.Kind {
	case config.BackendSupabase:
		logger.Info("Using Supabase backend", zap.String("url", cfg.Backend.SupabaseURL))
		client, err := supabaseclient.NewClient(supabaseclient.Config{
			URL:        cfg.Backend.SupabaseURL,
			AnonKey:    cfg.Backend.AnonKey,
			ServiceKey: cfg.Backend.ServiceKey,
			Timeout:    cfg.Backend.RequestTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil

	case config.BackendPostgres:
		logger.Info("Connecting to PostgreSQL")
		database, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return database, nil

	case config.BackendMemory:
		logger.Warn("Using in-memory backend, data is lost on restart")
		return db.NewMemory(0), nil

	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.DB, error) {
	return postgres.NewDB(ctx, cfg.Backend.PostgresDSN, postgres.TokenConfig{
		Secret: cfg.TokenSecret(),
	}, logger)
}

// OpenSessions returns the session store and a function that releases it
func OpenSessions(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, func(), error) {
	if cfg.Session.RedisURL == "" {
		logger.Info("Using in-memory session store")
		return session.NewMemoryStore(), func() {}, nil
	}

	store, err := session.NewRedisStoreFromURL(ctx, cfg.Session.RedisURL, cfg.Session.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using Redis session store")
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close Redis session store", zap.Error(err))
		}
	}, nil
}

// OpenMailer builds the Gmail mailer from the stored token. Mail is optional:
// a nil mailer with a nil error means it is disabled.
func OpenMailer(ctx context.Context, cfg *config.Config, env string, logger *zap.Logger) (services.Mailer, error) {
	if !cfg.Mail.Enabled {
		logger.Info("Mail notifications disabled")
		return nil, nil
	}

	oauthCfg, err := config.LoadOAuthClient(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, err
	}
	token, err := utils.LoadToken(ctx, oauthConfig, env, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail token (run authorizeGoogle first): %w", err)
	}

	client, err := gmailclient.NewClient(ctx, oauthCfg, token, cfg.Mail, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	logger.Info("Mail notifications enabled", zap.String("sender", cfg.Mail.Sender))
	return client, nil
}
