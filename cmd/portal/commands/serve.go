package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/web"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the volunteer portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, app, addr)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func serve(ctx context.Context, app *AppContext, addr string) error {
	cfg := app.Cfg

	backend, err := OpenBackend(ctx, cfg, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer backend.Close()

	sessions, closeSessions, err := OpenSessions(ctx, cfg, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer closeSessions()

	mailer, err := OpenMailer(ctx, cfg, app.Env, app.Logger)
	if err != nil {
		// the portal works without mail
		app.Logger.Warn("Mail notifications unavailable", zap.Error(err))
		mailer = nil
	}

	server, err := web.New(web.Options{
		Backend:        backend,
		Sessions:       sessions,
		Mailer:         mailer,
		CookieName:     cfg.Session.CookieName,
		SessionSecret:  []byte(cfg.Session.Secret),
		CSRFKey:        []byte(cfg.Session.CSRFKey),
		SessionTTL:     cfg.Session.TTL,
		SecureCookies:  cfg.Server.SecureCookies,
		MutationWait:   cfg.Server.MutationWait,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Run(ctx, addr, cfg.Server.ShutdownTimeout)
}
