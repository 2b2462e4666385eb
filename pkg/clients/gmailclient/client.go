package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jakechorley/volunteer-portal/internal/config"
	"github.com/jakechorley/volunteer-portal/pkg/utils"
)

// Client sends portal e-mails through the Gmail API
type Client struct {
	service  *gmail.Service
	userID   string
	sender   string
	interval time.Duration
	logger   *zap.Logger

	sendMutex    sync.Mutex
	lastSendTime time.Time
}

// NewClient creates a Gmail client from a stored token.
// Mail is sent from mail.GmailUserID, or the token's owner when unset
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, token *oauth2.Token, mail config.MailConfig, logger *zap.Logger) (*Client, error) {
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	return NewClientWithOptions(ctx, mail, logger, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
}

// NewClientWithOptions creates a client with explicit API options
func NewClientWithOptions(ctx context.Context, mail config.MailConfig, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	userID := mail.GmailUserID
	if userID == "" {
		userID = "me"
	}

	return &Client{
		service:  service,
		userID:   userID,
		sender:   mail.Sender,
		interval: EMAIL_INTERVAL,
		logger:   logger,
	}, nil
}
