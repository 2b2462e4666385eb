package supabaseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jakechorley/volunteer-portal/pkg/db"
)

const defaultTimeout = 30 * time.Second

var _ db.Backend = (*Client)(nil)

// Config holds the project URL and API keys
type Config struct {
	URL     string
	AnonKey string
	// ServiceKey is only needed for operator writes such as activity imports
	ServiceKey string
	Timeout    time.Duration
}

// Client talks to a Supabase project: GoTrue for accounts and PostgREST for rows
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	base       http.RoundTripper
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient creates a Supabase client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, fmt.Errorf("supabase url and anon key are required")
	}
	baseURL := cfg.URL
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		base:       http.DefaultTransport,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Close is a no-op; the client holds no long-lived connections of its own
func (c *Client) Close() {}

// httpClient returns a client that sends bearer as the Authorization token.
// Requests without a user token are made with the anon key.
func (c *Client) httpClient(bearer string) *http.Client {
	if bearer == "" {
		bearer = c.anonKey
	}
	return &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}
}

type request struct {
	method  string
	path    string // relative to the project URL, e.g. /rest/v1/profiles
	query   url.Values
	body    any
	bearer  string
	// service sends the request with the service-role key, bypassing row-level security
	service bool
	headers map[string]string
}

// do sends req and decodes a JSON response into out (when non-nil).
// Non-2xx responses become *db.RemoteError.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var reqBody io.Reader
	if req.body != nil {
		jsonData, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	bearer, apiKey := req.bearer, c.anonKey
	if req.service {
		bearer, apiKey = c.serviceKey, c.serviceKey
	}
	httpReq.Header.Set("apikey", apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient(bearer).Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Supabase request",
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorBody covers both GoTrue and PostgREST error shapes
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

func parseError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	var code string
	// PostgREST sends a string code; GoTrue sends the HTTP status as a number
	if err := json.Unmarshal(eb.Code, &code); err != nil || code == "" {
		code = eb.ErrorCode
	}
	if code == "" {
		code = eb.Error
	}

	msg := firstNonEmpty(eb.Msg, eb.ErrorDescription, eb.Message, eb.Error)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	return &db.RemoteError{
		Status:  status,
		Code:    code,
		Message: msg,
		Kind:    classify(status, code, msg),
	}
}

func classify(status int, code, msg string) error {
	switch code {
	case "23505":
		return db.ErrDuplicateAssignment
	case "23503":
		return db.ErrActivityNotFound
	case "PGRST116":
		return db.ErrNotFound
	case "invalid_credentials", "invalid_grant":
		if code == "invalid_grant" && strings.Contains(strings.ToLower(msg), "refresh") {
			return db.ErrUnauthenticated
		}
		return db.ErrInvalidCredentials
	case "user_already_exists", "email_exists":
		return db.ErrEmailTaken
	case "bad_jwt", "session_not_found", "PGRST301", "PGRST303":
		return db.ErrUnauthenticated
	}
	if strings.EqualFold(msg, "User already registered") {
		return db.ErrEmailTaken
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return db.ErrUnauthenticated
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
