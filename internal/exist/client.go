// Package exist is a client for the Exist attribute REST API.
package exist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/verte-zerg/rizexist/internal/model"
)

// Default endpoints.
const (
	DefaultBaseURL  = "https://exist.io/api/2"
	DefaultTokenURL = "https://exist.io/oauth2/access_token"
)

const maxErrorBody = 4 << 10

// ErrUnauthorized matches 401 responses that survived the refresh attempt.
var ErrUnauthorized = errors.New("exist: unauthorized")

// APIError is returned for non-2xx responses.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exist %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Is reports ErrUnauthorized equivalence for 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// TokenSaver persists rotated tokens.
type TokenSaver interface {
	SaveTokens(accessToken, refreshToken string) error
}

// Client talks to the Exist API on behalf of one user.
type Client struct {
	baseURL    string
	tokenURL   string
	creds      model.Credentials
	httpClient *http.Client
	saver      TokenSaver
	logger     *slog.Logger
	onRefresh  func(ok bool)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(c *Client) {
		if tokenURL != "" {
			c.tokenURL = tokenURL
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSaver persists tokens after a successful refresh.
func WithTokenSaver(saver TokenSaver) Option {
	return func(c *Client) {
		c.saver = saver
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRefreshHook is called after every refresh attempt.
func WithRefreshHook(fn func(ok bool)) Option {
	return func(c *Client) {
		c.onRefresh = fn
	}
}

// NewClient builds a client for the given credentials.
func NewClient(creds model.Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		tokenURL:   DefaultTokenURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials returns the current credential pair, including rotated tokens.
func (c *Client) Credentials() model.Credentials {
	return c.creds
}

// do sends a request, refreshing the access token once on 401 when possible.
func (c *Client) do(ctx context.Context, method, target string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = encoded
	}

	resp, err := c.send(ctx, method, target, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.creds.RefreshToken != "" {
		rejected := responseError(method, resp)
		if !c.refresh(ctx) {
			return rejected
		}
		resp, err = c.send(ctx, method, target, body)
		if err != nil {
			return err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(method, resp)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exist request failed: %w", err)
	}
	return resp, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refresh exchanges the refresh token for a new access token and persists the
// new pair before returning. The refresh hook only sees attempts that reached
// the token endpoint.
func (c *Client) refresh(ctx context.Context) bool {
	if !c.creds.CanRefresh() {
		c.logger.Warn("access token rejected and refresh credentials are incomplete")
		return false
	}
	ok := c.exchangeRefreshToken(ctx)
	if c.onRefresh != nil {
		c.onRefresh(ok)
	}
	return ok
}

func (c *Client) exchangeRefreshToken(ctx context.Context) bool {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.creds.RefreshToken},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Error("failed to build token refresh request", "err", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("token refresh request failed", "err", err)
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("failed to refresh token", "status", resp.StatusCode, "body", strings.TrimSpace(string(snippet)))
		return false
	}
	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		c.logger.Error("failed to decode token response", "err", err)
		return false
	}
	if tokens.AccessToken == "" {
		c.logger.Error("token response has no access token")
		return false
	}
	c.creds.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		c.creds.RefreshToken = tokens.RefreshToken
	}
	if c.saver != nil {
		if err := c.saver.SaveTokens(c.creds.AccessToken, c.creds.RefreshToken); err != nil {
			c.logger.Warn("failed to persist refreshed tokens", "err", err)
		}
	}
	c.logger.Info("access token refreshed")
	return true
}

// responseError consumes and closes the body of a failed response.
func responseError(method string, resp *http.Response) *APIError {
	defer func() {
		_ = resp.Body.Close()
	}()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Method: method,
		Path:   resp.Request.URL.Path,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}
