package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// TokenSource supplies the stored bearer token, if any. Satisfied by the
// session store.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client issues JSON requests against the API base URL, attaching bearer
// authorization when a token is available. An explicit token passed to a
// call takes precedence over the token source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *logrus.Logger
}

// NewClient creates an API client. tokens may be nil for unauthenticated use.
func NewClient(cfg *config.APIConfig, tokens TokenSource, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokens: tokens,
		logger: logger,
	}
}

// BaseURL returns the configured API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostJSON posts body as JSON to path and returns the parsed response body.
// A non-2xx status is returned as *APIError.
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, token string) (json.RawMessage, error) {
	_, raw, err := c.Post(ctx, path, body, token)
	return raw, err
}

// Post is PostJSON but also returns the HTTP status code, for endpoints
// where 200 and 202 mean different things.
func (c *Client) Post(ctx context.Context, path string, body interface{}, token string) (int, json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body, token)
}

// GetJSON issues a GET to path and returns the parsed response body
func (c *Client) GetJSON(ctx context.Context, path string, token string) (json.RawMessage, error) {
	_, raw, err := c.do(ctx, http.MethodGet, path, nil, token)
	return raw, err
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, token string) (int, json.RawMessage, error) {
	// Tolerate callers omitting the leading slash
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := c.baseURL + path

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if token == "" && c.tokens != nil {
		stored, err := c.tokens.Token(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to read stored token")
		} else {
			token = stored
		}
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("Sending API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Tolerate empty or non-JSON bodies by substituting null
	var raw json.RawMessage
	if len(data) > 0 && json.Valid(data) {
		raw = json.RawMessage(data)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
		if raw != nil {
			var eb errorBody
			if err := json.Unmarshal(raw, &eb); err == nil {
				if eb.Message != "" {
					apiErr.Message = eb.Message
				}
				apiErr.Details = eb.Errors
			}
		}
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"url":    url,
		}).Debug("API request failed")
		return resp.StatusCode, nil, apiErr
	}

	return resp.StatusCode, raw, nil
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Username                 string `json:"username"`
	FirstName                string `json:"first_name"`
	LastName                 string `json:"last_name"`
	Email                    string `json:"email"`
	PasswordHash             string `json:"password_hash"`
	PasswordHashConfirmation string `json:"password_hash_confirmation"`
	CaptchaToken             string `json:"captcha_token,omitempty"`
}

// Login exchanges credentials for a session token and profile
func (c *Client) Login(ctx context.Context, email, passwordHash string) (string, *models.Profile, error) {
	body := map[string]string{
		"email":         email,
		"password_hash": passwordHash,
	}
	raw, err := c.PostJSON(ctx, "/auth/login", body, "")
	if err != nil {
		return "", nil, err
	}
	return parseAuthResponse(raw)
}

// Register creates an account and returns the session token and profile
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, *models.Profile, error) {
	raw, err := c.PostJSON(ctx, "/auth/register", req, "")
	if err != nil {
		return "", nil, err
	}
	return parseAuthResponse(raw)
}

func parseAuthResponse(raw json.RawMessage) (string, *models.Profile, error) {
	var resp models.AuthResponse
	if raw != nil {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", nil, fmt.Errorf("failed to parse auth response: %w", err)
		}
	}
	token, user := resp.Credentials()
	if token == "" {
		return "", nil, fmt.Errorf("auth response carried no token")
	}
	return token, user, nil
}

// Logout revokes the current session server side. Callers treat failures
// as best-effort.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.PostJSON(ctx, "/auth/logout", nil, token)
	return err
}

// UpdateProfile submits profile edits and returns the server's view of the
// updated profile.
func (c *Client) UpdateProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	raw, err := c.PostJSON(ctx, "/auth/profile", profile, "")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data struct {
			User *models.Profile `json:"user"`
		} `json:"data"`
		User *models.Profile `json:"user"`
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse profile response: %w", err)
		}
	}
	if resp.Data.User != nil {
		return resp.Data.User, nil
	}
	return resp.User, nil
}

// Contact submits the contact form
func (c *Client) Contact(ctx context.Context, name, email, message string) error {
	body := map[string]string{
		"name":    name,
		"email":   email,
		"message": message,
	}
	_, err := c.PostJSON(ctx, "/mail/contact", body, "")
	return err
}

// MapPin records a map pin for the coverage map
func (c *Client) MapPin(ctx context.Context, latitude, longitude float64, label string) error {
	body := map[string]interface{}{
		"latitude":  latitude,
		"longitude": longitude,
		"label":     label,
	}
	_, err := c.PostJSON(ctx, "/maps/pin", body, "")
	return err
}

// OAuthRedirectURL returns the browser URL that starts the OAuth flow for
// the given provider (google or github).
func (c *Client) OAuthRedirectURL(provider string) string {
	return fmt.Sprintf("%s/auth/%s/redirect", c.baseURL, provider)
}
