// Package pterodactyl talks to the Pterodactyl panel application API.
package pterodactyl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/systmms/pterokeys/internal/secure"
)

const (
	acceptHeader     = "Application/vnd.pterodactyl.v1+json"
	defaultTimeout   = 30 * time.Second
	defaultRetries   = 3
	defaultUserAgent = "pterokeys"
)

// Config holds connection settings for the application API.
type Config struct {
	// BaseURL is the panel root, e.g. https://panel.example.com.
	BaseURL string

	// Token is the application API key.
	Token *secure.Token

	// Timeout bounds a single HTTP attempt (default: 30s).
	Timeout time.Duration

	// RetryMax is the number of retries for connection errors, 429 and 5xx
	// responses (default: 3). Negative disables retries.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the exponential backoff.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RateLimit caps requests per second; zero disables the limiter.
	RateLimit float64

	UserAgent string
}

// Client is a minimal application API client.
type Client struct {
	baseURL   *url.URL
	token     *secure.Token
	http      *retryablehttp.Client
	create    *retryablehttp.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewClient creates a client. Reads and deletes are retried on connection
// errors and 500-range response codes. Key creation is only retried when the
// panel cannot have minted a key: refused connections and 429 responses.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pterodactyl: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("pterodactyl: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("pterodactyl: application API key is required")
	}

	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.HTTPClient.Timeout = cfg.Timeout
	if httpClient.HTTPClient.Timeout == 0 {
		httpClient.HTTPClient.Timeout = defaultTimeout
	}
	switch {
	case cfg.RetryMax < 0:
		httpClient.RetryMax = 0
	case cfg.RetryMax == 0:
		httpClient.RetryMax = defaultRetries
	default:
		httpClient.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		httpClient.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		httpClient.RetryWaitMax = cfg.RetryWaitMax
	}
	// Hand the last response back so panel error bodies can be decoded.
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	create := retryablehttp.NewClient()
	create.Logger = nil
	create.HTTPClient = httpClient.HTTPClient
	create.RetryMax = httpClient.RetryMax
	create.RetryWaitMin = httpClient.RetryWaitMin
	create.RetryWaitMax = httpClient.RetryWaitMax
	create.CheckRetry = createRetryPolicy
	create.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL:   base,
		token:     cfg.Token,
		http:      httpClient,
		create:    create,
		userAgent: cfg.UserAgent,
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return c, nil
}

// APIKey describes a client API key as returned by the panel.
type APIKey struct {
	Identifier  string    `json:"identifier"`
	Description string    `json:"description"`
	AllowedIPs  []string  `json:"allowed_ips"`
	LastUsedAt  time.Time `json:"last_used_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreatedAPIKey is a freshly minted key including its secret part.
type CreatedAPIKey struct {
	APIKey
	SecretToken string
}

// Token returns the full key presented to clients: identifier followed by
// the secret token.
func (k *CreatedAPIKey) Token() string {
	return k.Identifier + k.SecretToken
}

type apiKeyEnvelope struct {
	Object     string `json:"object"`
	Attributes APIKey `json:"attributes"`
	Meta       struct {
		SecretToken string `json:"secret_token"`
	} `json:"meta"`
}

type createAPIKeyRequest struct {
	Description string   `json:"description"`
	AllowedIPs  []string `json:"allowed_ips"`
}

// CreateUserAPIKey creates a client API key owned by a panel user.
func (c *Client) CreateUserAPIKey(ctx context.Context, userID int64, description string, allowedIPs []string) (*CreatedAPIKey, error) {
	if allowedIPs == nil {
		allowedIPs = []string{}
	}
	body, err := json.Marshal(createAPIKeyRequest{Description: description, AllowedIPs: allowedIPs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var envelope apiKeyEnvelope
	if err := c.send(ctx, c.create, http.MethodPost, userKeysPath(userID), body, &envelope); err != nil {
		return nil, err
	}

	return &CreatedAPIKey{
		APIKey:      envelope.Attributes,
		SecretToken: envelope.Meta.SecretToken,
	}, nil
}

// DeleteAPIKeyForUser deletes a user's client API key by its identifier.
func (c *Client) DeleteAPIKeyForUser(ctx context.Context, userID int64, identifier string) error {
	path := userKeysPath(userID) + "/" + url.PathEscape(identifier)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Ping lists a single user to verify the panel is reachable and accepts the
// application API key.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/application/users?per_page=1", nil, nil)
}

func userKeysPath(userID int64) string {
	return "/api/application/users/" + strconv.FormatInt(userID, 10) + "/api-keys"
}

// createRetryPolicy retries key creation only when the request never reached
// the panel or was throttled. A 5xx or timeout may follow a committed key.
func createRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return errors.Is(err, syscall.ECONNREFUSED), nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// do executes a retryable request and decodes a JSON response into out when
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	return c.send(ctx, c.http, method, path, body, out)
}

func (c *Client) send(ctx context.Context, hc *retryablehttp.Client, method, path string, body []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	err = c.token.Use(func(b []byte) error {
		req.Header.Set("Authorization", "Bearer "+string(b))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read application API key: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
