package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookConfig holds configuration for webhook notifications.
type WebhookConfig struct {
	// Name is a human-readable name for this webhook.
	Name string

	// URL is the webhook endpoint URL.
	URL string

	// Method is the HTTP method to use (default: POST).
	Method string

	// Headers are additional HTTP headers to include.
	Headers map[string]string

	// Actions limits delivery to these audit actions. Empty means all.
	Actions []string

	// MaxAttempts is the total number of delivery attempts (default: 3).
	MaxAttempts int

	// Backoff is "exponential" (default) or "linear".
	Backoff string

	// InitialWait is the minimum wait between attempts (default: 1s).
	InitialWait time.Duration

	// Timeout for a single HTTP request (default: 10s).
	Timeout time.Duration
}

// WebhookProvider posts events as JSON to an HTTP endpoint.
type WebhookProvider struct {
	config WebhookConfig
	client *retryablehttp.Client
}

// NewWebhookProvider creates a webhook provider with defaults applied.
func NewWebhookProvider(config WebhookConfig) *WebhookProvider {
	if config.Method == "" {
		config.Method = "POST"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff == "" {
		config.Backoff = "exponential"
	}
	if config.InitialWait == 0 {
		config.InitialWait = time.Second
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = config.Timeout
	client.RetryMax = config.MaxAttempts - 1
	client.RetryWaitMin = config.InitialWait
	client.RetryWaitMax = config.InitialWait * time.Duration(1<<uint(config.MaxAttempts))
	if strings.EqualFold(config.Backoff, "linear") {
		client.Backoff = retryablehttp.LinearJitterBackoff
	}

	return &WebhookProvider{
		config: config,
		client: client,
	}
}

// Name returns the provider name.
func (p *WebhookProvider) Name() string {
	if p.config.Name != "" {
		return "webhook:" + p.config.Name
	}
	return "webhook"
}

// SupportsAction reports whether the webhook is subscribed to action.
func (p *WebhookProvider) SupportsAction(action string) bool {
	if len(p.config.Actions) == 0 {
		return true
	}
	for _, a := range p.config.Actions {
		if strings.EqualFold(a, action) {
			return true
		}
	}
	return false
}

// Validate checks if the provider configuration is valid.
func (p *WebhookProvider) Validate(_ context.Context) error {
	if p.config.URL == "" {
		return fmt.Errorf("URL is required")
	}

	parsed, err := url.Parse(p.config.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid URL: %s", p.config.URL)
	}

	switch strings.ToUpper(p.config.Method) {
	case "POST", "PUT", "PATCH":
	default:
		return fmt.Errorf("invalid method: %s (must be POST, PUT, or PATCH)", p.config.Method)
	}

	switch strings.ToLower(p.config.Backoff) {
	case "linear", "exponential":
	default:
		return fmt.Errorf("invalid backoff strategy: %s (must be linear or exponential)", p.config.Backoff)
	}

	return nil
}

// Send posts the event. Connection errors and 5xx responses are retried.
func (p *WebhookProvider) Send(ctx context.Context, event Event) error {
	payload, err := buildPayload(event)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, strings.ToUpper(p.config.Method), p.config.URL, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range p.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func buildPayload(event Event) ([]byte, error) {
	payload := map[string]interface{}{
		"id":          event.ID,
		"action":      event.Action,
		"actor_id":    event.ActorID,
		"actor_email": event.ActorEmail,
		"timestamp":   event.Timestamp.UTC().Format(time.RFC3339),
	}

	if len(event.Details) > 0 {
		payload["details"] = event.Details
	}

	return json.Marshal(payload)
}
