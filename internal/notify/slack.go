package notify

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

	"github.com/hashicorp/go-retryablehttp"
)

// SlackConfig holds configuration for Slack incoming webhook notifications.
type SlackConfig struct {
	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string

	// Channel overrides the webhook's default channel.
	Channel string

	// Actions limits delivery to these audit actions. Empty means all.
	Actions []string

	// Mentions are Slack handles appended to every message.
	Mentions []string
}

// SlackProvider posts audit events to Slack as Block Kit messages.
type SlackProvider struct {
	config SlackConfig
	client *retryablehttp.Client
}

// NewSlackProvider creates a new Slack notification provider.
func NewSlackProvider(config SlackConfig) *SlackProvider {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.HTTPClient.Timeout = 30 * time.Second

	return &SlackProvider{
		config: config,
		client: client,
	}
}

// Name returns the provider name.
func (p *SlackProvider) Name() string {
	return "slack"
}

// SupportsAction reports whether the provider is subscribed to action.
func (p *SlackProvider) SupportsAction(action string) bool {
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
func (p *SlackProvider) Validate(_ context.Context) error {
	if p.config.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}

	parsed, err := url.Parse(p.config.WebhookURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid webhook URL: %s", p.config.WebhookURL)
	}

	return nil
}

// Send posts a message for event.
func (p *SlackProvider) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(p.buildMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

// buildMessage creates a Block Kit formatted Slack message.
func (p *SlackProvider) buildMessage(event Event) map[string]interface{} {
	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  eventEmoji(event.Action) + " " + eventTitle(event.Action),
				"emoji": true,
			},
		},
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Operator:*\n%s (#%d)", event.ActorEmail, event.ActorID),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*User:*\n%s", eventSubject(event.Details)),
				},
			},
		},
	}

	if len(p.config.Mentions) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": "*Attention:* " + strings.Join(p.config.Mentions, " "),
			},
		})
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []map[string]interface{}{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("<!date^%d^{date_short_pretty} at {time}|%s> · %s",
					event.Timestamp.Unix(), event.Timestamp.UTC().Format(time.RFC3339), event.ID),
			},
		},
	})

	message := map[string]interface{}{
		"text":   eventTitle(event.Action),
		"blocks": blocks,
	}
	if p.config.Channel != "" {
		message["channel"] = p.config.Channel
	}

	return message
}

func eventEmoji(action string) string {
	if action == "USER_API_KEY_REGENERATED" {
		return ":key:"
	}
	return ":bell:"
}

func eventTitle(action string) string {
	if action == "USER_API_KEY_REGENERATED" {
		return "API key regenerated"
	}
	return action
}

func eventSubject(details map[string]interface{}) string {
	email, _ := details["user_email"].(string)
	id, ok := details["user_id"]
	switch {
	case ok && email != "":
		return fmt.Sprintf("%s (#%v)", email, id)
	case ok:
		return fmt.Sprintf("#%v", id)
	case email != "":
		return email
	default:
		return "unknown"
	}
}
