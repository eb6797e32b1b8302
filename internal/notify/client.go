// Package notify delivers WhatsApp messages to gift recipients via Twilio.
// Delivery is always fire-and-forget from the caller's perspective: a failed
// notification never fails gift creation, and the claim workflow never
// touches this package.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

// Client sends WhatsApp messages through the Twilio Messages API. When
// credentials are not configured it runs in stub mode, logging the message
// instead of sending — development works without a Twilio account.
type Client struct {
	accountSID string
	authToken  string
	from       string
	apiBase    string
	stubMode   bool
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a notification client. Stub mode engages when any
// credential is empty.
func NewClient(accountSID, authToken, from string, logger *slog.Logger) *Client {
	stub := accountSID == "" || authToken == "" || from == ""
	if stub {
		logger.Warn("Twilio credentials not configured, WhatsApp messages will be logged only")
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		apiBase:    twilioAPIBase,
		stubMode:   stub,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Send delivers a WhatsApp message, optionally with a media attachment.
// Media URLs that Twilio cannot reach (localhost) are dropped rather than
// failing the message.
func (c *Client) Send(ctx context.Context, to, body, mediaURL string) error {
	if c.stubMode {
		c.logger.Info("WhatsApp message (stub mode)", "to", to, "body", body, "media_url", mediaURL)
		return nil
	}

	form := url.Values{}
	form.Set("From", whatsappAddress(c.from))
	form.Set("To", whatsappAddress(to))
	form.Set("Body", body)
	if mediaURL != "" {
		if isPubliclyReachable(mediaURL) {
			form.Set("MediaUrl", mediaURL)
		} else {
			c.logger.Warn("media URL is not publicly reachable, sending without media", "media_url", mediaURL)
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.apiBase, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
		var parsed struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		}
		_ = json.Unmarshal(raw, &parsed)
		if parsed.Message != "" {
			return fmt.Errorf("twilio returned status %d (code %d): %s", resp.StatusCode, parsed.Code, parsed.Message)
		}
		return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, string(raw))
	}

	var sent struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Info("WhatsApp message sent", "message_sid", sent.SID, "status", sent.Status)
	return nil
}

// whatsappAddress ensures the Twilio whatsapp: channel prefix.
func whatsappAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// isPubliclyReachable filters out URLs Twilio's fetchers cannot resolve.
func isPubliclyReachable(rawURL string) bool {
	return !strings.Contains(rawURL, "localhost") && !strings.Contains(rawURL, "127.0.0.1")
}
