// Package push is the client for the external push-delivery gateway. Delivery
// is best-effort: the dispatcher supervises calls with a timeout and one
// retry, and a failure only ever costs the push, never the notification.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sender delivers one push message to one device token.
type Sender interface {
	Send(ctx context.Context, userID, token, title, body, severity string) error
}

// Client sends push messages over HTTP to the configured gateway.
type Client struct {
	gatewayURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a push client. The timeout bounds each individual send;
// zero selects a 10 second default.
func NewClient(gatewayURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
}

// Send posts one message to the gateway. Any non-2xx response is an error
// carrying the status code.
func (c *Client) Send(ctx context.Context, userID, token, title, body, severity string) error {
	if c.gatewayURL == "" {
		return fmt.Errorf("push gateway URL is not configured")
	}
	if token == "" {
		return fmt.Errorf("push token is required")
	}

	payload, err := json.Marshal(pushRequest{
		UserID:   userID,
		Token:    token,
		Title:    title,
		Body:     body,
		Severity: severity,
	})
	if err != nil {
		return fmt.Errorf("marshalling push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("creating push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}
	return nil
}
