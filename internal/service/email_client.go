package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// EmailSender submits one transactional email to the outbound provider.
// Sends are fire-and-forget from the caller's point of view; only transport
// success or failure is reported.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// ResendClient sends transactional email through the Resend HTTP API.
type ResendClient struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewResendClient returns nil when no API key is configured; callers treat a
// nil sender as "email disabled".
func NewResendClient(apiKey, from, baseURL string) *ResendClient {
	if apiKey == "" {
		return nil
	}
	return &ResendClient{
		apiKey:  apiKey,
		from:    from,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  util.GetLogger(),
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (c *ResendClient) Send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(resendPayload{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("email provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: email provider returned %d: %s", ErrUpstreamRejected, resp.StatusCode, detail)
	}

	c.logger.Info("Transactional email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
