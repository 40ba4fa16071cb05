package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ProviderStats is the external web-analytics provider's view of traffic.
type ProviderStats struct {
	Visits      int64
	ActiveUsers int
}

// StatsProvider queries the external web-analytics service. Figures from a
// configured provider supersede KV-derived counters when non-zero.
type StatsProvider interface {
	Stats(ctx context.Context) (*ProviderStats, error)
}

// UmamiClient reads aggregate stats from an Umami instance.
type UmamiClient struct {
	baseURL   string
	websiteID string
	token     string
	client    *http.Client
	logger    *zap.Logger
}

// NewUmamiClient returns nil when the integration is not configured, which
// makes the dashboard fall back to KV-derived counters.
func NewUmamiClient(baseURL, websiteID, token string) *UmamiClient {
	if baseURL == "" || websiteID == "" {
		return nil
	}
	return &UmamiClient{
		baseURL:   baseURL,
		websiteID: websiteID,
		token:     token,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    util.GetLogger(),
	}
}

type umamiStatsResponse struct {
	Pageviews struct {
		Value int64 `json:"value"`
	} `json:"pageviews"`
	Visitors struct {
		Value int64 `json:"value"`
	} `json:"visitors"`
}

type umamiActiveResponse struct {
	Visitors int `json:"visitors"`
}

func (c *UmamiClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("analytics provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: analytics provider returned %d", ErrUpstreamRejected, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stats returns visit and active-user figures for the configured website.
func (c *UmamiClient) Stats(ctx context.Context) (*ProviderStats, error) {
	now := time.Now()
	path := fmt.Sprintf("/api/websites/%s/stats?startAt=%d&endAt=%d",
		c.websiteID, now.AddDate(0, 0, -30).UnixMilli(), now.UnixMilli())

	var stats umamiStatsResponse
	if err := c.get(ctx, path, &stats); err != nil {
		return nil, err
	}

	var active umamiActiveResponse
	if err := c.get(ctx, fmt.Sprintf("/api/websites/%s/active", c.websiteID), &active); err != nil {
		// Visits alone are still worth reporting.
		c.logger.Warn("Failed to fetch active visitors from provider", zap.Error(err))
	}

	return &ProviderStats{
		Visits:      stats.Pageviews.Value,
		ActiveUsers: active.Visitors,
	}, nil
}
