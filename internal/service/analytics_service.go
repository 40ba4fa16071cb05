package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

const (
	presenceTTL   = 60 * time.Second
	recentWindow  = 5 * time.Minute
	presencePage  = 100
	counterOrigin = "0"
)

// AnalyticsService maintains approximate traffic counters, a sliding window
// of cart activity, and per-IP presence. Counter increments are non-atomic
// read-modify-write cycles; lost updates are acceptable because these are
// vanity metrics. Financial figures always come from the order ledger.
type AnalyticsService struct {
	store    kv.Store
	orders   *OrderService
	provider StatsProvider // nil when the external integration is off
	logger   *zap.Logger

	now func() time.Time
}

func NewAnalyticsService(store kv.Store, orders *OrderService, provider StatsProvider) *AnalyticsService {
	return &AnalyticsService{
		store:    store,
		orders:   orders,
		provider: provider,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// IncrementCounter bumps a plain integer-as-string counter and returns the
// new value.
func (s *AnalyticsService) IncrementCounter(ctx context.Context, key string) (int64, error) {
	current := counterOrigin
	data, err := s.store.Get(ctx, key)
	if err == nil {
		current = string(data)
	} else if !errors.Is(err, kv.ErrNotFound) {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	n, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		n = 0
	}
	n++

	if err := s.store.Put(ctx, key, []byte(strconv.FormatInt(n, 10)), 0); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n, nil
}

// RecordVisit bumps the visit counter.
func (s *AnalyticsService) RecordVisit(ctx context.Context) error {
	_, err := s.IncrementCounter(ctx, models.KeyVisits)
	return err
}

// RecordCheckoutStart bumps the checkout-start counter.
func (s *AnalyticsService) RecordCheckoutStart(ctx context.Context) error {
	_, err := s.IncrementCounter(ctx, models.KeyCheckoutStarts)
	return err
}

// RecordCartEvent bumps the cart counter and appends the current time to the
// sliding window, dropping entries older than five minutes on the way.
func (s *AnalyticsService) RecordCartEvent(ctx context.Context) error {
	if _, err := s.IncrementCounter(ctx, models.KeyCartEvents); err != nil {
		return err
	}

	window, err := s.loadWindow(ctx)
	if err != nil {
		return err
	}

	now := s.now().UnixMilli()
	window = append(window, now)
	window = filterWindow(window, now)

	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("failed to marshal cart-event window: %w", err)
	}
	if err := s.store.Put(ctx, models.KeyRecentCartEvents, data, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// HeartbeatPresence writes the visitor's 60-second liveness record and bumps
// the country histogram.
func (s *AnalyticsService) HeartbeatPresence(ctx context.Context, ip, country string) error {
	record := models.PresenceRecord{
		Timestamp: s.now().UnixMilli(),
		Country:   country,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}
	if err := s.store.Put(ctx, models.PrefixPresence+ip, data, presenceTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if country == "" {
		return nil
	}

	histogram, err := s.loadCountries(ctx)
	if err != nil {
		return err
	}
	histogram[country]++
	data, err = json.Marshal(histogram)
	if err != nil {
		return fmt.Errorf("failed to marshal country histogram: %w", err)
	}
	if err := s.store.Put(ctx, models.KeyCountries, data, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Live computes the realtime view: active users from live presence keys,
// cart events inside the window relative to query time, and regions of the
// currently present visitors. Never cached, so it is correct by construction.
func (s *AnalyticsService) Live(ctx context.Context) (*models.LiveStats, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.Live")
	defer span.End()

	live := &models.LiveStats{ActiveRegions: make(map[string]int)}

	cursor := ""
	for {
		page, err := s.store.List(ctx, models.PrefixPresence, presencePage, cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		live.ActiveUsers += len(page.Keys)
		for _, key := range page.Keys {
			data, err := s.store.Get(ctx, key)
			if err != nil {
				continue
			}
			var record models.PresenceRecord
			if err := json.Unmarshal(data, &record); err != nil {
				continue
			}
			if record.Country != "" {
				live.ActiveRegions[record.Country]++
			}
		}
		if page.Complete {
			break
		}
		cursor = page.Cursor
	}

	window, err := s.loadWindow(ctx)
	if err != nil {
		return nil, err
	}
	live.RecentCartEvents = len(filterWindow(window, s.now().UnixMilli()))

	return live, nil
}

// Dashboard combines counters, ledger totals, and provider figures. Provider
// data is preferred when present and non-zero; KV-derived counters are the
// fallback, never the reverse.
func (s *AnalyticsService) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "AnalyticsService.Dashboard")
	defer span.End()

	stats := &models.DashboardStats{}

	stats.Visits = s.readCounter(ctx, models.KeyVisits)
	stats.CartEvents = s.readCounter(ctx, models.KeyCartEvents)
	stats.CheckoutStarts = s.readCounter(ctx, models.KeyCheckoutStarts)

	countries, err := s.loadCountries(ctx)
	if err == nil {
		stats.Countries = countries
	} else {
		stats.Countries = map[string]int{}
	}

	totals, err := s.orders.Totals(ctx)
	if err != nil {
		return nil, err
	}
	stats.Orders = totals.Orders
	stats.Revenue = totals.Revenue
	stats.AverageOrderValue = totals.AverageOrderValue
	stats.DailyRevenue = totals.DailyRevenue

	live, err := s.Live(ctx)
	if err != nil {
		return nil, err
	}
	stats.ActiveUsers = live.ActiveUsers

	if s.provider != nil {
		provided, err := s.provider.Stats(ctx)
		if err != nil {
			s.logger.Warn("Analytics provider unavailable, using self-reported counters",
				zap.Error(err))
		} else {
			if provided.Visits > 0 {
				stats.Visits = provided.Visits
			}
			if provided.ActiveUsers > 0 {
				stats.ActiveUsers = provided.ActiveUsers
			}
		}
	}

	if stats.Visits > 0 {
		stats.ConversionRate = float64(stats.Orders) / float64(stats.Visits)
	}

	return stats, nil
}

func (s *AnalyticsService) readCounter(ctx context.Context, key string) int64 {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (s *AnalyticsService) loadWindow(ctx context.Context) ([]int64, error) {
	data, err := s.store.Get(ctx, models.KeyRecentCartEvents)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var window []int64
	if err := json.Unmarshal(data, &window); err != nil {
		return nil, nil
	}
	return window, nil
}

func (s *AnalyticsService) loadCountries(ctx context.Context) (map[string]int, error) {
	histogram := make(map[string]int)
	data, err := s.store.Get(ctx, models.KeyCountries)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return histogram, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := json.Unmarshal(data, &histogram); err != nil {
		return make(map[string]int), nil
	}
	return histogram, nil
}

func filterWindow(window []int64, now int64) []int64 {
	cutoff := now - recentWindow.Milliseconds()
	kept := window[:0]
	for _, ts := range window {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}
