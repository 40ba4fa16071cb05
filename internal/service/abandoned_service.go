package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const abandonedListLimit = 100

// AbandonedService records abandoned-checkout events and dispatches recovery
// emails. Recording is best-effort telemetry: callers on the checkout path
// must fire-and-log, never fail the user's checkout over it.
type AbandonedService struct {
	store  kv.Store
	email  EmailSender // nil when email is disabled
	logger *zap.Logger
}

func NewAbandonedService(store kv.Store, email EmailSender) *AbandonedService {
	return &AbandonedService{
		store:  store,
		email:  email,
		logger: util.GetLogger(),
	}
}

// Record writes an immutable event under a time-prefixed key and returns
// its id.
func (s *AbandonedService) Record(ctx context.Context, email string, cartValue float64, items []models.CartItem, stage string) (string, error) {
	ctx, span := util.StartSpan(ctx, "AbandonedService.Record")
	defer span.End()

	now := time.Now().UnixMilli()
	event := models.AbandonedCheckout{
		ID:        uuid.New().String()[:8],
		Email:     email,
		CartValue: cartValue,
		Items:     items,
		Stage:     stage,
		Status:    models.AbandonedStatusOpen,
		CreatedAt: now,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal abandoned checkout: %w", err)
	}

	key := fmt.Sprintf("%s%d:%s", models.PrefixAbandoned, now, event.ID)
	if err := s.store.Put(ctx, key, data, 0); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return event.ID, nil
}

// AbandonedView is the admin listing shape; Value mirrors CartValue for
// display.
type AbandonedView struct {
	models.AbandonedCheckout
	Value float64 `json:"value"`
}

// List returns up to one page of events, newest first.
func (s *AbandonedService) List(ctx context.Context) ([]AbandonedView, error) {
	ctx, span := util.StartSpan(ctx, "AbandonedService.List")
	defer span.End()

	page, err := s.store.List(ctx, models.PrefixAbandoned, abandonedListLimit, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	events := make([]AbandonedView, 0, len(page.Keys))
	for _, key := range page.Keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var event models.AbandonedCheckout
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn("Discarding unparseable abandoned checkout", zap.String("key", key))
			continue
		}
		events = append(events, AbandonedView{AbandonedCheckout: event, Value: event.CartValue})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
	return events, nil
}

// SendRecoveryEmail renders and submits the recovery email, then writes the
// email_sent status back to the event best-effort. A failed status write is
// logged and does not fail the send.
func (s *AbandonedService) SendRecoveryEmail(ctx context.Context, email, checkoutID string, items []models.CartItem, recoveryURL string) error {
	ctx, span := util.StartSpan(ctx, "AbandonedService.SendRecoveryEmail")
	defer span.End()

	if email == "" {
		return fmt.Errorf("%w: email", ErrMissingField)
	}
	if s.email == nil {
		util.RecoveryEmailsTotal.WithLabelValues("disabled").Inc()
		return fmt.Errorf("%w: email provider not configured", ErrBackendUnavailable)
	}

	if err := s.email.Send(ctx, email, "You left something behind", renderRecoveryEmail(items, recoveryURL)); err != nil {
		util.RecoveryEmailsTotal.WithLabelValues("failure").Inc()
		return err
	}
	util.RecoveryEmailsTotal.WithLabelValues("success").Inc()

	if checkoutID != "" {
		if err := s.markEmailSent(ctx, checkoutID); err != nil {
			s.logger.Warn("Recovery email sent but status write failed",
				zap.String("checkout_id", checkoutID),
				zap.Error(err))
		}
	}
	return nil
}

// markEmailSent locates the event by its id suffix and updates the status
// field.
func (s *AbandonedService) markEmailSent(ctx context.Context, checkoutID string) error {
	cursor := ""
	for {
		page, err := s.store.List(ctx, models.PrefixAbandoned, abandonedListLimit, cursor)
		if err != nil {
			return err
		}
		for _, key := range page.Keys {
			if !strings.HasSuffix(key, ":"+checkoutID) {
				continue
			}
			data, err := s.store.Get(ctx, key)
			if err != nil {
				return err
			}
			var event models.AbandonedCheckout
			if err := json.Unmarshal(data, &event); err != nil {
				return err
			}
			event.Status = models.AbandonedStatusEmailSent
			updated, err := json.Marshal(event)
			if err != nil {
				return err
			}
			return s.store.Put(ctx, key, updated, 0)
		}
		if page.Complete {
			return fmt.Errorf("%w: abandoned checkout %s", ErrNotFound, checkoutID)
		}
		cursor = page.Cursor
	}
}

func renderRecoveryEmail(items []models.CartItem, recoveryURL string) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:sans-serif;max-width:560px;margin:0 auto">`)
	b.WriteString(`<h2>Your cart is waiting</h2>`)
	b.WriteString(`<p>You were only a step away from checkout. Your items are still reserved:</p><ul>`)
	for _, item := range items {
		fmt.Fprintf(&b, `<li>%s &times; %d &mdash; $%.2f</li>`,
			html.EscapeString(item.Name), item.Quantity, item.Price)
	}
	b.WriteString(`</ul>`)
	b.WriteString(`<p>Use code <strong>COMEBACK10</strong> for 10% off.</p>`)
	fmt.Fprintf(&b, `<p><a href="%s" style="background:#111;color:#fff;padding:12px 24px;text-decoration:none;border-radius:6px">Complete your order</a></p>`,
		html.EscapeString(recoveryURL))
	b.WriteString(`</div>`)
	return b.String()
}
