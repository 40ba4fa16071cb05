package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// testIntentPrefix marks payment-intent ids that must never be sent to the
// provider for verification.
const testIntentPrefix = "pi_test_"

// OrderService is the order ledger: idempotent creation keyed by
// payment-intent id, plus listing and revenue aggregation.
type OrderService struct {
	store    kv.Store
	payments PaymentVerifier // nil when verification is unconfigured
	logger   *zap.Logger
}

func NewOrderService(store kv.Store, payments PaymentVerifier) *OrderService {
	return &OrderService{
		store:    store,
		payments: payments,
		logger:   util.GetLogger(),
	}
}

// CreateOrderRequest carries the client's view of a completed payment. The
// email, name and amount are hints, used only when provider verification is
// unavailable.
type CreateOrderRequest struct {
	PaymentIntentID string  `json:"paymentIntent"`
	Email           string  `json:"email"`
	Name            string  `json:"name"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

// OrderResult is an order plus the idempotency flag exposed to callers.
type OrderResult struct {
	models.Order
	Duplicate bool `json:"duplicate,omitempty"`
}

// CreateOrder records one order per payment-intent id. The conditional write
// on the cadlink:pi index key is the single source of truth: losing it means
// another request already recorded this payment, and that order is returned.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.PaymentIntentID == "" {
		util.OrdersFailedTotal.WithLabelValues("missing_payment_intent").Inc()
		return nil, fmt.Errorf("%w: paymentIntent", ErrMissingField)
	}

	indexKey := models.PrefixPaymentIntent + req.PaymentIntentID

	// Fast path: the success page often re-posts on refresh.
	if existing, err := s.loadByIndex(ctx, indexKey); err == nil {
		util.OrdersDuplicateTotal.Inc()
		s.logger.Info("Duplicate order request detected",
			zap.String("payment_intent", req.PaymentIntentID),
			zap.String("order_id", existing.ID))
		return &OrderResult{Order: *existing, Duplicate: true}, nil
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	order := s.buildOrder(ctx, req)

	won, err := s.store.PutIfAbsent(ctx, indexKey, []byte(order.ID), 0)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("kv_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !won {
		// A concurrent request claimed this payment intent first.
		existing, err := s.loadByIndex(ctx, indexKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		util.OrdersDuplicateTotal.Inc()
		s.logger.Info("Lost order creation race, returning winner",
			zap.String("payment_intent", req.PaymentIntentID),
			zap.String("order_id", existing.ID))
		return &OrderResult{Order: *existing, Duplicate: true}, nil
	}

	data, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.store.Put(ctx, models.PrefixOrder+order.ID, data, 0); err != nil {
		util.OrdersFailedTotal.WithLabelValues("kv_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("payment_intent", order.PaymentIntentID),
		zap.Float64("amount", order.Amount))

	return &OrderResult{Order: *order}, nil
}

// buildOrder verifies the payment against the provider where possible and
// falls back to the client's hints otherwise. Verification failure is a
// warning, not an error: availability is deliberately favored over strict
// verification.
func (s *OrderService) buildOrder(ctx context.Context, req *CreateOrderRequest) *models.Order {
	order := &models.Order{
		ID:              generateOrderID(),
		Email:           req.Email,
		Name:            req.Name,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          models.OrderStatusCompleted,
		Timestamp:       time.Now().UnixMilli(),
		PaymentIntentID: req.PaymentIntentID,
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}

	if s.payments == nil || strings.HasPrefix(req.PaymentIntentID, testIntentPrefix) {
		return order
	}

	details, err := s.payments.VerifyIntent(ctx, req.PaymentIntentID)
	if err != nil {
		util.PaymentVerificationFallbacks.Inc()
		s.logger.Warn("Payment verification failed, falling back to client data",
			zap.String("payment_intent", req.PaymentIntentID),
			zap.Error(err))
		return order
	}

	if details.Amount > 0 {
		order.Amount = details.Amount
	}
	if details.Currency != "" {
		order.Currency = details.Currency
	}
	if details.Email != "" {
		order.Email = details.Email
	}
	if details.Name != "" {
		order.Name = details.Name
	}
	return order
}

func (s *OrderService) loadByIndex(ctx context.Context, indexKey string) (*models.Order, error) {
	orderID, err := s.store.Get(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	data, err := s.store.Get(ctx, models.PrefixOrder+string(orderID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			// Dangling index: the pointer was claimed but the document write
			// never landed. Answer with what the index proves.
			s.logger.Warn("Payment-intent index points at missing order document",
				zap.String("order_id", string(orderID)))
			return &models.Order{ID: string(orderID), Status: models.OrderStatusCompleted}, nil
		}
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &order, nil
}

// ListOrders returns every order, newest first. Unparseable documents are
// dropped. This is an O(n) fan-out; fine at this catalog's scale.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	keys, err := s.listAllKeys(ctx, models.PrefixOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	orders := s.fetchOrders(ctx, keys)
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp > orders[j].Timestamp
	})
	return orders, nil
}

// fetchOrders loads order documents with a bounded fan-out; key order does
// not matter here.
func (s *OrderService) fetchOrders(ctx context.Context, keys []string) []models.Order {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		orders = make([]models.Order, 0, len(keys))
		sem    = make(chan struct{}, 10)
	)

	for _, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()

			data, err := s.store.Get(ctx, key)
			if err != nil {
				return
			}
			var order models.Order
			if err := json.Unmarshal(data, &order); err != nil {
				s.logger.Warn("Discarding unparseable order document", zap.String("key", key))
				return
			}
			mu.Lock()
			orders = append(orders, order)
			mu.Unlock()
		}(key)
	}
	wg.Wait()
	return orders
}

func (s *OrderService) listAllKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	cursor := ""
	for {
		page, err := s.store.List(ctx, prefix, 100, cursor)
		if err != nil {
			return nil, err
		}
		keys = append(keys, page.Keys...)
		if page.Complete {
			return keys, nil
		}
		cursor = page.Cursor
	}
}

// LedgerTotals is the financial aggregate recomputed from the ledger.
// Financial figures never come from analytics counters.
type LedgerTotals struct {
	Revenue           float64
	Orders            int
	AverageOrderValue float64
	DailyRevenue      []models.DailyRevenue
}

// Totals recomputes revenue, order count, average order value, and a 7-day
// daily bucketing of orders by local day.
func (s *OrderService) Totals(ctx context.Context) (*LedgerTotals, error) {
	orders, err := s.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	totals := &LedgerTotals{Orders: len(orders)}
	for _, o := range orders {
		totals.Revenue += o.Amount
	}
	if totals.Orders > 0 {
		totals.AverageOrderValue = totals.Revenue / float64(totals.Orders)
	}

	now := time.Now()
	buckets := make([]models.DailyRevenue, 7)
	dayIndex := make(map[string]int, 7)
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		label := day.Format("Mon")
		buckets[6-i] = models.DailyRevenue{Day: label}
		dayIndex[day.Format("2006-01-02")] = 6 - i
	}
	for _, o := range orders {
		day := time.UnixMilli(o.Timestamp).Format("2006-01-02")
		if idx, ok := dayIndex[day]; ok {
			buckets[idx].Revenue += o.Amount
			buckets[idx].Orders++
		}
	}
	totals.DailyRevenue = buckets

	return totals, nil
}

func generateOrderID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("ORD-%s", raw[:8])
}
