package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

const resetDeleteConcurrency = 10

// CleanupService holds the bulk key-space erasure routines. Each invocation
// is stateless: the only state is how many keys remain under a prefix,
// re-read from the store every call. Per-key delete failures are counted and
// reported, never propagated, so one bad key cannot abort a batch.
type CleanupService struct {
	store         kv.Store
	batchPageSize int
	resetMaxPages int
	resetMaxTime  time.Duration
	logger        *zap.Logger
}

func NewCleanupService(store kv.Store, batchPageSize, resetMaxPages, resetMaxMillis int) *CleanupService {
	return &CleanupService{
		store:         store,
		batchPageSize: batchPageSize,
		resetMaxPages: resetMaxPages,
		resetMaxTime:  time.Duration(resetMaxMillis) * time.Millisecond,
		logger:        util.GetLogger(),
	}
}

// BatchDeleteResult reports one page of deletion. HasMore tells the caller
// to invoke again; the admin UI drives the loop with its own delay so each
// invocation stays under the store's per-call budget.
type BatchDeleteResult struct {
	DeletedCount int  `json:"deletedCount"`
	FailedCount  int  `json:"failedCount"`
	HasMore      bool `json:"hasMore"`
}

// BatchDelete removes one page of keys under the prefix, then re-lists with
// limit 1 to cheaply decide whether keys remain.
func (s *CleanupService) BatchDelete(ctx context.Context, prefix string) (*BatchDeleteResult, error) {
	ctx, span := util.StartSpan(ctx, "CleanupService.BatchDelete")
	defer span.End()

	start := time.Now()
	defer func() { util.BulkDeleteDuration.Observe(time.Since(start).Seconds()) }()

	page, err := s.store.List(ctx, prefix, s.batchPageSize, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	result := &BatchDeleteResult{}
	for _, key := range page.Keys {
		if err := s.store.Delete(ctx, key); err != nil {
			result.FailedCount++
			s.logger.Warn("Failed to delete key in batch", zap.String("key", key), zap.Error(err))
			continue
		}
		result.DeletedCount++
	}
	util.KeysDeletedTotal.WithLabelValues("batch").Add(float64(result.DeletedCount))

	remaining, err := s.store.List(ctx, prefix, 1, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	result.HasMore = len(remaining.Keys) > 0

	s.logger.Info("Batch delete page completed",
		zap.String("prefix", prefix),
		zap.Int("deleted", result.DeletedCount),
		zap.Int("failed", result.FailedCount),
		zap.Bool("has_more", result.HasMore))
	return result, nil
}

// ResetResult reports a full-reset invocation. Complete is false when an
// iteration or wall-clock guard tripped; the operator re-invokes to finish.
type ResetResult struct {
	DeletedCount int  `json:"deletedCount"`
	FailedCount  int  `json:"failedCount"`
	Complete     bool `json:"complete"`
}

// resetPrefixes is everything FullReset wipes: orders, the payment-intent
// index, legacy orders, and analytics state.
var resetPrefixes = []string{
	models.PrefixOrder,
	models.PrefixPaymentIntent,
	models.PrefixLegacyOrder,
	models.PrefixAnalytics,
}

// FullReset deletes all keys under the known prefixes with cursor-paginated
// listing and small concurrent delete batches. This is the one routine that
// loops server-side across pages, so it self-limits on page count and wall
// clock and reports partial completion instead of risking a hard timeout.
func (s *CleanupService) FullReset(ctx context.Context) (*ResetResult, error) {
	ctx, span := util.StartSpan(ctx, "CleanupService.FullReset")
	defer span.End()

	start := time.Now()
	defer func() { util.BulkDeleteDuration.Observe(time.Since(start).Seconds()) }()

	var deleted, failed int64
	pages := 0

	for _, prefix := range resetPrefixes {
		cursor := ""
		for {
			if pages >= s.resetMaxPages || time.Since(start) >= s.resetMaxTime {
				s.logger.Warn("Full reset guard tripped, returning partial completion",
					zap.Int("pages", pages),
					zap.Int64("deleted", deleted))
				return s.resetResult(deleted, failed, false), nil
			}

			page, err := s.store.List(ctx, prefix, s.batchPageSize, cursor)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			pages++

			s.deleteConcurrently(ctx, page.Keys, &deleted, &failed)

			if page.Complete {
				break
			}
			cursor = page.Cursor
		}
	}

	s.logger.Info("Full reset completed",
		zap.Int64("deleted", deleted),
		zap.Int64("failed", failed))
	return s.resetResult(deleted, failed, true), nil
}

// deleteConcurrently fans deletes out in batches of resetDeleteConcurrency.
func (s *CleanupService) deleteConcurrently(ctx context.Context, keys []string, deleted, failed *int64) {
	sem := make(chan struct{}, resetDeleteConcurrency)
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.store.Delete(ctx, key); err != nil {
				atomic.AddInt64(failed, 1)
				s.logger.Warn("Failed to delete key during reset", zap.String("key", key), zap.Error(err))
				return
			}
			atomic.AddInt64(deleted, 1)
		}(key)
	}
	wg.Wait()
}

func (s *CleanupService) resetResult(deleted, failed int64, complete bool) *ResetResult {
	util.KeysDeletedTotal.WithLabelValues("reset").Add(float64(deleted))
	return &ResetResult{
		DeletedCount: int(deleted),
		FailedCount:  int(failed),
		Complete:     complete,
	}
}

// CleanupResult reports a selective-retention pass.
type CleanupResult struct {
	DeletedCount int `json:"deletedCount"`
	KeptCount    int `json:"keptCount"`
}

// SelectiveCleanup deletes every order key that does not contain the keep
// substring. The match is deliberately blunt (anywhere in the key, not just
// the order id); this exists for manual incident cleanup, not routine use.
func (s *CleanupService) SelectiveCleanup(ctx context.Context, keep string) (*CleanupResult, error) {
	ctx, span := util.StartSpan(ctx, "CleanupService.SelectiveCleanup")
	defer span.End()

	if keep == "" {
		return nil, fmt.Errorf("%w: keep", ErrMissingField)
	}

	// Collect keys up front; deleting while paginating shifts cursors.
	var keys []string
	cursor := ""
	for {
		page, err := s.store.List(ctx, models.PrefixOrder, s.batchPageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		keys = append(keys, page.Keys...)
		if page.Complete {
			break
		}
		cursor = page.Cursor
	}

	result := &CleanupResult{}
	for _, key := range keys {
		if strings.Contains(key, keep) {
			result.KeptCount++
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete key during cleanup", zap.String("key", key), zap.Error(err))
			continue
		}
		result.DeletedCount++
	}

	util.KeysDeletedTotal.WithLabelValues("selective").Add(float64(result.DeletedCount))
	s.logger.Info("Selective cleanup completed",
		zap.String("keep", keep),
		zap.Int("deleted", result.DeletedCount),
		zap.Int("kept", result.KeptCount))
	return result, nil
}
