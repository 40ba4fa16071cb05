package service

import (
	"context"
	"fmt"
	"testing"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrders(t *testing.T, store *kv.MemoryStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%sORD-%08d", models.PrefixOrder, i)
		require.NoError(t, store.Put(ctx, key, []byte("{}"), 0))
	}
}

func TestBatchDeleteConvergence(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := NewCleanupService(store, 5, 100, 25000)
	ctx := context.Background()

	const total = 12 // page size 5 -> 3 calls
	seedOrders(t, store, total)

	calls := 0
	deleted := 0
	for {
		result, err := svc.BatchDelete(ctx, models.PrefixOrder)
		require.NoError(t, err)
		calls++
		deleted += result.DeletedCount
		assert.Zero(t, result.FailedCount)
		if !result.HasMore {
			break
		}
		require.Less(t, calls, 10, "batch delete did not converge")
	}

	assert.Equal(t, 3, calls)
	assert.Equal(t, total, deleted)
	assert.Zero(t, store.Len())
}

func TestBatchDeleteEmptyPrefix(t *testing.T) {
	svc := NewCleanupService(kv.NewMemoryStore(), 5, 100, 25000)

	result, err := svc.BatchDelete(context.Background(), models.PrefixOrder)
	require.NoError(t, err)
	assert.Zero(t, result.DeletedCount)
	assert.False(t, result.HasMore)
}

func TestFullResetWipesKnownPrefixes(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := NewCleanupService(store, 5, 100, 25000)
	ctx := context.Background()

	seedOrders(t, store, 7)
	require.NoError(t, store.Put(ctx, models.PrefixPaymentIntent+"pi_1", []byte("ORD-1"), 0))
	require.NoError(t, store.Put(ctx, models.KeyVisits, []byte("42"), 0))
	// Chat state is not covered by a reset.
	require.NoError(t, store.Put(ctx, models.PrefixChatSession+"v1", []byte("{}"), 0))

	result, err := svc.FullReset(ctx)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Equal(t, 9, result.DeletedCount)
	assert.Zero(t, result.FailedCount)
	assert.Equal(t, 1, store.Len())
}

func TestFullResetPageGuardReportsPartial(t *testing.T) {
	store := kv.NewMemoryStore()
	// One page allowed: the guard must trip before the keyspace is empty.
	svc := NewCleanupService(store, 5, 1, 25000)
	ctx := context.Background()

	seedOrders(t, store, 20)

	result, err := svc.FullReset(ctx)
	require.NoError(t, err)
	assert.False(t, result.Complete)
	assert.Equal(t, 5, result.DeletedCount)
	assert.Equal(t, 15, store.Len())
}

func TestSelectiveCleanupKeepsMatchingKeys(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := NewCleanupService(store, 5, 100, 25000)
	ctx := context.Background()

	seedOrders(t, store, 4)
	keep := fmt.Sprintf("%sORD-%08d", models.PrefixOrder, 2)

	result, err := svc.SelectiveCleanup(ctx, "ORD-00000002")
	require.NoError(t, err)
	assert.Equal(t, 3, result.DeletedCount)
	assert.Equal(t, 1, result.KeptCount)

	_, err = store.Get(ctx, keep)
	assert.NoError(t, err)
}

func TestSelectiveCleanupRequiresKeep(t *testing.T) {
	svc := NewCleanupService(kv.NewMemoryStore(), 5, 100, 25000)

	_, err := svc.SelectiveCleanup(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingField)
}
