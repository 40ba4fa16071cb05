package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "hunter2"

func newTestManager(store kv.Store, devMode bool) *Manager {
	return NewManager(store, testPassword, 24*time.Hour, devMode)
}

func TestSessionLifecycle(t *testing.T) {
	store := kv.NewMemoryStore()
	m := newTestManager(store, false)
	ctx := context.Background()

	token, err := m.Login(ctx, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := m.Check(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Logout(ctx, token))

	ok, err = m.Check(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	// Logout is idempotent.
	assert.NoError(t, m.Logout(ctx, token))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	m := newTestManager(kv.NewMemoryStore(), false)

	_, err := m.Login(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsWhenPasswordUnconfigured(t *testing.T) {
	m := NewManager(kv.NewMemoryStore(), "", 24*time.Hour, false)

	_, err := m.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Now()
	store.Now = func() time.Time { return now }

	m := newTestManager(store, false)
	ctx := context.Background()

	token, err := m.Login(ctx, testPassword)
	require.NoError(t, err)

	ok, err := m.Check(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(25 * time.Hour)
	ok, err = m.Check(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckEmptyToken(t *testing.T) {
	m := newTestManager(kv.NewMemoryStore(), false)

	ok, err := m.Check(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

// brokenStore simulates an unreachable backend.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenStore) PutIfAbsent(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}
func (brokenStore) List(context.Context, string, int, string) (kv.ListResult, error) {
	return kv.ListResult{}, errors.New("connection refused")
}

func TestCheckFailsClosedInProduction(t *testing.T) {
	m := newTestManager(brokenStore{}, false)

	ok, err := m.Check(context.Background(), "some-token")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCheckFailsOpenInDevelopment(t *testing.T) {
	m := newTestManager(brokenStore{}, true)

	ok, err := m.Check(context.Background(), "some-token")
	require.NoError(t, err)
	assert.True(t, ok)
}
