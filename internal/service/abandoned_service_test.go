package service

import (
	"context"
	"testing"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	to      []string
	subject string
	html    string
	err     error
}

func (s *recordingSender) Send(_ context.Context, to, subject, html string) error {
	if s.err != nil {
		return s.err
	}
	s.to = append(s.to, to)
	s.subject = subject
	s.html = html
	return nil
}

var testCart = []models.CartItem{
	{Name: "CAD License", Price: 75.19, Quantity: 1},
}

func TestRecordAndList(t *testing.T) {
	svc := NewAbandonedService(kv.NewMemoryStore(), nil)
	ctx := context.Background()

	id1, err := svc.Record(ctx, "a@b.com", 75.19, testCart, "payment")
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	time.Sleep(2 * time.Millisecond) // distinct time-prefixed keys

	id2, err := svc.Record(ctx, "c@d.com", 20.00, nil, "email")
	require.NoError(t, err)

	events, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first, with cartValue mirrored into the display field.
	assert.Equal(t, id2, events[0].ID)
	assert.Equal(t, 20.00, events[0].Value)
	assert.Equal(t, id1, events[1].ID)
	assert.Equal(t, models.AbandonedStatusOpen, events[1].Status)
	assert.Equal(t, "payment", events[1].Stage)
}

func TestSendRecoveryEmailMarksStatus(t *testing.T) {
	store := kv.NewMemoryStore()
	sender := &recordingSender{}
	svc := NewAbandonedService(store, sender)
	ctx := context.Background()

	id, err := svc.Record(ctx, "a@b.com", 75.19, testCart, "payment")
	require.NoError(t, err)

	err = svc.SendRecoveryEmail(ctx, "a@b.com", id, testCart, "https://store.example/checkout")
	require.NoError(t, err)

	require.Equal(t, []string{"a@b.com"}, sender.to)
	assert.Contains(t, sender.html, "CAD License")
	assert.Contains(t, sender.html, "https://store.example/checkout")
	assert.Contains(t, sender.html, "COMEBACK10")

	events, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AbandonedStatusEmailSent, events[0].Status)
}

func TestSendRecoveryEmailWithoutProvider(t *testing.T) {
	svc := NewAbandonedService(kv.NewMemoryStore(), nil)

	err := svc.SendRecoveryEmail(context.Background(), "a@b.com", "", nil, "")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestSendRecoveryEmailRequiresAddress(t *testing.T) {
	svc := NewAbandonedService(kv.NewMemoryStore(), &recordingSender{})

	err := svc.SendRecoveryEmail(context.Background(), "", "", nil, "")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestSendFailureDoesNotMarkStatus(t *testing.T) {
	store := kv.NewMemoryStore()
	sender := &recordingSender{err: ErrUpstreamRejected}
	svc := NewAbandonedService(store, sender)
	ctx := context.Background()

	id, err := svc.Record(ctx, "a@b.com", 75.19, testCart, "payment")
	require.NoError(t, err)

	err = svc.SendRecoveryEmail(ctx, "a@b.com", id, testCart, "")
	assert.Error(t, err)

	events, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AbandonedStatusOpen, events[0].Status)
}
