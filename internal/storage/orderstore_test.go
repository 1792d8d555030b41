package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/box3-delivery/internal/ledger"
	"github.com/example/box3-delivery/internal/models"
)

var _ ledger.Client = (*MemoryStore)(nil)
var _ ledger.Client = (*PostgresStore)(nil)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.CreateOrder(ctx, models.NewOrder{CustomerName: "Alice", DeliveryFees: 0.5, DeliveryAddress: "123 Main St"})
	require.NoError(t, err)

	o, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, o.OrderDelivered)
	assert.False(t, o.FundReleased)
	assert.False(t, o.CreatedAt.IsZero())

	assert.ErrorIs(t, s.ReleaseFunds(ctx, id), ledger.ErrInvalidTransition)

	require.NoError(t, s.MarkDelivered(ctx, id))
	assert.ErrorIs(t, s.MarkDelivered(ctx, id), ledger.ErrInvalidTransition)

	require.NoError(t, s.ReleaseFunds(ctx, id))
	assert.ErrorIs(t, s.ReleaseFunds(ctx, id), ledger.ErrInvalidTransition)

	o, err = s.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, o.OrderDelivered)
	assert.True(t, o.FundReleased)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(models.Order{ID: 5, CustomerName: "Bob"})

	list, err := s.ListOrders(ctx)
	require.NoError(t, err)
	list[0].OrderDelivered = true

	o, err := s.GetOrder(ctx, 5)
	require.NoError(t, err)
	assert.False(t, o.OrderDelivered)

	id, err := s.CreateOrder(ctx, models.NewOrder{CustomerName: "next"})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), id)
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.GetOrder(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.ErrorIs(t, s.MarkDelivered(ctx, 1), ledger.ErrOrderNotFound)
	assert.ErrorIs(t, s.ReleaseFunds(ctx, 1), ledger.ErrOrderNotFound)
}
