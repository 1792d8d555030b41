// Package ledger is the boundary to the authoritative record of orders and
// escrowed fees.
package ledger

import (
	"context"
	"errors"

	"github.com/example/box3-delivery/internal/models"
)

var (
	ErrLedgerCallFailed  = errors.New("ledger call failed")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order transition")
)

// Client is implemented by the on-chain RPC client and by the local stores.
// Both flag transitions are one-way; MarkDelivered on a delivered order and
// ReleaseFunds on an undelivered or released order fail with
// ErrInvalidTransition.
type Client interface {
	GetOrder(ctx context.Context, id uint64) (models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	CreateOrder(ctx context.Context, in models.NewOrder) (uint64, error)
	MarkDelivered(ctx context.Context, id uint64) error
	ReleaseFunds(ctx context.Context, id uint64) error
}
