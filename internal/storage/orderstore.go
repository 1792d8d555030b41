package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/box3-delivery/internal/ledger"
	"github.com/example/box3-delivery/internal/models"
)

// MemoryStore is a ledger.Client for local runs and tests. It hands out
// copies, so callers never share an Order with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uint64]models.Order
	nextID uint64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uint64]models.Order), nextID: 1, now: time.Now}
}

func (m *MemoryStore) GetOrder(_ context.Context, id uint64) (models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %d", ledger.ErrOrderNotFound, id)
	}
	return o, nil
}

func (m *MemoryStore) ListOrders(_ context.Context) ([]models.Order, error) {
	m.mu.RLock()
	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, in models.NewOrder) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.orders[id] = fromNewOrder(id, in, m.now())
	return id, nil
}

func (m *MemoryStore) MarkDelivered(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrOrderNotFound, id)
	}
	if o.OrderDelivered {
		return fmt.Errorf("%w: order %d already delivered", ledger.ErrInvalidTransition, id)
	}
	m.orders[id] = o.MarkedDelivered()
	return nil
}

func (m *MemoryStore) ReleaseFunds(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrOrderNotFound, id)
	}
	if !o.OrderDelivered {
		return fmt.Errorf("%w: order %d not delivered", ledger.ErrInvalidTransition, id)
	}
	if o.FundReleased {
		return fmt.Errorf("%w: order %d funds already released", ledger.ErrInvalidTransition, id)
	}
	m.orders[id] = o.MarkedReleased()
	return nil
}

// Put stores o as-is. It exists for seeding and does not enforce transitions.
func (m *MemoryStore) Put(o models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	if o.ID >= m.nextID {
		m.nextID = o.ID + 1
	}
}

func fromNewOrder(id uint64, in models.NewOrder, at time.Time) models.Order {
	return models.Order{
		ID:                  id,
		CustomerName:        in.CustomerName,
		CustomerWallet:      in.CustomerWallet,
		DeliveryAgentWallet: in.DeliveryAgentWallet,
		CustomerRFID:        in.CustomerRFID,
		DeliveryAgentRFID:   in.DeliveryAgentRFID,
		DeliveryFees:        in.DeliveryFees,
		Content:             in.Content,
		Description:         in.Description,
		DeliveryAddress:     in.DeliveryAddress,
		DeliveryLatitude:    in.DeliveryLatitude,
		DeliveryLongitude:   in.DeliveryLongitude,
		Metadata:            in.Metadata,
		CID:                 in.CID,
		EscrowRef:           in.EscrowRef,
		CreatedAt:           at,
	}
}
