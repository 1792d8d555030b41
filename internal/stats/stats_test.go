package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/status"
)

func TestAggregateEmpty(t *testing.T) {
	assert.Equal(t, models.StatsSnapshot{}, Aggregate(nil))
	assert.Equal(t, models.StatsSnapshot{}, Aggregate([]models.Order{}))
}

func TestAggregatePartitions(t *testing.T) {
	orders := []models.Order{
		{ID: 1, DeliveryFees: 0.5},
		{ID: 2, OrderDelivered: true, DeliveryFees: 0.7},
		{ID: 3, OrderDelivered: true, FundReleased: true, DeliveryFees: 0.6},
		{ID: 4, FundReleased: true, DeliveryFees: 0.25}, // inconsistent ledger record
		{ID: 5, DeliveryFees: 1},
	}

	s := Aggregate(orders)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.InTransit)
	assert.Equal(t, 1, s.Delivered)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, s.Total, s.InTransit+s.Delivered+s.Completed)
	assert.InDelta(t, 0.85, s.TotalValue, 1e-9)
}

func TestAggregateFollowsLifecycle(t *testing.T) {
	o := models.Order{ID: 9, DeliveryFees: 0.4}
	other := models.Order{ID: 10, OrderDelivered: true, FundReleased: true, DeliveryFees: 1}

	assert.Equal(t, status.LabelInTransit, status.Of(o).Label)
	s := Aggregate([]models.Order{o, other})
	assert.Equal(t, 1, s.InTransit)
	assert.InDelta(t, 1.0, s.TotalValue, 1e-9)

	o = o.MarkedDelivered()
	assert.Equal(t, status.LabelDelivered, status.Of(o).Label)
	s = Aggregate([]models.Order{o, other})
	assert.Equal(t, 0, s.InTransit)
	assert.Equal(t, 1, s.Delivered)
	assert.InDelta(t, 1.0, s.TotalValue, 1e-9)

	o = o.MarkedReleased()
	assert.Equal(t, status.LabelCompleted, status.Of(o).Label)
	s = Aggregate([]models.Order{o, other})
	assert.Equal(t, 0, s.Delivered)
	assert.Equal(t, 2, s.Completed)
	assert.InDelta(t, 1.4, s.TotalValue, 1e-9)
}
