// Package stats summarizes order lists for the dashboards.
package stats

import "github.com/example/box3-delivery/internal/models"

// Aggregate reduces orders into dashboard counts. The three buckets follow
// status.Derive precedence so they always sum to Total. TotalValue counts
// only released orders.
func Aggregate(orders []models.Order) models.StatsSnapshot {
	var s models.StatsSnapshot
	for _, o := range orders {
		s.Total++
		switch {
		case o.FundReleased:
			s.Completed++
			s.TotalValue += o.DeliveryFees
		case o.OrderDelivered:
			s.Delivered++
		default:
			s.InTransit++
		}
	}
	return s
}
