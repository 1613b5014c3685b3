package storage

import (
	"context"
	"fmt"

	"github.com/shoplens/origin-report/internal/attribution"
	"github.com/shoplens/origin-report/internal/models"
)

// LegacyFieldSource serves the origin meta field the order hook writes. It
// reads through the OrderStore so the tagging write path and the reporting
// read path share one table and cannot drift. Always available as the final
// fallback: it returns every order in the range and treats a missing or
// empty value as Direct.
type LegacyFieldSource struct {
	orders OrderStore
}

func NewLegacyFieldSource(orders OrderStore) *LegacyFieldSource {
	return &LegacyFieldSource{orders: orders}
}

func (s *LegacyFieldSource) Scheme() models.Scheme { return models.SchemeLegacyField }

func (s *LegacyFieldSource) Available(ctx context.Context, dr models.DateRange) (int, error) {
	orders, err := s.orders.ListOrders(ctx, dr.Start, dr.End)
	if err != nil {
		return 0, fmt.Errorf("failed to count legacy origin rows: %w", err)
	}
	return len(orders), nil
}

func (s *LegacyFieldSource) Fetch(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.AttributionRecord, error) {
	orders, err := s.orders.ListOrders(ctx, dr.Start, dr.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch legacy origin rows: %w", err)
	}

	var records []models.AttributionRecord
	for _, o := range orders {
		rec := models.AttributionRecord{
			OrderID:   o.ID,
			Origin:    o.Origin,
			CreatedAt: o.CreatedAt,
		}
		if rec.Origin == "" {
			rec.Origin = attribution.LabelDirect
		}
		if filters.Match(&rec) {
			records = append(records, rec)
		}
	}
	return records, nil
}
