package report

import (
	"context"
	"fmt"

	"github.com/shoplens/origin-report/internal/attribution"
	"github.com/shoplens/origin-report/internal/models"
)

// ROAS derives ad-spend efficiency figures from an aggregation run. Only the
// Facebook Ads bucket contributes to sales; the Instagram bucket is shown
// alongside but never included in the money math.
func (a *Aggregator) ROAS(ctx context.Context, dr models.DateRange, filters models.UTMFilters) (*models.ROASResult, error) {
	buckets, err := a.Aggregate(ctx, dr, filters)
	if err != nil {
		return nil, err
	}

	var spend float64
	if a.settings != nil {
		spend, err = a.settings.GetAdSpend(ctx, dr.Key())
		if err != nil {
			return nil, fmt.Errorf("failed to read ad spend: %w", err)
		}
	}

	result := calculateROAS(buckets, spend, a.cfg.UnitPrice)
	if a.metrics != nil {
		a.metrics.RecordROAS()
	}
	return result, nil
}

// calculateROAS computes the derived figures with explicit zero guards so a
// missing spend or an empty Facebook bucket never divides by zero.
func calculateROAS(buckets []models.OriginBucket, adSpend, unitPrice float64) *models.ROASResult {
	result := &models.ROASResult{AdSpend: adSpend}

	for _, b := range buckets {
		switch b.Label {
		case attribution.LabelFacebookAds:
			result.FacebookOrders = b.OrderCount
		case attribution.LabelInstagram:
			result.InstagramOrders = b.OrderCount
		}
	}

	if result.FacebookOrders == 0 {
		return result
	}

	result.HasFacebookSales = true
	result.FacebookSales = float64(result.FacebookOrders) * unitPrice

	// Only the two spend ratios need the zero guard. The profit figures are
	// defined for zero spend too: each order then costs nothing, so profit
	// per order is the full unit price and the margin is 100%.
	if adSpend > 0 {
		result.ROAS = result.FacebookSales / adSpend
		result.CostPerOrder = adSpend / float64(result.FacebookOrders)
	}
	result.ProfitPerOrder = unitPrice - result.CostPerOrder
	result.TotalProfit = result.FacebookSales - adSpend
	if result.FacebookSales > 0 {
		result.ProfitMargin = result.TotalProfit / result.FacebookSales * 100
	}

	return result
}
