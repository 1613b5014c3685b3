package storage

import (
	"context"
	"time"

	"github.com/shoplens/origin-report/internal/models"
)

// =============================================
// ATTRIBUTION SOURCES
// =============================================

// AttributionSource yields raw attribution rows for one storage scheme.
// Implementations are responsible for excluding trashed and draft orders.
type AttributionSource interface {
	Scheme() models.Scheme

	// Available returns the number of rows the scheme holds for the range.
	// The selector uses it to pick the first populated scheme.
	Available(ctx context.Context, dr models.DateRange) (int, error)

	// Fetch returns the scheme's attribution records for the range, with
	// per-dimension UTM allow-lists applied.
	Fetch(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.AttributionRecord, error)
}

// =============================================
// ORDER STORE
// =============================================

// OrderStore covers the order-side needs of the reporting core.
type OrderStore interface {
	// SetOrigin persists a single origin string against an order.
	// Last value wins when called twice for the same order.
	SetOrigin(ctx context.Context, orderID int64, origin string) error

	// GetOrigin returns the stored origin for an order, empty when absent.
	GetOrigin(ctx context.Context, orderID int64) (string, error)

	// ListOrders returns ALL orders created in [start, end), regardless of
	// whether any attribution data exists for them. Trashed and draft
	// orders are excluded.
	ListOrders(ctx context.Context, start, end time.Time) ([]*models.Order, error)
}

// =============================================
// SETTINGS STORE
// =============================================

// SettingsStore is the key-value configuration port: the manual date
// override and the ad-spend map.
type SettingsStore interface {
	GetDateOverride(ctx context.Context) (string, error)
	SetDateOverride(ctx context.Context, value string) error

	GetAdSpend(ctx context.Context, rangeKey string) (float64, error)
	SetAdSpend(ctx context.Context, rangeKey string, amount float64) error
	ListAdSpend(ctx context.Context) ([]models.AdSpendEntry, error)
}

// =============================================
// TOUCH LOG
// =============================================

// TouchSink receives raw first-touch visit events.
type TouchSink interface {
	SaveTouch(ctx context.Context, ev *models.TouchEvent) error
	VisitsByOrigin(ctx context.Context, dr models.DateRange) ([]models.VisitBucket, error)
}

// =============================================
// ORIGIN COUNTERS
// =============================================

// OriginCounter tracks per-day order counts by origin label, written when
// orders are tagged and read by the time-series report.
type OriginCounter interface {
	IncrOrigin(ctx context.Context, day time.Time, label string) error
	DayCounts(ctx context.Context, day time.Time) (map[string]int64, error)
}
