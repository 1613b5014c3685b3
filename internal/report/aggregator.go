package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shoplens/origin-report/internal/attribution"
	"github.com/shoplens/origin-report/internal/config"
	"github.com/shoplens/origin-report/internal/metrics"
	"github.com/shoplens/origin-report/internal/models"
	"github.com/shoplens/origin-report/internal/storage"
	"go.uber.org/zap"
)

// Aggregator buckets orders by normalized origin over a date range.
type Aggregator struct {
	sources  []storage.AttributionSource
	orders   storage.OrderStore
	settings storage.SettingsStore
	counter  storage.OriginCounter
	cache    *storage.ReportCache
	cfg      config.ReportConfig
	loc      *time.Location
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewAggregator creates a new aggregator. counter, cache and metrics may be
// nil; the corresponding features degrade quietly.
func NewAggregator(
	sources []storage.AttributionSource,
	orders storage.OrderStore,
	settings storage.SettingsStore,
	counter storage.OriginCounter,
	cache *storage.ReportCache,
	cfg config.ReportConfig,
	loc *time.Location,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		sources:  sources,
		orders:   orders,
		settings: settings,
		counter:  counter,
		cache:    cache,
		cfg:      cfg,
		loc:      loc,
		logger:   logger,
		metrics:  m,
	}
}

// Aggregate buckets the range's orders by normalized origin, sorted
// descending by count. A range with no matching records yields an empty
// slice, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.OriginBucket, error) {
	start := time.Now()

	if dr.IsDay(a.reportingDay(ctx)) {
		buckets, err := a.aggregateToday(ctx, dr)
		if a.metrics != nil {
			a.metrics.RecordReportRun("today", "", time.Since(start))
		}
		return buckets, err
	}

	if cached, err := a.cache.Get(ctx, dr, filters); err == nil && cached != nil {
		if a.metrics != nil {
			a.metrics.RecordCacheOutcome(true)
		}
		return cached, nil
	}
	if a.metrics != nil && a.cache != nil {
		a.metrics.RecordCacheOutcome(false)
	}

	src, err := storage.SelectSource(ctx, a.sources, dr)
	if err != nil {
		return nil, fmt.Errorf("failed to select attribution source: %w", err)
	}

	records, err := src.Fetch(ctx, dr, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attribution records: %w", err)
	}

	labels := make([]string, 0, len(records))
	for i := range records {
		labels = append(labels, attribution.RecordLabel(&records[i]))
	}
	buckets := bucketize(labels, a.cfg.FacebookAdjustment)

	if a.logger != nil {
		a.logger.Debug("aggregation run",
			zap.String("scheme", string(src.Scheme())),
			zap.String("range", dr.Key()),
			zap.Int("records", len(records)),
			zap.Int("buckets", len(buckets)),
		)
	}
	if a.metrics != nil {
		a.metrics.RecordReportRun("standard", string(src.Scheme()), time.Since(start))
	}

	if err := a.cache.Set(ctx, dr, filters, buckets); err != nil && a.logger != nil {
		a.logger.Warn("failed to cache report", zap.Error(err))
	}

	return buckets, nil
}

// aggregateToday enumerates ALL of today's orders rather than range-querying
// attribution rows, so orders without any attribution record surface as
// Direct instead of vanishing. UTM filters do not apply here: the stored
// origin string carries no per-dimension fields to filter on.
func (a *Aggregator) aggregateToday(ctx context.Context, dr models.DateRange) ([]models.OriginBucket, error) {
	dayStart := time.Date(dr.Start.Year(), dr.Start.Month(), dr.Start.Day(), 0, 0, 0, 0, a.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	orders, err := a.orders.ListOrders(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list today's orders: %w", err)
	}

	labels := make([]string, 0, len(orders))
	for _, o := range orders {
		label := o.Origin
		if label == "" {
			label = attribution.LabelDirect
		}
		labels = append(labels, label)
	}
	return bucketize(labels, a.cfg.FacebookAdjustment), nil
}

// bucketize normalizes raw labels, groups them, applies the Facebook-bucket
// adjustment exactly once and sorts descending by count.
func bucketize(rawLabels []string, fbAdjustment int) []models.OriginBucket {
	counts := make(map[string]int)
	for _, raw := range rawLabels {
		counts[attribution.Normalize(raw)]++
	}

	// Deliberate business calibration: a nonzero FB ADS bucket is bumped by
	// a fixed constant after grouping, before sorting.
	if counts[attribution.LabelFacebookAds] > 0 {
		counts[attribution.LabelFacebookAds] += fbAdjustment
	}

	buckets := make([]models.OriginBucket, 0, len(counts))
	for label, n := range counts {
		buckets = append(buckets, models.OriginBucket{Label: label, OrderCount: n})
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].OrderCount != buckets[j].OrderCount {
			return buckets[i].OrderCount > buckets[j].OrderCount
		}
		return buckets[i].Label < buckets[j].Label
	})
	return buckets
}

// reportingDay resolves the current reporting day, honoring the manual date
// override when set.
func (a *Aggregator) reportingDay(ctx context.Context) time.Time {
	if a.settings != nil {
		override, err := a.settings.GetDateOverride(ctx)
		if err == nil && override != "" {
			if day, perr := time.ParseInLocation("2006-01-02", override, a.loc); perr == nil {
				return day
			}
		}
	}
	return time.Now().In(a.loc)
}

// TimeSeries returns per-day origin counts from the order-tagging counters.
func (a *Aggregator) TimeSeries(ctx context.Context, dr models.DateRange) ([]models.TimeSeriesPoint, error) {
	if a.counter == nil {
		return []models.TimeSeriesPoint{}, nil
	}

	var points []models.TimeSeriesPoint
	for d := dr.Start; d.Before(dr.End); d = d.AddDate(0, 0, 1) {
		counts, err := a.counter.DayCounts(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("failed to read day counts: %w", err)
		}
		points = append(points, models.TimeSeriesPoint{
			Date:   d.Format("2006-01-02"),
			Counts: counts,
		})
	}
	return points, nil
}
