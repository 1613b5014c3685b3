package report

import (
	"context"
	"testing"
	"time"

	"github.com/shoplens/origin-report/internal/attribution"
	"github.com/shoplens/origin-report/internal/config"
	"github.com/shoplens/origin-report/internal/models"
	"github.com/shoplens/origin-report/internal/storage"
	"go.uber.org/zap"
)

func testConfig() config.ReportConfig {
	return config.ReportConfig{
		UnitPrice:          19.00,
		FacebookAdjustment: 2,
		Timezone:           "UTC",
	}
}

func marchRange() models.DateRange {
	return models.DateRange{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func attRecord(orderID int64, origin string, created time.Time) models.AttributionRecord {
	return models.AttributionRecord{
		OrderID:    orderID,
		SourceType: models.SourceTypeUTM,
		Origin:     origin,
		CreatedAt:  created,
	}
}

func newTestAggregator(src storage.AttributionSource, orders storage.OrderStore, settings storage.SettingsStore) *Aggregator {
	if orders == nil {
		orders = storage.NewInMemoryOrderStore()
	}
	if settings == nil {
		settings = storage.NewInMemorySettingsStore()
	}
	return NewAggregator(
		[]storage.AttributionSource{src},
		orders,
		settings,
		nil,
		nil,
		testConfig(),
		time.UTC,
		zap.NewNop(),
		nil,
	)
}

func TestAggregateBucketsAndSorts(t *testing.T) {
	src := storage.NewInMemoryAttributionSource(models.SchemeAttributionTable)
	dr := marchRange()
	mid := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	src.Add(attRecord(1, "facebook ads", mid))
	src.Add(attRecord(2, "FB ADS", mid))
	src.Add(attRecord(3, "instagram", mid))
	src.Add(attRecord(4, "Direct", mid))
	src.Add(attRecord(5, "Direct", mid))
	src.Add(attRecord(6, "Direct", mid))

	agg := newTestAggregator(src, nil, nil)
	buckets, err := agg.Aggregate(context.Background(), dr, models.UTMFilters{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	// Two FB records plus the fixed adjustment beat three Direct.
	want := []models.OriginBucket{
		{Label: attribution.LabelFacebookAds, OrderCount: 4},
		{Label: "Direct", OrderCount: 3},
		{Label: attribution.LabelInstagram, OrderCount: 1},
	}
	if len(buckets) != len(want) {
		t.Fatalf("got %d buckets, want %d: %+v", len(buckets), len(want), buckets)
	}
	for i, w := range want {
		if buckets[i] != w {
			t.Errorf("bucket[%d] = %+v, want %+v", i, buckets[i], w)
		}
	}
}

func TestAggregateAdjustmentAppliedOnce(t *testing.T) {
	src := storage.NewInMemoryAttributionSource(models.SchemeAttributionTable)
	dr := marchRange()
	mid := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 10; i++ {
		src.Add(attRecord(i, "FB ADS", mid))
	}

	agg := newTestAggregator(src, nil, nil)
	buckets, err := agg.Aggregate(context.Background(), dr, models.UTMFilters{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 1 || buckets[0].OrderCount != 12 {
		t.Fatalf("got %+v, want single FB bucket of 12", buckets)
	}
}

func TestAggregateNoAdjustmentWithoutFacebookBucket(t *testing.T) {
	src := storage.NewInMemoryAttributionSource(models.SchemeAttributionTable)
	dr := marchRange()
	mid := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	src.Add(attRecord(1, "Direct", mid))
	src.Add(attRecord(2, "instagram story", mid))

	agg := newTestAggregator(src, nil, nil)
	buckets, err := agg.Aggregate(context.Background(), dr, models.UTMFilters{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	total := 0
	for _, b := range buckets {
		if b.Label == attribution.LabelFacebookAds {
			t.Errorf("unexpected Facebook bucket: %+v", b)
		}
		total += b.OrderCount
	}
	if total != 2 {
		t.Errorf("total count = %d, want 2", total)
	}
}

func TestAggregateEmptyRange(t *testing.T) {
	src := storage.NewInMemoryAttributionSource(models.SchemeAttributionTable)
	agg := newTestAggregator(src, nil, nil)

	buckets, err := agg.Aggregate(context.Background(), marchRange(), models.UTMFilters{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 0 {
		t.Errorf("got %d buckets, want 0", len(buckets))
	}
}

func TestAggregateAppliesUTMFilters(t *testing.T) {
	src := storage.NewInMemoryAttributionSource(models.SchemeAttributionTable)
	dr := marchRange()
	mid := time.Date(2024, 3, 7, 8, 0, 0, 0, time.UTC)

	src.Add(models.AttributionRecord{OrderID: 1, SourceType: models.SourceTypeUTM, UTMSource: "google", UTMMedium: "cpc", CreatedAt: mid})
	src.Add(models.AttributionRecord{OrderID: 2, SourceType: models.SourceTypeUTM, UTMSource: "newsletter", UTMMedium: "email", CreatedAt: mid})

	agg := newTestAggregator(src, nil, nil)
	buckets, err := agg.Aggregate(context.Background(), dr, models.UTMFilters{Sources: []string{"google"}})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1: %+v", len(buckets), buckets)
	}
	if buckets[0].OrderCount != 1 {
		t.Errorf("count = %d, want 1", buckets[0].OrderCount)
	}
}

func TestAggregateTodayPathIncludesUnattributedOrders(t *testing.T) {
	src := storage.NewInMemoryAttributionSource(models.SchemeAttributionTable)
	orders := storage.NewInMemoryOrderStore()
	settings := storage.NewInMemorySettingsStore()

	// Pin the reporting day so the test is stable regardless of wall clock.
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if err := settings.SetDateOverride(context.Background(), "2024-03-15"); err != nil {
		t.Fatalf("SetDateOverride: %v", err)
	}

	noon := day.Add(12 * time.Hour)
	orders.AddOrder(&models.Order{ID: 1, Status: "wc-processing", Origin: "FB ADS", CreatedAt: noon})
	orders.AddOrder(&models.Order{ID: 2, Status: "wc-completed", Origin: "", CreatedAt: noon})
	orders.AddOrder(&models.Order{ID: 3, Status: "wc-completed", Origin: "", CreatedAt: noon})

	agg := newTestAggregator(src, orders, settings)
	dr := models.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
	buckets, err := agg.Aggregate(context.Background(), dr, models.UTMFilters{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	got := make(map[string]int)
	for _, b := range buckets {
		got[b.Label] = b.OrderCount
	}
	if got[attribution.LabelFacebookAds] != 3 {
		t.Errorf("FB bucket = %d, want 3 (1 order + adjustment)", got[attribution.LabelFacebookAds])
	}
	if got[attribution.LabelDirect] != 2 {
		t.Errorf("Direct bucket = %d, want 2", got[attribution.LabelDirect])
	}
}

func TestAggregatePastRangeSkipsTodayPath(t *testing.T) {
	src := storage.NewInMemoryAttributionSource(models.SchemeAttributionTable)
	orders := storage.NewInMemoryOrderStore()
	settings := storage.NewInMemorySettingsStore()
	if err := settings.SetDateOverride(context.Background(), "2024-03-15"); err != nil {
		t.Fatalf("SetDateOverride: %v", err)
	}

	// An order on a past day must not leak into a past-range report via the
	// today path.
	past := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	orders.AddOrder(&models.Order{ID: 1, Status: "wc-completed", Origin: "Direct", CreatedAt: past})
	src.Add(attRecord(1, "instagram", past))

	agg := newTestAggregator(src, orders, settings)
	dr := models.DateRange{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	buckets, err := agg.Aggregate(context.Background(), dr, models.UTMFilters{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Label != attribution.LabelInstagram {
		t.Fatalf("got %+v, want single Instagram bucket from the attribution source", buckets)
	}
}

func TestAggregateTaggedOriginSurvivesPastRange(t *testing.T) {
	orders := storage.NewInMemoryOrderStore()
	settings := storage.NewInMemorySettingsStore()
	ctx := context.Background()

	// Pin the reporting day far away so the order's day goes through the
	// standard path, not the today path.
	if err := settings.SetDateOverride(ctx, "2020-01-01"); err != nil {
		t.Fatalf("SetDateOverride: %v", err)
	}

	// Tag an order the way the order hook does, then report on its day with
	// the server's source wiring: four empty schemes and the order-backed
	// legacy fallback.
	if err := orders.SetOrigin(ctx, 7, "UTM: facebook / paid"); err != nil {
		t.Fatalf("SetOrigin: %v", err)
	}

	sources := []storage.AttributionSource{
		storage.NewInMemoryAttributionSource(models.SchemeAttributionTable),
		storage.NewInMemoryAttributionSource(models.SchemeOrderMeta),
		storage.NewInMemoryAttributionSource(models.SchemePostMeta),
		storage.NewInMemoryAttributionSource(models.SchemePYS),
		storage.NewLegacyFieldSource(orders),
	}
	agg := NewAggregator(sources, orders, settings, nil, nil, testConfig(), time.UTC, zap.NewNop(), nil)

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dr := models.DateRange{Start: dayStart, End: dayStart.AddDate(0, 0, 1)}

	buckets, err := agg.Aggregate(ctx, dr, models.UTMFilters{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("got %+v, want the tagged order's bucket", buckets)
	}
	if buckets[0].Label != attribution.LabelFacebookAds || buckets[0].OrderCount != 3 {
		t.Errorf("bucket = %+v, want Sales from FB ADS / 3", buckets[0])
	}
}

func TestTimeSeries(t *testing.T) {
	counter := storage.NewInMemoryOriginCounter()
	ctx := context.Background()
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	for i := 0; i < 3; i++ {
		if err := counter.IncrOrigin(ctx, day1, "Sales from FB ADS"); err != nil {
			t.Fatalf("IncrOrigin: %v", err)
		}
	}
	if err := counter.IncrOrigin(ctx, day2, "Direct"); err != nil {
		t.Fatalf("IncrOrigin: %v", err)
	}

	agg := NewAggregator(nil, storage.NewInMemoryOrderStore(), storage.NewInMemorySettingsStore(),
		counter, nil, testConfig(), time.UTC, zap.NewNop(), nil)

	points, err := agg.TimeSeries(ctx, models.DateRange{Start: day1, End: day1.AddDate(0, 0, 2)})
	if err != nil {
		t.Fatalf("TimeSeries: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].Date != "2024-03-01" || points[0].Counts["Sales from FB ADS"] != 3 {
		t.Errorf("day 1 = %+v", points[0])
	}
	if points[1].Date != "2024-03-02" || points[1].Counts["Direct"] != 1 {
		t.Errorf("day 2 = %+v", points[1])
	}
}
