package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shoplens/origin-report/internal/models"
)

func testRange() models.DateRange {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return models.DateRange{Start: start, End: start.AddDate(0, 1, 0)}
}

func record(orderID int64, at time.Time) models.AttributionRecord {
	return models.AttributionRecord{OrderID: orderID, UTMSource: "x", CreatedAt: at}
}

func buildSources(populated map[models.Scheme]bool) []AttributionSource {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sources := make([]AttributionSource, 0, 5)
	for _, scheme := range DefaultPriority() {
		src := NewInMemoryAttributionSource(scheme)
		if populated[scheme] {
			src.Add(record(1, at))
		}
		sources = append(sources, src)
	}
	return sources
}

func TestSelectSourcePriority(t *testing.T) {
	tests := []struct {
		name      string
		populated map[models.Scheme]bool
		want      models.Scheme
	}{
		{
			name: "attribution table wins when populated",
			populated: map[models.Scheme]bool{
				models.SchemeAttributionTable: true,
				models.SchemeOrderMeta:        true,
				models.SchemeLegacyField:      true,
			},
			want: models.SchemeAttributionTable,
		},
		{
			name: "order meta next",
			populated: map[models.Scheme]bool{
				models.SchemeOrderMeta: true,
				models.SchemePYS:       true,
			},
			want: models.SchemeOrderMeta,
		},
		{
			name: "post meta before pys",
			populated: map[models.Scheme]bool{
				models.SchemePostMeta: true,
				models.SchemePYS:      true,
			},
			want: models.SchemePostMeta,
		},
		{
			name:      "pys when only pys has rows",
			populated: map[models.Scheme]bool{models.SchemePYS: true},
			want:      models.SchemePYS,
		},
		{
			name:      "legacy field is the empty-store fallback",
			populated: map[models.Scheme]bool{},
			want:      models.SchemeLegacyField,
		},
		{
			name: "populated legacy field does not jump the queue",
			populated: map[models.Scheme]bool{
				models.SchemeLegacyField: true,
				models.SchemePYS:         true,
			},
			want: models.SchemePYS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := SelectSource(context.Background(), buildSources(tt.populated), testRange())
			if err != nil {
				t.Fatalf("SelectSource failed: %v", err)
			}
			if src.Scheme() != tt.want {
				t.Errorf("selected %s, want %s", src.Scheme(), tt.want)
			}
		})
	}
}

func TestSelectSourceIgnoresRowsOutsideRange(t *testing.T) {
	src := NewInMemoryAttributionSource(models.SchemeAttributionTable)
	src.Add(record(1, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))

	legacy := NewInMemoryAttributionSource(models.SchemeLegacyField)

	got, err := SelectSource(context.Background(), []AttributionSource{src, legacy}, testRange())
	if err != nil {
		t.Fatalf("SelectSource failed: %v", err)
	}
	if got.Scheme() != models.SchemeLegacyField {
		t.Errorf("selected %s, want legacy fallback for out-of-range rows", got.Scheme())
	}
}

func TestSelectSourceNoSources(t *testing.T) {
	if _, err := SelectSource(context.Background(), nil, testRange()); err == nil {
		t.Fatal("expected error for empty source list")
	}
}
