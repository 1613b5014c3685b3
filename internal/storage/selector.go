package storage

import (
	"context"
	"fmt"

	"github.com/shoplens/origin-report/internal/models"
)

// SelectSource picks exactly one attribution source for a reporting run.
// Sources are inspected in the given priority order and the first one with
// any rows wins; the legacy custom-field scheme is the unconditional final
// fallback even with zero rows. The decision is recomputed on every report
// render, never cached.
func SelectSource(ctx context.Context, sources []AttributionSource, dr models.DateRange) (AttributionSource, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no attribution sources configured")
	}

	var fallback AttributionSource
	for _, src := range sources {
		if src.Scheme() == models.SchemeLegacyField {
			fallback = src
			continue
		}
		n, err := src.Available(ctx, dr)
		if err != nil {
			return nil, fmt.Errorf("failed to probe %s source: %w", src.Scheme(), err)
		}
		if n > 0 {
			return src, nil
		}
	}

	if fallback == nil {
		// No legacy source registered: fall back to the lowest-priority one.
		fallback = sources[len(sources)-1]
	}
	return fallback, nil
}

// DefaultPriority returns the scheme precedence used for source selection.
func DefaultPriority() []models.Scheme {
	return []models.Scheme{
		models.SchemeAttributionTable,
		models.SchemeOrderMeta,
		models.SchemePostMeta,
		models.SchemePYS,
		models.SchemeLegacyField,
	}
}
