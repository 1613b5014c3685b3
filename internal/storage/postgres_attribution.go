package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shoplens/origin-report/internal/models"
)

// Order statuses excluded from every reporting query.
var excludedStatuses = []string{"trash", "draft", "auto-draft", "wc-checkout-draft"}

func statusList() string {
	quoted := make([]string, len(excludedStatuses))
	for i, s := range excludedStatuses {
		quoted[i] = "'" + s + "'"
	}
	return strings.Join(quoted, ", ")
}

// isUndefinedTable reports whether the error is Postgres 42P01. A store that
// never ran a given plugin simply lacks that scheme's table; the selector
// treats it as an empty scheme rather than an error.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// hostOf extracts the normalized host from a referrer URL.
func hostOf(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(referrer, "www.")
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// =============================================
// DEDICATED ATTRIBUTION TABLE
// =============================================

// AttributionTableSource reads the dedicated order-attribution table.
type AttributionTableSource struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewAttributionTableSource(pool *pgxpool.Pool, prefix string) *AttributionTableSource {
	return &AttributionTableSource{pool: pool, prefix: prefix}
}

func (s *AttributionTableSource) Scheme() models.Scheme { return models.SchemeAttributionTable }

func (s *AttributionTableSource) Available(ctx context.Context, dr models.DateRange) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*) FROM %swc_order_attribution
		WHERE created_at >= $1 AND created_at < $2
	`, s.prefix), dr.Start, dr.End).Scan(&n)
	if isUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count attribution rows: %w", err)
	}
	return n, nil
}

func (s *AttributionTableSource) Fetch(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.AttributionRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT a.order_id, COALESCE(a.source_type, ''),
		       COALESCE(a.utm_source, ''), COALESCE(a.utm_medium, ''),
		       COALESCE(a.utm_campaign, ''), COALESCE(a.utm_term, ''),
		       COALESCE(a.utm_content, ''), COALESCE(a.referrer, ''),
		       a.created_at
		FROM %[1]swc_order_attribution a
		JOIN %[1]swc_orders o ON o.id = a.order_id
		WHERE a.created_at >= $1 AND a.created_at < $2
		  AND o.status NOT IN (%[2]s)
		ORDER BY a.created_at
	`, s.prefix, statusList()), dr.Start, dr.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attribution rows: %w", err)
	}
	defer rows.Close()

	var records []models.AttributionRecord
	for rows.Next() {
		var rec models.AttributionRecord
		var sourceType, referrer string
		if err := rows.Scan(&rec.OrderID, &sourceType, &rec.UTMSource, &rec.UTMMedium,
			&rec.UTMCampaign, &rec.UTMTerm, &rec.UTMContent, &referrer, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.SourceType = models.SourceType(sourceType)
		rec.ReferrerHost = hostOf(referrer)
		if filters.Match(&rec) {
			records = append(records, rec)
		}
	}
	return records, rows.Err()
}

// =============================================
// ORDER META TABLE (HPOS)
// =============================================

// OrderMetaSource pivots wc_order_attribution_* keys out of the HPOS
// order-meta table.
type OrderMetaSource struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewOrderMetaSource(pool *pgxpool.Pool, prefix string) *OrderMetaSource {
	return &OrderMetaSource{pool: pool, prefix: prefix}
}

func (s *OrderMetaSource) Scheme() models.Scheme { return models.SchemeOrderMeta }

const orderMetaKeys = `'_wc_order_attribution_source_type', '_wc_order_attribution_utm_source',
	'_wc_order_attribution_utm_medium', '_wc_order_attribution_utm_campaign',
	'_wc_order_attribution_utm_term', '_wc_order_attribution_utm_content',
	'_wc_order_attribution_referrer'`

func (s *OrderMetaSource) Available(ctx context.Context, dr models.DateRange) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(DISTINCT m.order_id)
		FROM %[1]swc_orders_meta m
		JOIN %[1]swc_orders o ON o.id = m.order_id
		WHERE m.meta_key IN (%[2]s)
		  AND o.date_created_gmt >= $1 AND o.date_created_gmt < $2
	`, s.prefix, orderMetaKeys), dr.Start, dr.End).Scan(&n)
	if isUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count order-meta rows: %w", err)
	}
	return n, nil
}

func (s *OrderMetaSource) Fetch(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.AttributionRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT o.id, o.date_created_gmt,
		       COALESCE(MAX(CASE WHEN m.meta_key = '_wc_order_attribution_source_type' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_wc_order_attribution_utm_source' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_wc_order_attribution_utm_medium' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_wc_order_attribution_utm_campaign' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_wc_order_attribution_utm_term' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_wc_order_attribution_utm_content' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_wc_order_attribution_referrer' THEN m.meta_value END), '')
		FROM %[1]swc_orders o
		JOIN %[1]swc_orders_meta m ON m.order_id = o.id
		WHERE m.meta_key IN (%[2]s)
		  AND o.date_created_gmt >= $1 AND o.date_created_gmt < $2
		  AND o.status NOT IN (%[3]s)
		GROUP BY o.id, o.date_created_gmt
		ORDER BY o.date_created_gmt
	`, s.prefix, orderMetaKeys, statusList()), dr.Start, dr.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order-meta rows: %w", err)
	}
	defer rows.Close()

	var records []models.AttributionRecord
	for rows.Next() {
		var rec models.AttributionRecord
		var sourceType, referrer string
		if err := rows.Scan(&rec.OrderID, &rec.CreatedAt, &sourceType, &rec.UTMSource,
			&rec.UTMMedium, &rec.UTMCampaign, &rec.UTMTerm, &rec.UTMContent, &referrer); err != nil {
			return nil, err
		}
		rec.SourceType = models.SourceType(sourceType)
		rec.ReferrerHost = hostOf(referrer)
		if filters.Match(&rec) {
			records = append(records, rec)
		}
	}
	return records, rows.Err()
}
