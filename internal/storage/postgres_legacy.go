package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shoplens/origin-report/internal/attribution"
	"github.com/shoplens/origin-report/internal/models"
)

// =============================================
// LEGACY POST META
// =============================================

// PostMetaSource reads _utm_* keys from the classic posts/postmeta pair.
type PostMetaSource struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewPostMetaSource(pool *pgxpool.Pool, prefix string) *PostMetaSource {
	return &PostMetaSource{pool: pool, prefix: prefix}
}

func (s *PostMetaSource) Scheme() models.Scheme { return models.SchemePostMeta }

const postMetaKeys = `'_utm_source', '_utm_medium', '_utm_campaign', '_utm_term', '_utm_content'`

func (s *PostMetaSource) Available(ctx context.Context, dr models.DateRange) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(DISTINCT m.post_id)
		FROM %[1]spostmeta m
		JOIN %[1]sposts p ON p.id = m.post_id
		WHERE m.meta_key IN (%[2]s)
		  AND p.post_type = 'shop_order'
		  AND p.post_date_gmt >= $1 AND p.post_date_gmt < $2
	`, s.prefix, postMetaKeys), dr.Start, dr.End).Scan(&n)
	if isUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count post-meta rows: %w", err)
	}
	return n, nil
}

func (s *PostMetaSource) Fetch(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.AttributionRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT p.id, p.post_date_gmt,
		       COALESCE(MAX(CASE WHEN m.meta_key = '_utm_source' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_utm_medium' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_utm_campaign' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_utm_term' THEN m.meta_value END), ''),
		       COALESCE(MAX(CASE WHEN m.meta_key = '_utm_content' THEN m.meta_value END), '')
		FROM %[1]sposts p
		JOIN %[1]spostmeta m ON m.post_id = p.id
		WHERE m.meta_key IN (%[2]s)
		  AND p.post_type = 'shop_order'
		  AND p.post_date_gmt >= $1 AND p.post_date_gmt < $2
		  AND p.post_status NOT IN (%[3]s)
		GROUP BY p.id, p.post_date_gmt
		ORDER BY p.post_date_gmt
	`, s.prefix, postMetaKeys, statusList()), dr.Start, dr.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post-meta rows: %w", err)
	}
	defer rows.Close()

	var records []models.AttributionRecord
	for rows.Next() {
		var rec models.AttributionRecord
		if err := rows.Scan(&rec.OrderID, &rec.CreatedAt, &rec.UTMSource, &rec.UTMMedium,
			&rec.UTMCampaign, &rec.UTMTerm, &rec.UTMContent); err != nil {
			return nil, err
		}
		if filters.Match(&rec) {
			records = append(records, rec)
		}
	}
	return records, rows.Err()
}

// =============================================
// PYS ENRICHMENT BLOB
// =============================================

// PYSSource decodes the PixelYourSite enrichment blob stored per order.
type PYSSource struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewPYSSource(pool *pgxpool.Pool, prefix string) *PYSSource {
	return &PYSSource{pool: pool, prefix: prefix}
}

func (s *PYSSource) Scheme() models.Scheme { return models.SchemePYS }

func (s *PYSSource) Available(ctx context.Context, dr models.DateRange) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*)
		FROM %[1]spostmeta m
		JOIN %[1]sposts p ON p.id = m.post_id
		WHERE m.meta_key = 'pys_enrich_data'
		  AND p.post_type = 'shop_order'
		  AND p.post_date_gmt >= $1 AND p.post_date_gmt < $2
	`, s.prefix), dr.Start, dr.End).Scan(&n)
	if isUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count pys rows: %w", err)
	}
	return n, nil
}

func (s *PYSSource) Fetch(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.AttributionRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT p.id, p.post_date_gmt, COALESCE(m.meta_value, '')
		FROM %[1]sposts p
		JOIN %[1]spostmeta m ON m.post_id = p.id AND m.meta_key = 'pys_enrich_data'
		WHERE p.post_type = 'shop_order'
		  AND p.post_date_gmt >= $1 AND p.post_date_gmt < $2
		  AND p.post_status NOT IN (%[2]s)
		ORDER BY p.post_date_gmt
	`, s.prefix, statusList()), dr.Start, dr.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pys rows: %w", err)
	}
	defer rows.Close()

	var records []models.AttributionRecord
	for rows.Next() {
		var rec models.AttributionRecord
		var blob string
		if err := rows.Scan(&rec.OrderID, &rec.CreatedAt, &blob); err != nil {
			return nil, err
		}
		fields := attribution.ParsePYS(blob)
		rec.UTMSource = fields["utm_source"]
		rec.UTMMedium = fields["utm_medium"]
		rec.UTMCampaign = fields["utm_campaign"]
		rec.UTMTerm = fields["utm_term"]
		rec.UTMContent = fields["utm_content"]
		if rec.UTMSource == "" {
			rec.UTMSource = fields["pys_source"]
		}
		if filters.Match(&rec) {
			records = append(records, rec)
		}
	}
	return records, rows.Err()
}
