package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shoplens/origin-report/internal/models"
)

// ClickHouseTouchSink writes raw first-touch visits to the touch_events
// table and serves the visits-by-origin breakdown.
//
// CREATE TABLE touch_events (
//     id          String,
//     visitor_id  String,
//     origin      String,
//     landing_url String,
//     referrer    String,
//     ip          String,
//     user_agent  String,
//     geo_country String,
//     geo_city    String,
//     timestamp   DateTime
// ) ENGINE = MergeTree ORDER BY (timestamp, visitor_id)
type ClickHouseTouchSink struct {
	conn driver.Conn
}

func NewClickHouseTouchSink(conn driver.Conn) *ClickHouseTouchSink {
	return &ClickHouseTouchSink{conn: conn}
}

// SaveTouch appends one touch event.
func (s *ClickHouseTouchSink) SaveTouch(ctx context.Context, ev *models.TouchEvent) error {
	if ev == nil {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO touch_events
		(id, visitor_id, origin, landing_url, referrer, ip, user_agent, geo_country, geo_city, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare touch batch: %w", err)
	}
	if err := batch.Append(
		ev.ID, ev.VisitorID, ev.Origin, ev.LandingURL, ev.Referrer,
		ev.IP, ev.UserAgent, ev.GeoCountry, ev.GeoCity, ev.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to append touch event: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to save touch event: %w", err)
	}
	return nil
}

// VisitsByOrigin aggregates raw visits per origin label for the range.
func (s *ClickHouseTouchSink) VisitsByOrigin(ctx context.Context, dr models.DateRange) ([]models.VisitBucket, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT origin, count() AS visits
		FROM touch_events
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY origin
		ORDER BY visits DESC
	`, dr.Start, dr.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits by origin: %w", err)
	}
	defer rows.Close()

	var buckets []models.VisitBucket
	for rows.Next() {
		var b models.VisitBucket
		var visits uint64
		if err := rows.Scan(&b.Origin, &visits); err != nil {
			return nil, err
		}
		b.Visits = int64(visits)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
