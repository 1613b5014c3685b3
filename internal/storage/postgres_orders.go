package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shoplens/origin-report/internal/models"
)

const originMetaKey = "_billing_origin"

// PostgresOrderStore implements OrderStore over the HPOS order tables.
type PostgresOrderStore struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewPostgresOrderStore(pool *pgxpool.Pool, prefix string) *PostgresOrderStore {
	return &PostgresOrderStore{pool: pool, prefix: prefix}
}

// SetOrigin persists the origin label as order meta. Meta tables carry no
// uniqueness constraint on (order_id, meta_key), so update-then-insert keeps
// the write idempotent with last-value-wins semantics.
func (s *PostgresOrderStore) SetOrigin(ctx context.Context, orderID int64, origin string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %swc_orders_meta SET meta_value = $2
		WHERE order_id = $1 AND meta_key = $3
	`, s.prefix), orderID, origin, originMetaKey)
	if err != nil {
		return fmt.Errorf("failed to update order origin: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %swc_orders_meta (order_id, meta_key, meta_value)
		VALUES ($1, $3, $2)
	`, s.prefix), orderID, origin, originMetaKey)
	if err != nil {
		return fmt.Errorf("failed to insert order origin: %w", err)
	}
	return nil
}

// GetOrigin returns the stored origin for an order, empty when absent.
func (s *PostgresOrderStore) GetOrigin(ctx context.Context, orderID int64) (string, error) {
	var origin string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT meta_value FROM %swc_orders_meta
		WHERE order_id = $1 AND meta_key = $2
	`, s.prefix), orderID, originMetaKey).Scan(&origin)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get order origin: %w", err)
	}
	return origin, nil
}

// ListOrders returns every non-trashed order created in [start, end),
// including orders with no attribution data at all.
func (s *PostgresOrderStore) ListOrders(ctx context.Context, start, end time.Time) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT o.id, o.status, o.date_created_gmt,
		       COALESCE(m.meta_value, ''), COALESCE(o.ip_address, '')
		FROM %[1]swc_orders o
		LEFT JOIN %[1]swc_orders_meta m ON m.order_id = o.id AND m.meta_key = $3
		WHERE o.date_created_gmt >= $1 AND o.date_created_gmt < $2
		  AND o.status NOT IN (%[2]s)
		ORDER BY o.date_created_gmt
	`, s.prefix, statusList()), start, end, originMetaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.Status, &o.CreatedAt, &o.Origin, &o.CustomerIP); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}
