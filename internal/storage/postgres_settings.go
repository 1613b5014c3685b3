package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shoplens/origin-report/internal/models"
)

const (
	dateOverrideOption = "origin_report_date_override"
	adSpendPrefix      = "origin_report_ad_spend_"
)

// PostgresSettingsStore implements SettingsStore over the site options table.
type PostgresSettingsStore struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewPostgresSettingsStore(pool *pgxpool.Pool, prefix string) *PostgresSettingsStore {
	return &PostgresSettingsStore{pool: pool, prefix: prefix}
}

func (s *PostgresSettingsStore) getOption(ctx context.Context, name string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT option_value FROM %soptions WHERE option_name = $1
	`, s.prefix), name).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get option %s: %w", name, err)
	}
	return value, nil
}

func (s *PostgresSettingsStore) setOption(ctx context.Context, name, value string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %soptions (option_name, option_value)
		VALUES ($1, $2)
		ON CONFLICT (option_name) DO UPDATE SET option_value = EXCLUDED.option_value
	`, s.prefix), name, value)
	if err != nil {
		return fmt.Errorf("failed to set option %s: %w", name, err)
	}
	return nil
}

// GetDateOverride returns the manual reporting-day override, empty when unset.
func (s *PostgresSettingsStore) GetDateOverride(ctx context.Context) (string, error) {
	return s.getOption(ctx, dateOverrideOption)
}

// SetDateOverride validates and stores the override. Only a YYYY-MM-DD date
// or an empty string (clearing the override) passes the boundary.
func (s *PostgresSettingsStore) SetDateOverride(ctx context.Context, value string) error {
	if err := ValidateDateOverride(value); err != nil {
		return err
	}
	return s.setOption(ctx, dateOverrideOption, value)
}

// ValidateDateOverride rejects anything but an ISO date or the empty string.
func ValidateDateOverride(value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("invalid date override %q: %w", value, err)
	}
	return nil
}

// GetAdSpend returns the spend for a range key, 0 when absent.
func (s *PostgresSettingsStore) GetAdSpend(ctx context.Context, rangeKey string) (float64, error) {
	raw, err := s.getOption(ctx, adSpendPrefix+rangeKey)
	if err != nil || raw == "" {
		return 0, err
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt ad spend value for %s: %w", rangeKey, err)
	}
	return amount, nil
}

// SetAdSpend stores a spend amount for a range key, overwriting any previous
// value.
func (s *PostgresSettingsStore) SetAdSpend(ctx context.Context, rangeKey string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("ad spend must not be negative: %f", amount)
	}
	return s.setOption(ctx, adSpendPrefix+rangeKey, strconv.FormatFloat(amount, 'f', 2, 64))
}

// ListAdSpend returns every stored spend entry.
func (s *PostgresSettingsStore) ListAdSpend(ctx context.Context) ([]models.AdSpendEntry, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT option_name, option_value FROM %soptions
		WHERE option_name LIKE $1
		ORDER BY option_name
	`, s.prefix), adSpendPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list ad spend: %w", err)
	}
	defer rows.Close()

	var entries []models.AdSpendEntry
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		entries = append(entries, models.AdSpendEntry{
			RangeKey: strings.TrimPrefix(name, adSpendPrefix),
			Amount:   amount,
		})
	}
	return entries, rows.Err()
}
