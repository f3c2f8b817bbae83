package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-price-tracker/internal/model"
)

const alertColumns = `id, deal_id, alert_type, previous_price, new_price, discount_percentage, message, is_read, created_at`

// PriceAlertRepository handles price alert persistence.
type PriceAlertRepository struct {
	pool *pgxpool.Pool
}

// NewPriceAlertRepository creates a new PriceAlertRepository instance.
func NewPriceAlertRepository(pool *pgxpool.Pool) *PriceAlertRepository {
	return &PriceAlertRepository{pool: pool}
}

func scanAlert(row pgx.Row) (*model.PriceAlert, error) {
	var a model.PriceAlert
	err := row.Scan(
		&a.ID,
		&a.DealID,
		&a.AlertType,
		&a.PreviousPrice,
		&a.NewPrice,
		&a.DiscountPercentage,
		&a.Message,
		&a.IsRead,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create stores a new unread alert.
func (r *PriceAlertRepository) Create(ctx context.Context, in model.NewPriceAlert) (*model.PriceAlert, error) {
	const query = `
		INSERT INTO price_alerts (deal_id, alert_type, previous_price, new_price, discount_percentage, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
		RETURNING ` + alertColumns

	a, err := scanAlert(r.pool.QueryRow(ctx, query,
		in.DealID,
		string(in.AlertType),
		in.PreviousPrice,
		in.NewPrice,
		in.DiscountPercentage,
		in.Message,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return a, nil
}

// GetByID retrieves an alert by id.
// Returns ErrAlertNotFound if the alert does not exist.
func (r *PriceAlertRepository) GetByID(ctx context.Context, id int64) (*model.PriceAlert, error) {
	const query = `SELECT ` + alertColumns + ` FROM price_alerts WHERE id = $1`

	a, err := scanAlert(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListUnread returns unread alerts, newest first.
func (r *PriceAlertRepository) ListUnread(ctx context.Context, limit int) ([]*model.PriceAlert, error) {
	const query = `SELECT ` + alertColumns + ` FROM price_alerts WHERE NOT is_read ORDER BY created_at DESC, id DESC LIMIT $1`
	return r.query(ctx, query, limit)
}

// List returns all alerts, newest first.
func (r *PriceAlertRepository) List(ctx context.Context, offset, limit int) ([]*model.PriceAlert, error) {
	const query = `SELECT ` + alertColumns + ` FROM price_alerts ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2`
	return r.query(ctx, query, offset, limit)
}

// ListByDeal returns the alerts of one deal, newest first.
func (r *PriceAlertRepository) ListByDeal(ctx context.Context, dealID int64, limit int) ([]*model.PriceAlert, error) {
	const query = `SELECT ` + alertColumns + ` FROM price_alerts WHERE deal_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return r.query(ctx, query, dealID, limit)
}

func (r *PriceAlertRepository) query(ctx context.Context, query string, args ...any) ([]*model.PriceAlert, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// MarkRead flags one alert as read and returns it.
func (r *PriceAlertRepository) MarkRead(ctx context.Context, id int64) (*model.PriceAlert, error) {
	const query = `UPDATE price_alerts SET is_read = TRUE WHERE id = $1 RETURNING ` + alertColumns

	a, err := scanAlert(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to mark alert read: %w", err)
	}
	return a, nil
}

// MarkAllRead flags every unread alert as read and returns how many changed.
func (r *PriceAlertRepository) MarkAllRead(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `UPDATE price_alerts SET is_read = TRUE WHERE NOT is_read`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts read: %w", err)
	}
	return result.RowsAffected(), nil
}
