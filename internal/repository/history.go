package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-price-tracker/internal/model"
)

// PriceHistoryRepository handles the append-only price snapshots.
type PriceHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewPriceHistoryRepository creates a new PriceHistoryRepository instance.
func NewPriceHistoryRepository(pool *pgxpool.Pool) *PriceHistoryRepository {
	return &PriceHistoryRepository{pool: pool}
}

// Create appends a snapshot for a deal.
func (r *PriceHistoryRepository) Create(ctx context.Context, dealID int64, price, discountPercent float64, checkedAt time.Time) (*model.PriceHistory, error) {
	const query = `
		INSERT INTO price_history (deal_id, price, discount_percent, checked_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, deal_id, price, discount_percent, checked_at
	`

	var h model.PriceHistory
	err := r.pool.QueryRow(ctx, query, dealID, price, discountPercent, checkedAt).Scan(
		&h.ID,
		&h.DealID,
		&h.Price,
		&h.DiscountPercent,
		&h.CheckedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create price history: %w", err)
	}
	return &h, nil
}

// ListByDeal returns the most recent snapshots of a deal, newest first.
func (r *PriceHistoryRepository) ListByDeal(ctx context.Context, dealID int64, limit int) ([]*model.PriceHistory, error) {
	const query = `
		SELECT id, deal_id, price, discount_percent, checked_at
		FROM price_history
		WHERE deal_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, dealID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var history []*model.PriceHistory
	for rows.Next() {
		var h model.PriceHistory
		if err := rows.Scan(&h.ID, &h.DealID, &h.Price, &h.DiscountPercent, &h.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}
	return history, nil
}

// Latest returns the most recent snapshot of a deal.
// Returns ErrHistoryNotFound if the deal has no snapshots.
func (r *PriceHistoryRepository) Latest(ctx context.Context, dealID int64) (*model.PriceHistory, error) {
	const query = `
		SELECT id, deal_id, price, discount_percent, checked_at
		FROM price_history
		WHERE deal_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT 1
	`

	var h model.PriceHistory
	err := r.pool.QueryRow(ctx, query, dealID).Scan(&h.ID, &h.DealID, &h.Price, &h.DiscountPercent, &h.CheckedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}
	return &h, nil
}
