package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-price-tracker/internal/model"
)

const dealColumns = `id, game_id, deal_id, store_id, store_name, current_price, original_price,
	discount_percentage, is_on_sale, url, last_checked_at, created_at`

// DealRepository handles deal persistence.
type DealRepository struct {
	pool *pgxpool.Pool
}

// NewDealRepository creates a new DealRepository instance.
func NewDealRepository(pool *pgxpool.Pool) *DealRepository {
	return &DealRepository{pool: pool}
}

func scanDeal(row pgx.Row) (*model.Deal, error) {
	var d model.Deal
	err := row.Scan(
		&d.ID,
		&d.GameID,
		&d.DealID,
		&d.StoreID,
		&d.StoreName,
		&d.CurrentPrice,
		&d.OriginalPrice,
		&d.DiscountPercentage,
		&d.IsOnSale,
		&d.URL,
		&d.LastCheckedAt,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a deal. ID and CreatedAt of the argument are ignored.
func (r *DealRepository) Create(ctx context.Context, d *model.Deal) (*model.Deal, error) {
	const query = `
		INSERT INTO deals (game_id, deal_id, store_id, store_name, current_price, original_price,
			discount_percentage, is_on_sale, url, last_checked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING ` + dealColumns

	created, err := scanDeal(r.pool.QueryRow(ctx, query,
		d.GameID,
		d.DealID,
		d.StoreID,
		d.StoreName,
		d.CurrentPrice,
		d.OriginalPrice,
		d.DiscountPercentage,
		d.IsOnSale,
		d.URL,
		d.LastCheckedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}
	return created, nil
}

// GetByID retrieves a deal by its internal id.
// Returns ErrDealNotFound if the deal does not exist.
func (r *DealRepository) GetByID(ctx context.Context, id int64) (*model.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetByDealID retrieves a deal by its upstream deal id.
// Returns ErrDealNotFound if the deal does not exist.
func (r *DealRepository) GetByDealID(ctx context.Context, dealID string) (*model.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE deal_id = $1`
	return r.get(ctx, query, dealID)
}

func (r *DealRepository) get(ctx context.Context, query string, arg any) (*model.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return d, nil
}

// ListByGame returns all deals of a game, cheapest first.
func (r *DealRepository) ListByGame(ctx context.Context, gameID int64) ([]*model.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE game_id = $1 ORDER BY current_price, id`
	return r.query(ctx, query, gameID)
}

// List returns deals ordered by id.
func (r *DealRepository) List(ctx context.Context, offset, limit int) ([]*model.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals ORDER BY id OFFSET $1 LIMIT $2`
	return r.query(ctx, query, offset, limit)
}

// ListOnSale returns deals currently on sale, biggest discount first.
func (r *DealRepository) ListOnSale(ctx context.Context, limit int) ([]*model.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE is_on_sale ORDER BY discount_percentage DESC, id LIMIT $1`
	return r.query(ctx, query, limit)
}

func (r *DealRepository) query(ctx context.Context, query string, args ...any) ([]*model.Deal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()

	var deals []*model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deals: %w", err)
	}
	return deals, nil
}

// Update applies a partial update and returns the updated deal.
// Nil patch fields keep their stored value unless patch.Overwrite is set, in which case
// nullable columns are written as given. Returns ErrDealNotFound for an unknown id.
func (r *DealRepository) Update(ctx context.Context, id int64, patch model.DealPatch) (*model.Deal, error) {
	const query = `
		UPDATE deals SET
			current_price = COALESCE($2, current_price),
			original_price = CASE WHEN $8 THEN $3 ELSE COALESCE($3, original_price) END,
			discount_percentage = COALESCE($4, discount_percentage),
			is_on_sale = COALESCE($5, is_on_sale),
			url = CASE WHEN $8 THEN $6 ELSE COALESCE($6, url) END,
			last_checked_at = COALESCE($7, last_checked_at)
		WHERE id = $1
		RETURNING ` + dealColumns

	d, err := scanDeal(r.pool.QueryRow(ctx, query,
		id,
		patch.CurrentPrice,
		patch.OriginalPrice,
		patch.DiscountPercentage,
		patch.IsOnSale,
		patch.URL,
		patch.LastCheckedAt,
		patch.Overwrite,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to update deal: %w", err)
	}
	return d, nil
}

// Delete removes a deal together with its history and alerts.
func (r *DealRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDealNotFound
	}
	return nil
}
