// Package repository provides the PostgreSQL snapshot store for games, deals,
// price history and price alerts.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"game-price-tracker/internal/model"
)

// Common errors for repository operations.
var (
	ErrGameNotFound    = errors.New("game not found")
	ErrDealNotFound    = errors.New("deal not found")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrHistoryNotFound = errors.New("price history not found")
)

const gameColumns = `id, external_id, title, image_url, created_at`

// GameRepository handles game persistence.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

func scanGame(row pgx.Row) (*model.Game, error) {
	var g model.Game
	if err := row.Scan(&g.ID, &g.ExternalID, &g.Title, &g.ImageURL, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts a new game. The external id must not exist yet.
func (r *GameRepository) Create(ctx context.Context, externalID, title string, imageURL *string) (*model.Game, error) {
	const query = `
		INSERT INTO games (external_id, title, image_url, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING ` + gameColumns

	g, err := scanGame(r.pool.QueryRow(ctx, query, externalID, title, imageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return g, nil
}

// GetByID retrieves a game by its internal id.
// Returns ErrGameNotFound if the game does not exist.
func (r *GameRepository) GetByID(ctx context.Context, id int64) (*model.Game, error) {
	const query = `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	g, err := scanGame(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

// GetByExternalID retrieves a game by its CheapShark game id.
// Returns ErrGameNotFound if the game does not exist.
func (r *GameRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Game, error) {
	const query = `SELECT ` + gameColumns + ` FROM games WHERE external_id = $1`

	g, err := scanGame(r.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game by external id: %w", err)
	}
	return g, nil
}

// GetOrCreate retrieves a game by external id, creating it if it doesn't exist.
// The boolean reports whether the game was created by this call.
func (r *GameRepository) GetOrCreate(ctx context.Context, externalID, title string, imageURL *string) (*model.Game, bool, error) {
	g, err := r.GetByExternalID(ctx, externalID)
	if err == nil {
		return g, false, nil
	}
	if !errors.Is(err, ErrGameNotFound) {
		return nil, false, err
	}

	g, err = r.Create(ctx, externalID, title, imageURL)
	if err != nil {
		// Another request may have created the game in the meantime
		g, err = r.GetByExternalID(ctx, externalID)
		if err != nil {
			return nil, false, err
		}
		return g, false, nil
	}
	return g, true, nil
}

// List returns games ordered by id.
func (r *GameRepository) List(ctx context.Context, offset, limit int) ([]*model.Game, error) {
	const query = `SELECT ` + gameColumns + ` FROM games ORDER BY id OFFSET $1 LIMIT $2`
	return r.query(ctx, query, offset, limit)
}

func (r *GameRepository) query(ctx context.Context, query string, args ...any) ([]*model.Game, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}
	return games, nil
}

// Delete removes a game. Its deals, their history and their alerts are removed by cascade.
func (r *GameRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}
