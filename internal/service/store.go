package service

import (
	"context"
	"time"

	"game-price-tracker/internal/model"
	"game-price-tracker/internal/pkg/lock"
	"game-price-tracker/internal/repository"
)

// Not-found errors surfaced to transports.
var (
	ErrGameNotFound    = repository.ErrGameNotFound
	ErrDealNotFound    = repository.ErrDealNotFound
	ErrAlertNotFound   = repository.ErrAlertNotFound
	ErrHistoryNotFound = repository.ErrHistoryNotFound
)

// ErrGameBusy is returned when a manual check times out waiting for a game held by a sweep.
var ErrGameBusy = lock.ErrLockTimeout

// GameStore persists tracked games.
type GameStore interface {
	GetByID(ctx context.Context, id int64) (*model.Game, error)
	GetOrCreate(ctx context.Context, externalID, title string, imageURL *string) (*model.Game, bool, error)
	List(ctx context.Context, offset, limit int) ([]*model.Game, error)
	Delete(ctx context.Context, id int64) error
}

// DealStore persists deals.
type DealStore interface {
	Create(ctx context.Context, d *model.Deal) (*model.Deal, error)
	GetByID(ctx context.Context, id int64) (*model.Deal, error)
	GetByDealID(ctx context.Context, dealID string) (*model.Deal, error)
	ListByGame(ctx context.Context, gameID int64) ([]*model.Deal, error)
	List(ctx context.Context, offset, limit int) ([]*model.Deal, error)
	ListOnSale(ctx context.Context, limit int) ([]*model.Deal, error)
	Update(ctx context.Context, id int64, patch model.DealPatch) (*model.Deal, error)
	Delete(ctx context.Context, id int64) error
}

// HistoryStore persists price snapshots.
type HistoryStore interface {
	Create(ctx context.Context, dealID int64, price, discountPercent float64, checkedAt time.Time) (*model.PriceHistory, error)
	ListByDeal(ctx context.Context, dealID int64, limit int) ([]*model.PriceHistory, error)
	Latest(ctx context.Context, dealID int64) (*model.PriceHistory, error)
}

// AlertStore persists price alerts.
type AlertStore interface {
	Create(ctx context.Context, in model.NewPriceAlert) (*model.PriceAlert, error)
	GetByID(ctx context.Context, id int64) (*model.PriceAlert, error)
	ListUnread(ctx context.Context, limit int) ([]*model.PriceAlert, error)
	List(ctx context.Context, offset, limit int) ([]*model.PriceAlert, error)
	ListByDeal(ctx context.Context, dealID int64, limit int) ([]*model.PriceAlert, error)
	MarkRead(ctx context.Context, id int64) (*model.PriceAlert, error)
	MarkAllRead(ctx context.Context) (int64, error)
}

// PriceSource is the upstream price API.
type PriceSource interface {
	SearchGames(ctx context.Context, title string, limit int) ([]model.Offer, error)
	GetGameOffers(ctx context.Context, gameID string) (*model.GameOffers, error)
	GetDeal(ctx context.Context, dealID string) (*model.Offer, error)
	ListDeals(ctx context.Context, q model.DealsQuery) ([]model.Offer, error)
	ListStores(ctx context.Context) ([]model.Store, error)
}

// Stores groups the snapshot store repositories.
type Stores struct {
	Games   GameStore
	Deals   DealStore
	History HistoryStore
	Alerts  AlertStore
}
