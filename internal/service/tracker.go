package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"game-price-tracker/internal/cheapshark"
	"game-price-tracker/internal/model"
)

// Paging defaults shared by the transports.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 60
	DefaultPageSize    = 100
	MaxPageSize        = 1000
	DefaultAlertLimit  = 50
	DefaultHistorySize = 100
)

// DefaultLockTimeout bounds how long a user-triggered check waits for a game held by a sweep.
const DefaultLockTimeout = 10 * time.Second

var (
	// ErrEmptyQuery is returned when a title or id argument is blank.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrPriceSourceUnavailable is returned when a game's offers could not be fetched.
	ErrPriceSourceUnavailable = errors.New("price source unavailable")
)

// TrackerService handles tracking games and the read accessors over tracked data.
type TrackerService struct {
	games   GameStore
	deals   DealStore
	history HistoryStore
	alerts  AlertStore
	source  PriceSource
	monitor *MonitorService

	lockTimeout time.Duration
}

// NewTrackerService creates a new TrackerService instance.
func NewTrackerService(stores Stores, source PriceSource, monitor *MonitorService) *TrackerService {
	return &TrackerService{
		games:   stores.Games,
		deals:   stores.Deals,
		history: stores.History,
		alerts:  stores.Alerts,
		source:  source,
		monitor: monitor,

		lockTimeout: DefaultLockTimeout,
	}
}

// Search searches the price source by title.
func (s *TrackerService) Search(ctx context.Context, query string, limit int) ([]model.Offer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	offers, err := s.source.SearchGames(ctx, query, clamp(limit, DefaultSearchLimit, MaxSearchLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: search games: %w", ErrPriceSourceUnavailable, err)
	}
	return offers, nil
}

// LookupByTitle returns every current offer for the best title match without tracking it.
func (s *TrackerService) LookupByTitle(ctx context.Context, title string) (*model.GameOffers, error) {
	match, err := s.firstMatch(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.offers(ctx, match.GameID)
}

// LookupDeal returns the live offer behind a price source deal id without tracking it.
func (s *TrackerService) LookupDeal(ctx context.Context, dealID string) (*model.Offer, error) {
	dealID = strings.TrimSpace(dealID)
	if dealID == "" {
		return nil, ErrEmptyQuery
	}
	offer, err := s.source.GetDeal(ctx, dealID)
	if errors.Is(err, cheapshark.ErrNotFound) {
		return nil, ErrDealNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get deal %s: %w", ErrPriceSourceUnavailable, dealID, err)
	}
	return offer, nil
}

// Deals returns the current upstream deals feed.
func (s *TrackerService) Deals(ctx context.Context, q model.DealsQuery) ([]model.Offer, error) {
	offers, err := s.source.ListDeals(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list deals: %w", ErrPriceSourceUnavailable, err)
	}
	return offers, nil
}

// Stores lists the upstream stores.
func (s *TrackerService) Stores(ctx context.Context) ([]model.Store, error) {
	stores, err := s.source.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list stores: %w", ErrPriceSourceUnavailable, err)
	}
	return stores, nil
}

// TrackByTitle tracks the best title match and reconciles its offers.
func (s *TrackerService) TrackByTitle(ctx context.Context, title string) (*model.TrackResult, error) {
	match, err := s.firstMatch(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.TrackByExternalID(ctx, match.GameID)
}

// TrackByExternalID tracks a game by its price source id and reconciles its offers.
// Tracking an already tracked game reconciles the existing row. Offers are fetched
// once and applied directly.
func (s *TrackerService) TrackByExternalID(ctx context.Context, externalID string) (*model.TrackResult, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrEmptyQuery
	}

	offers, err := s.offers(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if len(offers.Offers) == 0 {
		return nil, ErrGameNotFound
	}

	game, created, err := s.games.GetOrCreate(ctx, externalID, offers.Title, optString(offers.ImageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to track game: %w", err)
	}

	var check model.GameCheckResult
	err = s.monitor.gameLock.WithLockContext(ctx, game.ID, s.lockTimeout, func() error {
		var err error
		check, err = s.monitor.applyOffers(ctx, game, offers, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile game %d: %w", game.ID, err)
	}

	log.Info().
		Int64("game_id", game.ID).
		Str("title", game.Title).
		Bool("created", created).
		Int("deals", check.DealsUpdated).
		Msg("Game tracked")

	return &model.TrackResult{
		Game:         game,
		Created:      created,
		DealsTracked: check.DealsUpdated,
		Check:        check,
	}, nil
}

// UntrackGame deletes a tracked game with its deals, history and alerts.
func (s *TrackerService) UntrackGame(ctx context.Context, id int64) error {
	return s.games.Delete(ctx, id)
}

// UntrackDeal deletes a deal by its price source deal id.
func (s *TrackerService) UntrackDeal(ctx context.Context, dealID string) error {
	deal, err := s.deals.GetByDealID(ctx, dealID)
	if err != nil {
		return err
	}
	return s.deals.Delete(ctx, deal.ID)
}

// GetGame returns a tracked game.
func (s *TrackerService) GetGame(ctx context.Context, id int64) (*model.Game, error) {
	return s.games.GetByID(ctx, id)
}

// ListGames lists tracked games.
func (s *TrackerService) ListGames(ctx context.Context, offset, limit int) ([]*model.Game, error) {
	return s.games.List(ctx, max(offset, 0), clamp(limit, DefaultPageSize, MaxPageSize))
}

// ListDeals lists tracked deals.
func (s *TrackerService) ListDeals(ctx context.Context, offset, limit int) ([]*model.Deal, error) {
	return s.deals.List(ctx, max(offset, 0), clamp(limit, DefaultPageSize, MaxPageSize))
}

// ListSales lists tracked deals that are currently on sale.
func (s *TrackerService) ListSales(ctx context.Context, limit int) ([]*model.Deal, error) {
	return s.deals.ListOnSale(ctx, clamp(limit, DefaultPageSize, MaxPageSize))
}

// GameDeals lists the deals of one tracked game.
func (s *TrackerService) GameDeals(ctx context.Context, gameID int64) ([]*model.Deal, error) {
	if _, err := s.games.GetByID(ctx, gameID); err != nil {
		return nil, err
	}
	return s.deals.ListByGame(ctx, gameID)
}

// DealHistory returns the newest snapshots of a deal identified by its price source deal id.
func (s *TrackerService) DealHistory(ctx context.Context, dealID string, limit int) ([]*model.PriceHistory, error) {
	deal, err := s.deals.GetByDealID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return s.history.ListByDeal(ctx, deal.ID, clamp(limit, DefaultHistorySize, MaxPageSize))
}

// CheckPriceChanges reconciles one game and reports how each deal moved since its last snapshot.
// It returns ErrPriceSourceUnavailable when the game's offers could not be fetched.
func (s *TrackerService) CheckPriceChanges(ctx context.Context, gameID int64) (*model.GamePriceChanges, error) {
	game, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}

	var report *model.GamePriceChanges
	err = s.monitor.gameLock.WithLockContext(ctx, game.ID, s.lockTimeout, func() error {
		before, err := s.snapshotPrices(ctx, game.ID)
		if err != nil {
			return err
		}
		check, err := s.monitor.reconcile(ctx, game)
		if err != nil {
			return err
		}
		if check.Error != "" {
			return fmt.Errorf("%w: %s", ErrPriceSourceUnavailable, check.Error)
		}
		deals, err := s.deals.ListByGame(ctx, game.ID)
		if err != nil {
			return fmt.Errorf("failed to list deals: %w", err)
		}
		report = priceChanges(game, before, deals)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// snapshotPrices maps each deal's id to its latest recorded price.
func (s *TrackerService) snapshotPrices(ctx context.Context, gameID int64) (map[int64]float64, error) {
	deals, err := s.deals.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	prices := make(map[int64]float64, len(deals))
	for _, d := range deals {
		latest, err := s.history.Latest(ctx, d.ID)
		switch {
		case err == nil:
			prices[d.ID] = latest.Price
		case errors.Is(err, ErrHistoryNotFound):
			prices[d.ID] = d.CurrentPrice
		default:
			return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
		}
	}
	return prices, nil
}

func priceChanges(game *model.Game, before map[int64]float64, deals []*model.Deal) *model.GamePriceChanges {
	report := &model.GamePriceChanges{
		GameID: game.ID,
		Title:  game.Title,
		Deals:  make([]model.DealPriceChange, 0, len(deals)),
	}

	var prevBest *float64
	var best *model.Deal
	for _, d := range deals {
		change := model.DealPriceChange{
			DealID:       d.DealID,
			CurrentPrice: d.CurrentPrice,
		}
		if d.StoreName != nil {
			change.StoreName = *d.StoreName
		}
		if prev, ok := before[d.ID]; ok {
			amount := model.Round2(d.CurrentPrice - prev)
			change.PreviousPrice = model.Ptr(prev)
			change.ChangeAmount = model.Ptr(amount)
			change.IsPriceLower = model.Ptr(amount < 0)
			if prev > 0 {
				change.ChangePercent = model.Ptr(model.Round2(amount / prev * 100))
			}
			if prevBest == nil || prev < *prevBest {
				prevBest = model.Ptr(prev)
			}
		}
		if best == nil || d.CurrentPrice < best.CurrentPrice {
			best = d
		}
		report.Deals = append(report.Deals, change)
	}

	report.BestPrice.PreviousBestPrice = prevBest
	if best != nil {
		report.BestPrice.CurrentBestPrice = model.Ptr(best.CurrentPrice)
		report.BestPrice.BestDealID = best.DealID
		if best.StoreName != nil {
			report.BestPrice.BestStoreName = *best.StoreName
		}
		if prevBest != nil {
			report.BestPrice.IsLower = model.Ptr(best.CurrentPrice < *prevBest)
		}
	}
	return report
}

// RecentAlerts returns the newest unread alerts.
func (s *TrackerService) RecentAlerts(ctx context.Context, limit int) ([]*model.PriceAlert, error) {
	return s.alerts.ListUnread(ctx, clamp(limit, DefaultAlertLimit, MaxPageSize))
}

// AllAlerts lists alerts, newest first.
func (s *TrackerService) AllAlerts(ctx context.Context, offset, limit int) ([]*model.PriceAlert, error) {
	return s.alerts.List(ctx, max(offset, 0), clamp(limit, DefaultPageSize, MaxPageSize))
}

// DealAlerts lists the alerts raised for a deal identified by its price source deal id.
func (s *TrackerService) DealAlerts(ctx context.Context, dealID string, limit int) ([]*model.PriceAlert, error) {
	deal, err := s.deals.GetByDealID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return s.alerts.ListByDeal(ctx, deal.ID, clamp(limit, DefaultAlertLimit, MaxPageSize))
}

// GetAlert returns one alert with the deal it belongs to.
func (s *TrackerService) GetAlert(ctx context.Context, id int64) (*model.AlertDetail, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	deal, err := s.deals.GetByID(ctx, alert.DealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deal of alert %d: %w", id, err)
	}
	return &model.AlertDetail{PriceAlert: alert, Deal: deal}, nil
}

// MarkAlertRead marks one alert as read.
func (s *TrackerService) MarkAlertRead(ctx context.Context, id int64) (*model.PriceAlert, error) {
	return s.alerts.MarkRead(ctx, id)
}

// MarkAllAlertsRead marks every unread alert as read and returns how many changed.
func (s *TrackerService) MarkAllAlertsRead(ctx context.Context) (int64, error) {
	return s.alerts.MarkAllRead(ctx)
}

func (s *TrackerService) firstMatch(ctx context.Context, title string) (*model.Offer, error) {
	matches, err := s.Search(ctx, title, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 || matches[0].GameID == "" {
		return nil, ErrGameNotFound
	}
	return &matches[0], nil
}

func (s *TrackerService) offers(ctx context.Context, externalID string) (*model.GameOffers, error) {
	offers, err := s.source.GetGameOffers(ctx, externalID)
	if errors.Is(err, cheapshark.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch offers for %s: %w", ErrPriceSourceUnavailable, externalID, err)
	}
	return offers, nil
}

func clamp(v, def, hi int) int {
	if v <= 0 {
		return def
	}
	if v > hi {
		return hi
	}
	return v
}
