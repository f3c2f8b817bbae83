package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"game-price-tracker/internal/metrics"
	"game-price-tracker/internal/model"
	"game-price-tracker/internal/pkg/lock"
)

// FetchFailedMessage is the GameCheckResult error for a game whose offers could not be fetched.
const FetchFailedMessage = "Failed to fetch deals from API"

// DefaultMaxGames bounds the number of games visited by one sweep.
const DefaultMaxGames = 1000

// ErrSweepInProgress is returned when a sweep is requested while another one runs.
var ErrSweepInProgress = errors.New("monitoring sweep already in progress")

// MonitorService reconciles tracked games against the price source and raises alerts.
type MonitorService struct {
	games    GameStore
	deals    DealStore
	history  HistoryStore
	alerts   AlertStore
	source   PriceSource
	gameLock *lock.KeyLock
	metrics  *metrics.Registry
	maxGames int

	running atomic.Bool
	now     func() time.Time
}

// NewMonitorService creates a new MonitorService instance.
// gameLock and reg may be nil.
func NewMonitorService(stores Stores, source PriceSource, gameLock *lock.KeyLock, reg *metrics.Registry, maxGames int) *MonitorService {
	if gameLock == nil {
		gameLock = lock.NewKeyLock()
	}
	if maxGames <= 0 {
		maxGames = DefaultMaxGames
	}
	return &MonitorService{
		games:    stores.Games,
		deals:    stores.Deals,
		history:  stores.History,
		alerts:   stores.Alerts,
		source:   source,
		gameLock: gameLock,
		metrics:  reg,
		maxGames: maxGames,
		now:      time.Now,
	}
}

// ReconcileGame fetches the current offers for game and folds them into the stored deals.
// Upstream failures are reported in the result's Error field; a non-nil error means
// the snapshot store failed or ctx was cancelled.
func (s *MonitorService) ReconcileGame(ctx context.Context, game *model.Game) (model.GameCheckResult, error) {
	var result model.GameCheckResult
	err := s.gameLock.WithLockContext(ctx, game.ID, 0, func() error {
		var err error
		result, err = s.reconcile(ctx, game)
		return err
	})
	return result, err
}

// reconcile does the work of ReconcileGame. The caller holds the game's lock.
func (s *MonitorService) reconcile(ctx context.Context, game *model.Game) (model.GameCheckResult, error) {
	offers, err := s.source.GetGameOffers(ctx, game.ExternalID)
	if err != nil && ctx.Err() != nil {
		return model.GameCheckResult{GameID: game.ID, GameTitle: game.Title}, ctx.Err()
	}
	return s.applyOffers(ctx, game, offers, err)
}

// applyOffers folds already fetched offers into the stored deals.
// A fetch error or an empty offer list yields a result carrying FetchFailedMessage.
// The caller holds the game's lock.
func (s *MonitorService) applyOffers(ctx context.Context, game *model.Game, offers *model.GameOffers, fetchErr error) (model.GameCheckResult, error) {
	result := model.GameCheckResult{GameID: game.ID, GameTitle: game.Title}
	logger := log.With().Int64("game_id", game.ID).Str("external_id", game.ExternalID).Logger()

	if fetchErr != nil || offers == nil || len(offers.Offers) == 0 {
		logger.Warn().Err(fetchErr).Msg("No offers fetched for game")
		s.metrics.ObserveUpstreamFailure()
		result.Error = FetchFailedMessage
		return result, nil
	}

	now := s.now().UTC()
	for _, offer := range offers.Offers {
		if offer.DealID == "" {
			continue
		}

		existing, err := s.deals.GetByDealID(ctx, offer.DealID)
		switch {
		case errors.Is(err, ErrDealNotFound):
			onSale, ok := s.createDeal(ctx, logger, game.ID, offer, now)
			if !ok {
				continue
			}
			result.DealsUpdated++
			if onSale {
				result.NewSales++
			}
		case err != nil:
			return result, fmt.Errorf("failed to look up deal %s: %w", offer.DealID, err)
		default:
			event, ok := s.updateDeal(ctx, logger, existing, offer, now)
			if !ok {
				continue
			}
			result.DealsUpdated++
			switch event.Alert {
			case model.AlertNewSale:
				result.NewSales++
			case model.AlertPriceDrop:
				result.PriceDrops++
			}
		}
	}

	return result, nil
}

// createDeal stores a first-seen offer. It reports whether the offer is on sale
// and whether the deal row was written.
func (s *MonitorService) createDeal(ctx context.Context, logger zerolog.Logger, gameID int64, offer model.Offer, now time.Time) (bool, bool) {
	deal, err := s.deals.Create(ctx, &model.Deal{
		GameID:             gameID,
		DealID:             offer.DealID,
		StoreID:            optString(offer.StoreID),
		StoreName:          optString(offer.StoreName),
		CurrentPrice:       offer.Price,
		OriginalPrice:      offer.OriginalPrice,
		DiscountPercentage: offer.DiscountPercentage,
		IsOnSale:           offer.IsOnSale,
		URL:                optString(offer.URL),
		LastCheckedAt:      &now,
	})
	if err != nil {
		logger.Error().Err(err).Str("deal_id", offer.DealID).Msg("Failed to create deal")
		return false, false
	}

	s.appendHistory(ctx, logger, deal.ID, offer, now)

	if !offer.IsOnSale {
		return false, true
	}
	s.raise(ctx, logger, model.NewPriceAlert{
		DealID:             deal.ID,
		AlertType:          model.AlertNewDeal,
		NewPrice:           offer.Price,
		DiscountPercentage: model.Ptr(offer.DiscountPercentage),
		Message:            newDealMessage(offer),
	})
	return true, true
}

// updateDeal refreshes an existing deal from a fresh offer, snapshots it and classifies the change.
func (s *MonitorService) updateDeal(ctx context.Context, logger zerolog.Logger, deal *model.Deal, offer model.Offer, now time.Time) (priceEvent, bool) {
	oldPrice := deal.CurrentPrice
	oldOnSale := deal.IsOnSale

	_, err := s.deals.Update(ctx, deal.ID, model.DealPatch{
		CurrentPrice:       model.Ptr(offer.Price),
		OriginalPrice:      offer.OriginalPrice,
		DiscountPercentage: model.Ptr(offer.DiscountPercentage),
		IsOnSale:           model.Ptr(offer.IsOnSale),
		URL:                optString(offer.URL),
		LastCheckedAt:      &now,
		Overwrite:          true,
	})
	if err != nil {
		logger.Error().Err(err).Str("deal_id", deal.DealID).Msg("Failed to update deal")
		return priceEvent{}, false
	}

	s.appendHistory(ctx, logger, deal.ID, offer, now)

	event := classifyChange(oldPrice, offer.Price, oldOnSale, offer.IsOnSale)
	switch event.Alert {
	case model.AlertNewSale:
		s.raise(ctx, logger, model.NewPriceAlert{
			DealID:             deal.ID,
			AlertType:          model.AlertNewSale,
			PreviousPrice:      model.Ptr(oldPrice),
			NewPrice:           offer.Price,
			DiscountPercentage: model.Ptr(offer.DiscountPercentage),
			Message:            newSaleMessage(offer, oldPrice),
		})
	case model.AlertPriceDrop:
		s.raise(ctx, logger, model.NewPriceAlert{
			DealID:             deal.ID,
			AlertType:          model.AlertPriceDrop,
			PreviousPrice:      model.Ptr(oldPrice),
			NewPrice:           offer.Price,
			DiscountPercentage: model.Ptr(event.DropPercent),
			Message:            priceDropMessage(offer, oldPrice, event.DropPercent),
		})
	}
	return event, true
}

func (s *MonitorService) appendHistory(ctx context.Context, logger zerolog.Logger, dealID int64, offer model.Offer, now time.Time) {
	if _, err := s.history.Create(ctx, dealID, offer.Price, offer.DiscountPercentage, now); err != nil {
		logger.Error().Err(err).Int64("deal", dealID).Msg("Failed to append price history")
	}
}

func (s *MonitorService) raise(ctx context.Context, logger zerolog.Logger, in model.NewPriceAlert) {
	if _, err := s.alerts.Create(ctx, in); err != nil {
		logger.Error().Err(err).Int64("deal", in.DealID).Str("type", string(in.AlertType)).Msg("Failed to create price alert")
		return
	}
	s.metrics.ObserveAlert(in.AlertType)
	logger.Info().Str("type", string(in.AlertType)).Msg(in.Message)
}

// MonitorAllTrackedGames runs one sweep over the tracked games.
// A failing game is counted in Errors and never aborts the sweep. Cancelling ctx
// stops the sweep before the next game; the partial stats are returned with ctx's error.
func (s *MonitorService) MonitorAllTrackedGames(ctx context.Context) (*model.MonitoringStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)
	s.metrics.SetSweepInProgress(true)
	defer s.metrics.SetSweepInProgress(false)

	start := time.Now()
	stats := &model.MonitoringStats{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	logger := log.With().Str("run_id", stats.RunID).Logger()
	logger.Info().Msg("Starting price monitoring sweep")

	games, err := s.games.List(ctx, 0, s.maxGames)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked games: %w", err)
	}
	stats.GamesChecked = len(games)

	// A game that has started is finished even if ctx is cancelled meanwhile.
	gameCtx := context.WithoutCancel(ctx)

	var sweepErr error
	for _, game := range games {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("Sweep cancelled")
			sweepErr = err
			break
		}

		result, err := s.ReconcileGame(gameCtx, game)
		if err != nil {
			logger.Error().Err(err).Int64("game_id", game.ID).Str("title", game.Title).Msg("Failed to check game")
			stats.Errors++
		} else if result.Error != "" {
			logger.Warn().Int64("game_id", game.ID).Str("title", game.Title).Msg(result.Error)
		}
		stats.DealsUpdated += result.DealsUpdated
		stats.NewSales += result.NewSales
		stats.PriceDrops += result.PriceDrops
	}

	finished := s.now().UTC()
	stats.FinishedAt = &finished
	stats.DurationSeconds = model.Round2(time.Since(start).Seconds())
	s.metrics.ObserveSweep(stats)

	logger.Info().
		Int("games_checked", stats.GamesChecked).
		Int("deals_updated", stats.DealsUpdated).
		Int("new_sales", stats.NewSales).
		Int("price_drops", stats.PriceDrops).
		Int("errors", stats.Errors).
		Float64("duration_seconds", stats.DurationSeconds).
		Msg("Price monitoring sweep finished")

	return stats, sweepErr
}

// Running reports whether a sweep is in progress.
func (s *MonitorService) Running() bool {
	return s.running.Load()
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
