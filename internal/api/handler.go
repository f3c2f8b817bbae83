// Package api exposes the tracker over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"game-price-tracker/internal/cheapshark"
	"game-price-tracker/internal/model"
	"game-price-tracker/internal/service"
)

// Tracker is the tracking and read surface used by the handlers.
type Tracker interface {
	Search(ctx context.Context, query string, limit int) ([]model.Offer, error)
	LookupByTitle(ctx context.Context, title string) (*model.GameOffers, error)
	Deals(ctx context.Context, q model.DealsQuery) ([]model.Offer, error)
	LookupDeal(ctx context.Context, dealID string) (*model.Offer, error)
	Stores(ctx context.Context) ([]model.Store, error)
	TrackByTitle(ctx context.Context, title string) (*model.TrackResult, error)
	TrackByExternalID(ctx context.Context, externalID string) (*model.TrackResult, error)
	UntrackGame(ctx context.Context, id int64) error
	UntrackDeal(ctx context.Context, dealID string) error
	GetGame(ctx context.Context, id int64) (*model.Game, error)
	ListGames(ctx context.Context, offset, limit int) ([]*model.Game, error)
	ListDeals(ctx context.Context, offset, limit int) ([]*model.Deal, error)
	ListSales(ctx context.Context, limit int) ([]*model.Deal, error)
	DealHistory(ctx context.Context, dealID string, limit int) ([]*model.PriceHistory, error)
	CheckPriceChanges(ctx context.Context, gameID int64) (*model.GamePriceChanges, error)
	RecentAlerts(ctx context.Context, limit int) ([]*model.PriceAlert, error)
	AllAlerts(ctx context.Context, offset, limit int) ([]*model.PriceAlert, error)
	DealAlerts(ctx context.Context, dealID string, limit int) ([]*model.PriceAlert, error)
	GetAlert(ctx context.Context, id int64) (*model.AlertDetail, error)
	MarkAlertRead(ctx context.Context, id int64) (*model.PriceAlert, error)
	MarkAllAlertsRead(ctx context.Context) (int64, error)
}

// Monitor runs sweeps on demand.
type Monitor interface {
	MonitorAllTrackedGames(ctx context.Context) (*model.MonitoringStats, error)
	Running() bool
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves the HTTP routes.
type Handler struct {
	tracker Tracker
	monitor Monitor
	health  HealthChecker
}

// NewHandler creates a new Handler. health may be nil.
func NewHandler(tracker Tracker, monitor Monitor, health HealthChecker) *Handler {
	return &Handler{tracker: tracker, monitor: monitor, health: health}
}

type messageResponse struct {
	Message string `json:"message"`
}

type trackResponse struct {
	Message      string `json:"message"`
	GameID       int64  `json:"game_id"`
	Created      bool   `json:"created"`
	DealsTracked int    `json:"deals_tracked"`
}

type monitoringResponse struct {
	Stats   *model.MonitoringStats `json:"stats"`
	Summary string                 `json:"summary"`
}

// respondError maps service errors to status codes.
func respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrGameNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
	case errors.Is(err, service.ErrDealNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "deal not found"})
	case errors.Is(err, service.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case errors.Is(err, service.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSweepInProgress), errors.Is(err, service.ErrGameBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPriceSourceUnavailable), errors.Is(err, cheapshark.ErrUpstream):
		log.Warn().Err(err).Str("op", op).Msg("Price source unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "price source unavailable"})
	default:
		log.Error().Err(err).Str("op", op).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// SearchGames handles GET /games/search.
func (h *Handler) SearchGames(c *gin.Context) {
	limit, ok := queryInt(c, "limit", service.DefaultSearchLimit)
	if !ok {
		return
	}
	offers, err := h.tracker.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

// LookupGame handles GET /games/lookup.
func (h *Handler) LookupGame(c *gin.Context) {
	offers, err := h.tracker.LookupByTitle(c.Request.Context(), c.Query("title"))
	if err != nil {
		respondError(c, "lookup", err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

// ListDealsFeed handles GET /games/deals.
func (h *Handler) ListDealsFeed(c *gin.Context) {
	minDiscount, ok := queryInt(c, "min_discount", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 60)
	if !ok {
		return
	}
	q := model.DealsQuery{StoreID: c.Query("store_id"), MinDiscount: minDiscount, Limit: limit}
	if raw := c.Query("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_price"})
			return
		}
		q.MaxPrice = &v
	}

	offers, err := h.tracker.Deals(c.Request.Context(), q)
	if err != nil {
		respondError(c, "deals", err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

// LookupDeal handles GET /games/deals/:deal_id.
func (h *Handler) LookupDeal(c *gin.Context) {
	offer, err := h.tracker.LookupDeal(c.Request.Context(), c.Param("deal_id"))
	if err != nil {
		respondError(c, "lookup deal", err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// ListStores handles GET /games/stores.
func (h *Handler) ListStores(c *gin.Context) {
	stores, err := h.tracker.Stores(c.Request.Context())
	if err != nil {
		respondError(c, "stores", err)
		return
	}
	c.JSON(http.StatusOK, stores)
}

// TrackGameByTitle handles POST /games/track-game.
func (h *Handler) TrackGameByTitle(c *gin.Context) {
	res, err := h.tracker.TrackByTitle(c.Request.Context(), c.Query("title"))
	if err != nil {
		respondError(c, "track", err)
		return
	}
	c.JSON(http.StatusOK, newTrackResponse(res))
}

// TrackGameByID handles POST /games/track-game-by-id.
func (h *Handler) TrackGameByID(c *gin.Context) {
	res, err := h.tracker.TrackByExternalID(c.Request.Context(), c.Query("game_id"))
	if err != nil {
		respondError(c, "track by id", err)
		return
	}
	c.JSON(http.StatusOK, newTrackResponse(res))
}

func newTrackResponse(res *model.TrackResult) trackResponse {
	return trackResponse{
		Message:      "Game tracked successfully",
		GameID:       res.Game.ID,
		Created:      res.Created,
		DealsTracked: res.DealsTracked,
	}
}

// ListTrackedGames handles GET /games/tracked.
func (h *Handler) ListTrackedGames(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", service.DefaultPageSize)
	if !ok {
		return
	}
	games, err := h.tracker.ListGames(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, "list games", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(games))
}

// GetTrackedGame handles GET /games/tracked/games/:id.
func (h *Handler) GetTrackedGame(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	game, err := h.tracker.GetGame(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get game", err)
		return
	}
	c.JSON(http.StatusOK, game)
}

// GamePriceChanges handles GET /games/tracked/games/:id/changes.
func (h *Handler) GamePriceChanges(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	report, err := h.tracker.CheckPriceChanges(c.Request.Context(), id)
	if err != nil {
		respondError(c, "price changes", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListTrackedDeals handles GET /games/tracked/deals.
func (h *Handler) ListTrackedDeals(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", service.DefaultPageSize)
	if !ok {
		return
	}
	deals, err := h.tracker.ListDeals(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, "list deals", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(deals))
}

// ListTrackedSales handles GET /games/tracked/sales.
func (h *Handler) ListTrackedSales(c *gin.Context) {
	deals, err := h.tracker.ListSales(c.Request.Context(), service.DefaultPageSize)
	if err != nil {
		respondError(c, "list sales", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(deals))
}

// DealHistory handles GET /games/tracked/deals/:deal_id/history.
func (h *Handler) DealHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", service.DefaultHistorySize)
	if !ok {
		return
	}
	history, err := h.tracker.DealHistory(c.Request.Context(), c.Param("deal_id"), limit)
	if err != nil {
		respondError(c, "deal history", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(history))
}

// UntrackDeal handles DELETE /games/tracked/deals/:deal_id.
func (h *Handler) UntrackDeal(c *gin.Context) {
	if err := h.tracker.UntrackDeal(c.Request.Context(), c.Param("deal_id")); err != nil {
		respondError(c, "untrack deal", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Deal untracked successfully"})
}

// UntrackGame handles DELETE /games/tracked/games/:id.
func (h *Handler) UntrackGame(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.tracker.UntrackGame(c.Request.Context(), id); err != nil {
		respondError(c, "untrack game", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Game untracked successfully"})
}

// RecentAlerts handles GET /alerts.
func (h *Handler) RecentAlerts(c *gin.Context) {
	limit, ok := queryInt(c, "limit", service.DefaultAlertLimit)
	if !ok {
		return
	}
	alerts, err := h.tracker.RecentAlerts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "recent alerts", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(alerts))
}

// AllAlerts handles GET /alerts/all.
func (h *Handler) AllAlerts(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", service.DefaultPageSize)
	if !ok {
		return
	}
	alerts, err := h.tracker.AllAlerts(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, "all alerts", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(alerts))
}

// DealAlerts handles GET /games/tracked/deals/:deal_id/alerts.
func (h *Handler) DealAlerts(c *gin.Context) {
	limit, ok := queryInt(c, "limit", service.DefaultAlertLimit)
	if !ok {
		return
	}
	alerts, err := h.tracker.DealAlerts(c.Request.Context(), c.Param("deal_id"), limit)
	if err != nil {
		respondError(c, "deal alerts", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(alerts))
}

// GetAlert handles GET /alerts/:id.
func (h *Handler) GetAlert(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	alert, err := h.tracker.GetAlert(c.Request.Context(), id)
	if err != nil {
		respondError(c, "get alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// MarkAlertRead handles POST /alerts/:id/read.
func (h *Handler) MarkAlertRead(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	alert, err := h.tracker.MarkAlertRead(c.Request.Context(), id)
	if err != nil {
		respondError(c, "mark alert read", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// MarkAllAlertsRead handles POST /alerts/read-all.
func (h *Handler) MarkAllAlertsRead(c *gin.Context) {
	n, err := h.tracker.MarkAllAlertsRead(c.Request.Context())
	if err != nil {
		respondError(c, "mark all read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// RunMonitoring handles POST /monitoring/run.
func (h *Handler) RunMonitoring(c *gin.Context) {
	stats, err := h.monitor.MonitorAllTrackedGames(c.Request.Context())
	if err != nil {
		respondError(c, "monitoring run", err)
		return
	}
	c.JSON(http.StatusOK, monitoringResponse{Stats: stats, Summary: stats.Summary()})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	sweeping := h.monitor.Running()
	if h.health != nil {
		if err := h.health.HealthCheck(c.Request.Context()); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "sweep_in_progress": sweeping})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sweep_in_progress": sweeping})
}

// nonNil renders empty results as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
