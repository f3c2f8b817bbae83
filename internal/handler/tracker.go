// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-price-tracker/internal/model"
	"game-price-tracker/internal/service"
)

// commandTimeout bounds the work done for a single command.
const commandTimeout = 30 * time.Second

const (
	listLimit    = 20
	historyLimit = 10
	alertLimit   = 10
)

// Tracker is the tracking surface used by the bot.
type Tracker interface {
	TrackByTitle(ctx context.Context, title string) (*model.TrackResult, error)
	TrackByExternalID(ctx context.Context, externalID string) (*model.TrackResult, error)
	UntrackGame(ctx context.Context, id int64) error
	ListGames(ctx context.Context, offset, limit int) ([]*model.Game, error)
	GameDeals(ctx context.Context, gameID int64) ([]*model.Deal, error)
	DealHistory(ctx context.Context, dealID string, limit int) ([]*model.PriceHistory, error)
	CheckPriceChanges(ctx context.Context, gameID int64) (*model.GamePriceChanges, error)
	RecentAlerts(ctx context.Context, limit int) ([]*model.PriceAlert, error)
	MarkAlertRead(ctx context.Context, id int64) (*model.PriceAlert, error)
	MarkAllAlertsRead(ctx context.Context) (int64, error)
}

// TrackerHandler handles tracking and alert commands.
type TrackerHandler struct {
	tracker Tracker
}

// NewTrackerHandler creates a new TrackerHandler.
func NewTrackerHandler(tracker Tracker) *TrackerHandler {
	return &TrackerHandler{tracker: tracker}
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

// argText joins the command arguments into one string.
func argText(c tele.Context) string {
	return strings.TrimSpace(strings.Join(c.Args(), " "))
}

// argID parses the first argument as a positive id.
func argID(c tele.Context) (int64, bool) {
	args := c.Args()
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// replyError turns a service error into a user facing reply.
func replyError(c tele.Context, op string, err error) error {
	switch {
	case errors.Is(err, service.ErrGameNotFound):
		return c.Reply("❌ Game not found")
	case errors.Is(err, service.ErrDealNotFound):
		return c.Reply("❌ Deal not found")
	case errors.Is(err, service.ErrAlertNotFound):
		return c.Reply("❌ Alert not found")
	case errors.Is(err, service.ErrSweepInProgress):
		return c.Reply("⏳ A price check is already running")
	case errors.Is(err, service.ErrGameBusy):
		return c.Reply("⏳ This game is being checked right now, try again shortly")
	case errors.Is(err, service.ErrPriceSourceUnavailable):
		log.Warn().Err(err).Str("op", op).Msg("Price source unavailable")
		return c.Reply("⚠️ Could not reach the price source, nothing was checked. Try again later")
	}
	log.Error().Err(err).Str("op", op).Msg("Command failed")
	return c.Reply("❌ Something went wrong, please try again later")
}

// HandleStart handles the /start command.
func (h *TrackerHandler) HandleStart(c tele.Context) error {
	return c.Reply(helpText)
}

// HandleTrack handles the /track command.
// Format: /track <title>
func (h *TrackerHandler) HandleTrack(c tele.Context) error {
	title := argText(c)
	if title == "" {
		return c.Reply("Usage: /track <title>")
	}

	ctx, cancel := commandContext()
	defer cancel()

	res, err := h.tracker.TrackByTitle(ctx, title)
	if err != nil {
		return replyError(c, "track", err)
	}
	return c.Reply(formatTrackResult(res))
}

// HandleTrackID handles the /trackid command.
// Format: /trackid <cheapshark game id>
func (h *TrackerHandler) HandleTrackID(c tele.Context) error {
	id := argText(c)
	if id == "" {
		return c.Reply("Usage: /trackid <game id>")
	}

	ctx, cancel := commandContext()
	defer cancel()

	res, err := h.tracker.TrackByExternalID(ctx, id)
	if err != nil {
		return replyError(c, "track by id", err)
	}
	return c.Reply(formatTrackResult(res))
}

// HandleUntrack handles the /untrack command.
// Format: /untrack <game id>
func (h *TrackerHandler) HandleUntrack(c tele.Context) error {
	id, ok := argID(c)
	if !ok {
		return c.Reply("Usage: /untrack <game id>")
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := h.tracker.UntrackGame(ctx, id); err != nil {
		return replyError(c, "untrack", err)
	}
	return c.Reply(fmt.Sprintf("✅ Game #%d is no longer tracked", id))
}

// HandleTracked handles the /tracked command.
func (h *TrackerHandler) HandleTracked(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	games, err := h.tracker.ListGames(ctx, 0, listLimit)
	if err != nil {
		return replyError(c, "tracked", err)
	}
	return c.Reply(formatGames(games))
}

// HandleDeals handles the /deals command.
// Format: /deals <game id>
func (h *TrackerHandler) HandleDeals(c tele.Context) error {
	id, ok := argID(c)
	if !ok {
		return c.Reply("Usage: /deals <game id>")
	}

	ctx, cancel := commandContext()
	defer cancel()

	deals, err := h.tracker.GameDeals(ctx, id)
	if err != nil {
		return replyError(c, "deals", err)
	}
	return c.Reply(formatDeals(deals))
}

// HandleHistory handles the /history command.
// Format: /history <deal id>
func (h *TrackerHandler) HandleHistory(c tele.Context) error {
	dealID := argText(c)
	if dealID == "" {
		return c.Reply("Usage: /history <deal id>")
	}

	ctx, cancel := commandContext()
	defer cancel()

	history, err := h.tracker.DealHistory(ctx, dealID, historyLimit)
	if err != nil {
		return replyError(c, "history", err)
	}
	return c.Reply(formatHistory(history))
}

// HandleChanges handles the /changes command. It refreshes the game's prices first.
// Format: /changes <game id>
func (h *TrackerHandler) HandleChanges(c tele.Context) error {
	id, ok := argID(c)
	if !ok {
		return c.Reply("Usage: /changes <game id>")
	}

	ctx, cancel := commandContext()
	defer cancel()

	report, err := h.tracker.CheckPriceChanges(ctx, id)
	if err != nil {
		return replyError(c, "changes", err)
	}
	return c.Reply(formatChanges(report))
}

// HandleAlerts handles the /alerts command.
func (h *TrackerHandler) HandleAlerts(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	alerts, err := h.tracker.RecentAlerts(ctx, alertLimit)
	if err != nil {
		return replyError(c, "alerts", err)
	}
	return c.Reply(formatAlerts(alerts))
}

// HandleRead handles the /read command.
// Format: /read <alert id>
func (h *TrackerHandler) HandleRead(c tele.Context) error {
	id, ok := argID(c)
	if !ok {
		return c.Reply("Usage: /read <alert id>")
	}

	ctx, cancel := commandContext()
	defer cancel()

	if _, err := h.tracker.MarkAlertRead(ctx, id); err != nil {
		return replyError(c, "read", err)
	}
	return c.Reply(fmt.Sprintf("✅ Alert #%d marked as read", id))
}

// HandleReadAll handles the /readall command.
func (h *TrackerHandler) HandleReadAll(c tele.Context) error {
	ctx, cancel := commandContext()
	defer cancel()

	n, err := h.tracker.MarkAllAlertsRead(ctx)
	if err != nil {
		return replyError(c, "read all", err)
	}
	return c.Reply(fmt.Sprintf("✅ %d alerts marked as read", n))
}
