package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-price-tracker/internal/model"
)

// Sweeper runs a full monitoring sweep.
type Sweeper interface {
	MonitorAllTrackedGames(ctx context.Context) (*model.MonitoringStats, error)
}

// AdminHandler handles admin-only commands.
type AdminHandler struct {
	sweeper Sweeper
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(sweeper Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// HandleSweep handles the /sweep command: runs a monitoring sweep now.
func (h *AdminHandler) HandleSweep(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	// A sweep can outlast commandTimeout; it is bounded by the game cap instead.
	stats, err := h.sweeper.MonitorAllTrackedGames(context.Background())
	if err != nil {
		return replyError(c, "sweep", err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("run_id", stats.RunID).
		Str("operation", "sweep").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("✅ Sweep finished in %.2fs\n\n%s", stats.DurationSeconds, stats.Summary()))
}
