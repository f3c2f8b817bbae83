// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-price-tracker/internal/config"
	"game-price-tracker/internal/handler"
)

// ErrMissingToken is returned when the bot is started without a token.
var ErrMissingToken = errors.New("bot token is required")

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	access *PrivateAccess

	trackerHandler *handler.TrackerHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config  *config.Config
	Tracker handler.Tracker
	Sweeper handler.Sweeper
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, ErrMissingToken
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		access:         NewPrivateAccess(),
		trackerHandler: handler.NewTrackerHandler(deps.Tracker),
		adminHandler:   handler.NewAdminHandler(deps.Sweeper),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.access))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	h := b.trackerHandler
	b.bot.Handle("/start", h.HandleStart)
	b.bot.Handle("/help", h.HandleStart)
	b.bot.Handle("/track", h.HandleTrack)
	b.bot.Handle("/trackid", h.HandleTrackID)
	b.bot.Handle("/untrack", h.HandleUntrack)
	b.bot.Handle("/tracked", h.HandleTracked)
	b.bot.Handle("/deals", h.HandleDeals)
	b.bot.Handle("/history", h.HandleHistory)
	b.bot.Handle("/changes", h.HandleChanges)
	b.bot.Handle("/alerts", h.HandleAlerts)
	b.bot.Handle("/read", h.HandleRead)
	b.bot.Handle("/readall", h.HandleReadAll)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/sweep", b.adminHandler.HandleSweep)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
