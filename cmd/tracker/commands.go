package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"game-price-tracker/internal/api"
	"game-price-tracker/internal/bot"
	"game-price-tracker/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

// newServeCmd returns the `tracker serve` command: HTTP API, scheduler and optional bot.
func newServeCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sweep scheduler and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configDir)
			if err != nil {
				return err
			}
			defer a.close()

			var wg sync.WaitGroup

			if a.cfg.Monitor.Enabled {
				wg.Add(1)
				go func() {
					defer wg.Done()
					scheduler.Run(ctx, a.monitor, scheduler.Config{
						IntervalSeconds: a.cfg.Monitor.IntervalSeconds,
						RunOnStart:      a.cfg.Monitor.RunOnStart,
					})
				}()
			} else {
				log.Info().Msg("Scheduled monitoring disabled")
			}

			var telegramBot *bot.Bot
			if a.cfg.Bot.Token != "" {
				telegramBot, err = bot.New(&bot.Dependencies{
					Config:  a.cfg,
					Tracker: a.tracker,
					Sweeper: a.monitor,
				})
				if err != nil {
					return err
				}
				go telegramBot.Start()
			} else {
				log.Info().Msg("Bot token not set, Telegram bot disabled")
			}

			gin.SetMode(a.cfg.HTTP.GinMode)
			router := api.NewRouter(api.NewHandler(a.tracker, a.monitor, a.pool), a.metrics.Handler())
			srv := &http.Server{
				Addr:              a.cfg.HTTP.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("HTTP server started")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("Shutdown signal received")
			case err := <-serveErr:
				if err != nil {
					log.Error().Err(err).Msg("HTTP server failed")
				}
				stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("HTTP server shutdown")
			}
			if telegramBot != nil {
				telegramBot.Stop()
			}

			// the scheduler lets an in-flight game finish before returning
			wg.Wait()
			log.Info().Msg("Graceful shutdown complete")
			return nil
		},
	}
}

// newSweepCmd returns the `tracker sweep` command: one sweep, stats printed as JSON.
func newSweepCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single monitoring sweep and print its statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configDir)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.monitor.MonitorAllTrackedGames(ctx)
			if stats != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(stats); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}
}

// newMigrateCmd returns the `tracker migrate` command.
func newMigrateCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			pool, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			pool.Close()
			log.Info().Msg("Migrations applied")
			return nil
		},
	}
}
