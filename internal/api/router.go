package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	games := r.Group("/games")
	{
		games.GET("/search", h.SearchGames)
		games.GET("/lookup", h.LookupGame)
		games.GET("/deals", h.ListDealsFeed)
		games.GET("/deals/:deal_id", h.LookupDeal)
		games.GET("/stores", h.ListStores)
		games.POST("/track-game", h.TrackGameByTitle)
		games.POST("/track-game-by-id", h.TrackGameByID)
		games.GET("/tracked", h.ListTrackedGames)
		games.GET("/tracked/games/:id", h.GetTrackedGame)
		games.GET("/tracked/games/:id/changes", h.GamePriceChanges)
		games.DELETE("/tracked/games/:id", h.UntrackGame)
		games.GET("/tracked/deals", h.ListTrackedDeals)
		games.GET("/tracked/sales", h.ListTrackedSales)
		games.GET("/tracked/deals/:deal_id/history", h.DealHistory)
		games.GET("/tracked/deals/:deal_id/alerts", h.DealAlerts)
		games.DELETE("/tracked/deals/:deal_id", h.UntrackDeal)
	}

	alerts := r.Group("/alerts")
	{
		alerts.GET("", h.RecentAlerts)
		alerts.GET("/all", h.AllAlerts)
		alerts.POST("/read-all", h.MarkAllAlertsRead)
		alerts.GET("/:id", h.GetAlert)
		alerts.POST("/:id/read", h.MarkAlertRead)
	}

	r.POST("/monitoring/run", h.RunMonitoring)
	r.GET("/healthz", h.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	return r
}

// requestLogger logs each request with zerolog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
