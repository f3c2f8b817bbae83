// Package model defines the data models for the game price tracker.
package model

import (
	"fmt"
	"math"
	"time"
)

// Game is a trackable title. It is the aggregation root for its deals.
type Game struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Title      string    `db:"title" json:"title"`
	ImageURL   *string   `db:"image_url" json:"image_url,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Deal is one store's current offer for a game.
// DealID is the upstream deal identifier and is unique across the system.
type Deal struct {
	ID                 int64      `db:"id" json:"id"`
	GameID             int64      `db:"game_id" json:"game_id"`
	DealID             string     `db:"deal_id" json:"deal_id"`
	StoreID            *string    `db:"store_id" json:"store_id,omitempty"`
	StoreName          *string    `db:"store_name" json:"store_name,omitempty"`
	CurrentPrice       float64    `db:"current_price" json:"current_price"`
	OriginalPrice      *float64   `db:"original_price" json:"original_price,omitempty"`
	DiscountPercentage float64    `db:"discount_percentage" json:"discount_percentage"`
	IsOnSale           bool       `db:"is_on_sale" json:"is_on_sale"`
	URL                *string    `db:"url" json:"url,omitempty"`
	LastCheckedAt      *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// DealPatch is a partial update for a deal. Nil fields are left unchanged,
// except that with Overwrite set a nil OriginalPrice or URL clears the stored value.
type DealPatch struct {
	CurrentPrice       *float64
	OriginalPrice      *float64
	DiscountPercentage *float64
	IsOnSale           *bool
	URL                *string
	LastCheckedAt      *time.Time
	Overwrite          bool
}

// PriceHistory is an immutable point-in-time snapshot of a deal's price.
type PriceHistory struct {
	ID              int64     `db:"id" json:"id"`
	DealID          int64     `db:"deal_id" json:"deal_id"`
	Price           float64   `db:"price" json:"price"`
	DiscountPercent float64   `db:"discount_percent" json:"discount_percent"`
	CheckedAt       time.Time `db:"checked_at" json:"checked_at"`
}

// AlertType categorizes a detected price event.
type AlertType string

// Alert types raised by the reconciliation engine.
const (
	AlertNewDeal   AlertType = "new_deal"   // First observation of an offer that is already on sale
	AlertNewSale   AlertType = "new_sale"   // Known offer went from regular price to on sale
	AlertPriceDrop AlertType = "price_drop" // Known offer got at least 5% cheaper
)

// PriceAlert is a durable notification of a detected price event.
// Only IsRead is ever mutated after creation.
type PriceAlert struct {
	ID                 int64     `db:"id" json:"id"`
	DealID             int64     `db:"deal_id" json:"deal_id"`
	AlertType          AlertType `db:"alert_type" json:"alert_type"`
	PreviousPrice      *float64  `db:"previous_price" json:"previous_price,omitempty"`
	NewPrice           float64   `db:"new_price" json:"new_price"`
	DiscountPercentage *float64  `db:"discount_percentage" json:"discount_percentage,omitempty"`
	Message            string    `db:"message" json:"message"`
	IsRead             bool      `db:"is_read" json:"is_read"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// AlertDetail is an alert together with the deal it was raised for.
type AlertDetail struct {
	*PriceAlert
	Deal *Deal `json:"deal"`
}

// NewPriceAlert holds the fields needed to create an alert.
type NewPriceAlert struct {
	DealID             int64
	AlertType          AlertType
	PreviousPrice      *float64
	NewPrice           float64
	DiscountPercentage *float64
	Message            string
}

// Offer is a single store's price data for a game as returned by the price source.
// Optional upstream fields are empty strings / nil when absent.
type Offer struct {
	Title              string   `json:"title"`
	GameID             string   `json:"game_id,omitempty"`
	DealID             string   `json:"deal_id,omitempty"`
	StoreID            string   `json:"store_id,omitempty"`
	StoreName          string   `json:"store_name,omitempty"`
	Price              float64  `json:"price"`
	OriginalPrice      *float64 `json:"original_price,omitempty"`
	DiscountPercentage float64  `json:"discount_percentage"`
	URL                string   `json:"url,omitempty"`
	ImageURL           string   `json:"image_url,omitempty"`
	IsOnSale           bool     `json:"is_on_sale"`
}

// GameOffers is the current set of offers for one game.
type GameOffers struct {
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url,omitempty"`
	Offers   []Offer `json:"deals"`
}

// Store is an upstream store.
type Store struct {
	ID       string `json:"store_id"`
	Name     string `json:"store_name"`
	IsActive bool   `json:"is_active"`
}

// DealsQuery filters the upstream deals feed.
type DealsQuery struct {
	StoreID     string
	MinDiscount int
	MaxPrice    *float64
	Limit       int
}

// GameCheckResult is the outcome of reconciling one game.
type GameCheckResult struct {
	GameID       int64  `json:"game_id"`
	GameTitle    string `json:"game_title"`
	DealsUpdated int    `json:"deals_updated"`
	NewSales     int    `json:"new_sales"`
	PriceDrops   int    `json:"price_drops"`
	Error        string `json:"error,omitempty"`
}

// MonitoringStats aggregates one sweep over all tracked games.
type MonitoringStats struct {
	RunID           string     `json:"run_id"`
	GamesChecked    int        `json:"games_checked"`
	DealsUpdated    int        `json:"deals_updated"`
	NewSales        int        `json:"new_sales"`
	PriceDrops      int        `json:"price_drops"`
	Errors          int        `json:"errors"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// Summary returns a one-line human readable description of the sweep.
func (s *MonitoringStats) Summary() string {
	return fmt.Sprintf("Checked %d games | %d new sales | %d price drops | %d errors",
		s.GamesChecked, s.NewSales, s.PriceDrops, s.Errors)
}

// DealPriceChange describes how one deal moved since its last snapshot.
type DealPriceChange struct {
	DealID        string   `json:"deal_id"`
	StoreName     string   `json:"store_name,omitempty"`
	PreviousPrice *float64 `json:"previous_price,omitempty"`
	CurrentPrice  float64  `json:"current_price"`
	ChangeAmount  *float64 `json:"change_amount,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
	IsPriceLower  *bool    `json:"is_price_lower,omitempty"`
}

// BestPriceChange compares the cheapest offer before and after a check.
type BestPriceChange struct {
	PreviousBestPrice *float64 `json:"previous_best_price,omitempty"`
	CurrentBestPrice  *float64 `json:"current_best_price,omitempty"`
	BestStoreName     string   `json:"best_store_name,omitempty"`
	BestDealID        string   `json:"best_deal_id,omitempty"`
	IsLower           *bool    `json:"is_lower,omitempty"`
}

// GamePriceChanges is the per-game price change report.
type GamePriceChanges struct {
	GameID    int64             `json:"game_id"`
	Title     string            `json:"title"`
	Deals     []DealPriceChange `json:"deals"`
	BestPrice BestPriceChange   `json:"best_price"`
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// TrackResult is the outcome of starting to track a game.
type TrackResult struct {
	Game         *Game           `json:"game"`
	Created      bool            `json:"created"`
	DealsTracked int             `json:"deals_tracked"`
	Check        GameCheckResult `json:"check"`
}
