// Package repository tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"game-price-tracker/internal/model"
	"game-price-tracker/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container with the tracker schema.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func newTestDeal(gameID int64, dealID string, price float64, onSale bool) *model.Deal {
	now := time.Now().UTC()
	return &model.Deal{
		GameID:             gameID,
		DealID:             dealID,
		StoreID:            model.Ptr("1"),
		StoreName:          model.Ptr("Steam"),
		CurrentPrice:       price,
		OriginalPrice:      model.Ptr(59.99),
		DiscountPercentage: 0,
		IsOnSale:           onSale,
		URL:                model.Ptr("https://example.test/" + dealID),
		LastCheckedAt:      &now,
	}
}

// ============================================================================
// GameRepository Tests
// ============================================================================

func TestGameRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	game, err := repo.Create(ctx, "612", "LEGO Batman", model.Ptr("https://img.test/612.jpg"))
	require.NoError(t, err)
	assert.NotZero(t, game.ID)
	assert.Equal(t, "612", game.ExternalID)
	assert.False(t, game.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, "LEGO Batman", byID.Title)

	byExt, err := repo.GetByExternalID(ctx, "612")
	require.NoError(t, err)
	assert.Equal(t, game.ID, byExt.ID)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrGameNotFound)
	_, err = repo.GetByExternalID(ctx, "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestGameRepository_ExternalIDIsUnique(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "612", "LEGO Batman", nil)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "612", "LEGO Batman again", nil)
	assert.Error(t, err)

	game, created, err := repo.GetOrCreate(ctx, "612", "ignored", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "LEGO Batman", game.Title)

	_, created, err = repo.GetOrCreate(ctx, "613", "Portal", nil)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGameRepository_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGameRepository(pool)
	ctx := context.Background()

	for i, title := range []string{"Portal", "Portal 2", "Half-Life"} {
		_, err := repo.Create(ctx, string(rune('a'+i)), title, nil)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Portal 2", page[0].Title)
}

// ============================================================================
// DealRepository Tests
// ============================================================================

func TestDealRepository_CreateUpdate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	games := NewGameRepository(pool)
	deals := NewDealRepository(pool)
	ctx := context.Background()

	game, err := games.Create(ctx, "1", "Portal", nil)
	require.NoError(t, err)

	deal, err := deals.Create(ctx, newTestDeal(game.ID, "abc", 59.99, false))
	require.NoError(t, err)
	assert.Equal(t, "abc", deal.DealID)
	assert.InDelta(t, 59.99, deal.CurrentPrice, 0.0001)

	// Duplicate external deal id is rejected
	_, err = deals.Create(ctx, newTestDeal(game.ID, "abc", 10, false))
	assert.Error(t, err)

	updated, err := deals.Update(ctx, deal.ID, model.DealPatch{
		CurrentPrice: model.Ptr(39.99),
		IsOnSale:     model.Ptr(true),
	})
	require.NoError(t, err)
	assert.InDelta(t, 39.99, updated.CurrentPrice, 0.0001)
	assert.True(t, updated.IsOnSale)
	// Fields absent from the patch are unchanged
	require.NotNil(t, updated.StoreName)
	assert.Equal(t, "Steam", *updated.StoreName)
	require.NotNil(t, updated.OriginalPrice)
	assert.InDelta(t, 59.99, *updated.OriginalPrice, 0.0001)

	refreshed, err := deals.Update(ctx, deal.ID, model.DealPatch{
		CurrentPrice:       model.Ptr(59.99),
		DiscountPercentage: model.Ptr(0.0),
		IsOnSale:           model.Ptr(false),
		Overwrite:          true,
	})
	require.NoError(t, err)
	assert.False(t, refreshed.IsOnSale)
	// Overwrite clears nullable fields the fresh values leave out
	assert.Nil(t, refreshed.OriginalPrice)
	assert.Nil(t, refreshed.URL)
	require.NotNil(t, refreshed.StoreName)

	_, err = deals.Update(ctx, 99999, model.DealPatch{CurrentPrice: model.Ptr(1.0)})
	assert.ErrorIs(t, err, ErrDealNotFound)

	byDealID, err := deals.GetByDealID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, deal.ID, byDealID.ID)

	byID, err := deals.GetByID(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", byID.DealID)
	_, err = deals.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrDealNotFound)

	onSale, err := deals.ListOnSale(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, onSale, 1)
}

// ============================================================================
// PriceHistory / PriceAlert Tests
// ============================================================================

func TestPriceHistoryRepository_Latest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	games := NewGameRepository(pool)
	deals := NewDealRepository(pool)
	history := NewPriceHistoryRepository(pool)
	ctx := context.Background()

	game, err := games.Create(ctx, "1", "Portal", nil)
	require.NoError(t, err)
	deal, err := deals.Create(ctx, newTestDeal(game.ID, "abc", 20, false))
	require.NoError(t, err)

	_, err = history.Latest(ctx, deal.ID)
	assert.ErrorIs(t, err, ErrHistoryNotFound)

	base := time.Now().UTC().Add(-time.Hour)
	_, err = history.Create(ctx, deal.ID, 20, 0, base)
	require.NoError(t, err)
	_, err = history.Create(ctx, deal.ID, 15, 25, base.Add(time.Minute))
	require.NoError(t, err)

	latest, err := history.Latest(ctx, deal.ID)
	require.NoError(t, err)
	assert.InDelta(t, 15, latest.Price, 0.0001)

	list, err := history.ListByDeal(ctx, deal.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CheckedAt.After(list[1].CheckedAt))
}

func TestPriceAlertRepository_ReadFlag(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	games := NewGameRepository(pool)
	deals := NewDealRepository(pool)
	alerts := NewPriceAlertRepository(pool)
	ctx := context.Background()

	game, err := games.Create(ctx, "1", "Portal", nil)
	require.NoError(t, err)
	deal, err := deals.Create(ctx, newTestDeal(game.ID, "abc", 20, true))
	require.NoError(t, err)

	first, err := alerts.Create(ctx, model.NewPriceAlert{
		DealID:    deal.ID,
		AlertType: model.AlertNewDeal,
		NewPrice:  20,
		Message:   "new deal",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AlertNewDeal, first.AlertType)
	assert.Nil(t, first.PreviousPrice)
	assert.False(t, first.IsRead)

	_, err = alerts.Create(ctx, model.NewPriceAlert{
		DealID:             deal.ID,
		AlertType:          model.AlertPriceDrop,
		PreviousPrice:      model.Ptr(20.0),
		NewPrice:           15,
		DiscountPercentage: model.Ptr(25.0),
		Message:            "drop",
	})
	require.NoError(t, err)

	unread, err := alerts.ListUnread(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	read, err := alerts.MarkRead(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	unread, err = alerts.ListUnread(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	n, err := alerts.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = alerts.MarkRead(ctx, 99999)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	got, err := alerts.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	_, err = alerts.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

// ============================================================================
// Cascade deletion
// ============================================================================

func TestCascadeDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	games := NewGameRepository(pool)
	deals := NewDealRepository(pool)
	history := NewPriceHistoryRepository(pool)
	alerts := NewPriceAlertRepository(pool)
	ctx := context.Background()

	game, err := games.Create(ctx, "1", "Portal", nil)
	require.NoError(t, err)
	d1, err := deals.Create(ctx, newTestDeal(game.ID, "d1", 20, true))
	require.NoError(t, err)
	d2, err := deals.Create(ctx, newTestDeal(game.ID, "d2", 25, false))
	require.NoError(t, err)

	for _, d := range []*model.Deal{d1, d2} {
		_, err = history.Create(ctx, d.ID, d.CurrentPrice, 0, time.Now())
		require.NoError(t, err)
		_, err = alerts.Create(ctx, model.NewPriceAlert{DealID: d.ID, AlertType: model.AlertNewDeal, NewPrice: d.CurrentPrice})
		require.NoError(t, err)
	}

	// Deleting a deal removes its history and alerts only
	require.NoError(t, deals.Delete(ctx, d1.ID))
	h, err := history.ListByDeal(ctx, d1.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, h)
	a, err := alerts.ListByDeal(ctx, d1.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, a)
	h, err = history.ListByDeal(ctx, d2.ID, 10)
	require.NoError(t, err)
	assert.Len(t, h, 1)

	// Deleting the game removes the remaining deal and its rows
	require.NoError(t, games.Delete(ctx, game.ID))
	remaining, err := deals.ListByGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	h, err = history.ListByDeal(ctx, d2.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, h)

	assert.ErrorIs(t, games.Delete(ctx, game.ID), ErrGameNotFound)
	assert.ErrorIs(t, deals.Delete(ctx, d2.ID), ErrDealNotFound)
}
