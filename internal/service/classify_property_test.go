package service

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"game-price-tracker/internal/model"
)

func priceGen() *rapid.Generator[float64] {
	return rapid.Custom(func(t *rapid.T) float64 {
		return float64(rapid.IntRange(1, 20000).Draw(t, "cents")) / 100
	})
}

// A deal that goes on sale is always a new sale, whatever its price did.
func TestClassifyChange_NewSaleWinsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		oldPrice := priceGen().Draw(t, "old")
		newPrice := priceGen().Draw(t, "new")

		got := classifyChange(oldPrice, newPrice, false, true)
		if got.Alert != model.AlertNewSale {
			t.Fatalf("expected new_sale for %.2f -> %.2f, got %q", oldPrice, newPrice, got.Alert)
		}
	})
}

// Without a sale transition, a price_drop is raised exactly when the price fell
// by more than the epsilon and by at least five percent.
func TestClassifyChange_PriceDropProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		oldPrice := priceGen().Draw(t, "old")
		newPrice := priceGen().Draw(t, "new")
		oldOnSale := rapid.Bool().Draw(t, "oldOnSale")
		newOnSale := false
		if oldOnSale {
			newOnSale = rapid.Bool().Draw(t, "newOnSale")
		}

		got := classifyChange(oldPrice, newPrice, oldOnSale, newOnSale)

		drop := (oldPrice - newPrice) / oldPrice * 100
		want := math.Abs(oldPrice-newPrice) > priceEpsilon && newPrice < oldPrice && drop >= dropAlertPercent

		if want {
			if got.Alert != model.AlertPriceDrop {
				t.Fatalf("expected price_drop for %.2f -> %.2f", oldPrice, newPrice)
			}
			if math.Abs(got.DropPercent-drop) > 1e-9 {
				t.Fatalf("drop percent %.4f, want %.4f", got.DropPercent, drop)
			}
			return
		}
		if got.Alert != "" {
			t.Fatalf("expected no alert for %.2f -> %.2f, got %q", oldPrice, newPrice, got.Alert)
		}
	})
}

// Price changes within the epsilon never raise anything.
func TestClassifyChange_NoiseProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		oldPrice := priceGen().Draw(t, "old")
		delta := rapid.Float64Range(-0.009, 0.009).Draw(t, "delta")
		onSale := rapid.Bool().Draw(t, "onSale")

		got := classifyChange(oldPrice, oldPrice+delta, onSale, onSale)
		if got.Alert != "" {
			t.Fatalf("expected no alert for delta %.4f, got %q", delta, got.Alert)
		}
	})
}
