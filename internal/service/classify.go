package service

import (
	"fmt"
	"math"

	"game-price-tracker/internal/model"
)

const (
	// priceEpsilon is the smallest price difference treated as a change.
	priceEpsilon = 0.01
	// dropAlertPercent is the minimum drop that raises a price_drop alert.
	dropAlertPercent = 5.0
)

// priceEvent is the classification of one existing deal's fresh offer.
type priceEvent struct {
	Alert       model.AlertType // empty when nothing notable happened
	DropPercent float64
}

// classifyChange compares a stored deal's state with a fresh offer.
// The checks are ordered and the first match wins, so a deal that goes on sale
// at a lower price is reported as a new sale only.
func classifyChange(oldPrice, newPrice float64, oldOnSale, newOnSale bool) priceEvent {
	if !oldOnSale && newOnSale {
		return priceEvent{Alert: model.AlertNewSale}
	}
	if priceChanged(oldPrice, newPrice) && newPrice < oldPrice {
		drop := (oldPrice - newPrice) / oldPrice * 100
		if drop >= dropAlertPercent {
			return priceEvent{Alert: model.AlertPriceDrop, DropPercent: drop}
		}
	}
	return priceEvent{}
}

func priceChanged(a, b float64) bool {
	return math.Abs(a-b) > priceEpsilon
}

func storeLabel(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}

func newDealMessage(o model.Offer) string {
	return fmt.Sprintf("New deal at %s! $%.2f (-%.0f%%)",
		storeLabel(o.StoreName), o.Price, o.DiscountPercentage)
}

func newSaleMessage(o model.Offer, oldPrice float64) string {
	return fmt.Sprintf("New sale at %s! From $%.2f to $%.2f (-%.0f%%)",
		storeLabel(o.StoreName), oldPrice, o.Price, o.DiscountPercentage)
}

func priceDropMessage(o model.Offer, oldPrice, drop float64) string {
	return fmt.Sprintf("Price dropped at %s! From $%.2f to $%.2f (-%.1f%%)",
		storeLabel(o.StoreName), oldPrice, o.Price, drop)
}
