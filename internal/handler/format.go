package handler

import (
	"fmt"
	"strings"

	"game-price-tracker/internal/model"
)

const helpText = "🎮 Game price tracker\n\n" +
	"/track <title> - track a game by title\n" +
	"/trackid <id> - track a game by CheapShark id\n" +
	"/untrack <game id> - stop tracking a game\n" +
	"/tracked - list tracked games\n" +
	"/deals <game id> - current deals of a game\n" +
	"/history <deal id> - price history of a deal\n" +
	"/changes <game id> - refresh prices and show changes\n" +
	"/alerts - unread price alerts\n" +
	"/read <alert id> - mark an alert as read\n" +
	"/readall - mark all alerts as read"

func formatTrackResult(res *model.TrackResult) string {
	verb := "Now tracking"
	if !res.Created {
		verb = "Already tracking"
	}
	return fmt.Sprintf("✅ %s %s (#%d)\n📦 %d deals checked | %d on sale",
		verb, res.Game.Title, res.Game.ID, res.DealsTracked, res.Check.NewSales)
}

func formatGames(games []*model.Game) string {
	if len(games) == 0 {
		return "No games tracked yet. Use /track <title>."
	}
	var b strings.Builder
	b.WriteString("🎮 Tracked games\n")
	for _, g := range games {
		fmt.Fprintf(&b, "\n#%d %s", g.ID, g.Title)
	}
	return b.String()
}

func formatDeals(deals []*model.Deal) string {
	if len(deals) == 0 {
		return "No deals stored for this game."
	}
	var b strings.Builder
	b.WriteString("💰 Deals\n")
	for _, d := range deals {
		fmt.Fprintf(&b, "\n%s: $%.2f", deref(d.StoreName, "Unknown"), d.CurrentPrice)
		if d.IsOnSale {
			fmt.Fprintf(&b, " (-%.0f%%)", d.DiscountPercentage)
		}
		fmt.Fprintf(&b, "\n  id: %s", d.DealID)
	}
	return b.String()
}

func formatHistory(history []*model.PriceHistory) string {
	if len(history) == 0 {
		return "No price history yet."
	}
	var b strings.Builder
	b.WriteString("📈 Price history\n")
	for _, h := range history {
		fmt.Fprintf(&b, "\n%s  $%.2f", h.CheckedAt.Format("2006-01-02 15:04"), h.Price)
		if h.DiscountPercent > 0 {
			fmt.Fprintf(&b, " (-%.0f%%)", h.DiscountPercent)
		}
	}
	return b.String()
}

func formatChanges(report *model.GamePriceChanges) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 %s\n", report.Title)
	for _, d := range report.Deals {
		fmt.Fprintf(&b, "\n%s: ", storeOr(d.StoreName))
		switch {
		case d.PreviousPrice == nil:
			fmt.Fprintf(&b, "$%.2f (new)", d.CurrentPrice)
		case d.ChangeAmount != nil && *d.ChangeAmount != 0:
			fmt.Fprintf(&b, "$%.2f → $%.2f (%+.2f)", *d.PreviousPrice, d.CurrentPrice, *d.ChangeAmount)
		default:
			fmt.Fprintf(&b, "$%.2f (unchanged)", d.CurrentPrice)
		}
	}
	if best := report.BestPrice; best.CurrentBestPrice != nil {
		fmt.Fprintf(&b, "\n\n🏆 Best: $%.2f at %s", *best.CurrentBestPrice, storeOr(best.BestStoreName))
		if best.IsLower != nil && *best.IsLower {
			fmt.Fprintf(&b, " (down from $%.2f)", *best.PreviousBestPrice)
		}
	}
	return b.String()
}

func formatAlerts(alerts []*model.PriceAlert) string {
	if len(alerts) == 0 {
		return "🔕 No unread alerts."
	}
	var b strings.Builder
	b.WriteString("🔔 Unread alerts\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n#%d %s", a.ID, a.Message)
	}
	b.WriteString("\n\nUse /read <id> or /readall.")
	return b.String()
}

func deref(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func storeOr(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
