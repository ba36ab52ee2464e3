package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/model"
)

// SeedDemoMarkets loads the built-in demo markets into an empty gateway.
// It is a no-op when markets already exist, so restarts do not duplicate.
func SeedDemoMarkets(ctx context.Context, gw Gateway) error {
	existing, err := gw.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	demo := []model.Market{
		{
			Title:       "Will Bitcoin reach $100,000 by end of 2025?",
			Description: "Prediction on whether BTC will hit the $100k milestone before January 1, 2026",
			Category:    "Bitcoin",
			Status:      model.MarketOpen,
			YesPrice:    decimal.NewFromFloat(0.42),
			NoPrice:     decimal.NewFromFloat(0.58),
			TotalVolume: decimal.NewFromInt(12650),
			Deadline:    time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			Title:       "Will Ethereum 2.0 complete by Q3 2025?",
			Description: "Market on whether ETH 2.0 upgrade will be fully implemented",
			Category:    "Ethereum",
			Status:      model.MarketOpen,
			YesPrice:    decimal.NewFromFloat(0.62),
			NoPrice:     decimal.NewFromFloat(0.38),
			TotalVolume: decimal.NewFromInt(12000),
			Deadline:    time.Date(2025, 9, 30, 23, 59, 59, 0, time.UTC),
		},
		{
			Title:       "Will any altcoin flip Bitcoin by market cap in 2025?",
			Description: "Prediction on whether any cryptocurrency will surpass Bitcoin's market capitalization",
			Category:    "Market Cap",
			Status:      model.MarketOpen,
			YesPrice:    decimal.NewFromFloat(0.22),
			NoPrice:     decimal.NewFromFloat(0.78),
			TotalVolume: decimal.NewFromInt(11900),
			Deadline:    time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
		},
	}

	for i := range demo {
		demo[i].ID = uuid.NewString()
		demo[i].CreatedAt = now
		if err := gw.CreateMarket(ctx, &demo[i]); err != nil {
			return fmt.Errorf("seed market %q: %w", demo[i].Title, err)
		}
	}
	return nil
}
