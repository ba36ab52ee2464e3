package prices

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/udoglabs/wager-engine/internal/metrics"
)

// Snapshot is the latest market-data view served to display surfaces.
type Snapshot struct {
	Global    *GlobalData            `json:"global,omitempty"`
	TopCoins  []Coin                 `json:"top_coins"`
	Trending  []TrendingCoin         `json:"trending"`
	Spot      map[string]SimplePrice `json:"spot"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Poller refreshes a market-data snapshot on an interval. A refresh
// failure keeps the previous snapshot; display surfaces show stale data
// rather than nothing.
type Poller struct {
	client   *Client
	interval time.Duration
	coinIDs  []string
	topN     int

	mu   sync.RWMutex
	snap Snapshot
}

// NewPoller creates a poller tracking spot quotes for coinIDs.
func NewPoller(client *Client, interval time.Duration, coinIDs []string, topN int) *Poller {
	if topN <= 0 {
		topN = 10
	}
	return &Poller{
		client:   client,
		interval: interval,
		coinIDs:  coinIDs,
		topN:     topN,
	}
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
// Must be called in a goroutine.
func (p *Poller) Run(ctx context.Context) {
	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

// Snapshot returns the latest snapshot. The zero snapshot means no
// refresh has succeeded yet.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// refresh fetches all feeds; partial failures keep that feed's previous
// value.
func (p *Poller) refresh(ctx context.Context) {
	p.mu.RLock()
	next := p.snap
	p.mu.RUnlock()

	failed := false

	if global, err := p.client.Global(ctx); err != nil {
		slog.Warn("global market data refresh failed", "error", err)
		failed = true
	} else {
		next.Global = global
	}

	if coins, err := p.client.TopCoins(ctx, p.topN); err != nil {
		slog.Warn("top coins refresh failed", "error", err)
		failed = true
	} else {
		next.TopCoins = coins
	}

	if trending, err := p.client.Trending(ctx); err != nil {
		slog.Warn("trending refresh failed", "error", err)
		failed = true
	} else {
		next.Trending = trending
	}

	if len(p.coinIDs) > 0 {
		if spot, err := p.client.Simple(ctx, p.coinIDs); err != nil {
			slog.Warn("spot quotes refresh failed", "error", err)
			failed = true
		} else {
			next.Spot = spot
		}
	}

	next.FetchedAt = time.Now().UTC()

	p.mu.Lock()
	p.snap = next
	p.mu.Unlock()

	outcome := "ok"
	if failed {
		outcome = "partial"
	}
	metrics.PriceRefreshes.WithLabelValues(outcome).Inc()
}

// HandleSnapshot handles GET /api/v1/prices
func (p *Poller) HandleSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.Snapshot())
}
