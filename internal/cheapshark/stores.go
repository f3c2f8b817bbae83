package cheapshark

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"game-price-tracker/internal/model"
)

const (
	defaultStoreTTL = 24 * time.Hour
	// failedRefreshBackoff delays the next refresh after a failed one.
	failedRefreshBackoff = time.Minute
)

// fallbackStores is used until the first successful /stores fetch.
var fallbackStores = map[string]string{
	"1":  "Steam",
	"2":  "GamersGate",
	"3":  "GreenManGaming",
	"7":  "GOG",
	"8":  "Origin",
	"11": "Humble Store",
	"13": "Uplay",
	"15": "Fanatical",
	"25": "Epic Games Store",
	"27": "Gamesplanet",
	"28": "Voidu",
	"29": "Epic Games Store",
	"30": "GameBillet",
}

// storeCache maps store ids to names. Entries are refreshed lazily once older than ttl.
// Concurrent refreshes collapse into a single fetch; the swap is last writer wins.
type storeCache struct {
	mu         sync.RWMutex
	entries    map[string]string
	loadedAt   time.Time
	ttl        time.Duration
	retryAfter time.Time

	group singleflight.Group
	fetch func(ctx context.Context) ([]model.Store, error)
	now   func() time.Time
}

func newStoreCache(ttl time.Duration, fetch func(ctx context.Context) ([]model.Store, error)) *storeCache {
	if ttl <= 0 {
		ttl = defaultStoreTTL
	}
	return &storeCache{ttl: ttl, fetch: fetch, now: time.Now}
}

func (s *storeCache) fresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	if now.Before(s.retryAfter) {
		return true
	}
	return s.entries != nil && now.Sub(s.loadedAt) < s.ttl
}

func (s *storeCache) refresh(ctx context.Context) {
	_, _, _ = s.group.Do("stores", func() (any, error) {
		stores, err := s.fetch(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to refresh store names, keeping previous entries")
			s.mu.Lock()
			s.retryAfter = s.now().Add(failedRefreshBackoff)
			s.mu.Unlock()
			return nil, err
		}
		entries := make(map[string]string, len(stores))
		for _, st := range stores {
			entries[st.ID] = st.Name
		}
		s.mu.Lock()
		s.entries = entries
		s.loadedAt = s.now()
		s.mu.Unlock()
		log.Debug().Int("stores", len(entries)).Msg("Store names refreshed")
		return nil, nil
	})
}

// name returns the display name for a store id.
// Unknown ids render as "Store <id>"; an empty id renders as "Unknown".
func (s *storeCache) name(ctx context.Context, id string) string {
	if id == "" {
		return "Unknown"
	}
	if !s.fresh() {
		s.refresh(ctx)
	}

	s.mu.RLock()
	n, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return n
	}
	if n, ok := fallbackStores[id]; ok {
		return n
	}
	return "Store " + id
}
