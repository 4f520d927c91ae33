// Package market resolves fixtures to venue markets: given a
// fixture, it returns the matching binary winner market and infers the
// yes_is_home side mapping, consulting an in-memory index with a
// remote-search fallback.
package market

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sportsedge/internal/venue"
)

// RemoteCache is an optional L2 cache shared across engine instances, sitting
// behind the resolver's in-memory L1 map; satisfied by *rediscache.Cache.
// Kept as a narrow interface here
// so the resolver never imports the storage layer directly.
type RemoteCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// nonWinnerPatterns filters out spread/over-under/props/quarter-winner
// markets.
var nonWinnerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)spread`),
	regexp.MustCompile(`(?i)over[\s/-]*under`),
	regexp.MustCompile(`(?i)\bo/u\b`),
	regexp.MustCompile(`(?i)props?\b`),
	regexp.MustCompile(`(?i)quarter\s*winner`),
	regexp.MustCompile(`(?i)\bqtr\b`),
	regexp.MustCompile(`(?i)half\s*time`),
	regexp.MustCompile(`(?i)total\s*points`),
}

func isWinnerMarket(title string) bool {
	for _, p := range nonWinnerPatterns {
		if p.MatchString(title) {
			return false
		}
	}
	return true
}

type cacheEntry struct {
	market    venue.Market
	expiresAt time.Time
}

// Resolver caches fixture->market lookups with a TTL and falls back to a
// remote search when the cache misses.
type Resolver struct {
	searcher venue.MarketSearcher
	ttl      time.Duration
	remote   RemoteCache // optional; nil disables the L2 lookup

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver constructs a Resolver backed by a remote MarketSearcher. remote
// may be nil, in which case only the in-memory L1 cache is used.
func NewResolver(searcher venue.MarketSearcher, ttl time.Duration, remote RemoteCache) *Resolver {
	return &Resolver{
		searcher: searcher,
		ttl:      ttl,
		remote:   remote,
		cache:    make(map[string]cacheEntry),
	}
}

func remoteCacheKey(fixtureID string) string { return "market:" + fixtureID }

// Resolve returns the active binary winner market for a fixture, or
// (Market{}, false, nil) if none was found.
func (r *Resolver) Resolve(ctx context.Context, fixtureID, homeTeam, awayTeam string) (venue.Market, bool, error) {
	if m, ok := r.cacheGet(fixtureID); ok {
		return m, true, nil
	}

	if r.remote != nil {
		var m venue.Market
		if hit, err := r.remote.Get(ctx, remoteCacheKey(fixtureID), &m); err != nil {
			log.Warn().Err(err).Str("fixture", fixtureID).Msg("market resolver: remote cache read failed, falling back to search")
		} else if hit {
			r.cacheSet(fixtureID, m)
			return m, true, nil
		}
	}

	query := fmt.Sprintf("%s vs %s", homeTeam, awayTeam)
	candidates, err := r.searcher.SearchMarkets(ctx, query)
	if err != nil {
		return venue.Market{}, false, fmt.Errorf("resolve fixture %s: %w", fixtureID, err)
	}

	for _, m := range candidates {
		if m.FixtureID != "" && m.FixtureID != fixtureID {
			continue
		}
		if m.Status.Status != venue.StatusActive {
			continue
		}
		if !isWinnerMarket(m.Title) {
			continue
		}

		m.YesIsHome = inferYesIsHome(m.YesDescription, homeTeam, awayTeam)
		r.cacheSet(fixtureID, m)
		if r.remote != nil {
			if err := r.remote.Set(ctx, remoteCacheKey(fixtureID), m, r.ttl); err != nil {
				log.Warn().Err(err).Str("fixture", fixtureID).Msg("market resolver: remote cache write failed")
			}
		}
		return m, true, nil
	}

	return venue.Market{}, false, nil
}

// inferYesIsHome matches team names against the market's YES-side
// description.
func inferYesIsHome(yesDescription, homeTeam, awayTeam string) bool {
	desc := strings.ToLower(yesDescription)
	if strings.Contains(desc, strings.ToLower(homeTeam)) {
		return true
	}
	if strings.Contains(desc, strings.ToLower(awayTeam)) {
		return false
	}
	// Ambiguous description: default to home, matching the conservative
	// convention used elsewhere when team matching is inconclusive.
	return true
}

func (r *Resolver) cacheGet(fixtureID string) (venue.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[fixtureID]
	if !ok || time.Now().After(entry.expiresAt) {
		return venue.Market{}, false
	}
	return entry.market, true
}

func (r *Resolver) cacheSet(fixtureID string, m venue.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[fixtureID] = cacheEntry{market: m, expiresAt: time.Now().Add(r.ttl)}
}

// Invalidate drops a fixture's cached market, e.g. when the venue reports it resolved.
func (r *Resolver) Invalidate(fixtureID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, fixtureID)
}
