package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/sawpanic/sportsedge/internal/models"
)

// dedupKey identifies an event for de-duplication: a prior event with
// identical (fixture, kind, new-state) within the window is a duplicate.
func dedupKey(fixtureID string, kind Kind, state models.GameState) string {
	return fmt.Sprintf("%s|%s|%+v", fixtureID, kind, state)
}

type dedupEntry struct {
	event   *ScoreEvent
	lastSeen time.Time
}

// Deduper tracks recently-emitted events within a sliding window and folds
// duplicate observations into the original event's consensus count instead of
// re-emitting them, so an event is persisted at most once per
// (fixture, kind, new-state) within the window.
type Deduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]*dedupEntry
}

// NewDeduper constructs a Deduper with the given dedup window.
func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{window: window, seen: make(map[string]*dedupEntry)}
}

// Observe registers a newly-classified event. It returns (event, true) if this
// is the first observation within the window — the caller should emit it —
// or (nil, false) if it is a duplicate, in which case the original's
// ConsensusCount has already been incremented in place.
func (d *Deduper) Observe(candidate *ScoreEvent) (*ScoreEvent, bool) {
	key := dedupKey(candidate.FixtureID, candidate.Kind, candidate.NewState)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked(candidate.Timestamp)

	if entry, ok := d.seen[key]; ok {
		entry.event.ConsensusCount++
		entry.lastSeen = candidate.Timestamp
		return nil, false
	}

	candidate.ConsensusCount = 1
	d.seen[key] = &dedupEntry{event: candidate, lastSeen: candidate.Timestamp}
	return candidate, true
}

// pruneLocked drops dedup entries older than the window relative to `now`.
// Must be called with d.mu held.
func (d *Deduper) pruneLocked(now time.Time) {
	for key, entry := range d.seen {
		if now.Sub(entry.lastSeen) > d.window {
			delete(d.seen, key)
		}
	}
}
