// Package correlation keeps the most recent observation per correlation key so
// temporal rules can ask whether a related event happened recently.
package correlation

import (
	"sync"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// NoZone is the key component used when an event carries no string zone_id.
const NoZone = "-"

// Key builds the correlation key for an event type and zone.
func Key(eventType models.EventType, zoneID string) string {
	if zoneID == "" {
		zoneID = NoZone
	}
	return string(eventType) + "|" + zoneID
}

// KeyFor derives the correlation key from an event type and its payload.
func KeyFor(eventType models.EventType, payload models.Payload) string {
	zone, _ := payload.StringField("zone_id")
	return Key(eventType, zone)
}

// Observation is what gets recorded for an event.
type Observation struct {
	EventID string
	Payload models.Payload
}

// Entry is the latest observation stored under a key.
type Entry struct {
	Key       string
	Timestamp time.Time
	EventID   string
	Value     models.Payload
}

// Age returns how long before now the entry was observed.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for freshness checks and zero timestamps.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Store is a last-write-wins map of correlation entries. Entries are never
// evicted; staleness is decided when they are read. Memory is bounded by the
// number of distinct keys.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     Clock
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Record overwrites the entry for key. A zero at records the store's now.
func (s *Store) Record(key string, obs Observation, at time.Time) Entry {
	if at.IsZero() {
		at = s.now()
	}
	entry := Entry{
		Key:       key,
		Timestamp: at,
		EventID:   obs.EventID,
		Value:     obs.Payload.Clone(),
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return entry
}

// Lookup returns the entry for key regardless of age.
func (s *Store) Lookup(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// LookupIfFresh returns the entry for key only if now - entry.Timestamp <= within.
func (s *Store) LookupIfFresh(key string, within time.Duration) (Entry, bool) {
	entry, ok := s.Lookup(key)
	if !ok {
		return Entry{}, false
	}
	if entry.Age(s.now()) > within {
		return Entry{}, false
	}
	return entry, true
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
