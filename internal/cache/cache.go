// Package cache keeps the locally durable copy of an itinerary.
//
// The cache is the source of truth for what the user sees. Every mutation
// persists the full snapshot before returning, so a crash never leaves a
// half-written plan. A missing or corrupt value is treated as an empty
// itinerary, never as a fatal error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

// KeyPrefix namespaces snapshot keys in the backend.
const KeyPrefix = "bay-area-itinerary"

// Backend is durable key/value storage. *store.Store implements it.
type Backend interface {
	GetBlob(ctx context.Context, key string) ([]byte, bool, error)
	PutBlob(ctx context.Context, key string, value []byte) error
}

// Cache is the local snapshot of one itinerary.
// Safe for concurrent use; each operation is a full read-modify-write.
type Cache struct {
	mu          sync.Mutex
	backend     Backend
	itineraryID string
}

// New returns the cache for one itinerary.
func New(backend Backend, itineraryID string) *Cache {
	return &Cache{backend: backend, itineraryID: itineraryID}
}

// ItineraryID returns the itinerary this cache holds.
func (c *Cache) ItineraryID() string {
	return c.itineraryID
}

func (c *Cache) key() string {
	return KeyPrefix + ":" + c.itineraryID
}

func (c *Cache) syncedKey() string {
	return c.key() + ":synced"
}

// Load returns the last durable snapshot ordered by day and order index.
// A missing or unparsable value yields an empty snapshot, and so does a
// backend read failure, which is logged. Use Snapshot where a read failure
// must not pass for an empty plan.
func (c *Cache) Load(ctx context.Context) itinerary.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load(ctx)
	if err != nil {
		slog.Warn("failed to read itinerary cache",
			"itinerary_id", c.itineraryID,
			"error", err,
		)
		return itinerary.Snapshot{}
	}
	return snap
}

// Snapshot is Load for callers that go on to write: a backend read failure
// is returned instead of an empty snapshot. Missing or unparsable values
// are still empty.
func (c *Cache) Snapshot(ctx context.Context) (itinerary.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *Cache) load(ctx context.Context) (itinerary.Snapshot, error) {
	raw, ok, err := c.backend.GetBlob(ctx, c.key())
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if !ok || len(raw) == 0 {
		return itinerary.Snapshot{}, nil
	}

	var snap itinerary.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		slog.Warn("failed to parse itinerary cache, starting empty",
			"itinerary_id", c.itineraryID,
			"error", err,
		)
		return itinerary.Snapshot{}, nil
	}
	return itinerary.Sort(snap), nil
}

func (c *Cache) persist(ctx context.Context, snap itinerary.Snapshot) error {
	data, err := json.Marshal(itinerary.Sort(snap))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.backend.PutBlob(ctx, c.key(), data); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// ReplaceDay replaces one day's stops verbatim. Other days are untouched.
func (c *Cache) ReplaceDay(ctx context.Context, day int, stops []itinerary.Stop) error {
	return c.ReplaceDays(ctx, map[int][]itinerary.Stop{day: stops})
}

// ReplaceDays replaces several days in one durable write. A day mapped to an
// empty slice is cleared.
func (c *Cache) ReplaceDays(ctx context.Context, days map[int][]itinerary.Stop) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load(ctx)
	if err != nil {
		return fmt.Errorf("replace days: %w", err)
	}
	groups := itinerary.GroupByDay(snap)
	for day, stops := range days {
		groups[day] = stops
	}
	if err := c.persist(ctx, itinerary.Flatten(groups)); err != nil {
		return fmt.Errorf("replace days: %w", err)
	}
	return nil
}

// Hydrate overwrites the whole snapshot.
func (c *Cache) Hydrate(ctx context.Context, snap itinerary.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.persist(ctx, snap); err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	return nil
}

// Append adds an entity at the end of a day. When day is nil the stop goes
// on the day of the last stored stop, or DefaultDay when the itinerary is
// empty. An entity that is already scheduled is moved: it leaves its old
// day, which is renumbered, before being appended.
func (c *Cache) Append(ctx context.Context, entityID string, day *int) (itinerary.Stop, error) {
	if entityID == "" {
		return itinerary.Stop{}, fmt.Errorf("append: entity id is required")
	}
	if day != nil && *day < 1 {
		return itinerary.Stop{}, fmt.Errorf("append: day must be >= 1, got %d", *day)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load(ctx)
	if err != nil {
		return itinerary.Stop{}, fmt.Errorf("append: %w", err)
	}
	target := itinerary.LastDay(snap)
	if day != nil {
		target = *day
	}

	groups := itinerary.GroupByDay(snap)
	if prev, ok := itinerary.DayOf(snap, entityID); ok {
		kept := make([]itinerary.Stop, 0, len(groups[prev]))
		for _, s := range groups[prev] {
			if s.EntityID != entityID {
				kept = append(kept, s)
			}
		}
		groups[prev] = itinerary.Renumber(kept)
	}

	stop := itinerary.Stop{EntityID: entityID, Day: target, OrderIndex: len(groups[target])}
	groups[target] = append(groups[target], stop)

	if err := c.persist(ctx, itinerary.Flatten(groups)); err != nil {
		return itinerary.Stop{}, fmt.Errorf("append: %w", err)
	}
	return stop, nil
}

// Reset clears the itinerary.
func (c *Cache) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.persist(ctx, itinerary.Snapshot{}); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// MarkSynced records the digest of the snapshot the store of record last
// accepted.
func (c *Cache) MarkSynced(ctx context.Context, digest string) error {
	if err := c.backend.PutBlob(ctx, c.syncedKey(), []byte(digest)); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// Status compares the local snapshot with the last synced one.
type Status struct {
	ItineraryID  string `json:"itinerary_id"`
	Stops        int    `json:"stops"`
	Days         []int  `json:"days"`
	LocalDigest  string `json:"local_digest"`
	SyncedDigest string `json:"synced_digest,omitempty"`
	Pending      bool   `json:"pending"`
}

// SyncStatus reports whether local changes have not reached the store of
// record. A cache that was never synced is pending only if it holds stops.
func (c *Cache) SyncStatus(ctx context.Context) (Status, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("sync status: %w", err)
	}

	local, err := itinerary.Digest(snap)
	if err != nil {
		return Status{}, fmt.Errorf("sync status: %w", err)
	}

	raw, ok, err := c.backend.GetBlob(ctx, c.syncedKey())
	if err != nil {
		return Status{}, fmt.Errorf("sync status: %w", err)
	}

	st := Status{
		ItineraryID: c.itineraryID,
		Stops:       len(snap),
		Days:        itinerary.Days(snap),
		LocalDigest: local,
	}
	if ok {
		st.SyncedDigest = string(raw)
		st.Pending = st.SyncedDigest != local
	} else {
		st.Pending = len(snap) > 0
	}
	return st, nil
}

// Registry hands out one Cache per itinerary id so that every caller for
// the same itinerary shares a lock.
type Registry struct {
	mu      sync.Mutex
	backend Backend
	caches  map[string]*Cache
}

// NewRegistry creates a registry over one backend.
func NewRegistry(backend Backend) *Registry {
	return &Registry{backend: backend, caches: make(map[string]*Cache)}
}

// For returns the cache for itineraryID, creating it on first use.
func (r *Registry) For(itineraryID string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[itineraryID]
	if !ok {
		c = New(r.backend, itineraryID)
		r.caches[itineraryID] = c
	}
	return c
}
