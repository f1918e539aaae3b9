package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/store"
)

// memBackend is an in-memory Backend with injectable failures.
type memBackend struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	getErr  error
	putErr  error
	putHits int
}

func newMemBackend() *memBackend {
	return &memBackend{blobs: make(map[string][]byte)}
}

func (m *memBackend) GetBlob(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.blobs[key]
	return v, ok, nil
}

func (m *memBackend) PutBlob(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putHits++
	if m.putErr != nil {
		return m.putErr
	}
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

func intPtr(v int) *int { return &v }

func TestAppend_DefaultsToLastDay(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")

	_, err := c.Append(ctx, "X", nil)
	require.NoError(t, err)
	assert.Equal(t, itinerary.Snapshot{{EntityID: "X", Day: 1, OrderIndex: 0}}, c.Load(ctx))

	_, err = c.Append(ctx, "Y", nil)
	require.NoError(t, err)
	assert.Equal(t, itinerary.Snapshot{
		{EntityID: "X", Day: 1, OrderIndex: 0},
		{EntityID: "Y", Day: 1, OrderIndex: 1},
	}, c.Load(ctx))
}

func TestAppend_ExplicitDayThenDefaultFollowsIt(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")

	_, err := c.Append(ctx, "X", nil)
	require.NoError(t, err)
	stop, err := c.Append(ctx, "Y", intPtr(3))
	require.NoError(t, err)
	assert.Equal(t, itinerary.Stop{EntityID: "Y", Day: 3, OrderIndex: 0}, stop)

	stop, err = c.Append(ctx, "Z", nil)
	require.NoError(t, err)
	assert.Equal(t, itinerary.Stop{EntityID: "Z", Day: 3, OrderIndex: 1}, stop)
}

func TestAppend_MovesScheduledEntity(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")

	require.NoError(t, c.Hydrate(ctx, itinerary.Snapshot{
		{EntityID: "A", Day: 1, OrderIndex: 0},
		{EntityID: "B", Day: 1, OrderIndex: 1},
		{EntityID: "C", Day: 1, OrderIndex: 2},
		{EntityID: "D", Day: 2, OrderIndex: 0},
	}))

	_, err := c.Append(ctx, "A", intPtr(2))
	require.NoError(t, err)

	got := c.Load(ctx)
	require.NoError(t, itinerary.Validate(got))
	assert.Equal(t, itinerary.Snapshot{
		{EntityID: "B", Day: 1, OrderIndex: 0},
		{EntityID: "C", Day: 1, OrderIndex: 1},
		{EntityID: "D", Day: 2, OrderIndex: 0},
		{EntityID: "A", Day: 2, OrderIndex: 1},
	}, got)
}

func TestAppend_Rejects(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")

	_, err := c.Append(ctx, "", nil)
	assert.Error(t, err)

	_, err = c.Append(ctx, "X", intPtr(0))
	assert.Error(t, err)
}

func TestLoad_MissingIsEmpty(t *testing.T) {
	c := New(newMemBackend(), "trip")

	got := c.Load(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoad_CorruptIsEmpty(t *testing.T) {
	b := newMemBackend()
	b.blobs[KeyPrefix+":trip"] = []byte(`{not json`)
	c := New(b, "trip")

	got := c.Load(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSnapshot_BackendErrorIsReturned(t *testing.T) {
	b := newMemBackend()
	b.getErr = errors.New("database is locked")
	c := New(b, "trip")

	_, err := c.Snapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, b.getErr)
	assert.Empty(t, c.Load(context.Background()), "Load still never fails")
}

func TestMutations_ReadErrorKeepsOtherDays(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	c := New(b, "trip")
	before := itinerary.Snapshot{
		{EntityID: "A", Day: 1, OrderIndex: 0},
		{EntityID: "B", Day: 1, OrderIndex: 1},
		{EntityID: "C", Day: 2, OrderIndex: 0},
	}
	require.NoError(t, c.Hydrate(ctx, before))

	b.getErr = errors.New("database is locked")
	err := c.ReplaceDay(ctx, 2, []itinerary.Stop{{EntityID: "D", Day: 2, OrderIndex: 0}})
	require.Error(t, err)
	_, err = c.Append(ctx, "E", nil)
	require.Error(t, err)
	_, err = c.SyncStatus(ctx)
	require.Error(t, err)
	b.getErr = nil

	assert.Equal(t, before, c.Load(ctx))
}

func TestLoad_SortsStoredOrder(t *testing.T) {
	b := newMemBackend()
	b.blobs[KeyPrefix+":trip"] = []byte(`[
		{"entity_id":"C","day":2,"order_index":0},
		{"entity_id":"B","day":1,"order_index":1},
		{"entity_id":"A","day":1,"order_index":0}
	]`)
	c := New(b, "trip")

	assert.Equal(t, []string{"A", "B", "C"}, itinerary.EntityIDs(c.Load(context.Background())))
}

func TestHydrateLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := New(s, "trip")
	want := itinerary.Snapshot{
		{EntityID: "A", Day: 1, OrderIndex: 0},
		{EntityID: "B", Day: 1, OrderIndex: 1},
		{EntityID: "C", Day: 2, OrderIndex: 0},
	}
	shuffled := itinerary.Snapshot{want[2], want[0], want[1]}

	require.NoError(t, c.Hydrate(ctx, shuffled))
	assert.Equal(t, want, c.Load(ctx))

	// Survives reopening through a fresh cache.
	assert.Equal(t, want, New(s, "trip").Load(ctx))
}

func TestPersistedFormat(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	c := New(b, "trip")

	_, err := c.Append(ctx, "X", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `[{"entity_id":"X","day":1,"order_index":0}]`, string(b.blobs[KeyPrefix+":trip"]))
}

func TestReplaceDay_OtherDaysUntouched(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")
	require.NoError(t, c.Hydrate(ctx, itinerary.Snapshot{
		{EntityID: "A", Day: 1, OrderIndex: 0},
		{EntityID: "B", Day: 2, OrderIndex: 0},
	}))

	require.NoError(t, c.ReplaceDay(ctx, 1, []itinerary.Stop{
		{EntityID: "Z", Day: 1, OrderIndex: 0},
		{EntityID: "A", Day: 1, OrderIndex: 1},
	}))

	assert.Equal(t, itinerary.Snapshot{
		{EntityID: "Z", Day: 1, OrderIndex: 0},
		{EntityID: "A", Day: 1, OrderIndex: 1},
		{EntityID: "B", Day: 2, OrderIndex: 0},
	}, c.Load(ctx))
}

func TestReplaceDays_EmptyClearsDay(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	c := New(b, "trip")
	require.NoError(t, c.Hydrate(ctx, itinerary.Snapshot{
		{EntityID: "A", Day: 1, OrderIndex: 0},
		{EntityID: "B", Day: 2, OrderIndex: 0},
	}))
	hits := b.putHits

	require.NoError(t, c.ReplaceDays(ctx, map[int][]itinerary.Stop{
		1: {},
		2: {{EntityID: "B", Day: 2, OrderIndex: 0}, {EntityID: "A", Day: 2, OrderIndex: 1}},
	}))

	assert.Equal(t, hits+1, b.putHits, "multi-day replace is a single write")
	assert.Equal(t, itinerary.Snapshot{
		{EntityID: "B", Day: 2, OrderIndex: 0},
		{EntityID: "A", Day: 2, OrderIndex: 1},
	}, c.Load(ctx))
}

func TestWriteFailure_LeavesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	c := New(b, "trip")
	require.NoError(t, c.Hydrate(ctx, itinerary.Snapshot{{EntityID: "A", Day: 1, OrderIndex: 0}}))

	b.putErr = errors.New("quota exceeded")
	assert.Error(t, c.ReplaceDay(ctx, 1, nil))
	_, err := c.Append(ctx, "B", nil)
	assert.Error(t, err)
	assert.Error(t, c.Reset(ctx))

	b.putErr = nil
	assert.Equal(t, itinerary.Snapshot{{EntityID: "A", Day: 1, OrderIndex: 0}}, c.Load(ctx))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")
	_, err := c.Append(ctx, "A", nil)
	require.NoError(t, err)

	require.NoError(t, c.Reset(ctx))
	assert.Empty(t, c.Load(ctx))
}

func TestSyncStatus(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")

	st, err := c.SyncStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Pending, "empty and never synced")

	_, err = c.Append(ctx, "A", nil)
	require.NoError(t, err)
	st, err = c.SyncStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Pending)
	assert.Equal(t, 1, st.Stops)

	require.NoError(t, c.MarkSynced(ctx, st.LocalDigest))
	st, err = c.SyncStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Pending)
	assert.Equal(t, st.LocalDigest, st.SyncedDigest)

	_, err = c.Append(ctx, "B", nil)
	require.NoError(t, err)
	st, err = c.SyncStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Pending)
}

func TestRegistry_SharesCachePerItinerary(t *testing.T) {
	r := NewRegistry(newMemBackend())

	assert.Same(t, r.For("a"), r.For("a"))
	assert.NotSame(t, r.For("a"), r.For("b"))
	assert.Equal(t, "b", r.For("b").ItineraryID())
}

func TestRegistry_IsolatesItineraries(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemBackend())

	_, err := r.For("a").Append(ctx, "X", nil)
	require.NoError(t, err)

	assert.Empty(t, r.For("b").Load(ctx))
	assert.Len(t, r.For("a").Load(ctx), 1)
}

func TestConcurrentAppends_StayDense(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), "trip")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Append(ctx, string(rune('a'+i)), intPtr(1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got := c.Load(ctx)
	assert.Len(t, got, 20)
	assert.NoError(t, itinerary.Validate(got))
}
