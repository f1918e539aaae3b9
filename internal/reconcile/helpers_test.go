package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmbish04/october-visit-2025/internal/cache"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

// memBackend is an in-memory cache.Backend with injectable read and write
// failures.
type memBackend struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	getErr error
	putErr error
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
	if m.putErr != nil {
		return m.putErr
	}
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

func (m *memBackend) failReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

func (m *memBackend) failWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// fakeRemote is an in-memory RemoteStore that records concurrency.
type fakeRemote struct {
	mu          sync.Mutex
	stops       map[string]itinerary.Snapshot
	replaceErr  error
	listErr     error
	replaces    int
	inFlight    int
	maxInFlight int
	delay       time.Duration

	// gate, when set for an itinerary, blocks ReplaceStops until closed.
	gate    map[string]chan struct{}
	entered chan string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		stops:   make(map[string]itinerary.Snapshot),
		gate:    make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
}

func (r *fakeRemote) ListStops(_ context.Context, id string) (itinerary.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return itinerary.Clone(r.stops[id]), nil
}

func (r *fakeRemote) ReplaceStops(ctx context.Context, id string, stops itinerary.Snapshot) error {
	r.mu.Lock()
	r.replaces++
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	gate := r.gate[id]
	delay := r.delay
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if gate != nil {
		r.entered <- id
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.stops[id] = itinerary.Clone(stops)
	return nil
}

func (r *fakeRemote) setReplaceErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceErr = err
}

func (r *fakeRemote) snapshot(id string) itinerary.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return itinerary.Clone(r.stops[id])
}

func (r *fakeRemote) replaceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replaces
}

var errNetwork = errors.New("network unreachable")

// startProtocol runs a Protocol for the duration of the test.
func startProtocol(t *testing.T, backend cache.Backend, remote RemoteStore, opts ...Option) (*Protocol, *cache.Registry) {
	t.Helper()

	reg := cache.NewRegistry(backend)
	p, err := New(reg, remote, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p, reg
}

func snap(stops ...itinerary.Stop) itinerary.Snapshot {
	return itinerary.Snapshot(stops)
}

func st(id string, day, idx int) itinerary.Stop {
	return itinerary.Stop{EntityID: id, Day: day, OrderIndex: idx}
}

func intPtr(v int) *int { return &v }

func newRegistry(b cache.Backend) *cache.Registry {
	return cache.NewRegistry(b)
}
