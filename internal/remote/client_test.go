package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", time.Second)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", time.Second)
	assert.Error(t, err)

	_, err = New("::", time.Second)
	assert.Error(t, err)
}

func TestListStops(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/itineraries/family%20weekend/stops", r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"itinerary_id":"family weekend","stops":[
			{"entity_id":"b","day":2,"order_index":0},
			{"entity_id":"a","day":1,"order_index":0}]}`)
	})

	got, err := c.ListStops(context.Background(), "family weekend")
	require.NoError(t, err)
	assert.Equal(t, itinerary.Snapshot{
		{EntityID: "a", Day: 1, OrderIndex: 0},
		{EntityID: "b", Day: 2, OrderIndex: 0},
	}, got)
}

func TestListStops_NotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})

	got, err := c.ListStops(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReplaceStops(t *testing.T) {
	var received struct {
		Stops itinerary.Snapshot `json:"stops"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		io.WriteString(w, `{}`)
	})

	err := c.ReplaceStops(context.Background(), "trip", itinerary.Snapshot{
		{EntityID: "b", Day: 1, OrderIndex: 1},
		{EntityID: "a", Day: 1, OrderIndex: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, itinerary.Snapshot{
		{EntityID: "a", Day: 1, OrderIndex: 0},
		{EntityID: "b", Day: 1, OrderIndex: 1},
	}, received.Stops)
}

func TestReplaceStops_EmptySendsArray(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	})

	require.NoError(t, c.ReplaceStops(context.Background(), "trip", nil))
	assert.JSONEq(t, `[]`, string(raw["stops"]))
}

func TestStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invariant violated", http.StatusBadRequest)
	})

	err := c.ReplaceStops(context.Background(), "trip", nil)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "invariant violated", se.Body)
	assert.False(t, IsNotFound(err))
}

func TestHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Error(t, c.Health(context.Background()))
}
