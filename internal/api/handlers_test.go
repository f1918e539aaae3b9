package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
	"github.com/jmbish04/october-visit-2025/internal/modifier"
	"github.com/jmbish04/october-visit-2025/internal/observability"
	"github.com/jmbish04/october-visit-2025/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &Handler{Store: s}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &v), res.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	router := NewRouter(newTestHandler(t))

	res := serve(router, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))
}

func TestHealth_StoreClosed(t *testing.T) {
	h := newTestHandler(t)
	require.NoError(t, h.Store.Close())

	res := serve(NewRouter(h), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestEntities(t *testing.T) {
	h := newTestHandler(t)
	require.NoError(t, h.Store.UpsertEntities(context.Background(), []catalog.Entity{
		{ID: "muir", Name: "Muir Woods", Region: "Marin", Tags: []string{"hike"}},
		{ID: "exploratorium", Name: "Exploratorium", Region: "San Francisco"},
	}))
	router := NewRouter(h)

	t.Run("list ordered by name", func(t *testing.T) {
		res := serve(router, http.MethodGet, "/api/entities", "")
		require.Equal(t, http.StatusOK, res.Code)
		body := decode[struct{ Entities []catalog.Entity }](t, res)
		require.Len(t, body.Entities, 2)
		assert.Equal(t, "exploratorium", body.Entities[0].ID)
		assert.Equal(t, "muir", body.Entities[1].ID)
	})

	t.Run("filter by region", func(t *testing.T) {
		res := serve(router, http.MethodGet, "/api/entities?region=Marin", "")
		body := decode[struct{ Entities []catalog.Entity }](t, res)
		require.Len(t, body.Entities, 1)
		assert.Equal(t, []string{"hike"}, body.Entities[0].Tags)
	})

	t.Run("by id", func(t *testing.T) {
		res := serve(router, http.MethodGet, "/api/entities/muir", "")
		require.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, "Muir Woods", decode[catalog.Entity](t, res).Name)
	})

	t.Run("missing", func(t *testing.T) {
		res := serve(router, http.MethodGet, "/api/entities/nope", "")
		assert.Equal(t, http.StatusNotFound, res.Code)
		assert.JSONEq(t, `{"error":"Not found"}`, res.Body.String())
	})
}

func TestItineraries_PutAndList(t *testing.T) {
	router := NewRouter(newTestHandler(t))

	res := serve(router, http.MethodPost, "/api/itineraries", `{"itinerary_id":"family-weekend","title":"Family Weekend"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"itinerary_id":"family-weekend","title":"Family Weekend"}`, res.Body.String())

	res = serve(router, http.MethodPut, "/api/itineraries/family-weekend/stops",
		`{"stops":[{"entity_id":"b","day":1,"order_index":1},{"entity_id":"a","day":1,"order_index":0}]}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"itinerary_id":"family-weekend","stops":[
		{"entity_id":"a","day":1,"order_index":0},
		{"entity_id":"b","day":1,"order_index":1}]}`, res.Body.String())

	res = serve(router, http.MethodGet, "/api/itineraries", "")
	require.Equal(t, http.StatusOK, res.Code)
	body := decode[struct{ Itineraries []store.Itinerary }](t, res)
	require.Len(t, body.Itineraries, 1)
	assert.Equal(t, "Family Weekend", body.Itineraries[0].Title)
	assert.Len(t, body.Itineraries[0].Stops, 2)

	res = serve(router, http.MethodGet, "/api/itineraries/family-weekend", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "family-weekend", decode[store.Itinerary](t, res).ID)

	res = serve(router, http.MethodGet, "/api/itineraries/unknown", "")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestPutItinerary_RequiresID(t *testing.T) {
	router := NewRouter(newTestHandler(t))

	res := serve(router, http.MethodPost, "/api/itineraries", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = serve(router, http.MethodPost, "/api/itineraries", `{not json`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestStops_EmptyItinerary(t *testing.T) {
	router := NewRouter(newTestHandler(t))

	res := serve(router, http.MethodGet, "/api/itineraries/new/stops", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"itinerary_id":"new","stops":[]}`, res.Body.String())
}

func TestReplaceStops_RejectsViolations(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h)
	require.NoError(t, h.Store.ReplaceStops(context.Background(), "trip", itinerary.Snapshot{{EntityID: "a", Day: 1}}))

	tests := []struct {
		name string
		body string
	}{
		{"missing stops", `{}`},
		{"gap in day", `{"stops":[{"entity_id":"a","day":1,"order_index":0},{"entity_id":"b","day":1,"order_index":2}]}`},
		{"entity on two days", `{"stops":[{"entity_id":"a","day":1,"order_index":0},{"entity_id":"a","day":2,"order_index":0}]}`},
		{"zero day", `{"stops":[{"entity_id":"a","day":0,"order_index":0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := serve(router, http.MethodPut, "/api/itineraries/trip/stops", tt.body)
			assert.Equal(t, http.StatusBadRequest, res.Code, res.Body.String())
		})
	}

	got, err := h.Store.ListStops(context.Background(), "trip")
	require.NoError(t, err)
	assert.Equal(t, itinerary.Snapshot{{EntityID: "a", Day: 1}}, got, "rejected writes leave the store untouched")
}

func TestReplaceStops_EmptyClears(t *testing.T) {
	h := newTestHandler(t)
	require.NoError(t, h.Store.ReplaceStops(context.Background(), "trip", itinerary.Snapshot{{EntityID: "a", Day: 1}}))

	res := serve(NewRouter(h), http.MethodPut, "/api/itineraries/trip/stops", `{"stops":[]}`)
	require.Equal(t, http.StatusOK, res.Code)

	got, err := h.Store.ListStops(context.Background(), "trip")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestModify(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.Store.ReplaceStops(ctx, "trip", itinerary.Snapshot{
		{EntityID: "a", Day: 1, OrderIndex: 0},
		{EntityID: "b", Day: 1, OrderIndex: 1},
		{EntityID: "c", Day: 2, OrderIndex: 0},
	}))

	var seen modifier.Request
	h.Proposer = modifier.ProposerFunc(func(_ context.Context, req modifier.Request) (merge.Batch, error) {
		seen = req
		pos := 0
		return merge.Batch{
			Updates: []merge.DayUpdate{
				{Day: 1, Remove: []merge.EntityRef{{EntityID: "a"}}},
				{Day: 2, Add: []merge.AddRef{{EntityID: "d", Position: &pos}}},
			},
			Metadata: map[string]any{"engine": "test"},
		}, nil
	})

	res := serve(NewRouter(h), http.MethodPost, "/api/ai/modify", `{"itinerary_id":"trip","prompt":"swap things"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.JSONEq(t, `{
		"itinerary_id":"trip",
		"stops":[
			{"entity_id":"b","day":1,"order_index":0},
			{"entity_id":"d","day":2,"order_index":0},
			{"entity_id":"c","day":2,"order_index":1}],
		"metadata":{"engine":"test"}}`, res.Body.String())

	assert.Equal(t, "swap things", seen.Prompt)
	assert.Len(t, seen.Stops, 3)

	got, err := h.Store.ListStops(ctx, "trip")
	require.NoError(t, err)
	assert.NoError(t, itinerary.Validate(got))
	assert.Len(t, got, 3)
}

func TestModify_Errors(t *testing.T) {
	tests := []struct {
		name     string
		proposer modifier.Proposer
		timeout  time.Duration
		body     string
		want     int
	}{
		{
			name: "short prompt",
			body: `{"itinerary_id":"trip","prompt":"hi"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "missing itinerary",
			body: `{"prompt":"optimize"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "no engine",
			body: `{"itinerary_id":"trip","prompt":"optimize"}`,
			want: http.StatusServiceUnavailable,
		},
		{
			name: "no rule",
			proposer: modifier.ProposerFunc(func(context.Context, modifier.Request) (merge.Batch, error) {
				return merge.Batch{}, modifier.ErrNoRule
			}),
			body: `{"itinerary_id":"trip","prompt":"make it fun"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "engine error",
			proposer: modifier.ProposerFunc(func(context.Context, modifier.Request) (merge.Batch, error) {
				return merge.Batch{}, errors.New("boom")
			}),
			body: `{"itinerary_id":"trip","prompt":"make it fun"}`,
			want: http.StatusBadGateway,
		},
		{
			name: "engine timeout",
			proposer: modifier.ProposerFunc(func(ctx context.Context, _ modifier.Request) (merge.Batch, error) {
				<-ctx.Done()
				return merge.Batch{}, ctx.Err()
			}),
			timeout: 10 * time.Millisecond,
			body:    `{"itinerary_id":"trip","prompt":"make it fun"}`,
			want:    http.StatusGatewayTimeout,
		},
		{
			name: "invalid batch",
			proposer: modifier.ProposerFunc(func(context.Context, modifier.Request) (merge.Batch, error) {
				return merge.InsertBatch(0, "x", nil), nil
			}),
			body: `{"itinerary_id":"trip","prompt":"make it fun"}`,
			want: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			h.Proposer = tt.proposer
			h.ModifyTimeout = tt.timeout
			require.NoError(t, h.Store.ReplaceStops(context.Background(), "trip", itinerary.Snapshot{{EntityID: "a", Day: 1}}))

			res := serve(NewRouter(h), http.MethodPost, "/api/ai/modify", tt.body)
			assert.Equal(t, tt.want, res.Code, res.Body.String())

			got, err := h.Store.ListStops(context.Background(), "trip")
			require.NoError(t, err)
			assert.Equal(t, itinerary.Snapshot{{EntityID: "a", Day: 1}}, got)
		})
	}
}

func TestPropose_ServesHTTPProposer(t *testing.T) {
	h := newTestHandler(t)
	h.Proposer = &modifier.Planner{Catalog: catalog.NewStatic(
		catalog.Entity{ID: "a", Lng: 0},
		catalog.Entity{ID: "b", Lng: 3},
		catalog.Entity{ID: "c", Lng: 1},
	)}
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	client := modifier.NewHTTPProposer(srv.URL+"/api/ai/propose", time.Second)
	b, err := client.Propose(context.Background(), modifier.Request{
		Prompt:      modifier.OptimizePrompt,
		ItineraryID: "trip",
		Stops: itinerary.Snapshot{
			{EntityID: "a", Day: 1, OrderIndex: 0},
			{EntityID: "b", Day: 1, OrderIndex: 1},
			{EntityID: "c", Day: 1, OrderIndex: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, b.Updates, 1)
	assert.Equal(t, []merge.EntityRef{{EntityID: "a"}, {EntityID: "c"}, {EntityID: "b"}}, b.Updates[0].Order)
	assert.Equal(t, "optimize", b.Metadata["rule"])
}

func TestMetricsMiddleware(t *testing.T) {
	h := newTestHandler(t)
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	h.Metrics = collector
	router := NewRouter(h)

	serve(router, http.MethodGet, "/api/health", "")
	serve(router, http.MethodGet, "/api/entities/missing", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET /api/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET /api/entities/{id}", "404")))

	res := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "itinerary_http_requests_total")
}

func TestWriteJSON_NoHTMLEscape(t *testing.T) {
	res := httptest.NewRecorder()
	writeJSON(res, http.StatusOK, map[string]string{"name": "Fish & Chips <SF>"})
	assert.Equal(t, "{\"name\":\"Fish & Chips <SF>\"}\n", res.Body.String())
}

func TestDecodeJSON_BodyLimit(t *testing.T) {
	router := NewRouter(newTestHandler(t))
	big := `{"itinerary_id":"x","title":"` + string(bytes.Repeat([]byte("a"), maxBodyBytes)) + `"}`

	res := serve(router, http.MethodPost, "/api/itineraries", big)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
