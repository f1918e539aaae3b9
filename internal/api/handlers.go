// Package api serves itineraries, stops and the entity catalog over HTTP.
//
// The same routes back both the browser client and remote.Client, so one
// instance of this program can act as the store of record for another.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
	"github.com/jmbish04/october-visit-2025/internal/modifier"
	"github.com/jmbish04/october-visit-2025/internal/observability"
	"github.com/jmbish04/october-visit-2025/internal/store"
)

const (
	maxBodyBytes   = 1 << 20
	minPromptRunes = 3

	// DefaultModifyTimeout bounds one call to the modification engine.
	DefaultModifyTimeout = 30 * time.Second
)

type Handler struct {
	Store         *store.Store
	Proposer      modifier.Proposer
	Metrics       *observability.Collector
	ModifyTimeout time.Duration

	// writeMu serializes read-modify-write cycles on stops.
	writeMu sync.Mutex
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.Store.ListEntities(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.Store.Entity(r.Context(), r.PathValue("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) ListItineraries(w http.ResponseWriter, r *http.Request) {
	its, err := h.Store.ListItineraries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"itineraries": its})
}

type itineraryRequest struct {
	ItineraryID string `json:"itinerary_id"`
	Title       string `json:"title"`
}

func (h *Handler) PutItinerary(w http.ResponseWriter, r *http.Request) {
	var req itineraryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ItineraryID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("itinerary_id is required"))
		return
	}
	if err := h.Store.PutItinerary(r.Context(), req.ItineraryID, req.Title); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) GetItinerary(w http.ResponseWriter, r *http.Request) {
	it, err := h.Store.GetItinerary(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrItineraryNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type stopsResponse struct {
	ItineraryID string             `json:"itinerary_id"`
	Stops       itinerary.Snapshot `json:"stops"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

// GetStops answers with an empty list for an itinerary that has no stops yet.
func (h *Handler) GetStops(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stops, err := h.Store.ListStops(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stopsResponse{ItineraryID: id, Stops: stops})
}

type replaceStopsRequest struct {
	Stops *itinerary.Snapshot `json:"stops"`
}

// ReplaceStops overwrites every stop of the itinerary. A body that breaks
// dense ordering or unique placement is rejected with 400 and nothing is
// written.
func (h *Handler) ReplaceStops(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req replaceStopsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Stops == nil {
		writeError(w, http.StatusBadRequest, errors.New("stops is required"))
		return
	}

	h.writeMu.Lock()
	err := h.Store.ReplaceStops(r.Context(), id, *req.Stops)
	h.writeMu.Unlock()

	var inv *itinerary.InvariantError
	if errors.As(err, &inv) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stopsResponse{ItineraryID: id, Stops: itinerary.Sort(*req.Stops)})
}

type proposeRequest struct {
	Prompt    string `json:"prompt"`
	Itinerary struct {
		ItineraryID string             `json:"itinerary_id"`
		Stops       itinerary.Snapshot `json:"stops"`
	} `json:"itinerary"`
}

// Propose runs the configured engine without touching the store. Its request
// and response shapes match modifier.HTTPProposer, so a remote reconciler can
// use this server as its modification engine.
func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validPrompt(w, req.Prompt) {
		return
	}

	b, status, err := h.propose(r.Context(), modifier.Request{
		Prompt:      req.Prompt,
		ItineraryID: req.Itinerary.ItineraryID,
		Stops:       req.Itinerary.Stops,
	})
	if err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type modifyRequest struct {
	ItineraryID string `json:"itinerary_id"`
	Prompt      string `json:"prompt"`
}

// Modify asks the engine for a batch and merges it into the stored stops.
// The merge renumbers every touched day, so the stored itinerary stays dense
// whatever positions the engine proposed.
func (h *Handler) Modify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ItineraryID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("itinerary_id is required"))
		return
	}
	if !validPrompt(w, req.Prompt) {
		return
	}

	ctx := r.Context()
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	stops, err := h.Store.ListStops(ctx, req.ItineraryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	b, status, err := h.propose(ctx, modifier.Request{Prompt: req.Prompt, ItineraryID: req.ItineraryID, Stops: stops})
	if err != nil {
		writeError(w, status, err)
		return
	}

	res := merge.ApplyBatch(stops, b)
	if err := h.Store.ReplaceStops(ctx, req.ItineraryID, res.Snapshot); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	slog.Info("itinerary modified",
		"itinerary_id", req.ItineraryID,
		"touched_days", res.Touched,
		"stops", len(res.Snapshot),
	)
	writeJSON(w, http.StatusOK, stopsResponse{ItineraryID: req.ItineraryID, Stops: res.Snapshot, Metadata: b.Metadata})
}

// propose calls the engine under the modify timeout and validates its batch.
// The returned status is meaningful only when err is non-nil.
func (h *Handler) propose(ctx context.Context, req modifier.Request) (merge.Batch, int, error) {
	if h.Proposer == nil {
		return merge.Batch{}, http.StatusServiceUnavailable, errors.New("no modification engine configured")
	}

	timeout := h.ModifyTimeout
	if timeout <= 0 {
		timeout = DefaultModifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, err := h.Proposer.Propose(ctx, req)
	switch {
	case errors.Is(err, modifier.ErrNoRule):
		return merge.Batch{}, http.StatusUnprocessableEntity, err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return merge.Batch{}, http.StatusGatewayTimeout, fmt.Errorf("engine timed out after %s", timeout)
	case err != nil:
		return merge.Batch{}, http.StatusBadGateway, fmt.Errorf("engine failed: %w", err)
	}

	if err := b.Validate(); err != nil {
		return merge.Batch{}, http.StatusBadGateway, err
	}
	return b, 0, nil
}

func validPrompt(w http.ResponseWriter, prompt string) bool {
	if len([]rune(strings.TrimSpace(prompt))) < minPromptRunes {
		writeError(w, http.StatusBadRequest, fmt.Errorf("prompt must be at least %d characters", minPromptRunes))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
