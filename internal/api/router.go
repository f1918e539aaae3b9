package api

import (
	"net/http"
)

// NewRouter registers every route on a fresh ServeMux. Each route is wrapped
// with the handler's metrics middleware under its pattern.
func NewRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, handler.Metrics.Middleware(pattern, fn))
	}

	route("GET /api/health", handler.Health)

	route("GET /api/entities", handler.ListEntities)
	route("GET /api/entities/{id}", handler.GetEntity)

	route("GET /api/itineraries", handler.ListItineraries)
	route("POST /api/itineraries", handler.PutItinerary)
	route("GET /api/itineraries/{id}", handler.GetItinerary)
	route("GET /api/itineraries/{id}/stops", handler.GetStops)
	route("PUT /api/itineraries/{id}/stops", handler.ReplaceStops)

	route("POST /api/ai/propose", handler.Propose)
	route("POST /api/ai/modify", handler.Modify)

	mux.Handle("GET /metrics", handler.Metrics.Handler())

	return mux
}
