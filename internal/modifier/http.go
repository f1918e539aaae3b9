package modifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
)

const maxResponseBytes = 1 << 20

// HTTPProposer delegates to a remote engine over HTTP.
//
// The request body is {"prompt": ..., "itinerary": {"itinerary_id": ..., "stops": [...]}}.
// The response must be a batch object; see DecodeBatch.
type HTTPProposer struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPProposer returns a proposer posting to endpoint with the given
// per-request timeout.
func NewHTTPProposer(endpoint string, timeout time.Duration) *HTTPProposer {
	return &HTTPProposer{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

type httpRequest struct {
	Prompt    string        `json:"prompt"`
	Itinerary httpItinerary `json:"itinerary"`
}

type httpItinerary struct {
	ItineraryID string             `json:"itinerary_id"`
	Stops       itinerary.Snapshot `json:"stops"`
}

// Propose implements Proposer.
func (p *HTTPProposer) Propose(ctx context.Context, req Request) (merge.Batch, error) {
	stops := req.Stops
	if stops == nil {
		stops = itinerary.Snapshot{}
	}
	body, err := json.Marshal(httpRequest{
		Prompt:    req.Prompt,
		Itinerary: httpItinerary{ItineraryID: req.ItineraryID, Stops: itinerary.Sort(stops)},
	})
	if err != nil {
		return merge.Batch{}, fmt.Errorf("encode engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return merge.Batch{}, fmt.Errorf("build engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return merge.Batch{}, fmt.Errorf("call engine: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return merge.Batch{}, fmt.Errorf("read engine response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return merge.Batch{}, fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return DecodeBatch(data)
}
