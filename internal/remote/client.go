// Package remote talks to the store of record over HTTP.
//
// The Client speaks the same routes the api package serves, so a local
// reconciler can push to and pull from another instance of this program.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

const maxResponseBytes = 4 << 20

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client is a RemoteStore backed by the itinerary HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for baseURL with the given per-request timeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}, nil
}

type stopsBody struct {
	ItineraryID string             `json:"itinerary_id,omitempty"`
	Stops       itinerary.Snapshot `json:"stops"`
}

// ListStops fetches the stored stops of one itinerary. An itinerary the
// server has never seen yields an empty snapshot.
func (c *Client) ListStops(ctx context.Context, itineraryID string) (itinerary.Snapshot, error) {
	var body stopsBody
	if err := c.do(ctx, http.MethodGet, c.stopsPath(itineraryID), nil, &body); err != nil {
		if IsNotFound(err) {
			return itinerary.Snapshot{}, nil
		}
		return nil, err
	}
	return itinerary.Sort(body.Stops), nil
}

// ReplaceStops overwrites the stored stops of one itinerary.
func (c *Client) ReplaceStops(ctx context.Context, itineraryID string, stops itinerary.Snapshot) error {
	if stops == nil {
		stops = itinerary.Snapshot{}
	}
	return c.do(ctx, http.MethodPut, c.stopsPath(itineraryID), stopsBody{Stops: itinerary.Sort(stops)}, nil)
}

// Health checks that the server is reachable and its store answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *Client) stopsPath(itineraryID string) string {
	return "/api/itineraries/" + url.PathEscape(itineraryID) + "/stops"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
