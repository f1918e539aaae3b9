package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

// Itinerary is one plan in the store of record.
type Itinerary struct {
	ID        string             `json:"itinerary_id"`
	Title     string             `json:"title"`
	CreatedAt string             `json:"created_at"`
	Stops     itinerary.Snapshot `json:"stops"`
}

// ErrItineraryNotFound is returned by GetItinerary for unknown ids.
var ErrItineraryNotFound = errors.New("itinerary not found")

// ListStops returns an itinerary's stops ordered by day, then order index.
// An unknown itinerary has no stops; that is not an error.
func (s *Store) ListStops(ctx context.Context, itineraryID string) (itinerary.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, day, order_index
		FROM itinerary_stops
		WHERE itinerary_id = ?
		ORDER BY day ASC, order_index ASC, entity_id COLLATE BINARY ASC
	`, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	defer rows.Close()

	stops := itinerary.Snapshot{}
	for rows.Next() {
		var st itinerary.Stop
		if err := rows.Scan(&st.EntityID, &st.Day, &st.OrderIndex); err != nil {
			return nil, fmt.Errorf("list stops: scan: %w", err)
		}
		stops = append(stops, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	return stops, nil
}

// GetItinerary returns one itinerary with its stops.
func (s *Store) GetItinerary(ctx context.Context, itineraryID string) (Itinerary, error) {
	var it Itinerary
	err := s.db.QueryRowContext(ctx, `
		SELECT itinerary_id, title, created_at
		FROM itineraries
		WHERE itinerary_id = ?
	`, itineraryID).Scan(&it.ID, &it.Title, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Itinerary{}, fmt.Errorf("%w: %s", ErrItineraryNotFound, itineraryID)
	}
	if err != nil {
		return Itinerary{}, fmt.Errorf("get itinerary: %w", err)
	}

	it.Stops, err = s.ListStops(ctx, itineraryID)
	if err != nil {
		return Itinerary{}, err
	}
	return it, nil
}

// ListItineraries returns every itinerary, newest first, each with its stops.
func (s *Store) ListItineraries(ctx context.Context) ([]Itinerary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT itinerary_id, title, created_at
		FROM itineraries
		ORDER BY created_at DESC, itinerary_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list itineraries: %w", err)
	}

	its := []Itinerary{}
	for rows.Next() {
		var it Itinerary
		if err := rows.Scan(&it.ID, &it.Title, &it.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("list itineraries: scan: %w", err)
		}
		its = append(its, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list itineraries: %w", err)
	}
	// Close before issuing per-itinerary queries: the pool holds one connection.
	rows.Close()

	for i := range its {
		stops, err := s.ListStops(ctx, its[i].ID)
		if err != nil {
			return nil, err
		}
		its[i].Stops = stops
	}
	return its, nil
}

// Entity implements catalog.Lookup.
func (s *Store) Entity(ctx context.Context, id string) (catalog.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, region, lat, lng, description, tags, image_url, data_verified
		FROM entities
		WHERE id = ?
	`, id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Entity{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	if err != nil {
		return catalog.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

// ListEntities returns the catalog ordered by name.
// When region is non-empty only entities in that region are returned.
func (s *Store) ListEntities(ctx context.Context, region string) ([]catalog.Entity, error) {
	query := `
		SELECT id, name, category, region, lat, lng, description, tags, image_url, data_verified
		FROM entities`
	var args []any
	if region != "" {
		query += ` WHERE region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY name ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := []catalog.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("list entities: scan: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(r rowScanner) (catalog.Entity, error) {
	var (
		e        catalog.Entity
		tags     string
		verified int
	)
	if err := r.Scan(&e.ID, &e.Name, &e.Category, &e.Region, &e.Lat, &e.Lng,
		&e.Description, &tags, &e.ImageURL, &verified); err != nil {
		return catalog.Entity{}, err
	}
	e.Tags = catalog.DecodeTags(tags)
	e.DataVerified = verified != 0
	return e, nil
}
