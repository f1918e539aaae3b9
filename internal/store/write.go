package store

import (
	"context"
	"fmt"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
)

// PutItinerary inserts an itinerary or replaces its title.
// Existing stops and created_at are preserved.
func (s *Store) PutItinerary(ctx context.Context, id, title string) error {
	if id == "" {
		return fmt.Errorf("put itinerary: id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO itineraries (itinerary_id, title)
		VALUES (?, ?)
		ON CONFLICT(itinerary_id) DO UPDATE SET title = excluded.title
	`, id, title)
	if err != nil {
		return fmt.Errorf("put itinerary: %w", err)
	}
	return nil
}

// ReplaceStops replaces an itinerary's full stop list in one transaction.
// Either every stop is written or none are.
//
// The stops must already satisfy dense ordering and unique placement; a
// violating list is rejected with an *itinerary.InvariantError before any
// write. An itinerary row is created on first use, titled with its id.
func (s *Store) ReplaceStops(ctx context.Context, itineraryID string, stops itinerary.Snapshot) error {
	if itineraryID == "" {
		return fmt.Errorf("replace stops: itinerary id is required")
	}
	if err := itinerary.Validate(stops); err != nil {
		return fmt.Errorf("replace stops: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace stops: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO itineraries (itinerary_id, title)
		VALUES (?, ?)
		ON CONFLICT(itinerary_id) DO NOTHING
	`, itineraryID, itineraryID); err != nil {
		return fmt.Errorf("replace stops: ensure itinerary: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM itinerary_stops WHERE itinerary_id = ?
	`, itineraryID); err != nil {
		return fmt.Errorf("replace stops: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO itinerary_stops (itinerary_id, entity_id, day, order_index)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("replace stops: prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range itinerary.Sort(stops) {
		if _, err := stmt.ExecContext(ctx, itineraryID, st.EntityID, st.Day, st.OrderIndex); err != nil {
			return fmt.Errorf("replace stops: insert %s: %w", st.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace stops: commit: %w", err)
	}
	return nil
}

// UpsertEntities inserts or updates catalog entries in one transaction.
func (s *Store) UpsertEntities(ctx context.Context, entities []catalog.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert entities: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entities {
		if e.ID == "" {
			return fmt.Errorf("upsert entities: id is required")
		}
		verified := 0
		if e.DataVerified {
			verified = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities
			(id, name, category, region, lat, lng, description, tags, image_url, data_verified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				region = excluded.region,
				lat = excluded.lat,
				lng = excluded.lng,
				description = excluded.description,
				tags = excluded.tags,
				image_url = excluded.image_url,
				data_verified = excluded.data_verified
		`,
			e.ID,
			e.Name,
			e.Category,
			e.Region,
			e.Lat,
			e.Lng,
			e.Description,
			catalog.EncodeTags(e.Tags),
			e.ImageURL,
			verified,
		)
		if err != nil {
			return fmt.Errorf("upsert entities: %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert entities: commit: %w", err)
	}
	return nil
}
