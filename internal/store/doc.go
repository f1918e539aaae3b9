// Package store provides SQLite-backed durable storage for itineraries.
//
// One database file holds three kinds of data:
//   - Itineraries and their stops: the copy of record, replaced whole per itinerary
//   - Entities: the points-of-interest catalog
//   - Local blobs: opaque key/value rows backing the local snapshot cache
//
// # Invariants
//
// The itinerary_stops table enforces the stop model at the storage layer:
//   - PRIMARY KEY(itinerary_id, entity_id): an entity is scheduled at most once
//   - UNIQUE(itinerary_id, day, order_index): no two stops share a slot
//
// ReplaceStops additionally validates that every day is densely numbered before
// writing, so a gap never reaches disk.
//
// # Deterministic Reads
//
// Stop queries always ORDER BY day ASC, order_index ASC, entity_id COLLATE BINARY ASC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
