// Package merge folds a batch of day-scoped edit operations into an
// itinerary snapshot.
//
// Operations are applied in batch order, not grouped by day. Each step
// renumbers the day it touched, so dense ordering holds after every step
// rather than only after an explicit reorder. Intake is permissive: unknown
// entities, empty days and out-of-range positions never fail. Structural
// problems (non-positive days, empty ids) are caught by Batch.Validate before
// a batch reaches Apply.
//
// Entities are placed at most once per itinerary. Inserting or reordering an
// entity that is already scheduled on another day moves it.
package merge
