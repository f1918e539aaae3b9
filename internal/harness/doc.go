// Package harness runs YAML scenarios against the real reconciler.
//
// A scenario seeds a local cache and a store of record, submits a sequence of
// attempts, and checks the terminal state of each plus assertions on the
// final snapshots. Every scenario runs against fresh in-memory SQLite
// databases with fixed attempt ids, so the step trace is byte-for-byte
// reproducible and can be compared against a golden file.
//
// # Scenario Format
//
//	name: reorder_then_sync
//	description: "What this scenario validates"
//	itinerary_id: family-weekend
//	initial:
//	  - {entity_id: muir, day: 1, order_index: 0}
//	steps:
//	  - reorder: {day: 1, order: [muir]}
//	  - remote: down
//	  - append: {entity_id: sausalito}
//	    expect: {state: remote_failed, code: REMOTE_SYNC_FAILED}
//	assertions:
//	  - type: final_stops
//	    stops: [...]
//	  - type: pending
//	    pending: true
//
// Step kinds: reorder, insert, remove, append, apply, modify, push, pull, and
// remote (up or down, toggling store-of-record availability).
//
// # Assertion Types
//
//   - final_stops: the local snapshot equals stops
//   - remote_stops: the store of record holds exactly stops
//   - day_order: day holds entities in this order
//   - pending: whether the local snapshot differs from the last synced one
//   - valid: the local snapshot satisfies dense ordering and unique placement
package harness
