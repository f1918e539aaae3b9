// Package reconcile runs edit attempts against an itinerary with local-first
// durability.
//
// Every attempt walks the same state machine:
//
//	Idle -> Merging -> LocalCommitted -> RemoteSyncing -> Settled
//	                                                   \-> RemoteFailed
//	        Merging -> Aborted
//
// Merging produces a new snapshot with the edit merger. LocalCommitted means
// the snapshot is durable in the local cache; nothing after that point rolls
// it back. RemoteSyncing pushes the full stop list to the store of record. A
// failed push ends in RemoteFailed with the local commit kept, and the
// outcome carries the error so the caller can show a dismissible notice.
// Attempts that fail before the local commit (engine failure or timeout,
// invalid batch, cache write failure) end in Aborted and leave no trace.
//
// # Single-writer lanes
//
// Each itinerary gets one lane: a FIFO queue drained by one goroutine.
// Attempts on the same itinerary never interleave, so a later attempt always
// merges against the snapshot an earlier one committed. Different
// itineraries proceed in parallel. Run owns the lanes; Submit enqueues an
// attempt and waits for its outcome.
package reconcile
