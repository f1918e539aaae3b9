package reconcile

// State is a position in the attempt state machine.
type State string

const (
	StateIdle           State = "idle"
	StateMerging        State = "merging"
	StateLocalCommitted State = "local_committed"
	StateRemoteSyncing  State = "remote_syncing"
	StateSettled        State = "settled"
	StateRemoteFailed   State = "remote_failed"
	StateAborted        State = "aborted"
)

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	switch s {
	case StateSettled, StateRemoteFailed, StateAborted:
		return true
	}
	return false
}

// Committed reports whether the local cache holds the attempt's result.
func (s State) Committed() bool {
	switch s {
	case StateLocalCommitted, StateRemoteSyncing, StateSettled, StateRemoteFailed:
		return true
	}
	return false
}

// Kind names what started an attempt.
type Kind string

const (
	// KindReorder is a direct drag: a single-day reorder batch.
	KindReorder Kind = "reorder"
	// KindModify asks the modification engine for a batch.
	KindModify Kind = "modify"
	// KindApply merges an externally supplied batch.
	KindApply Kind = "apply"
	// KindAppend adds one catalog entity at the end of a day.
	KindAppend Kind = "append"
	// KindPush re-sends the current local snapshot. Used to retry after RemoteFailed.
	KindPush Kind = "push"
	// KindPull hydrates the local cache from the store of record.
	KindPull Kind = "pull"
)
