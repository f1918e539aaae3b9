package harness

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jmbish04/october-visit-2025/internal/cache"
	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
	"github.com/jmbish04/october-visit-2025/internal/modifier"
	"github.com/jmbish04/october-visit-2025/internal/reconcile"
	"github.com/jmbish04/october-visit-2025/internal/store"
)

// errRemoteDown is what the store of record returns while a scenario has it down.
var errRemoteDown = errors.New("store of record unreachable")

// switchableRemote is a store of record that can be taken down mid-scenario.
type switchableRemote struct {
	*store.Store
	down atomic.Bool
}

func (r *switchableRemote) ListStops(ctx context.Context, id string) (itinerary.Snapshot, error) {
	if r.down.Load() {
		return nil, errRemoteDown
	}
	return r.Store.ListStops(ctx, id)
}

func (r *switchableRemote) ReplaceStops(ctx context.Context, id string, stops itinerary.Snapshot) error {
	if r.down.Load() {
		return errRemoteDown
	}
	return r.Store.ReplaceStops(ctx, id, stops)
}

// Run executes a scenario against fresh in-memory stores and returns the
// result. The error is non-nil only when the scenario could not be run at
// all; failed expectations and assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	local, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create local store: %w", err)
	}
	defer local.Close()

	record, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create store of record: %w", err)
	}
	defer record.Close()

	id := scenario.ItineraryID
	if id == "" {
		id = DefaultItineraryID
	}

	remote := &switchableRemote{Store: record}
	if len(scenario.Remote) > 0 {
		if err := record.ReplaceStops(ctx, id, scenario.Remote); err != nil {
			return nil, fmt.Errorf("failed to seed store of record: %w", err)
		}
	}

	caches := cache.NewRegistry(local)
	if len(scenario.Initial) > 0 {
		if err := caches.For(id).Hydrate(ctx, scenario.Initial); err != nil {
			return nil, fmt.Errorf("failed to seed local cache: %w", err)
		}
	}

	ids := make([]string, len(scenario.Steps))
	for i := range ids {
		ids[i] = fmt.Sprintf("attempt-%03d", i+1)
	}
	planner := &modifier.Planner{
		Catalog:   catalog.NewStatic(scenario.Catalog...),
		Playbooks: scenario.Playbooks,
	}
	p, err := reconcile.New(caches, remote,
		reconcile.WithProposer(planner),
		reconcile.WithIDGenerator(reconcile.NewFixedGenerator(ids...)),
	)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		p.Run(runCtx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h := &harness{
		itineraryID: id,
		protocol:    p,
		cache:       caches.For(id),
		record:      record,
		remote:      remote,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, err
		}
	}
	h.checkAssertions(ctx, scenario.Assertions, result)
	return result, nil
}

type harness struct {
	itineraryID string
	protocol    *reconcile.Protocol
	cache       *cache.Cache
	record      *store.Store
	remote      *switchableRemote
}

func (h *harness) executeStep(ctx context.Context, seq int, step Step, result *Result) error {
	if step.Remote != "" {
		h.remote.down.Store(step.Remote == "down")
		result.Trace = append(result.Trace, StepTrace{Seq: seq, Kind: "remote", Note: step.Remote})
		return nil
	}

	out, err := h.protocol.Submit(ctx, h.attempt(step))
	if err != nil && errors.Is(err, reconcile.ErrStopped) {
		return fmt.Errorf("step %d: %w", seq, err)
	}

	trace := StepTrace{
		Seq:         seq,
		Kind:        string(out.Kind),
		AttemptID:   out.AttemptID,
		Transitions: out.Transitions,
		Code:        reconcile.CodeOf(err),
		Touched:     out.Touched,
		Local:       h.cache.Load(ctx),
	}
	trace.Remote, err = h.record.ListStops(ctx, h.itineraryID)
	if err != nil {
		return fmt.Errorf("step %d: read store of record: %w", seq, err)
	}
	result.Trace = append(result.Trace, trace)

	if step.Expect != nil {
		if string(out.State) != step.Expect.State {
			result.AddError("step %d (%s): expected state %s, got %s", seq, out.Kind, step.Expect.State, out.State)
		}
		if step.Expect.Code != "" && string(trace.Code) != step.Expect.Code {
			result.AddError("step %d (%s): expected code %s, got %q", seq, out.Kind, step.Expect.Code, trace.Code)
		}
	}
	return nil
}

func (h *harness) attempt(step Step) reconcile.Attempt {
	id := h.itineraryID
	switch {
	case step.Reorder != nil:
		return reconcile.Reorder(id, step.Reorder.Day, step.Reorder.Order)
	case step.Insert != nil:
		return reconcile.Apply(id, merge.InsertBatch(step.Insert.Day, step.Insert.EntityID, step.Insert.Position))
	case step.Remove != nil:
		return reconcile.Apply(id, merge.RemoveBatch(step.Remove.Day, step.Remove.EntityID))
	case step.Append != nil:
		return reconcile.Append(id, step.Append.EntityID, step.Append.Day)
	case step.Apply != nil:
		return reconcile.Apply(id, *step.Apply)
	case step.Modify != "":
		return reconcile.Modify(id, step.Modify)
	case step.Pull != nil:
		return reconcile.Pull(id, step.Pull.Force)
	default:
		return reconcile.Push(id)
	}
}

func (h *harness) checkAssertions(ctx context.Context, assertions []Assertion, result *Result) {
	local := h.cache.Load(ctx)

	for i, a := range assertions {
		switch a.Type {
		case AssertFinalStops:
			if !itinerary.Equal(local, a.Stops) {
				result.AddError("assertions[%d]: local stops %s, want %s", i, canonical(local), canonical(a.Stops))
			}

		case AssertRemoteStops:
			remote, err := h.record.ListStops(ctx, h.itineraryID)
			if err != nil {
				result.AddError("assertions[%d]: read store of record: %v", i, err)
				continue
			}
			if !itinerary.Equal(remote, a.Stops) {
				result.AddError("assertions[%d]: remote stops %s, want %s", i, canonical(remote), canonical(a.Stops))
			}

		case AssertDayOrder:
			got := itinerary.EntityIDs(itinerary.GroupByDay(local)[a.Day])
			if !equalIDs(got, a.Entities) {
				result.AddError("assertions[%d]: day %d order %v, want %v", i, a.Day, got, a.Entities)
			}

		case AssertPending:
			status, err := h.cache.SyncStatus(ctx)
			if err != nil {
				result.AddError("assertions[%d]: sync status: %v", i, err)
				continue
			}
			if status.Pending != *a.Pending {
				result.AddError("assertions[%d]: pending=%t, want %t", i, status.Pending, *a.Pending)
			}

		case AssertValid:
			if err := itinerary.Validate(local); err != nil {
				result.AddError("assertions[%d]: %v", i, err)
			}
		}
	}
}

func canonical(snap itinerary.Snapshot) string {
	data, err := itinerary.MarshalCanonical(snap)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
