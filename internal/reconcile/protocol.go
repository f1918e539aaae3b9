package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jmbish04/october-visit-2025/internal/cache"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
	"github.com/jmbish04/october-visit-2025/internal/modifier"
	"github.com/jmbish04/october-visit-2025/internal/observability"
)

// DefaultModifyTimeout bounds a modification engine call.
const DefaultModifyTimeout = 30 * time.Second

// Protocol drives attempts through the state machine, one lane per itinerary.
type Protocol struct {
	caches        *cache.Registry
	remote        RemoteStore
	proposer      modifier.Proposer
	ids           IDGenerator
	modifyTimeout time.Duration
	metrics       *observability.Collector
	now           func() time.Time

	inbox *jobQueue

	mu    sync.Mutex
	lanes map[string]*jobQueue
	wg    sync.WaitGroup
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithProposer sets the modification engine used by Modify attempts.
func WithProposer(p modifier.Proposer) Option {
	return func(pr *Protocol) { pr.proposer = p }
}

// WithIDGenerator sets the attempt id source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(pr *Protocol) { pr.ids = g }
}

// WithModifyTimeout bounds each engine call. Non-positive values keep the default.
func WithModifyTimeout(d time.Duration) Option {
	return func(pr *Protocol) {
		if d > 0 {
			pr.modifyTimeout = d
		}
	}
}

// WithMetrics records attempt metrics on c.
func WithMetrics(c *observability.Collector) Option {
	return func(pr *Protocol) { pr.metrics = c }
}

// New creates a Protocol. Call Run before Submit can make progress.
func New(caches *cache.Registry, remote RemoteStore, opts ...Option) (*Protocol, error) {
	if caches == nil {
		return nil, fmt.Errorf("reconcile: cache registry is required")
	}
	if remote == nil {
		return nil, fmt.Errorf("reconcile: remote store is required")
	}

	p := &Protocol{
		caches:        caches,
		remote:        remote,
		ids:           UUIDv7Generator{},
		modifyTimeout: DefaultModifyTimeout,
		now:           time.Now,
		inbox:         newJobQueue(),
		lanes:         make(map[string]*jobQueue),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit enqueues an attempt and waits for its outcome.
//
// The returned error is nil only for Settled attempts. A RemoteFailed
// outcome comes with an *AttemptError coded REMOTE_SYNC_FAILED; the local
// commit in Outcome.Snapshot stands. If ctx ends while the attempt is still
// queued, the attempt is skipped when its turn comes.
func (p *Protocol) Submit(ctx context.Context, a Attempt) (Outcome, error) {
	if err := a.check(); err != nil {
		err = &AttemptError{Code: ErrCodeInvalidBatch, ItineraryID: a.ItineraryID, State: StateAborted, Err: err}
		return Outcome{ItineraryID: a.ItineraryID, Kind: a.Kind, State: StateAborted, Err: err}, err
	}

	j := &job{ctx: ctx, attempt: a, enqueued: p.now(), reply: make(chan Outcome, 1)}
	if !p.inbox.Enqueue(j) {
		return stoppedOutcome(a), ErrStopped
	}

	select {
	case out := <-j.reply:
		return out, out.Err
	case <-ctx.Done():
		return Outcome{ItineraryID: a.ItineraryID, Kind: a.Kind}, ctx.Err()
	}
}

// Run routes submitted attempts to their itinerary's lane.
// Blocks until ctx is cancelled. Queued attempts that never ran are answered
// with ErrStopped.
//
// Must be called from exactly one goroutine.
func (p *Protocol) Run(ctx context.Context) error {
	slog.Info("reconciler starting")
	defer p.stopLanes()

	for {
		if j, ok := p.inbox.TryDequeue(); ok {
			p.route(ctx, j)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("reconciler stopping: context cancelled")
			p.inbox.Close()
			drain(p.inbox)
			return ctx.Err()

		case <-p.inbox.Wait():
			if p.inbox.Drained() {
				slog.Info("reconciler stopping: inbox closed")
				return nil
			}
		}
	}
}

// Stop closes the inbox. Run returns once the inbox is drained.
func (p *Protocol) Stop() {
	p.inbox.Close()
}

func (p *Protocol) route(ctx context.Context, j *job) {
	id := j.attempt.ItineraryID

	p.mu.Lock()
	lane, ok := p.lanes[id]
	if !ok {
		lane = newJobQueue()
		p.lanes[id] = lane
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runLane(ctx, id, lane)
		}()
		p.metrics.SetActiveLanes(len(p.lanes))
	}
	p.mu.Unlock()

	if !lane.Enqueue(j) {
		j.reply <- stoppedOutcome(j.attempt)
	}
}

// runLane is the single writer for one itinerary.
func (p *Protocol) runLane(ctx context.Context, itineraryID string, lane *jobQueue) {
	slog.Debug("lane starting", "itinerary_id", itineraryID)

	for {
		if j, ok := lane.TryDequeue(); ok {
			if err := j.ctx.Err(); err != nil {
				j.reply <- Outcome{ItineraryID: itineraryID, Kind: j.attempt.Kind, State: StateAborted, Err: err}
				continue
			}
			j.reply <- p.execute(j)
			continue
		}

		select {
		case <-ctx.Done():
			lane.Close()
			drain(lane)
			slog.Debug("lane stopping", "itinerary_id", itineraryID)
			return

		case <-lane.Wait():
			if lane.Drained() {
				return
			}
		}
	}
}

func (p *Protocol) stopLanes() {
	p.mu.Lock()
	for _, lane := range p.lanes {
		lane.Close()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func drain(q *jobQueue) {
	for {
		j, ok := q.TryDequeue()
		if !ok {
			return
		}
		j.reply <- stoppedOutcome(j.attempt)
	}
}

func stoppedOutcome(a Attempt) Outcome {
	return Outcome{ItineraryID: a.ItineraryID, Kind: a.Kind, State: StateAborted, Err: ErrStopped}
}

// execute runs one attempt to a terminal state.
// Called only from the attempt's lane goroutine.
func (p *Protocol) execute(j *job) Outcome {
	a := j.attempt
	out := Outcome{
		AttemptID:   p.ids.Generate(),
		ItineraryID: a.ItineraryID,
		Kind:        a.Kind,
	}
	out.transition(StateIdle)

	ctx, span := observability.StartSpan(j.ctx, "attempt."+string(a.Kind),
		attribute.String("itinerary_id", a.ItineraryID),
		attribute.String("attempt_id", out.AttemptID),
	)
	defer span.End()

	log := slog.With("itinerary_id", a.ItineraryID, "attempt_id", out.AttemptID, "kind", string(a.Kind))
	log.Debug("attempt started")

	if a.Kind == KindPull {
		p.pull(ctx, a, &out)
	} else {
		p.commitAndPush(ctx, a, &out, log)
	}

	span.SetAttributes(attribute.String("state", string(out.State)))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(CodeOf(out.Err)))
	}
	p.metrics.RecordAttempt(string(a.Kind), string(out.State), p.now().Sub(j.enqueued))

	switch out.State {
	case StateSettled:
		log.Info("attempt settled", "stops", len(out.Snapshot), "touched_days", out.Touched)
	case StateRemoteFailed:
		log.Warn("saved locally; sync failed", "error", out.Err)
	default:
		log.Warn("attempt aborted", "state", string(out.State), "error", out.Err)
	}
	return out
}

func (p *Protocol) abort(out *Outcome, code ErrorCode, err error) {
	out.transition(StateAborted)
	out.Err = &AttemptError{Code: code, ItineraryID: out.ItineraryID, AttemptID: out.AttemptID, State: StateAborted, Err: err}
}

func (p *Protocol) commitAndPush(ctx context.Context, a Attempt, out *Outcome, log *slog.Logger) {
	c := p.caches.For(a.ItineraryID)
	out.transition(StateMerging)

	snap, err := c.Snapshot(ctx)
	if err != nil {
		p.abort(out, ErrCodeCacheWriteFailed, err)
		return
	}
	var post itinerary.Snapshot

	switch a.Kind {
	case KindPush:
		post = snap

	case KindAppend:
		prev, moved := itinerary.DayOf(snap, a.EntityID)
		stop, err := c.Append(ctx, a.EntityID, a.Day)
		if err != nil {
			p.abort(out, ErrCodeCacheWriteFailed, err)
			return
		}
		out.Touched = []int{stop.Day}
		if moved && prev != stop.Day {
			out.Touched = []int{min(prev, stop.Day), max(prev, stop.Day)}
		}
		pos := stop.OrderIndex
		post = merge.ApplyBatch(snap, merge.InsertBatch(stop.Day, a.EntityID, &pos)).Snapshot

	default:
		b, err := p.batchFor(ctx, a, snap, log)
		if err != nil {
			p.abort(out, ErrCodeEngineFailed, err)
			return
		}
		if err := b.Validate(); err != nil {
			p.abort(out, ErrCodeInvalidBatch, err)
			return
		}
		out.Metadata = b.Metadata

		res := merge.ApplyBatch(snap, b)
		if err := commit(ctx, c, snap, res); err != nil {
			p.abort(out, ErrCodeCacheWriteFailed, err)
			return
		}
		out.Touched = res.Touched
		post = res.Snapshot
	}

	out.Snapshot = post
	out.transition(StateLocalCommitted)

	out.transition(StateRemoteSyncing)
	if err := p.remote.ReplaceStops(ctx, a.ItineraryID, post); err != nil {
		p.metrics.RecordRemoteFailure()
		out.transition(StateRemoteFailed)
		out.Err = &AttemptError{
			Code:        ErrCodeRemoteSyncFailed,
			ItineraryID: a.ItineraryID,
			AttemptID:   out.AttemptID,
			State:       StateRemoteFailed,
			Err:         err,
		}
		return
	}

	p.markSynced(ctx, c, post, log)
	out.transition(StateSettled)
}

func (p *Protocol) batchFor(ctx context.Context, a Attempt, snap itinerary.Snapshot, log *slog.Logger) (merge.Batch, error) {
	if a.Kind != KindModify {
		return a.Batch, nil
	}
	if p.proposer == nil {
		return merge.Batch{}, fmt.Errorf("no modification engine configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.modifyTimeout)
	defer cancel()

	log.Debug("calling modification engine", "timeout", p.modifyTimeout)
	b, err := p.proposer.Propose(ctx, modifier.Request{
		Prompt:      a.Prompt,
		ItineraryID: a.ItineraryID,
		Stops:       snap,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return merge.Batch{}, fmt.Errorf("engine timed out after %s: %w", p.modifyTimeout, err)
		}
		return merge.Batch{}, err
	}
	return b, nil
}

// commit writes a merge result through the cache: a full hydrate when every
// day of the itinerary was touched, otherwise only the touched days.
func commit(ctx context.Context, c *cache.Cache, before itinerary.Snapshot, res merge.Result) error {
	if len(res.Touched) == 0 {
		return nil
	}

	touched := make(map[int]bool, len(res.Touched))
	for _, d := range res.Touched {
		touched[d] = true
	}
	all := true
	for _, d := range append(itinerary.Days(before), itinerary.Days(res.Snapshot)...) {
		if !touched[d] {
			all = false
			break
		}
	}

	if all {
		return c.Hydrate(ctx, res.Snapshot)
	}
	return c.ReplaceDays(ctx, res.TouchedStops())
}

func (p *Protocol) markSynced(ctx context.Context, c *cache.Cache, snap itinerary.Snapshot, log *slog.Logger) {
	digest, err := itinerary.Digest(snap)
	if err == nil {
		err = c.MarkSynced(ctx, digest)
	}
	if err != nil {
		log.Warn("failed to record sync marker", "error", err)
	}
}

// pull hydrates the local cache from the store of record. A non-empty cache
// is kept unless the attempt forces the overwrite.
func (p *Protocol) pull(ctx context.Context, a Attempt, out *Outcome) {
	c := p.caches.For(a.ItineraryID)

	local, err := c.Snapshot(ctx)
	if err != nil {
		p.abort(out, ErrCodeCacheWriteFailed, err)
		return
	}
	if len(local) > 0 && !a.Force {
		out.Snapshot = local
		out.transition(StateSettled)
		return
	}

	out.transition(StateRemoteSyncing)
	remote, err := p.remote.ListStops(ctx, a.ItineraryID)
	if err != nil {
		p.abort(out, ErrCodeRemoteSyncFailed, err)
		return
	}
	remote = itinerary.Sort(remote)

	if err := c.Hydrate(ctx, remote); err != nil {
		p.abort(out, ErrCodeCacheWriteFailed, err)
		return
	}
	out.Snapshot = remote
	out.Hydrated = true
	out.Touched = itinerary.Days(remote)
	out.transition(StateLocalCommitted)

	p.markSynced(ctx, c, remote, slog.With("itinerary_id", a.ItineraryID, "attempt_id", out.AttemptID))
	out.transition(StateSettled)
}
