package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmbish04/october-visit-2025/internal/cache"
	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/config"
	"github.com/jmbish04/october-visit-2025/internal/modifier"
	"github.com/jmbish04/october-visit-2025/internal/observability"
	"github.com/jmbish04/october-visit-2025/internal/reconcile"
	"github.com/jmbish04/october-visit-2025/internal/remote"
	"github.com/jmbish04/october-visit-2025/internal/store"
)

// app is the wiring shared by commands that act on one itinerary: the local
// database, the store of record, and a running reconciler.
type app struct {
	cfg      config.Config
	local    *store.Store
	caches   *cache.Registry
	protocol *reconcile.Protocol

	closers        []func() error
	cancel         context.CancelFunc
	done           chan error
	shutdownTraces func(context.Context) error
}

// openApp opens the local database, selects the store of record and the
// modification engine, and starts the reconciler. Callers must Close it.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	shutdownTraces, err := observability.InitTracing(ctx, tracingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a := &app{cfg: cfg, shutdownTraces: shutdownTraces}

	slog.Debug("opening local database", "path", cfg.LocalDB)
	local, err := store.Open(cfg.LocalDB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open local database: %w", err)
	}
	a.local = local
	a.closers = append(a.closers, local.Close)

	rs, err := a.remoteStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	proposer, err := newProposer(cfg, local)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.caches = cache.NewRegistry(local)
	opts := []reconcile.Option{reconcile.WithModifyTimeout(cfg.Modifier.Timeout)}
	if proposer != nil {
		opts = append(opts, reconcile.WithProposer(proposer))
	}
	p, err := reconcile.New(a.caches, rs, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.protocol = p

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan error, 1)
	go func() { a.done <- p.Run(runCtx) }()

	return a, nil
}

// remoteStore picks the store of record: an HTTP server, another SQLite
// file, or the local database itself.
func (a *app) remoteStore() (reconcile.RemoteStore, error) {
	switch {
	case a.cfg.Remote.URL != "":
		slog.Debug("store of record", "url", a.cfg.Remote.URL)
		c, err := remote.New(a.cfg.Remote.URL, a.cfg.Remote.Timeout)
		if err != nil {
			return nil, fmt.Errorf("remote: %w", err)
		}
		return c, nil

	case a.cfg.Remote.DB != "":
		slog.Debug("store of record", "db", a.cfg.Remote.DB)
		s, err := store.Open(a.cfg.Remote.DB)
		if err != nil {
			return nil, fmt.Errorf("open remote database: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil

	default:
		slog.Debug("store of record is the local database")
		return a.local, nil
	}
}

// newProposer builds the configured modification engine. A nil Proposer
// means modify attempts abort with ENGINE_FAILED.
func newProposer(cfg config.Config, lookup catalog.Lookup) (modifier.Proposer, error) {
	switch cfg.Modifier.Kind {
	case config.ModifierHTTP:
		return modifier.NewHTTPProposer(cfg.Modifier.Endpoint, cfg.Modifier.Timeout), nil

	case config.ModifierPlanner:
		planner := &modifier.Planner{Catalog: lookup}
		if cfg.Modifier.Playbooks != "" {
			pbs, err := modifier.LoadPlaybooks(cfg.Modifier.Playbooks)
			if err != nil {
				return nil, err
			}
			planner.Playbooks = pbs
		}
		return planner, nil

	default:
		return nil, nil
	}
}

func tracingConfig(cfg config.Config) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}
}

// submit runs one attempt against the configured itinerary.
func (a *app) submit(ctx context.Context, attempt reconcile.Attempt) (reconcile.Outcome, error) {
	if attempt.ItineraryID == "" {
		attempt.ItineraryID = a.cfg.ItineraryID
	}
	return a.protocol.Submit(ctx, attempt)
}

// Close stops the reconciler, waits for it, and closes the databases.
func (a *app) Close() error {
	var errs []error

	if a.protocol != nil {
		a.protocol.Stop()
		if err := <-a.done; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		a.cancel()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	observability.ShutdownWithTimeout(context.Background(), a.shutdownTraces)
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, opts *RootOptions, fn func(*app) error) error {
	a, err := openApp(ctx, opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing databases", "error", closeErr)
		}
	}()
	return fn(a)
}
