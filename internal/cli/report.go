package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmbish04/october-visit-2025/internal/reconcile"
)

// attemptReport is the JSON payload for commands that submit an attempt.
type attemptReport struct {
	reconcile.Outcome
	Error string `json:"error,omitempty"`
}

// submitAndReport submits attempt and prints its outcome.
//
// Settled exits 0. RemoteFailed prints the committed plan with a
// "saved locally; sync failed" notice and exits 1. Aborted exits 1 with the
// attempt's error code. Errors that never reached the state machine exit 2.
func submitAndReport(cmd *cobra.Command, opts *RootOptions, a *app, attempt reconcile.Attempt) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := a.submit(ctx, attempt)
	f := opts.formatter(cmd)

	switch {
	case err == nil:
		return f.Success(present(ctx, opts, a, out))

	case out.State == reconcile.StateRemoteFailed:
		notice := fmt.Sprintf("saved locally; sync failed: %v (retry with \"itinerary push\")", errors.Unwrap(err))
		if perr := f.Notice(present(ctx, opts, a, out), notice); perr != nil {
			return perr
		}
		return WrapExitError(ExitFailure, "sync failed", err)

	case out.State == reconcile.StateAborted && !errors.Is(err, reconcile.ErrStopped):
		code := string(reconcile.CodeOf(err))
		if code == "" {
			code = "ABORTED"
		}
		if perr := f.Error(code, err.Error(), map[string]any{
			"attempt_id":  out.AttemptID,
			"kind":        out.Kind,
			"transitions": out.Transitions,
		}); perr != nil {
			return perr
		}
		return WrapExitError(ExitFailure, "attempt aborted", err)

	default:
		return WrapExitError(ExitCommandError, "attempt not processed", err)
	}
}

// present picks the text or JSON rendering of an outcome.
func present(ctx context.Context, opts *RootOptions, a *app, out reconcile.Outcome) any {
	if opts.Format == "json" {
		r := attemptReport{Outcome: out}
		if out.Err != nil {
			r.Error = out.Err.Error()
		}
		return r
	}
	plan := newPlanView(ctx, a.local, out.ItineraryID, out.Snapshot)
	plan.Touched = out.Touched
	return outcomeView{out: out, plan: plan}
}
