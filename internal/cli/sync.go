package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jmbish04/october-visit-2025/internal/cache"
	"github.com/jmbish04/october-visit-2025/internal/reconcile"
)

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Load the plan from the store of record",
		Long: `Load the plan from the store of record into the local cache.

A cache that already holds stops is left alone unless --force is given, so
unpushed local edits are not overwritten by accident.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				return submitAndReport(cmd, rootOpts, a, reconcile.Pull(a.cfg.ItineraryID, force))
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite a non-empty local cache")

	return cmd
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send the local plan to the store of record",
		Long:  `Send the local plan to the store of record. Use it to retry after "sync failed".`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				return submitAndReport(cmd, rootOpts, a, reconcile.Push(a.cfg.ItineraryID))
			})
		},
	}

	return cmd
}

// statusView is the text rendering of cache.Status.
type statusView cache.Status

func (s statusView) String() string {
	days := make([]string, len(s.Days))
	for i, d := range s.Days {
		days[i] = fmt.Sprint(d)
	}
	state := "in sync"
	if s.Pending {
		state = "local changes not pushed"
	}
	return fmt.Sprintf("%s: %d stops on days [%s], %s", s.ItineraryID, s.Stops, strings.Join(days, " "), state)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether local changes are waiting to be pushed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				st, err := a.caches.For(a.cfg.ItineraryID).SyncStatus(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read status", err)
				}
				if rootOpts.Format == "json" {
					return rootOpts.formatter(cmd).Success(st)
				}
				return rootOpts.formatter(cmd).Success(statusView(st))
			})
		},
	}

	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the local plan, one card per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				snap := a.snapshot(cmd.Context())
				if rootOpts.Format == "json" {
					return rootOpts.formatter(cmd).Success(map[string]any{
						"itinerary_id": a.cfg.ItineraryID,
						"stops":        snap,
					})
				}
				return rootOpts.formatter(cmd).Success(newPlanView(cmd.Context(), a.local, a.cfg.ItineraryID, snap))
			})
		},
	}

	return cmd
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Register a new itinerary in the local database",
		Long: `Register a new itinerary in the local database and print its id.

Without --id a random id is generated. Re-creating an existing id only
changes its title.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				if err := a.local.PutItinerary(cmd.Context(), id, args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to create itinerary", err)
				}
				f := rootOpts.formatter(cmd)
				if rootOpts.Format == "json" {
					return f.Success(map[string]string{"itinerary_id": id, "title": args[0]})
				}
				return f.Success(id)
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "itinerary id (default: random)")

	return cmd
}
