package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
	"github.com/jmbish04/october-visit-2025/internal/modifier"
	"github.com/jmbish04/october-visit-2025/internal/reconcile"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		day      int
		position int
	)

	cmd := &cobra.Command{
		Use:   "add <entity-id>",
		Short: "Add a catalog entity to the plan",
		Long: `Add a catalog entity to the plan.

Without --day the entity goes to the end of the last planned day (day 1 for an
empty plan). An entity already planned elsewhere is moved, not duplicated.
--position places it at a 1-based slot instead of the end.

Examples:
  itinerary add golden-gate-park
  itinerary add muir-woods --day 2
  itinerary add ferry-building --day 1 --position 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				entityID := args[0]
				if !cmd.Flags().Changed("position") {
					var dayPtr *int
					if cmd.Flags().Changed("day") {
						dayPtr = &day
					}
					return submitAndReport(cmd, rootOpts, a, reconcile.Append(a.cfg.ItineraryID, entityID, dayPtr))
				}

				if position < 1 {
					return NewExitError(ExitCommandError, "--position must be >= 1")
				}
				target := day
				if !cmd.Flags().Changed("day") {
					target = max(itinerary.LastDay(a.snapshot(cmd.Context())), 1)
				}
				pos := position - 1
				return submitAndReport(cmd, rootOpts, a, reconcile.Apply(a.cfg.ItineraryID, merge.InsertBatch(target, entityID, &pos)))
			})
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "target day (default: last planned day)")
	cmd.Flags().IntVar(&position, "position", 0, "1-based slot within the day (default: end)")

	return cmd
}

// NewReorderCommand creates the reorder command.
func NewReorderCommand(rootOpts *RootOptions) *cobra.Command {
	var day int

	cmd := &cobra.Command{
		Use:   "reorder --day <n> <entity-id>...",
		Short: "Replace one day's order",
		Long: `Replace one day's order with the given entity ids.

Ids planned on other days are moved onto this day. Ids left out are dropped from it.

Example:
  itinerary reorder --day 1 ferry-building coit-tower lombard-street`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if day < 1 {
				return NewExitError(ExitCommandError, "--day must be >= 1")
			}
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				return submitAndReport(cmd, rootOpts, a, reconcile.Reorder(a.cfg.ItineraryID, day, args))
			})
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "day to reorder (required)")
	_ = cmd.MarkFlagRequired("day")

	return cmd
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	var day int

	cmd := &cobra.Command{
		Use:   "move <entity-id> <position>",
		Short: "Drag a stop to a new slot",
		Long: `Drag a planned stop to a 1-based position.

Without --day the stop stays on its day and the day is reordered. With --day it
is moved to that day at the given position. Positions past the end are clamped.

Examples:
  itinerary move coit-tower 1
  itinerary move muir-woods 2 --day 3`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := args[0]
			var position int
			if _, err := fmt.Sscanf(args[1], "%d", &position); err != nil || position < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid position %q: must be an integer >= 1", args[1]))
			}
			to := position - 1

			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				snap := a.snapshot(cmd.Context())
				from, ok := itinerary.DayOf(snap, entityID)
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s is not planned in %s", entityID, a.cfg.ItineraryID))
				}

				if cmd.Flags().Changed("day") && day != from {
					if day < 1 {
						return NewExitError(ExitCommandError, "--day must be >= 1")
					}
					return submitAndReport(cmd, rootOpts, a, reconcile.Apply(a.cfg.ItineraryID, merge.InsertBatch(day, entityID, &to)))
				}

				moved := itinerary.Move(itinerary.GroupByDay(snap)[from], entityID, to)
				return submitAndReport(cmd, rootOpts, a, reconcile.Reorder(a.cfg.ItineraryID, from, itinerary.EntityIDs(moved)))
			})
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "move to this day instead")

	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <entity-id>",
		Short: "Remove a stop from the plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := args[0]
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				day, ok := itinerary.DayOf(a.snapshot(cmd.Context()), entityID)
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s is not planned in %s", entityID, a.cfg.ItineraryID))
				}
				return submitAndReport(cmd, rootOpts, a, reconcile.Apply(a.cfg.ItineraryID, merge.RemoveBatch(day, entityID)))
			})
		},
	}

	return cmd
}

// NewModifyCommand creates the modify command.
func NewModifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modify <prompt>...",
		Short: "Ask the modification engine to change the plan",
		Long: `Ask the configured modification engine for a batch of day updates and merge it.

Only the days the engine names are changed. With the built-in planner, prompts
mentioning "optimize" or "driving order" reorder each day by distance; other
prompts are matched against playbook keywords.

Examples:
  itinerary modify optimize the driving order
  itinerary modify "make day 2 a rest day"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return NewExitError(ExitCommandError, "prompt is required")
			}
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				return submitAndReport(cmd, rootOpts, a, reconcile.Modify(a.cfg.ItineraryID, prompt))
			})
		},
	}

	return cmd
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <batch-file>",
		Short: "Merge a batch of day updates from a file",
		Long: `Merge a batch of day updates, {updates: [...], metadata: {...}}, from a file.

JSON files (or "-" for stdin) are checked against the engine response schema.
YAML files (.yaml, .yml) are decoded strictly.

Example:
  itinerary apply rainy-day.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBatch(cmd.InOrStdin(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read batch", err)
			}
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				return submitAndReport(cmd, rootOpts, a, reconcile.Apply(a.cfg.ItineraryID, b))
			})
		},
	}

	return cmd
}

func readBatch(stdin io.Reader, path string) (merge.Batch, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return merge.Batch{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var b merge.Batch
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&b); err != nil {
			return merge.Batch{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return b, nil
	default:
		return modifier.DecodeBatch(data)
	}
}

// snapshot returns the local plan for the configured itinerary.
func (a *app) snapshot(ctx context.Context) itinerary.Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.caches.For(a.cfg.ItineraryID).Load(ctx)
}
