package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/store"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the points-of-interest catalog",
	}

	cmd.AddCommand(newCatalogImportCommand(rootOpts))
	cmd.AddCommand(newCatalogListCommand(rootOpts))

	return cmd
}

func newCatalogImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Upsert entities from a YAML catalog file",
		Long: `Upsert entities from a YAML catalog file into the local database.

The file holds a top-level "entities" list; unknown fields are rejected.

Example:
  itinerary catalog import bay-area.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := catalog.LoadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load catalog", err)
			}

			return withStore(rootOpts, func(st *store.Store) error {
				if err := st.UpsertEntities(cmd.Context(), entities); err != nil {
					return WrapExitError(ExitCommandError, "failed to import catalog", err)
				}
				slog.Info("catalog imported", "file", args[0], "entities", len(entities))

				f := rootOpts.formatter(cmd)
				if rootOpts.Format == "json" {
					return f.Success(map[string]int{"imported": len(entities)})
				}
				return f.Success(fmt.Sprintf("imported %d entities", len(entities)))
			})
		},
	}
}

func newCatalogListCommand(rootOpts *RootOptions) *cobra.Command {
	var region string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, func(st *store.Store) error {
				entities, err := st.ListEntities(cmd.Context(), region)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list catalog", err)
				}
				f := rootOpts.formatter(cmd)
				if rootOpts.Format == "json" {
					return f.Success(entities)
				}
				return f.Success(entityTable(entities))
			})
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "only list entities in this region")

	return cmd
}

// entityTable renders one entity per line with aligned columns.
type entityTable []catalog.Entity

func (t entityTable) String() string {
	if len(t) == 0 {
		return emptyDayStyle.Render("catalog is empty")
	}

	idWidth := 0
	for _, e := range t {
		idWidth = max(idWidth, lipgloss.Width(e.ID))
	}
	idStyle := lipgloss.NewStyle().Width(idWidth + 2)

	lines := make([]string, len(t))
	for i, e := range t {
		lines[i] = idStyle.Render(e.ID) + e.Name + " " + categoryStyle.Render("("+strings.Join(nonEmpty(e.Category, e.Region), ", ")+")")
	}
	return strings.Join(lines, "\n")
}

func nonEmpty(vs ...string) []string {
	out := vs[:0:0]
	for _, v := range vs {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// withStore opens only the local database, for commands that never touch
// the reconciler.
func withStore(opts *RootOptions, fn func(*store.Store) error) error {
	st, err := store.Open(opts.Config.LocalDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(st)
}
