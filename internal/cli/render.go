package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/reconcile"
)

var (
	dayTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dayCardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	touchedCardStyle = dayCardStyle.BorderForeground(lipgloss.Color("#F7B801"))
	stopIndexStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	categoryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	emptyDayStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).Italic(true)

	stateStyles = map[reconcile.State]lipgloss.Style{
		reconcile.StateSettled:      lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		reconcile.StateRemoteFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
		reconcile.StateAborted:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

// planView is a snapshot plus the catalog names needed to print it.
type planView struct {
	ItineraryID string
	Stops       itinerary.Snapshot
	Touched     []int
	entities    map[string]catalog.Entity
}

// newPlanView resolves every scheduled entity through lookup. Unknown ids
// are printed bare.
func newPlanView(ctx context.Context, lookup catalog.Lookup, itineraryID string, snap itinerary.Snapshot) planView {
	v := planView{
		ItineraryID: itineraryID,
		Stops:       itinerary.Sort(snap),
		entities:    make(map[string]catalog.Entity, len(snap)),
	}
	for _, s := range snap {
		e, err := lookup.Entity(ctx, s.EntityID)
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				slog.Warn("entity lookup failed", "entity_id", s.EntityID, "error", err)
			}
			continue
		}
		v.entities[s.EntityID] = e
	}
	return v
}

// String renders one card per day, side by side.
func (v planView) String() string {
	if len(v.Stops) == 0 {
		return emptyDayStyle.Render(fmt.Sprintf("%s: no stops planned", v.ItineraryID))
	}

	byDay := itinerary.GroupByDay(v.Stops)
	cards := make([]string, 0, len(byDay))
	for _, day := range itinerary.Days(v.Stops) {
		cards = append(cards, v.renderDay(day, byDay[day]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (v planView) renderDay(day int, stops []itinerary.Stop) string {
	lines := []string{dayTitleStyle.Render(fmt.Sprintf("Day %d", day))}
	for _, s := range stops {
		line := fmt.Sprintf("%s %s", stopIndexStyle.Render(fmt.Sprintf("%d.", s.OrderIndex+1)), v.label(s.EntityID))
		lines = append(lines, line)
	}

	style := dayCardStyle
	for _, d := range v.Touched {
		if d == day {
			style = touchedCardStyle
			break
		}
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (v planView) label(entityID string) string {
	e, ok := v.entities[entityID]
	if !ok || e.Name == "" {
		return entityID
	}
	if e.Category == "" {
		return e.Name
	}
	return e.Name + " " + categoryStyle.Render("("+e.Category+")")
}

// outcomeView is the text rendering of a finished attempt.
type outcomeView struct {
	out  reconcile.Outcome
	plan planView
}

func (v outcomeView) String() string {
	var b strings.Builder

	state := string(v.out.State)
	if style, ok := stateStyles[v.out.State]; ok {
		state = style.Render(state)
	}
	fmt.Fprintf(&b, "%s %s %s", v.out.Kind, v.out.AttemptID, state)
	if len(v.out.Touched) > 0 {
		fmt.Fprintf(&b, " (days %s)", joinInts(v.out.Touched))
	}
	if rule, ok := v.out.Metadata["rule"]; ok {
		fmt.Fprintf(&b, " rule=%v", rule)
	}
	b.WriteString("\n")
	b.WriteString(v.plan.String())
	return b.String()
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
