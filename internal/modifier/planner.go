package modifier

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
)

// optimizeKeywords trigger the built-in route optimizer.
var optimizeKeywords = []string{"optimize", "optimise", "driving order", "shortest route"}

// Playbook is a canned batch selected by keyword.
type Playbook struct {
	Name     string            `yaml:"name"`
	Match    []string          `yaml:"match"`
	Updates  []merge.DayUpdate `yaml:"updates"`
	Metadata map[string]any    `yaml:"metadata,omitempty"`
}

type playbookFile struct {
	Playbooks []Playbook `yaml:"playbooks"`
}

// LoadPlaybooks reads playbooks from a YAML file. Unknown fields are rejected.
func LoadPlaybooks(path string) ([]Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbooks: %w", err)
	}

	var f playbookFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse playbooks: %w", err)
	}

	for i, pb := range f.Playbooks {
		if pb.Name == "" {
			return nil, fmt.Errorf("playbooks[%d]: name is required", i)
		}
		if len(pb.Match) == 0 {
			return nil, fmt.Errorf("playbook %q: at least one match keyword is required", pb.Name)
		}
		if err := (merge.Batch{Updates: pb.Updates}).Validate(); err != nil {
			return nil, fmt.Errorf("playbook %q: %w", pb.Name, err)
		}
	}
	return f.Playbooks, nil
}

// Planner is a rule-based Proposer. It understands route optimization out
// of the box and otherwise falls back to keyword playbooks. Matching is
// case-insensitive under Unicode case folding.
type Planner struct {
	Catalog   catalog.Lookup
	Playbooks []Playbook
}

// Propose implements Proposer.
func (p *Planner) Propose(ctx context.Context, req Request) (merge.Batch, error) {
	fold := cases.Fold()
	prompt := fold.String(req.Prompt)

	for _, kw := range optimizeKeywords {
		if strings.Contains(prompt, kw) {
			return p.optimize(ctx, req.Stops)
		}
	}

	for _, pb := range p.Playbooks {
		for _, kw := range pb.Match {
			if strings.Contains(prompt, fold.String(kw)) {
				return playbookBatch(pb), nil
			}
		}
	}

	return merge.Batch{}, fmt.Errorf("%w: %q", ErrNoRule, req.Prompt)
}

func playbookBatch(pb Playbook) merge.Batch {
	meta := map[string]any{"engine": "planner", "rule": pb.Name}
	for k, v := range pb.Metadata {
		meta[k] = v
	}
	updates := make([]merge.DayUpdate, len(pb.Updates))
	copy(updates, pb.Updates)
	return merge.Batch{Updates: updates, Metadata: meta}
}

// optimize reorders each day by greedy nearest neighbour, starting from the
// day's current first stop. Stops whose coordinates cannot be resolved keep
// their relative order after the routed ones. Days whose order is already
// optimal produce no update.
func (p *Planner) optimize(ctx context.Context, snap itinerary.Snapshot) (merge.Batch, error) {
	if p.Catalog == nil {
		return merge.Batch{}, fmt.Errorf("optimize: no catalog configured")
	}

	var updates []merge.DayUpdate
	var before, after float64
	groups := itinerary.GroupByDay(snap)
	for _, day := range itinerary.Days(snap) {
		stops := groups[day]

		var located []point
		var unknown []string
		for _, s := range stops {
			e, err := p.Catalog.Entity(ctx, s.EntityID)
			if err != nil {
				unknown = append(unknown, s.EntityID)
				continue
			}
			located = append(located, point{id: s.EntityID, lat: e.Lat, lng: e.Lng})
		}

		routed := nearestNeighbour(located)
		before += pathLength(located)
		after += pathLength(routed)

		order := make([]string, 0, len(stops))
		for _, pt := range routed {
			order = append(order, pt.id)
		}
		order = append(order, unknown...)

		if equalStrings(order, itinerary.EntityIDs(stops)) {
			continue
		}
		refs := make([]merge.EntityRef, len(order))
		for i, id := range order {
			refs[i] = merge.EntityRef{EntityID: id}
		}
		updates = append(updates, merge.DayUpdate{Day: day, Order: refs, Notes: "optimized driving order"})
	}

	return merge.Batch{
		Updates: updates,
		Metadata: map[string]any{
			"engine":             "planner",
			"rule":               "optimize",
			"distance_km_before": roundTenth(before),
			"distance_km_after":  roundTenth(after),
		},
	}, nil
}

type point struct {
	id       string
	lat, lng float64
}

func nearestNeighbour(pts []point) []point {
	if len(pts) < 3 {
		return append([]point(nil), pts...)
	}
	remaining := append([]point(nil), pts[1:]...)
	route := []point{pts[0]}
	for len(remaining) > 0 {
		cur := route[len(route)-1]
		best := 0
		for i := 1; i < len(remaining); i++ {
			if haversineKm(cur, remaining[i]) < haversineKm(cur, remaining[best]) {
				best = i
			}
		}
		route = append(route, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return route
}

func pathLength(pts []point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += haversineKm(pts[i-1], pts[i])
	}
	return total
}

const earthRadiusKm = 6371.0

func haversineKm(a, b point) float64 {
	lat1, lat2 := a.lat*math.Pi/180, b.lat*math.Pi/180
	dLat := lat2 - lat1
	dLng := (b.lng - a.lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func equalStrings(a, b []string) bool {
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
