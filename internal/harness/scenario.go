package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jmbish04/october-visit-2025/internal/catalog"
	"github.com/jmbish04/october-visit-2025/internal/itinerary"
	"github.com/jmbish04/october-visit-2025/internal/merge"
	"github.com/jmbish04/october-visit-2025/internal/modifier"
)

// DefaultItineraryID is used when a scenario does not name one.
const DefaultItineraryID = "scenario"

// Scenario is one reconciliation test case.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	ItineraryID string `yaml:"itinerary_id,omitempty"`

	// Catalog and Playbooks feed the rule-based planner used by modify steps.
	Catalog   []catalog.Entity    `yaml:"catalog,omitempty"`
	Playbooks []modifier.Playbook `yaml:"playbooks,omitempty"`

	// Initial seeds the local cache; Remote seeds the store of record.
	Initial itinerary.Snapshot `yaml:"initial,omitempty"`
	Remote  itinerary.Snapshot `yaml:"remote,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one attempt, or a change of store-of-record availability.
// Exactly one action field is set.
type Step struct {
	Reorder *ReorderStep `yaml:"reorder,omitempty"`
	Insert  *InsertStep  `yaml:"insert,omitempty"`
	Remove  *RemoveStep  `yaml:"remove,omitempty"`
	Append  *AppendStep  `yaml:"append,omitempty"`
	Apply   *merge.Batch `yaml:"apply,omitempty"`
	Modify  string       `yaml:"modify,omitempty"`
	Push    bool         `yaml:"push,omitempty"`
	Pull    *PullStep    `yaml:"pull,omitempty"`
	Remote  string       `yaml:"remote,omitempty"`

	// Expect checks the attempt's terminal state. Nil skips the check.
	Expect *Expect `yaml:"expect,omitempty"`
}

type ReorderStep struct {
	Day   int      `yaml:"day"`
	Order []string `yaml:"order"`
}

type InsertStep struct {
	Day      int    `yaml:"day"`
	EntityID string `yaml:"entity_id"`
	Position *int   `yaml:"position,omitempty"`
}

type RemoveStep struct {
	Day      int    `yaml:"day"`
	EntityID string `yaml:"entity_id"`
}

type AppendStep struct {
	EntityID string `yaml:"entity_id"`
	Day      *int   `yaml:"day,omitempty"`
}

type PullStep struct {
	Force bool `yaml:"force,omitempty"`
}

// Expect names the terminal state, and optionally the error code, an
// attempt must end with.
type Expect struct {
	State string `yaml:"state"`
	Code  string `yaml:"code,omitempty"`
}

// Assertion validates the final snapshots. See the package doc for types.
type Assertion struct {
	Type     string             `yaml:"type"`
	Stops    itinerary.Snapshot `yaml:"stops,omitempty"`
	Day      int                `yaml:"day,omitempty"`
	Entities []string           `yaml:"entities,omitempty"`
	Pending  *bool              `yaml:"pending,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalStops  = "final_stops"
	AssertRemoteStops = "remote_stops"
	AssertDayOrder    = "day_order"
	AssertPending     = "pending"
	AssertValid       = "valid"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and step shape.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if err := itinerary.Validate(s.Initial); err != nil {
		return fmt.Errorf("initial: %w", err)
	}
	if err := itinerary.Validate(s.Remote); err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action is required, got %d", i, n)
		}
		if step.Remote != "" && step.Remote != "up" && step.Remote != "down" {
			return fmt.Errorf("steps[%d]: remote must be up or down, got %q", i, step.Remote)
		}
		if step.Remote != "" && step.Expect != nil {
			return fmt.Errorf("steps[%d]: remote steps take no expect clause", i)
		}
		if step.Expect != nil && step.Expect.State == "" {
			return fmt.Errorf("steps[%d]: expect.state is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Reorder != nil,
		s.Insert != nil,
		s.Remove != nil,
		s.Append != nil,
		s.Apply != nil,
		s.Modify != "",
		s.Push,
		s.Pull != nil,
		s.Remote != "",
	} {
		if set {
			n++
		}
	}
	return n
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertFinalStops, AssertRemoteStops, AssertValid:
	case AssertDayOrder:
		if a.Day < 1 {
			return fmt.Errorf("day_order requires day >= 1")
		}
	case AssertPending:
		if a.Pending == nil {
			return fmt.Errorf("pending requires a pending value")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
