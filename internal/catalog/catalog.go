// Package catalog describes the points of interest a plan can reference.
//
// The catalog is read-only from the itinerary core's point of view. Entity
// ids are resolved for display and for the route optimizer; the merger never
// checks that an id exists.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Lookup implementations for unknown ids.
var ErrNotFound = errors.New("catalog: entity not found")

// Entity is one point of interest.
type Entity struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Category     string   `json:"category" yaml:"category"`
	Region       string   `json:"region" yaml:"region"`
	Lat          float64  `json:"lat" yaml:"lat"`
	Lng          float64  `json:"lng" yaml:"lng"`
	Description  string   `json:"description" yaml:"description"`
	Tags         []string `json:"tags" yaml:"tags"`
	ImageURL     string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	DataVerified bool     `json:"data_verified" yaml:"data_verified"`
}

// Lookup resolves entity ids.
type Lookup interface {
	Entity(ctx context.Context, id string) (Entity, error)
}

// DecodeTags splits the comma separated tag column.
func DecodeTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// EncodeTags joins tags for the tag column.
func EncodeTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// File is the YAML document accepted by LoadFile.
type File struct {
	Entities []Entity `yaml:"entities"`
}

// LoadFile reads a YAML catalog. Unknown fields are rejected so typos
// surface instead of silently dropping data.
func LoadFile(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	seen := make(map[string]bool, len(f.Entities))
	for i, e := range f.Entities {
		if e.ID == "" {
			return nil, fmt.Errorf("entities[%d]: id is required", i)
		}
		if e.Name == "" {
			return nil, fmt.Errorf("entities[%d] (%s): name is required", i, e.ID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("entities[%d]: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
	}
	return f.Entities, nil
}

// Static is an in-memory Lookup, used by tests and by the route optimizer
// when a catalog has already been loaded.
type Static map[string]Entity

// NewStatic indexes entities by id.
func NewStatic(entities ...Entity) Static {
	s := make(Static, len(entities))
	for _, e := range entities {
		s[e.ID] = e
	}
	return s
}

// Entity implements Lookup.
func (s Static) Entity(_ context.Context, id string) (Entity, error) {
	e, ok := s[id]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}
