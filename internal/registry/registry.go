// Package registry holds the static catalogue of source descriptors.
package registry

import (
	"fmt"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// Registry is a pure lookup over immutable source descriptors. It performs no
// I/O; descriptors come from configuration at process start.
type Registry struct {
	byCategory map[contractor.Category][]contractor.SourceDescriptor
	byID       map[string]contractor.SourceDescriptor
}

// New validates and indexes the descriptor catalogue.
func New(descriptors []contractor.SourceDescriptor) (*Registry, error) {
	r := &Registry{
		byCategory: make(map[contractor.Category][]contractor.SourceDescriptor),
		byID:       make(map[string]contractor.SourceDescriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("source descriptor missing id (name %q)", d.Name)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", d.ID)
		}
		if !d.Category.Valid() || d.Category == contractor.CategoryAll {
			return nil, fmt.Errorf("source %q: bad category %q", d.ID, d.Category)
		}
		if d.URLTemplate == "" {
			return nil, fmt.Errorf("source %q: url_template is required", d.ID)
		}
		if d.Auth == "" {
			d.Auth = contractor.AuthNone
		}
		if d.Auth == contractor.AuthCredentials && d.Locator != contractor.LocatorAuthenticated {
			return nil, fmt.Errorf("source %q: credentials auth requires the authenticated locator", d.ID)
		}
		if d.RateRPS <= 0 {
			d.RateRPS = 0.5
		}
		if d.RateBurst <= 0 {
			d.RateBurst = 1
		}
		if d.MaxPages <= 0 {
			d.MaxPages = 3
		}
		r.byID[d.ID] = d
		r.byCategory[d.Category] = append(r.byCategory[d.Category], d)
	}
	return r, nil
}

// SourcesFor returns the descriptors for a category; CategoryAll returns the
// whole catalogue. Unknown categories fail with ErrInvalidCategory.
func (r *Registry) SourcesFor(category contractor.Category) ([]contractor.SourceDescriptor, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", contractor.ErrInvalidCategory, category)
	}
	if category == contractor.CategoryAll {
		out := make([]contractor.SourceDescriptor, 0, len(r.byID))
		for _, c := range contractor.Categories() {
			out = append(out, r.byCategory[c]...)
		}
		return out, nil
	}
	return append([]contractor.SourceDescriptor(nil), r.byCategory[category]...), nil
}

// Get returns a descriptor by source id.
func (r *Registry) Get(sourceID string) (contractor.SourceDescriptor, bool) {
	d, ok := r.byID[sourceID]
	return d, ok
}

// Len reports the catalogue size.
func (r *Registry) Len() int {
	return len(r.byID)
}
