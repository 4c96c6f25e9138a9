// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// ContractorStore keeps canonical contractors in process memory.
type ContractorStore struct {
	mu    sync.RWMutex
	byKey map[string]contractor.CanonicalContractor
}

// NewContractorStore constructs an empty store.
func NewContractorStore() *ContractorStore {
	return &ContractorStore{
		byKey: make(map[string]contractor.CanonicalContractor),
	}
}

// GetByIdentityKey returns the record for key, or nil.
func (s *ContractorStore) GetByIdentityKey(_ context.Context, key string) (*contractor.CanonicalContractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := clone(c)
	return &cp, nil
}

// ListByCityState returns records sharing a folded city+state, for fuzzy
// matching.
func (s *ContractorStore) ListByCityState(_ context.Context, city, state string) ([]contractor.CanonicalContractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contractor.CanonicalContractor
	for _, c := range s.byKey {
		if strings.EqualFold(c.City, city) && strings.EqualFold(c.State, state) {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

// Upsert writes c keyed by identity key. Writes are non-destructive: an
// existing row's populated scalars survive empty incoming values and tag sets
// only grow, so replaying the same record is a no-op.
func (s *ContractorStore) Upsert(_ context.Context, c *contractor.CanonicalContractor) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byKey[c.IdentityKey]
	if !ok {
		s.byKey[c.IdentityKey] = clone(*c)
		return c.ID, nil
	}
	merged := mergeRows(existing, *c)
	s.byKey[c.IdentityKey] = merged
	return merged.ID, nil
}

// List serves the read-only query interface.
func (s *ContractorStore) List(_ context.Context, filter contractor.ListFilter) ([]contractor.CanonicalContractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contractor.CanonicalContractor
	for _, c := range s.byKey {
		if !matches(c, filter) {
			continue
		}
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusinessName < out[j].BusinessName })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len reports the number of stored contractors.
func (s *ContractorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

func matches(c contractor.CanonicalContractor, f contractor.ListFilter) bool {
	if f.City != "" && !strings.EqualFold(c.City, f.City) {
		return false
	}
	if f.State != "" && !strings.EqualFold(c.State, f.State) {
		return false
	}
	if f.Verified != nil && c.Verified != *f.Verified {
		return false
	}
	if f.Category != "" && !containsFold(c.Categories, f.Category) {
		return false
	}
	if f.Specialty != "" && !containsFold(c.Specialties, f.Specialty) {
		return false
	}
	return true
}

func containsFold(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}

// mergeRows applies the store-level non-destructive write: incoming empty
// scalars never erase stored values, sets union, provenance keeps the longer
// history, verified is sticky.
func mergeRows(stored, incoming contractor.CanonicalContractor) contractor.CanonicalContractor {
	out := clone(incoming)
	out.ID = stored.ID
	out.CreatedAt = stored.CreatedAt
	keepScalar(&out.BusinessName, stored.BusinessName)
	keepScalar(&out.NameKey, stored.NameKey)
	keepScalar(&out.Phone, stored.Phone)
	keepScalar(&out.Street, stored.Street)
	keepScalar(&out.City, stored.City)
	keepScalar(&out.State, stored.State)
	keepScalar(&out.Zip, stored.Zip)
	keepScalar(&out.RawAddress, stored.RawAddress)
	keepScalar(&out.Website, stored.Website)
	keepScalar(&out.LicenseNumber, stored.LicenseNumber)
	out.Specialties = unionSorted(stored.Specialties, incoming.Specialties)
	out.Certifications = unionSorted(stored.Certifications, incoming.Certifications)
	out.Categories = unionSorted(stored.Categories, incoming.Categories)
	out.Verified = stored.Verified || incoming.Verified
	if len(stored.Provenance) > len(incoming.Provenance) {
		out.Provenance = append([]contractor.ProvenanceEntry(nil), stored.Provenance...)
	}
	return out
}

func keepScalar(dst *string, stored string) {
	if *dst == "" {
		*dst = stored
	}
}

func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func clone(c contractor.CanonicalContractor) contractor.CanonicalContractor {
	cp := c
	cp.Specialties = append([]string(nil), c.Specialties...)
	cp.Certifications = append([]string(nil), c.Certifications...)
	cp.Categories = append([]string(nil), c.Categories...)
	cp.Provenance = append([]contractor.ProvenanceEntry(nil), c.Provenance...)
	return cp
}
