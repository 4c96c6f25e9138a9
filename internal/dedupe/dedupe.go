// Package dedupe computes identity keys and merges candidates into canonical
// contractor entities.
package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// DefaultNameSimilarity is the fuzzy secondary-match cutoff, tunable via
// config.
const DefaultNameSimilarity = 0.82

// Config controls merger behavior.
type Config struct {
	// NameSimilarity is the minimum trigram similarity for a fuzzy match.
	NameSimilarity float64
}

// Merger resolves normalized candidates against the canonical store. One
// Merger is scoped to a single batch run so per-run state (provenance
// contributions already applied) cannot leak across batches.
type Merger struct {
	store  contractor.ContractorStore
	clock  contractor.Clock
	idGen  contractor.IDGenerator
	cfg    Config
	logger *zap.Logger

	// keyMu serializes lookup+create per identity key so two sources
	// discovering the same new business in parallel cannot double-create.
	mu     sync.Mutex
	keyMu  map[string]*sync.Mutex
	seen   map[string]struct{} // identityKey|sourceID pairs merged this run
	seenMu sync.Mutex
}

// NewMerger builds a run-scoped Merger.
func NewMerger(
	store contractor.ContractorStore,
	clock contractor.Clock,
	idGen contractor.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Merger {
	if cfg.NameSimilarity <= 0 || cfg.NameSimilarity > 1 {
		cfg.NameSimilarity = DefaultNameSimilarity
	}
	return &Merger{
		store:  store,
		clock:  clock,
		idGen:  idGen,
		cfg:    cfg,
		logger: logger,
		keyMu:  make(map[string]*sync.Mutex),
		seen:   make(map[string]struct{}),
	}
}

// IdentityKey derives the deterministic key deciding whether two candidates
// are the same business: the normalized phone when present, else a fuzzy key
// over name+city+state.
func IdentityKey(nf contractor.NormalizedFields) string {
	if nf.Phone != "" {
		return "phone:" + nf.Phone
	}
	return fmt.Sprintf("name:%s|%s|%s",
		nf.NameKey,
		strings.ToLower(nf.City),
		strings.ToLower(nf.State),
	)
}

// MergeOrCreate resolves nf to an existing canonical record and merges, or
// creates a new one. merged reports which path was taken. Safe for concurrent
// use across goroutines of the same run.
func (m *Merger) MergeOrCreate(ctx context.Context, nf contractor.NormalizedFields) (*contractor.CanonicalContractor, bool, error) {
	key := IdentityKey(nf)

	unlock := m.lockKey(key)
	defer unlock()

	existing, err := m.store.GetByIdentityKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("identity lookup: %w", err)
	}
	if existing == nil {
		existing, err = m.fuzzyMatch(ctx, nf)
		if err != nil {
			return nil, false, err
		}
		if existing != nil && existing.IdentityKey != key {
			// Candidates with distinct keys can fuzzy-match the same record;
			// their read-modify-write merges serialize on the record's own
			// key, not the candidate's. Acyclic: a goroutine waits here only
			// when no record with its held key exists, and none can appear
			// while it holds that key's lock.
			unlockMatched := m.lockKey(existing.IdentityKey)
			defer unlockMatched()
			fresh, err := m.store.GetByIdentityKey(ctx, existing.IdentityKey)
			if err != nil {
				return nil, false, fmt.Errorf("identity lookup: %w", err)
			}
			if fresh != nil {
				existing = fresh
			}
		}
	}

	now := m.clock.Now()
	if existing != nil {
		m.applyMerge(existing, nf, now)
		if _, err := m.store.Upsert(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("merge upsert: %w", err)
		}
		m.logger.Debug("candidate merged",
			zap.String("identity_key", existing.IdentityKey),
			zap.String("source", nf.SourceID),
		)
		return existing, true, nil
	}

	created, err := m.create(ctx, nf, key, now)
	if err != nil {
		return nil, false, err
	}
	return created, false, nil
}

func (m *Merger) lockKey(key string) func() {
	m.mu.Lock()
	lock, ok := m.keyMu[key]
	if !ok {
		lock = &sync.Mutex{}
		m.keyMu[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// fuzzyMatch scans same-city+state records for a name similar above the
// configured threshold. Candidates lacking city or state never fuzzy-match.
func (m *Merger) fuzzyMatch(ctx context.Context, nf contractor.NormalizedFields) (*contractor.CanonicalContractor, error) {
	if nf.NameKey == "" || nf.City == "" || nf.State == "" {
		return nil, nil
	}
	neighbors, err := m.store.ListByCityState(ctx, nf.City, nf.State)
	if err != nil {
		return nil, fmt.Errorf("fuzzy candidate lookup: %w", err)
	}
	var best *contractor.CanonicalContractor
	bestScore := m.cfg.NameSimilarity
	for i := range neighbors {
		score := NameSimilarity(nf.NameKey, neighbors[i].NameKey)
		if score >= bestScore {
			best = &neighbors[i]
			bestScore = score
		}
	}
	if best != nil {
		m.logger.Debug("fuzzy match",
			zap.String("name_key", nf.NameKey),
			zap.String("matched", best.NameKey),
			zap.Float64("score", bestScore),
		)
	}
	return best, nil
}

// applyMerge folds nf into c: union for sets, fill-never-overwrite for
// scalars, append-only provenance, sticky verified.
func (m *Merger) applyMerge(c *contractor.CanonicalContractor, nf contractor.NormalizedFields, now time.Time) {
	fillString(&c.BusinessName, nf.BusinessName)
	if c.NameKey == "" {
		c.NameKey = nf.NameKey
	}
	fillString(&c.Phone, nf.Phone)
	fillString(&c.Street, nf.Street)
	fillString(&c.City, nf.City)
	fillString(&c.State, nf.State)
	fillString(&c.Zip, nf.Zip)
	fillString(&c.RawAddress, nf.RawAddress)
	fillString(&c.Website, nf.Website)
	fillString(&c.LicenseNumber, nf.LicenseNumber)

	c.Specialties = unionTags(c.Specialties, nf.Specialties)
	c.Certifications = unionTags(c.Certifications, nf.Certifications)
	c.Categories = unionTags(c.Categories, categoryTag(nf.SourceCategory))

	if nf.SourceCategory == contractor.CategoryPublicRegistry {
		c.Verified = true
	}
	if m.markContribution(c.IdentityKey, nf.SourceID) {
		c.Provenance = append(c.Provenance, contractor.ProvenanceEntry{
			SourceID:  nf.SourceID,
			FetchedAt: nf.FetchedAt,
		})
	}
	c.UpdatedAt = now
}

func (m *Merger) create(ctx context.Context, nf contractor.NormalizedFields, key string, now time.Time) (*contractor.CanonicalContractor, error) {
	id, err := m.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate contractor id: %w", err)
	}
	c := &contractor.CanonicalContractor{
		ID:             id,
		IdentityKey:    key,
		BusinessName:   nf.BusinessName,
		NameKey:        nf.NameKey,
		Phone:          nf.Phone,
		Street:         nf.Street,
		City:           nf.City,
		State:          nf.State,
		Zip:            nf.Zip,
		RawAddress:     nf.RawAddress,
		Website:        nf.Website,
		Specialties:    unionTags(nil, nf.Specialties),
		Certifications: unionTags(nil, nf.Certifications),
		Categories:     categoryTag(nf.SourceCategory),
		LicenseNumber:  nf.LicenseNumber,
		Verified:       nf.SourceCategory == contractor.CategoryPublicRegistry,
		Provenance: []contractor.ProvenanceEntry{{
			SourceID:  nf.SourceID,
			FetchedAt: nf.FetchedAt,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.markContribution(key, nf.SourceID)
	if _, err := m.store.Upsert(ctx, c); err != nil {
		return nil, fmt.Errorf("create upsert: %w", err)
	}
	m.logger.Debug("contractor created",
		zap.String("identity_key", key),
		zap.String("source", nf.SourceID),
	)
	return c, nil
}

// markContribution records that sourceID touched key during this run and
// reports whether this was its first contribution. A source appends at most
// one provenance entry per run no matter how many of its pages repeat the
// same business.
func (m *Merger) markContribution(key, sourceID string) bool {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	pair := key + "|" + sourceID
	if _, dup := m.seen[pair]; dup {
		return false
	}
	m.seen[pair] = struct{}{}
	return true
}

func categoryTag(cat contractor.Category) []string {
	if cat == "" {
		return nil
	}
	return []string{string(cat)}
}

func fillString(dst *string, val string) {
	if *dst == "" && val != "" {
		*dst = val
	}
}

// unionTags merges two tag sets into a sorted, deduplicated slice. Existing
// tags are never removed.
func unionTags(existing, added []string) []string {
	if len(existing) == 0 && len(added) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(existing)+len(added))
	for _, t := range existing {
		set[t] = struct{}{}
	}
	for _, t := range added {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
