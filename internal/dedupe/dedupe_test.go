package dedupe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/store/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDGen struct {
	n atomic.Int64
}

func (g *seqIDGen) NewID() (string, error) {
	return fmt.Sprintf("id-%04d", g.n.Add(1)), nil
}

func newTestMerger(t *testing.T, store contractor.ContractorStore, cfg Config) *Merger {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewMerger(store, clock, &seqIDGen{}, cfg, zap.NewNop())
}

func fields(name, nameKey, phone, city, state, sourceID string) contractor.NormalizedFields {
	return contractor.NormalizedFields{
		BusinessName: name,
		NameKey:      nameKey,
		Phone:        phone,
		City:         city,
		State:        state,
		SourceID:     sourceID,
		FetchedAt:    time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
	}
}

func TestIdentityKeyPhonePreferred(t *testing.T) {
	t.Parallel()

	nf := fields("Acme Granite", "acme granite", "6025550147", "Phoenix", "AZ", "src-a")
	require.Equal(t, "phone:6025550147", IdentityKey(nf))

	nf.Phone = ""
	require.Equal(t, "name:acme granite|phoenix|az", IdentityKey(nf))
}

func TestMergeOrCreateCreatesThenMergesByPhone(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	m := newTestMerger(t, store, Config{})
	ctx := context.Background()

	first := fields("Acme Granite LLC", "acme granite", "6025550147", "Phoenix", "AZ", "src-a")
	first.Specialties = []string{"granite"}
	c1, merged, err := m.MergeOrCreate(ctx, first)
	require.NoError(t, err)
	require.False(t, merged)
	require.Equal(t, "phone:6025550147", c1.IdentityKey)
	require.Len(t, c1.Provenance, 1)

	// Same phone from a different source, different formatting of the name.
	second := fields("ACME Granite", "acme granite", "6025550147", "", "", "src-b")
	second.Specialties = []string{"quartz"}
	second.Website = "https://acmegranite.com"
	c2, merged, err := m.MergeOrCreate(ctx, second)
	require.NoError(t, err)
	require.True(t, merged)
	require.Equal(t, c1.ID, c2.ID)

	// Scalars are first-writer-wins, sets union, provenance grows.
	require.Equal(t, "Acme Granite LLC", c2.BusinessName)
	require.Equal(t, "Phoenix", c2.City)
	require.Equal(t, "https://acmegranite.com", c2.Website)
	require.Equal(t, []string{"granite", "quartz"}, c2.Specialties)
	require.Len(t, c2.Provenance, 2)
	require.Equal(t, 1, store.Len())
}

func TestMergeOrCreateFuzzyNameMatch(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	m := newTestMerger(t, store, Config{})
	ctx := context.Background()

	// No phone on either candidate, so identity falls to name+city+state.
	first := fields("Desert Stone Works", "desert stone works", "", "Scottsdale", "AZ", "src-a")
	_, merged, err := m.MergeOrCreate(ctx, first)
	require.NoError(t, err)
	require.False(t, merged)

	// Slightly different name key in the same city fuzzy-matches.
	second := fields("Desert Stoneworks", "desert stoneworks", "", "Scottsdale", "AZ", "src-b")
	c2, merged, err := m.MergeOrCreate(ctx, second)
	require.NoError(t, err)
	require.True(t, merged)
	require.Equal(t, "Desert Stone Works", c2.BusinessName)
	require.Equal(t, 1, store.Len())

	// Same name in a different city is a different business.
	third := fields("Desert Stoneworks", "desert stoneworks", "", "Tucson", "AZ", "src-b")
	_, merged, err = m.MergeOrCreate(ctx, third)
	require.NoError(t, err)
	require.False(t, merged)
	require.Equal(t, 2, store.Len())
}

func TestMergeNeverOverwritesScalars(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	m := newTestMerger(t, store, Config{})
	ctx := context.Background()

	first := fields("Acme Granite", "acme granite", "6025550147", "Phoenix", "AZ", "src-a")
	first.Website = "https://acmegranite.com"
	_, _, err := m.MergeOrCreate(ctx, first)
	require.NoError(t, err)

	second := fields("Acme Granite Countertops", "acme granite countertops", "6025550147", "Mesa", "AZ", "src-b")
	second.Website = "https://acme-countertops.example"
	c, merged, err := m.MergeOrCreate(ctx, second)
	require.NoError(t, err)
	require.True(t, merged)
	require.Equal(t, "Acme Granite", c.BusinessName)
	require.Equal(t, "Phoenix", c.City)
	require.Equal(t, "https://acmegranite.com", c.Website)
}

func TestVerifiedStickyFromPublicRegistry(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	m := newTestMerger(t, store, Config{})
	ctx := context.Background()

	first := fields("Acme Granite", "acme granite", "6025550147", "Phoenix", "AZ", "directory-src")
	first.SourceCategory = contractor.CategoryDirectory
	c1, _, err := m.MergeOrCreate(ctx, first)
	require.NoError(t, err)
	require.False(t, c1.Verified)

	second := fields("Acme Granite", "acme granite", "6025550147", "Phoenix", "AZ", "registry-src")
	second.SourceCategory = contractor.CategoryPublicRegistry
	c2, _, err := m.MergeOrCreate(ctx, second)
	require.NoError(t, err)
	require.True(t, c2.Verified)

	// A later unverified source does not clear the flag.
	third := fields("Acme Granite", "acme granite", "6025550147", "Phoenix", "AZ", "directory-src-2")
	third.SourceCategory = contractor.CategoryLocal
	c3, _, err := m.MergeOrCreate(ctx, third)
	require.NoError(t, err)
	require.True(t, c3.Verified)
}

func TestOneProvenanceEntryPerSourcePerRun(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	m := newTestMerger(t, store, Config{})
	ctx := context.Background()

	nf := fields("Acme Granite", "acme granite", "6025550147", "Phoenix", "AZ", "src-a")
	_, _, err := m.MergeOrCreate(ctx, nf)
	require.NoError(t, err)

	// The same source re-discovering the business on a later page of the same
	// run does not append again.
	c, merged, err := m.MergeOrCreate(ctx, nf)
	require.NoError(t, err)
	require.True(t, merged)
	require.Len(t, c.Provenance, 1)

	// A fresh run-scoped merger appends a new entry.
	m2 := newTestMerger(t, store, Config{})
	c2, merged, err := m2.MergeOrCreate(ctx, nf)
	require.NoError(t, err)
	require.True(t, merged)
	require.Len(t, c2.Provenance, 2)
}

func TestConcurrentNewKeySingleCreate(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	m := newTestMerger(t, store, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var createdCount atomic.Int64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nf := fields("Acme Granite", "acme granite", "6025550147", "Phoenix", "AZ", fmt.Sprintf("src-%d", i))
			_, merged, err := m.MergeOrCreate(ctx, nf)
			if err != nil {
				t.Error(err)
				return
			}
			if !merged {
				createdCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), createdCount.Load())
	require.Equal(t, 1, store.Len())
}

func TestConcurrentFuzzyMergesKeepAllProvenance(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	m := newTestMerger(t, store, Config{})
	ctx := context.Background()

	seed := fields("Desert Stone Works", "desert stone works", "", "Scottsdale", "AZ", "src-seed")
	c0, merged, err := m.MergeOrCreate(ctx, seed)
	require.NoError(t, err)
	require.False(t, merged)

	// Phoneless variants carry distinct identity keys yet all fuzzy-match the
	// seeded record, so their merges must serialize on the record rather than
	// on their own keys or provenance entries get lost.
	variants := []string{
		"desert stoneworks",
		"desert stone work",
		"dessert stone works",
		"desert stone workss",
	}
	var wg sync.WaitGroup
	for i, nameKey := range variants {
		wg.Add(1)
		go func(i int, nameKey string) {
			defer wg.Done()
			nf := fields("Desert Stone Works", nameKey, "", "Scottsdale", "AZ", fmt.Sprintf("src-%d", i))
			_, merged, err := m.MergeOrCreate(ctx, nf)
			if err != nil {
				t.Error(err)
				return
			}
			if !merged {
				t.Errorf("variant %q created a second record", nameKey)
			}
		}(i, nameKey)
	}
	wg.Wait()

	got, err := store.GetByIdentityKey(ctx, c0.IdentityKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Provenance, len(variants)+1)
	require.Equal(t, 1, store.Len())
}

func TestLowSimilarityThresholdWidensMatching(t *testing.T) {
	t.Parallel()

	store := memory.NewContractorStore()
	strict := newTestMerger(t, store, Config{NameSimilarity: 0.95})
	ctx := context.Background()

	first := fields("Desert Stone Works", "desert stone works", "", "Scottsdale", "AZ", "src-a")
	_, _, err := strict.MergeOrCreate(ctx, first)
	require.NoError(t, err)

	// Under a strict threshold the variant creates a second record.
	second := fields("Desert Stoneworks", "desert stoneworks", "", "Scottsdale", "AZ", "src-b")
	_, merged, err := strict.MergeOrCreate(ctx, second)
	require.NoError(t, err)
	require.False(t, merged)
	require.Equal(t, 2, store.Len())
}
