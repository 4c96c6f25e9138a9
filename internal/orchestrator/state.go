package orchestrator

import (
	"sync"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/normalize"
)

// batchState accumulates counters, source errors, and sample records across
// concurrent source workers.
type batchState struct {
	runID      string
	sampleSize int

	mu       sync.Mutex
	stats    contractor.RunStats
	errors   []contractor.SourceError
	sampled  []contractor.CanonicalContractor
	sampleID map[string]struct{}
}

func newBatchState(runID string, sampleSize int) *batchState {
	return &batchState{
		runID:      runID,
		sampleSize: sampleSize,
		sampleID:   make(map[string]struct{}),
	}
}

func (s *batchState) sourceAttempted() {
	s.mu.Lock()
	s.stats.SourcesAttempted++
	s.mu.Unlock()
}

func (s *batchState) sourceFailed(sourceID string, err error) {
	s.mu.Lock()
	s.stats.SourcesFailed++
	s.errors = append(s.errors, contractor.NewSourceError(sourceID, err))
	s.mu.Unlock()
}

func (s *batchState) sourceAborted(sourceID string, err error) {
	s.mu.Lock()
	s.stats.SourcesAborted++
	s.errors = append(s.errors, contractor.NewSourceError(sourceID, err))
	s.mu.Unlock()
}

func (s *batchState) candidateSeen() {
	s.mu.Lock()
	s.stats.CandidatesSeen++
	s.mu.Unlock()
}

func (s *batchState) recordCreated() {
	s.mu.Lock()
	s.stats.RecordsCreated++
	s.mu.Unlock()
}

func (s *batchState) recordMerged() {
	s.mu.Lock()
	s.stats.RecordsMerged++
	s.mu.Unlock()
}

func (s *batchState) recordSkipped() {
	s.mu.Lock()
	s.stats.RecordsSkipped++
	s.mu.Unlock()
}

// addSample retains up to sampleSize distinct canonical records for the
// trigger response.
func (s *batchState) addSample(c contractor.CanonicalContractor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sampled) >= s.sampleSize {
		return
	}
	if _, dup := s.sampleID[c.ID]; dup {
		return
	}
	s.sampleID[c.ID] = struct{}{}
	s.sampled = append(s.sampled, c)
}

func (s *batchState) samples() []contractor.CanonicalContractor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contractor.CanonicalContractor, len(s.sampled))
	copy(out, s.sampled)
	return out
}

func (s *batchState) snapshot() (contractor.RunStats, []contractor.SourceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]contractor.SourceError, len(s.errors))
	copy(errs, s.errors)
	return s.stats, errs
}

func normalizeCandidate(rec contractor.CandidateRecord, category contractor.Category) (contractor.NormalizedFields, error) {
	return normalize.Normalize(rec, category)
}
