// Package audit records raw candidates before normalization so a run can be
// replayed or inspected after the fact.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// BlobStore is the blob backend a sink writes through.
type BlobStore interface {
	// PutObject writes data under path and returns the stored object's URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// NoopSink discards every candidate. Used when auditing is disabled.
type NoopSink struct{}

// Record does nothing and always returns nil.
func (NoopSink) Record(_ context.Context, _ string, _ contractor.CandidateRecord) error {
	return nil
}

// BlobSink persists one JSON object per candidate under
// runs/<run_id>/<source_id>/<seq>.json.
type BlobSink struct {
	store  BlobStore
	logger *zap.Logger

	mu  sync.Mutex
	seq map[string]int // run_id|source_id -> next sequence number
}

// NewBlobSink builds a sink over the given blob backend.
func NewBlobSink(store BlobStore, logger *zap.Logger) *BlobSink {
	return &BlobSink{
		store:  store,
		logger: logger,
		seq:    make(map[string]int),
	}
}

// Record writes rec to the backend. The sequence number keeps candidates from
// the same source and run from overwriting each other.
func (s *BlobSink) Record(ctx context.Context, runID string, rec contractor.CandidateRecord) error {
	s.mu.Lock()
	key := runID + "|" + rec.SourceID
	n := s.seq[key]
	s.seq[key] = n + 1
	s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	path := fmt.Sprintf("runs/%s/%s/%06d.json", runID, rec.SourceID, n)
	uri, err := s.store.PutObject(ctx, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("store candidate %s: %w", path, err)
	}
	s.logger.Debug("candidate recorded",
		zap.String("run_id", runID),
		zap.String("source", rec.SourceID),
		zap.String("uri", uri),
	)
	return nil
}
