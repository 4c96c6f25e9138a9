// Package store decorates contractor stores with the gateway retry policy.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// RetryBackoff spaces the single storage retry.
const RetryBackoff = 250 * time.Millisecond

// Retrying wraps a ContractorStore so a StorageUnavailable upsert is retried
// once with backoff before the failure is surfaced. Persistent failure drops
// the record upstream; it never crashes the batch.
type Retrying struct {
	contractor.ContractorStore
	backoff time.Duration
	logger  *zap.Logger
}

// WithRetry decorates inner with the retry policy.
func WithRetry(inner contractor.ContractorStore, logger *zap.Logger) *Retrying {
	return &Retrying{
		ContractorStore: inner,
		backoff:         RetryBackoff,
		logger:          logger,
	}
}

// Upsert retries exactly once on StorageUnavailable.
func (r *Retrying) Upsert(ctx context.Context, c *contractor.CanonicalContractor) (string, error) {
	id, err := r.ContractorStore.Upsert(ctx, c)
	if err == nil || !errors.Is(err, contractor.ErrStorageUnavailable) {
		return id, err
	}
	r.logger.Warn("storage upsert failed, retrying once",
		zap.String("identity_key", c.IdentityKey),
		zap.Error(err),
	)
	t := time.NewTimer(r.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", contractor.ErrAborted, ctx.Err())
	case <-t.C:
	}
	return r.ContractorStore.Upsert(ctx, c)
}
