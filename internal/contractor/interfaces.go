package contractor

import (
	"context"
	"time"
)

// Session is an exclusive loan of one headless browser. No two adapters may
// hold the same session concurrently.
type Session interface {
	// Navigate loads url, waits for waitSelector (or body when empty) up to
	// the session's navigation timeout, and returns the rendered DOM.
	Navigate(ctx context.Context, url, waitSelector string) (string, error)
	// SubmitLogin fills and submits a login form described by spec.
	SubmitLogin(ctx context.Context, spec LoginSpec, username, password string) error
	// Navigations returns how many page loads this session has served.
	Navigations() int
	// Healthy reports whether the underlying browser is still usable.
	Healthy() bool
}

// SessionPool manages the bounded set of browser sessions.
type SessionPool interface {
	// Acquire blocks until a session is free or ctx is done (ErrPoolTimeout).
	Acquire(ctx context.Context) (Session, error)
	// Release returns the session to the pool. Corrupted or worn-out sessions
	// are destroyed instead of being reissued.
	Release(s Session)
	// Close destroys all sessions.
	Close()
}

// Adapter turns one source descriptor plus a page session into candidates.
type Adapter interface {
	Descriptor() SourceDescriptor
	// Run navigates the source and extracts raw candidates. session is nil
	// for strategies whose Locator does not need a browser. throttle is
	// awaited before every navigation so the orchestrator, not the adapter,
	// owns rate limiting.
	Run(ctx context.Context, session Session, loc LocationFilter, throttle Throttle) ([]CandidateRecord, error)
}

// Throttle gates navigations under a per-source rate limit.
type Throttle interface {
	Wait(ctx context.Context, sourceID string) error
}

// ContractorStore is the canonical-entity persistence gateway.
type ContractorStore interface {
	// GetByIdentityKey returns nil when no record matches.
	GetByIdentityKey(ctx context.Context, key string) (*CanonicalContractor, error)
	// ListByCityState returns candidates for fuzzy secondary matching.
	ListByCityState(ctx context.Context, city, state string) ([]CanonicalContractor, error)
	// Upsert idempotently writes c keyed by IdentityKey and returns the
	// stored id. Two upserts of the same key must not duplicate rows or drop
	// previously stored fields.
	Upsert(ctx context.Context, c *CanonicalContractor) (string, error)
	// List serves the read-only query interface.
	List(ctx context.Context, filter ListFilter) ([]CanonicalContractor, error)
}

// RunStore records batch runs for the status API.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// CandidateSink receives raw candidates for audit before normalization.
type CandidateSink interface {
	Record(ctx context.Context, runID string, rec CandidateRecord) error
}

// EventPublisher pushes batch-completion events to Pub/Sub (or similar).
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces contractor and run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
