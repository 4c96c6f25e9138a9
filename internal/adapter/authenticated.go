package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// Credentials holds the login pair for one authenticated source.
type Credentials struct {
	Username string
	Password string
}

// authenticatedAdapter performs a login step before running the selector
// strategy. A login failure is a source-level failure: no retry, no pages.
type authenticatedAdapter struct {
	inner *pageAdapter
	creds Credentials
}

// NewAuthenticatedAdapter builds the authenticated-session strategy.
func NewAuthenticatedAdapter(
	desc contractor.SourceDescriptor,
	creds Credentials,
	clock contractor.Clock,
	logger *zap.Logger,
) contractor.Adapter {
	return &authenticatedAdapter{
		inner: &pageAdapter{
			desc:    desc,
			extract: extractBySelectors,
			clock:   clock,
			logger:  logger,
		},
		creds: creds,
	}
}

func (a *authenticatedAdapter) Descriptor() contractor.SourceDescriptor {
	return a.inner.desc
}

func (a *authenticatedAdapter) Run(
	ctx context.Context,
	session contractor.Session,
	loc contractor.LocationFilter,
	throttle contractor.Throttle,
) ([]contractor.CandidateRecord, error) {
	if session == nil {
		return nil, fmt.Errorf("source %s: browser session required", a.inner.desc.ID)
	}
	if a.creds.Username == "" || a.creds.Password == "" {
		return nil, fmt.Errorf("%w: no credentials configured for %s", contractor.ErrAuthFailure, a.inner.desc.ID)
	}
	if err := throttle.Wait(ctx, a.inner.desc.ID); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}
	if err := session.SubmitLogin(ctx, a.inner.desc.Login, a.creds.Username, a.creds.Password); err != nil {
		return nil, fmt.Errorf("login %s: %w", a.inner.desc.ID, err)
	}
	a.inner.logger.Debug("login succeeded", zap.String("source", a.inner.desc.ID))
	return a.inner.Run(ctx, session, loc, throttle)
}
