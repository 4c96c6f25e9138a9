// Package adapter implements the per-source extraction strategies.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

const (
	// navRetries is how many times a NavigationTimeout is retried before the
	// source is declared failed.
	navRetries = 2
	// navBackoffBase spaces retry attempts.
	navBackoffBase = 500 * time.Millisecond
)

// extractFunc turns one rendered page into zero or more raw candidates.
type extractFunc func(html string, desc contractor.SourceDescriptor, fetchedAt time.Time) ([]contractor.CandidateRecord, error)

// pageAdapter drives the shared navigate-wait-extract loop over a browser
// session; the locator strategies differ only in their extract functions.
type pageAdapter struct {
	desc    contractor.SourceDescriptor
	extract extractFunc
	clock   contractor.Clock
	logger  *zap.Logger
}

func (a *pageAdapter) Descriptor() contractor.SourceDescriptor {
	return a.desc
}

// Run walks the source's result pages, extracting candidates from each. A
// block signal short-circuits remaining pages; candidates gathered before the
// block are still returned alongside the error.
func (a *pageAdapter) Run(
	ctx context.Context,
	session contractor.Session,
	loc contractor.LocationFilter,
	throttle contractor.Throttle,
) ([]contractor.CandidateRecord, error) {
	if session == nil {
		return nil, fmt.Errorf("source %s: browser session required", a.desc.ID)
	}
	var out []contractor.CandidateRecord
	for _, pageURL := range PageURLs(a.desc, loc) {
		html, err := a.fetchPage(ctx, session, pageURL, throttle)
		if err != nil {
			return out, err
		}
		if Blocked(html) {
			return out, fmt.Errorf("%w: challenge page at %s", contractor.ErrBlockedBySource, pageURL)
		}
		records, err := a.extract(html, a.desc, a.clock.Now())
		if err != nil {
			return out, fmt.Errorf("extract %s: %w", pageURL, err)
		}
		if len(records) == 0 {
			// ExtractionEmpty is a valid outcome, not an error.
			a.logger.Debug("no candidates on page",
				zap.String("source", a.desc.ID),
				zap.String("url", pageURL),
			)
		}
		out = append(out, records...)
	}
	return out, nil
}

// fetchPage navigates with NavigationTimeout retries under the orchestrator's
// throttle. Adapters never self-throttle beyond waiting on the shared bucket.
func (a *pageAdapter) fetchPage(
	ctx context.Context,
	session contractor.Session,
	pageURL string,
	throttle contractor.Throttle,
) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= navRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, navBackoffBase*time.Duration(attempt)); err != nil {
				return "", err
			}
			a.logger.Debug("navigation retry",
				zap.String("source", a.desc.ID),
				zap.String("url", pageURL),
				zap.Int("attempt", attempt),
			)
		}
		if err := throttle.Wait(ctx, a.desc.ID); err != nil {
			return "", fmt.Errorf("throttle wait: %w", err)
		}
		html, err := session.Navigate(ctx, pageURL, a.desc.Selectors.Ready)
		if err == nil {
			return html, nil
		}
		lastErr = err
		if !errors.Is(err, contractor.ErrNavigationTimeout) {
			return "", err
		}
	}
	return "", lastErr
}

// PageURLs expands the descriptor's URL template against the location filter.
// Templates without a {page} token yield a single page.
func PageURLs(desc contractor.SourceDescriptor, loc contractor.LocationFilter) []string {
	base := strings.NewReplacer(
		"{city}", url.QueryEscape(loc.City),
		"{state}", url.QueryEscape(loc.State),
		"{location}", url.QueryEscape(loc.Raw),
	).Replace(desc.URLTemplate)

	if !strings.Contains(base, "{page}") {
		return []string{base}
	}
	pages := make([]string, 0, desc.MaxPages)
	for p := 1; p <= desc.MaxPages; p++ {
		pages = append(pages, strings.ReplaceAll(base, "{page}", strconv.Itoa(p)))
	}
	return pages
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff wait: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
