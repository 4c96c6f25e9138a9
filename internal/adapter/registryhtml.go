package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// FetchConfig controls the static-HTML fetch path.
type FetchConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// registryHTMLAdapter serves public license registries and other sources
// whose listing pages are server-rendered. It fetches with Colly instead of
// borrowing a browser session, so it never touches the pool.
type registryHTMLAdapter struct {
	desc   contractor.SourceDescriptor
	cfg    FetchConfig
	clock  contractor.Clock
	logger *zap.Logger
	base   *colly.Collector
}

// NewRegistryHTMLAdapter builds the static registry strategy.
func NewRegistryHTMLAdapter(
	desc contractor.SourceDescriptor,
	cfg FetchConfig,
	clock contractor.Clock,
	logger *zap.Logger,
) contractor.Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &registryHTMLAdapter{
		desc:   desc,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		base:   c,
	}
}

func (a *registryHTMLAdapter) Descriptor() contractor.SourceDescriptor {
	return a.desc
}

// Run fetches each registry page over plain HTTP and extracts with the same
// selector rules the browser strategies use. The session argument is ignored.
func (a *registryHTMLAdapter) Run(
	ctx context.Context,
	_ contractor.Session,
	loc contractor.LocationFilter,
	throttle contractor.Throttle,
) ([]contractor.CandidateRecord, error) {
	var out []contractor.CandidateRecord
	for _, pageURL := range PageURLs(a.desc, loc) {
		html, err := a.fetch(ctx, pageURL, throttle)
		if err != nil {
			return out, err
		}
		if Blocked(html) {
			return out, fmt.Errorf("%w: challenge page at %s", contractor.ErrBlockedBySource, pageURL)
		}
		records, err := extractBySelectors(html, a.desc, a.clock.Now())
		if err != nil {
			return out, fmt.Errorf("extract %s: %w", pageURL, err)
		}
		out = append(out, records...)
	}
	return out, nil
}

func (a *registryHTMLAdapter) fetch(ctx context.Context, pageURL string, throttle contractor.Throttle) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= navRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, navBackoffBase*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
		if err := throttle.Wait(ctx, a.desc.ID); err != nil {
			return "", fmt.Errorf("throttle wait: %w", err)
		}
		html, err := a.visit(ctx, pageURL)
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

func (a *registryHTMLAdapter) visit(ctx context.Context, pageURL string) (string, error) {
	collector := a.base.Clone()
	if a.cfg.UserAgent != "" {
		collector.UserAgent = a.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = false
	collector.SetRequestTimeout(a.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("registry fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return "", fmt.Errorf("%w: %s", contractor.ErrNavigationTimeout, pageURL)
			}
			return "", fmt.Errorf("registry fetch %s: %w", pageURL, err)
		}
		return string(body), nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
