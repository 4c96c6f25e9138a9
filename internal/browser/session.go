// Package browser manages the bounded pool of headless Chrome sessions.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// Config controls session behavior and pool capacity.
type Config struct {
	// Size is the fixed number of browser processes; each is expensive.
	Size int
	// NavTimeout bounds a single navigation plus its content-signal wait.
	NavTimeout time.Duration
	// MaxNavigations recycles a session after this many page loads to bound
	// renderer memory growth.
	MaxNavigations int
	UserAgent      string
}

// Session is one headless Chrome process owned exclusively by its borrower.
type Session interface {
	contractor.Session
	Close()
}

// Factory spawns sessions; swapped for a fake in pool tests.
type Factory interface {
	New(ctx context.Context) (Session, error)
}

// ChromeFactory spawns real chromedp-backed sessions.
type ChromeFactory struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromeFactory builds a factory for real browser sessions.
func NewChromeFactory(cfg Config, logger *zap.Logger) *ChromeFactory {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}
	if cfg.MaxNavigations <= 0 {
		cfg.MaxNavigations = 50
	}
	return &ChromeFactory{cfg: cfg, logger: logger}
}

// New starts a browser process and warms it up. The session outlives the
// acquiring call, so it is rooted in context.Background rather than the
// caller's context.
func (f *ChromeFactory) New(_ context.Context) (Session, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(f.cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &chromeSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		navTimeout:    f.cfg.NavTimeout,
		healthy:       1,
		logger:        f.logger,
	}, nil
}

type chromeSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	navTimeout    time.Duration
	navCount      atomic.Int64
	healthy       int32
	logger        *zap.Logger
}

// Navigate loads url in a fresh tab and returns the rendered DOM once the
// wait selector (body when empty) is ready.
func (s *chromeSession) Navigate(ctx context.Context, url, waitSelector string) (string, error) {
	s.navCount.Add(1)
	if waitSelector == "" {
		waitSelector = "body"
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.navTimeout)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", contractor.ErrNavigationTimeout, url)
		}
		// Any other chromedp failure may mean a crashed renderer; quarantine.
		atomic.StoreInt32(&s.healthy, 0)
		return "", fmt.Errorf("chromedp navigate %s: %w", url, err)
	}
	return html, nil
}

// SubmitLogin drives the login form described by spec in a fresh tab.
func (s *chromeSession) SubmitLogin(ctx context.Context, spec contractor.LoginSpec, username, password string) error {
	s.navCount.Add(1)

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.navTimeout)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	err := chromedp.Run(taskCtx,
		chromedp.Navigate(spec.URL),
		chromedp.WaitVisible(spec.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(spec.UsernameSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(spec.PasswordSelector, password, chromedp.ByQuery),
		chromedp.Click(spec.SubmitSelector, chromedp.ByQuery),
		chromedp.WaitVisible(spec.SuccessSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", contractor.ErrAuthFailure, err)
	}
	return nil
}

func (s *chromeSession) Navigations() int {
	return int(s.navCount.Load())
}

func (s *chromeSession) Healthy() bool {
	return atomic.LoadInt32(&s.healthy) == 1
}

// Close tears down the browser process.
func (s *chromeSession) Close() {
	s.browserCancel()
	s.allocCancel()
}

// forwardCancel propagates cancellation from the borrower's context into a
// chromedp task context.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
