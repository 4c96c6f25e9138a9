package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/metrics"
)

// Pool is a strict capacity-bounded set of browser sessions. Sessions are
// spawned lazily, loaned exclusively, recycled after MaxNavigations page
// loads, and destroyed instead of reissued when their renderer has crashed.
type Pool struct {
	factory Factory
	cfg     Config
	logger  *zap.Logger

	// slots holds either an idle live session or nil (a spawn permit). Its
	// capacity is the pool size, so it doubles as the semaphore.
	slots chan Session

	mu     sync.Mutex
	closed bool
}

// NewPool builds a pool of cfg.Size sessions backed by factory.
func NewPool(factory Factory, cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("browser pool size must be > 0")
	}
	p := &Pool{
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		slots:   make(chan Session, cfg.Size),
	}
	for i := 0; i < cfg.Size; i++ {
		p.slots <- nil
	}
	return p, nil
}

// Acquire blocks until a slot frees up or ctx ends (ErrPoolTimeout). A nil or
// worn-out slot is replaced by a freshly spawned session.
func (p *Pool) Acquire(ctx context.Context) (contractor.Session, error) {
	select {
	case s := <-p.slots:
		if s != nil && p.reusable(s) {
			return s, nil
		}
		if s != nil {
			p.destroy(s)
		}
		fresh, err := p.factory.New(ctx)
		if err != nil {
			// Return the permit so the capacity is not leaked.
			p.slots <- nil
			return nil, fmt.Errorf("spawn browser session: %w", err)
		}
		metrics.IncBrowserSessions()
		return fresh, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", contractor.ErrPoolTimeout, ctx.Err())
	}
}

// Release returns a loaned session. Corrupted or navigation-worn sessions are
// destroyed; their slot becomes a spawn permit for the next Acquire.
func (p *Pool) Release(s contractor.Session) {
	owned, ok := s.(Session)
	if !ok || owned == nil {
		p.slots <- nil
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || !p.reusable(owned) {
		if !p.reusable(owned) {
			p.logger.Debug("recycling browser session",
				zap.Int("navigations", owned.Navigations()),
				zap.Bool("healthy", owned.Healthy()),
			)
		}
		p.destroy(owned)
		if !closed {
			p.slots <- nil
		}
		return
	}
	p.slots <- owned
}

func (p *Pool) reusable(s Session) bool {
	return s.Healthy() && s.Navigations() < p.cfg.MaxNavigations
}

func (p *Pool) destroy(s Session) {
	s.Close()
	metrics.DecBrowserSessions()
}

// Close destroys every idle session. Loaned sessions are destroyed as they
// are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	for {
		select {
		case s := <-p.slots:
			if s != nil {
				p.destroy(s)
			}
		default:
			return
		}
	}
}
