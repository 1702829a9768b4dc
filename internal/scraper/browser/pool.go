// Package browser owns the shared headless browser process and the
// session budget that caps concurrent fare fetches against it.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config holds configuration for the session pool.
type Config struct {
	MaxSessions int           // Maximum concurrent fetch sessions (default: 5)
	Headless    bool          // Run the browser headless (default: true)
	Proxy       string        // Optional outbound proxy, passed through unmodified
	PageTimeout time.Duration // Default timeout applied to new tabs
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxSessions: 5,
		Headless:    true,
		PageTimeout: 2 * time.Minute, // proxied/slow networks are expected
	}
}

// Pool couples one shared browser process with a fixed budget of session
// permits. Tabs are opened per fetch and exclusively owned by that fetch;
// the permit semaphore is the only shared mutable state.
type Pool struct {
	browser *rod.Browser
	permits *permits
	cfg     Config
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
}

// NewPool launches the browser and prepares the permit budget. A launch
// failure here is fatal to the caller's pass; there is nothing to fetch
// with.
func NewPool(cfg Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 5
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 2 * time.Minute
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu")

	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
		logger.Info("Routing browser traffic through proxy", slog.String("proxy", cfg.Proxy))
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	logger.Info("Session pool initialized",
		slog.Int("max_sessions", cfg.MaxSessions),
		slog.Bool("headless", cfg.Headless),
	)

	return &Pool{
		browser: browser,
		permits: newPermits(cfg.MaxSessions),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Acquire blocks until a session permit is free and returns its release
// func. Release is idempotent and must be called on every exit path of
// the wrapped fetch, failure paths included.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("session pool is closed")
	}
	p.mu.Unlock()

	return p.permits.acquire(ctx)
}

// NewPage opens a fresh tab. The caller owns the tab, must bound it with
// a context derived from PageTimeout, and must close it before releasing
// its permit.
func (p *Pool) NewPage() (*rod.Page, error) {
	page, err := p.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening tab: %w", err)
	}
	return page, nil
}

// PageTimeout returns the per-tab deadline fetches must run under.
func (p *Pool) PageTimeout() time.Duration {
	return p.cfg.PageTimeout
}

// Close shuts the browser down. In-flight fetches fail; their permits are
// still released by their own deferred cleanup.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.browser.Close(); err != nil {
		return fmt.Errorf("closing browser: %w", err)
	}
	p.logger.Info("Session pool closed")
	return nil
}

// permits is a counted semaphore. Kept free of browser types so the
// budget invariants are testable on their own.
type permits struct {
	slots chan struct{}
}

func newPermits(n int) *permits {
	return &permits{slots: make(chan struct{}, n)}
}

// acquire blocks until a slot is free or the context finishes. The
// returned release is safe to call exactly once per acquire; a sync.Once
// guards against double release inflating the budget.
func (p *permits) acquire(ctx context.Context) (func(), error) {
	select {
	case p.slots <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-p.slots })
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session permit: %w", ctx.Err())
	}
}

// inUse reports how many permits are currently held.
func (p *permits) inUse() int {
	return len(p.slots)
}

// capacity reports the total permit budget.
func (p *permits) capacity() int {
	return cap(p.slots)
}
