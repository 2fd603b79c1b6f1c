// Package browser owns the lifecycle of the headless Chrome process and the
// isolated sessions the submission pipeline drives. The chromedp exec
// allocator supervises the browser child process on its own goroutines; the
// allocator context is created once per Manager and injected into every
// session, so no caller ever touches platform scheduling details.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outreachlabs/formpilot/internal/browser/stealth"
	"github.com/outreachlabs/formpilot/internal/config"
)

var (
	// ErrDriverInit means the browser process could not be launched. Fatal to
	// the campaign run that requested the session.
	ErrDriverInit = errors.New("browser driver initialization failed")
	// ErrNavigation means a target URL could not be reached over any protocol
	// variant. Per-target, never fatal to the batch.
	ErrNavigation = errors.New("navigation failed")
)

// Manager launches the browser process lazily and hands out isolated sessions.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. The browser process is not started
// until the first session is requested.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("browser"),
	}
}

// initialize creates the exec allocator that spawns and supervises Chrome.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", m.cfg.Browser.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.UserAgent(m.cfg.Browser.UserAgent),
			chromedp.WindowSize(m.cfg.Browser.ViewportWidth, m.cfg.Browser.ViewportHeight),
		)
		if m.cfg.Browser.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(m.cfg.Browser.ExecPath))
		}
		for _, arg := range m.cfg.Browser.Args {
			if name, ok := strings.CutPrefix(arg, "--"); ok {
				opts = append(opts, chromedp.Flag(name, true))
			}
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		// Shutdown may race a slow first launch; the cancel func is only
		// published under the same lock it reads.
		m.mu.Lock()
		m.allocCtx = allocCtx
		m.allocCancel = allocCancel
		m.mu.Unlock()

		// Launch eagerly so a broken Chrome install surfaces here as
		// ErrDriverInit instead of on the first navigation.
		probeCtx, probeCancel := chromedp.NewContext(allocCtx)
		defer probeCancel()

		launchCtx, launchCancel := context.WithTimeout(probeCtx, 60*time.Second)
		defer launchCancel()

		if err := chromedp.Run(launchCtx); err != nil {
			allocCancel()
			m.initErr = fmt.Errorf("%w: %v", ErrDriverInit, err)
			return
		}
		m.logger.Info("Browser process launched.")
	})
	return m.initErr
}

// NewSession acquires one isolated browsing context with the stealth persona
// applied. The caller owns the session and must Close it on every path.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	s := &Session{
		id:     uuid.New().String(),
		ctx:    tabCtx,
		cancel: tabCancel,
		cfg:    m.cfg,
	}
	s.logger = m.logger.With(zap.String("session_id", s.id))

	// Create the tab and connect CDP before any caller action.
	initCtx, initCancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer initCancel()
	if err := chromedp.Run(initCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("%w: %v", ErrDriverInit, err)
	}

	if m.cfg.Browser.Stealth {
		if err := chromedp.Run(initCtx, stealth.Apply(m.cfg.Browser.UserAgent, s.logger)); err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to apply stealth configuration: %w", err)
		}
	}

	s.logger.Debug("Session created.")
	return s, nil
}

// Shutdown releases the browser process. Sessions must be closed first.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocCancel != nil {
		m.allocCancel()
		m.logger.Info("Browser manager shut down.")
	}
}

// Session is one isolated tab. It is owned by a single target attempt at a
// time; the processor reuses it across targets but never concurrently.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	closeOnce sync.Once
}

// ID returns the session identifier used in log correlation.
func (s *Session) ID() string { return s.id }

// Close tears the tab down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")
		s.cancel()
	})
}

// run executes chromedp actions respecting both the session lifetime and the
// caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the target, trying https:// then http:// when the URL has no
// scheme. Any response with status < 400 succeeds. It returns the final URL
// reached after redirects.
func (s *Session) Navigate(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for _, candidate := range urlVariants(rawURL) {
		finalURL, err := s.navigateOnce(ctx, candidate)
		if err == nil {
			return finalURL, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.logger.Debug("Navigation variant failed.", zap.String("url", candidate), zap.Error(err))
	}
	return "", fmt.Errorf("%w for %q: %v", ErrNavigation, rawURL, lastErr)
}

// urlVariants expands a schemeless target into the protocols to try, secure
// first.
func urlVariants(rawURL string) []string {
	if strings.Contains(rawURL, "://") {
		return []string{rawURL}
	}
	return []string{"https://" + rawURL, "http://" + rawURL}
}

func (s *Session) navigateOnce(ctx context.Context, url string) (string, error) {
	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 45 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	runCtx, runCancel := CombineContext(s.ctx, navCtx)
	defer runCancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("navigation timed out after %s", navTimeout)
		}
		return "", err
	}
	// resp is nil for same-document navigations; treat that as reachable.
	if resp != nil && resp.Status >= 400 {
		return "", fmt.Errorf("status %d", resp.Status)
	}

	if err := s.WaitSettle(ctx, s.cfg.Network.PostLoadWait); err != nil {
		s.logger.Debug("Post-navigation settle interrupted.", zap.Error(err))
	}

	var finalURL string
	if err := s.run(ctx, chromedp.Location(&finalURL)); err != nil {
		return "", err
	}
	s.logger.Info("Navigated.", zap.String("url", finalURL))
	return finalURL, nil
}

// HTML returns the serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var content string
	if err := s.run(ctx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page HTML: %w", err)
	}
	return content, nil
}

// Evaluate runs a JavaScript expression and unmarshals the result into res
// (res may be nil when no result is expected).
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// Click activates the first visible element matching the CSS selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	elemCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()
	return s.run(elemCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

// SendKeys focuses the element and types text into it.
func (s *Session) SendKeys(ctx context.Context, selector, text string) error {
	elemCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()
	return s.run(elemCtx,
		chromedp.Focus(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Screenshot captures the element matching the selector as a PNG.
func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	elemCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()
	if err := s.run(elemCtx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("failed to screenshot %q: %w", selector, err)
	}
	return buf, nil
}

// WaitSettle waits for the DOM to be ready plus a quiet period for late
// network activity. A zero quiet period uses the configured default.
func (s *Session) WaitSettle(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		quiet = s.cfg.Network.PostLoadWait
		if quiet <= 0 {
			quiet = 2 * time.Second
		}
	}
	settleCtx, cancel := context.WithTimeout(ctx, quiet+30*time.Second)
	defer cancel()
	if err := s.run(settleCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during settle.", zap.Error(err))
	}
	return s.run(settleCtx, chromedp.Sleep(quiet))
}

func (s *Session) elementTimeout() time.Duration {
	if s.cfg.Network.ElementTimeout > 0 {
		return s.cfg.Network.ElementTimeout
	}
	return 10 * time.Second
}

// CombineContext returns a context canceled when either parent is canceled.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parentCtx)
	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
