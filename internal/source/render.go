package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/koran-teknologi/koran/pkg/logx"
)

const (
	defaultRenderTimeout = 45 * time.Second
	renderStableFor      = 500 * time.Millisecond
	dismissWait          = 3 * time.Second
)

// ErrNoRenderer is returned by sources that need a browser when none is configured.
var ErrNoRenderer = errors.New("no page renderer configured")

// RenderRequest describes one scripted page load.
type RenderRequest struct {
	URL string

	// Dismiss is clicked if it appears shortly after load (cookie or
	// subscription modals). Optional.
	Dismiss string

	// WaitFor must match before the HTML is captured.
	WaitFor string
}

// Renderer loads a page in a real browser and returns the resulting HTML.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}

// RodRenderer renders pages with a headless Chromium driven by Rod. The
// browser is launched on first use and reused until Close.
type RodRenderer struct {
	bin     string
	timeout time.Duration
	log     logx.Logger

	// Replaced in tests.
	newLauncher func() browserLauncher
	dial        func(controlURL string) (*rod.Browser, error)

	mu      sync.Mutex
	browser *rod.Browser
}

// browserLauncher starts and stops a Chromium process. *launcher.Launcher
// implements it.
type browserLauncher interface {
	Launch() (string, error)
	Kill()
}

func dialBrowser(controlURL string) (*rod.Browser, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	return browser, nil
}

// NewRodRenderer creates a renderer. bin overrides the Chromium binary; empty
// lets Rod find or download one.
func NewRodRenderer(bin string, timeout time.Duration, log logx.Logger) *RodRenderer {
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	r := &RodRenderer{bin: bin, timeout: timeout, log: log.With(logx.String("comp", "render")), dial: dialBrowser}
	r.newLauncher = r.defaultLauncher
	return r
}

func (r *RodRenderer) defaultLauncher() browserLauncher {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	return l
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := r.newLauncher()
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}
	browser, err := r.dial(u)
	if err != nil {
		// The process is running; do not leak it.
		l.Kill()
		return nil, fmt.Errorf("connect to headless browser: %w", err)
	}
	r.log.Debug("browser started")
	r.browser = browser
	return browser, nil
}

func (r *RodRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	browser, err := r.connect()
	if err != nil {
		return "", err
	}

	tab, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("create tab: %w", err)
	}
	defer tab.Close()

	renderCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	tab = tab.Context(renderCtx)

	if err := tab.Navigate(req.URL); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", req.URL, err)
	}
	_ = tab.WaitStable(renderStableFor)

	if req.Dismiss != "" {
		if el, err := tab.Timeout(dismissWait).Element(req.Dismiss); err == nil {
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				r.log.Debug("dismiss click failed", logx.Err(err))
			}
		} else {
			r.log.Debug("nothing to dismiss", logx.String("selector", req.Dismiss))
		}
	}
	if req.WaitFor != "" {
		if _, err := tab.Element(req.WaitFor); err != nil {
			return "", fmt.Errorf("wait for %q: %w", req.WaitFor, err)
		}
	}

	html, err := tab.HTML()
	if err != nil {
		return "", fmt.Errorf("get HTML from %s: %w", req.URL, err)
	}
	return html, nil
}

// Close shuts down the browser if it was started.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}
