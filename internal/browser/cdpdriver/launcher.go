// internal/browser/cdpdriver/launcher.go
package cdpdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/browser/stealth"
	"github.com/xkilldash9x/reelpost/internal/config"
)

// Launcher manages one Chrome process (or a remote DevTools endpoint) and
// opens an isolated browser context per page. The browser is started lazily
// on the first NewPage.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	pages  map[*Page]struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewLauncher creates a launcher. No process is started until NewPage.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{
		cfg:    cfg,
		logger: logger.Named("cdp"),
		pages:  make(map[*Page]struct{}),
	}
}

// allocatorOptions builds the exec allocator flags from configuration.
func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(l.cfg.Viewport.Width, l.cfg.Viewport.Height),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.Persona.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.Persona.UserAgent))
	}
	for _, arg := range l.cfg.Args {
		name, value := splitFlag(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// splitFlag turns "--name=value" or "--name" into a chromedp flag pair.
func splitFlag(arg string) (string, interface{}) {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			return arg[:i], arg[i+1:]
		}
	}
	return arg, true
}

func (l *Launcher) initialize() error {
	l.initOnce.Do(func() {
		if l.cfg.RemoteURL != "" {
			l.logger.Info("Connecting to remote browser", zap.String("url", l.cfg.RemoteURL))
			l.allocCtx, l.allocCancel = chromedp.NewRemoteAllocator(context.Background(), l.cfg.RemoteURL)
		} else {
			l.logger.Info("Launching local browser", zap.Bool("headless", l.cfg.Headless))
			l.allocCtx, l.allocCancel = chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
		}

		l.browserCtx, l.browserCancel = chromedp.NewContext(l.allocCtx,
			chromedp.WithLogf(l.logger.Sugar().Debugf),
			chromedp.WithErrorf(l.logger.Sugar().Debugf),
		)
		// Running with no actions starts the browser.
		if err := chromedp.Run(l.browserCtx); err != nil {
			l.browserCancel()
			l.allocCancel()
			l.initErr = fmt.Errorf("failed to start browser: %w", err)
		}
	})
	return l.initErr
}

// NewPage opens a tab in a fresh browser context so cookies never leak
// between sessions.
func (l *Launcher) NewPage(ctx context.Context) (browser.Page, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("cdp: launcher is closed")
	}
	if err := l.initialize(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(l.browserCtx, chromedp.WithNewBrowserContext())

	setupCtx, cancelSetup := CombineContext(tabCtx, ctx)
	defer cancelSetup()

	var setup chromedp.Tasks
	if l.cfg.Stealth {
		setup = stealth.Apply(stealth.PersonaFromConfig(l.cfg), l.logger)
	}
	if err := chromedp.Run(setupCtx, setup...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("cdp: failed to prepare tab: %w", err)
	}

	p := &Page{
		tabCtx:            tabCtx,
		cancel:            tabCancel,
		logger:            l.logger,
		navigationTimeout: l.cfg.NavigationTimeout,
		actionTimeout:     l.cfg.ActionTimeout,
	}
	l.wg.Add(1)
	p.onClose = func() {
		l.mu.Lock()
		delete(l.pages, p)
		l.mu.Unlock()
		l.wg.Done()
	}

	l.mu.Lock()
	l.pages[p] = struct{}{}
	l.mu.Unlock()
	return p, nil
}

// Close closes every open page and then the browser.
func (l *Launcher) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	open := make([]*Page, 0, len(l.pages))
	for p := range l.pages {
		open = append(open, p)
	}
	l.mu.Unlock()

	for _, p := range open {
		_ = p.Close()
	}
	l.wg.Wait()

	if l.browserCancel != nil {
		l.browserCancel()
	}
	if l.allocCancel != nil {
		l.allocCancel()
	}
	l.logger.Info("Browser closed.")
	return nil
}

var _ browser.Launcher = (*Launcher)(nil)
