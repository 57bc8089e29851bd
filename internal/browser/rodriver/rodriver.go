// Package rodriver implements the browser boundary on go-rod, with
// go-rod/stealth applied to every page.
package rodriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	rodstealth "github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/config"
)

const defaultActionTimeout = 15 * time.Second

// Launcher owns one rod browser connection.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewLauncher creates a launcher; Chrome starts on the first NewPage.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger.Named("rod")}
}

func (l *Launcher) connect() (*rod.Browser, error) {
	if l.browser != nil {
		return l.browser, nil
	}

	var wsURL string
	if l.cfg.RemoteURL != "" {
		u, err := launcher.ResolveURL(l.cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("rod: resolve remote url: %w", err)
		}
		wsURL = u
		l.logger.Info("Connecting to remote browser", zap.String("url", wsURL))
	} else {
		lc := launcher.New().
			Headless(l.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("window-size", fmt.Sprintf("%d,%d", l.cfg.Viewport.Width, l.cfg.Viewport.Height))
		if l.cfg.ExecPath != "" {
			lc = lc.Bin(l.cfg.ExecPath)
		}
		for _, arg := range l.cfg.Args {
			name, value, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
			if value == "" {
				lc = lc.Set(flags.Flag(name))
			} else {
				lc = lc.Set(flags.Flag(name), value)
			}
		}
		u, err := lc.Launch()
		if err != nil {
			return nil, fmt.Errorf("rod: launch: %w", err)
		}
		wsURL = u
		l.lnch = lc
		l.logger.Info("Launched local browser", zap.Bool("headless", l.cfg.Headless))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rod: connect: %w", err)
	}
	l.browser = b
	return b, nil
}

// NewPage opens a stealth page inside a fresh incognito context.
func (l *Launcher) NewPage(ctx context.Context) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("rod: launcher is closed")
	}

	root, err := l.connect()
	if err != nil {
		return nil, err
	}
	incognito, err := root.Incognito()
	if err != nil {
		return nil, fmt.Errorf("rod: incognito context: %w", err)
	}

	var page *rod.Page
	if l.cfg.Stealth {
		page, err = rodstealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("rod: create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             l.cfg.Viewport.Width,
		Height:            l.cfg.Viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		l.logger.Warn("Failed to set viewport", zap.Error(err))
	}
	if ua := l.cfg.Persona.UserAgent; ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: strings.Join(l.cfg.Persona.Languages, ","),
			Platform:       l.cfg.Persona.Platform,
		}); err != nil {
			l.logger.Warn("Failed to set user agent", zap.Error(err))
		}
	}

	return &Page{
		page:              page,
		root:              root,
		contextID:         incognito.BrowserContextID,
		logger:            l.logger,
		navigationTimeout: l.cfg.NavigationTimeout,
		actionTimeout:     l.cfg.ActionTimeout,
	}, nil
}

// Close shuts the browser down and cleans up a locally launched process.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
		l.lnch = nil
	}
	return err
}

// element wraps a rod element.
type element struct {
	el *rod.Element
}

func (e *element) Handle() string {
	return "rod:" + string(e.el.Object.ObjectID)
}

// Page is a rod page bound to its own incognito browser context.
type Page struct {
	page              *rod.Page
	root              *rod.Browser
	contextID         proto.BrowserBrowserContextID
	logger            *zap.Logger
	navigationTimeout time.Duration
	actionTimeout     time.Duration
	closeOnce         sync.Once
}

// bind returns the page bound to ctx and the action timeout.
func (p *Page) bind(ctx context.Context, timeout time.Duration) (*rod.Page, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	return p.page.Context(opCtx), cancel
}

func (p *Page) asElement(ctx context.Context, el browser.Element) (*rod.Element, context.CancelFunc, error) {
	e, ok := el.(*element)
	if !ok || e == nil {
		return nil, func() {}, browser.ErrForeignElement
	}
	timeout := p.actionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	return e.el.Context(opCtx), cancel, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	page, cancel := p.bind(ctx, p.navigationTimeout)
	defer cancel()
	if err := page.Navigate(url); err != nil {
		return browser.WrapDriverError("navigate", err)
	}
	return browser.WrapDriverError("wait load", page.WaitLoad())
}

func (p *Page) URL(ctx context.Context) (string, error) {
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()
	info, err := page.Info()
	if err != nil {
		return "", browser.WrapDriverError("page info", err)
	}
	return info.URL, nil
}

func (p *Page) Query(ctx context.Context, spec schemas.LocatorSpec) ([]browser.Element, error) {
	sel, err := browser.TranslateSpec(spec)
	if err != nil {
		return nil, err
	}
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()

	var els rod.Elements
	if sel.XPath {
		els, err = page.ElementsX(sel.Expr)
	} else {
		els, err = page.Elements(sel.Expr)
	}
	if err != nil {
		return nil, browser.WrapDriverError("query "+spec.Key(), err)
	}
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out, nil
}

// wrapScript makes any element or page script return its result as a JSON
// string, which survives rod's value conversion unchanged.
func wrapScript(src string) string {
	return fmt.Sprintf("function(...args) { return JSON.stringify((%s).apply(this, args)); }", src)
}

func decodeResult(res *proto.RuntimeRemoteObject, out interface{}) error {
	if out == nil || res == nil {
		return nil
	}
	raw := res.Value.Str()
	if raw == "" || raw == "undefined" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("rod: decode script result: %w", err)
	}
	return nil
}

func (p *Page) Call(ctx context.Context, el browser.Element, script browser.Script, out interface{}, args ...interface{}) error {
	rel, cancel, err := p.asElement(ctx, el)
	defer cancel()
	if err != nil {
		return err
	}
	res, err := rel.Eval(wrapScript(script.Source), args...)
	if err != nil {
		return browser.WrapDriverError("call "+script.Name, err)
	}
	return decodeResult(res, out)
}

func (p *Page) Evaluate(ctx context.Context, script browser.Script, out interface{}, args ...interface{}) error {
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()
	res, err := page.Eval(wrapScript(script.Source), args...)
	if err != nil {
		return browser.WrapDriverError("evaluate "+script.Name, err)
	}
	return decodeResult(res, out)
}

func (p *Page) Inspect(ctx context.Context, el browser.Element) (browser.ElementState, error) {
	var st browser.ElementState
	if err := p.Call(ctx, el, browser.ScriptInspect, &st); err != nil {
		return browser.ElementState{}, err
	}
	if !st.Connected {
		return st, fmt.Errorf("inspect %s: %w", el.Handle(), browser.ErrStaleElement)
	}
	return st, nil
}

func (p *Page) Click(ctx context.Context, el browser.Element) error {
	rel, cancel, err := p.asElement(ctx, el)
	defer cancel()
	if err != nil {
		return err
	}
	return browser.WrapDriverError("click", rel.Click(proto.InputMouseButtonLeft, 1))
}

func (p *Page) SetFiles(ctx context.Context, el browser.Element, paths []string) error {
	rel, cancel, err := p.asElement(ctx, el)
	defer cancel()
	if err != nil {
		return err
	}
	return browser.WrapDriverError("set files", rel.SetFiles(paths))
}

// printable reports whether r has an entry in rod's US keyboard layout.
func printable(r rune) bool {
	return r >= ' ' && r <= '~'
}

func (p *Page) TypeText(ctx context.Context, el browser.Element, text string) error {
	if err := p.Call(ctx, el, browser.ScriptFocus, nil); err != nil {
		return err
	}
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()
	for _, r := range text {
		var err error
		if printable(r) {
			err = page.Keyboard.Type(input.Key(r))
		} else {
			err = page.InsertText(string(r))
		}
		if err != nil {
			return browser.WrapDriverError("type", err)
		}
	}
	return nil
}

func (p *Page) PressKey(ctx context.Context, key browser.Key) error {
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()

	var err error
	switch key {
	case browser.KeySelectAll:
		err = page.KeyActions().Press(input.ControlLeft).Type(input.KeyA).Do()
	case browser.KeyEscape:
		err = page.Keyboard.Type(input.Escape)
	case browser.KeyBackspace:
		err = page.Keyboard.Type(input.Backspace)
	case browser.KeyDelete:
		err = page.Keyboard.Type(input.Delete)
	case browser.KeyEnter:
		err = page.Keyboard.Type(input.Enter)
	default:
		return fmt.Errorf("rod: unsupported key %q", key)
	}
	return browser.WrapDriverError("press "+string(key), err)
}

func (p *Page) MouseMove(ctx context.Context, to schemas.Point) error {
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()
	return browser.WrapDriverError("mouse move", page.Mouse.MoveTo(proto.Point{X: to.X, Y: to.Y}))
}

func (p *Page) Wheel(ctx context.Context, at schemas.Point, deltaX, deltaY float64) error {
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()
	err := proto.InputDispatchMouseEvent{
		Type:   proto.InputDispatchMouseEventTypeMouseWheel,
		X:      at.X,
		Y:      at.Y,
		DeltaX: deltaX,
		DeltaY: deltaY,
	}.Call(page)
	return browser.WrapDriverError("wheel", err)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()
	buf, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, browser.WrapDriverError("screenshot", err)
	}
	return buf, nil
}

// cookieParams converts session cookies to rod protocol parameters.
func cookieParams(cookies []schemas.SessionCookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		cp := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if cp.Path == "" {
			cp.Path = "/"
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			cp.SameSite = proto.NetworkCookieSameSiteStrict
		case "lax":
			cp.SameSite = proto.NetworkCookieSameSiteLax
		case "none", "no_restriction":
			cp.SameSite = proto.NetworkCookieSameSiteNone
		}
		if c.Expires > 0 {
			cp.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, cp)
	}
	return params
}

func (p *Page) SetCookies(ctx context.Context, cookies []schemas.SessionCookie) error {
	if len(cookies) == 0 {
		return nil
	}
	page, cancel := p.bind(ctx, p.actionTimeout)
	defer cancel()
	return browser.WrapDriverError("set cookies", page.SetCookies(cookieParams(cookies)))
}

// Close closes the page and disposes of its incognito context.
func (p *Page) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.page.Close()
		if p.contextID != "" {
			disposeErr := proto.TargetDisposeBrowserContext{BrowserContextID: p.contextID}.Call(p.root)
			if err == nil {
				err = disposeErr
			}
		}
	})
	return err
}

var (
	_ browser.Launcher = (*Launcher)(nil)
	_ browser.Page     = (*Page)(nil)
)
