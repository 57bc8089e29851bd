// internal/browser/cdpdriver/page.go
package cdpdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
)

const defaultActionTimeout = 15 * time.Second

// element wraps a DOM node found by Query. The backend node id survives
// re-renders of unrelated parts of the document, which is what lets a
// detached node surface as a stale error instead of acting on a stranger.
type element struct {
	backendID cdptypes.BackendNodeID
	nodeName  string
}

func (e *element) Handle() string {
	return fmt.Sprintf("cdp:%s#%d", strings.ToLower(e.nodeName), e.backendID)
}

// Page is a single chromedp tab.
type Page struct {
	tabCtx            context.Context
	cancel            context.CancelFunc
	logger            *zap.Logger
	navigationTimeout time.Duration
	actionTimeout     time.Duration

	closeOnce sync.Once
	onClose   func()
}

// RunActions executes chromedp actions against the tab, bounded by both the
// caller's context and the given timeout.
func (p *Page) RunActions(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	opCtx, cancelOp := context.WithTimeout(ctx, timeout)
	defer cancelOp()

	runCtx, cancel := CombineContext(p.tabCtx, opCtx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	return browser.WrapDriverError("navigate", p.RunActions(ctx, p.navigationTimeout, chromedp.Navigate(url)))
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.RunActions(ctx, p.actionTimeout, chromedp.Location(&loc)); err != nil {
		return "", browser.WrapDriverError("location", err)
	}
	return loc, nil
}

func (p *Page) Query(ctx context.Context, spec schemas.LocatorSpec) ([]browser.Element, error) {
	sel, err := browser.TranslateSpec(spec)
	if err != nil {
		return nil, err
	}
	by := chromedp.ByQueryAll
	if sel.XPath {
		by = chromedp.BySearch
	}

	var nodes []*cdptypes.Node
	err = p.RunActions(ctx, p.actionTimeout, chromedp.Nodes(sel.Expr, &nodes, by, chromedp.AtLeast(0)))
	if err != nil {
		return nil, browser.WrapDriverError("query "+spec.Key(), err)
	}

	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		// Search results can include text and attribute nodes.
		if n.NodeType != cdptypes.NodeTypeElement {
			continue
		}
		out = append(out, &element{backendID: n.BackendNodeID, nodeName: n.NodeName})
	}
	return out, nil
}

func (p *Page) asElement(el browser.Element) (*element, error) {
	e, ok := el.(*element)
	if !ok || e == nil {
		return nil, browser.ErrForeignElement
	}
	return e, nil
}

// callOn resolves the node to a remote object and runs fn with it bound to
// `this`. The result is decoded into out.
func (p *Page) callOn(ctx context.Context, el browser.Element, src string, out interface{}, args ...interface{}) error {
	e, err := p.asElement(el)
	if err != nil {
		return err
	}

	var raw json.RawMessage
	err = p.RunActions(ctx, p.actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.backendID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		return chromedp.CallFunctionOn(src, &raw, func(params *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return params.WithObjectID(obj.ObjectID).WithAwaitPromise(true)
		}, args...).Do(ctx)
	}))
	if err != nil {
		return browser.WrapDriverError("call on "+e.Handle(), err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("cdp: decode script result: %w", err)
	}
	return nil
}

func (p *Page) Inspect(ctx context.Context, el browser.Element) (browser.ElementState, error) {
	var st browser.ElementState
	if err := p.callOn(ctx, el, browser.ScriptInspect.Source, &st); err != nil {
		return browser.ElementState{}, err
	}
	if !st.Connected {
		return st, fmt.Errorf("inspect %s: %w", el.Handle(), browser.ErrStaleElement)
	}
	return st, nil
}

func (p *Page) Call(ctx context.Context, el browser.Element, script browser.Script, out interface{}, args ...interface{}) error {
	return p.callOn(ctx, el, script.Source, out, args...)
}

func (p *Page) Evaluate(ctx context.Context, script browser.Script, out interface{}, args ...interface{}) error {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("cdp: encode argument: %w", err)
		}
		encoded = append(encoded, string(b))
	}
	expr := fmt.Sprintf("(%s)(%s)", script.Source, strings.Join(encoded, ","))

	var raw json.RawMessage
	err := p.RunActions(ctx, p.actionTimeout, chromedp.Evaluate(expr, &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	if err != nil {
		return browser.WrapDriverError("evaluate "+script.Name, err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Click scrolls the element into view, re-reads its box and dispatches a
// press/release pair at its centre.
func (p *Page) Click(ctx context.Context, el browser.Element) error {
	if err := p.callOn(ctx, el, browser.ScriptFocus.Source, nil); err != nil {
		return err
	}
	st, err := p.Inspect(ctx, el)
	if err != nil {
		return err
	}
	if st.Box.Empty() {
		return fmt.Errorf("click %s: element has no box", el.Handle())
	}
	c := st.Box.Center()
	err = p.RunActions(ctx, p.actionTimeout,
		input.DispatchMouseEvent(input.MouseMoved, c.X, c.Y),
		input.DispatchMouseEvent(input.MousePressed, c.X, c.Y).WithButton(input.Left).WithButtons(1).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, c.X, c.Y).WithButton(input.Left).WithClickCount(1),
	)
	return browser.WrapDriverError("click "+el.Handle(), err)
}

func (p *Page) SetFiles(ctx context.Context, el browser.Element, paths []string) error {
	e, err := p.asElement(el)
	if err != nil {
		return err
	}
	err = p.RunActions(ctx, p.actionTimeout, dom.SetFileInputFiles(paths).WithBackendNodeID(e.backendID))
	return browser.WrapDriverError("set files on "+e.Handle(), err)
}

func (p *Page) TypeText(ctx context.Context, el browser.Element, text string) error {
	if err := p.callOn(ctx, el, browser.ScriptFocus.Source, nil); err != nil {
		return err
	}
	actions := make([]chromedp.Action, 0, len(text))
	for _, r := range text {
		actions = append(actions, chromedp.KeyEvent(string(r)))
	}
	return browser.WrapDriverError("type into "+el.Handle(), p.RunActions(ctx, p.actionTimeout, actions...))
}

func (p *Page) PressKey(ctx context.Context, key browser.Key) error {
	var action chromedp.Action
	switch key {
	case browser.KeySelectAll:
		down := input.DispatchKeyEvent(input.KeyDown).
			WithModifiers(input.ModifierCtrl).
			WithKey("a").WithCode("KeyA").
			WithWindowsVirtualKeyCode(65).
			WithCommands([]string{"selectAll"})
		up := input.DispatchKeyEvent(input.KeyUp).
			WithModifiers(input.ModifierCtrl).
			WithKey("a").WithCode("KeyA").
			WithWindowsVirtualKeyCode(65)
		action = chromedp.Tasks{down, up}
	case browser.KeyEscape:
		action = chromedp.KeyEvent(kb.Escape)
	case browser.KeyBackspace:
		action = chromedp.KeyEvent(kb.Backspace)
	case browser.KeyDelete:
		action = chromedp.KeyEvent(kb.Delete)
	case browser.KeyEnter:
		action = chromedp.KeyEvent(kb.Enter)
	default:
		return fmt.Errorf("cdp: unsupported key %q", key)
	}
	return browser.WrapDriverError("press "+string(key), p.RunActions(ctx, p.actionTimeout, action))
}

func (p *Page) MouseMove(ctx context.Context, to schemas.Point) error {
	return browser.WrapDriverError("mouse move", p.RunActions(ctx, p.actionTimeout,
		input.DispatchMouseEvent(input.MouseMoved, to.X, to.Y)))
}

func (p *Page) Wheel(ctx context.Context, at schemas.Point, deltaX, deltaY float64) error {
	return browser.WrapDriverError("wheel", p.RunActions(ctx, p.actionTimeout,
		input.DispatchMouseEvent(input.MouseWheel, at.X, at.Y).WithDeltaX(deltaX).WithDeltaY(deltaY)))
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.RunActions(ctx, p.actionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, browser.WrapDriverError("screenshot", err)
	}
	return buf, nil
}

// cookieParams converts session cookies to CDP parameters.
func cookieParams(cookies []schemas.SessionCookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		cp := &network.CookieParam{
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
			cp.SameSite = network.CookieSameSiteStrict
		case "lax":
			cp.SameSite = network.CookieSameSiteLax
		case "none", "no_restriction":
			cp.SameSite = network.CookieSameSiteNone
		}
		if t, ok := browser.CookieExpiry(c); ok {
			exp := cdptypes.TimeSinceEpoch(t)
			cp.Expires = &exp
		}
		params = append(params, cp)
	}
	return params
}

func (p *Page) SetCookies(ctx context.Context, cookies []schemas.SessionCookie) error {
	if len(cookies) == 0 {
		return nil
	}
	return browser.WrapDriverError("set cookies", p.RunActions(ctx, p.actionTimeout,
		network.SetCookies(cookieParams(cookies))))
}

// Close closes the tab and its browser context.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

var _ browser.Page = (*Page)(nil)
