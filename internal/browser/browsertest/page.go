// Package browsertest provides an in-memory browser.Page whose DOM is a flat
// list of scripted nodes. Nodes match LocatorSpecs by key, so tests describe
// which chain entries a node satisfies instead of writing real markup.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
)

// Node is one scripted DOM element.
type Node struct {
	ID string
	// Matches lists the LocatorSpec keys (strategy:expression) the node
	// satisfies.
	Matches []string
	Visible bool
	Enabled bool
	Text    string
	// Checked is the toggle state reported by Inspect: "true", "false" or "".
	Checked string
	// Toggles makes a click flip Checked.
	Toggles bool
	// Files holds the paths set on a file input. NoFileList makes
	// file_count report -1, as for elements without a files property.
	Files      []string
	NoFileList bool
	// RejectAssign makes assign_text leave the text untouched, forcing the
	// per-character fallback.
	RejectAssign bool
	// ClearResist is the number of clear_value calls that leave the text
	// in place.
	ClearResist int
	// StaleNext makes the next action on this node fail with
	// ErrStaleElement and replaces the node with a fresh copy.
	StaleNext bool

	OnClick func(p *Page)
	OnFiles func(p *Page, paths []string)

	removed bool
}

func (n *Node) matches(key string) bool {
	for _, m := range n.Matches {
		if m == key {
			return true
		}
	}
	return false
}

func (n *Node) state() browser.ElementState {
	st := browser.ElementState{
		Connected: !n.removed,
		Visible:   n.Visible,
		Enabled:   n.Enabled,
		Checked:   n.Checked,
		Text:      n.Text,
	}
	if n.Visible {
		st.Box = schemas.Rect{X: 100, Y: 200, Width: 120, Height: 40}
	}
	return st
}

type element struct {
	node *Node
}

func (e *element) Handle() string { return "node:" + e.node.ID }

// Wheel records one wheel event.
type Wheel struct {
	At     schemas.Point
	DeltaY float64
}

// Page is a scripted browser.Page. All methods are safe for concurrent use;
// hooks run without the page lock held so they can mutate the page.
type Page struct {
	mu sync.Mutex

	nodes    []*Node
	url      string
	pageText string
	focused  *Node
	selected bool

	clicks      []string
	keys        []browser.Key
	navigations []string
	cookies     []schemas.SessionCookie
	typed       map[string]string
	wheels      []Wheel
	moves       int
	queries     int
	screenshots int
	closed      bool

	// OnNavigate runs after every navigation.
	OnNavigate func(p *Page, url string)
	// OnEscape runs when Escape is pressed.
	OnEscape func(p *Page)
	// OnWheel runs after every wheel event.
	OnWheel func(p *Page)

	// Errors injected into the matching operations.
	NavigateErr   error
	QueryErr      error
	ScreenshotErr error
	CookieErr     error
}

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{url: "about:blank", typed: make(map[string]string)}
}

// Add appends nodes to the document.
func (p *Page) Add(nodes ...*Node) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = append(p.nodes, nodes...)
	return p
}

// Node returns the attached node with the given id.
func (p *Page) Node(id string) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(id)
}

func (p *Page) find(id string) *Node {
	for _, n := range p.nodes {
		if n.ID == id && !n.removed {
			return n
		}
	}
	return nil
}

// Update mutates an attached node under the page lock. It is a no-op when
// the node is absent.
func (p *Page) Update(id string, fn func(n *Node)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.find(id); n != nil {
		fn(n)
	}
}

// Remove detaches a node. Handles to it become stale.
func (p *Page) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remove(id)
}

func (p *Page) remove(id string) {
	kept := p.nodes[:0]
	for _, n := range p.nodes {
		if n.ID == id {
			n.removed = true
			continue
		}
		kept = append(kept, n)
	}
	p.nodes = kept
}

// Rerender replaces a node with a copy in the same document position, the
// way a framework re-render swaps DOM nodes. The old handle goes stale.
func (p *Page) Rerender(id string) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rerender(id)
}

func (p *Page) rerender(id string) *Node {
	for i, n := range p.nodes {
		if n.ID != id || n.removed {
			continue
		}
		fresh := *n
		fresh.Matches = append([]string(nil), n.Matches...)
		fresh.StaleNext = false
		n.removed = true
		p.nodes[i] = &fresh
		return &fresh
	}
	return nil
}

// SetURL changes the current location without recording a navigation.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// SetPageText sets what ScriptPageText returns.
func (p *Page) SetPageText(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageText = s
}

// -- Recorded interactions --

func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// ClickCount returns how many times the node with id was clicked.
func (p *Page) ClickCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.clicks {
		if c == id {
			n++
		}
	}
	return n
}

func (p *Page) Keys() []browser.Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Key(nil), p.keys...)
}

func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *Page) Cookies() []schemas.SessionCookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.SessionCookie(nil), p.cookies...)
}

// Typed returns the text dispatched key-by-key into the node with id.
func (p *Page) Typed(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[id]
}

func (p *Page) Wheels() []Wheel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Wheel(nil), p.wheels...)
}

func (p *Page) Moves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moves
}

// Queries returns the number of Query calls made so far.
func (p *Page) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// -- browser.Page --

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.NavigateErr != nil {
		err := p.NavigateErr
		p.mu.Unlock()
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	p.navigations = append(p.navigations, url)
	p.url = url
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Query(ctx context.Context, spec schemas.LocatorSpec) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries++
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	key := spec.Key()
	var out []browser.Element
	for _, n := range p.nodes {
		if n.matches(key) {
			out = append(out, &element{node: n})
		}
	}
	return out, nil
}

// node unwraps an element handle and consumes a pending StaleNext.
func (p *Page) node(el browser.Element) (*Node, error) {
	e, ok := el.(*element)
	if !ok || e == nil {
		return nil, browser.ErrForeignElement
	}
	n := e.node
	if n.removed {
		return nil, fmt.Errorf("%s: %w", e.Handle(), browser.ErrStaleElement)
	}
	if n.StaleNext {
		p.rerender(n.ID)
		return nil, fmt.Errorf("%s: %w", e.Handle(), browser.ErrStaleElement)
	}
	return n, nil
}

func (p *Page) Inspect(ctx context.Context, el browser.Element) (browser.ElementState, error) {
	if err := ctx.Err(); err != nil {
		return browser.ElementState{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := el.(*element)
	if !ok || e == nil {
		return browser.ElementState{}, browser.ErrForeignElement
	}
	if e.node.removed {
		return e.node.state(), fmt.Errorf("inspect %s: %w", e.Handle(), browser.ErrStaleElement)
	}
	return e.node.state(), nil
}

func (p *Page) Click(ctx context.Context, el browser.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	n, err := p.node(el)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if !n.Visible {
		p.mu.Unlock()
		return fmt.Errorf("click %s: element has no box", el.Handle())
	}
	p.clicks = append(p.clicks, n.ID)
	p.focused = n
	p.selected = false
	if n.Toggles {
		if n.Checked == "true" {
			n.Checked = "false"
		} else {
			n.Checked = "true"
		}
	}
	hook := n.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) SetFiles(ctx context.Context, el browser.Element, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	n, err := p.node(el)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	n.Files = append([]string(nil), paths...)
	hook := n.OnFiles
	p.mu.Unlock()

	if hook != nil {
		hook(p, paths)
	}
	return nil
}

func (p *Page) TypeText(ctx context.Context, el browser.Element, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.node(el)
	if err != nil {
		return err
	}
	p.focused = n
	if p.selected {
		n.Text = ""
		p.selected = false
	}
	n.Text += text
	p.typed[n.ID] += text
	return nil
}

func (p *Page) PressKey(ctx context.Context, key browser.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.keys = append(p.keys, key)
	n := p.focused
	var hook func(*Page)
	switch key {
	case browser.KeySelectAll:
		p.selected = n != nil
	case browser.KeyDelete, browser.KeyBackspace:
		if n == nil {
			break
		}
		switch {
		case p.selected && n.ClearResist > 0:
			// Editors that ignore the selection chord keep their text.
		case p.selected:
			n.Text = ""
		case key == browser.KeyBackspace && n.Text != "":
			r := []rune(n.Text)
			n.Text = string(r[:len(r)-1])
		}
		p.selected = false
	case browser.KeyEscape:
		hook = p.OnEscape
	}
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Call(ctx context.Context, el browser.Element, script browser.Script, out interface{}, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if script.Name == browser.ScriptInspect.Name {
		e, ok := el.(*element)
		if !ok || e == nil {
			return browser.ErrForeignElement
		}
		return decode(e.node.state(), out)
	}

	n, err := p.node(el)
	if err != nil {
		return err
	}
	switch script.Name {
	case browser.ScriptReadText.Name:
		return decode(n.Text, out)
	case browser.ScriptAssignText.Name:
		if len(args) != 1 {
			return fmt.Errorf("browsertest: %s expects one argument", script.Name)
		}
		text, _ := args[0].(string)
		if !n.RejectAssign {
			n.Text = text
		}
		return decode(n.Text, out)
	case browser.ScriptClearValue.Name:
		if n.ClearResist > 0 {
			n.ClearResist--
		} else {
			n.Text = ""
		}
		return decode(n.Text, out)
	case browser.ScriptFileCount.Name:
		if n.NoFileList {
			return decode(-1, out)
		}
		return decode(len(n.Files), out)
	case browser.ScriptFocus.Name:
		p.focused = n
		p.selected = false
		return decode(true, out)
	}
	return fmt.Errorf("browsertest: unknown element script %q", script.Name)
}

func (p *Page) Evaluate(ctx context.Context, script browser.Script, out interface{}, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if script.Name == browser.ScriptPageText.Name {
		parts := []string{p.pageText}
		for _, n := range p.nodes {
			if n.Visible && n.Text != "" {
				parts = append(parts, n.Text)
			}
		}
		return decode(strings.TrimSpace(strings.Join(parts, "\n")), out)
	}
	return fmt.Errorf("browsertest: unknown page script %q", script.Name)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.screenshots++
	return []byte(fmt.Sprintf("png-%d", p.screenshots)), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []schemas.SessionCookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CookieErr != nil {
		return p.CookieErr
	}
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *Page) MouseMove(ctx context.Context, to schemas.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves++
	return nil
}

func (p *Page) Wheel(ctx context.Context, at schemas.Point, deltaX, deltaY float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.wheels = append(p.wheels, Wheel{At: at, DeltaY: deltaY})
	hook := p.OnWheel
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// decode round-trips v through JSON into out, the way real drivers hand
// script results back.
func decode(v interface{}, out interface{}) error {
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

var _ browser.Page = (*Page)(nil)
