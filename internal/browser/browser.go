// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

var (
	// ErrStaleElement means the element was detached or re-rendered between
	// resolution and use. Callers re-resolve once and retry.
	ErrStaleElement = errors.New("browser: stale element")
	// ErrForeignElement is returned when an Element from another driver is
	// passed to a Page.
	ErrForeignElement = errors.New("browser: element belongs to a different driver")
)

// Element is an opaque handle to a DOM node, valid only on the Page that
// returned it.
type Element interface {
	// Handle identifies the node for logging.
	Handle() string
}

// ElementState is a point-in-time snapshot of an element, read in one round
// trip. Field names match the output of ScriptInspect.
type ElementState struct {
	Connected bool         `json:"connected"`
	Visible   bool         `json:"visible"`
	Enabled   bool         `json:"enabled"`
	Box       schemas.Rect `json:"box"`
	// Checked is the toggle state as reported by aria-checked, aria-pressed,
	// aria-selected or the checked property: "true", "false" or "" when the
	// element is neither a toggle nor an option.
	Checked string `json:"checked"`
	Text    string `json:"text"`
}

// IsChecked reports whether the element is an active toggle.
func (s ElementState) IsChecked() bool { return s.Checked == "true" }

// Key names a keyboard key or chord.
type Key string

const (
	KeyEscape    Key = "Escape"
	KeyBackspace Key = "Backspace"
	KeyDelete    Key = "Delete"
	KeyEnter     Key = "Enter"
	// KeySelectAll is the platform select-all chord (Ctrl+A).
	KeySelectAll Key = "SelectAll"
)

// Pointer dispatches raw pointer input in viewport coordinates.
type Pointer interface {
	MouseMove(ctx context.Context, to schemas.Point) error
	Wheel(ctx context.Context, at schemas.Point, deltaX, deltaY float64) error
}

// Page is the automation boundary the workflow is written against. Every
// method is a single bounded operation; waiting is the caller's concern.
type Page interface {
	Pointer

	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	// Query returns every element matching spec in document order. It does
	// not filter on visibility or enabled state.
	Query(ctx context.Context, spec schemas.LocatorSpec) ([]Element, error)
	// Inspect snapshots the element. A detached element yields ErrStaleElement.
	Inspect(ctx context.Context, el Element) (ElementState, error)

	Click(ctx context.Context, el Element) error
	SetFiles(ctx context.Context, el Element, paths []string) error
	// TypeText dispatches one key event per rune into the focused element.
	TypeText(ctx context.Context, el Element, text string) error
	PressKey(ctx context.Context, key Key) error

	// Call runs an element script with the element bound to `this` and
	// decodes the return value into out (which may be nil).
	Call(ctx context.Context, el Element, script Script, out interface{}, args ...interface{}) error
	// Evaluate runs a page-level script.
	Evaluate(ctx context.Context, script Script, out interface{}, args ...interface{}) error

	Screenshot(ctx context.Context) ([]byte, error)
	SetCookies(ctx context.Context, cookies []schemas.SessionCookie) error
	Close() error
}

// Launcher owns a browser process (or remote connection) and hands out
// isolated pages.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// CookieExpiry converts a cookie's epoch-seconds expiry, treating zero as a
// session cookie.
func CookieExpiry(c schemas.SessionCookie) (time.Time, bool) {
	if c.Expires <= 0 {
		return time.Time{}, false
	}
	sec := int64(c.Expires)
	nsec := int64((c.Expires - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), true
}
