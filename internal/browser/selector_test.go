package browser

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/reelpost/api/schemas"
)

func TestTranslateSpec(t *testing.T) {
	tests := []struct {
		name      string
		spec      schemas.LocatorSpec
		wantExpr  string
		wantXPath bool
	}{
		{
			name:     "css passes through",
			spec:     schemas.CSS(`input[type="file"]`),
			wantExpr: `input[type="file"]`,
		},
		{
			name:      "xpath passes through",
			spec:      schemas.XPath(`//button[@type="submit"]`),
			wantExpr:  `//button[@type="submit"]`,
			wantXPath: true,
		},
		{
			name:      "text is lowercased and normalized",
			spec:      schemas.Text("  Show   MORE "),
			wantExpr: "//*[self::button or self::a or @role='button' or @role='option' or @role='menuitem']" +
				"[translate(normalize-space(.),'ABCDEFGHIJKLMNOPQRSTUVWXYZ','abcdefghijklmnopqrstuvwxyz')='show more']" +
				" | //*[text()[contains(translate(normalize-space(.),'ABCDEFGHIJKLMNOPQRSTUVWXYZ','abcdefghijklmnopqrstuvwxyz'),'show more')]]" +
				"[not(//*[self::button or self::a or @role='button' or @role='option' or @role='menuitem']" +
				"[translate(normalize-space(.),'ABCDEFGHIJKLMNOPQRSTUVWXYZ','abcdefghijklmnopqrstuvwxyz')='show more'])]",
			wantXPath: true,
		},
		{
			name:     "aria label",
			spec:     schemas.Aria(`Close "dialog"`),
			wantExpr: `[aria-label="Close \"dialog\""]`,
		},
		{
			name:     "test id expands to known attributes",
			spec:     schemas.TestID("post-button"),
			wantExpr: `[data-e2e="post-button"],[data-testid="post-button"],[data-tt="post-button"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := TranslateSpec(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExpr, sel.Expr)
			assert.Equal(t, tt.wantXPath, sel.XPath)
		})
	}
}

func TestTranslateSpec_Invalid(t *testing.T) {
	_, err := TranslateSpec(schemas.LocatorSpec{Strategy: "shadow", Expression: "x"})
	assert.Error(t, err)
	_, err = TranslateSpec(schemas.LocatorSpec{Strategy: schemas.StrategyCSS})
	assert.Error(t, err)
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", xpathLiteral("plain"))
	assert.Equal(t, `"don't"`, xpathLiteral("don't"))
	assert.Equal(t, `concat('say "don',"'",'t"')`, xpathLiteral(`say "don't"`))
}

func TestWrapDriverError(t *testing.T) {
	assert.Nil(t, WrapDriverError("click", nil))

	stale := WrapDriverError("click", errors.New("Could not find node with given id (-32000)"))
	assert.ErrorIs(t, stale, ErrStaleElement)

	other := errors.New("net::ERR_CONNECTION_RESET")
	wrapped := WrapDriverError("navigate", other)
	assert.ErrorIs(t, wrapped, other)
	assert.NotErrorIs(t, wrapped, ErrStaleElement)

	already := fmt.Errorf("inspect: %w", ErrStaleElement)
	assert.Same(t, already, WrapDriverError("call", already))
}

func TestCookieExpiry(t *testing.T) {
	_, ok := CookieExpiry(schemas.SessionCookie{})
	assert.False(t, ok, "zero expiry is a session cookie")

	ts, ok := CookieExpiry(schemas.SessionCookie{Expires: 1767225600.5})
	require.True(t, ok)
	assert.Equal(t, int64(1767225600), ts.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))
}

func TestElementState_IsChecked(t *testing.T) {
	assert.True(t, ElementState{Checked: "true"}.IsChecked())
	assert.False(t, ElementState{Checked: "mixed"}.IsChecked())
	assert.False(t, ElementState{}.IsChecked())
}
