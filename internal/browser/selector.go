package browser

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// Selector is a LocatorSpec translated into something a driver can run
// directly: a CSS selector or an XPath expression.
type Selector struct {
	Expr  string
	XPath bool
}

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

// actionable selects the elements a text locator prefers: the ones a user
// would click.
const actionable = "self::button or self::a or @role='button' or @role='option' or @role='menuitem'"

// TranslateSpec turns a LocatorSpec into a driver selector.
//
//	css    -> as is
//	xpath  -> as is
//	text   -> XPath; actionable elements whose whole label equals the
//	          expression, or, when there are none, elements owning a text
//	          node that contains it. Case-insensitive, whitespace-normalized.
//	aria   -> [aria-label="..."]
//	testid -> [data-e2e="..."],[data-testid="..."],[data-tt="..."]
func TranslateSpec(spec schemas.LocatorSpec) (Selector, error) {
	if err := spec.Validate(); err != nil {
		return Selector{}, err
	}
	switch spec.Strategy {
	case schemas.StrategyCSS:
		return Selector{Expr: spec.Expression}, nil
	case schemas.StrategyXPath:
		return Selector{Expr: spec.Expression, XPath: true}, nil
	case schemas.StrategyText:
		needle := xpathLiteral(strings.ToLower(strings.Join(strings.Fields(spec.Expression), " ")))
		label := fmt.Sprintf("translate(normalize-space(.),'%s','%s')", upperAlpha, lowerAlpha)
		exact := fmt.Sprintf("//*[%s][%s=%s]", actionable, label, needle)
		loose := fmt.Sprintf("//*[text()[contains(%s,%s)]]", label, needle)
		// At most one branch is non-empty, so results stay in document order.
		return Selector{Expr: fmt.Sprintf("%s | %s[not(%s)]", exact, loose, exact), XPath: true}, nil
	case schemas.StrategyAria:
		return Selector{Expr: fmt.Sprintf(`[aria-label=%s]`, cssString(spec.Expression))}, nil
	case schemas.StrategyTestID:
		v := cssString(spec.Expression)
		return Selector{Expr: fmt.Sprintf(`[data-e2e=%s],[data-testid=%s],[data-tt=%s]`, v, v, v)}, nil
	}
	return Selector{}, fmt.Errorf("unsupported locator strategy %q", spec.Strategy)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(s) + `"`
}
