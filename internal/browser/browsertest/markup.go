package browsertest

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
)

// Markup is a parsed HTML fixture. It runs LocatorSpecs through
// browser.TranslateSpec and evaluates the result against the document, so
// scripted nodes can take their Matches from real markup.
type Markup struct {
	doc *html.Node
}

// ParseMarkup parses an HTML document or fragment.
func ParseMarkup(src string) (*Markup, error) {
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("browsertest: parse markup: %w", err)
	}
	return &Markup{doc: doc}, nil
}

// MustParseMarkup is ParseMarkup for fixtures known to be valid.
func MustParseMarkup(src string) *Markup {
	m, err := ParseMarkup(src)
	if err != nil {
		panic(err)
	}
	return m
}

// Query returns the elements the spec selects, in the order the driver
// would see them.
func (m *Markup) Query(spec schemas.LocatorSpec) ([]*html.Node, error) {
	sel, err := browser.TranslateSpec(spec)
	if err != nil {
		return nil, err
	}
	if !sel.XPath {
		group, err := cascadia.ParseGroup(sel.Expr)
		if err != nil {
			return nil, fmt.Errorf("browsertest: css %q: %w", sel.Expr, err)
		}
		return cascadia.QueryAll(m.doc, group), nil
	}

	found, err := htmlquery.QueryAll(m.doc, sel.Expr)
	if err != nil {
		return nil, fmt.Errorf("browsertest: xpath %q: %w", sel.Expr, err)
	}
	out := found[:0]
	for _, n := range found {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out, nil
}

// IDs returns the id attribute of every element the spec selects. Elements
// without one are reported as their tag name.
func (m *Markup) IDs(spec schemas.LocatorSpec) ([]string, error) {
	nodes, err := m.Query(spec)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if id := htmlquery.SelectAttr(n, "id"); id != "" {
			ids = append(ids, id)
		} else {
			ids = append(ids, "<"+n.Data+">")
		}
	}
	return ids, nil
}

// Keys returns the keys of the specs that select the element with the given
// id. It is the Matches list for a Node standing in for that element.
func (m *Markup) Keys(id string, specs ...schemas.LocatorSpec) []string {
	var keys []string
	for _, spec := range specs {
		ids, err := m.IDs(spec)
		if err != nil {
			continue
		}
		for _, got := range ids {
			if got == id {
				keys = append(keys, spec.Key())
				break
			}
		}
	}
	return keys
}

// Text returns the whitespace-normalized text of the element with the given
// id, or "" when there is none.
func (m *Markup) Text(id string) string {
	n := htmlquery.FindOne(m.doc, fmt.Sprintf("//*[@id=%q]", id))
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}
