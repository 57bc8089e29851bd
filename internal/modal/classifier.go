// Package modal detects, classifies and resolves the transient dialogs the
// upload studio raises after state-changing actions.
package modal

import (
	"strings"

	"github.com/xkilldash9x/reelpost/internal/config"
)

// Kind is the classifier's verdict on a dialog.
type Kind string

const (
	KindNone       Kind = "none"
	KindExit       Kind = "exit"
	KindDisclosure Kind = "disclosure"
	KindError      Kind = "error"
	KindSuccess    Kind = "success"
	KindUnknown    Kind = "unknown"
)

// Rule maps a keyword set to a kind. Keywords match as case-insensitive
// substrings of the whitespace-normalized dialog text.
type Rule struct {
	Kind     Kind
	Keywords []string
}

// Rules is a ranked rule list; the first rule with a matching keyword wins.
type Rules []Rule

// DefaultRules ranks exit dialogs first so unsaved work is never discarded,
// and errors above success because failure notices often reuse success
// vocabulary ("couldn't be posted").
func DefaultRules() Rules {
	return Rules{
		{Kind: KindExit, Keywords: []string{
			"discard", "unsaved", "leave this page", "leave page", "exit without",
			"changes you made may not be saved", "are you sure you want to leave",
		}},
		{Kind: KindDisclosure, Keywords: []string{
			"ai-generated", "ai generated", "aigc", "content disclosure", "disclose",
		}},
		{Kind: KindError, Keywords: []string{
			"failed", "error", "couldn't", "could not", "unable to", "something went wrong",
			"try again", "violat", "not supported",
		}},
		{Kind: KindSuccess, Keywords: []string{
			"uploaded", "published", "posted", "success", "manage your posts", "view profile",
		}},
	}
}

// RulesFromConfig returns the default rules with every non-empty keyword
// list from cfg replacing the built-in one.
func RulesFromConfig(cfg config.ModalConfig) Rules {
	rules := DefaultRules()
	overrides := map[Kind][]string{
		KindExit:       cfg.ExitKeywords,
		KindDisclosure: cfg.DisclosureKeywords,
		KindError:      cfg.ErrorKeywords,
		KindSuccess:    cfg.SuccessKeywords,
	}
	for i, r := range rules {
		if kw := overrides[r.Kind]; len(kw) > 0 {
			rules[i].Keywords = append([]string(nil), kw...)
		}
	}
	return rules
}

// Classification is the outcome of classifying one dialog text.
type Classification struct {
	Kind    Kind
	Keyword string
}

// Classify matches text against the rules. Empty text is unknown, never
// none: a dialog was seen, it just said nothing recognizable.
func (rs Rules) Classify(text string) Classification {
	norm := normalize(text)
	if norm == "" {
		return Classification{Kind: KindUnknown}
	}
	for _, r := range rs {
		for _, kw := range r.Keywords {
			k := normalize(kw)
			if k != "" && strings.Contains(norm, k) {
				return Classification{Kind: r.Kind, Keyword: kw}
			}
		}
	}
	return Classification{Kind: KindUnknown}
}

// Classify classifies text with the default rules.
func Classify(text string) Classification {
	return DefaultRules().Classify(text)
}

func normalize(s string) string {
	s = strings.NewReplacer("\u2019", "'", "\u2018", "'").Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
