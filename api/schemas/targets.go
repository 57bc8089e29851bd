package schemas

import "fmt"

// -- Semantic UI Targets --

// SemanticTarget names a logical UI role the publish workflow interacts with,
// independent of how the platform currently renders it.
type SemanticTarget string

const (
	TargetFileInput        SemanticTarget = "file_input"
	TargetCaptionEditor    SemanticTarget = "caption_editor"
	TargetShowMoreToggle   SemanticTarget = "show_more_toggle"
	TargetDisclosureToggle SemanticTarget = "disclosure_toggle"
	TargetPrivacyEveryone  SemanticTarget = "privacy_everyone"
	TargetPublishButton    SemanticTarget = "publish_button"
	TargetAccountIndicator SemanticTarget = "account_indicator"
	TargetGenericConfirm   SemanticTarget = "generic_confirm"
	TargetGenericCancel    SemanticTarget = "generic_cancel"

	// Auxiliary roles used for post-condition checks and dialog handling.
	TargetUploadControl    SemanticTarget = "upload_control"
	TargetMediaPreview     SemanticTarget = "media_preview"
	TargetModalDialog      SemanticTarget = "modal_dialog"
	TargetModalClose       SemanticTarget = "modal_close"
	TargetSuccessIndicator SemanticTarget = "success_indicator"
	TargetErrorIndicator   SemanticTarget = "error_indicator"
)

// AllTargets lists every known target in a stable order. Used by diagnostics
// and by table validation.
var AllTargets = []SemanticTarget{
	TargetFileInput,
	TargetCaptionEditor,
	TargetShowMoreToggle,
	TargetDisclosureToggle,
	TargetPrivacyEveryone,
	TargetPublishButton,
	TargetAccountIndicator,
	TargetGenericConfirm,
	TargetGenericCancel,
	TargetUploadControl,
	TargetMediaPreview,
	TargetModalDialog,
	TargetModalClose,
	TargetSuccessIndicator,
	TargetErrorIndicator,
}

// Valid reports whether t is one of the known targets.
func (t SemanticTarget) Valid() bool {
	for _, known := range AllTargets {
		if t == known {
			return true
		}
	}
	return false
}

// -- Locator Specs --

// LocatorStrategy selects how a LocatorSpec expression is interpreted by a driver.
type LocatorStrategy string

const (
	// StrategyCSS is a plain CSS selector.
	StrategyCSS LocatorStrategy = "css"
	// StrategyXPath is an XPath 1.0 expression.
	StrategyXPath LocatorStrategy = "xpath"
	// StrategyText matches elements owning a text node that contains the
	// expression, case-insensitively and with whitespace normalized.
	StrategyText LocatorStrategy = "text"
	// StrategyAria matches the aria-label attribute exactly.
	StrategyAria LocatorStrategy = "aria"
	// StrategyTestID matches data-e2e / data-testid / data-tt attributes.
	StrategyTestID LocatorStrategy = "testid"
)

// Valid reports whether s is a supported strategy.
func (s LocatorStrategy) Valid() bool {
	switch s {
	case StrategyCSS, StrategyXPath, StrategyText, StrategyAria, StrategyTestID:
		return true
	}
	return false
}

// LocatorSpec is one concrete way of finding a SemanticTarget in the DOM.
type LocatorSpec struct {
	Strategy        LocatorStrategy `json:"strategy" yaml:"strategy"`
	Expression      string          `json:"expression" yaml:"expression"`
	RequiresVisible bool            `json:"requires_visible" yaml:"requires_visible"`
	RequiresEnabled bool            `json:"requires_enabled" yaml:"requires_enabled"`
}

// Key returns a compact "strategy:expression" identifier for the spec.
func (s LocatorSpec) Key() string {
	return string(s.Strategy) + ":" + s.Expression
}

func (s LocatorSpec) String() string {
	return fmt.Sprintf("%s(visible=%t,enabled=%t)", s.Key(), s.RequiresVisible, s.RequiresEnabled)
}

// Validate checks the spec for an unknown strategy or an empty expression.
func (s LocatorSpec) Validate() error {
	if !s.Strategy.Valid() {
		return fmt.Errorf("unknown locator strategy %q", s.Strategy)
	}
	if s.Expression == "" {
		return fmt.Errorf("locator expression is empty for strategy %q", s.Strategy)
	}
	return nil
}

// CSS, Text, Aria, TestID and XPath build LocatorSpecs that require the
// element to be visible and enabled, which is what almost every caller wants.
func CSS(expr string) LocatorSpec    { return interactable(StrategyCSS, expr) }
func Text(expr string) LocatorSpec   { return interactable(StrategyText, expr) }
func Aria(expr string) LocatorSpec   { return interactable(StrategyAria, expr) }
func TestID(expr string) LocatorSpec { return interactable(StrategyTestID, expr) }
func XPath(expr string) LocatorSpec  { return interactable(StrategyXPath, expr) }

// Hidden returns a copy of the spec that accepts invisible elements (file
// inputs are nearly always display:none).
func (s LocatorSpec) Hidden() LocatorSpec {
	s.RequiresVisible = false
	return s
}

// AnyState returns a copy of the spec that accepts disabled elements.
func (s LocatorSpec) AnyState() LocatorSpec {
	s.RequiresEnabled = false
	return s
}

func interactable(strategy LocatorStrategy, expr string) LocatorSpec {
	return LocatorSpec{Strategy: strategy, Expression: expr, RequiresVisible: true, RequiresEnabled: true}
}
