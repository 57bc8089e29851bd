package modal

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/humanoid"
	"github.com/xkilldash9x/reelpost/internal/locator"
)

// ErrModalUnclassified means a dialog matched no rule and neither the close
// control nor Escape removed it.
var ErrModalUnclassified = errors.New("modal: unclassified dialog could not be dismissed")

// PlatformError carries an error the platform reported in a dialog or
// banner.
type PlatformError struct {
	Text string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform reported an error: %q", e.Text)
}

// Action is what the resolver did about a dialog.
type Action string

const (
	ActionNone    Action = "none"
	ActionStay    Action = "stay"
	ActionConfirm Action = "confirm"
	ActionClose   Action = "close"
	ActionEscape  Action = "escape"
)

// Result describes one resolver invocation.
type Result struct {
	Present bool
	Kind    Kind
	Keyword string
	Action  Action
	Text    string
}

// Resolver handles at most one dialog per call. It holds no memory of
// earlier dialogs.
type Resolver struct {
	page    browser.Page
	locator *locator.Engine
	policy  humanoid.Policy
	rules   Rules
	logger  *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(page browser.Page, engine *locator.Engine, policy humanoid.Policy, rules Rules, logger *zap.Logger) *Resolver {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Resolver{
		page:    page,
		locator: engine,
		policy:  policy,
		rules:   rules,
		logger:  logger.Named("modal"),
	}
}

// Resolve detects a dialog and acts on it according to its classification.
// When no dialog is present it returns after a single lookup.
func (r *Resolver) Resolve(ctx context.Context) (Result, error) {
	dialog, err := r.locator.Resolve(ctx, schemas.TargetModalDialog)
	if err != nil {
		if errors.Is(err, locator.ErrLocatorMiss) {
			return Result{Kind: KindNone, Action: ActionNone}, nil
		}
		return Result{}, err
	}

	text := dialog.State.Text
	var fresh string
	if err := r.page.Call(ctx, dialog.Element, browser.ScriptReadText, &fresh); err == nil {
		text = fresh
	} else if errors.Is(err, browser.ErrStaleElement) {
		// Closed on its own between lookup and read.
		return Result{Kind: KindNone, Action: ActionNone}, nil
	}

	cls := r.rules.Classify(text)
	res := Result{Present: true, Kind: cls.Kind, Keyword: cls.Keyword, Text: text}
	log := r.logger.With(zap.String("kind", string(cls.Kind)), zap.String("keyword", cls.Keyword))
	log.Info("Dialog detected", zap.String("text", truncate(text, 200)))

	switch cls.Kind {
	case KindExit:
		res.Action = ActionStay
		if err := r.click(ctx, schemas.TargetGenericCancel); err != nil {
			if !errors.Is(err, locator.ErrLocatorMiss) {
				return res, err
			}
			log.Warn("No stay action found, dismissing instead.")
			res.Action, err = r.dismiss(ctx)
			return res, err
		}
	case KindDisclosure:
		res.Action = ActionConfirm
		if err := r.click(ctx, schemas.TargetGenericConfirm); err != nil {
			return res, fmt.Errorf("modal: disclosure confirmation: %w", err)
		}
	case KindSuccess:
		res.Action = ActionConfirm
		if err := r.click(ctx, schemas.TargetGenericConfirm); err != nil {
			if !errors.Is(err, locator.ErrLocatorMiss) {
				return res, err
			}
			// Nothing to acknowledge is fine for a success notice.
			if res.Action, err = r.dismiss(ctx); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Warn("Success dialog stayed open.", zap.String("action", string(res.Action)), zap.Error(err))
			}
		}
	case KindError:
		return res, &PlatformError{Text: text}
	default:
		var err error
		res.Action, err = r.dismiss(ctx)
		if err != nil {
			return res, fmt.Errorf("%w: %q", err, truncate(text, 200))
		}
	}

	log.Info("Dialog resolved", zap.String("action", string(res.Action)))
	return res, nil
}

func (r *Resolver) click(ctx context.Context, target schemas.SemanticTarget) error {
	if err := r.policy.Think(ctx); err != nil {
		return err
	}
	_, err := r.locator.Click(ctx, target, r.policy)
	return err
}

// dismiss tries the close control, then Escape, checking after each whether
// the dialog is gone.
func (r *Resolver) dismiss(ctx context.Context) (Action, error) {
	if err := r.click(ctx, schemas.TargetModalClose); err == nil {
		if gone, err := r.gone(ctx); err != nil || gone {
			return ActionClose, err
		}
	} else if !errors.Is(err, locator.ErrLocatorMiss) {
		return ActionClose, err
	}

	if err := r.page.PressKey(ctx, browser.KeyEscape); err != nil {
		return ActionEscape, err
	}
	gone, err := r.gone(ctx)
	if err != nil {
		return ActionEscape, err
	}
	if !gone {
		return ActionEscape, ErrModalUnclassified
	}
	return ActionEscape, nil
}

func (r *Resolver) gone(ctx context.Context) (bool, error) {
	present, err := r.locator.Present(ctx, schemas.TargetModalDialog)
	return !present, err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
