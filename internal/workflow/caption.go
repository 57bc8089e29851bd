// internal/workflow/caption.go
package workflow

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/locator"
)

// captionThreshold is the minimum read-back length accepted for text.
func captionThreshold(text string, ratio float64) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	t := int(math.Ceil(ratio * float64(n)))
	if t < 1 {
		t = 1
	}
	if t > n {
		t = n
	}
	return t
}

// enterCaption clears the editor, assigns the caption and verifies the
// read-back, falling back to per-character typing when assignment does not
// take.
func (c *Controller) enterCaption(ctx context.Context, run *jobRun) (stageReport, error) {
	text := run.job.FullCaption()
	threshold := captionThreshold(text, c.cfg.CaptionMinRatio)
	var strategy int
	var detail string

	attempts, err := c.retry(ctx, run, run.job.MaxStageRetries, func(attempt int) error {
		res, err := c.locator.Do(ctx, schemas.TargetCaptionEditor, func(ctx context.Context, r *locator.Resolution) error {
			if !r.State.Box.Empty() {
				if err := c.policy.MovePointer(ctx, c.page, r.State.Box.Center()); err != nil {
					return err
				}
			}
			if err := c.page.Click(ctx, r.Element); err != nil {
				return err
			}
			method, err := c.clearField(ctx, r.Element)
			if err != nil {
				return err
			}
			run.logger.Debug("Caption field cleared", zap.String("method", method))
			if text == "" {
				detail = "empty caption"
				return nil
			}

			got, err := c.assignText(ctx, r.Element, text)
			if err != nil {
				return err
			}
			detail = "assigned"
			if utf8.RuneCountInString(got) < threshold {
				run.logger.Info("Assignment did not take, typing caption",
					zap.Int("read_back", utf8.RuneCountInString(got)), zap.Int("threshold", threshold))
				if got != "" {
					if _, err := c.clearField(ctx, r.Element); err != nil {
						return err
					}
				}
				if err := c.typeText(ctx, r.Element, text); err != nil {
					return err
				}
				detail = "typed per character"
			}

			final, err := c.readText(ctx, r.Element)
			if err != nil {
				return err
			}
			if n := utf8.RuneCountInString(final); n < threshold {
				return fmt.Errorf("%w: %d of %d characters", errCaptionShort, n, threshold)
			}
			return nil
		})
		if res != nil {
			strategy = res.Strategy()
		}
		return err
	})
	if err != nil {
		return stageReport{attempts: attempts, strategy: strategy}, err
	}

	if _, err := c.settle(ctx, run); err != nil {
		return stageReport{attempts: attempts, strategy: strategy}, err
	}
	return stageReport{status: schemas.StatusOK, attempts: attempts, strategy: strategy, detail: detail}, nil
}

// clearField empties the editor with escalating techniques, stopping as soon
// as it reads empty. It returns the technique that worked.
func (c *Controller) clearField(ctx context.Context, el browser.Element) (string, error) {
	if cur, err := c.readText(ctx, el); err != nil {
		return "", err
	} else if cur == "" {
		return "already empty", nil
	}

	if err := c.page.PressKey(ctx, browser.KeySelectAll); err != nil {
		return "", err
	}
	if err := c.page.PressKey(ctx, browser.KeyDelete); err != nil {
		return "", err
	}
	if cur, err := c.readText(ctx, el); err != nil {
		return "", err
	} else if cur == "" {
		return "select-all", nil
	}

	var remaining string
	if err := c.page.Call(ctx, el, browser.ScriptClearValue, &remaining); err != nil {
		return "", err
	}
	if remaining == "" {
		return "programmatic", nil
	}

	if err := c.page.Call(ctx, el, browser.ScriptFocus, nil); err != nil {
		return "", err
	}
	for i := 0; i < c.cfg.BackspaceLimit; i++ {
		if err := c.page.PressKey(ctx, browser.KeyBackspace); err != nil {
			return "", err
		}
		cur, err := c.readText(ctx, el)
		if err != nil {
			return "", err
		}
		if cur == "" {
			return "backspace", nil
		}
	}
	return "", errClearFailed
}

func (c *Controller) assignText(ctx context.Context, el browser.Element, text string) (string, error) {
	var got string
	if err := c.page.Call(ctx, el, browser.ScriptAssignText, &got, text); err != nil {
		return "", err
	}
	return got, nil
}

func (c *Controller) typeText(ctx context.Context, el browser.Element, text string) error {
	if err := c.page.Call(ctx, el, browser.ScriptFocus, nil); err != nil {
		return err
	}
	for _, r := range text {
		if err := c.page.TypeText(ctx, el, string(r)); err != nil {
			return err
		}
		if err := c.policy.Keystroke(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) readText(ctx context.Context, el browser.Element) (string, error) {
	var s string
	if err := c.page.Call(ctx, el, browser.ScriptReadText, &s); err != nil {
		return "", err
	}
	return s, nil
}
