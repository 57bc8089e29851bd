// internal/workflow/stages.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/bootstrap"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/humanoid"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/modal"
)

// -- SessionReady --

// sessionReady verifies the page sits on the upload route, navigating back
// to it once if it does not.
func (c *Controller) sessionReady(ctx context.Context, run *jobRun) (stageReport, error) {
	loc, err := c.page.URL(ctx)
	if err != nil {
		return stageReport{attempts: 1}, err
	}
	if c.onUploadRoute(loc) {
		return stageReport{status: schemas.StatusOK, attempts: 1}, nil
	}

	run.logger.Info("Page is not on the upload route, navigating", zap.String("url", loc))
	if err := c.page.Navigate(ctx, c.cfg.UploadURL); err != nil {
		return stageReport{attempts: 2}, err
	}
	if loc, err = c.page.URL(ctx); err != nil {
		return stageReport{attempts: 2}, err
	}
	if !c.onUploadRoute(loc) {
		return stageReport{attempts: 2}, fmt.Errorf("%w: page redirected to %s", bootstrap.ErrRequiresManualAuth, loc)
	}
	return stageReport{status: schemas.StatusOK, attempts: 2, detail: "navigated to upload page"}, nil
}

func (c *Controller) onUploadRoute(loc string) bool {
	return c.cfg.UploadRoute != "" && strings.Contains(loc, c.cfg.UploadRoute)
}

// -- FileSubmitted --

// submitFile hands the media path to the file input and reads back the
// file count where the driver exposes it.
func (c *Controller) submitFile(ctx context.Context, run *jobRun) (stageReport, error) {
	var strategy int
	var detail string
	attempts, err := c.retry(ctx, run, run.job.MaxStageRetries, func(attempt int) error {
		res, err := c.locator.Do(ctx, schemas.TargetFileInput, func(ctx context.Context, r *locator.Resolution) error {
			return c.page.SetFiles(ctx, r.Element, []string{run.mediaPath})
		})
		if err != nil {
			return err
		}
		strategy = res.Strategy()

		var count int
		err = c.page.Call(ctx, res.Element, browser.ScriptFileCount, &count)
		switch {
		case errors.Is(err, browser.ErrStaleElement):
			// The studio swaps the input out once it has taken the file.
			detail = "input replaced after selection"
		case err != nil:
			return err
		case count == 0:
			return errFileRejected
		case count < 0:
			detail = "file count not readable"
		}
		return nil
	})
	if err != nil {
		return stageReport{attempts: attempts, strategy: strategy}, err
	}

	if _, err := c.settle(ctx, run); err != nil {
		return stageReport{attempts: attempts, strategy: strategy}, err
	}
	return stageReport{status: schemas.StatusOK, attempts: attempts, strategy: strategy, detail: detail}, nil
}

// -- ProcessingWait --

// waitForProcessing polls for the two completion signals: the file-select
// control gone, and an editor or preview present. Both together finish the
// wait; either alone is accepted from the grace attempt on.
func (c *Controller) waitForProcessing(ctx context.Context, run *jobRun) (stageReport, error) {
	grace := c.cfg.Processing.GraceAttempts
	var detail string

	attempts, err := c.policy.PollUntil(ctx, func(ctx context.Context, attempt int) (bool, error) {
		if res, err := c.locator.Resolve(ctx, schemas.TargetErrorIndicator); err == nil {
			return false, &modal.PlatformError{Text: strings.TrimSpace(res.State.Text)}
		} else if !errors.Is(err, locator.ErrLocatorMiss) {
			return false, err
		}

		control, err := c.locator.Present(ctx, schemas.TargetUploadControl)
		if err != nil {
			return false, err
		}
		surface, err := c.locator.Present(ctx, schemas.TargetCaptionEditor)
		if err != nil {
			return false, err
		}
		if !surface {
			if surface, err = c.locator.Present(ctx, schemas.TargetMediaPreview); err != nil {
				return false, err
			}
		}

		gone := !control
		switch {
		case gone && surface:
			detail = "upload control gone and editor present"
			return true, nil
		case (gone || surface) && attempt >= grace:
			if gone {
				detail = "upload control gone after grace period"
			} else {
				detail = "editor present after grace period"
			}
			return true, nil
		}
		return false, nil
	}, pollOptions(c.cfg.Processing))

	if errors.Is(err, humanoid.ErrPollExhausted) {
		return stageReport{attempts: attempts}, fmt.Errorf("%w: processing not finished after %d polls", ErrStageTimeout, attempts)
	}
	if err != nil {
		return stageReport{attempts: attempts}, err
	}
	return stageReport{status: schemas.StatusOK, attempts: attempts, detail: detail}, nil
}

// -- OptionsExpanded --

// expandOptions clicks "show more" when it exists and scrolls otherwise,
// then waits for the expanded section, recognised by the disclosure switch
// or the privacy choice. The stage never fails on a miss.
func (c *Controller) expandOptions(ctx context.Context, run *jobRun) (stageReport, error) {
	res, err := c.locator.Click(ctx, schemas.TargetShowMoreToggle, c.policy)
	if err != nil {
		if !errors.Is(err, locator.ErrLocatorMiss) {
			return stageReport{attempts: 1}, err
		}
		run.logger.Info("Show more toggle not found, scrolling instead.")
		if err := c.policy.Scroll(ctx, c.page, c.cfg.ScrollFallbackPx); err != nil {
			return stageReport{attempts: 1}, err
		}
		return stageReport{status: schemas.StatusDegraded, attempts: 1, detail: "show more toggle missing, scrolled"}, nil
	}
	strategy := res.Strategy()

	attempts, err := c.policy.PollUntil(ctx, func(ctx context.Context, _ int) (bool, error) {
		for _, target := range []schemas.SemanticTarget{schemas.TargetDisclosureToggle, schemas.TargetPrivacyEveryone} {
			if ok, err := c.locator.Present(ctx, target); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}, pollOptions(c.cfg.Disclosure))
	switch {
	case errors.Is(err, humanoid.ErrPollExhausted):
		run.logger.Warn("Expanded options not found after show more click.", zap.Int("attempts", attempts))
		return stageReport{status: schemas.StatusDegraded, attempts: attempts, strategy: strategy,
			detail: "options clicked but expanded section did not appear"}, nil
	case err != nil:
		return stageReport{attempts: attempts, strategy: strategy}, err
	}

	detail, ok, err := c.choosePrivacy(ctx, run)
	if err != nil {
		return stageReport{attempts: attempts, strategy: strategy}, err
	}
	status := schemas.StatusOK
	if !ok {
		status = schemas.StatusDegraded
	}
	return stageReport{status: status, attempts: attempts, strategy: strategy, detail: detail}, nil
}

// choosePrivacy selects the "everyone" audience when the option is shown
// and reports its selection state as unselected. Layouts without the option,
// or where it already holds, are left alone.
func (c *Controller) choosePrivacy(ctx context.Context, run *jobRun) (string, bool, error) {
	res, err := c.locator.Resolve(ctx, schemas.TargetPrivacyEveryone)
	switch {
	case errors.Is(err, locator.ErrLocatorMiss):
		return "", true, nil
	case err != nil:
		return "", false, err
	case res.State.Checked != "false":
		return "", true, nil
	}

	if err := c.policy.Think(ctx); err != nil {
		return "", false, err
	}
	if _, err := c.locator.Click(ctx, schemas.TargetPrivacyEveryone, c.policy); err != nil {
		if errors.Is(err, locator.ErrLocatorMiss) || errors.Is(err, browser.ErrStaleElement) {
			return "privacy option vanished before click", false, nil
		}
		return "", false, err
	}
	cur, err := c.locator.Resolve(ctx, schemas.TargetPrivacyEveryone)
	if err != nil && !errors.Is(err, locator.ErrLocatorMiss) {
		return "", false, err
	}
	if err != nil || !cur.State.IsChecked() {
		run.logger.Warn("Privacy choice not confirmed.")
		return "privacy choice not confirmed", false, nil
	}
	return "privacy set to everyone", true, nil
}

// -- DisclosureToggled --

// toggleDisclosure turns the disclosure switch on. A confirmation dialog or
// a direct state flip are both accepted; neither within budget degrades.
func (c *Controller) toggleDisclosure(ctx context.Context, run *jobRun) (stageReport, error) {
	if !run.job.DisclosureRequired {
		return stageReport{status: schemas.StatusOK, detail: "not required"}, nil
	}

	res, err := c.locator.Resolve(ctx, schemas.TargetDisclosureToggle)
	if err != nil {
		if errors.Is(err, locator.ErrLocatorMiss) {
			run.logger.Warn("Disclosure toggle not found.")
			return stageReport{status: schemas.StatusDegraded, attempts: 1, detail: "disclosure toggle not found"}, nil
		}
		return stageReport{attempts: 1}, err
	}
	strategy := res.Strategy()
	if res.State.IsChecked() {
		return stageReport{status: schemas.StatusOK, attempts: 1, strategy: strategy, detail: "already on"}, nil
	}

	if err := c.policy.Think(ctx); err != nil {
		return stageReport{attempts: 1, strategy: strategy}, err
	}
	if _, err := c.locator.Click(ctx, schemas.TargetDisclosureToggle, c.policy); err != nil {
		if errors.Is(err, locator.ErrLocatorMiss) || errors.Is(err, browser.ErrStaleElement) {
			return stageReport{status: schemas.StatusDegraded, attempts: 1, strategy: strategy, detail: "toggle vanished before click"}, nil
		}
		return stageReport{attempts: 1, strategy: strategy}, err
	}

	confirmed := false
	attempts, err := c.policy.PollUntil(ctx, func(ctx context.Context, _ int) (bool, error) {
		mr, err := c.settle(ctx, run)
		if err != nil {
			return false, err
		}
		if mr.Present && mr.Kind == modal.KindDisclosure {
			confirmed = true
		}

		cur, err := c.locator.Resolve(ctx, schemas.TargetDisclosureToggle)
		if err != nil {
			if errors.Is(err, locator.ErrLocatorMiss) {
				return false, nil
			}
			return false, err
		}
		if cur.State.IsChecked() {
			return true, nil
		}
		// Some variants expose no state attribute; the confirmed dialog is
		// the only evidence there.
		return confirmed && cur.State.Checked == "", nil
	}, pollOptions(c.cfg.Disclosure))

	switch {
	case errors.Is(err, humanoid.ErrPollExhausted):
		run.logger.Warn("Disclosure state not confirmed", zap.Int("attempts", attempts))
		return stageReport{status: schemas.StatusDegraded, attempts: attempts, strategy: strategy, detail: "toggle state not confirmed"}, nil
	case err != nil:
		return stageReport{attempts: attempts, strategy: strategy}, err
	}
	detail := "toggle state flipped"
	if confirmed {
		detail = "confirmed via dialog"
	}
	return stageReport{status: schemas.StatusOK, attempts: attempts, strategy: strategy, detail: detail}, nil
}

// -- PrePublishDelay --

func (c *Controller) prePublishDelay(ctx context.Context, run *jobRun) (stageReport, error) {
	if err := c.policy.Delay(ctx, c.cfg.PrePublishDelayMin, c.cfg.PrePublishDelayMax); err != nil {
		return stageReport{attempts: 1}, err
	}
	return stageReport{status: schemas.StatusOK, attempts: 1}, nil
}

// -- Published --

// publish clicks the publish button and disambiguates what happened, in
// priority order: success, platform error, exit dialog. The first exit
// dialog earns one more click; a second one fails the stage. Silence within
// the grace budget is a degraded success.
func (c *Controller) publish(ctx context.Context, run *jobRun) (stageReport, error) {
	var strategy int
	click := func() (int, error) {
		return c.retry(ctx, run, run.job.MaxStageRetries, func(attempt int) error {
			res, err := c.locator.Click(ctx, schemas.TargetPublishButton, c.policy)
			if err != nil {
				return err
			}
			strategy = res.Strategy()
			return nil
		})
	}

	clicks, err := click()
	if err != nil {
		return stageReport{attempts: clicks, strategy: strategy}, err
	}

	retried := false
	var detail string
	polls, err := c.policy.PollUntil(ctx, func(ctx context.Context, _ int) (bool, error) {
		if loc, err := c.page.URL(ctx); err == nil && loc != "" && !c.onUploadRoute(loc) {
			run.outcome.PublishedURL = loc
			detail = "left upload route"
			return true, nil
		}
		if ok, err := c.locator.Present(ctx, schemas.TargetSuccessIndicator); err != nil {
			return false, err
		} else if ok {
			detail = "success indicator"
			return true, nil
		}
		if phrase, err := c.successText(ctx, run); err != nil {
			return false, err
		} else if phrase != "" {
			detail = fmt.Sprintf("success text %q", phrase)
			return true, nil
		}
		if res, err := c.locator.Resolve(ctx, schemas.TargetErrorIndicator); err == nil {
			return false, &modal.PlatformError{Text: strings.TrimSpace(res.State.Text)}
		} else if !errors.Is(err, locator.ErrLocatorMiss) {
			return false, err
		}

		mr, err := c.settle(ctx, run)
		if err != nil {
			return false, err
		}
		switch {
		case mr.Present && mr.Kind == modal.KindSuccess:
			detail = "success dialog"
			return true, nil
		case mr.Present && mr.Kind == modal.KindExit && retried:
			return false, fmt.Errorf("%w: exit dialog after republishing: %.120q", ErrStageTimeout, strings.TrimSpace(mr.Text))
		case mr.Present && mr.Kind == modal.KindExit:
			retried = true
			run.logger.Info("Exit dialog after publish, clicking publish again.")
			n, err := click()
			clicks += n
			return false, err
		}
		return false, nil
	}, pollOptions(c.cfg.Publish))

	if errors.Is(err, humanoid.ErrPollExhausted) {
		run.logger.Warn("No success or error signal after publish; reporting degraded success.")
		run.outcome.DegradedSuccess = true
		return stageReport{status: schemas.StatusDegraded, attempts: clicks, strategy: strategy,
			detail: fmt.Sprintf("no signal after %d polls", polls)}, nil
	}
	if err != nil {
		return stageReport{attempts: clicks, strategy: strategy}, err
	}
	return stageReport{status: schemas.StatusOK, attempts: clicks, strategy: strategy, detail: detail}, nil
}

// successText returns the first configured success phrase found in the
// visible page text. Read errors count as no match.
func (c *Controller) successText(ctx context.Context, run *jobRun) (string, error) {
	if len(c.cfg.SuccessPhrases) == 0 {
		return "", nil
	}
	var text string
	if err := c.page.Evaluate(ctx, browser.ScriptPageText, &text); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		run.logger.Debug("Could not read page text.", zap.Error(err))
		return "", nil
	}
	text = strings.ToLower(text)
	for _, phrase := range c.cfg.SuccessPhrases {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			return phrase, nil
		}
	}
	return "", nil
}
