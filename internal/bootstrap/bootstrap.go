// Package bootstrap restores a persisted session into a fresh page and
// confirms the platform considers it logged in.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/humanoid"
	"github.com/xkilldash9x/reelpost/internal/locator"
)

// ErrRequiresManualAuth means the restored session did not authenticate.
// A human has to log in and re-export the cookies.
var ErrRequiresManualAuth = errors.New("bootstrap: session requires manual authentication")

// loginMarkers are URL fragments the platform redirects unauthenticated
// visitors to.
var loginMarkers = []string{"/login", "/signup", "passport."}

// Bootstrapper prepares pages for one session.
type Bootstrapper struct {
	cfg    config.WorkflowConfig
	source CredentialSource
	table  locator.Table
	policy humanoid.Policy
	logger *zap.Logger
}

// New creates a bootstrapper.
func New(cfg config.WorkflowConfig, source CredentialSource, table locator.Table, policy humanoid.Policy, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		cfg:    cfg,
		source: source,
		table:  table,
		policy: policy,
		logger: logger.Named("bootstrap"),
	}
}

// Bootstrap restores cookies, opens the upload entry point and waits for
// the account indicator.
func (b *Bootstrapper) Bootstrap(ctx context.Context, page browser.Page) error {
	cookies, err := b.source.Load()
	if err != nil {
		return fmt.Errorf("failed to load session credentials: %w", err)
	}
	if len(cookies) == 0 {
		b.logger.Warn("Session store holds no usable cookies.")
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		return fmt.Errorf("failed to restore session cookies: %w", err)
	}

	b.logger.Info("Opening upload page", zap.String("url", b.cfg.UploadURL), zap.Int("cookies", len(cookies)))
	if err := page.Navigate(ctx, b.cfg.UploadURL); err != nil {
		return fmt.Errorf("failed to open upload page: %w", err)
	}

	engine := locator.NewEngine(page, b.table, b.logger)
	opts := humanoid.PollOptions{
		IntervalMin: b.cfg.Auth.IntervalMin,
		IntervalMax: b.cfg.Auth.IntervalMax,
		MaxAttempts: b.cfg.Auth.MaxAttempts,
	}
	attempts, err := b.policy.PollUntil(ctx, func(ctx context.Context, attempt int) (bool, error) {
		if loc, err := page.URL(ctx); err == nil && onLoginPage(loc) {
			return false, fmt.Errorf("%w: redirected to %s", ErrRequiresManualAuth, loc)
		}
		return engine.Present(ctx, schemas.TargetAccountIndicator)
	}, opts)
	switch {
	case errors.Is(err, humanoid.ErrPollExhausted):
		return fmt.Errorf("%w: account indicator not found after %d attempts", ErrRequiresManualAuth, attempts)
	case err != nil:
		return err
	}

	b.logger.Info("Session authenticated", zap.Int("attempts", attempts))
	return nil
}

func onLoginPage(loc string) bool {
	loc = strings.ToLower(loc)
	for _, m := range loginMarkers {
		if strings.Contains(loc, m) {
			return true
		}
	}
	return false
}
