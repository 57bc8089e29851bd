// File: internal/service/sessions.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/internal/bootstrap"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/engine"
	"github.com/xkilldash9x/reelpost/internal/humanoid"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/modal"
	"github.com/xkilldash9x/reelpost/internal/workflow"
)

// ErrUnknownSession is returned for a job whose session has no configured
// credential store.
var ErrUnknownSession = errors.New("session is not configured")

// Sessions opens bootstrapped pages for named sessions on a shared launcher.
// Each page gets its own browser context, so sessions never share cookies.
type Sessions struct {
	cfg       *config.Config
	launcher  browser.Launcher
	table     locator.Table
	artifacts workflow.ArtifactSink
	logger    *zap.Logger

	// policy builds the timing policy for one session.
	policy func() humanoid.Policy
}

// NewSessions wires the session factory.
func NewSessions(cfg *config.Config, launcher browser.Launcher, table locator.Table, artifacts workflow.ArtifactSink, logger *zap.Logger) *Sessions {
	s := &Sessions{
		cfg:       cfg,
		launcher:  launcher,
		table:     table,
		artifacts: artifacts,
		logger:    logger.Named("sessions"),
	}
	s.policy = func() humanoid.Policy { return NewPolicy(cfg.Humanoid, logger) }
	return s
}

// NewPolicy returns the configured timing policy. A disabled humanoid means
// no pacing at all.
func NewPolicy(cfg config.HumanoidConfig, logger *zap.Logger) humanoid.Policy {
	if !cfg.Enabled {
		return humanoid.NewInstant()
	}
	return humanoid.New(cfg, logger)
}

// Open creates a page, restores the session's cookies and verifies the
// upload page is reachable, then returns a controller bound to that page.
func (s *Sessions) Open(ctx context.Context, name string) (engine.Runner, func() error, error) {
	sc, ok := s.cfg.Session(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSession, name)
	}
	domain := sc.Domain
	if domain == "" {
		d, err := bootstrap.RegistrableDomain(s.cfg.Workflow.UploadURL)
		if err != nil {
			return nil, nil, err
		}
		domain = d
	}

	logger := s.logger.With(zap.String("session", name))
	page, err := s.launcher.NewPage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open page for session %s: %w", name, err)
	}

	policy := s.policy()
	store := bootstrap.NewCookieStore(sc.CookieFile, domain, logger)
	b := bootstrap.New(s.cfg.Workflow, store, s.table, policy, logger)
	if err := b.Bootstrap(ctx, page); err != nil {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("Failed to close page after bootstrap failure", zap.Error(cerr))
		}
		return nil, nil, fmt.Errorf("bootstrap session %s: %w", name, err)
	}

	locators := locator.NewEngine(page, s.table, logger)
	resolver := modal.NewResolver(page, locators, policy, modal.RulesFromConfig(s.cfg.Modal), logger)
	var opts []workflow.Option
	if s.artifacts != nil {
		opts = append(opts, workflow.WithArtifacts(s.artifacts))
	}
	controller := workflow.NewController(page, locators, resolver, policy, s.cfg.Workflow, logger, opts...)

	release := func() error {
		logger.Debug("Session locator stats", zap.Any("hits", locators.Stats()))
		return page.Close()
	}
	logger.Info("Session ready")
	return controller, release, nil
}

var _ engine.SessionFactory = (*Sessions)(nil)
