// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/engine"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/reporting"
)

// ComponentFactory creates the set of components needed for a publish run.
// The publish and run commands depend on this interface so they can be
// tested without a browser.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	newLauncher LauncherFunc
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{newLauncher: NewLauncher}
}

// NewComponentFactoryWithLauncher creates a factory that drives the given
// launcher constructor instead of a real browser.
func NewComponentFactoryWithLauncher(fn LauncherFunc) ComponentFactory {
	return &concreteFactory{newLauncher: fn}
}

// Create wires reporters, the locator table, the browser and the dispatcher.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if len(cfg.Sessions) == 0 {
		return nil, errors.New("no sessions are configured (hint: add a sessions entry with a cookie_file)")
	}

	components := &Components{}
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Outcome sinks
	reporter, err := InitializeReporters(ctx, cfg.Reporting, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize reporters: %w", err)
		return nil, initializationErr
	}
	components.Reporter = reporter
	logger.Debug("Reporters initialized.", zap.Int("sinks", reporter.Len()))

	artifacts, err := reporting.NewFileArtifacts(cfg.Reporting.OutputDir)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize artifact storage: %w", err)
		return nil, initializationErr
	}
	components.Artifacts = artifacts

	// 2. Locator table
	table, err := locator.Load(cfg.Locators.OverridesFile)
	if err != nil {
		initializationErr = fmt.Errorf("failed to load locator table: %w", err)
		return nil, initializationErr
	}
	components.Table = table

	// 3. Browser
	launcher, err := f.newLauncher(cfg.Browser, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser: %w", err)
		return nil, initializationErr
	}
	components.Launcher = launcher
	logger.Debug("Browser launcher initialized.", zap.String("driver", cfg.Browser.Driver))

	// 4. Sessions and dispatcher
	components.Sessions = NewSessions(cfg, launcher, table, artifacts, logger)
	dispatcher, err := engine.New(components.Sessions, reporter, cfg.Engine, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize dispatcher: %w", err)
		return nil, initializationErr
	}
	components.Dispatcher = dispatcher

	logger.Info("All components initialized successfully.")
	return components, nil
}
