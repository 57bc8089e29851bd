// File: internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/engine"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/observability"
	"github.com/xkilldash9x/reelpost/internal/reporting"
)

// Components holds everything a publish run needs. It owns the browser and
// the outcome sinks, so Shutdown must be called exactly once.
type Components struct {
	Reporter   *reporting.Multi
	Artifacts  *reporting.FileArtifacts
	Table      locator.Table
	Launcher   browser.Launcher
	Sessions   *Sessions
	Dispatcher *engine.Dispatcher
}

// Shutdown releases resources in reverse order of creation: the browser
// first so no page outlives the run, then the outcome sinks.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Launcher != nil {
		if err := c.Launcher.Close(); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser shut down.")
		}
	}

	if c.Reporter != nil {
		if err := c.Reporter.Close(); err != nil {
			logger.Warn("Error closing outcome sinks.", zap.Error(err))
		} else {
			logger.Debug("Outcome sinks closed.")
		}
	}

	logger.Info("All components shut down.")
}
