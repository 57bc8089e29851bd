// File: internal/service/diagnostics.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/locator"
)

// TargetCheck is the result of resolving one semantic target on a live page.
type TargetCheck struct {
	Target schemas.SemanticTarget `json:"target"`
	// Strategy is the 1-based chain position that matched, 0 on a miss.
	Strategy int    `json:"strategy"`
	Found    bool   `json:"found"`
	Error    string `json:"error,omitempty"`
}

// CheckLocators opens url and resolves every target in the table. A miss is
// a normal result; only navigation failures are returned as errors. Targets
// that only exist mid-workflow (dialogs, the editor) are expected to miss on
// a fresh page.
func CheckLocators(ctx context.Context, page browser.Page, url string, table locator.Table, logger *zap.Logger) ([]TargetCheck, error) {
	if err := page.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", url, err)
	}
	engine := locator.NewEngine(page, table, logger)

	var out []TargetCheck
	for _, target := range table.Targets() {
		check := TargetCheck{Target: target}
		res, err := engine.Resolve(ctx, target)
		switch {
		case err == nil:
			check.Found = true
			check.Strategy = res.Strategy()
		case errors.Is(err, locator.ErrLocatorMiss):
		case ctx.Err() != nil:
			return out, ctx.Err()
		default:
			check.Error = err.Error()
		}
		out = append(out, check)
	}
	return out, nil
}
