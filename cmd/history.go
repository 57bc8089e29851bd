package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/observability"
	"github.com/xkilldash9x/reelpost/internal/service"
	"github.com/xkilldash9x/reelpost/internal/store"
)

// outcomeQuerier is implemented by both outcome stores.
type outcomeQuerier interface {
	OutcomesByJob(ctx context.Context, jobID string) ([]schemas.UploadOutcome, error)
	Close() error
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history JOB_ID",
		Short: "Print every recorded outcome of a job as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			q, err := openOutcomeStore(cmd.Context(), a.cfg.Reporting, logger)
			if err != nil {
				return err
			}
			defer q.Close()
			return printHistory(cmd.Context(), q, args[0], cmd.OutOrStdout())
		},
	}
}

// openOutcomeStore prefers the local SQLite database when both are set.
func openOutcomeStore(ctx context.Context, cfg config.ReportingConfig, logger *zap.Logger) (outcomeQuerier, error) {
	switch {
	case cfg.SQLitePath != "":
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.PostgresURL != "":
		s, err := service.InitializePostgresStore(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("no outcome database is configured (hint: set reporting.sqlite_path or REELPOST_POSTGRES_URL)")
	}
}

func printHistory(ctx context.Context, q outcomeQuerier, jobID string, out io.Writer) error {
	outcomes, err := q.OutcomesByJob(ctx, jobID)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return fmt.Errorf("no outcomes recorded for job %s", jobID)
	}
	enc := json.NewEncoder(out)
	for _, o := range outcomes {
		if err := enc.Encode(o); err != nil {
			return err
		}
	}
	return nil
}
