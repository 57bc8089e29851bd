package reporting

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// Multi fans an outcome out to every reporter. One backend failing does not
// stop the others; all errors are joined.
type Multi struct {
	reporters []Reporter
	logger    *zap.Logger
}

// NewMulti skips nil reporters.
func NewMulti(logger *zap.Logger, reporters ...Reporter) *Multi {
	m := &Multi{logger: logger.Named("reporting")}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

// Len is the number of backends.
func (m *Multi) Len() int { return len(m.reporters) }

func (m *Multi) Report(ctx context.Context, o schemas.UploadOutcome) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(ctx, o); err != nil {
			m.logger.Error("Failed to persist outcome", zap.String("job_id", o.JobID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, r := range m.reporters {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

var _ Reporter = (*Multi)(nil)
