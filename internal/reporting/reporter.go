// -- internal/reporting/reporter.go --
package reporting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// Reporter persists upload outcomes. Implementations write exactly what they
// are given; they never retry and never change the outcome.
type Reporter interface {
	// Report persists one outcome.
	Report(ctx context.Context, outcome schemas.UploadOutcome) error
	// Close flushes and releases any underlying resources.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format.
//
//	json   one pretty-printed file per outcome under the output directory
//	jsonl  one line per outcome, appended to the output file or stdout
func New(format, output string) (Reporter, error) {
	switch format {
	case "json":
		if output == "" || output == "stdout" {
			return nil, errors.New("json reporter needs an output directory")
		}
		return NewFileReporter(output)
	case "jsonl":
		if output == "" || output == "stdout" {
			// Wrap Stdout so Close() is a no-op.
			return NewStreamReporter(&nopWriteCloser{os.Stdout}), nil
		}
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open output file %s: %w", output, err)
		}
		return NewStreamReporter(f), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
