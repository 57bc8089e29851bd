package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// fileNameSanitizer replaces anything that is unsafe in a path segment.
var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// SafeName turns a job id into a single path segment.
func SafeName(s string) string {
	s = fileNameSanitizer.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// recordTime is the timestamp component of an outcome's key.
func recordTime(o schemas.UploadOutcome) time.Time {
	if !o.FinishedAt.IsZero() {
		return o.FinishedAt.UTC()
	}
	return time.Now().UTC()
}

// FileReporter writes each outcome to <dir>/<job>-<timestamp>.json.
type FileReporter struct {
	dir string
}

// NewFileReporter creates the output directory if needed.
func NewFileReporter(dir string) (*FileReporter, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", expanded, err)
	}
	return &FileReporter{dir: expanded}, nil
}

// Path returns where an outcome is written.
func (r *FileReporter) Path(o schemas.UploadOutcome) string {
	name := fmt.Sprintf("%s-%s.json", SafeName(o.JobID), recordTime(o).Format("20060102T150405.000000000Z"))
	return filepath.Join(r.dir, name)
}

// Report writes the outcome atomically: readers never see a partial file.
func (r *FileReporter) Report(ctx context.Context, o schemas.UploadOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outcome %s: %w", o.JobID, err)
	}

	tmp, err := os.CreateTemp(r.dir, ".outcome-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write outcome %s: %w", o.JobID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write outcome %s: %w", o.JobID, err)
	}
	if err := os.Rename(tmp.Name(), r.Path(o)); err != nil {
		return fmt.Errorf("failed to store outcome %s: %w", o.JobID, err)
	}
	return nil
}

func (r *FileReporter) Close() error { return nil }

// StreamReporter writes one JSON document per line. It is safe for
// concurrent use.
type StreamReporter struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder
}

// NewStreamReporter takes ownership of w.
func NewStreamReporter(w io.WriteCloser) *StreamReporter {
	return &StreamReporter{w: w, enc: json.NewEncoder(w)}
}

func (r *StreamReporter) Report(ctx context.Context, o schemas.UploadOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(o); err != nil {
		return fmt.Errorf("failed to encode outcome %s: %w", o.JobID, err)
	}
	return nil
}

func (r *StreamReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Close()
}

var (
	_ Reporter = (*FileReporter)(nil)
	_ Reporter = (*StreamReporter)(nil)
)
