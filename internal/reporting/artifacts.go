package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// FileArtifacts stores screenshots under <dir>/artifacts/<job>/.
type FileArtifacts struct {
	root string
}

// NewFileArtifacts roots artifact storage at dir.
func NewFileArtifacts(dir string) (*FileArtifacts, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifact dir %s: %w", dir, err)
	}
	return &FileArtifacts{root: filepath.Join(expanded, "artifacts")}, nil
}

// Save writes data and returns its path. A repeated name overwrites the
// earlier artifact of the same job.
func (a *FileArtifacts) Save(ctx context.Context, jobID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(a.root, SafeName(jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	path := filepath.Join(dir, SafeName(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return path, nil
}
