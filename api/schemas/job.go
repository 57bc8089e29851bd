package schemas

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UploadJob is the immutable input to a single publish run. It is produced by
// an external planning collaborator (or the CLI) and never modified by the
// workflow.
type UploadJob struct {
	ID                 string        `json:"id" yaml:"id"`
	Session            string        `json:"session" yaml:"session"`
	MediaPath          string        `json:"media_path" yaml:"media_path"`
	Caption            string        `json:"caption" yaml:"caption"`
	Hashtags           []string      `json:"hashtags,omitempty" yaml:"hashtags"`
	DisclosureRequired bool          `json:"disclosure_required" yaml:"disclosure_required"`
	MaxStageRetries    int           `json:"max_stage_retries" yaml:"max_stage_retries"`
	MaxTotalDuration   time.Duration `json:"max_total_duration" yaml:"max_total_duration"`
	CreatedAt          time.Time     `json:"created_at" yaml:"created_at"`
}

// ErrInvalidJob is wrapped by every validation failure returned from Validate.
var ErrInvalidJob = errors.New("invalid upload job")

// Validate rejects jobs the workflow cannot possibly run.
func (j UploadJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidJob)
	}
	if strings.TrimSpace(j.MediaPath) == "" {
		return fmt.Errorf("%w: media path is empty", ErrInvalidJob)
	}
	if j.MaxStageRetries <= 0 {
		return fmt.Errorf("%w: max_stage_retries must be positive, got %d", ErrInvalidJob, j.MaxStageRetries)
	}
	if j.MaxTotalDuration <= 0 {
		return fmt.Errorf("%w: max_total_duration must be positive, got %s", ErrInvalidJob, j.MaxTotalDuration)
	}
	return nil
}

// FullCaption returns the caption followed by the normalized hashtags, each
// prefixed with a single '#'. Tags already present in the caption are not
// repeated.
func (j UploadJob) FullCaption() string {
	caption := strings.TrimSpace(j.Caption)
	lower := strings.ToLower(caption)

	var tags []string
	seen := make(map[string]bool)
	for _, raw := range j.Hashtags {
		tag := strings.TrimLeft(strings.TrimSpace(raw), "#")
		tag = strings.Join(strings.Fields(tag), "")
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] || strings.Contains(lower, "#"+key) {
			continue
		}
		seen[key] = true
		tags = append(tags, "#"+tag)
	}

	if len(tags) == 0 {
		return caption
	}
	if caption == "" {
		return strings.Join(tags, " ")
	}
	return caption + " " + strings.Join(tags, " ")
}
