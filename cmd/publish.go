package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/observability"
	"github.com/xkilldash9x/reelpost/internal/service"
)

// ErrJobsFailed is returned when at least one job did not publish.
var ErrJobsFailed = errors.New("not every job was published")

type publishOptions struct {
	id          string
	session     string
	media       string
	caption     string
	hashtags    []string
	disclosure  bool
	maxRetries  int
	maxDuration time.Duration
	jsonOutput  bool
}

func newPublishCmd(a *app) *cobra.Command {
	opts := &publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one video through a logged-in session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job := opts.job(a.cfg, time.Now())
			return runJobs(cmd.Context(), observability.GetLogger(), a.cfg, a.factory, []schemas.UploadJob{job}, cmd.OutOrStdout(), opts.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Job id. A random UUID is used when empty.")
	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Configured session to publish with.")
	cmd.Flags().StringVarP(&opts.media, "media", "m", "", "Path to the video file.")
	cmd.Flags().StringVar(&opts.caption, "caption", "", "Caption text.")
	cmd.Flags().StringSliceVar(&opts.hashtags, "hashtag", nil, "Hashtag to append to the caption. Repeatable.")
	cmd.Flags().BoolVar(&opts.disclosure, "ai-generated", false, "Label the post as AI-generated content.")
	cmd.Flags().IntVar(&opts.maxRetries, "max-stage-retries", 0, "Attempts per stage. (Overrides config)")
	cmd.Flags().DurationVar(&opts.maxDuration, "max-duration", 0, "Wall-clock budget for the whole job. (Overrides config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print outcomes as JSON lines instead of a table.")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("media")
	return cmd
}

// job builds the UploadJob, filling unset budgets from the workflow config.
func (o *publishOptions) job(cfg *config.Config, now time.Time) schemas.UploadJob {
	job := schemas.UploadJob{
		ID:                 o.id,
		Session:            o.session,
		MediaPath:          o.media,
		Caption:            o.caption,
		Hashtags:           o.hashtags,
		DisclosureRequired: o.disclosure,
		MaxStageRetries:    o.maxRetries,
		MaxTotalDuration:   o.maxDuration,
		CreatedAt:          now,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxStageRetries == 0 {
		job.MaxStageRetries = cfg.Workflow.DefaultMaxStageRetries
	}
	if job.MaxTotalDuration == 0 {
		job.MaxTotalDuration = cfg.Workflow.DefaultMaxTotalDuration
	}
	return job
}

// runJobs creates the components, dispatches jobs and prints one line per
// outcome. It fails when any job did not publish.
func runJobs(ctx context.Context, logger *zap.Logger, cfg *config.Config, factory service.ComponentFactory, jobs []schemas.UploadJob, out io.Writer, jsonOutput bool) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	outcomes, reportErr := components.Dispatcher.Run(ctx, jobs)
	if outcomes == nil && reportErr != nil {
		return reportErr
	}

	if err := printOutcomes(out, outcomes, jsonOutput); err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.FinalStatus != schemas.FinalPublished {
			failed++
		}
	}
	if reportErr != nil {
		logger.Error("Some outcomes could not be persisted", zap.Error(reportErr))
	}
	if failed > 0 {
		return errors.Join(fmt.Errorf("%w: %d of %d", ErrJobsFailed, failed, len(outcomes)), reportErr)
	}
	return reportErr
}

func printOutcomes(out io.Writer, outcomes []schemas.UploadOutcome, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		for _, o := range outcomes {
			if err := enc.Encode(o); err != nil {
				return fmt.Errorf("failed to encode outcome %s: %w", o.JobID, err)
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSESSION\tSTATUS\tDETAIL")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.JobID, o.Session, o.FinalStatus, outcomeDetail(o))
	}
	return tw.Flush()
}

func outcomeDetail(o schemas.UploadOutcome) string {
	switch {
	case o.FinalStatus == schemas.FinalPublished && o.DegradedSuccess:
		return "degraded: " + o.PublishedURL
	case o.FinalStatus == schemas.FinalPublished:
		return o.PublishedURL
	case o.ErrorKind != "":
		detail := fmt.Sprintf("%s at %s: %s", o.ErrorKind, o.FailedStage, o.ErrorMessage)
		if shot := o.LastScreenshot(); shot != "" {
			detail += " [" + shot + "]"
		}
		return detail
	default:
		return ""
	}
}
