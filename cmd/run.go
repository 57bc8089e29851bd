package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/observability"
)

// jobPlan is the YAML document accepted by `reelpost run`.
//
//	defaults:
//	  session: main
//	  max_total_duration: 20m
//	jobs:
//	  - media_path: clips/one.mp4
//	    caption: first
//	    hashtags: [go, automation]
type jobPlan struct {
	Defaults planDefaults        `yaml:"defaults"`
	Jobs     []schemas.UploadJob `yaml:"jobs"`
}

type planDefaults struct {
	Session          string        `yaml:"session"`
	Hashtags         []string      `yaml:"hashtags"`
	MaxStageRetries  int           `yaml:"max_stage_retries"`
	MaxTotalDuration time.Duration `yaml:"max_total_duration"`
}

func newRunCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "run PLAN",
		Short: "Publish every job of a YAML plan, one queue per session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := loadPlan(args[0], a.cfg, time.Now())
			if err != nil {
				return err
			}
			return runJobs(cmd.Context(), observability.GetLogger(), a.cfg, a.factory, jobs, cmd.OutOrStdout(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print outcomes as JSON lines instead of a table.")
	return cmd
}

// loadPlan reads a plan file. Relative media paths resolve against the
// plan's directory.
func loadPlan(path string, cfg *config.Config, now time.Time) ([]schemas.UploadJob, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand plan path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	plan, err := parsePlan(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return plan.resolve(filepath.Dir(expanded), cfg, now)
}

func parsePlan(r io.Reader) (*jobPlan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var plan jobPlan
	if err := dec.Decode(&plan); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan is empty")
		}
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(plan.Jobs) == 0 {
		return nil, errors.New("plan has no jobs")
	}
	return &plan, nil
}

// resolve fills defaults into every job. Jobs are otherwise left as
// written; the controller rejects invalid ones with an InvalidJob outcome.
func (p *jobPlan) resolve(baseDir string, cfg *config.Config, now time.Time) ([]schemas.UploadJob, error) {
	seen := make(map[string]bool, len(p.Jobs))
	jobs := make([]schemas.UploadJob, 0, len(p.Jobs))
	for i, job := range p.Jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if seen[job.ID] {
			return nil, fmt.Errorf("jobs[%d]: duplicate job id %q", i, job.ID)
		}
		seen[job.ID] = true

		if job.Session == "" {
			job.Session = p.Defaults.Session
		}
		if job.Session == "" {
			return nil, fmt.Errorf("jobs[%d] (%s): no session and no default session", i, job.ID)
		}
		if _, ok := cfg.Session(job.Session); !ok {
			return nil, fmt.Errorf("jobs[%d] (%s): session %q is not configured", i, job.ID, job.Session)
		}

		if job.MaxStageRetries == 0 {
			job.MaxStageRetries = p.Defaults.MaxStageRetries
		}
		if job.MaxStageRetries == 0 {
			job.MaxStageRetries = cfg.Workflow.DefaultMaxStageRetries
		}
		if job.MaxTotalDuration == 0 {
			job.MaxTotalDuration = p.Defaults.MaxTotalDuration
		}
		if job.MaxTotalDuration == 0 {
			job.MaxTotalDuration = cfg.Workflow.DefaultMaxTotalDuration
		}
		if len(p.Defaults.Hashtags) > 0 {
			job.Hashtags = append(append([]string(nil), job.Hashtags...), p.Defaults.Hashtags...)
		}
		if job.MediaPath != "" {
			if expanded, err := homedir.Expand(job.MediaPath); err == nil {
				job.MediaPath = expanded
			}
			if !filepath.IsAbs(job.MediaPath) {
				job.MediaPath = filepath.Join(baseDir, job.MediaPath)
			}
		}
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
