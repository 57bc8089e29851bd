// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/browser/browsertest"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/engine"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/service"
	"github.com/xkilldash9x/reelpost/internal/store"
)

// -- Mock Implementations --

type mockComponentFactory struct {
	mock.Mock
}

func (m *mockComponentFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*service.Components, error) {
	args := m.Called(ctx, cfg, logger)
	c, _ := args.Get(0).(*service.Components)
	return c, args.Error(1)
}

// stubRunner publishes every job except those listed in fail.
type stubRunner struct {
	fail map[string]bool
}

func (r stubRunner) Run(_ context.Context, job schemas.UploadJob) schemas.UploadOutcome {
	out := schemas.UploadOutcome{JobID: job.ID, Session: job.Session, StageTrace: []schemas.StageResult{}}
	if r.fail[job.ID] {
		out.FinalStatus = schemas.FinalFailed
		out.ErrorKind = schemas.ErrorKindLocatorMiss
		out.FailedStage = schemas.StageFileSubmitted
		out.ErrorMessage = "file_input not found"
		return out
	}
	out.FinalStatus = schemas.FinalPublished
	out.PublishedURL = "https://studio.example/content/" + job.ID
	return out
}

type stubSessions struct {
	runner stubRunner
}

func (s stubSessions) Open(context.Context, string) (engine.Runner, func() error, error) {
	return s.runner, func() error { return nil }, nil
}

type memReporter struct {
	mu  sync.Mutex
	got []schemas.UploadOutcome
}

func (r *memReporter) Report(_ context.Context, o schemas.UploadOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, o)
	return nil
}

func stubComponents(t *testing.T, fail ...string) (*service.Components, *memReporter) {
	t.Helper()
	failing := make(map[string]bool)
	for _, id := range fail {
		failing[id] = true
	}
	rep := &memReporter{}
	cfg := config.NewDefaultConfig().Engine
	cfg.Cooldown = 0
	d, err := engine.New(stubSessions{runner: stubRunner{fail: failing}}, rep, cfg, zap.NewNop())
	require.NoError(t, err)
	return &service.Components{Dispatcher: d}, rep
}

// writeConfig writes a config file with one session "main" and returns its
// path and directory.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cookies := filepath.Join(dir, "main.json")
	require.NoError(t, os.WriteFile(cookies, []byte(`[]`), 0o600))
	doc := "logger:\n  level: error\n" +
		"sessions:\n  - name: main\n    cookie_file: " + cookies + "\n" +
		"reporting:\n  output_dir: " + filepath.Join(dir, "out") + "\n" +
		"  sqlite_path: " + filepath.Join(dir, "outcomes.db") + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path, dir
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Sessions = []config.SessionConfig{{Name: "main", CookieFile: "main.json"}, {Name: "alt", CookieFile: "alt.json"}}
	return cfg
}

// -- Root --

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, &app{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "reelpost "+Version+"\n", out)

	out, err = execute(t, &app{}, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser:\n  driver: firefox\n"), 0o600))

	_, err := execute(t, &app{}, "locators", "-c", path)
	assert.ErrorContains(t, err, "browser.driver")
}

func TestRootRejectsUnreadableConfig(t *testing.T) {
	_, err := execute(t, &app{}, "locators", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to initialize configuration")
}

// -- Publish --

func TestPublishOptionsJob(t *testing.T) {
	cfg := config.NewDefaultConfig()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	opts := &publishOptions{session: "main", media: "clip.mp4", hashtags: []string{"go"}}
	job := opts.job(cfg, now)
	assert.NotEmpty(t, job.ID, "a missing id gets a UUID")
	assert.Equal(t, cfg.Workflow.DefaultMaxStageRetries, job.MaxStageRetries)
	assert.Equal(t, cfg.Workflow.DefaultMaxTotalDuration, job.MaxTotalDuration)
	assert.Equal(t, now, job.CreatedAt)

	opts = &publishOptions{id: "fixed", session: "main", media: "clip.mp4", maxRetries: 5, maxDuration: time.Minute, disclosure: true}
	job = opts.job(cfg, now)
	assert.Equal(t, "fixed", job.ID)
	assert.Equal(t, 5, job.MaxStageRetries)
	assert.Equal(t, time.Minute, job.MaxTotalDuration)
	assert.True(t, job.DisclosureRequired)
}

func TestPublishCommand(t *testing.T) {
	path, _ := writeConfig(t)
	components, rep := stubComponents(t)
	f := new(mockComponentFactory)
	f.On("Create", mock.Anything, mock.AnythingOfType("*config.Config"), mock.AnythingOfType("*zap.Logger")).Return(components, nil)

	out, err := execute(t, &app{factory: f}, "publish", "-c", path, "-s", "main", "-m", "clip.mp4", "--id", "job-7", "--hashtag", "go,cli")
	require.NoError(t, err)
	assert.Contains(t, out, "job-7")
	assert.Contains(t, out, "https://studio.example/content/job-7")
	require.Len(t, rep.got, 1)
	assert.Equal(t, schemas.FinalPublished, rep.got[0].FinalStatus)
	f.AssertExpectations(t)
}

func TestPublishCommandRequiresFlags(t *testing.T) {
	path, _ := writeConfig(t)
	_, err := execute(t, &app{factory: new(mockComponentFactory)}, "publish", "-c", path, "-m", "clip.mp4")
	assert.ErrorContains(t, err, "session")
}

func TestRunJobs(t *testing.T) {
	ctx := context.Background()
	jobs := []schemas.UploadJob{{ID: "a", Session: "main"}, {ID: "b", Session: "main"}}

	t.Run("failed job fails the command", func(t *testing.T) {
		components, _ := stubComponents(t, "b")
		f := new(mockComponentFactory)
		f.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(components, nil)

		var out bytes.Buffer
		err := runJobs(ctx, zap.NewNop(), testConfig(), f, jobs, &out, false)
		assert.ErrorIs(t, err, ErrJobsFailed)
		assert.ErrorContains(t, err, "1 of 2")
		assert.Contains(t, out.String(), "LocatorMiss at FileSubmitted: file_input not found")
	})

	t.Run("json output", func(t *testing.T) {
		components, _ := stubComponents(t)
		f := new(mockComponentFactory)
		f.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(components, nil)

		var out bytes.Buffer
		require.NoError(t, runJobs(ctx, zap.NewNop(), testConfig(), f, jobs, &out, true))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		var o schemas.UploadOutcome
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &o))
		assert.Equal(t, "b", o.JobID)
		assert.Equal(t, schemas.FinalPublished, o.FinalStatus)
	})

	t.Run("factory error", func(t *testing.T) {
		boom := errors.New("chrome not found")
		f := new(mockComponentFactory)
		f.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

		err := runJobs(ctx, zap.NewNop(), testConfig(), f, jobs, &bytes.Buffer{}, false)
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "failed to initialize components")
	})
}

func TestOutcomeDetail(t *testing.T) {
	assert.Equal(t, "degraded: ", outcomeDetail(schemas.UploadOutcome{FinalStatus: schemas.FinalPublished, DegradedSuccess: true}))
	assert.Equal(t, "", outcomeDetail(schemas.UploadOutcome{FinalStatus: schemas.FinalCancelled}))

	failed := schemas.UploadOutcome{
		FinalStatus:  schemas.FinalFailed,
		ErrorKind:    schemas.ErrorKindStageTimeout,
		FailedStage:  schemas.StageProcessingWait,
		ErrorMessage: "processing not finished",
		StageTrace: []schemas.StageResult{
			{Stage: schemas.StageFileSubmitted, Status: schemas.StatusOK},
			{Stage: schemas.StageProcessingWait, Status: schemas.StatusFailed, ScreenshotRef: "outcomes/artifacts/j1/ProcessingWait.png"},
		},
	}
	assert.Equal(t, "StageTimeout at ProcessingWait: processing not finished [outcomes/artifacts/j1/ProcessingWait.png]", outcomeDetail(failed))
}

// -- Run --

func TestParsePlanErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":         "",
		"no jobs":       "defaults:\n  session: main\n",
		"unknown field": "jobs:\n  - media: x.mp4\n",
		"bad duration":  "defaults:\n  max_total_duration: soon\njobs:\n  - media_path: x.mp4\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parsePlan(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()
	plan := `
defaults:
  session: main
  max_total_duration: 20m
  hashtags: [daily]
jobs:
  - id: one
    media_path: clips/one.mp4
    caption: first
    hashtags: [go]
  - media_path: /abs/two.mp4
    session: alt
    max_stage_retries: 7
    disclosure_required: true
`
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(plan), 0o600))
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	cfg := testConfig()

	jobs, err := loadPlan(path, cfg, now)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "one", jobs[0].ID)
	assert.Equal(t, "main", jobs[0].Session)
	assert.Equal(t, filepath.Join(dir, "clips/one.mp4"), jobs[0].MediaPath)
	assert.Equal(t, []string{"go", "daily"}, jobs[0].Hashtags)
	assert.Equal(t, 20*time.Minute, jobs[0].MaxTotalDuration)
	assert.Equal(t, cfg.Workflow.DefaultMaxStageRetries, jobs[0].MaxStageRetries)
	assert.Equal(t, now, jobs[0].CreatedAt)

	assert.NotEmpty(t, jobs[1].ID)
	assert.Equal(t, "alt", jobs[1].Session)
	assert.Equal(t, "/abs/two.mp4", jobs[1].MediaPath)
	assert.Equal(t, 7, jobs[1].MaxStageRetries)
	assert.True(t, jobs[1].DisclosureRequired)
}

func TestLoadPlanRejects(t *testing.T) {
	cfg := testConfig()
	for name, doc := range map[string]string{
		"duplicate id":    "jobs:\n  - {id: a, session: main}\n  - {id: a, session: main}\n",
		"no session":      "jobs:\n  - {id: a}\n",
		"unknown session": "jobs:\n  - {id: a, session: ghost}\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "plan.yaml")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
			_, err := loadPlan(path, cfg, time.Now())
			assert.Error(t, err)
		})
	}
}

func TestRunCommand(t *testing.T) {
	path, dir := writeConfig(t)
	plan := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(plan, []byte("defaults:\n  session: main\njobs:\n  - {id: a, media_path: a.mp4}\n  - {id: b, media_path: b.mp4}\n"), 0o600))

	components, rep := stubComponents(t)
	f := new(mockComponentFactory)
	f.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(components, nil)

	_, err := execute(t, &app{factory: f}, "run", "-c", path, plan)
	require.NoError(t, err)
	require.Len(t, rep.got, 2)
	assert.Equal(t, "a", rep.got[0].JobID)
	assert.Equal(t, "b", rep.got[1].JobID)
}

// -- Locators --

func TestLocatorsPrintsTable(t *testing.T) {
	path, _ := writeConfig(t)
	out, err := execute(t, &app{}, "locators", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "targets:")
	assert.Contains(t, out, string(schemas.TargetFileInput))
}

func TestCheckLocators(t *testing.T) {
	path, _ := writeConfig(t)
	cfg := config.NewDefaultConfig()
	cfg.Sessions = []config.SessionConfig{{Name: "main", CookieFile: filepath.Join(filepath.Dir(path), "main.json")}}
	table := locator.DefaultTable()

	l := &browsertest.Launcher{Setup: func(_ int, p *browsertest.Page) {
		p.Add(&browsertest.Node{
			ID:      "avatar",
			Matches: []string{table[schemas.TargetAccountIndicator][0].Key()},
			Visible: true, Enabled: true,
		})
	}}
	launch := func(config.BrowserConfig, *zap.Logger) (browser.Launcher, error) { return l, nil }

	var out bytes.Buffer
	opts := &locatorsOptions{checkURL: "https://www.tiktok.com/tiktokstudio/upload", session: "main"}
	require.NoError(t, checkLocators(context.Background(), cfg, table, opts, launch, &out))
	assert.Contains(t, out.String(), "TARGET")
	assert.Regexp(t, `account_indicator\s+true\s+1/`, out.String())
	require.Len(t, l.Pages(), 1)
	assert.True(t, l.Pages()[0].Closed())

	opts.session = "ghost"
	err := checkLocators(context.Background(), cfg, table, opts, launch, &bytes.Buffer{})
	assert.ErrorIs(t, err, service.ErrUnknownSession)
}

// -- History --

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, ":memory:", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	o := schemas.UploadOutcome{JobID: "job-1", FinalStatus: schemas.FinalPublished, StageTrace: []schemas.StageResult{},
		StartedAt: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), FinishedAt: time.Date(2026, 5, 4, 9, 3, 0, 0, time.UTC)}
	require.NoError(t, s.Report(ctx, o))

	var out bytes.Buffer
	require.NoError(t, printHistory(ctx, s, "job-1", &out))
	var got schemas.UploadOutcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "job-1", got.JobID)

	assert.ErrorContains(t, printHistory(ctx, s, "nope", &bytes.Buffer{}), "no outcomes recorded")
}

func TestOpenOutcomeStoreRequiresDatabase(t *testing.T) {
	_, err := openOutcomeStore(context.Background(), config.ReportingConfig{}, zap.NewNop())
	assert.ErrorContains(t, err, "no outcome database is configured")
}
