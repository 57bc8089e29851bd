package schemas

import "time"

// -- Workflow Stages --

// Stage identifies one discrete step of the publish workflow.
type Stage string

const (
	StageSessionReady      Stage = "SessionReady"
	StageFileSubmitted     Stage = "FileSubmitted"
	StageProcessingWait    Stage = "ProcessingWait"
	StageOptionsExpanded   Stage = "OptionsExpanded"
	StageDisclosureToggled Stage = "DisclosureToggled"
	StageCaptionEntered    Stage = "CaptionEntered"
	StagePrePublishDelay   Stage = "PrePublishDelay"
	StagePublished         Stage = "Published"
)

// StageOrder is the fixed order the controller advances through.
var StageOrder = []Stage{
	StageSessionReady,
	StageFileSubmitted,
	StageProcessingWait,
	StageOptionsExpanded,
	StageDisclosureToggled,
	StageCaptionEntered,
	StagePrePublishDelay,
	StagePublished,
}

// StageStatus is the verified result of a single stage.
type StageStatus string

const (
	StatusOK       StageStatus = "ok"
	StatusDegraded StageStatus = "degraded"
	StatusFailed   StageStatus = "failed"
)

// StageResult records how one stage ended. Results are appended to the trace
// and never modified afterwards.
type StageResult struct {
	Stage         Stage       `json:"stage"`
	Status        StageStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	ElapsedMs     int64       `json:"elapsed_ms"`
	ScreenshotRef string      `json:"screenshot_ref,omitempty"`
	Detail        string      `json:"detail,omitempty"`
	// Strategy is the 1-based chain position of the LocatorSpec that resolved
	// the stage's primary target, 0 if no target was resolved.
	Strategy int `json:"strategy,omitempty"`
}

// -- Outcomes --

// FinalStatus is the terminal state of a job.
type FinalStatus string

const (
	FinalPublished FinalStatus = "Published"
	FinalFailed    FinalStatus = "Failed"
	FinalCancelled FinalStatus = "Cancelled"
)

// ErrorKind classifies why a job did not cleanly publish.
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindLocatorMiss        ErrorKind = "LocatorMiss"
	ErrorKindStaleElement       ErrorKind = "StaleElement"
	ErrorKindStageTimeout       ErrorKind = "StageTimeout"
	ErrorKindModalUnclassified  ErrorKind = "ModalUnclassified"
	ErrorKindRequiresManualAuth ErrorKind = "RequiresManualAuth"
	ErrorKindPlatformError      ErrorKind = "PlatformError"
	ErrorKindDriverError        ErrorKind = "DriverError"
	ErrorKindInvalidJob         ErrorKind = "InvalidJob"
)

// UploadOutcome is the single serializable record produced for every job.
type UploadOutcome struct {
	JobID        string        `json:"job_id"`
	Session      string        `json:"session,omitempty"`
	FinalStatus  FinalStatus   `json:"final_status"`
	StageTrace   []StageResult `json:"stage_trace"`
	PublishedURL string        `json:"published_url,omitempty"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty"`
	FailedStage  Stage         `json:"failed_stage,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	// DegradedSuccess marks a Published outcome where neither a success nor an
	// error signal was observed after the publish click. Needs operator
	// confirmation.
	DegradedSuccess bool      `json:"degraded_success,omitempty"`
	Artifacts       []string  `json:"artifacts,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// LastScreenshot returns the most recent screenshot reference in the trace.
func (o UploadOutcome) LastScreenshot() string {
	for i := len(o.StageTrace) - 1; i >= 0; i-- {
		if o.StageTrace[i].ScreenshotRef != "" {
			return o.StageTrace[i].ScreenshotRef
		}
	}
	return ""
}

// Duration is the wall-clock time the job took.
func (o UploadOutcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() || o.StartedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}
