package schemas_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// TestStructJSONTags uses reflection to verify the `json` tags of the
// persisted records. Outcome files and database rows depend on them.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "UploadOutcome",
			structRef: schemas.UploadOutcome{},
			expectedTags: map[string]string{
				"JobID":           "job_id",
				"Session":         "session,omitempty",
				"FinalStatus":     "final_status",
				"StageTrace":      "stage_trace",
				"PublishedURL":    "published_url,omitempty",
				"ErrorKind":       "error_kind,omitempty",
				"FailedStage":     "failed_stage,omitempty",
				"ErrorMessage":    "error_message,omitempty",
				"DegradedSuccess": "degraded_success,omitempty",
				"Artifacts":       "artifacts,omitempty",
				"StartedAt":       "started_at",
				"FinishedAt":      "finished_at",
			},
		},
		{
			name:      "StageResult",
			structRef: schemas.StageResult{},
			expectedTags: map[string]string{
				"Stage":         "stage",
				"Status":        "status",
				"Attempts":      "attempts",
				"ElapsedMs":     "elapsed_ms",
				"ScreenshotRef": "screenshot_ref,omitempty",
				"Detail":        "detail,omitempty",
				"Strategy":      "strategy,omitempty",
			},
		},
		{
			name:      "UploadJob",
			structRef: schemas.UploadJob{},
			expectedTags: map[string]string{
				"ID":                 "id",
				"Session":            "session",
				"MediaPath":          "media_path",
				"Caption":            "caption",
				"Hashtags":           "hashtags,omitempty",
				"DisclosureRequired": "disclosure_required",
				"MaxStageRetries":    "max_stage_retries",
				"MaxTotalDuration":   "max_total_duration",
				"CreatedAt":          "created_at",
			},
		},
		{
			name:      "SessionCookie",
			structRef: schemas.SessionCookie{},
			expectedTags: map[string]string{
				"Name":     "name",
				"Value":    "value",
				"Domain":   "domain",
				"Path":     "path",
				"Expires":  "expires,omitempty",
				"HTTPOnly": "httpOnly",
				"Secure":   "secure",
				"SameSite": "sameSite,omitempty",
			},
		},
		{
			name:      "LocatorSpec",
			structRef: schemas.LocatorSpec{},
			expectedTags: map[string]string{
				"Strategy":        "strategy",
				"Expression":      "expression",
				"RequiresVisible": "requires_visible",
				"RequiresEnabled": "requires_enabled",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			typ := reflect.TypeOf(tc.structRef)
			assert.Equal(t, len(tc.expectedTags), typ.NumField(), "every field must be covered")
			for fieldName, expectedTag := range tc.expectedTags {
				field, found := typ.FieldByName(fieldName)
				if assert.True(t, found, "Field %s not found in struct %s", fieldName, tc.name) {
					assert.Equal(t, expectedTag, field.Tag.Get("json"), "JSON tag mismatch for field %s in struct %s", fieldName, tc.name)
				}
			}
		})
	}
}
