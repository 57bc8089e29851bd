package locator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser/browsertest"
)

// shapes holds, per target and chain position, a page in which only that
// position's shape is present. The element it must select has id "want".
// An empty entry is a position an earlier entry always shadows.
var shapes = map[schemas.SemanticTarget][]string{
	schemas.TargetFileInput: {
		`<form><input type="file" id="want"></form>`,
		`<form><input accept="video/mp4,video/webm" id="want"></form>`,
		"", // XPath form of the first entry
	},
	schemas.TargetUploadControl: {
		`<div><button aria-label="Select file" id="want">Upload</button></div>`,
		`<div><button data-e2e="select_video_button" id="want">Upload</button></div>`,
		`<div class="upload-card-wrapper"><p>Select video to upload</p><button id="want">Select video</button></div>`,
		`<div class="upload-card" id="want"><p>Drag and drop a file</p></div>`,
	},
	schemas.TargetCaptionEditor: {
		`<div class="editor"><div class="public-DraftEditor-content" contenteditable="true" id="want"></div></div>`,
		`<div class="caption-editor"><div contenteditable="true" id="want"></div></div>`,
		`<section><div contenteditable="true" id="want"></div></section>`,
		`<form><textarea name="caption" id="want"></textarea></form>`,
	},
	schemas.TargetMediaPreview: {
		`<div class="player-container"><video id="want"></video></div>`,
		`<div class="cover-container" id="want"></div>`,
		`<div class="thumbnail-container" id="want"></div>`,
		`<div data-e2e="video_preview" id="want"></div>`,
	},
	schemas.TargetShowMoreToggle: {
		`<div class="more-btn" id="want">Show more</div>`,
		`<div data-e2e="show_more" id="want">More options</div>`,
		`<p>Show more settings to control who sees this post.</p><span role="button" id="want">Show more</span>`,
	},
	schemas.TargetDisclosureToggle: {
		`<div data-e2e="aigc_container"><span>AI-generated content</span><div role="switch" aria-checked="false" id="want"></div></div>`,
		`<div><span>Label</span><button role="switch" aria-label="AI-generated content" id="want"></button></div>`,
		`<div><span>AI-generated content</span><p>Adds a label to your post.</p><div role="switch" id="want"></div></div>`,
		`<div class="aigc-container"><label>AIGC</label><input type="checkbox" id="want"></div>`,
	},
	schemas.TargetPrivacyEveryone: {
		`<div data-e2e="privacy_everyone" id="want">Everyone</div>`,
		`<div role="listbox"><div role="option" data-value="0" id="want">Everyone</div><div role="option" data-value="1">Friends</div></div>`,
		`<p>Who can watch this video? Everyone, or just friends.</p><div role="option" id="want">Everyone</div>`,
	},
	schemas.TargetPublishButton: {
		`<div class="btn-post"><button id="want">Post</button></div>`,
		`<div><button data-e2e="post_video_button" id="want">Post</button></div>`,
		`<div class="footer button-group"><button>Discard</button><button id="want"> Post </button></div>`,
		`<div><button aria-label="Post" id="want"><svg></svg></button></div>`,
	},
	schemas.TargetAccountIndicator: {
		`<header><div data-e2e="profile-icon" id="want"></div></header>`,
		`<iframe data-tt="Upload_index_iframe" id="want"></iframe>`,
		`<div class="upload-container" id="want"></div>`,
		`<header><img class="user-avatar" id="want"></header>`,
	},
	schemas.TargetGenericConfirm: {
		`<button id="outside">Turn on</button>
		 <div role="dialog"><h2>Turn on AI-generated content label?</h2><p>Labels help viewers.</p>
		 <button>Cancel</button><button id="want">Turn on</button></div>`,
		`<div role="dialog"><h2>Confirm your changes</h2><button>Back</button><button id="want">Confirm</button></div>`,
		`<div role="alertdialog"><p>Allow access to your microphone?</p><button>Block</button><button id="want"> Allow </button></div>`,
		`<div role="dialog"><p>Ready?</p><button class="TUXButton TUXButton--primary" id="want">OK</button></div>`,
	},
	schemas.TargetGenericCancel: {
		`<div role="dialog"><h2>Stay on this page to keep your edits?</h2><button>Discard</button><button id="want">Stay</button></div>`,
		`<div role="dialog"><p>Leave?</p><button>Discard</button><div role="button" id="want">Continue editing</div></div>`,
		`<div class="TUXModal"><p>Cancel the upload?</p><button>Discard</button><button id="want">Cancel</button></div>`,
		`<div role="dialog"><button class="TUXButton TUXButton--secondary" id="want">Not now</button></div>`,
	},
	schemas.TargetModalDialog: {
		`<div role="dialog" id="want"><p>Discard this post?</p></div>`,
		`<div role="alertdialog" id="want"><p>Something went wrong</p></div>`,
		`<div class="TUXModal" id="want"><p>Turn on label?</p></div>`,
		`<div class="upload-modal-container" id="want"><p>Notice</p></div>`,
	},
	schemas.TargetModalClose: {
		`<div role="dialog"><button aria-label="Close" id="want">x</button></div>`,
		`<div role="dialog"><span class="icon-close" id="want"></span></div>`,
		`<div class="TUXModal-closeButton" id="want"></div>`,
	},
	schemas.TargetSuccessIndicator: {
		`<div data-e2e="upload_success" id="want"></div>`,
		`<div class="toast"><span id="want">Your video has been uploaded. View it in Content.</span></div>`,
		`<div class="toast"><p id="want">Video published</p></div>`,
		`<nav><a href="/tiktokstudio/content" id="want">Manage your posts</a></nav>`,
	},
	schemas.TargetErrorIndicator: {
		`<div data-e2e="upload_error" id="want"></div>`,
		`<div class="upload-error-banner" id="want">Something went wrong</div>`,
		`<div class="banner"><span id="want">Upload failed. Unsupported format.</span></div>`,
		`<div class="banner"><span id="want">Couldn't post. Try again later.</span></div>`,
	},
}

// Each chain position, run against markup of its own shape, selects the
// intended element first and no earlier position selects anything.
func TestDefaultTableAgainstMarkup(t *testing.T) {
	table := DefaultTable()
	for _, target := range schemas.AllTargets {
		pages, ok := shapes[target]
		require.True(t, ok, "no markup shapes for %s", target)
		require.Len(t, pages, len(table[target]), "one shape per chain position for %s", target)

		for i, src := range pages {
			if src == "" {
				continue
			}
			t.Run(fmt.Sprintf("%s/%d", target, i+1), func(t *testing.T) {
				m, err := browsertest.ParseMarkup("<html><body>" + src + "</body></html>")
				require.NoError(t, err)

				for j := 0; j < i; j++ {
					ids, err := m.IDs(table[target][j])
					require.NoError(t, err)
					assert.Empty(t, ids, "position %d (%s) matched shape %d", j+1, table[target][j].Key(), i+1)
				}
				ids, err := m.IDs(table[target][i])
				require.NoError(t, err)
				require.NotEmpty(t, ids, "%s selected nothing", table[target][i].Key())
				assert.Equal(t, "want", ids[0], "%s selected %v", table[target][i].Key(), ids)
			})
		}
	}
}

// The disclosure dialog repeats its button label in the heading and a
// "Turn on" control sits outside it. Only the dialog button may be picked.
func TestConfirmChainPicksDialogButtonOverHeading(t *testing.T) {
	m := browsertest.MustParseMarkup(`<html><body>
		<div class="settings"><button id="outside">Turn on</button></div>
		<div role="dialog" id="dialog">
			<h2 id="title">Turn on AI-generated content label?</h2>
			<p>Labels help viewers understand your content.</p>
			<button id="cancel">Cancel</button>
			<button id="turn-on">Turn on</button>
		</div>
	</body></html>`)

	for _, spec := range DefaultTable()[schemas.TargetGenericConfirm] {
		ids, err := m.IDs(spec)
		require.NoError(t, err)
		assert.NotContains(t, ids, "title", spec.Key())
		assert.NotContains(t, ids, "outside", spec.Key())
	}
	ids, err := m.IDs(DefaultTable()[schemas.TargetGenericConfirm][0])
	require.NoError(t, err)
	assert.Equal(t, []string{"turn-on"}, ids)
}

func TestTextStrategyAgainstMarkup(t *testing.T) {
	tests := []struct {
		name   string
		needle string
		markup string
		want   []string
	}{
		{
			name:   "exact button beats heading that contains the label",
			needle: "Turn on",
			markup: `<h2 id="h">Turn on AI-generated content label?</h2><button id="b">Turn on</button>`,
			want:   []string{"b"},
		},
		{
			name:   "case and spacing are ignored",
			needle: "continue   EDITING",
			markup: `<div role="button" id="b">  Continue editing </div>`,
			want:   []string{"b"},
		},
		{
			name:   "falls back to substring without an exact control",
			needle: "Video published",
			markup: `<div id="d"><span id="s">Video published to your profile</span></div>`,
			want:   []string{"s"},
		},
		{
			name:   "apostrophes survive quoting",
			needle: "Couldn't post",
			markup: `<p id="p">Couldn't post. Try again later.</p>`,
			want:   []string{"p"},
		},
		{
			name:   "a label inside a longer button is not exact",
			needle: "Post",
			markup: `<button id="b1">Post later</button><p id="p">Post</p>`,
			want:   []string{"b1", "p"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := browsertest.MustParseMarkup("<html><body>" + tt.markup + "</body></html>")
			ids, err := m.IDs(schemas.Text(tt.needle))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}
