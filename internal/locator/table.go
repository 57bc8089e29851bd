// internal/locator/table.go
package locator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// Table maps each semantic target to its fallback chain, most reliable
// shape first. Chains are never reordered at runtime.
type Table map[schemas.SemanticTarget][]schemas.LocatorSpec

// DefaultTable returns the built-in chains for the upload studio.
func DefaultTable() Table {
	css, text, aria, testid, xpath := schemas.CSS, schemas.Text, schemas.Aria, schemas.TestID, schemas.XPath

	return Table{
		schemas.TargetFileInput: {
			css(`input[type="file"]`).Hidden(),
			css(`input[accept*="video"]`).Hidden(),
			xpath(`//input[@type="file"]`).Hidden(),
		},
		schemas.TargetUploadControl: {
			aria("Select file").AnyState(),
			testid("select_video_button").AnyState(),
			text("Select video").AnyState(),
			css(`div.upload-card`).AnyState(),
		},
		schemas.TargetCaptionEditor: {
			css(`div.public-DraftEditor-content`),
			css(`div.caption-editor [contenteditable="true"]`),
			css(`div[contenteditable="true"]`),
			css(`textarea[name="caption"]`),
		},
		schemas.TargetMediaPreview: {
			css(`div.player-container video`).AnyState(),
			css(`.cover-container`).AnyState(),
			css(`.thumbnail-container`).AnyState(),
			testid("video_preview").AnyState(),
		},
		schemas.TargetShowMoreToggle: {
			css(`div.more-btn`),
			testid("show_more"),
			text("Show more"),
		},
		schemas.TargetDisclosureToggle: {
			css(`div[data-e2e="aigc_container"] [role="switch"]`),
			aria("AI-generated content"),
			xpath(`//*[contains(normalize-space(.), "AI-generated content")]/following::*[@role="switch"][1]`),
			css(`div.aigc-container input[type="checkbox"]`).Hidden(),
		},
		schemas.TargetPrivacyEveryone: {
			testid("privacy_everyone"),
			css(`[role="option"][data-value="0"]`),
			text("Everyone"),
		},
		schemas.TargetPublishButton: {
			css(`div.btn-post > button`),
			testid("post_video_button"),
			xpath(`//div[contains(@class, "button-group")]/button[normalize-space(.)="Post"]`),
			aria("Post"),
		},
		schemas.TargetAccountIndicator: {
			testid("profile-icon").Hidden(),
			css(`iframe[data-tt="Upload_index_iframe"]`).Hidden(),
			css(`div.upload-container`).Hidden(),
			css(`img[class*="avatar"]`).Hidden(),
		},
		schemas.TargetGenericConfirm: {
			dialogButton("Turn on"),
			dialogButton("Confirm"),
			dialogButton("Allow"),
			css(`[role="dialog"] button.TUXButton--primary`),
		},
		schemas.TargetGenericCancel: {
			dialogButton("Stay"),
			dialogButton("Continue editing"),
			dialogButton("Cancel"),
			css(`[role="dialog"] button.TUXButton--secondary`),
		},
		schemas.TargetModalDialog: {
			css(`[role="dialog"]`),
			css(`[role="alertdialog"]`),
			css(`div.TUXModal`),
			css(`div[class*="modal-container"]`),
		},
		schemas.TargetModalClose: {
			aria("Close"),
			css(`[role="dialog"] [class*="close"]`),
			css(`div.TUXModal-closeButton`),
		},
		schemas.TargetSuccessIndicator: {
			testid("upload_success").AnyState(),
			text("Your video has been uploaded").AnyState(),
			text("Video published").AnyState(),
			text("Manage your posts").AnyState(),
		},
		schemas.TargetErrorIndicator: {
			testid("upload_error").AnyState(),
			css(`div[class*="upload-error"]`).AnyState(),
			text("Upload failed").AnyState(),
			text("Couldn't post").AnyState(),
		},
	}
}

// dialogScope matches any open dialog container.
const dialogScope = `//*[@role="dialog" or @role="alertdialog" or contains(@class, "TUXModal")]`

// dialogButton matches a button inside a dialog whose whole label is label,
// ignoring case and spacing.
func dialogButton(label string) schemas.LocatorSpec {
	return schemas.XPath(fmt.Sprintf(
		`%s//*[self::button or @role="button"][translate(normalize-space(.), "ABCDEFGHIJKLMNOPQRSTUVWXYZ", "abcdefghijklmnopqrstuvwxyz")="%s"]`,
		dialogScope, strings.ToLower(label)))
}

// Chain returns a copy of the target's chain.
func (t Table) Chain(target schemas.SemanticTarget) []schemas.LocatorSpec {
	return append([]schemas.LocatorSpec(nil), t[target]...)
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for target, chain := range t {
		out[target] = append([]schemas.LocatorSpec(nil), chain...)
	}
	return out
}

// Targets returns the targets present in the table in a stable order.
func (t Table) Targets() []schemas.SemanticTarget {
	out := make([]schemas.SemanticTarget, 0, len(t))
	for target := range t {
		out = append(out, target)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate reports every unknown target, empty chain and malformed spec.
func (t Table) Validate() error {
	var errs []error
	for _, target := range t.Targets() {
		if !target.Valid() {
			errs = append(errs, fmt.Errorf("unknown target %q", target))
			continue
		}
		chain := t[target]
		if len(chain) == 0 {
			errs = append(errs, fmt.Errorf("target %q has an empty chain", target))
		}
		for i, spec := range chain {
			if err := spec.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("target %q entry %d: %w", target, i+1, err))
			}
		}
	}
	return errors.Join(errs...)
}

// -- Overrides --

// Override adds entries to one target's chain.
type Override struct {
	Prepend []schemas.LocatorSpec `yaml:"prepend"`
	Append  []schemas.LocatorSpec `yaml:"append"`
}

// OverrideFile is the on-disk shape of a locator overrides file.
type OverrideFile struct {
	Targets map[schemas.SemanticTarget]Override `yaml:"targets"`
}

// overrideSpec decodes an override entry with both interactability flags
// defaulting to true.
type overrideSpec schemas.LocatorSpec

func (s *overrideSpec) UnmarshalYAML(node *yaml.Node) error {
	spec := schemas.LocatorSpec{RequiresVisible: true, RequiresEnabled: true}
	if err := node.Decode(&spec); err != nil {
		return err
	}
	*s = overrideSpec(spec)
	return nil
}

type rawOverride struct {
	Prepend []overrideSpec `yaml:"prepend"`
	Append  []overrideSpec `yaml:"append"`
}

// ParseOverrides decodes an overrides document. Unknown fields are errors.
func ParseOverrides(r io.Reader) (OverrideFile, error) {
	var raw struct {
		Targets map[schemas.SemanticTarget]rawOverride `yaml:"targets"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return OverrideFile{}, fmt.Errorf("failed to parse locator overrides: %w", err)
	}

	out := OverrideFile{Targets: make(map[schemas.SemanticTarget]Override, len(raw.Targets))}
	for target, o := range raw.Targets {
		var ov Override
		for _, s := range o.Prepend {
			ov.Prepend = append(ov.Prepend, schemas.LocatorSpec(s))
		}
		for _, s := range o.Append {
			ov.Append = append(ov.Append, schemas.LocatorSpec(s))
		}
		out.Targets[target] = ov
	}
	return out, nil
}

// Apply returns a new table with the overrides merged in. The receiver is
// left untouched.
func (t Table) Apply(o OverrideFile) (Table, error) {
	out := t.Clone()
	for target, ov := range o.Targets {
		if !target.Valid() {
			return nil, fmt.Errorf("locator overrides: unknown target %q", target)
		}
		chain := make([]schemas.LocatorSpec, 0, len(ov.Prepend)+len(out[target])+len(ov.Append))
		chain = append(chain, ov.Prepend...)
		chain = append(chain, out[target]...)
		chain = append(chain, ov.Append...)
		out[target] = chain
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("locator overrides: %w", err)
	}
	return out, nil
}

// Load reads an overrides file and applies it to the default table. An
// empty path yields the default table.
func Load(path string) (Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand overrides path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read locator overrides: %w", err)
	}
	o, err := ParseOverrides(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return table.Apply(o)
}

// Marshal renders the table as YAML, in the same shape the overrides file
// uses for its entries.
func (t Table) Marshal() ([]byte, error) {
	doc := make(map[string][]schemas.LocatorSpec, len(t))
	for target, chain := range t {
		doc[string(target)] = chain
	}
	return yaml.Marshal(map[string]interface{}{"targets": doc})
}
