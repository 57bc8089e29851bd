package modal

import (
	"context"
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/browser/browsertest"
	"github.com/xkilldash9x/reelpost/internal/config"
	"github.com/xkilldash9x/reelpost/internal/humanoid"
	"github.com/xkilldash9x/reelpost/internal/locator"
)

// -- Classifier --

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Kind
	}{
		{"Discard unsaved changes?", KindExit},
		{"Are you sure you want to leave? Changes you made may not be saved.", KindExit},
		{"Turn on AI-generated content label?", KindDisclosure},
		{"This content must DISCLOSE its origin", KindDisclosure},
		{"Upload failed. Please try again.", KindError},
		{"Your video couldn’t be posted", KindError},
		{"Your video has been uploaded", KindSuccess},
		{"  Video\n\tpublished  ", KindSuccess},
		{"Rate your experience", KindUnknown},
		{"", KindUnknown},
		{"   ", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text).Kind)
		})
	}
}

func TestClassifyRanking(t *testing.T) {
	assert.Equal(t, KindExit, Classify("Discard this AI-generated draft?").Kind, "exit outranks disclosure")
	assert.Equal(t, KindError, Classify("Video could not be published").Kind, "error outranks success")

	c := Classify("Discard unsaved changes?")
	assert.Equal(t, "discard", c.Keyword)
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(config.ModalConfig{SuccessKeywords: []string{"hooray"}})
	assert.Equal(t, KindSuccess, rules.Classify("Hooray!").Kind)
	assert.Equal(t, KindUnknown, rules.Classify("Your video has been uploaded").Kind, "replaced, not merged")
	assert.Equal(t, KindExit, rules.Classify("Discard?").Kind, "other kinds keep defaults")

	defaults := DefaultRules()
	assert.Equal(t, KindSuccess, defaults.Classify("uploaded").Kind, "defaults untouched")
}

func FuzzClassify(f *testing.F) {
	f.Add([]byte("Discard unsaved changes?"))
	f.Add([]byte("Turn on AI-generated content label?"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		text, err := c.GetString()
		if err != nil {
			return
		}
		var cfg config.ModalConfig
		_ = c.GenerateStruct(&cfg)

		got := RulesFromConfig(cfg).Classify(text)
		switch got.Kind {
		case KindExit, KindDisclosure, KindError, KindSuccess:
			require.NotEmpty(t, got.Keyword)
		case KindUnknown:
			require.Empty(t, got.Keyword)
		default:
			t.Fatalf("unexpected kind %q", got.Kind)
		}
		// Deterministic.
		require.Equal(t, got, RulesFromConfig(cfg).Classify(text))
	})
}

// -- Resolver --

type fixture struct {
	page     *browsertest.Page
	policy   *humanoid.Instant
	resolver *Resolver
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	page := browsertest.NewPage()
	policy := humanoid.NewInstant()
	engine := locator.NewEngine(page, locator.DefaultTable(), zap.NewNop())
	return &fixture{
		page:     page,
		policy:   policy,
		resolver: NewResolver(page, engine, policy, nil, zap.New(core)),
		logs:     logs,
	}
}

func key(target schemas.SemanticTarget, i int) string {
	return locator.DefaultTable()[target][i].Key()
}

func (f *fixture) dialog(text string) {
	f.page.Add(&browsertest.Node{
		ID: "dialog", Matches: []string{key(schemas.TargetModalDialog, 0)},
		Visible: true, Enabled: true, Text: text,
	})
}

func (f *fixture) button(id string, target schemas.SemanticTarget, i int, closesDialog bool) {
	n := &browsertest.Node{ID: id, Matches: []string{key(target, i)}, Visible: true, Enabled: true}
	if closesDialog {
		n.OnClick = func(p *browsertest.Page) { p.Remove("dialog") }
	}
	f.page.Add(n)
}

func TestResolveNoModalIsSideEffectFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := f.resolver.Resolve(ctx)
		require.NoError(t, err)
		assert.False(t, res.Present)
		assert.Equal(t, KindNone, res.Kind)
	}
	assert.Empty(t, f.page.Clicks())
	assert.Empty(t, f.page.Keys())
	assert.Empty(t, f.policy.Delays(), "no waiting when nothing is there")
	assert.Equal(t, 2*len(locator.DefaultTable()[schemas.TargetModalDialog]), f.page.Queries())
}

func TestResolveDisclosureClicksTurnOn(t *testing.T) {
	f := newFixture(t)
	f.dialog("Turn on AI-generated content label?")
	f.button("turn-on", schemas.TargetGenericConfirm, 0, true)

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Present)
	assert.Equal(t, KindDisclosure, res.Kind)
	assert.Equal(t, ActionConfirm, res.Action)
	assert.Equal(t, []string{"turn-on"}, f.page.Clicks())
	assert.Len(t, f.policy.Moves(), 1, "pointer travels to the button")
	assert.Nil(t, f.page.Node("dialog"))

	entries := f.logs.FilterMessage("Dialog detected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ai-generated", entries[0].ContextMap()["keyword"])
}

// The dialog title repeats the button label. Nodes take their matches from
// the markup, so the real chain expressions decide what gets clicked.
func TestResolveDisclosureAgainstMarkup(t *testing.T) {
	f := newFixture(t)
	m := browsertest.MustParseMarkup(`<html><body>
		<div role="dialog" id="dialog">
			<h2 id="title">Turn on AI-generated content label?</h2>
			<button id="cancel">Cancel</button>
			<button id="turn-on">Turn on</button>
		</div></body></html>`)
	table := locator.DefaultTable()
	node := func(id string, target schemas.SemanticTarget) *browsertest.Node {
		return &browsertest.Node{ID: id, Matches: m.Keys(id, table[target]...), Visible: true, Enabled: true, Text: m.Text(id)}
	}
	dialog := node("dialog", schemas.TargetModalDialog)
	require.NotEmpty(t, dialog.Matches)
	turnOn := node("turn-on", schemas.TargetGenericConfirm)
	turnOn.OnClick = func(p *browsertest.Page) { p.Remove("dialog") }
	f.page.Add(dialog, node("title", schemas.TargetGenericConfirm), node("cancel", schemas.TargetGenericConfirm), turnOn)

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindDisclosure, res.Kind)
	assert.Equal(t, []string{"turn-on"}, f.page.Clicks())
	assert.Nil(t, f.page.Node("dialog"))
}

func TestResolveDisclosureWithoutConfirmFails(t *testing.T) {
	f := newFixture(t)
	f.dialog("Turn on AI-generated content label?")

	_, err := f.resolver.Resolve(context.Background())
	assert.ErrorIs(t, err, locator.ErrLocatorMiss)
}

func TestResolveExitClicksStay(t *testing.T) {
	f := newFixture(t)
	f.dialog("Discard unsaved changes?")
	f.button("stay", schemas.TargetGenericCancel, 0, true)
	f.button("discard", schemas.TargetGenericConfirm, 1, true)

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindExit, res.Kind)
	assert.Equal(t, ActionStay, res.Action)
	assert.Equal(t, []string{"stay"}, f.page.Clicks())
}

func TestResolveErrorReturnsPlatformError(t *testing.T) {
	f := newFixture(t)
	f.dialog("Upload failed: file format not supported")

	res, err := f.resolver.Resolve(context.Background())
	var pe *PlatformError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Upload failed: file format not supported", pe.Text)
	assert.Equal(t, KindError, res.Kind)
	assert.Empty(t, f.page.Clicks(), "error dialogs are left for the operator")
}

func TestResolveSuccessWithoutButtonIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.dialog("Your video has been uploaded")
	f.page.OnEscape = func(p *browsertest.Page) { p.Remove("dialog") }

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindSuccess, res.Kind)
	assert.Equal(t, ActionEscape, res.Action)
}

func TestResolveSuccessThatStaysOpenIsLogged(t *testing.T) {
	f := newFixture(t)
	f.dialog("Video published")

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err, "a success notice never fails the job")
	assert.Equal(t, KindSuccess, res.Kind)
	assert.Equal(t, ActionEscape, res.Action)

	entries := f.logs.FilterMessage("Success dialog stayed open.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap()["error"], ErrModalUnclassified.Error())
}

func TestResolveUnknownUsesCloseControl(t *testing.T) {
	f := newFixture(t)
	f.dialog("Rate your experience")
	f.button("close", schemas.TargetModalClose, 0, true)

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, res.Kind)
	assert.Equal(t, ActionClose, res.Action)
	assert.Empty(t, f.page.Keys())
}

func TestResolveUnknownFallsBackToEscape(t *testing.T) {
	f := newFixture(t)
	f.dialog("Rate your experience")
	f.button("close", schemas.TargetModalClose, 0, false)
	f.page.OnEscape = func(p *browsertest.Page) { p.Remove("dialog") }

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionEscape, res.Action)
	assert.Equal(t, []string{"close"}, f.page.Clicks())
	assert.Equal(t, []browser.Key{browser.KeyEscape}, f.page.Keys())
}

func TestResolveUnknownStuckIsUnclassified(t *testing.T) {
	f := newFixture(t)
	f.dialog("Rate your experience")

	_, err := f.resolver.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrModalUnclassified)
	assert.Contains(t, err.Error(), "Rate your experience")
}

func TestResolveClassifiesFreshEachTime(t *testing.T) {
	f := newFixture(t)
	f.dialog("Discard unsaved changes?")
	f.button("stay", schemas.TargetGenericCancel, 0, false)

	res, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindExit, res.Kind)

	f.page.Update("dialog", func(n *browsertest.Node) { n.Text = "Upload failed" })
	_, err = f.resolver.Resolve(context.Background())
	var pe *PlatformError
	assert.True(t, errors.As(err, &pe))
}
