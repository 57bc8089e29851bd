package browsertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
)

var button = schemas.CSS("button.post")

func TestQueryMatchesByKey(t *testing.T) {
	ctx := context.Background()
	p := NewPage().Add(
		&Node{ID: "a", Matches: []string{button.Key()}, Visible: true, Enabled: true},
		&Node{ID: "b", Matches: []string{"css:other"}},
		&Node{ID: "c", Matches: []string{button.Key()}},
	)

	els, err := p.Query(ctx, button)
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Equal(t, "node:a", els[0].Handle())
	assert.Equal(t, "node:c", els[1].Handle())
	assert.Equal(t, 1, p.Queries())
}

func TestRerenderMakesOldHandleStale(t *testing.T) {
	ctx := context.Background()
	p := NewPage().Add(&Node{ID: "a", Matches: []string{button.Key()}, Visible: true, Enabled: true})

	els, err := p.Query(ctx, button)
	require.NoError(t, err)
	p.Rerender("a")

	_, err = p.Inspect(ctx, els[0])
	assert.ErrorIs(t, err, browser.ErrStaleElement)
	assert.ErrorIs(t, p.Click(ctx, els[0]), browser.ErrStaleElement)

	fresh, err := p.Query(ctx, button)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.NoError(t, p.Click(ctx, fresh[0]))
	assert.Equal(t, []string{"a"}, p.Clicks())
}

func TestStaleNextFiresOnce(t *testing.T) {
	ctx := context.Background()
	p := NewPage().Add(&Node{ID: "a", Matches: []string{button.Key()}, Visible: true, Enabled: true, StaleNext: true})

	els, _ := p.Query(ctx, button)
	assert.ErrorIs(t, p.Click(ctx, els[0]), browser.ErrStaleElement)

	els, _ = p.Query(ctx, button)
	assert.NoError(t, p.Click(ctx, els[0]))
}

func TestToggleAndHooks(t *testing.T) {
	ctx := context.Background()
	hits := 0
	p := NewPage().Add(&Node{
		ID: "t", Matches: []string{button.Key()}, Visible: true, Enabled: true,
		Checked: "false", Toggles: true,
		OnClick: func(p *Page) { hits++ },
	})
	els, _ := p.Query(ctx, button)
	require.NoError(t, p.Click(ctx, els[0]))

	st, err := p.Inspect(ctx, els[0])
	require.NoError(t, err)
	assert.True(t, st.IsChecked())
	assert.Equal(t, 1, hits)
}

func TestTextScripts(t *testing.T) {
	ctx := context.Background()
	p := NewPage().Add(&Node{ID: "e", Matches: []string{button.Key()}, Visible: true, Enabled: true, Text: "old", ClearResist: 1})
	els, _ := p.Query(ctx, button)
	el := els[0]

	var remaining string
	require.NoError(t, p.Call(ctx, el, browser.ScriptClearValue, &remaining))
	assert.Equal(t, "old", remaining, "first clear is resisted")
	require.NoError(t, p.Call(ctx, el, browser.ScriptClearValue, &remaining))
	assert.Empty(t, remaining)

	var got string
	require.NoError(t, p.Call(ctx, el, browser.ScriptAssignText, &got, "hello"))
	assert.Equal(t, "hello", got)

	require.NoError(t, p.Call(ctx, el, browser.ScriptFocus, nil))
	require.NoError(t, p.PressKey(ctx, browser.KeyBackspace))
	require.NoError(t, p.Call(ctx, el, browser.ScriptReadText, &got))
	assert.Equal(t, "hell", got)

	require.NoError(t, p.TypeText(ctx, el, "o!"))
	assert.Equal(t, "o!", p.Typed("e"))

	var count int
	require.NoError(t, p.Call(ctx, el, browser.ScriptFileCount, &count))
	assert.Zero(t, count)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPage()
	_, err := p.Query(ctx, button)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, p.Navigate(ctx, "https://example.com"), context.Canceled)
}
