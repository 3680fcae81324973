package htmldom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dotcommander/pagekit/pkg/page"
)

const doc = `<!doctype html><html><head><title>t</title></head><body>
<main id="app" data-page-id="home" data-user-id="42" class="x"><p>loading</p></main>
<footer>f</footer></body></html>`

func TestParseRoot(t *testing.T) {
	root, err := ParseRoot(doc, "")
	require.NoError(t, err)
	assert.Equal(t, "main", root.HTML().Data)
	assert.Equal(t, map[string]string{"pageId": "home", "userId": "42"}, root.Dataset())
	assert.Equal(t, html.DocumentNode, root.Document().Type)

	byID, err := ParseRoot(doc, "app")
	require.NoError(t, err)
	assert.Equal(t, "main", byID.HTML().Data)

	_, err = ParseRoot(doc, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = ParseRoot("<html><body>text only</body></html>", "")
	require.ErrorIs(t, err, ErrNoRoot)
}

func TestFragment(t *testing.T) {
	n, err := Fragment("\n  <div class=\"a\"><span>x</span></div>\n")
	require.NoError(t, err)
	assert.Equal(t, "div", n.Data)

	_, err = Fragment("<p>a</p><p>b</p>")
	require.ErrorIs(t, err, ErrMultipleRoots)

	_, err = Fragment("   ")
	require.ErrorIs(t, err, ErrNoRoot)

	_, err = Fragment("text<p>a</p>")
	require.ErrorIs(t, err, ErrMultipleRoots)
}

func TestDatasetKey(t *testing.T) {
	assert.Equal(t, "pageId", datasetKey("page-id"))
	assert.Equal(t, "a", datasetKey("a"))
	assert.Equal(t, "someLongName", datasetKey("some-long-name"))
}

func TestShellKeepsRootAttributes(t *testing.T) {
	root, err := ParseRoot(doc, "app")
	require.NoError(t, err)

	tree, err := Shell(root.HTML(), "<h1>Hi</h1> <ul><li>1</li></ul>")
	require.NoError(t, err)
	out, err := Render(tree)
	require.NoError(t, err)
	assert.Equal(t, `<main id="app" data-page-id="home" data-user-id="42" class="x"><h1>Hi</h1> <ul><li>1</li></ul></main>`, out)
	assert.Nil(t, tree.Parent)
}

func mountSequence(t *testing.T, markups ...string) (*Node, page.Patch) {
	t.Helper()
	var rec Reconciler
	root, err := ParseRoot(doc, "app")
	require.NoError(t, err)

	prev, err := rec.Lift(root)
	require.NoError(t, err)

	var live page.Node = root
	var patch page.Patch
	for _, m := range markups {
		patch, err = rec.Diff(prev, m)
		require.NoError(t, err)
		live, err = rec.Apply(live, patch)
		require.NoError(t, err)
		prev = m
	}
	return live.(*Node), patch
}

func TestReconciler_ConvergesOnRenderedMarkup(t *testing.T) {
	steps := []string{
		`<main id="app" data-page-id="home"><p>ready</p><ul><li>a</li></ul></main>`,
		`<main id="app" data-page-id="home"><p>ready</p><ul><li>a</li><li>b</li><li>c</li></ul></main>`,
		`<main id="app" data-page-id="home" class="busy"><p>saving</p><ul><li>c</li></ul></main>`,
		`<main id="app" data-page-id="home"><section>done</section></main>`,
	}
	for i := range steps {
		live, _ := mountSequence(t, steps[:i+1]...)
		got, err := Render(live.HTML())
		require.NoError(t, err)
		assert.Equal(t, steps[i], got, "step %d", i)
	}
}

func TestReconciler_MutatesInPlace(t *testing.T) {
	var rec Reconciler
	root, err := ParseRoot(doc, "app")
	require.NoError(t, err)
	prev, err := rec.Lift(root)
	require.NoError(t, err)

	next := `<main id="app" data-page-id="home" data-user-id="42" class="x"><p>loaded</p></main>`
	patch, err := rec.Diff(prev, next)
	require.NoError(t, err)
	assert.Equal(t, Patch{{Kind: OpText, Path: []int{0, 0}, Text: "loaded"}}, patch)

	live, err := rec.Apply(root, patch)
	require.NoError(t, err)
	assert.Same(t, root, live)

	body, err := Render(root.Document())
	require.NoError(t, err)
	assert.Contains(t, body, "<p>loaded</p>")
	assert.Contains(t, body, "<footer>f</footer>")
}

func TestReconciler_ReplacesRootInsideDocument(t *testing.T) {
	var rec Reconciler
	root, err := ParseRoot(doc, "app")
	require.NoError(t, err)
	prev, err := rec.Lift(root)
	require.NoError(t, err)

	patch, err := rec.Diff(prev, `<section id="app">new</section>`)
	require.NoError(t, err)
	live, err := rec.Apply(root, patch)
	require.NoError(t, err)

	require.NotSame(t, root, live)
	assert.Equal(t, "section", live.(*Node).HTML().Data)
	body, err := Render(root.Document())
	require.NoError(t, err)
	assert.NotContains(t, body, "<main")
	assert.Contains(t, body, `<section id="app">new</section>`)
}

func TestReconciler_LiftIsDetachedCopy(t *testing.T) {
	var rec Reconciler
	root, err := ParseRoot(doc, "app")
	require.NoError(t, err)

	tree, err := rec.Lift(root)
	require.NoError(t, err)
	n := tree.(*html.Node)
	assert.Nil(t, n.Parent)
	n.FirstChild.FirstChild.Data = "changed"
	assert.Equal(t, "loading", root.HTML().FirstChild.FirstChild.Data)
}

func TestReconciler_RejectsForeignValues(t *testing.T) {
	var rec Reconciler
	_, err := rec.Diff(nil, 42)
	require.Error(t, err)

	root, err := ParseRoot(doc, "app")
	require.NoError(t, err)
	_, err = rec.Apply(root, "not a patch")
	require.Error(t, err)
}

func TestReconciler_DrivesPageLifecycle(t *testing.T) {
	root, err := ParseRoot(doc, "app")
	require.NoError(t, err)

	p, err := page.NewInitializer(page.Dependencies{
		Store: map[string]any{"title": "Hello"},
		Commands: map[string]page.Command{
			"rename": func(_ context.Context, args ...any) (page.Outcome, error) {
				return page.Immediate(args[0]), nil
			},
		},
	}, page.WithReconciler(Reconciler{})).Start(context.Background(), page.Config{
		RootNode: root,
		RenderPage: func(v page.View) (page.Tree, error) {
			title, _ := v.Results.Value("title").(string)
			if name, ok := v.Results.Value("rename").(string); ok {
				title = name
			}
			return Shell(root.HTML(), "<h1>"+html.EscapeString(title)+"</h1>")
		},
	})
	require.NoError(t, err)
	defer p.Close()

	render := func() string {
		out, err := Render(p.Root().(*Node).HTML())
		require.NoError(t, err)
		return out
	}
	assert.Contains(t, render(), "<h1>Hello</h1>")

	_, err = p.Invoke(context.Background(), "rename", "World")
	require.NoError(t, err)
	assert.Contains(t, render(), "<h1>World</h1>")
	assert.Equal(t, "home", p.Results().RootDataset()["pageId"])
}

func TestMarkup(t *testing.T) {
	out, err := Markup(`<div><b>x</b></div>`)
	require.NoError(t, err)
	assert.Equal(t, `<div><b>x</b></div>`, out)

	n, err := Fragment(`<p>y</p>`)
	require.NoError(t, err)
	out, err = Markup(n)
	require.NoError(t, err)
	assert.Equal(t, `<p>y</p>`, out)

	_, err = Markup(42)
	require.Error(t, err)
}
