package pagefile

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pagekit/internal/htmldom"
	"github.com/dotcommander/pagekit/pkg/page"
)

func startPage(t *testing.T, path string) (*page.Page, *Built) {
	t.Helper()
	def, err := Load(path)
	require.NoError(t, err)

	built, err := Build(def, Env{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	opts := built.Options(page.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	p, err := page.NewInitializer(built.Deps, opts...).Start(context.Background(), built.Config)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, built
}

func liveHTML(t *testing.T, p *page.Page) string {
	t.Helper()
	root, ok := p.Root().(*htmldom.Node)
	require.True(t, ok)
	out, err := htmldom.Render(root.HTML())
	require.NoError(t, err)
	return out
}

func TestBuildRendersProvidersIntoRoot(t *testing.T) {
	p, built := startPage(t, filepath.Join("testdata", "dashboard.yaml"))

	assert.Equal(t, "dashboard", built.Name)
	assert.Equal(t, map[string]string{"page": "dashboard"}, p.Results().RootDataset())
	assert.Equal(t, "http://localhost/dashboard", p.Results().Route().String())
	assert.Equal(t, "dark", p.Results().Value("theme"))

	out := liveHTML(t, p)
	assert.Contains(t, out, `<main id="app" data-page="dashboard">`)
	assert.Contains(t, out, "<h1>Ada</h1>")
	assert.Contains(t, out, `<p class="plan">pro</p>`)
	assert.Contains(t, out, `<span class="badge">new</span>`)
	assert.NotContains(t, out, "loading")
	assert.NotContains(t, out, `class="error"`)

	doc, err := htmldom.Render(built.Root.Document())
	require.NoError(t, err)
	assert.Contains(t, doc, "<title>Dashboard</title>")
	assert.Contains(t, doc, "<h1>Ada</h1>")
}

func TestBuildCommandsRenderIntoRoot(t *testing.T) {
	p, _ := startPage(t, filepath.Join("testdata", "dashboard.yaml"))
	ctx := context.Background()

	_, err := p.Invoke(ctx, "greet")
	require.NoError(t, err)
	assert.Contains(t, liveHTML(t, p), `<p class="greeting">hello</p>`)

	_, err = p.Invoke(ctx, "count")
	require.NoError(t, err)
	assert.Contains(t, liveHTML(t, p), `<p class="count">12</p>`)

	_, err = p.Invoke(ctx, "boom")
	require.NoError(t, err)
	out := liveHTML(t, p)
	assert.Contains(t, out, `<p class="error">SaveError</p>`)
	assert.Contains(t, out, `<p class="error">QuotaError</p>`)

	rec, ok := p.Results().Errors().Get("SaveError")
	require.True(t, ok)
	assert.Equal(t, "disk full", rec.Field("reason"))

	_, err = p.Invoke(ctx, page.CommandCancelError, "SaveError")
	require.NoError(t, err)
	out = liveHTML(t, p)
	assert.NotContains(t, out, "SaveError")
	assert.NotContains(t, out, "QuotaError", "due records are cancelled with their parent")
}

func TestBuildPendingCommandShowsInFlight(t *testing.T) {
	p, _ := startPage(t, filepath.Join("testdata", "dashboard.yaml"))

	out, err := p.Invoke(context.Background(), "save")
	require.NoError(t, err)
	assert.Contains(t, liveHTML(t, p), `<p class="busy">save</p>`)

	v, err := out.(*page.Future).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "saved", v)
	assert.NotContains(t, liveHTML(t, p), "busy")
}

func TestBuildRedirectUsesNavigator(t *testing.T) {
	p, built := startPage(t, filepath.Join("testdata", "dashboard.yaml"))

	var seen []string
	built.Navigator.OnNavigate(func(u *url.URL) { seen = append(seen, u.Path) })

	_, err := p.Invoke(context.Background(), page.CommandRedirect, "settings/profile")
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost/settings/profile"}, built.Navigator.History())
	assert.Equal(t, []string{"/settings/profile"}, seen)
	assert.Equal(t, "/settings/profile", built.Navigator.Location().Path)
}

func TestBuildInlineTOML(t *testing.T) {
	p, built := startPage(t, filepath.Join("testdata", "dashboard.toml"))

	assert.Equal(t, "http://localhost/", built.Navigator.Location().String())
	assert.Equal(t, 5, p.Results().Value("limit"))
	assert.Equal(t, `<main id="app" data-tenant="acme"><p>Grace</p></main>`, liveHTML(t, p))

	out, err := p.Invoke(context.Background(), "tick")
	require.NoError(t, err)
	assert.Equal(t, page.Immediate(1.5), out)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(&Definition{RootHTML: "<p>text</p>", Template: "{{"}, Env{})
	require.Error(t, err)

	_, err = Build(&Definition{RootHTML: "<html><body>no element</body></html>", Template: "x"}, Env{})
	require.ErrorIs(t, err, htmldom.ErrNoRoot)

	_, err = Build(&Definition{RootHTML: "<main></main>", TemplateFile: "missing.tmpl", dir: t.TempDir()}, Env{})
	require.Error(t, err)

	_, err = Build(&Definition{RootHTML: "<main></main>", Template: "x", Slots: map[string]string{"s": "{{end}}"}}, Env{})
	require.ErrorContains(t, err, "parse slot s")

	_, err = Build(&Definition{RootHTML: "<main></main>", Template: "x", URL: "://bad"}, Env{})
	require.ErrorContains(t, err, "page url")
}

func TestTemplateExecutionErrorFailsRender(t *testing.T) {
	def := &Definition{
		Name:     "broken",
		RootHTML: "<main></main>",
		Template: `{{json .Results.Missing}}`,
	}
	built, err := Build(def, Env{})
	require.NoError(t, err)

	_, err = page.NewInitializer(built.Deps, built.Options()...).Start(context.Background(), built.Config)
	require.ErrorContains(t, err, "execute template")
}

func TestBuildReportsSlotFailureOnce(t *testing.T) {
	def := &Definition{
		Name:     "slots",
		RootHTML: `<main id="app"></main>`,
		Template: `{{slot "bad" "x"}}{{range errors}}<p class="error">{{.Kind}}</p>{{end}}`,
		Slots:    map[string]string{"bad": `{{.HostData.Name}}`},
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	built, err := Build(def, Env{Logger: quiet})
	require.NoError(t, err)

	var renders int
	opts := built.Options(page.WithLogger(quiet), page.WithRenderObserver(func(page.RenderInfo) { renders++ }))
	p, err := page.NewInitializer(built.Deps, opts...).Start(context.Background(), built.Config)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	// The init render reports the failure; one follow-up render shows it.
	assert.Equal(t, 2, renders)
	rec, ok := p.Results().Errors().Get(KindSlot)
	require.True(t, ok)
	assert.Equal(t, 1, rec.ThrowCount)
	assert.Equal(t, "bad", rec.Field("slot"))
	assert.Contains(t, liveHTML(t, p), `<p class="error">SlotError</p>`)

	_, err = p.Invoke(context.Background(), page.CommandCancelError, KindSlot)
	require.NoError(t, err)
	rec, _ = p.Results().Errors().Get(KindSlot)
	assert.Equal(t, 2, rec.ThrowCount)
	assert.False(t, rec.IsCancelled)
}
