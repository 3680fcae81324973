package pagefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/dotcommander/pagekit/internal/htmldom"
	"github.com/dotcommander/pagekit/pkg/cache"
	"github.com/dotcommander/pagekit/pkg/page"
)

// Env carries process-wide collaborators for built pages.
type Env struct {
	HTTPClient  *http.Client
	HTTPTimeout time.Duration
	Cache       cache.Cache
	CacheTTL    time.Duration
	// Retry overrides the retry policy of every http provider.
	Retry  *page.RetryPolicy
	Logger *slog.Logger
}

func (e Env) withDefaults() Env {
	if e.HTTPClient == nil {
		e.HTTPClient = http.DefaultClient
	}
	if e.HTTPTimeout <= 0 {
		e.HTTPTimeout = 10 * time.Second
	}
	if e.Cache == nil {
		e.Cache = cache.NewLRU(64)
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return e
}

// Built is everything needed to start a page from a definition.
type Built struct {
	Name       string
	Deps       page.Dependencies
	Config     page.Config
	Root       *htmldom.Node
	Reconciler htmldom.Reconciler
	Navigator  *Navigator
}

// Options returns the page options for b plus extra.
func (b *Built) Options(extra ...func(*page.Options)) []func(*page.Options) {
	return append([]func(*page.Options){
		page.WithReconciler(b.Reconciler),
		page.WithNavigator(b.Navigator),
	}, extra...)
}

type builder struct {
	def *Definition
	env Env
}

// KindSlot is the failure kind recorded when a slot template fails to render.
const KindSlot = "SlotError"

// pageData is what the page template renders from.
type pageData struct {
	Results  *page.Results
	InFlight string
}

// slotData is what slot templates render from.
type slotData struct {
	Results  *page.Results
	InFlight string
	HostData any
}

// Build parses the root markup and templates of def and wires its providers
// and commands. Each call yields independent state, so one Built serves
// exactly one page.
func Build(def *Definition, env Env) (*Built, error) {
	b := &builder{def: def, env: env.withDefaults()}

	root, err := b.root()
	if err != nil {
		return nil, err
	}
	nav, err := NewNavigator(def.URL)
	if err != nil {
		return nil, err
	}

	body, err := b.template()
	if err != nil {
		return nil, err
	}
	base, err := template.New(def.Name).Funcs(placeholderFuncs).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	slots := make(map[string]page.SlotHandler, len(def.Slots))
	for id, src := range def.Slots {
		t, err := template.New(id).Funcs(placeholderFuncs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse slot %s: %w", id, err)
		}
		slots[id] = b.slot(id, t)
	}

	providers := make(map[string]page.Provider, len(def.Provider))
	for name, p := range def.Provider {
		providers[name] = b.provider(name, p)
	}
	commands := make(map[string]page.Command, len(def.Commands))
	for name, c := range def.Commands {
		commands[name] = command(c)
	}

	return &Built{
		Name: def.Name,
		Deps: page.Dependencies{
			Store:     seed(def.Store),
			Commands:  commands,
			Providers: providers,
		},
		Config: page.Config{
			Providers:  def.Providers,
			RenderPage: b.render(root, base),
			RootNode:   root,
			Slots:      slots,
		},
		Root:      root,
		Navigator: nav,
	}, nil
}

func (b *builder) root() (*htmldom.Node, error) {
	markup := b.def.RootHTML
	if markup == "" {
		data, err := os.ReadFile(b.def.resolve(b.def.Root)) //nolint:gosec // G304: path declared by the page file
		if err != nil {
			return nil, fmt.Errorf("read root markup: %w", err)
		}
		markup = string(data)
	}
	root, err := htmldom.ParseRoot(markup, b.def.RootID)
	if err != nil {
		return nil, fmt.Errorf("root markup: %w", err)
	}
	return root, nil
}

func (b *builder) template() (string, error) {
	if b.def.Template != "" {
		return b.def.Template, nil
	}
	data, err := os.ReadFile(b.def.resolve(b.def.TemplateFile)) //nolint:gosec // G304: path declared by the page file
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(data), nil
}

// render executes a clone of base, which is never executed itself, so the
// per-render funcs can be bound.
func (b *builder) render(root *htmldom.Node, base *template.Template) page.RenderFunc {
	shell := root.HTML()
	return func(v page.View) (page.Tree, error) {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone template: %w", err)
		}
		t.Funcs(viewFuncs(v.Results, v.Slot))

		var buf bytes.Buffer
		if err := t.Execute(&buf, pageData{Results: v.Results, InFlight: v.InFlight}); err != nil {
			return nil, fmt.Errorf("execute template: %w", err)
		}
		return htmldom.Shell(shell, buf.String())
	}
}

func (b *builder) slot(id string, base *template.Template) page.SlotHandler {
	return func(sc page.SlotContext) page.Tree {
		t, err := base.Clone()
		if err != nil {
			slotFailed(b.env.Logger, sc.Results, id, fmt.Errorf("clone slot template: %w", err))
			return template.HTML("")
		}
		t.Funcs(viewFuncs(sc.Results, nil))

		var buf bytes.Buffer
		if err := t.Execute(&buf, slotData{Results: sc.Results, InFlight: sc.CommandBeingExecuted, HostData: sc.HostData}); err != nil {
			slotFailed(b.env.Logger, sc.Results, id, err)
			return template.HTML("")
		}
		return template.HTML(buf.String()) //nolint:gosec // output of html/template
	}
}

// slotFailed reports a slot failure as a KindSlot record. A failure already
// active for the same slot and message is not reported again, so a slot that
// fails on every render yields one record update, not one per render.
func slotFailed(logger *slog.Logger, results *page.Results, id string, err error) {
	logger.Error("render slot", "slot", id, "error", err)
	msg := err.Error()
	if rec, ok := results.Errors().Get(KindSlot); ok && !rec.IsCancelled &&
		rec.Field("slot") == id && rec.Field("message") == msg {
		return
	}
	_ = results.Fail(page.NewFailure(KindSlot, map[string]any{"slot": id, "message": msg}))
}

var placeholderFuncs = viewFuncs(nil, nil)

// viewFuncs are the template funcs bound to one render.
func viewFuncs(results *page.Results, slot func(string) page.SlotRenderer) template.FuncMap {
	return template.FuncMap{
		"get": func(name string) any {
			if results == nil {
				return nil
			}
			return results.Value(name)
		},
		"has": func(name string) bool {
			return results != nil && results.Has(name)
		},
		"errors": func() []*page.ErrorRecord {
			if results == nil {
				return nil
			}
			return results.Errors().Active()
		},
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		"slot": func(id string, hostData ...any) template.HTML {
			if slot == nil {
				return ""
			}
			var host any
			if len(hostData) > 0 {
				host = hostData[0]
			}
			out, _ := slot(id)(host).(template.HTML)
			return out
		},
	}
}

// seed normalises TOML integers so store values match their YAML form.
func seed(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalise(v)
	}
	return out
}

func normalise(v any) any {
	switch t := v.(type) {
	case int64:
		return int(t)
	case map[string]any:
		return seed(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalise(e)
		}
		return out
	}
	return v
}

// Navigator is the page's navigation API: it tracks the current location and
// reports every navigation to OnNavigate.
type Navigator struct {
	mu         sync.Mutex
	current    *url.URL
	history    []string
	onNavigate func(*url.URL)
}

// NewNavigator starts at raw, or http://localhost/ when raw is empty.
func NewNavigator(raw string) (*Navigator, error) {
	if raw == "" {
		raw = "http://localhost/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}
	return &Navigator{current: u}, nil
}

// OnNavigate registers fn, replacing any previous callback.
func (n *Navigator) OnNavigate(fn func(*url.URL)) {
	n.mu.Lock()
	n.onNavigate = fn
	n.mu.Unlock()
}

func (n *Navigator) Location() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := *n.current
	return &u
}

func (n *Navigator) Navigate(u *url.URL) error {
	n.mu.Lock()
	n.current = u
	n.history = append(n.history, u.String())
	fn := n.onNavigate
	n.mu.Unlock()
	if fn != nil {
		fn(u)
	}
	return nil
}

// History lists every location navigated to, oldest first.
func (n *Navigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}
