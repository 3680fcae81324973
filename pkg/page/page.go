package page

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// Initializer starts pages from a fixed set of dependencies.
type Initializer struct {
	deps Dependencies
	opts Options
}

// NewInitializer returns an Initializer for deps.
func NewInitializer(deps Dependencies, optFns ...func(*Options)) *Initializer {
	opts := Options{Logger: slog.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Initializer{deps: deps, opts: opts}
}

// Page is one interactive page session. It owns the result store and the
// live render state.
type Page struct {
	id         string
	deps       Dependencies
	cfg        Config
	reconciler Reconciler
	navigator  Navigator
	logger     *slog.Logger
	observers  []func(RenderInfo)

	results *Results
	actions Actions

	// loop serialises store writes with renders and mounts.
	loop       sync.Mutex
	live       liveState
	seq        uint64
	batchDepth int
	dirty      bool

	// reportMu guards failures reported while a render holds p.loop.
	reportMu  sync.Mutex
	rendering bool
	reported  []*Failure

	ctx    context.Context
	cancel context.CancelFunc
}

// Start initialises a page: it seeds the result store, binds commands, lifts
// the existing root into the render baseline, runs every provider, renders
// once and finally calls AfterProviders.
//
// A failing provider aborts Start and its error is returned as is; provider
// failures are not recorded in the error mapping.
func (in *Initializer) Start(ctx context.Context, cfg Config) (*Page, error) {
	if cfg.RenderPage == nil {
		return nil, ErrNoRenderer
	}
	if cfg.RootNode == nil {
		return nil, ErrNoRootNode
	}
	if in.opts.Reconciler == nil {
		return nil, ErrNoReconciler
	}
	if err := in.validateNames(cfg); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &Page{
		id:         id,
		deps:       in.deps,
		cfg:        cfg,
		reconciler: in.opts.Reconciler,
		navigator:  in.opts.Navigator,
		logger:     in.opts.Logger.With("page", id),
		observers:  in.opts.Observers,
		ctx:        sessionCtx,
		cancel:     cancel,
	}

	results, dropped := newResults(in.deps.Store)
	for _, name := range dropped {
		p.logger.Warn("ignoring store seed for reserved name", "name", name)
	}
	p.results = results
	p.actions = p.bind(p.mergeCommands())

	var route *url.URL
	if p.navigator != nil {
		route = p.navigator.Location()
	}
	p.results.bind(p.Fail, route, cfg.RootNode.Dataset())

	tree, err := p.reconciler.Lift(cfg.RootNode)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("lift root node: %w", err)
	}
	p.live = liveState{root: cfg.RootNode, tree: tree}

	if err := p.runProviders(ctx); err != nil {
		cancel()
		return nil, err
	}
	if err := p.render(TriggerInit, "", ""); err != nil {
		cancel()
		return nil, err
	}
	p.logger.Info("page started", "providers", len(cfg.Providers), "commands", len(p.actions))

	if in.deps.AfterProviders != nil {
		in.deps.AfterProviders()
	}
	return p, nil
}

func (in *Initializer) validateNames(cfg Config) error {
	for _, name := range cfg.Providers {
		if isReserved(name) {
			return fmt.Errorf("%w: provider %s", ErrReservedName, name)
		}
	}
	for name := range in.deps.Commands {
		if isReserved(name) {
			return fmt.Errorf("%w: command %s", ErrReservedName, name)
		}
	}
	return nil
}

// ID returns the page session id.
func (p *Page) ID() string { return p.id }

// Results returns the live result store.
func (p *Page) Results() *Results { return p.results }

// Actions returns the bound command surface, built-ins included.
func (p *Page) Actions() Actions { return p.actions }

// Invoke calls the named action.
func (p *Page) Invoke(ctx context.Context, name string, args ...any) (Outcome, error) {
	return p.actions.Call(ctx, name, args...)
}

// Reload re-runs every provider and renders once they have all settled. It
// goes through the bound reload command, so provider failures are recorded in
// the error mapping rather than returned.
func (p *Page) Reload(ctx context.Context) error {
	out, err := p.Invoke(ctx, CommandReload)
	if err != nil {
		return err
	}
	if f, ok := out.(*Future); ok {
		_, err = f.Wait(ctx)
	}
	return err
}

// Fail records err in the error mapping and renders once. Only a render
// failure is returned.
//
// Called while a render is in progress (from RenderPage, a slot handler or a
// render observer), the failure is queued and recorded once that render has
// mounted, followed by one more render; Fail then returns nil immediately.
func (p *Page) Fail(err error) error {
	f := AsFailure(err)
	if f == nil {
		return nil
	}
	if p.report(f) {
		return nil
	}
	p.loop.Lock()
	defer p.loop.Unlock()
	rec := p.results.errors.record(f)
	p.logger.Info("error recorded", "kind", rec.Kind, "throw_count", rec.ThrowCount, "due", len(rec.Due))
	return p.renderLocked(TriggerError, f.Name, "")
}

// CancelError marks the kind and its due records as cancelled. It does not
// render and never removes records.
func (p *Page) CancelError(kind string) bool {
	p.loop.Lock()
	defer p.loop.Unlock()
	return p.results.errors.cancel(kind)
}

// Root returns the current live root node.
func (p *Page) Root() Node {
	p.loop.Lock()
	defer p.loop.Unlock()
	return p.live.root
}

// Tree returns the tree value last mounted.
func (p *Page) Tree() Tree {
	p.loop.Lock()
	defer p.loop.Unlock()
	return p.live.tree
}

// Inspect runs fn under the render lock, so it observes a state no render is
// halfway through.
func (p *Page) Inspect(fn func(root Node, results *Results)) {
	p.loop.Lock()
	defer p.loop.Unlock()
	fn(p.live.root, p.results)
}

// Close ends the session: streams stop receiving pushes and pending command
// results are no longer awaited.
func (p *Page) Close() {
	p.cancel()
}

// Context is the session context handed to streams; it is done after Close.
func (p *Page) Context() context.Context {
	return p.ctx
}
