package page

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
)

var (
	// ErrNoRenderer is returned by Start when Config.RenderPage is nil.
	ErrNoRenderer = errors.New("page: render function is required")
	// ErrNoRootNode is returned by Start when Config.RootNode is nil.
	ErrNoRootNode = errors.New("page: root node is required")
	// ErrNoReconciler is returned by Start without WithReconciler.
	ErrNoReconciler = errors.New("page: reconciler is required")
	// ErrReservedName is returned by Start for a provider or command named
	// after a reserved result store field.
	ErrReservedName = errors.New("page: name is reserved")
	// ErrUnknownProvider aborts Start when a configured provider is missing.
	ErrUnknownProvider = errors.New("page: unknown provider")
	// ErrUnknownCommand is returned by Invoke for a name with no action.
	ErrUnknownCommand = errors.New("page: unknown command")
	// ErrNotStarted is returned by Results.Fail on a store no page owns.
	ErrNotStarted = errors.New("page: not started")
)

// Tree is an opaque rendered view value produced by a RenderFunc.
type Tree = any

// Patch is an opaque change set produced by Reconciler.Diff.
type Patch = any

// Node is the live rendered structure the page reconciles into.
type Node interface {
	// Dataset returns the node's custom data attributes.
	Dataset() map[string]string
}

// Reconciler diffs rendered trees and applies the result to the live node.
type Reconciler interface {
	Diff(old, next Tree) (Patch, error)
	Apply(live Node, p Patch) (Node, error)
	// Lift turns existing live markup into the tree it would have been
	// rendered from, without changing it.
	Lift(live Node) (Tree, error)
}

// Navigator reads and changes the page location.
type Navigator interface {
	Location() *url.URL
	Navigate(u *url.URL) error
}

// RenderFunc renders the whole page from a view.
type RenderFunc func(View) (Tree, error)

// Provider produces an initial value for the result store. It may read the
// values stored by earlier providers.
type Provider func(ctx context.Context, results *Results) (Outcome, error)

// Command is a named action. A returned error is a failure and is routed to
// the page's error mapping; it never reaches the caller.
type Command func(ctx context.Context, args ...any) (Outcome, error)

// Config describes the page being initialised.
type Config struct {
	// Providers are run in this order at start and on reload.
	Providers  []string
	RenderPage RenderFunc
	RootNode   Node
	Slots      map[string]SlotHandler
}

// Dependencies are the implementations a page is built from.
type Dependencies struct {
	Store          map[string]any
	Commands       map[string]Command
	Providers      map[string]Provider
	AfterProviders func()
}

// Trigger names what caused a render.
type Trigger string

const (
	TriggerInit     Trigger = "init"
	TriggerCommand  Trigger = "command"
	TriggerInFlight Trigger = "in_flight"
	TriggerComplete Trigger = "complete"
	TriggerPush     Trigger = "push"
	TriggerError    Trigger = "error"
	TriggerBatch    Trigger = "batch"
)

// RenderInfo describes one completed render pass.
type RenderInfo struct {
	PageID   string
	Seq      uint64
	Trigger  Trigger
	Command  string
	InFlight string
	Results  *Results
	Tree     Tree
}

// Options configures an Initializer.
type Options struct {
	Reconciler Reconciler
	Navigator  Navigator
	Logger     *slog.Logger
	// Observers are called after every mount while the render lock is held.
	Observers []func(RenderInfo)
}

// WithReconciler sets the reconciler used to mount renders.
func WithReconciler(r Reconciler) func(*Options) {
	return func(o *Options) { o.Reconciler = r }
}

// WithNavigator sets the navigator backing route and redirect.
func WithNavigator(n Navigator) func(*Options) {
	return func(o *Options) { o.Navigator = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithRenderObserver registers fn to be called after every render.
func WithRenderObserver(fn func(RenderInfo)) func(*Options) {
	return func(o *Options) { o.Observers = append(o.Observers, fn) }
}
