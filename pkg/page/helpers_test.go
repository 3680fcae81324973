package page

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	dataset map[string]string
	tree    Tree
}

func (n *fakeNode) Dataset() map[string]string { return n.dataset }

type fakeReconciler struct {
	mu      sync.Mutex
	lifted  int
	applied []Patch
}

func (r *fakeReconciler) Diff(_, next Tree) (Patch, error) { return next, nil }

func (r *fakeReconciler) Apply(live Node, p Patch) (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, p)
	return &fakeNode{dataset: live.Dataset(), tree: p}, nil
}

func (r *fakeReconciler) Lift(Node) (Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifted++
	return "lifted", nil
}

type fakeNavigator struct {
	mu      sync.Mutex
	current *url.URL
	visited []string
}

func (n *fakeNavigator) Location() *url.URL { return n.current }

func (n *fakeNavigator) Navigate(u *url.URL) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visited = append(n.visited, u.String())
	return nil
}

type renderedView struct {
	InFlight string
	Values   map[string]any
	Slot     Tree
}

type renderLog struct {
	mu    sync.Mutex
	views []renderedView
}

func (l *renderLog) render(v View) (Tree, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, renderedView{
		InFlight: v.InFlight,
		Values:   v.Results.Snapshot(),
		Slot:     v.Slot("status")("host"),
	})
	return len(l.views), nil
}

func (l *renderLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.views)
}

func (l *renderLog) last() renderedView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.views[len(l.views)-1]
}

func (l *renderLog) at(i int) renderedView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.views[i]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statusSlot(sc SlotContext) Tree {
	return sc.CommandBeingExecuted
}

type harness struct {
	page *Page
	log  *renderLog
	rec  *fakeReconciler
}

func startPage(t *testing.T, deps Dependencies, providers []string, optFns ...func(*Options)) harness {
	t.Helper()

	rl := &renderLog{}
	rec := &fakeReconciler{}
	opts := append([]func(*Options){WithReconciler(rec), WithLogger(quietLogger())}, optFns...)
	p, err := NewInitializer(deps, opts...).Start(context.Background(), Config{
		Providers:  providers,
		RenderPage: rl.render,
		RootNode:   &fakeNode{dataset: map[string]string{"pageId": "home"}},
		Slots:      map[string]SlotHandler{"status": statusSlot},
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return harness{page: p, log: rl, rec: rec}
}

func immediate(v any) Provider {
	return func(context.Context, *Results) (Outcome, error) { return Immediate(v), nil }
}
