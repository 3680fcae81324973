package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quotaError struct{ limit string }

func (e *quotaError) Error() string     { return "quota exceeded" }
func (e *quotaError) ErrorCode() string { return "QUOTA_EXCEEDED" }
func (e *quotaError) Context() map[string]string {
	return map[string]string{"limit": e.limit}
}

func TestAsFailure(t *testing.T) {
	assert.Nil(t, AsFailure(nil))

	named := NewFailure("ValidationError", map[string]any{"field": "email"})
	assert.Same(t, named, AsFailure(fmt.Errorf("save: %w", named)))

	coded := AsFailure(&quotaError{limit: "10"})
	assert.Equal(t, "QUOTA_EXCEEDED", coded.Name)
	assert.Equal(t, map[string]any{"limit": "10", "message": "quota exceeded"}, coded.Fields)

	plain := AsFailure(errors.New("boom"))
	assert.Equal(t, KindError, plain.Name)
	assert.Equal(t, "boom", plain.Fields["message"])

	unnamed := &Failure{Fields: map[string]any{"x": 1}}
	assert.Equal(t, KindError, AsFailure(unnamed).Name)
	assert.Empty(t, unnamed.Name)
}

func TestFailure_Error(t *testing.T) {
	assert.Equal(t, "ValidationError", NewFailure("ValidationError", nil).Error())
	assert.Equal(t, "Oops: bad", NewFailure("Oops", map[string]any{"message": "bad"}).Error())
	wrapped := &Failure{Name: "Fetch", Err: errUpstream}
	assert.Equal(t, "Fetch: upstream down", wrapped.Error())
	assert.ErrorIs(t, wrapped, errUpstream)
}

func TestPanicFailure(t *testing.T) {
	assert.Equal(t, KindPanic, panicFailure("x").Name)
	assert.Equal(t, KindPanic, panicFailure(errors.New("nil map")).Name)
	assert.Equal(t, "Named", panicFailure(NewFailure("Named", nil)).Name)
}

func TestErrorRecord_MarshalJSONIsFlat(t *testing.T) {
	due := &ErrorRecord{Kind: "CardError", Payload: map[string]any{}}
	rec := &ErrorRecord{
		Kind:       "ValidationError",
		Payload:    map[string]any{"field": "email"},
		ThrowCount: 1,
		Due:        []*ErrorRecord{due},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ValidationError","field":"email","isCancelled":false,"throwCount":1,"due":["CardError"]}`, string(b))
}

func TestResults_SnapshotJSON(t *testing.T) {
	r, dropped := newResults(map[string]any{"user": map[string]any{"id": 1}, KeyFail: true})
	assert.Equal(t, []string{KeyFail}, dropped)
	r.bind(func(error) error { return nil }, nil, map[string]string{"pageId": "p1"})
	r.errors.record(NewFailure("Oops", nil))

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"user": {"id": 1},
		"route": "",
		"parseRootNodeDataset": {"pageId": "p1"},
		"errors": {"Oops": {"name": "Oops", "isCancelled": false, "throwCount": 1}}
	}`, string(b))
	assert.Equal(t, []string{"user"}, r.Names())
}

func TestFuture(t *testing.T) {
	f, settle := NewFuture()
	assert.False(t, f.Settled())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			settle(i, nil)
		}(i)
	}
	wg.Wait()
	require.True(t, f.Settled())

	first, err := f.Wait(context.Background())
	require.NoError(t, err)
	again, _ := f.Wait(context.Background())
	assert.Equal(t, first, again)

	v, err := Async(context.Background(), func(context.Context) (any, error) { return 7, nil }).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestView_SlotWithoutHandler(t *testing.T) {
	h := startPage(t, Dependencies{}, nil)
	resolve := h.page.slotResolver("")
	assert.Nil(t, resolve("missing")("data"))
	assert.Nil(t, View{}.Slot("any")(nil))
}

func TestView_SlotReceivesContext(t *testing.T) {
	var got SlotContext
	rl := &renderLog{}
	p, err := NewInitializer(Dependencies{Store: map[string]any{"n": 1}},
		WithReconciler(&fakeReconciler{}), WithLogger(quietLogger()),
	).Start(context.Background(), Config{
		RenderPage: func(v View) (Tree, error) {
			v.Slot("card")(map[string]any{"index": 3})
			return rl.render(v)
		},
		RootNode: &fakeNode{},
		Slots: map[string]SlotHandler{"card": func(sc SlotContext) Tree {
			got = sc
			return nil
		}},
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Same(t, p.Results(), got.Results)
	assert.Equal(t, 1, got.Results.Value("n"))
	assert.Contains(t, got.Actions, CommandReload)
	assert.Equal(t, map[string]any{"index": 3}, got.HostData)
	assert.Empty(t, got.CommandBeingExecuted)
}
