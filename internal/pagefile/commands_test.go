package pagefile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pagekit/pkg/page"
)

func TestSetCommand(t *testing.T) {
	cmd := command(CommandDef{Kind: CommandSet, Value: "default"})

	out, err := cmd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, page.Immediate("default"), out)

	out, err = cmd(context.Background(), "given", "ignored")
	require.NoError(t, err)
	assert.Equal(t, page.Immediate("given"), out)

	out, err = command(CommandDef{})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, page.Immediate(nil), out, "empty kind behaves as set")
}

func TestDelayCommand(t *testing.T) {
	cmd := command(CommandDef{Kind: CommandDelay, Delay: Duration(5 * time.Millisecond), Value: "done"})

	out, err := cmd(context.Background())
	require.NoError(t, err)
	f, ok := out.(*page.Future)
	require.True(t, ok)
	assert.False(t, f.Settled())

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	out, err = cmd(context.Background(), 42)
	require.NoError(t, err)
	v, err = out.(*page.Future).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDelayCommandStopsWithContext(t *testing.T) {
	cmd := command(CommandDef{Kind: CommandDelay, Delay: Duration(time.Hour)})
	ctx, cancel := context.WithCancel(context.Background())

	out, err := cmd(ctx)
	require.NoError(t, err)
	cancel()

	_, err = out.(*page.Future).Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestFailCommand(t *testing.T) {
	def := CommandDef{
		Kind:   CommandFail,
		Error:  "SaveError",
		Fields: map[string]any{"reason": "disk full", "code": 1},
		Due:    []string{"QuotaError"},
	}
	cmd := command(def)

	out, err := cmd(context.Background(), map[string]any{"code": 2, "file": "a.txt"})
	assert.Nil(t, out)
	f := page.AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, "SaveError", f.Name)
	assert.Equal(t, map[string]any{"reason": "disk full", "code": 2, "file": "a.txt"}, f.Fields)
	require.Len(t, f.Due, 1)
	assert.Equal(t, "QuotaError", f.Due[0].Name)

	assert.Equal(t, 1, def.Fields["code"], "declared fields are not mutated")
}

func TestCounterCommand(t *testing.T) {
	cmd := command(CommandDef{Kind: CommandCounter, Start: 10, Step: 2})

	out, err := cmd(context.Background())
	require.NoError(t, err)
	assert.Equal(t, page.Immediate(12.0), out)

	out, err = cmd(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, page.Immediate(15.0), out)

	out, err = cmd(context.Background(), int64(-5))
	require.NoError(t, err)
	assert.Equal(t, page.Immediate(10.0), out)

	_, err = cmd(context.Background(), []string{"x"})
	f := page.AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, "ArgumentError", f.Name)

	out, err = command(CommandDef{Kind: CommandCounter})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, page.Immediate(1.0), out, "step defaults to one")
}
