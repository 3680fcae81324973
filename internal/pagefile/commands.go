package pagefile

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/dotcommander/pagekit/pkg/page"
)

func command(def CommandDef) page.Command {
	switch def.Kind {
	case CommandDelay:
		return delayCommand(def)
	case CommandFail:
		return failCommand(def)
	case CommandCounter:
		return counterCommand(def)
	default:
		return setCommand(def)
	}
}

// setCommand returns its first argument, or the declared value without one.
func setCommand(def CommandDef) page.Command {
	return func(_ context.Context, args ...any) (page.Outcome, error) {
		if len(args) > 0 {
			return page.Immediate(args[0]), nil
		}
		return page.Immediate(def.Value), nil
	}
}

// delayCommand resolves to its argument (or declared value) after the delay.
func delayCommand(def CommandDef) page.Command {
	wait := time.Duration(def.Delay)
	return func(ctx context.Context, args ...any) (page.Outcome, error) {
		v := def.Value
		if len(args) > 0 {
			v = args[0]
		}
		return page.Async(ctx, func(ctx context.Context) (any, error) {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.C:
				return v, nil
			}
		}), nil
	}
}

// failCommand raises the declared error. A map argument is merged over the
// declared fields.
func failCommand(def CommandDef) page.Command {
	return func(_ context.Context, args ...any) (page.Outcome, error) {
		fields := maps.Clone(def.Fields)
		if fields == nil {
			fields = map[string]any{}
		}
		if len(args) > 0 {
			if extra, ok := args[0].(map[string]any); ok {
				maps.Copy(fields, extra)
			}
		}
		due := make([]*page.Failure, 0, len(def.Due))
		for _, kind := range def.Due {
			due = append(due, page.NewFailure(kind, nil))
		}
		return nil, page.NewFailure(def.Error, fields, due...)
	}
}

// counterCommand adds step (or a numeric argument) to a running total that
// starts at the declared start value.
func counterCommand(def CommandDef) page.Command {
	var mu sync.Mutex
	total := def.Start
	step := def.Step
	if step == 0 {
		step = 1
	}
	return func(_ context.Context, args ...any) (page.Outcome, error) {
		by := step
		if len(args) > 0 {
			n, err := toFloat(args[0])
			if err != nil {
				return nil, page.NewFailure("ArgumentError", map[string]any{"message": err.Error()})
			}
			by = n
		}
		mu.Lock()
		total += by
		v := total
		mu.Unlock()
		return page.Immediate(v), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
