package page

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Built-in command names.
const (
	CommandCancelError = "cancelError"
	CommandRedirect    = "redirect"
	CommandReload      = "reload"
)

const tracerName = "github.com/dotcommander/pagekit/pkg/page"

// Action is a bound command. Failures of the underlying command are recorded
// in the error mapping and yield a nil Outcome; the returned error is only
// ever a render failure.
//
// A Value is returned for immediate results. For pending results the
// returned *Future settles after the completion render, with the resolved
// value, or nil when the command failed.
type Action func(ctx context.Context, args ...any) (Outcome, error)

// Actions is the public command surface of a page.
type Actions map[string]Action

// Call invokes the named action.
func (a Actions) Call(ctx context.Context, name string, args ...any) (Outcome, error) {
	action, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return action(ctx, args...)
}

// ErrorRef names an error kind, as accepted by cancelError.
type ErrorRef struct {
	ErrorName string `json:"errorName"`
}

func (p *Page) builtins() map[string]Command {
	return map[string]Command{
		CommandCancelError: p.cancelErrorCommand,
		CommandRedirect:    p.redirectCommand,
		CommandReload:      p.reloadCommand,
	}
}

func (p *Page) mergeCommands() map[string]Command {
	merged := make(map[string]Command, len(p.deps.Commands)+3)
	for name, cmd := range p.deps.Commands {
		merged[name] = cmd
	}
	for name, cmd := range p.builtins() {
		if _, ok := merged[name]; ok {
			p.logger.Warn("built-in command overrides configured command", "command", name)
		}
		merged[name] = cmd
	}
	return merged
}

func (p *Page) bind(commands map[string]Command) Actions {
	actions := make(Actions, len(commands))
	for name, cmd := range commands {
		actions[name] = p.wrap(name, cmd)
	}
	return actions
}

func (p *Page) wrap(name string, cmd Command) Action {
	return func(ctx context.Context, args ...any) (Outcome, error) {
		ctx, span := otel.Tracer(tracerName).Start(ctx, "page.command",
			trace.WithAttributes(
				attribute.String("page.id", p.id),
				attribute.String("page.command", name),
			),
		)

		out, err := invoke(ctx, cmd, args)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.End()
			p.logger.Debug("command failed", "command", name, "error", err)
			return nil, p.Fail(err)
		}

		switch o := out.(type) {
		case *Future:
			if o == nil {
				break
			}
			if err := p.render(TriggerInFlight, name, name); err != nil {
				span.SetStatus(codes.Error, err.Error())
				span.End()
				return nil, err
			}
			// The span covers the command until its result settles.
			return p.await(name, o, span), nil
		case Stream:
			if o == nil {
				break
			}
			defer span.End()
			o(p.ctx, p.pushTo(name))
			return o, p.render(TriggerCommand, name, "")
		case Value:
			defer span.End()
			return o, p.commit(TriggerCommand, name, o.V)
		case nil:
			defer span.End()
			return Value{}, p.commit(TriggerCommand, name, nil)
		}

		err = fmt.Errorf("command %s: unsupported outcome %T(%v)", name, out, out)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, p.Fail(err)
	}
}

// invoke calls cmd, turning a panic into a failure.
func invoke(ctx context.Context, cmd Command, args []any) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, panicFailure(r)
		}
	}()
	return cmd(ctx, args...)
}

// await stores the pending result of name once it settles and renders again.
// span ends just before the chained future settles.
func (p *Page) await(name string, pending *Future, span trace.Span) *Future {
	chained, settleChained := NewFuture()
	settle := func(v any, err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		settleChained(v, err)
	}
	go func() {
		v, err := pending.Wait(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil && errors.Is(err, p.ctx.Err()) {
				settle(nil, err)
				return
			}
			span.SetStatus(codes.Error, err.Error())
			if rerr := p.Fail(err); rerr != nil {
				p.logger.Error("error render failed", "command", name, "error", rerr)
				settle(nil, rerr)
				return
			}
			settle(nil, nil)
			return
		}
		if rerr := p.commit(TriggerComplete, name, v); rerr != nil {
			p.logger.Error("completion render failed", "command", name, "error", rerr)
			settle(v, rerr)
			return
		}
		settle(v, nil)
	}()
	return chained
}

func (p *Page) cancelErrorCommand(_ context.Context, args ...any) (Outcome, error) {
	kind := errorName(args)
	if kind == "" {
		return nil, nil
	}
	p.CancelError(kind)
	return nil, nil
}

func errorName(args []any) string {
	if len(args) == 0 {
		return ""
	}
	switch v := args[0].(type) {
	case string:
		return v
	case ErrorRef:
		return v.ErrorName
	case *ErrorRef:
		if v != nil {
			return v.ErrorName
		}
	case map[string]any:
		s, _ := v["errorName"].(string)
		return s
	}
	return ""
}

func (p *Page) redirectCommand(_ context.Context, args ...any) (Outcome, error) {
	if p.navigator == nil {
		return nil, NewFailure(KindNavigation, map[string]any{"message": "no navigator configured"})
	}
	var path string
	if len(args) > 0 {
		path, _ = args[0].(string)
	}
	target, err := resolveRedirect(p.navigator.Location(), path)
	if err != nil {
		return nil, &Failure{Name: KindNavigation, Fields: map[string]any{"message": err.Error(), "path": path}, Err: err}
	}
	if err := p.navigator.Navigate(target); err != nil {
		return nil, &Failure{Name: KindNavigation, Fields: map[string]any{"message": err.Error(), "path": path}, Err: err}
	}
	return nil, nil
}

// resolveRedirect resolves path against the origin of current.
func resolveRedirect(current *url.URL, path string) (*url.URL, error) {
	if current == nil {
		return nil, errors.New("current location is unknown")
	}
	ref, err := url.Parse("/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse redirect path: %w", err)
	}
	origin := &url.URL{Scheme: current.Scheme, Host: current.Host, Path: "/"}
	return origin.ResolveReference(ref), nil
}

func (p *Page) reloadCommand(ctx context.Context, _ ...any) (Outcome, error) {
	return Async(ctx, func(ctx context.Context) (any, error) {
		return nil, p.runProviders(ctx)
	}), nil
}
