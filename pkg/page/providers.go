package page

import (
	"context"
	"fmt"
)

// runProviders runs the configured providers strictly in order. Provider
// failures are returned unhandled; unlike command failures they are not
// recorded in the error mapping.
func (p *Page) runProviders(ctx context.Context) error {
	for _, name := range p.cfg.Providers {
		provider, ok := p.deps.Providers[name]
		if !ok || provider == nil {
			return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}

		out, err := provider(ctx, p.results)
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}

		switch o := out.(type) {
		case *Future:
			v, err := o.Wait(ctx)
			if err != nil {
				return fmt.Errorf("provider %s: %w", name, err)
			}
			p.store(name, v)
		case Stream:
			o(p.ctx, p.pushTo(name))
		case Value:
			p.store(name, o.V)
		case nil:
			p.store(name, nil)
		default:
			return fmt.Errorf("provider %s: unsupported outcome %T", name, out)
		}
	}
	return nil
}

// store writes without rendering; the provider sequence renders once at the end.
func (p *Page) store(name string, v any) {
	p.loop.Lock()
	p.results.set(name, v)
	p.loop.Unlock()
}

// pushTo returns the callback handed to a stream for name. Every payload is
// stored and rendered immediately.
func (p *Page) pushTo(name string) func(any) {
	return func(v any) {
		if p.ctx.Err() != nil {
			return
		}
		if err := p.commit(TriggerPush, name, v); err != nil {
			p.logger.Error("push render failed", "name", name, "error", err)
		}
	}
}
