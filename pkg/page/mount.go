package page

import (
	"fmt"
	"time"
)

// liveState is the page's authoritative rendered structure and the tree it
// was last rendered from. Only mount writes it.
type liveState struct {
	root Node
	tree Tree
}

// mount reconciles the live structure toward next. Caller holds p.loop.
func (p *Page) mount(next Tree) error {
	patch, err := p.reconciler.Diff(p.live.tree, next)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	root, err := p.reconciler.Apply(p.live.root, patch)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	p.live.root = root
	p.live.tree = next
	return nil
}

// maxReportedPasses bounds the follow-up renders for failures reported from
// render code, so a view that fails on every render cannot loop forever.
const maxReportedPasses = 8

// renderLocked renders the current store and mounts the result. Inside a
// batch it only marks the page dirty. Failures reported while the view was
// rendering are recorded afterwards and rendered by follow-up passes. Caller
// holds p.loop.
func (p *Page) renderLocked(trigger Trigger, command, inFlight string) error {
	if p.batchDepth > 0 {
		p.dirty = true
		return nil
	}

	err := p.renderOnce(trigger, command, inFlight)
	for pass := 0; ; pass++ {
		reported := p.takeReported()
		if len(reported) == 0 {
			return err
		}
		var kind string
		for _, f := range reported {
			rec := p.results.errors.record(f)
			kind = rec.Kind
			p.logger.Info("error recorded", "kind", rec.Kind, "throw_count", rec.ThrowCount, "due", len(rec.Due), "from_render", true)
		}
		if err != nil {
			return err
		}
		if pass >= maxReportedPasses {
			p.logger.Warn("view keeps reporting failures; not rendering them", "kind", kind, "passes", pass)
			return nil
		}
		err = p.renderOnce(TriggerError, kind, inFlight)
	}
}

// renderOnce runs RenderPage, mounts the tree and notifies observers with
// p.rendering set, so Fail calls from that code are queued instead of
// waiting on p.loop.
func (p *Page) renderOnce(trigger Trigger, command, inFlight string) error {
	p.setRendering(true)
	defer p.setRendering(false)

	start := time.Now()
	tree, err := p.cfg.RenderPage(View{
		Results:  p.results,
		InFlight: inFlight,
		GetSlot:  p.slotResolver(inFlight),
	})
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	if err := p.mount(tree); err != nil {
		return err
	}

	p.seq++
	p.logger.Debug("page rendered",
		"seq", p.seq,
		"trigger", string(trigger),
		"command", command,
		"in_flight", inFlight,
		"duration", time.Since(start),
	)

	info := RenderInfo{
		PageID:   p.id,
		Seq:      p.seq,
		Trigger:  trigger,
		Command:  command,
		InFlight: inFlight,
		Results:  p.results,
		Tree:     tree,
	}
	for _, observe := range p.observers {
		observe(info)
	}
	return nil
}

func (p *Page) setRendering(v bool) {
	p.reportMu.Lock()
	p.rendering = v
	p.reportMu.Unlock()
}

// report queues f when a render is in progress and reports whether it did.
func (p *Page) report(f *Failure) bool {
	p.reportMu.Lock()
	defer p.reportMu.Unlock()
	if !p.rendering {
		return false
	}
	p.reported = append(p.reported, f)
	return true
}

func (p *Page) takeReported() []*Failure {
	p.reportMu.Lock()
	defer p.reportMu.Unlock()
	out := p.reported
	p.reported = nil
	return out
}

func (p *Page) render(trigger Trigger, command, inFlight string) error {
	p.loop.Lock()
	defer p.loop.Unlock()
	return p.renderLocked(trigger, command, inFlight)
}

// commit stores v under name and renders once.
func (p *Page) commit(trigger Trigger, name string, v any) error {
	p.loop.Lock()
	defer p.loop.Unlock()
	p.results.set(name, v)
	return p.renderLocked(trigger, name, "")
}

// Batch runs fn with renders deferred. Writes made inside fn render once when
// the outermost batch returns, if anything was written. Renders from work
// that completes after Batch returns are not deferred.
func (p *Page) Batch(fn func()) (err error) {
	p.loop.Lock()
	p.batchDepth++
	p.loop.Unlock()

	defer func() {
		p.loop.Lock()
		defer p.loop.Unlock()
		p.batchDepth--
		if p.batchDepth == 0 && p.dirty {
			p.dirty = false
			err = p.renderLocked(TriggerBatch, "", "")
		}
	}()
	fn()
	return nil
}
