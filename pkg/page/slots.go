package page

// SlotContext is what a slot handler renders from.
type SlotContext struct {
	Results              *Results
	Actions              Actions
	CommandBeingExecuted string
	HostData             any
}

// SlotHandler renders the content of a named slot.
type SlotHandler func(SlotContext) Tree

// SlotRenderer renders a slot for host-supplied data.
type SlotRenderer func(hostData any) Tree

// View is passed to the RenderFunc on every render.
type View struct {
	// Results is the live result store, not a copy.
	Results *Results
	// InFlight names the command whose pending result triggered this render.
	InFlight string
	// GetSlot resolves a slot renderer by id.
	GetSlot func(id string) SlotRenderer
}

// Slot is shorthand for v.GetSlot(id).
func (v View) Slot(id string) SlotRenderer {
	if v.GetSlot == nil {
		return emptySlot
	}
	return v.GetSlot(id)
}

func emptySlot(any) Tree { return nil }

func (p *Page) slotResolver(inFlight string) func(id string) SlotRenderer {
	return func(id string) SlotRenderer {
		handler, ok := p.cfg.Slots[id]
		if !ok || handler == nil {
			return emptySlot
		}
		return func(hostData any) Tree {
			return handler(SlotContext{
				Results:              p.results,
				Actions:              p.actions,
				CommandBeingExecuted: inFlight,
				HostData:             hostData,
			})
		}
	}
}
