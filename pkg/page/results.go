package page

import (
	"encoding/json"
	"maps"
	"net/url"
	"sort"
	"sync"
)

// Reserved result names. They are always present and cannot be used as
// provider or command names.
const (
	KeyErrors      = "errors"
	KeyRoute       = "route"
	KeyRootDataset = "parseRootNodeDataset"
	KeyFail        = "fail"
)

func isReserved(name string) bool {
	switch name {
	case KeyErrors, KeyRoute, KeyRootDataset, KeyFail:
		return true
	}
	return false
}

// Results is the result store: the latest value produced by every provider
// and command plus the reserved fields. One Results lives for the whole page
// session and is passed by reference to every render.
type Results struct {
	mu      sync.RWMutex
	values  map[string]any
	errors  *ErrorMapping
	route   *url.URL
	dataset map[string]string
	fail    func(error) error
}

func newResults(seed map[string]any) (*Results, []string) {
	r := &Results{values: make(map[string]any, len(seed))}
	r.errors = newErrorMapping(&r.mu)

	var dropped []string
	for k, v := range seed {
		if isReserved(k) {
			dropped = append(dropped, k)
			continue
		}
		r.values[k] = v
	}
	sort.Strings(dropped)
	return r, dropped
}

// Get returns the value stored under name, including reserved names.
func (r *Results) Get(name string) (any, bool) {
	switch name {
	case KeyErrors:
		return r.errors, true
	case KeyRoute:
		return r.Route(), true
	case KeyRootDataset:
		return r.RootDataset(), true
	case KeyFail:
		return r.fail, r.fail != nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

// Value returns the value stored under name or nil.
func (r *Results) Value(name string) any {
	v, _ := r.Get(name)
	return v
}

// Has reports whether name has been written.
func (r *Results) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the non-reserved names in sorted order.
func (r *Results) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.values))
	for k := range r.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Errors returns the error mapping.
func (r *Results) Errors() *ErrorMapping {
	return r.errors
}

// Route returns the navigation location captured at start, or nil.
func (r *Results) Route() *url.URL {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.route == nil {
		return nil
	}
	u := *r.route
	return &u
}

// RootDataset returns a copy of the root node's dataset captured at start.
func (r *Results) RootDataset() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.dataset)
}

// Fail reports err through the page's error handling, the same path command
// failures take. It returns only render failures. Render code may call it: the
// failure is then recorded after the current render and rendered once more.
func (r *Results) Fail(err error) error {
	r.mu.RLock()
	fail := r.fail
	r.mu.RUnlock()
	if fail == nil {
		return ErrNotStarted
	}
	return fail(err)
}

func (r *Results) set(name string, v any) {
	r.mu.Lock()
	r.values[name] = v
	r.mu.Unlock()
}

func (r *Results) bind(fail func(error) error, route *url.URL, dataset map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
	r.route = route
	r.dataset = maps.Clone(dataset)
	if r.dataset == nil {
		r.dataset = map[string]string{}
	}
}

// Snapshot returns a shallow copy of every value keyed by name, with the
// reserved fields except fail.
func (r *Results) Snapshot() map[string]any {
	r.mu.RLock()
	out := make(map[string]any, len(r.values)+3)
	for k, v := range r.values {
		out[k] = v
	}
	var route string
	if r.route != nil {
		route = r.route.String()
	}
	out[KeyRoute] = route
	out[KeyRootDataset] = maps.Clone(r.dataset)
	r.mu.RUnlock()

	out[KeyErrors] = r.errors
	return out
}

func (r *Results) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}
