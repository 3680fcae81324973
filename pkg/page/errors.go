package page

import (
	"encoding/json"
	"maps"
	"sort"
	"sync"
)

// ErrorRecord accumulates every occurrence of one failure kind. A record is
// created once per kind and mutated in place afterwards, so references held by
// renderers or by a parent's Due list stay valid.
type ErrorRecord struct {
	Kind        string
	Payload     map[string]any
	IsCancelled bool
	ThrowCount  int
	Due         []*ErrorRecord
}

// Field returns a payload field.
func (r *ErrorRecord) Field(name string) any {
	return r.Payload[name]
}

// MarshalJSON renders the record in its flat form: payload fields alongside
// name, isCancelled, throwCount and due.
func (r *ErrorRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+4)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["name"] = r.Kind
	out["isCancelled"] = r.IsCancelled
	out["throwCount"] = r.ThrowCount
	if len(r.Due) > 0 {
		due := make([]string, 0, len(r.Due))
		for _, d := range r.Due {
			due = append(due, d.Kind)
		}
		out["due"] = due
	}
	return json.Marshal(out)
}

// ErrorMapping is the errors field of the result store: kind name to record.
type ErrorMapping struct {
	mu      *sync.RWMutex
	records map[string]*ErrorRecord
}

func newErrorMapping(mu *sync.RWMutex) *ErrorMapping {
	return &ErrorMapping{mu: mu, records: make(map[string]*ErrorRecord)}
}

// Get returns the record for kind.
func (m *ErrorMapping) Get(kind string) (*ErrorRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[kind]
	return r, ok
}

// Len returns the number of recorded kinds.
func (m *ErrorMapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Kinds returns recorded kinds in sorted order.
func (m *ErrorMapping) Kinds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := make([]string, 0, len(m.records))
	for k := range m.records {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Active returns records that are not cancelled, sorted by kind.
func (m *ErrorMapping) Active() []*ErrorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ErrorRecord
	for _, r := range m.records {
		if !r.IsCancelled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (m *ErrorMapping) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.records)
}

// record upserts f and its due failures and bumps the throw count of the
// primary record.
func (m *ErrorMapping) record(f *Failure) *ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	primary := m.upsertLocked(f)
	primary.ThrowCount++

	// One level only: a due failure's own Due is ignored. An occurrence
	// without due failures keeps the links of the previous one.
	var due []*ErrorRecord
	for _, d := range f.Due {
		if d == nil {
			continue
		}
		due = append(due, m.upsertLocked(d))
	}
	if len(due) > 0 {
		primary.Due = due
	}
	return primary
}

func (m *ErrorMapping) upsertLocked(f *Failure) *ErrorRecord {
	name := f.Name
	if name == "" {
		name = KindError
	}
	payload := maps.Clone(f.Fields)
	if payload == nil {
		payload = map[string]any{}
	}
	if r, ok := m.records[name]; ok {
		r.Payload = payload
		r.IsCancelled = false
		return r
	}
	r := &ErrorRecord{Kind: name, Payload: payload}
	m.records[name] = r
	return r
}

// cancel marks kind and its due records cancelled. Unknown kinds are ignored.
func (m *ErrorMapping) cancel(kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[kind]
	if !ok {
		return false
	}
	r.IsCancelled = true
	for _, d := range r.Due {
		d.IsCancelled = true
	}
	return true
}
