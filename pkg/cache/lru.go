package cache

import (
	"container/list"
	"slices"
	"sync"
	"time"
)

type lru struct {
	mu       sync.Mutex
	perScope int
	now      func() time.Time
	// scopes maps scope -> recency list of *Entry (front = most recent)
	scopes map[string]*list.List
	// elements maps entryKey -> *list.Element
	elements map[string]*list.Element
}

// NewLRU returns a Cache that keeps at most perScope entries in each scope,
// evicting the least recently used one first.
func NewLRU(perScope int) Cache {
	if perScope < 1 {
		perScope = 1
	}
	return &lru{
		perScope: perScope,
		now:      time.Now,
		scopes:   make(map[string]*list.List),
		elements: make(map[string]*list.Element),
	}
}

func entryKey(scope, key string) string {
	return scope + "\x00" + key
}

func (c *lru) Put(scope, key string, value []byte, opts ...Option) {
	o := &putOptions{}
	for _, opt := range opts {
		opt(o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expiresAt *time.Time
	if o.ttl > 0 {
		t := now.Add(o.ttl)
		expiresAt = &t
	}
	value = slices.Clone(value)

	ek := entryKey(scope, key)
	if elem, ok := c.elements[ek]; ok {
		e := elem.Value.(*Entry)
		e.Value = value
		e.ExpiresAt = expiresAt
		e.StoredAt = now
		e.Hits = 0
		c.scopes[scope].MoveToFront(elem)
		return
	}

	l, ok := c.scopes[scope]
	if !ok {
		l = list.New()
		c.scopes[scope] = l
	}
	if l.Len() >= c.perScope {
		if back := l.Back(); back != nil {
			evicted := l.Remove(back).(*Entry)
			delete(c.elements, entryKey(evicted.Scope, evicted.Key))
		}
	}
	c.elements[ek] = l.PushFront(&Entry{
		Scope:     scope,
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
		StoredAt:  now,
	})
}

func (c *lru) Get(scope, key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.elements[entryKey(scope, key)]
	if !ok {
		return Entry{}, false
	}
	e := elem.Value.(*Entry)
	if e.Expired(c.now()) {
		c.removeLocked(elem)
		return Entry{}, false
	}
	e.Hits++
	c.scopes[scope].MoveToFront(elem)
	out := *e
	out.Value = slices.Clone(e.Value)
	return out, true
}

func (c *lru) Delete(scope, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.elements[entryKey(scope, key)]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

func (c *lru) Purge(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.scopes[scope]
	if !ok {
		return 0
	}
	n := l.Len()
	for elem := l.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*Entry)
		delete(c.elements, entryKey(e.Scope, e.Key))
	}
	delete(c.scopes, scope)
	return n
}

// Keys lists live keys of scope, most recent first. Expired entries found
// on the way are dropped.
func (c *lru) Keys(scope string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.scopes[scope]
	if !ok {
		return nil
	}
	now := c.now()
	var keys []string
	var expired []*list.Element
	for elem := l.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*Entry)
		if e.Expired(now) {
			expired = append(expired, elem)
			continue
		}
		keys = append(keys, e.Key)
	}
	for _, elem := range expired {
		c.removeLocked(elem)
	}
	return keys
}

func (c *lru) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.elements)
}

func (c *lru) removeLocked(elem *list.Element) {
	e := elem.Value.(*Entry)
	l := c.scopes[e.Scope]
	l.Remove(elem)
	delete(c.elements, entryKey(e.Scope, e.Key))
	if l.Len() == 0 {
		delete(c.scopes, e.Scope)
	}
}
