package state

import "fmt"

// Map is an observable mapping node of the state tree (spec §3.1).
// Iteration order over its keys is unspecified, per spec.
type Map struct {
	collection
	entries map[string]mapEntry
}

type mapEntry struct {
	key   Key
	value Value
}

// NewMap returns a detached, empty Map.
func NewMap() *Map {
	return &Map{collection: newCollection(), entries: make(map[string]mapEntry)}
}

func mapKeyID(k Key) string {
	return fmt.Sprintf("%d:%s", k.Kind(), k.String())
}

// Address returns this collection's JSONPath address.
func (m *Map) Address() string { return m.collection.address(m) }

// childAddress returns the JSONPath address of key within this map,
// used when notifying the remote-storage hook of a single-entry write
// (spec §4.8: the hook must be able to address the exact entry that
// changed, not just its containing map).
func (m *Map) childAddress(key Key) string {
	base := m.Address()
	if key.Kind() == KindString && isIdentifier(key.String()) {
		return base + "." + key.String()
	}
	return base + "['" + key.String() + "']"
}

// Get returns the value at key. A missing key is a contract violation
// (spec §4.1): callers that need an absent-tolerant lookup should use Has
// first or go through jsonpath evaluation instead.
func (m *Map) Get(key Key) Value {
	m.mu.Lock()
	e, ok := m.entries[mapKeyID(key)]
	m.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("state: Map.Get: key %q not found at %s", key.String(), m.Address()))
	}
	return e.value
}

// Has reports whether key is present without panicking.
func (m *Map) Has(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[mapKeyID(key)]
	return ok
}

// Keys returns the currently present keys in unspecified order.
func (m *Map) Keys() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Key, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.key)
	}
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Assign sets key to newValue. If a remote-storage hook is installed the
// application is deferred: the hook is invoked and must itself call the
// supplied done callback before the write becomes visible. callback, if
// non-nil, is invoked once the write has actually applied (immediately for
// unmirrored collections, or after the hook's done fires for mirrored
// ones) — this is the channel through which the bridge's per-transaction
// acknowledgement unblocks the original assign (spec §4.8).
func (m *Map) Assign(key Key, newValue Value, callback func()) {
	m.assign(key, newValue, callback, false)
}

func (m *Map) assign(key Key, newValue Value, callback func(), fromRemote bool) {
	apply := func() {
		if mv, ok := newValue.asCollectionAttach(); ok {
			mv.attachTo(m, key)
		}
		m.mu.Lock()
		m.entries[mapKeyID(key)] = mapEntry{key: key, value: newValue}
		m.mu.Unlock()
		m.fire(m, ActionSet, key, newValue)
		if callback != nil {
			callback()
		}
	}
	if fromRemote {
		apply()
		return
	}
	if hook := m.remoteHook(); hook != nil {
		hook(ActionSet, m.childAddress(key), newValue, apply)
		return
	}
	apply()
}

// AssignFromRemote applies a write that arrived over the back channel: it
// always bypasses the remote-storage hook, since back-channel writes are
// authoritative (spec §4.1 "Remote-storage hook semantics").
func (m *Map) AssignFromRemote(key Key, newValue Value) {
	m.assign(key, newValue, nil, true)
}

// Erase removes key. Same deferral rule as Assign. The Delete signal
// carries the value being removed (Nil if key was already absent); "delete
// on nonexistent is a no-op" is enforced at the jsonpath-write layer only —
// at the collection layer callers are expected to check Has first if they
// care.
func (m *Map) Erase(key Key, callback func()) {
	m.erase(key, callback, false)
}

func (m *Map) erase(key Key, callback func(), fromRemote bool) {
	m.mu.Lock()
	prior, had := m.entries[mapKeyID(key)]
	m.mu.Unlock()
	removed := Nil
	if had {
		removed = prior.value
	}
	apply := func() {
		m.mu.Lock()
		delete(m.entries, mapKeyID(key))
		m.mu.Unlock()
		m.fire(m, ActionDelete, key, removed)
		if callback != nil {
			callback()
		}
	}
	if fromRemote {
		apply()
		return
	}
	if hook := m.remoteHook(); hook != nil {
		hook(ActionDelete, m.childAddress(key), removed, apply)
		return
	}
	apply()
}

func (m *Map) EraseFromRemote(key Key) {
	m.erase(key, nil, true)
}

// Recap replays the current contents to observer as a stream of Set
// events; from an empty tree, replaying the stream reproduces the current
// contents (spec's recap invariant). Used when a late subscriber joins.
func (m *Map) Recap(observer Observer) {
	m.mu.Lock()
	snapshot := make([]mapEntry, 0, len(m.entries))
	for _, e := range m.entries {
		snapshot = append(snapshot, e)
	}
	m.mu.Unlock()
	for _, e := range snapshot {
		observer(ActionSet, e.key, e.value)
	}
}

func (m *Map) attachTo(parent Collection, key Key) { m.collection.attach(parent, key) }
func (m *Map) Detach()                             { m.collection.detach() }

func (m *Map) equal(o *Map) bool {
	if m == o {
		return true
	}
	if m == nil || o == nil {
		return false
	}
	m.mu.Lock()
	a := make(map[string]mapEntry, len(m.entries))
	for k, v := range m.entries {
		a[k] = v
	}
	m.mu.Unlock()
	o.mu.Lock()
	b := make(map[string]mapEntry, len(o.entries))
	for k, v := range o.entries {
		b[k] = v
	}
	o.mu.Unlock()
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.value.Equal(bv.value) {
			return false
		}
	}
	return true
}

// ToJSON renders the map (and descendants) as map[string]any.
func (m *Map) ToJSON() any {
	m.mu.Lock()
	snapshot := make([]mapEntry, 0, len(m.entries))
	for _, e := range m.entries {
		snapshot = append(snapshot, e)
	}
	m.mu.Unlock()
	out := make(map[string]any, len(snapshot))
	for _, e := range snapshot {
		out[e.key.String()] = valueToJSON(e.value)
	}
	return out
}

func valueToJSON(v Value) any {
	switch v.Kind() {
	case KindNil:
		return nil
	case KindInt:
		return v.Int()
	case KindFloat:
		return v.Float()
	case KindBool:
		return v.Bool()
	case KindString:
		return v.String()
	case KindMap:
		return v.Map().ToJSON()
	case KindList:
		return v.List().ToJSON()
	default:
		return nil
	}
}

// asCollectionAttach returns the underlying collection if v wraps one, so
// the tree can maintain the weak parent back-pointer invariant on assign.
func (v Value) asCollectionAttach() (attachable, bool) {
	switch v.kind {
	case KindMap:
		return v.m, true
	case KindList:
		return v.l, true
	default:
		return nil, false
	}
}

type attachable interface {
	attachTo(parent Collection, key Key)
}
