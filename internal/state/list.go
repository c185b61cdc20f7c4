package state

import "fmt"

// List is an observable, index-addressable sequence node of the state tree.
type List struct {
	collection
	items []Value
}

// NewList returns a detached, empty List.
func NewList() *List {
	return &List{collection: newCollection()}
}

func (l *List) Address() string { return l.collection.address(l) }

// childAddress mirrors Map.childAddress for index-addressed entries.
func (l *List) childAddress(index int) string {
	return fmt.Sprintf("%s[%d]", l.Address(), index)
}

// Get returns the value at index. Out-of-range is a contract violation.
func (l *List) Get(index int) Value {
	l.mu.Lock()
	if index < 0 || index >= len(l.items) {
		l.mu.Unlock()
		panic(fmt.Sprintf("state: List.Get: index %d out of range at %s", index, l.Address()))
	}
	v := l.items[index]
	l.mu.Unlock()
	return v
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Snapshot returns a copy of the current contents.
func (l *List) Snapshot() []Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Value, len(l.items))
	copy(out, l.items)
	return out
}

// Append inserts newValue at the end, deferring through the remote-storage
// hook exactly as Map.Assign does.
func (l *List) Append(newValue Value, callback func()) {
	l.mu.Lock()
	index := len(l.items)
	l.mu.Unlock()
	l.assignAt(index, newValue, callback, false)
}

// Assign sets (or appends, if index == Len()) the value at index.
func (l *List) Assign(index int, newValue Value, callback func()) {
	l.assignAt(index, newValue, callback, false)
}

func (l *List) assignAt(index int, newValue Value, callback func(), fromRemote bool) {
	apply := func() {
		if mv, ok := newValue.asCollectionAttach(); ok {
			mv.attachTo(l, IntKey(int64(index)))
		}
		l.mu.Lock()
		if index == len(l.items) {
			l.items = append(l.items, newValue)
		} else if index >= 0 && index < len(l.items) {
			l.items[index] = newValue
		} else {
			l.mu.Unlock()
			panic(fmt.Sprintf("state: List.Assign: index %d out of range at %s", index, l.Address()))
		}
		l.mu.Unlock()
		l.fire(l, ActionSet, IntKey(int64(index)), newValue)
		if callback != nil {
			callback()
		}
	}
	if fromRemote {
		apply()
		return
	}
	if hook := l.remoteHook(); hook != nil {
		hook(ActionSet, l.childAddress(index), newValue, apply)
		return
	}
	apply()
}

func (l *List) AssignFromRemote(index int, newValue Value) {
	l.assignAt(index, newValue, nil, true)
}

// Erase removes the element at index, shifting subsequent elements down.
func (l *List) Erase(index int, callback func()) {
	l.erase(index, callback, false)
}

func (l *List) erase(index int, callback func(), fromRemote bool) {
	l.mu.Lock()
	removed := Nil
	if index >= 0 && index < len(l.items) {
		removed = l.items[index]
	}
	l.mu.Unlock()
	apply := func() {
		l.mu.Lock()
		if index < 0 || index >= len(l.items) {
			l.mu.Unlock()
			return
		}
		l.items = append(l.items[:index], l.items[index+1:]...)
		l.mu.Unlock()
		l.fire(l, ActionDelete, IntKey(int64(index)), removed)
		if callback != nil {
			callback()
		}
	}
	if fromRemote {
		apply()
		return
	}
	if hook := l.remoteHook(); hook != nil {
		hook(ActionDelete, l.childAddress(index), removed, apply)
		return
	}
	apply()
}

func (l *List) EraseFromRemote(index int) {
	l.erase(index, nil, true)
}

// Recap replays the current contents to observer as Set events in index
// order.
func (l *List) Recap(observer Observer) {
	for i, v := range l.Snapshot() {
		observer(ActionSet, IntKey(int64(i)), v)
	}
}

func (l *List) attachTo(parent Collection, key Key) { l.collection.attach(parent, key) }
func (l *List) Detach()                             { l.collection.detach() }

func (l *List) equal(o *List) bool {
	if l == o {
		return true
	}
	if l == nil || o == nil {
		return false
	}
	a := l.Snapshot()
	b := o.Snapshot()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (l *List) ToJSON() any {
	items := l.Snapshot()
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = valueToJSON(v)
	}
	return out
}
