package state

import (
	"strconv"
	"sync"
)

// Action tags what kind of mutation fired a change signal.
type Action uint8

const (
	ActionSet Action = iota
	ActionDelete
)

func (a Action) String() string {
	if a == ActionDelete {
		return "delete"
	}
	return "set"
}

// Observer receives local change notifications for one collection.
type Observer func(action Action, key Key, value Value)

// RecursiveObserver receives notifications re-fired up the parent chain;
// origin is always the collection where the mutation actually happened.
type RecursiveObserver func(origin Collection, action Action, key Key, value Value)

// RemoteStorageHook is installed on a mirrored collection. A write calls
// the hook instead of applying immediately; the hook must eventually
// invoke done, at which point the mutation is applied and local signals
// fire. Writes that arrive through the separate back channel (from_remote)
// bypass the hook entirely — they are authoritative.
type RemoteStorageHook func(action Action, address string, value Value, done func())

// SignalHandle is the move-only scope guard returned by Connect /
// ConnectRecursive. Calling Disconnect more than once is a no-op.
type SignalHandle struct {
	disconnect func()
	once       sync.Once
}

// Disconnect severs the connection. Safe to call multiple times.
func (h *SignalHandle) Disconnect() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.disconnect != nil {
			h.disconnect()
		}
	})
}

// Collection is the common interface implemented by Map and List: the
// address-computing, signal-bearing base described in spec §3.1.
type Collection interface {
	// Parent returns the owning collection, or nil if detached/root.
	Parent() Collection
	// Address returns this collection's JSONPath address from the root.
	Address() string
	// Connect registers a local observer; disconnecting severs it.
	Connect(Observer) *SignalHandle
	// ConnectRecursive registers an observer that also sees descendant
	// mutations re-fired up the chain.
	ConnectRecursive(RecursiveObserver) *SignalHandle
	// SetRemoteStorage installs (or clears, with nil) the mirroring hook.
	SetRemoteStorage(RemoteStorageHook)
	// ToJSON renders this collection (and descendants) as a plain Go value
	// built from map[string]any / []any / primitives.
	ToJSON() any
}

// collection is the embeddable base shared by Map and List. It is never
// used directly.
type collection struct {
	mu                sync.Mutex
	parent            Collection // weak: never the owner, just a back-pointer
	parentKey         Key
	hasParentKey      bool
	observers         map[int]Observer
	recursiveObs      map[int]RecursiveObserver
	nextObserverID    int
	remoteStorage     RemoteStorageHook
}

func newCollection() collection {
	return collection{
		observers:    make(map[int]Observer),
		recursiveObs: make(map[int]RecursiveObserver),
	}
}

func (c *collection) Parent() Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parent
}

// attach records the parent back-pointer and the key this collection is
// addressed by within that parent. Called whenever the collection is
// inserted somewhere; must be cleared (detach) before the parent drops its
// last owning reference, per the tree's parent-pointer invariant.
func (c *collection) attach(parent Collection, key Key) {
	c.mu.Lock()
	c.parent = parent
	c.parentKey = key
	c.hasParentKey = true
	c.mu.Unlock()
}

func (c *collection) detach() {
	c.mu.Lock()
	c.parent = nil
	c.hasParentKey = false
	c.mu.Unlock()
}

func (c *collection) Connect(o Observer) *SignalHandle {
	c.mu.Lock()
	id := c.nextObserverID
	c.nextObserverID++
	c.observers[id] = o
	c.mu.Unlock()
	return &SignalHandle{disconnect: func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}}
}

func (c *collection) ConnectRecursive(o RecursiveObserver) *SignalHandle {
	c.mu.Lock()
	id := c.nextObserverID
	c.nextObserverID++
	c.recursiveObs[id] = o
	c.mu.Unlock()
	return &SignalHandle{disconnect: func() {
		c.mu.Lock()
		delete(c.recursiveObs, id)
		c.mu.Unlock()
	}}
}

func (c *collection) SetRemoteStorage(h RemoteStorageHook) {
	c.mu.Lock()
	c.remoteStorage = h
	c.mu.Unlock()
}

func (c *collection) remoteHook() RemoteStorageHook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteStorage
}

// fire runs the local signal, then the recursive signal on self, then
// bubbles the recursive signal up through every ancestor — the order
// spec's "Change-notification order" requires.
func (c *collection) fire(self Collection, action Action, key Key, value Value) {
	c.mu.Lock()
	obs := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		obs = append(obs, o)
	}
	c.mu.Unlock()
	for _, o := range obs {
		o(action, key, value)
	}
	bubble(self, self, action, key, value)
}

func bubble(origin, at Collection, action Action, key Key, value Value) {
	var base *collection
	switch v := at.(type) {
	case *Map:
		base = &v.collection
	case *List:
		base = &v.collection
	default:
		return
	}
	base.mu.Lock()
	ros := make([]RecursiveObserver, 0, len(base.recursiveObs))
	for _, r := range base.recursiveObs {
		ros = append(ros, r)
	}
	parent := base.parent
	base.mu.Unlock()
	for _, r := range ros {
		r(origin, action, key, value)
	}
	if parent != nil {
		bubble(origin, parent, action, key, value)
	}
}

func (c *collection) address(self Collection) string {
	c.mu.Lock()
	parent := c.parent
	key := c.parentKey
	has := c.hasParentKey
	c.mu.Unlock()
	if parent == nil || !has {
		return "$"
	}
	base := parent.Address()
	switch key.Kind() {
	case KindString:
		if isIdentifier(key.s) {
			return base + "." + key.s
		}
		return base + "['" + key.s + "']"
	case KindInt:
		return base + "[" + strconv.FormatInt(key.i, 10) + "]"
	default:
		return base + "['" + key.String() + "']"
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if i > 0 && !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

