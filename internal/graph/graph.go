// Package graph implements the Node Registry and Node Graph (spec §4.2):
// a static factory table keyed by type tag, and a live graph that tracks
// the state tree's "nodes" list, constructing/destroying instances as
// entries are inserted, retyped, or deleted.
package graph

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// Constructor builds one node instance from its configuration mapping.
// stateMapping is the node's own entry in the "nodes" list; pool is the
// shared thread pool handed to nodes that offload CPU-heavy work;
// g is the owning Graph, letting nodes look up siblings (e.g. the toggle
// node resolving its analog source by name).
type Constructor func(stateMapping *state.Map, pool *workpool.Pool, g *Graph) (signal.Node, error)

// Factory pairs a Constructor with the one-shot prepare/cleanup hooks a
// type needs for process-wide native resources (spec §4.2, §9.3
// "Graph-wide global singletons"). Prepare runs once at registry build
// time; a Factory whose Prepare returns false is dropped from the table
// entirely, per the spec's "Native-SDK not present" error kind.
type Factory struct {
	Type      string
	Prepare   func() bool
	Cleanup   func()
	Construct Constructor

	once    sync.Once
	ready   bool
}

func (f *Factory) prepareOnce() bool {
	f.once.Do(func() {
		if f.Prepare == nil {
			f.ready = true
			return
		}
		f.ready = f.Prepare()
	})
	return f.ready
}

// Registry is the static type-tag -> Factory table. Registries are built
// once at startup via NewRegistry; factories that fail prepare() are
// excluded with a warning logged, matching the spec's startup-time pruning.
type Registry struct {
	factories map[string]*Factory
}

// NewRegistry runs prepare() on every candidate factory and keeps only
// the ones that succeed.
func NewRegistry(candidates []*Factory) *Registry {
	r := &Registry{factories: make(map[string]*Factory, len(candidates))}
	for _, f := range candidates {
		if f.prepareOnce() {
			r.factories[f.Type] = f
		} else {
			logrus.WithField("type", f.Type).Warn("factory prepare() failed; type removed from registry")
		}
	}
	return r
}

// TypeName reports whether typ is a registered factory tag.
func (r *Registry) TypeName(typ string) (string, bool) {
	if _, ok := r.factories[typ]; ok {
		return typ, true
	}
	return "", false
}

func (r *Registry) Cleanup() {
	for _, f := range r.factories {
		if f.Cleanup != nil {
			f.Cleanup()
		}
	}
}

// liveNode is one constructed instance tracked against its state entry.
type liveNode struct {
	name string
	typ  string
	node signal.Node
}

// pendingLookup is a scoped subscription waiting for a matching node to
// appear (spec §4.2 "get_node_scoped").
type pendingLookup struct {
	id       int
	selector Selector
	callback func(signal.Node)
}

// Selector matches a node by Name or by Type (exactly one should be set).
type Selector struct {
	Name string
	Type string
}

func (s Selector) matches(n *liveNode) bool {
	if s.Name != "" {
		return n.name == s.Name
	}
	return n.typ == s.Type
}

// Graph tracks the state tree's "nodes" list and keeps the set of live
// node instances in sync with it.
type Graph struct {
	registry *Registry
	pool     *workpool.Pool

	mu       sync.RWMutex
	nodes    []*liveNode
	pending  []pendingLookup
	nextID   int
	watchHdl *state.SignalHandle
}

// NewGraph wires a Graph to the given "nodes" ObservableList, immediately
// constructing instances for any entries already present and subscribing
// to future mutations.
func NewGraph(nodesList *state.List, registry *Registry, pool *workpool.Pool) *Graph {
	g := &Graph{registry: registry, pool: pool}
	for i := 0; i < nodesList.Len(); i++ {
		g.onInsert(nodesList.Get(i))
	}
	g.watchHdl = nodesList.Connect(func(action state.Action, key state.Key, value state.Value) {
		switch action {
		case state.ActionSet:
			g.onInsert(value)
		case state.ActionDelete:
			g.onDeleteByValue(value)
		}
	})
	return g
}

func (g *Graph) onInsert(entryValue state.Value) {
	if entryValue.Kind() != state.KindMap {
		return
	}
	entry := entryValue.Map()
	g.construct(entry)
	entry.Connect(func(action state.Action, key state.Key, value state.Value) {
		if action != state.ActionSet {
			return
		}
		if key.Kind() == state.KindString && key.String() == "type" {
			g.rebuild(entry)
		}
	})
}

func (g *Graph) onDeleteByValue(entryValue state.Value) {
	if entryValue.Kind() != state.KindMap {
		return
	}
	g.destroy(entryValue.Map())
}

func nodeName(entry *state.Map) string {
	if entry.Has(state.StringKey("name")) {
		v := entry.Get(state.StringKey("name"))
		if v.Kind() == state.KindString {
			return v.String()
		}
	}
	return ""
}

func nodeType(entry *state.Map) string {
	if entry.Has(state.StringKey("type")) {
		v := entry.Get(state.StringKey("type"))
		if v.Kind() == state.KindString {
			return v.String()
		}
	}
	return ""
}

func (g *Graph) construct(entry *state.Map) {
	typ := nodeType(entry)
	name := nodeName(entry)
	factory, ok := g.registry.factories[typ]
	if !ok {
		logrus.WithFields(logrus.Fields{"type": typ, "name": name}).Warn("node construction skipped: unregistered type")
		return
	}
	n, err := factory.Construct(entry, g.pool, g)
	if err != nil {
		logrus.WithFields(logrus.Fields{"type": typ, "name": name, "error": err}).Error("node constructor failed; slot left empty")
		return
	}
	live := &liveNode{name: name, typ: typ, node: n}
	g.mu.Lock()
	g.nodes = append(g.nodes, live)
	matched := g.firePendingLocked(live)
	g.mu.Unlock()
	for _, cb := range matched {
		cb(n)
	}
}

func (g *Graph) firePendingLocked(live *liveNode) []func(signal.Node) {
	var fired []func(signal.Node)
	remaining := g.pending[:0]
	for _, p := range g.pending {
		if p.selector.matches(live) {
			fired = append(fired, p.callback)
			continue
		}
		remaining = append(remaining, p)
	}
	g.pending = remaining
	return fired
}

func (g *Graph) rebuild(entry *state.Map) {
	g.destroy(entry)
	g.construct(entry)
}

// Closer is implemented by node types that own a background goroutine or
// other resource needing an explicit stop when their graph entry is
// deleted or retyped (e.g. a wave generator's ticker loop).
type Closer interface {
	Close()
}

func (g *Graph) destroy(entry *state.Map) {
	name := nodeName(entry)
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, n := range g.nodes {
		if n.name == name {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			if c, ok := n.node.(Closer); ok {
				c.Close()
			}
			return
		}
	}
}

// Registry returns the static factory table this Graph was built with.
func (g *Graph) Registry() *Registry { return g.registry }

// NodeInfo is a (name, type) snapshot entry, used by the RPC graph
// introspection endpoint.
type NodeInfo struct {
	Name string
	Type string
}

// List returns a snapshot of every currently live node's name and type,
// in insertion order.
func (g *Graph) List() []NodeInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeInfo, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = NodeInfo{Name: n.name, Type: n.typ}
	}
	return out
}

// GetNode returns the nearest-by-insertion-order node matching selector,
// or nil if none currently exists.
func (g *Graph) GetNode(sel Selector) signal.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if sel.matches(n) {
			return n.node
		}
	}
	return nil
}

// GetNodeScoped invokes callback immediately if a matching node already
// exists; otherwise it is retained and fired on the first future
// insertion that matches. The returned handle cancels the pending
// subscription (a no-op if it already fired).
func (g *Graph) GetNodeScoped(sel Selector, callback func(signal.Node)) *signal.Handle {
	g.mu.Lock()
	for _, n := range g.nodes {
		if sel.matches(n) {
			node := n.node
			g.mu.Unlock()
			callback(node)
			return signal.NewHandle(func() {})
		}
	}
	id := g.nextID
	g.nextID++
	g.pending = append(g.pending, pendingLookup{id: id, selector: sel, callback: callback})
	g.mu.Unlock()
	return signal.NewHandle(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, p := range g.pending {
			if p.id == id {
				g.pending = append(g.pending[:i], g.pending[i+1:]...)
				return
			}
		}
	})
}

// Close stops watching the nodes list and releases the registry's
// global resources.
func (g *Graph) Close() {
	if g.watchHdl != nil {
		g.watchHdl.Disconnect()
	}
	g.registry.Cleanup()
}
