package graph

import (
	"testing"

	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

type stubNode struct {
	*signal.Dispatcher
}

func newStubFactory(typ string) *Factory {
	return &Factory{
		Type: typ,
		Construct: func(m *state.Map, pool *workpool.Pool, g *Graph) (signal.Node, error) {
			return &stubNode{Dispatcher: signal.NewDispatcher(signal.Analog)}, nil
		},
	}
}

func newNodeEntry(typ, name string) *state.Map {
	m := state.NewMap()
	m.Assign(state.StringKey("type"), state.StringValue(typ), nil)
	m.Assign(state.StringKey("name"), state.StringValue(name), nil)
	return m
}

func TestConstructsExistingEntriesOnNewGraph(t *testing.T) {
	nodes := state.NewList()
	nodes.Append(state.MapValue(newNodeEntry("WAVE", "wave1")), nil)
	reg := NewRegistry([]*Factory{newStubFactory("WAVE")})
	g := NewGraph(nodes, reg, workpool.New("t"))
	defer g.Close()

	if g.GetNode(Selector{Name: "wave1"}) == nil {
		t.Fatalf("expected wave1 to be constructed")
	}
}

func TestUnregisteredTypeDroppedAtPrepare(t *testing.T) {
	f := &Factory{Type: "BAD", Prepare: func() bool { return false }}
	reg := NewRegistry([]*Factory{f})
	if _, ok := reg.TypeName("BAD"); ok {
		t.Fatalf("expected BAD to be dropped from registry")
	}
}

func TestInsertionConstructsNode(t *testing.T) {
	nodes := state.NewList()
	reg := NewRegistry([]*Factory{newStubFactory("WAVE")})
	g := NewGraph(nodes, reg, workpool.New("t"))
	defer g.Close()

	nodes.Append(state.MapValue(newNodeEntry("WAVE", "wave1")), nil)
	if g.GetNode(Selector{Name: "wave1"}) == nil {
		t.Fatalf("expected node to appear after insertion")
	}
}

func TestGetNodeScopedFiresImmediatelyWhenPresent(t *testing.T) {
	nodes := state.NewList()
	nodes.Append(state.MapValue(newNodeEntry("WAVE", "wave1")), nil)
	reg := NewRegistry([]*Factory{newStubFactory("WAVE")})
	g := NewGraph(nodes, reg, workpool.New("t"))
	defer g.Close()

	called := false
	g.GetNodeScoped(Selector{Name: "wave1"}, func(n signal.Node) { called = true })
	if !called {
		t.Fatalf("expected immediate callback for existing node")
	}
}

func TestGetNodeScopedFiresOnFutureInsertion(t *testing.T) {
	nodes := state.NewList()
	reg := NewRegistry([]*Factory{newStubFactory("WAVE")})
	g := NewGraph(nodes, reg, workpool.New("t"))
	defer g.Close()

	called := false
	g.GetNodeScoped(Selector{Name: "wave1"}, func(n signal.Node) { called = true })
	if called {
		t.Fatalf("should not fire before insertion")
	}
	nodes.Append(state.MapValue(newNodeEntry("WAVE", "wave1")), nil)
	if !called {
		t.Fatalf("expected callback to fire on matching insertion")
	}
}

func TestDeletionDestroysNode(t *testing.T) {
	nodes := state.NewList()
	nodes.Append(state.MapValue(newNodeEntry("WAVE", "wave1")), nil)
	reg := NewRegistry([]*Factory{newStubFactory("WAVE")})
	g := NewGraph(nodes, reg, workpool.New("t"))
	defer g.Close()

	nodes.Erase(0, nil)
	if g.GetNode(Selector{Name: "wave1"}) != nil {
		t.Fatalf("expected node to be destroyed after deletion")
	}
}
