package jsonpath

import (
	"testing"

	"github.com/cajigaslab/thalamus/internal/state"
)

func buildTree() *state.Map {
	root := state.NewMap()
	nodes := state.NewList()
	for _, name := range []string{"wave1", "storage1"} {
		n := state.NewMap()
		n.Assign(state.StringKey("name"), state.StringValue(name), nil)
		nodes.Append(state.MapValue(n), nil)
	}
	root.Assign(state.StringKey("nodes"), state.ListValue(nodes), nil)
	return root
}

func TestGetSetRoundTrip(t *testing.T) {
	root := buildTree()
	p, err := Parse("$.nodes[0].name")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Write(root, p, state.StringValue("renamed")); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, ok := Evaluate(state.MapValue(root), p)
	if !ok || v.String() != "renamed" {
		t.Fatalf("got %v ok=%v", v, ok)
	}
}

func TestDeleteThenGetIsAbsent(t *testing.T) {
	root := buildTree()
	p, _ := Parse("$.nodes[0].name")
	Delete(root, p)
	_, ok := Evaluate(state.MapValue(root), p)
	if ok {
		t.Fatalf("expected absent after delete")
	}
}

func TestWriteCreatesIntermediates(t *testing.T) {
	root := state.NewMap()
	p, _ := Parse("$.a.b.c")
	if err := Write(root, p, state.IntValue(7)); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, ok := Evaluate(state.MapValue(root), p)
	if !ok || v.Int() != 7 {
		t.Fatalf("got %v ok=%v", v, ok)
	}
}

func TestFilterExpression(t *testing.T) {
	root := buildTree()
	p, err := Parse("$.nodes[?(@.name=='storage1')]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, ok := Evaluate(state.MapValue(root), p)
	if !ok {
		t.Fatalf("expected match")
	}
	if v.List().Len() != 1 {
		t.Fatalf("expected 1 match, got %d", v.List().Len())
	}
}
