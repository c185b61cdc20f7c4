package nodes

import (
	"testing"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

func TestStorageFactoryWiresSourcesAndRunning(t *testing.T) {
	dir := t.TempDir()
	m := state.NewMap()
	m.Assign(state.StringKey("Output Base"), state.StringValue(dir+"/out"), nil)
	m.Assign(state.StringKey("Compress"), state.BoolValue(false), nil)
	sources := state.NewList()
	sources.Append(state.StringValue("wave1"), nil)
	m.Assign(state.StringKey("Sources"), state.ListValue(sources), nil)

	f := NewStorageFactory()
	nodesList := state.NewList()
	reg := graph.NewRegistry([]*graph.Factory{f})
	g := graph.NewGraph(nodesList, reg, workpool.New("t"))
	defer g.Close()

	n, err := f.Construct(m, workpool.New("t"), g)
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}
	if n == nil {
		t.Fatal("expected a non-nil node")
	}

	m.Assign(state.StringKey("Running"), state.BoolValue(true), nil)
	m.Assign(state.StringKey("Running"), state.BoolValue(false), nil)
}
