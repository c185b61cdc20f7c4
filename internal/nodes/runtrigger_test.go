package nodes

import (
	"testing"

	"github.com/cajigaslab/thalamus/internal/state"
)

func TestRunTriggerSetsLocalSiblingRunning(t *testing.T) {
	nodesList := state.NewList()

	target := state.NewMap()
	target.Assign(state.StringKey("name"), state.StringValue("wave1"), nil)
	nodesList.Append(state.MapValue(target), nil)

	trigger := state.NewMap()
	trigger.Assign(state.StringKey("name"), state.StringValue("runner1"), nil)
	nodesList.Append(state.MapValue(trigger), nil)

	rt := NewRunTrigger(trigger, nil)
	rt.SetTargets([]nodeRef{{name: "wave1"}})
	rt.SetRunning(true)

	if !getBool(target, "Running", false) {
		t.Fatal("expected sibling target's Running key to be set")
	}
}

func TestParseTargetsCommaList(t *testing.T) {
	refs := parseTargets(state.StringValue(" a , b ,c"))
	want := []string{"a", "b", "c"}
	if len(refs) != len(want) {
		t.Fatalf("got %d refs, want %d", len(refs), len(want))
	}
	for i, w := range want {
		if refs[i].name != w || refs[i].url != "" {
			t.Fatalf("ref %d: got %+v want name %q", i, refs[i], w)
		}
	}
}

func TestParseTargetsListWithAddress(t *testing.T) {
	l := state.NewList()
	m := state.NewMap()
	m.Assign(state.StringKey("Name"), state.StringValue("remote1"), nil)
	m.Assign(state.StringKey("Address"), state.StringValue("ws://peer:50050"), nil)
	l.Append(state.MapValue(m), nil)

	refs := parseTargets(state.ListValue(l))
	if len(refs) != 1 || refs[0].name != "remote1" || refs[0].url != "ws://peer:50050" {
		t.Fatalf("got %+v", refs)
	}
}
