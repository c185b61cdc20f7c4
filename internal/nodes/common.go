// Package nodes implements the reference processing node types (spec
// §4.4): wave generator, toggle, algebra, normalize, channel picker,
// sync, run trigger, wallclock, log/remote log, and the storage
// adapter. One file per type, each grounded on its
// original-implementation counterpart, following the one-file-per-type
// layout the teacher uses for its core/ node types.
package nodes

import (
	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
)

func getString(m *state.Map, key string, def string) string {
	k := state.StringKey(key)
	if !m.Has(k) {
		return def
	}
	v := m.Get(k)
	if v.Kind() != state.KindString {
		return def
	}
	return v.String()
}

func getFloat(m *state.Map, key string, def float64) float64 {
	k := state.StringKey(key)
	if !m.Has(k) {
		return def
	}
	v := m.Get(k)
	switch v.Kind() {
	case state.KindFloat, state.KindInt:
		return v.AsFloat()
	default:
		return def
	}
}

func getInt(m *state.Map, key string, def int64) int64 {
	k := state.StringKey(key)
	if !m.Has(k) {
		return def
	}
	v := m.Get(k)
	if v.Kind() != state.KindInt {
		return def
	}
	return v.Int()
}

func getBool(m *state.Map, key string, def bool) bool {
	k := state.StringKey(key)
	if !m.Has(k) {
		return def
	}
	v := m.Get(k)
	if v.Kind() != state.KindBool {
		return def
	}
	return v.Bool()
}

// onStringKey connects an observer that fires fn(value) every time key is
// (re)assigned a string, replaying the current value first if present —
// mirroring the original nodes' on_change-plus-recap startup idiom.
func onStringKey(m *state.Map, key string, fn func(string)) {
	k := state.StringKey(key)
	if m.Has(k) {
		if v := m.Get(k); v.Kind() == state.KindString {
			fn(v.String())
		}
	}
	m.Connect(func(action state.Action, ck state.Key, v state.Value) {
		if action != state.ActionSet || ck.Kind() != state.KindString || ck.String() != key {
			return
		}
		if v.Kind() == state.KindString {
			fn(v.String())
		}
	})
}

func onFloatKey(m *state.Map, key string, fn func(float64)) {
	k := state.StringKey(key)
	if m.Has(k) {
		if v := m.Get(k); v.Kind() == state.KindFloat || v.Kind() == state.KindInt {
			fn(v.AsFloat())
		}
	}
	m.Connect(func(action state.Action, ck state.Key, v state.Value) {
		if action != state.ActionSet || ck.Kind() != state.KindString || ck.String() != key {
			return
		}
		if v.Kind() == state.KindFloat || v.Kind() == state.KindInt {
			fn(v.AsFloat())
		}
	})
}

func onBoolKey(m *state.Map, key string, fn func(bool)) {
	k := state.StringKey(key)
	if m.Has(k) {
		if v := m.Get(k); v.Kind() == state.KindBool {
			fn(v.Bool())
		}
	}
	m.Connect(func(action state.Action, ck state.Key, v state.Value) {
		if action != state.ActionSet || ck.Kind() != state.KindString || ck.String() != key {
			return
		}
		if v.Kind() == state.KindBool {
			fn(v.Bool())
		}
	})
}

// resolveAnalogSource waits (possibly immediately) for a node named
// sourceName to appear in g and exposes analog data, then invokes fn with
// it, mirroring graph->get_node_scoped's dynamic_pointer_cast<AnalogNode>
// dance throughout the original node implementations (e.g. normalize_node.cpp,
// algebra_node.cpp, test_pulse_node.cpp).
func resolveAnalogSource(g *graph.Graph, sourceName string, fn func(signal.AnalogNode)) *signal.Handle {
	return g.GetNodeScoped(graph.Selector{Name: sourceName}, func(n signal.Node) {
		if an, ok := n.(signal.AnalogNode); ok {
			fn(an)
		}
	})
}
