package nodes

import (
	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/storage"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// NewStorageFactory registers "STORAGE": a thin adapter wiring a
// storage.Pipeline (spec §4.6) into the node graph as an ordinary node
// type, reading "Output Base"/"Compress"/"Sources"/"Running" from its
// state entry. The pipeline itself already implements signal.AnalogNode
// (queue length/bytes channels), so the factory only needs to resolve
// configuration and forward it.
func NewStorageFactory() *graph.Factory {
	return &graph.Factory{
		Type: "STORAGE",
		Construct: func(m *state.Map, pool *workpool.Pool, g *graph.Graph) (signal.Node, error) {
			outputBase := getString(m, "Output Base", "thalamus")
			compress := getBool(m, "Compress", true)
			resolve := func(name string) signal.Node { return g.GetNode(graph.Selector{Name: name}) }
			p := storage.NewPipeline(outputBase, pool, resolve, compress)

			k := state.StringKey("Sources")
			applySources := func() {
				if !m.Has(k) {
					p.SetSources(nil)
					return
				}
				v := m.Get(k)
				if v.Kind() != state.KindList {
					p.SetSources(nil)
					return
				}
				l := v.List()
				names := make([]string, 0, l.Len())
				for i := 0; i < l.Len(); i++ {
					item := l.Get(i)
					if item.Kind() == state.KindString {
						names = append(names, item.String())
					}
				}
				p.SetSources(names)
			}
			applySources()
			m.Connect(func(action state.Action, ck state.Key, _ state.Value) {
				if action == state.ActionSet && ck.Kind() == state.KindString && ck.String() == "Sources" {
					applySources()
				}
			})
			onBoolKey(m, "Running", func(running bool) { _ = p.SetRunning(running) })
			return p, nil
		},
	}
}
