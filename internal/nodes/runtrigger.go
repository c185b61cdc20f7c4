package nodes

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/rpc"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// nodeRef names one run-trigger target, either a sibling in this graph's
// own "nodes" list or a node on a remote thalamus instance reached over
// RPC. Unifying the two (rather than two parallel node types, as
// original_source/src/run_node.cpp and run2_node.cpp do) was recorded as
// an Open Question decision.
type nodeRef struct {
	name string
	url  string // remote peer base URL; empty for a local target
}

// RunTrigger propagates its own "Running" flag to every configured
// target's "Running" key (spec §4.4 "Run Trigger"), grounded on
// original_source/src/run_node.cpp (local "Targets" comma list) merged
// with run2_node.cpp (remote targets addressed by name+Address, reached
// over the original's gRPC stub — here over this package's RPC Conn).
type RunTrigger struct {
	*signal.Dispatcher

	entry *state.Map
	graph *graph.Graph

	mu      sync.Mutex
	targets []nodeRef
	remotes map[string]*rpc.Conn
}

// NewRunTrigger constructs a RunTrigger bound to its own state entry (to
// reach its "nodes" list sibling and propagate writes) and owning graph.
func NewRunTrigger(entry *state.Map, g *graph.Graph) *RunTrigger {
	return &RunTrigger{
		Dispatcher: signal.NewDispatcher(0),
		entry:      entry,
		graph:      g,
		remotes:    make(map[string]*rpc.Conn),
	}
}

// SetTargets replaces the target list.
func (r *RunTrigger) SetTargets(targets []nodeRef) {
	r.mu.Lock()
	r.targets = targets
	r.mu.Unlock()
}

// SetRunning propagates running to every configured target.
func (r *RunTrigger) SetRunning(running bool) {
	r.mu.Lock()
	targets := append([]nodeRef(nil), r.targets...)
	r.mu.Unlock()
	for _, t := range targets {
		if t.url == "" {
			r.setLocal(t.name, running)
		} else {
			r.setRemote(t, running)
		}
	}
}

// setLocal finds name among entry's siblings in the owning "nodes" list
// and assigns its "Running" key directly, mirroring run_node.cpp's
// direct ObservableDict::assign on each resolved target.
func (r *RunTrigger) setLocal(name string, running bool) {
	parent, ok := r.entry.Parent().(*state.List)
	if !ok {
		return
	}
	for i := 0; i < parent.Len(); i++ {
		v := parent.Get(i)
		if v.Kind() != state.KindMap {
			continue
		}
		m := v.Map()
		if m == r.entry {
			continue
		}
		if getString(m, "name", "") == name {
			m.Assign(state.StringKey("Running"), state.BoolValue(running), nil)
		}
	}
}

// setRemote dials (or reuses) a connection to t.url and sends a
// single-change observable_bridge_v2 transaction setting the target
// node's "Running" key, mirroring run2_node.cpp's grpc.get_thalamus_stub
// lookup-or-dial.
func (r *RunTrigger) setRemote(t nodeRef, running bool) {
	conn := r.remoteConn(t.url)
	if conn == nil {
		return
	}
	value, err := json.Marshal(running)
	if err != nil {
		return
	}
	txn := rpc.Transaction{
		ID: uuid.NewString(),
		Changes: []rpc.Change{
			{Action: state.ActionSet, Address: "/nodes/" + t.name + "/Running", Value: value},
		},
	}
	body, err := json.Marshal(txn)
	if err != nil {
		return
	}
	if err := conn.Send(rpc.Envelope{Kind: rpc.FrameRequest, ID: txn.ID, Payload: body}); err != nil {
		logrus.WithError(err).WithField("url", t.url).Warn("nodes: run trigger remote send failed")
		r.mu.Lock()
		delete(r.remotes, t.url)
		r.mu.Unlock()
		_ = conn.Close()
	}
}

func (r *RunTrigger) remoteConn(url string) *rpc.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.remotes[url]; ok {
		return c
	}
	conn, err := rpc.Dial(url + "/rpc/observable_bridge_v2")
	if err != nil {
		logrus.WithError(err).WithField("url", url).Warn("nodes: run trigger could not reach remote target")
		return nil
	}
	r.remotes[url] = conn
	return conn
}

// Close tears down any open remote connections.
func (r *RunTrigger) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for url, c := range r.remotes {
		_ = c.Close()
		delete(r.remotes, url)
	}
}

var _ signal.Node = (*RunTrigger)(nil)
var _ graph.Closer = (*RunTrigger)(nil)

// NewRunTriggerFactory registers "RUNNER". "Targets" may be either a
// comma-separated string of local sibling names (run_node.cpp's shape) or
// a List of Maps with "Name" and optional "Address" (run2_node.cpp's
// shape, where a non-empty Address makes the target remote).
func NewRunTriggerFactory() *graph.Factory {
	return &graph.Factory{
		Type: "RUNNER",
		Construct: func(m *state.Map, _ *workpool.Pool, g *graph.Graph) (signal.Node, error) {
			rt := NewRunTrigger(m, g)
			k := state.StringKey("Targets")
			apply := func() {
				if !m.Has(k) {
					rt.SetTargets(nil)
					return
				}
				rt.SetTargets(parseTargets(m.Get(k)))
			}
			apply()
			m.Connect(func(action state.Action, ck state.Key, _ state.Value) {
				if action == state.ActionSet && ck.Kind() == state.KindString && ck.String() == "Targets" {
					apply()
				}
			})
			onBoolKey(m, "Running", rt.SetRunning)
			return rt, nil
		},
	}
}

func parseTargets(v state.Value) []nodeRef {
	switch v.Kind() {
	case state.KindString:
		var refs []nodeRef
		for _, tok := range splitComma(v.String()) {
			if tok != "" {
				refs = append(refs, nodeRef{name: tok})
			}
		}
		return refs
	case state.KindList:
		l := v.List()
		refs := make([]nodeRef, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			item := l.Get(i)
			if item.Kind() != state.KindMap {
				continue
			}
			tm := item.Map()
			name := getString(tm, "Name", "")
			if name == "" {
				continue
			}
			refs = append(refs, nodeRef{name: name, url: getString(tm, "Address", "")})
		}
		return refs
	default:
		return nil
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, trimSpace(s[start:i]))
			start = i + 1
		}
	}
	out = append(out, trimSpace(s[start:]))
	return out
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}
