package rpc

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/state/jsonpath"
)

// Change is one {action, address, value} mutation within a Transaction
// (spec §4.7 "observable_bridge_v2").
type Change struct {
	Action  state.Action    `json:"action"`
	Address string          `json:"address"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// Transaction is a batch of changes carrying a unique id; an empty
// Transaction with Acknowledged set is the receiver's reply.
type Transaction struct {
	ID           string   `json:"id,omitempty"`
	Changes      []Change `json:"changes,omitempty"`
	Acknowledged string   `json:"acknowledged,omitempty"`
}

// bridgePeer is one connected observable_bridge_v2 client.
type bridgePeer struct {
	conn *Conn
}

// Bridge is the server side of the state-mirroring RPC: it applies
// incoming transactions to root with from_remote=true semantics, acks
// the originator, and relays the same changes to every other connected
// peer so all mirrors converge (spec §4.8).
type Bridge struct {
	root *state.Map

	mu    sync.Mutex
	peers map[*bridgePeer]struct{}
}

// NewBridge wires a Bridge to the authoritative root mapping.
func NewBridge(root *state.Map) *Bridge {
	return &Bridge{root: root, peers: make(map[*bridgePeer]struct{})}
}

// Handle is a BidiHandler implementing observable_bridge_v2 for one
// connection's lifetime.
func (b *Bridge) Handle(conn *Conn) error {
	peer := &bridgePeer{conn: conn}
	b.mu.Lock()
	b.peers[peer] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.peers, peer)
		b.mu.Unlock()
	}()

	for {
		env, err := conn.Recv()
		if err != nil {
			return nil
		}
		if env.Kind != FrameRequest {
			continue
		}
		var txn Transaction
		if err := unmarshalInto(env.Payload, &txn); err != nil {
			_ = conn.SendError(env.ID, err.Error())
			continue
		}
		if txn.Acknowledged != "" {
			// This peer is acking a transaction the server previously
			// relayed to it; nothing further to do server-side since the
			// server does not defer its own writes through a hook.
			continue
		}
		for _, c := range txn.Changes {
			b.applyChange(c)
		}
		if err := conn.Send(Envelope{Kind: FrameResponse, ID: env.ID}); err != nil {
			return err
		}
		b.relay(peer, txn.Changes)
	}
}

func (b *Bridge) applyChange(c Change) {
	p, err := jsonpath.Parse(c.Address)
	if err != nil {
		return
	}
	if c.Action == state.ActionDelete {
		jsonpath.DeleteFromRemote(b.root, p)
		return
	}
	v, err := state.FromJSONBytes(c.Value)
	if err != nil {
		return
	}
	_ = jsonpath.WriteFromRemote(b.root, p, v)
}

// relay forwards changes to every peer except origin, each as a freshly
// id'd Transaction, preserving per-peer send order by reusing that
// peer's own Conn (whose Send is already mutex-guarded).
func (b *Bridge) relay(origin *bridgePeer, changes []Change) {
	if len(changes) == 0 {
		return
	}
	b.mu.Lock()
	targets := make([]*bridgePeer, 0, len(b.peers))
	for p := range b.peers {
		if p != origin {
			targets = append(targets, p)
		}
	}
	b.mu.Unlock()
	for _, p := range targets {
		txn := Transaction{ID: uuid.NewString(), Changes: changes}
		body, err := json.Marshal(txn)
		if err != nil {
			continue
		}
		_ = p.conn.Send(Envelope{Kind: FrameRequest, ID: txn.ID, Payload: body})
	}
}
