// Package mirror implements the State Manager / mirroring client (spec
// §4.8): it attaches the remote-storage hook to a local root mapping so
// every local write is relayed to an authoritative peer over
// observable_bridge_v2, and applies transactions the peer relays back
// (from other mirrors) through the jsonpath back channel so they never
// loop back out.
package mirror

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cajigaslab/thalamus/internal/rpc"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/state/jsonpath"
)

// Client is the mirroring client: one per local root, dialing a single
// remote observable_bridge_v2 endpoint.
type Client struct {
	url  string
	root *state.Map

	mu      sync.Mutex
	conn    *rpc.Conn
	pending map[string]func()
	closed  bool
	doneCh  chan struct{}

	minBackoff time.Duration
	maxBackoff time.Duration
}

// New builds a Client targeting url (e.g.
// "ws://host:port/rpc/observable_bridge_v2"). The hook is installed
// immediately but the dial loop, and therefore actual mirroring, only
// starts once Start is called.
func New(url string, root *state.Map) *Client {
	c := &Client{
		url:        url,
		root:       root,
		pending:    make(map[string]func()),
		doneCh:     make(chan struct{}),
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
	root.SetRemoteStorage(c.onLocalWrite)
	return c
}

// onLocalWrite is the RemoteStorageHook: it encodes the mutation as a
// Change, sends it as a one-change Transaction, and stashes done to be
// invoked once the peer acknowledges it. A write made while disconnected
// is dropped: nothing is sent or queued, done is never called, and the
// local value stays unapplied.
func (c *Client) onLocalWrite(action state.Action, address string, value state.Value, done func()) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return
	}
	id := uuid.NewString()
	c.pending[id] = done
	c.mu.Unlock()

	change := rpc.Change{Action: action, Address: address}
	if action != state.ActionDelete {
		body, err := state.ValueToJSONBytes(value)
		if err != nil {
			logrus.WithError(err).WithField("address", address).Error("mirror: encode outgoing change failed")
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
			return
		}
		change.Value = body
	}
	txn := rpc.Transaction{ID: id, Changes: []rpc.Change{change}}
	body, err := json.Marshal(txn)
	if err != nil {
		return
	}
	if err := conn.Send(rpc.Envelope{Kind: rpc.FrameRequest, ID: id, Payload: body}); err != nil {
		logrus.WithError(err).Warn("mirror: send failed, dropping outgoing transaction")
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}
}

// Start launches the reconnect-with-backoff dial loop in a background
// goroutine; it returns immediately.
func (c *Client) Start() {
	go c.run()
}

// Stop halts the dial loop and closes any active connection.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-c.doneCh
}

func (c *Client) run() {
	defer close(c.doneCh)
	backoff := c.minBackoff
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		conn, err := rpc.Dial(c.url)
		if err != nil {
			logrus.WithError(err).WithField("url", c.url).Warn("mirror: dial failed, retrying")
			time.Sleep(backoff)
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = c.minBackoff
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		logrus.WithField("url", c.url).Info("mirror: connected")
		c.serve(conn)
		c.mu.Lock()
		c.conn = nil
		c.failPending()
		closed = c.closed
		c.mu.Unlock()
		if closed {
			return
		}
	}
}

// failPending drops every still-outstanding write when the connection
// ends. The dropped writes are not retransmitted after a reconnect and
// their done callbacks are never invoked, so those local values stay
// unapplied.
func (c *Client) failPending() {
	for id := range c.pending {
		delete(c.pending, id)
	}
}

// serve reads from conn until it errors (peer closed or network
// failure), applying relayed transactions and resolving acks for ones
// this client originated.
func (c *Client) serve(conn *rpc.Conn) {
	for {
		env, err := conn.Recv()
		if err != nil {
			return
		}
		switch env.Kind {
		case rpc.FrameResponse:
			c.mu.Lock()
			done, ok := c.pending[env.ID]
			if ok {
				delete(c.pending, env.ID)
			}
			c.mu.Unlock()
			if ok && done != nil {
				done()
			}
		case rpc.FrameRequest:
			var txn rpc.Transaction
			if err := json.Unmarshal(env.Payload, &txn); err != nil {
				continue
			}
			for _, ch := range txn.Changes {
				c.applyRemote(ch)
			}
			_ = conn.Send(rpc.Envelope{Kind: rpc.FrameResponse, ID: env.ID})
		}
	}
}

func (c *Client) applyRemote(ch rpc.Change) {
	p, err := jsonpath.Parse(ch.Address)
	if err != nil {
		logrus.WithError(err).WithField("address", ch.Address).Warn("mirror: bad address in relayed change")
		return
	}
	if ch.Action == state.ActionDelete {
		jsonpath.DeleteFromRemote(c.root, p)
		return
	}
	v, err := state.FromJSONBytes(ch.Value)
	if err != nil {
		logrus.WithError(err).WithField("address", ch.Address).Warn("mirror: bad value in relayed change")
		return
	}
	if err := jsonpath.WriteFromRemote(c.root, p, v); err != nil {
		logrus.WithError(err).WithField("address", ch.Address).Warn("mirror: apply relayed change failed")
	}
}
