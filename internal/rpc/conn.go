package rpc

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn wraps one upgraded websocket connection with typed Envelope
// helpers and a write mutex, since gorilla/websocket connections are not
// safe for concurrent writers (a server-stream handler's sends can come
// from whichever goroutine fires the subscribed producer's signal).
type Conn struct {
	ws    *websocket.Conn
	wmu   sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn { return &Conn{ws: ws} }

// Dial opens a client-side connection to an RPC endpoint mounted by a
// peer's Router (e.g. "ws://host:port/rpc/observable_bridge_v2"), for
// callers such as internal/mirror that speak a bidi RPC as a client
// rather than serving it.
func Dial(url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

// Send writes one Envelope as a JSON text frame.
func (c *Conn) Send(e Envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteJSON(e)
}

// SendPayload marshals v and sends it as a stream-item frame.
func (c *Conn) SendPayload(id string, v any) error {
	body, err := newPayload(v)
	if err != nil {
		return err
	}
	return c.Send(Envelope{Kind: FrameStreamItem, ID: id, Payload: body})
}

// SendEnd sends a stream-end frame, signaling a server-stream/bidi
// response is complete.
func (c *Conn) SendEnd(id string) error {
	return c.Send(Envelope{Kind: FrameStreamEnd, ID: id})
}

// SendError sends an error frame.
func (c *Conn) SendError(id string, msg string) error {
	return c.Send(Envelope{Kind: FrameError, ID: id, Error: msg})
}

// Recv blocks for the next Envelope, or returns an error once the peer
// closes the connection.
func (c *Conn) Recv() (Envelope, error) {
	var e Envelope
	err := c.ws.ReadJSON(&e)
	return e, err
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error { return c.ws.Close() }

func unmarshalInto(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}
