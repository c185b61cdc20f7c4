package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// UnaryHandler answers a single request with a single response.
type UnaryHandler func(payload json.RawMessage) (any, error)

// ServerStreamHandler answers a single request with zero or more stream
// items, followed by a stream-end frame.
type ServerStreamHandler func(payload json.RawMessage, conn *Conn) error

// ClientStreamHandler consumes request frames from the client until it
// closes its send side, then returns a single response.
type ClientStreamHandler func(conn *Conn) (any, error)

// BidiHandler owns the full connection lifecycle, reading and writing
// Envelopes in whatever order the endpoint's protocol calls for.
type BidiHandler func(conn *Conn) error

// Router maps RPC endpoint names to handlers of each of the four call
// shapes spec §4.7 names, and exposes the resulting http.Handler for
// cmd/thalamusd to mount.
type Router struct {
	mux      *chi.Mux
	upgrader websocket.Upgrader
}

// NewRouter builds an empty Router with chi's Recoverer and RequestID
// middleware, matching the teacher's own cobra/http wiring style.
func NewRouter() *Router {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	return &Router{
		mux:      mux,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func (r *Router) Handler() http.Handler { return r.mux }

func (r *Router) upgrade(w http.ResponseWriter, req *http.Request) (*Conn, bool) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logrus.WithError(err).Warn("rpc: websocket upgrade failed")
		return nil, false
	}
	return newConn(ws), true
}

// Unary mounts name to run handler once per connection: read one request
// frame, write one response frame, close.
func (r *Router) Unary(name string, handler UnaryHandler) {
	r.mux.Get("/rpc/"+name, func(w http.ResponseWriter, req *http.Request) {
		conn, ok := r.upgrade(w, req)
		if !ok {
			return
		}
		defer conn.Close()
		in, err := conn.Recv()
		if err != nil {
			return
		}
		out, err := handler(in.Payload)
		if err != nil {
			_ = conn.SendError(in.ID, err.Error())
			return
		}
		body, err := newPayload(out)
		if err != nil {
			_ = conn.SendError(in.ID, err.Error())
			return
		}
		_ = conn.Send(Envelope{Kind: FrameResponse, ID: in.ID, Payload: body})
	})
}

// ServerStream mounts name to read one request frame, then run handler,
// which streams zero or more items before the endpoint closes the
// connection after a stream-end frame.
func (r *Router) ServerStream(name string, handler ServerStreamHandler) {
	r.mux.Get("/rpc/"+name, func(w http.ResponseWriter, req *http.Request) {
		conn, ok := r.upgrade(w, req)
		if !ok {
			return
		}
		defer conn.Close()
		in, err := conn.Recv()
		if err != nil {
			return
		}
		if err := handler(in.Payload, conn); err != nil {
			_ = conn.SendError(in.ID, err.Error())
			return
		}
		_ = conn.SendEnd(in.ID)
	})
}

// ClientStream mounts name to hand the raw connection to handler, which
// reads request frames until the client signals stream-end, then returns
// one response value written back as a FrameResponse.
func (r *Router) ClientStream(name string, handler ClientStreamHandler) {
	r.mux.Get("/rpc/"+name, func(w http.ResponseWriter, req *http.Request) {
		conn, ok := r.upgrade(w, req)
		if !ok {
			return
		}
		defer conn.Close()
		out, err := handler(conn)
		if err != nil {
			_ = conn.SendError("", err.Error())
			return
		}
		body, err := newPayload(out)
		if err != nil {
			_ = conn.SendError("", err.Error())
			return
		}
		_ = conn.Send(Envelope{Kind: FrameResponse, Payload: body})
	})
}

// Bidi mounts name to hand the raw connection to handler for the
// duration of the call, both sides free to send Envelopes in any order.
func (r *Router) Bidi(name string, handler BidiHandler) {
	r.mux.Get("/rpc/"+name, func(w http.ResponseWriter, req *http.Request) {
		conn, ok := r.upgrade(w, req)
		if !ok {
			return
		}
		defer conn.Close()
		if err := handler(conn); err != nil {
			logrus.WithError(err).WithField("endpoint", name).Warn("rpc: bidi handler returned error")
		}
	})
}
