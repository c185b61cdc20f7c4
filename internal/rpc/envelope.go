// Package rpc implements the RPC surface (spec §4.7) over
// gorilla/websocket framed JSON envelopes routed by go-chi/chi, in place
// of the original gRPC/protobuf transport (see DESIGN.md's Open Question
// entry for why).
package rpc

import "encoding/json"

// FrameKind tags an Envelope's role in the exchange.
type FrameKind uint8

const (
	FrameRequest FrameKind = iota
	FrameResponse
	FrameStreamItem
	FrameStreamEnd
	FrameError
)

// Envelope is the single self-describing message shape carried over every
// websocket connection this package opens, regardless of which of the
// four RPC call shapes (unary, server-stream, client-stream, bidi) the
// endpoint implements.
type Envelope struct {
	Kind    FrameKind       `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
