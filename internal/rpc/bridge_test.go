package rpc

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cajigaslab/thalamus/internal/state"
)

// TestBridgeAckOrder mirrors spec scenario 5 ("Bridge ack order"): two
// writes sent back to back on the same connection must be acknowledged
// in the order they were sent.
func TestBridgeAckOrder(t *testing.T) {
	root := state.NewMap()
	router := NewRouter()
	router.Bidi("observable_bridge_v2", NewBridge(root).Handle)

	srv := httptest.NewServer(router.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rpc/observable_bridge_v2"
	conn, err := Dial(url)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	send := func(id string, a int) {
		val, _ := json.Marshal(a)
		txn := Transaction{ID: id, Changes: []Change{{Action: state.ActionSet, Address: "$.a", Value: val}}}
		body, _ := json.Marshal(txn)
		if err := conn.Send(Envelope{Kind: FrameRequest, ID: id, Payload: body}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	id1, id2 := uuid.NewString(), uuid.NewString()
	send(id1, 1)
	send(id2, 2)

	conn.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	env1, err := conn.Recv()
	if err != nil {
		t.Fatalf("recv 1 failed: %v", err)
	}
	env2, err := conn.Recv()
	if err != nil {
		t.Fatalf("recv 2 failed: %v", err)
	}
	if env1.ID != id1 || env2.ID != id2 {
		t.Fatalf("expected acks in send order: got %q then %q", env1.ID, env2.ID)
	}
	if env1.Kind != FrameResponse || env2.Kind != FrameResponse {
		t.Fatalf("expected response frames, got %v and %v", env1.Kind, env2.Kind)
	}
}
