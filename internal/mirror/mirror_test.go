package mirror

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cajigaslab/thalamus/internal/rpc"
	"github.com/cajigaslab/thalamus/internal/state"
)

// TestMirrorWriteBeforeConnectDoesNotApplyLocally covers the boundary
// behavior named in spec §8: a write made while the mirror has never
// connected is rejected synchronously rather than queued, so the local
// value never changes and the caller's callback is never invoked.
func TestMirrorWriteBeforeConnectDoesNotApplyLocally(t *testing.T) {
	root := state.NewMap()
	root.Assign(state.StringKey("a"), state.IntValue(1), nil)

	_ = New("ws://127.0.0.1:0/rpc/observable_bridge_v2", root)

	called := false
	root.Assign(state.StringKey("a"), state.IntValue(2), func() { called = true })

	if called {
		t.Fatal("expected callback not to fire for a write made before any connection")
	}
	if got := root.Get(state.StringKey("a")).Int(); got != 1 {
		t.Fatalf("expected local value to remain 1 while disconnected, got %d", got)
	}
}

// TestMirrorApplyRemoteWritesAndDeletes exercises applyRemote directly:
// relayed changes must bypass the hook (AssignFromRemote) and land in
// the local tree regardless of connection state.
func TestMirrorApplyRemoteWritesAndDeletes(t *testing.T) {
	root := state.NewMap()
	c := New("ws://127.0.0.1:0/rpc/observable_bridge_v2", root)

	c.applyRemote(rpc.Change{Action: state.ActionSet, Address: "$.a", Value: []byte("42")})
	if got := root.Get(state.StringKey("a")).Int(); got != 42 {
		t.Fatalf("expected relayed write to land, got %d", got)
	}

	c.applyRemote(rpc.Change{Action: state.ActionDelete, Address: "$.a"})
	if root.Has(state.StringKey("a")) {
		t.Fatal("expected relayed delete to remove the key")
	}
}

// TestMirrorRoundTripThroughBridge wires two Clients to a real Bridge
// over a real websocket connection and checks that a local write on one
// side is visible on the other after the round trip completes.
func TestMirrorRoundTripThroughBridge(t *testing.T) {
	serverRoot := state.NewMap()
	router := rpc.NewRouter()
	router.Bidi("observable_bridge_v2", rpc.NewBridge(serverRoot).Handle)

	srv := httptest.NewServer(router.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rpc/observable_bridge_v2"

	clientRoot := state.NewMap()
	client := New(url, clientRoot)
	client.Start()
	defer client.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		client.mu.Lock()
		connected := client.conn != nil
		client.mu.Unlock()
		if connected {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("mirror client never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	done := make(chan struct{})
	clientRoot.Assign(state.StringKey("a"), state.IntValue(7), func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write was never acknowledged")
	}
	if got := clientRoot.Get(state.StringKey("a")).Int(); got != 7 {
		t.Fatalf("expected local write to apply once acked, got %d", got)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		if serverRoot.Has(state.StringKey("a")) && serverRoot.Get(state.StringKey("a")).Int() == 7 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("write never propagated to the bridge's authoritative root")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
