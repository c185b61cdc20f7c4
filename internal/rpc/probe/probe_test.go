package probe

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades every request to a websocket and echoes back each
// envelope it receives unchanged, standing in for a remote ping endpoint.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}))
}

// TestProbeBandwidthWithinTolerance mirrors spec scenario 6 ("Probe
// bandwidth"): a 4096-byte probe at 10Hz for 1s should settle on a
// Bytes Per Second reading within 20% of 2*4096*10.
func TestProbeBandwidthWithinTolerance(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	p := New(conn, 4096, 100*time.Millisecond)
	p.Start()
	defer p.Stop()

	time.Sleep(1100 * time.Millisecond)

	want := 2.0 * 4096 * 10
	got := p.Data(1)[0]
	if got == 0 {
		t.Fatal("expected a non-zero Bytes Per Second reading after 1s")
	}
	if math.Abs(got-want)/want > 0.2 {
		t.Fatalf("Bytes Per Second = %v, want within 20%% of %v", got, want)
	}
}

func TestProbeNameAndChannels(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	p := New(conn, 64, 50*time.Millisecond)
	if p.NumChannels() != 2 {
		t.Fatalf("expected 2 channels, got %d", p.NumChannels())
	}
	if p.Name(0) != "Ping" || p.Name(1) != "Bytes Per Second" {
		t.Fatalf("unexpected channel names: %q, %q", p.Name(0), p.Name(1))
	}
	if err := p.Inject(nil, nil, nil); err == nil {
		t.Fatal("expected Inject to be rejected")
	}
	conn.Close()
}
