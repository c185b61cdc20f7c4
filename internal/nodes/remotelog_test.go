package nodes

import "testing"

func TestRemoteLogEmitsToRegisteredHandlers(t *testing.T) {
	rl := NewRemoteLog()
	var got []string
	rl.OnLog(func(text string) { got = append(got, text) })
	rl.emitLog("hello")
	rl.emitLog("world")
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Fatalf("got %v", got)
	}
}

func TestRemoteLogRunningWithoutAddressIsNoop(t *testing.T) {
	rl := NewRemoteLog()
	rl.SetRunning(true)
	if rl.Prober != nil {
		t.Fatal("expected no prober without an Address configured")
	}
}

func TestRemoteLogNodeAdapterSafeBeforeConnect(t *testing.T) {
	rl := NewRemoteLog()
	n := remoteLogNode{rl}
	if n.NumChannels() != 0 {
		t.Fatalf("expected 0 channels before connect, got %d", n.NumChannels())
	}
	if n.HasAnalogData() {
		t.Fatal("expected no analog data before connect")
	}
	if n.Data(0) != nil {
		t.Fatal("expected nil data before connect")
	}
}
