package nodes

import (
	"math"
	"testing"
	"time"
)

func TestSyncThresholdLag(t *testing.T) {
	sy := NewSync()

	node1 := newFakeAnalog([][]float64{{0, 2}}, []string{"a"})
	node1.t = 1_000_000_000 // 1.000s
	node2 := newFakeAnalog([][]float64{{0, 2}}, []string{"a"})
	node2.t = 1_005_000_000 // 1.005s

	sy.AddPair(syncThreshold, 1.6, 500*time.Millisecond, "Lag", node1, 0, node2, 0)

	sy.onSourceReady(node1)
	sy.onSourceReady(node2)

	got := sy.Data(0)[0]
	want := -0.005
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got lag %v want %v", got, want)
	}
}

func TestSyncThresholdOutsideWindowNotUpdated(t *testing.T) {
	sy := NewSync()
	node1 := newFakeAnalog([][]float64{{0, 2}}, []string{"a"})
	node1.t = 1_000_000_000
	node2 := newFakeAnalog([][]float64{{0, 2}}, []string{"a"})
	node2.t = 2_000_000_000 // 1s apart, outside a 500ms window

	sy.AddPair(syncThreshold, 1.6, 500*time.Millisecond, "Lag", node1, 0, node2, 0)
	sy.onSourceReady(node1)
	sy.onSourceReady(node2)

	if got := sy.Data(0)[0]; got != 0 {
		t.Fatalf("expected lag to remain at its zero default outside the window, got %v", got)
	}
}
