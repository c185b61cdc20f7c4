package nodes

import (
	"path/filepath"
	"testing"
)

// TestNormalizeSaturation mirrors spec scenario 4: first ready carries
// [0, 10], second carries [-5, 15]; with out_min=0, out_max=1 both
// outputs saturate to [0, 1] because the running range always expands to
// cover the extremes just seen.
func TestNormalizeSaturation(t *testing.T) {
	n := NewNormalize(filepath.Join(t.TempDir(), ".normalize_cache_test"))
	n.SetOutMin(0)
	n.SetOutMax(1)

	n.onSourceReady(newFakeAnalog([][]float64{{0, 10}}, []string{"ch0"}))
	got := n.Data(0)
	if got[0] != 0 || got[1] != 1 {
		t.Fatalf("first ready: got %v want [0 1]", got)
	}

	n.onSourceReady(newFakeAnalog([][]float64{{-5, 15}}, []string{"ch0"}))
	got = n.Data(0)
	if got[0] != 0 || got[1] != 1 {
		t.Fatalf("second ready: got %v want [0 1]", got)
	}
}

func TestNormalizeConstantChannelNoNaN(t *testing.T) {
	n := NewNormalize(filepath.Join(t.TempDir(), ".normalize_cache_const"))
	n.SetOutMin(0)
	n.SetOutMax(1)
	n.onSourceReady(newFakeAnalog([][]float64{{5, 5, 5}}, []string{"ch0"}))
	for _, v := range n.Data(0) {
		if v != 0 {
			t.Fatalf("expected out_min (0) for constant channel, got %v", v)
		}
	}
}

func TestNormalizeCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".normalize_cache_rt")
	n := NewNormalize(path)
	n.onSourceReady(newFakeAnalog([][]float64{{1, 9}}, []string{"ch0"}))
	n.Process("Cache")

	n2 := NewNormalize(path)
	if len(n2.ranges) != 1 || n2.ranges[0].Min != 1 || n2.ranges[0].Max != 9 {
		t.Fatalf("expected cached range to reload, got %+v", n2.ranges)
	}
}
