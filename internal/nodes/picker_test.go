package nodes

import "testing"

func TestChannelPickerSelectsMappedChannel(t *testing.T) {
	cp := NewChannelPicker()
	src := newFakeAnalog([][]float64{{1, 2}, {10, 20}}, []string{"a", "b"})
	cp.SetMapping(0, src, 1, "picked")
	cp.onSourceReady(src)

	if got := cp.Data(0); got[0] != 10 || got[1] != 20 {
		t.Fatalf("expected channel 1 of source, got %v", got)
	}
	if cp.Name(0) != "picked" {
		t.Fatalf("expected mapped out name, got %q", cp.Name(0))
	}
}

func TestChannelPickerMaxChannelsCaps(t *testing.T) {
	cp := NewChannelPicker()
	src := newFakeAnalog([][]float64{{1}, {2}, {3}}, []string{"a", "b", "c"})
	cp.SetMapping(0, src, 0, "a")
	cp.SetMapping(1, src, 1, "b")
	cp.SetMapping(2, src, 2, "c")
	cp.SetMaxChannels(2)
	if got := cp.NumChannels(); got != 2 {
		t.Fatalf("expected capped channel count 2, got %d", got)
	}
}

func TestChannelPickerStaleSourceYieldsNoData(t *testing.T) {
	cp := NewChannelPicker()
	src := newFakeAnalog([][]float64{{1}}, []string{"a"})
	other := newFakeAnalog([][]float64{{9}}, []string{"b"})
	cp.SetMapping(0, src, 0, "a")
	cp.onSourceReady(other) // current becomes other, mapping still points at src
	if got := cp.Data(0); got != nil {
		t.Fatalf("expected nil data for mapping whose source isn't current, got %v", got)
	}
}
