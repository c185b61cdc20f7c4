package nodes

import (
	"time"

	"github.com/cajigaslab/thalamus/internal/signal"
)

// fakeAnalog is a minimal signal.AnalogNode stub shared by this package's
// tests, following internal/storage/pipeline_test.go's stubAnalog shape.
type fakeAnalog struct {
	*signal.Dispatcher
	data     [][]float64
	names    []string
	interval float64
	t        int64
}

func newFakeAnalog(data [][]float64, names []string) *fakeAnalog {
	return &fakeAnalog{
		Dispatcher: signal.NewDispatcher(signal.Analog),
		data:       data,
		names:      names,
		interval:   1e6,
		t:          time.Now().UnixNano(),
	}
}

// withTime overrides the stream time reported by Time(), letting callers
// script deterministic sample-time sequences instead of relying on
// real elapsed wall-clock time between calls.
func (f *fakeAnalog) withTime(ns int64) *fakeAnalog {
	f.t = ns
	return f
}

func (f *fakeAnalog) NumChannels() int          { return len(f.data) }
func (f *fakeAnalog) HasAnalogData() bool       { return true }
func (f *fakeAnalog) IsShortData(int) bool      { return false }
func (f *fakeAnalog) Data(ch int) []float64     { return f.data[ch] }
func (f *fakeAnalog) ShortData(int) []int16     { return nil }
func (f *fakeAnalog) SampleInterval(int) float64 { return f.interval }
func (f *fakeAnalog) Name(ch int) string        { return f.names[ch] }
func (f *fakeAnalog) Time() int64               { return f.t }
func (f *fakeAnalog) RemoteTime() (int64, bool) { return 0, false }
func (f *fakeAnalog) RecommendedChannels() string { return "" }
func (f *fakeAnalog) Inject([][]float64, []float64, []string) error { return nil }

var _ signal.AnalogNode = (*fakeAnalog)(nil)
