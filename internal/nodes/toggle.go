package nodes

import (
	"sync"
	"time"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// Toggle watches one channel of an analog source for a rising edge past
// a threshold and latches a boolean output, refusing to flip again until
// a refractory period (spec §4.4 "Toggle", default 2*lag_time = 200ms)
// has elapsed since the last flip. There is no original-source
// counterpart; the source-subscription and per-sample scan shape follow
// test_pulse_node.cpp's on_data, and the AnalogNode output surface
// follows wallclock_node.cpp's single-channel shape.
type Toggle struct {
	*signal.Dispatcher

	threshold  float64
	refractory time.Duration
	channel    int

	mu           sync.Mutex
	lastSample   float64
	haveLast     bool
	high         bool
	lastFlipTime int64 // stream time (ns) of the last flip, not wall-clock
	haveLastFlip bool
	value        [1]float64
	sampleNS     float64
	lastTime     int64
}

// NewToggle constructs a Toggle with the given threshold, lag time, and
// source channel index. The refractory period is 2*lagTime.
func NewToggle(threshold float64, lagTime time.Duration, channel int) *Toggle {
	return &Toggle{
		Dispatcher: signal.NewDispatcher(signal.Analog),
		threshold:  threshold,
		refractory: 2 * lagTime,
		channel:    channel,
	}
}

// onSourceReady scans any new samples on t.channel for a rising edge and
// updates the latched output.
func (t *Toggle) onSourceReady(source signal.AnalogNode) {
	if !source.HasAnalogData() {
		return
	}
	if t.channel >= source.NumChannels() {
		return
	}
	data := source.Data(t.channel)
	if len(data) == 0 {
		return
	}
	t.mu.Lock()
	// The refractory window is measured in the source's own stream time
	// (spec §4.4: 2*lag_time against sample time), not wall-clock, so
	// replay and burst-fed injection debounce identically to real-time
	// streaming. source.Time() gives the last sample's timestamp; earlier
	// samples in this batch are walked back by SampleInterval per step.
	interval := source.SampleInterval(t.channel)
	endTime := source.Time()
	n := len(data)
	for i, sample := range data {
		sampleTime := endTime - int64(float64(n-1-i)*interval)
		if t.haveLast && t.lastSample < t.threshold && sample >= t.threshold {
			if !t.haveLastFlip || sampleTime-t.lastFlipTime >= int64(t.refractory) {
				t.high = !t.high
				t.lastFlipTime = sampleTime
				t.haveLastFlip = true
			}
		}
		t.lastSample = sample
		t.haveLast = true
	}
	if t.high {
		t.value[0] = 3.3
	} else {
		t.value[0] = 0
	}
	t.sampleNS = interval
	t.lastTime = endTime
	t.mu.Unlock()
	t.FireReady()
}

func (t *Toggle) NumChannels() int     { return 1 }
func (t *Toggle) HasAnalogData() bool  { return true }
func (t *Toggle) IsShortData(int) bool { return false }

func (t *Toggle) Data(int) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value[:]
}

func (t *Toggle) ShortData(int) []int16 { return nil }

func (t *Toggle) SampleInterval(int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleNS
}

func (t *Toggle) Name(int) string { return "High" }

func (t *Toggle) Time() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTime
}

func (t *Toggle) RemoteTime() (int64, bool)   { return 0, false }
func (t *Toggle) RecommendedChannels() string { return "High" }
func (t *Toggle) Inject([][]float64, []float64, []string) error {
	return errUnsupported("Toggle does not accept injected data")
}

var _ signal.AnalogNode = (*Toggle)(nil)

// NewToggleFactory registers "TOGGLE": reads Source/Channel/Threshold/Lag
// Time from the state entry and wires the toggle to its source once it
// appears in the graph.
func NewToggleFactory() *graph.Factory {
	return &graph.Factory{
		Type: "TOGGLE",
		Construct: func(m *state.Map, _ *workpool.Pool, g *graph.Graph) (signal.Node, error) {
			threshold := getFloat(m, "Threshold", 1.6)
			lagMS := getFloat(m, "Lag Time", 100)
			channel := int(getInt(m, "Channel", 0))
			tg := NewToggle(threshold, time.Duration(lagMS*float64(time.Millisecond)), channel)
			onStringKey(m, "Source", func(name string) {
				resolveAnalogSource(g, name, func(an signal.AnalogNode) {
					an.OnReady(func() { tg.onSourceReady(an) })
				})
			})
			return tg, nil
		},
	}
}
