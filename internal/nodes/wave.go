package nodes

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// waveShape enumerates the synthetic waveforms spec §4.4 names.
type waveShape uint8

const (
	shapeSine waveShape = iota
	shapeSquare
	shapeTriangle
	shapeRandom
)

func parseShape(s string) waveShape {
	switch s {
	case "SQUARE":
		return shapeSquare
	case "TRIANGLE":
		return shapeTriangle
	case "RANDOM":
		return shapeRandom
	default:
		return shapeSine
	}
}

type waveChannelConfig struct {
	shape     waveShape
	frequency float64
	amplitude float64
	phase     float64
	offset    float64
	dutyCycle float64
}

func defaultWaveChannelConfig() waveChannelConfig {
	return waveChannelConfig{shape: shapeSine, frequency: 1, amplitude: 1, dutyCycle: 0.5}
}

// Wave is the synthetic wave generator (spec §4.4 "Wave generator"). It
// has no direct original-source counterpart (the closest analog,
// test_pulse_node.cpp, is a stim trigger rather than a waveform source);
// its AnalogNode surface and goroutine-driven tick loop follow
// wallclock_node.cpp's steady-timer shape and analog_node.cpp's
// channel-buffer layout.
type Wave struct {
	*signal.Dispatcher

	sampleRate   float64
	pollInterval time.Duration

	mu       sync.Mutex
	channels []waveChannelConfig
	buffers  [][]float64
	lastTime int64 // ns of the most recent emitted sample
	samples  int64 // total samples emitted, across the node's lifetime
	running  bool

	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewWave constructs a Wave. An empty channels slice is replaced by one
// default SINE channel.
func NewWave(sampleRate float64, pollInterval time.Duration, channels []waveChannelConfig) *Wave {
	if len(channels) == 0 {
		channels = []waveChannelConfig{defaultWaveChannelConfig()}
	}
	w := &Wave{
		Dispatcher:   signal.NewDispatcher(signal.Analog),
		sampleRate:   sampleRate,
		pollInterval: pollInterval,
		channels:     channels,
		buffers:      make([][]float64, len(channels)),
		stopCh:       make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// SetRunning starts or stops sample generation without tearing down the
// tick goroutine; resuming after a pause only fills in samples from the
// resume point forward, avoiding a burst of backlog.
func (w *Wave) SetRunning(running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if running && !w.running {
		w.startedAt = time.Now()
		w.samples = 0
	}
	w.running = running
}

func (w *Wave) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

func (w *Wave) tick(now time.Time) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	sampleInterval := time.Duration(1e9 / w.sampleRate)
	elapsed := now.Sub(w.startedAt)
	wantSamples := int64(elapsed.Nanoseconds() / sampleInterval.Nanoseconds())
	if wantSamples <= w.samples {
		w.mu.Unlock()
		return
	}
	for ci, cfg := range w.channels {
		for s := w.samples; s < wantSamples; s++ {
			t := float64(s) / w.sampleRate
			w.buffers[ci] = append(w.buffers[ci], evalWave(cfg, t))
		}
		// Keep only this tick's batch: callers must copy before the next
		// Ready, per the AnalogNode span borrow discipline.
		w.buffers[ci] = w.buffers[ci][len(w.buffers[ci])-int(wantSamples-w.samples):]
	}
	w.samples = wantSamples
	w.lastTime = w.startedAt.Add(time.Duration(float64(wantSamples-1) / w.sampleRate * 1e9)).UnixNano()
	w.mu.Unlock()
	w.FireReady()
}

func evalWave(cfg waveChannelConfig, t float64) float64 {
	phaseT := t*cfg.frequency + cfg.phase
	frac := phaseT - math.Floor(phaseT)
	switch cfg.shape {
	case shapeSquare:
		if frac < cfg.dutyCycle {
			return cfg.amplitude + cfg.offset
		}
		return -cfg.amplitude + cfg.offset
	case shapeTriangle:
		if frac < 0.5 {
			return cfg.amplitude*(4*frac-1) + cfg.offset
		}
		return cfg.amplitude*(3-4*frac) + cfg.offset
	case shapeRandom:
		// Deterministic pseudo-noise derived from phase so repeated ticks
		// at the same ideal sample time reproduce the same value.
		h := math.Sin(phaseT*12.9898) * 43758.5453
		return cfg.amplitude*(2*(h-math.Floor(h))-1) + cfg.offset
	default: // shapeSine
		return cfg.amplitude*math.Sin(2*math.Pi*phaseT) + cfg.offset
	}
}

// Close stops the tick goroutine; called by the graph when this node's
// entry is deleted or retyped.
func (w *Wave) Close() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Wave) NumChannels() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.channels)
}

func (w *Wave) HasAnalogData() bool { return true }
func (w *Wave) IsShortData(int) bool { return false }

func (w *Wave) Data(channel int) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if channel < 0 || channel >= len(w.buffers) {
		return nil
	}
	return w.buffers[channel]
}

func (w *Wave) ShortData(int) []int16 { return nil }

func (w *Wave) SampleInterval(int) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return 1e9 / w.sampleRate
}

func (w *Wave) Name(channel int) string {
	return "Wave " + strconv.Itoa(channel)
}

func (w *Wave) Time() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastTime
}

func (w *Wave) RemoteTime() (int64, bool)   { return 0, false }
func (w *Wave) RecommendedChannels() string { return "" }
func (w *Wave) Inject([][]float64, []float64, []string) error {
	return errUnsupported("Wave does not accept injected data")
}

var _ signal.AnalogNode = (*Wave)(nil)
var _ graph.Closer = (*Wave)(nil)

// NewWaveFactory builds the graph.Factory registering "WAVE" constructs a
// Wave from its state entry's Sample Rate / Poll Interval / Running /
// Channels configuration.
func NewWaveFactory() *graph.Factory {
	return &graph.Factory{
		Type: "WAVE",
		Construct: func(m *state.Map, _ *workpool.Pool, _ *graph.Graph) (signal.Node, error) {
			sampleRate := getFloat(m, "Sample Rate", 1000)
			pollMS := getFloat(m, "Poll Interval", 100)
			channels := readWaveChannels(m)
			w := NewWave(sampleRate, time.Duration(pollMS*float64(time.Millisecond)), channels)
			onBoolKey(m, "Running", w.SetRunning)
			return w, nil
		},
	}
}

func readWaveChannels(m *state.Map) []waveChannelConfig {
	k := state.StringKey("Waves")
	if !m.Has(k) {
		return []waveChannelConfig{singleWaveChannelFromFlat(m)}
	}
	v := m.Get(k)
	if v.Kind() != state.KindList {
		return []waveChannelConfig{singleWaveChannelFromFlat(m)}
	}
	l := v.List()
	out := make([]waveChannelConfig, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		item := l.Get(i)
		if item.Kind() != state.KindMap {
			continue
		}
		out = append(out, waveChannelFromMap(item.Map()))
	}
	if len(out) == 0 {
		return []waveChannelConfig{singleWaveChannelFromFlat(m)}
	}
	return out
}

func singleWaveChannelFromFlat(m *state.Map) waveChannelConfig {
	return waveChannelFromMap(m)
}

func waveChannelFromMap(m *state.Map) waveChannelConfig {
	return waveChannelConfig{
		shape:     parseShape(getString(m, "Shape", "SINE")),
		frequency: getFloat(m, "Frequency", 1),
		amplitude: getFloat(m, "Amplitude", 1),
		phase:     getFloat(m, "Phase", 0),
		offset:    getFloat(m, "Offset", 0),
		dutyCycle: getFloat(m, "Duty Cycle", 0.5),
	}
}

type unsupportedError string

func (e unsupportedError) Error() string { return string(e) }

func errUnsupported(msg string) error { return unsupportedError(msg) }
