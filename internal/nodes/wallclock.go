package nodes

import (
	"sync"
	"time"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// WallClock emits the current wall-clock time, in nanoseconds since the
// Unix epoch, as a single analog channel once per second (spec §4.4
// "Wallclock"), grounded directly on
// original_source/src/wallclock_node.cpp's one-second asio::steady_timer
// loop.
type WallClock struct {
	*signal.Dispatcher

	mu         sync.Mutex
	epochNS    float64
	steadyTime int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWallClock constructs a WallClock and starts its one-second tick.
func NewWallClock() *WallClock {
	w := &WallClock{Dispatcher: signal.NewDispatcher(signal.Analog), stopCh: make(chan struct{})}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *WallClock) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *WallClock) tick() {
	now := time.Now()
	w.mu.Lock()
	w.epochNS = float64(now.UnixNano())
	w.steadyTime = now.UnixNano()
	w.mu.Unlock()
	w.FireReady()
}

// Close stops the tick goroutine.
func (w *WallClock) Close() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *WallClock) NumChannels() int     { return 1 }
func (w *WallClock) HasAnalogData() bool  { return true }
func (w *WallClock) IsShortData(int) bool { return false }

func (w *WallClock) Data(int) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return []float64{w.epochNS}
}

func (w *WallClock) ShortData(int) []int16      { return nil }
func (w *WallClock) SampleInterval(int) float64 { return float64(time.Second.Nanoseconds()) }
func (w *WallClock) Name(int) string            { return "Epoch (ns)" }

func (w *WallClock) Time() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steadyTime
}

func (w *WallClock) RemoteTime() (int64, bool)   { return 0, false }
func (w *WallClock) RecommendedChannels() string { return "Epoch (ns)" }

// Inject overwrites the current value directly and fires Ready, matching
// the original's inject(): a test or remote-replay hook into the clock.
func (w *WallClock) Inject(spans [][]float64, _ []float64, _ []string) error {
	if len(spans) == 0 || len(spans[0]) == 0 {
		return errUnsupported("wallclock: inject requires one value")
	}
	w.mu.Lock()
	w.epochNS = spans[0][0]
	w.mu.Unlock()
	w.FireReady()
	return nil
}

var _ signal.AnalogNode = (*WallClock)(nil)
var _ graph.Closer = (*WallClock)(nil)

// NewWallClockFactory registers "WALLCLOCK".
func NewWallClockFactory() *graph.Factory {
	return &graph.Factory{
		Type: "WALLCLOCK",
		Construct: func(_ *state.Map, _ *workpool.Pool, _ *graph.Graph) (signal.Node, error) {
			return NewWallClock(), nil
		},
	}
}
