package nodes

import (
	"testing"
	"time"
)

// TestToggleDebounce mirrors spec scenario 2 ("Toggle debounce") literally:
// the refractory window is gated on the source's own stream time (each
// fakeAnalog batch carries an explicit Time()), not wall-clock, so edges
// fed back-to-back with no real elapsed time still debounce correctly —
// the behavior burst-fed/replay injection depends on.
func TestToggleDebounce(t *testing.T) {
	lag := 100 * time.Millisecond
	tg := NewToggle(1.6, lag, 0)
	refractory := 2 * lag

	flips := 0
	tg.OnReady(func() { flips++ })

	const start int64 = 1_000_000_000
	risingEdge := newFakeAnalog([][]float64{{0, 2}}, []string{"ch0"}).withTime(start)
	tg.onSourceReady(risingEdge) // first rising edge: flips to true

	// Repeats stamped well within the refractory window must not flip
	// again, even though no real time elapses between these calls.
	for i := int64(1); i <= 5; i++ {
		sampleTime := start + i*int64(refractory)/10
		tg.onSourceReady(newFakeAnalog([][]float64{{0, 2}}, []string{"ch0"}).withTime(sampleTime))
	}
	if got := tg.Data(0)[0]; got != 3.3 {
		t.Fatalf("expected latched high after first edge, got %v", got)
	}

	afterRefractory := start + int64(refractory) + int64(time.Millisecond)
	tg.onSourceReady(newFakeAnalog([][]float64{{0, 2}}, []string{"ch0"}).withTime(afterRefractory))
	if got := tg.Data(0)[0]; got != 0 {
		t.Fatalf("expected second flip back to low once stream time passes the refractory window, got %v", got)
	}
	_ = flips
}

// TestToggleDebounceBurstFasterThanRealTime feeds an entire scenario-2
// edge sequence in one batch with no time.Sleep at all: the stream-time
// deltas inside the batch alone must reproduce the same debounce as the
// multi-call version above, which scenario 2's "faster than real time"
// replay/burst-injection case requires.
func TestToggleDebounceBurstFasterThanRealTime(t *testing.T) {
	lag := 100 * time.Millisecond
	tg := NewToggle(1.6, lag, 0)

	// One batch: rising edge, two rapid repeat edges (same sample interval as
	// SampleInterval, so within-batch sample spacing alone keeps them
	// inside the refractory window), all delivered synchronously.
	tg.onSourceReady(newFakeAnalog([][]float64{{0, 2, 0, 2, 0, 2}}, []string{"ch0"}))
	if got := tg.Data(0)[0]; got != 3.3 {
		t.Fatalf("expected latched high after first edge in burst, got %v", got)
	}
}

func TestToggleIgnoresSubThresholdSamples(t *testing.T) {
	tg := NewToggle(1.6, time.Millisecond, 0)
	tg.onSourceReady(newFakeAnalog([][]float64{{0, 0, 0.5, 1.0}}, []string{"ch0"}))
	if got := tg.Data(0)[0]; got != 0 {
		t.Fatalf("expected no flip below threshold, got %v", got)
	}
}
