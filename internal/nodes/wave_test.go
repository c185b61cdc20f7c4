package nodes

import (
	"math"
	"testing"
	"time"
)

// TestWaveSineApproximatesExpected exercises the same SINE/1Hz/1000Hz
// configuration as spec scenario 1 (Wave -> Storage round-trip) but over
// a much shorter window, checking the emitted samples against
// sin(2*pi*t) within a loose tolerance that accounts for poll-interval
// jitter rather than requiring the scenario's full 1.1s real-time run.
func TestWaveSineApproximatesExpected(t *testing.T) {
	w := NewWave(1000, 10*time.Millisecond, []waveChannelConfig{{shape: shapeSine, frequency: 1, amplitude: 1, dutyCycle: 0.5}})
	defer w.Close()

	done := make(chan struct{}, 1)
	w.OnReady(func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	w.SetRunning(true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first ready")
	}

	// The first ready's batch starts at sample 0, so its index maps
	// directly onto absolute sample time; later batches only carry the
	// newest tick's samples (see Wave.tick), so this must read before any
	// further tick lands.
	data := w.Data(0)
	if len(data) == 0 {
		t.Fatal("expected samples after running")
	}
	for i, v := range data {
		tSec := float64(i) / 1000
		want := math.Sin(2 * math.Pi * tSec)
		if math.Abs(v-want) > 1e-6 {
			t.Fatalf("sample %d: got %v want ~%v", i, v, want)
		}
	}
}

func TestWaveSquareShape(t *testing.T) {
	cfg := waveChannelConfig{shape: shapeSquare, frequency: 1, amplitude: 2, dutyCycle: 0.5}
	if v := evalWave(cfg, 0.1); v != 2 {
		t.Fatalf("expected +amplitude in first half of duty cycle, got %v", v)
	}
	if v := evalWave(cfg, 0.6); v != -2 {
		t.Fatalf("expected -amplitude in second half of duty cycle, got %v", v)
	}
}

func TestWaveTriangleShapeBounds(t *testing.T) {
	cfg := waveChannelConfig{shape: shapeTriangle, frequency: 1, amplitude: 1}
	peak := evalWave(cfg, 0.5)
	trough := evalWave(cfg, 0)
	if math.Abs(peak-1) > 1e-9 {
		t.Fatalf("expected peak ~1, got %v", peak)
	}
	if math.Abs(trough-(-1)) > 1e-9 {
		t.Fatalf("expected trough ~-1, got %v", trough)
	}
}
