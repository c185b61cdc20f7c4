package nodes

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/storage"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// TestWaveToStorageRoundTrip is the "Wave -> Storage round trip"
// scenario: a SINE wave at 1Hz/1.0 amplitude sampled at 1000Hz and
// polled every 100ms, run for 1.1s, must produce Analog records (one per
// tick) carrying at least 1000 samples in total, whose concatenated
// samples equal sin(2*pi*s/1000) for
// consecutive sample index s, with monotonically non-decreasing
// record timestamps.
func TestWaveToStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pool := workpool.New("wave-storage", workpool.WithThreads(2))
	pool.Start()
	defer pool.Stop()

	cfg := defaultWaveChannelConfig() // SINE, frequency=1, amplitude=1
	w := NewWave(1000, 100*time.Millisecond, []waveChannelConfig{cfg})
	defer w.Close()

	resolve := func(name string) signal.Node {
		if name == "wave1" {
			return w
		}
		return nil
	}
	p := storage.NewPipeline(filepath.Join(dir, "rec"), pool, resolve, false)
	p.SetSources([]string{"wave1"})
	if err := p.SetRunning(true); err != nil {
		t.Fatal(err)
	}

	w.SetRunning(true)
	time.Sleep(1100 * time.Millisecond)
	w.SetRunning(false)

	// Let the last tick's Ready drain through the writer goroutine.
	time.Sleep(100 * time.Millisecond)
	if err := p.SetRunning(false); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one output file, got %d", len(entries))
	}
	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var samples []float64
	var lastTime int64
	recordCount := 0
	for {
		rec, err := storage.ReadRecord(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read record %d: %v", recordCount, err)
		}
		if rec.Kind != storage.RecordAnalog || rec.Node != "wave1" {
			t.Fatalf("unexpected record %+v", rec)
		}
		if rec.Time < lastTime {
			t.Fatalf("record timestamps not monotonic: %d after %d", rec.Time, lastTime)
		}
		lastTime = rec.Time
		recordCount++
		if len(rec.AnalogSpans) != 1 {
			t.Fatalf("expected 1 channel span, got %d", len(rec.AnalogSpans))
		}
		samples = append(samples, rec.AnalogSpans[0].Doubles...)
	}

	if len(samples) < 1000 {
		t.Fatalf("expected at least 1000 samples, got %d across %d records", len(samples), recordCount)
	}
	for i, v := range samples {
		want := math.Sin(2 * math.Pi * float64(i) / 1000.0)
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("sample %d: got %v, want %v", i, v, want)
		}
	}
}
