package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

type stubAnalog struct {
	*signal.Dispatcher
	data [][]float64
	name []string
}

func (s *stubAnalog) NumChannels() int               { return len(s.data) }
func (s *stubAnalog) HasAnalogData() bool             { return true }
func (s *stubAnalog) IsShortData(int) bool            { return false }
func (s *stubAnalog) Data(ch int) []float64           { return s.data[ch] }
func (s *stubAnalog) ShortData(int) []int16           { return nil }
func (s *stubAnalog) SampleInterval(int) float64      { return 1e6 }
func (s *stubAnalog) Name(ch int) string              { return s.name[ch] }
func (s *stubAnalog) Time() int64                     { return time.Now().UnixNano() }
func (s *stubAnalog) RemoteTime() (int64, bool)       { return 0, false }
func (s *stubAnalog) RecommendedChannels() string     { return "" }
func (s *stubAnalog) Inject([][]float64, []float64, []string) error { return nil }

func TestWriteFrameRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "log"))
	if err != nil {
		t.Fatal(err)
	}
	rec := Record{Kind: RecordText, Time: 42, Node: "n", Text: "hi"}
	if err := WriteRecord(f, rec); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rf, err := os.Open(filepath.Join(dir, "log"))
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()
	got, err := ReadRecord(rf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "hi" || got.Node != "n" || got.Time != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestNextOutputPathFindsUnusedSuffix(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "out")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first, err := NextOutputPath(base, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(first, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	second, err := NextOutputPath(base, now)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("expected distinct paths, got %s twice", first)
	}
}

func TestPipelineRecordsAnalogReadyEvents(t *testing.T) {
	dir := t.TempDir()
	pool := workpool.New("test", workpool.WithThreads(2))
	pool.Start()
	defer pool.Stop()

	source := &stubAnalog{
		Dispatcher: signal.NewDispatcher(signal.Analog),
		data:       [][]float64{{1, 2, 3}},
		name:       []string{"ch0"},
	}
	resolve := func(name string) signal.Node {
		if name == "wave1" {
			return source
		}
		return nil
	}
	p := NewPipeline(filepath.Join(dir, "rec"), pool, resolve, false)
	p.SetSources([]string{"wave1"})
	if err := p.SetRunning(true); err != nil {
		t.Fatal(err)
	}

	source.FireReady()
	time.Sleep(50 * time.Millisecond)

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
	rec, err := ReadRecord(f)
	if err != nil {
		t.Fatalf("expected one decodable record: %v", err)
	}
	if rec.Kind != RecordAnalog || rec.Node != "wave1" {
		t.Fatalf("got %+v", rec)
	}
}
