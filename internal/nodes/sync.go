package nodes

import (
	"sync"
	"time"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

type syncAlgo uint8

const (
	syncThreshold syncAlgo = iota
	syncCrossCorrelation
)

// syncPair tracks one configured (node1.channel1, node2.channel2) lag
// measurement (spec §4.4 "Sync"), grounded on
// original_source/src/sync_node.cpp's Pair struct and its compute/
// on_data algorithm split between THRESHOLD (next rising-crossing lag)
// and CROSS_CORRELATION (buffered argmax cross-correlation lag).
type syncPair struct {
	algo      syncAlgo
	threshold float64
	window    time.Duration
	outName   string

	node1 signal.AnalogNode
	ch1   int
	node2 signal.AnalogNode
	ch2   int

	cross1, cross2       time.Time
	haveCross1, haveCross2 bool
	lastSample1, lastSample2 float64
	haveLast1, haveLast2     bool

	buf1, buf2         []float64
	sampleInterval1    time.Duration
	sampleInterval2    time.Duration
	startTime1, startTime2 time.Time

	lag float64
}

// Sync exposes one analog channel per configured pair, each carrying the
// most recently computed lag in seconds.
type Sync struct {
	*signal.Dispatcher

	mu       sync.Mutex
	pairs    []*syncPair
	lastTime int64
}

// NewSync constructs an empty Sync; pairs are added via AddPair.
func NewSync() *Sync {
	return &Sync{Dispatcher: signal.NewDispatcher(signal.Analog)}
}

// AddPair registers one lag-measurement pair and wires it to both
// sources' Ready signals.
func (s *Sync) AddPair(algo syncAlgo, threshold float64, window time.Duration, outName string, node1 signal.AnalogNode, ch1 int, node2 signal.AnalogNode, ch2 int) {
	p := &syncPair{algo: algo, threshold: threshold, window: window, outName: outName, node1: node1, ch1: ch1, node2: node2, ch2: ch2}
	s.mu.Lock()
	s.pairs = append(s.pairs, p)
	s.mu.Unlock()
	node1.OnReady(func() { s.onSourceReady(node1) })
	if node2 != node1 {
		node2.OnReady(func() { s.onSourceReady(node2) })
	}
}

func (s *Sync) onSourceReady(source signal.AnalogNode) {
	if !source.HasAnalogData() {
		return
	}
	s.mu.Lock()
	for _, p := range s.pairs {
		if p.node1 == source {
			computeSync(source, p.ch1, p.threshold, p.algo, &p.lastSample1, &p.haveLast1, &p.cross1, &p.haveCross1, &p.buf1, &p.sampleInterval1, &p.startTime1)
		}
		if p.node2 == source {
			computeSync(source, p.ch2, p.threshold, p.algo, &p.lastSample2, &p.haveLast2, &p.cross2, &p.haveCross2, &p.buf2, &p.sampleInterval2, &p.startTime2)
		}
		switch p.algo {
		case syncThreshold:
			if p.haveCross1 && p.haveCross2 {
				diff := p.cross1.Sub(p.cross2)
				if abs(diff) < p.window {
					p.lag = diff.Seconds()
				}
			}
		case syncCrossCorrelation:
			p.lag = crossCorrelationLag(p)
		}
	}
	s.lastTime = source.Time()
	s.mu.Unlock()
	s.FireReady()
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func computeSync(source signal.AnalogNode, channel int, threshold float64, algo syncAlgo,
	lastSample *float64, haveLast *bool, cross *time.Time, haveCross *bool,
	buf *[]float64, sampleInterval *time.Duration, startTime *time.Time) {
	if channel >= source.NumChannels() {
		return
	}
	data := source.Data(channel)
	if len(data) == 0 {
		return
	}
	*sampleInterval = time.Duration(source.SampleInterval(channel))
	endTime := time.Unix(0, source.Time())
	startOfBatch := endTime.Add(-time.Duration(len(data)-1) * *sampleInterval)

	if algo == syncThreshold {
		last := *lastSample
		have := *haveLast
		t := startOfBatch
		for _, d := range data {
			if have && last < threshold && d >= threshold {
				*cross = t
				*haveCross = true
			}
			have = true
			last = d
			t = t.Add(*sampleInterval)
		}
		*lastSample = last
		*haveLast = true
		return
	}
	if len(*buf) == 0 {
		*startTime = startOfBatch
	}
	*buf = append(*buf, data...)
}

// crossCorrelationLag implements the original's resample-to-common-rate
// then argmax-discrete-cross-correlation search, returning the lag in
// seconds once both buffered windows exceed the configured duration.
func crossCorrelationLag(p *syncPair) float64 {
	if p.sampleInterval1 <= 0 || p.sampleInterval2 <= 0 {
		return p.lag
	}
	window1 := p.sampleInterval1 * time.Duration(len(p.buf1))
	window2 := p.sampleInterval2 * time.Duration(len(p.buf2))
	if window1 < p.window || window2 < p.window {
		return p.lag
	}
	data1, data2 := p.buf1, p.buf2
	interval1, interval2 := p.sampleInterval1, p.sampleInterval2
	if interval1 < interval2 {
		data2 = resample(data2, interval2, interval1, len(data1))
	} else if interval1 > interval2 {
		data1 = resample(data1, interval1, interval2, len(data2))
	}
	maxSum := 0.0
	maxLag := 0
	for lag := -(len(data2) - 1); lag < len(data1); lag++ {
		i := maxInt(0, -lag)
		j := maxInt(0, lag)
		count := minInt(len(data2)-i, len(data1)-j)
		if count <= 0 {
			continue
		}
		sum := 0.0
		for k := 0; k < count; k++ {
			sum += data2[i+k] * data1[j+k]
		}
		if sum > maxSum {
			maxSum = sum
			maxLag = lag
		}
	}
	fastInterval := interval1
	if interval2 < interval1 {
		fastInterval = interval2
	}
	return float64(maxLag) * fastInterval.Seconds()
}

func resample(src []float64, fromInterval, toInterval time.Duration, targetLen int) []float64 {
	out := make([]float64, 0, targetLen)
	srcTime, dstTime := time.Duration(0), time.Duration(0)
	j := 0
	for len(out) < targetLen {
		if dstTime > srcTime+fromInterval {
			srcTime += fromInterval
			j++
		}
		dstTime += toInterval
		if j < len(src) {
			out = append(out, src[j])
		} else if len(out) > 0 {
			out = append(out, out[len(out)-1])
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (s *Sync) NumChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pairs)
}

func (s *Sync) HasAnalogData() bool  { return true }
func (s *Sync) IsShortData(int) bool { return false }

func (s *Sync) Data(channel int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= len(s.pairs) {
		return nil
	}
	return []float64{s.pairs[channel].lag}
}

func (s *Sync) ShortData(int) []int16      { return nil }
func (s *Sync) SampleInterval(int) float64 { return 0 }

func (s *Sync) Name(channel int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel < 0 || channel >= len(s.pairs) {
		return ""
	}
	return s.pairs[channel].outName
}

func (s *Sync) Time() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTime
}

func (s *Sync) RemoteTime() (int64, bool)   { return 0, false }
func (s *Sync) RecommendedChannels() string { return "" }
func (s *Sync) Inject([][]float64, []float64, []string) error {
	return errUnsupported("Sync does not accept injected data")
}

var _ signal.AnalogNode = (*Sync)(nil)

// NewSyncFactory registers "SYNC". "Pairs" is a List of Maps, each with
// Node1/Channel1/Node2/Channel2/Algorithm/Threshold/Window (ms)/Out Name.
func NewSyncFactory() *graph.Factory {
	return &graph.Factory{
		Type: "SYNC",
		Construct: func(m *state.Map, _ *workpool.Pool, g *graph.Graph) (signal.Node, error) {
			sy := NewSync()
			k := state.StringKey("Pairs")
			if m.Has(k) {
				if v := m.Get(k); v.Kind() == state.KindList {
					wireSyncPairs(sy, v.List(), g)
				}
			}
			return sy, nil
		},
	}
}

func wireSyncPairs(sy *Sync, pairs *state.List, g *graph.Graph) {
	for i := 0; i < pairs.Len(); i++ {
		pv := pairs.Get(i)
		if pv.Kind() != state.KindMap {
			continue
		}
		pm := pv.Map()
		algo := syncThreshold
		if getString(pm, "Algorithm", "THRESHOLD") == "CROSS_CORRELATION" {
			algo = syncCrossCorrelation
		}
		threshold := getFloat(pm, "Threshold", 1.6)
		windowMS := getFloat(pm, "Window", 500)
		outName := getString(pm, "Out Name", "Lag")
		node1Name := getString(pm, "Node1", "")
		node2Name := getString(pm, "Node2", "")
		ch1 := int(getInt(pm, "Channel1", 0))
		ch2 := int(getInt(pm, "Channel2", 0))
		if node1Name == "" || node2Name == "" {
			continue
		}
		resolveAnalogSource(g, node1Name, func(n1 signal.AnalogNode) {
			resolveAnalogSource(g, node2Name, func(n2 signal.AnalogNode) {
				sy.AddPair(algo, threshold, time.Duration(windowMS*float64(time.Millisecond)), outName, n1, ch1, n2, ch2)
			})
		})
	}
}
