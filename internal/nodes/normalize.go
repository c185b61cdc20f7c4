package nodes

import (
	"encoding/json"
	"math"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// Normalize maintains a running per-channel min/max and rescales every
// incoming sample into [outMin, outMax] (spec §4.4 "Normalize"),
// grounded on original_source/src/normalize_node.cpp: a "Source"
// resolved through the graph, "Min"/"Max" output-range keys, and a
// `process` command accepting "Cache" (persist ranges to a sidecar
// file) and "Reset" (clear them). The original persists a fixed-size
// binary array of raw (double,double) pairs to ".normalize_cache"; this
// port names the sidecar per node (".normalize_cache_<name>", see
// NewNormalizeFactory) and uses a portable JSON encoding
// instead of a raw struct dump, since the binary layout is tied to the
// original's build (endianness, struct padding) rather than a format
// spec §6.2 asks this codebase to preserve.
type Normalize struct {
	*signal.Dispatcher

	cachePath string

	mu          sync.Mutex
	outMin      float64
	outMax      float64
	ranges      []rangePair
	data        [][]float64
	source      signal.AnalogNode
	lastTime    int64
}

type rangePair struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NewNormalize constructs a Normalize with the default output range
// [0, 1], loading cached ranges from cachePath if present.
func NewNormalize(cachePath string) *Normalize {
	n := &Normalize{Dispatcher: signal.NewDispatcher(signal.Analog), cachePath: cachePath, outMin: 0, outMax: 1}
	n.loadCache()
	return n
}

func (n *Normalize) loadCache() {
	body, err := os.ReadFile(n.cachePath)
	if err != nil {
		return
	}
	var ranges []rangePair
	if err := json.Unmarshal(body, &ranges); err != nil {
		logrus.WithError(err).WithField("path", n.cachePath).Warn("nodes: normalize cache load failed")
		return
	}
	n.ranges = ranges
}

// Process implements the original's TextNode-style command surface:
// "Cache" persists the current ranges, "Reset" clears them.
func (n *Normalize) Process(command string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch command {
	case "Cache":
		body, err := json.Marshal(n.ranges)
		if err != nil {
			return
		}
		if err := os.WriteFile(n.cachePath, body, 0o644); err != nil {
			logrus.WithError(err).WithField("path", n.cachePath).Warn("nodes: normalize cache write failed")
		}
	case "Reset":
		for i := range n.ranges {
			n.ranges[i] = freshRange()
		}
	}
}

func freshRange() rangePair { return rangePair{Min: math.MaxFloat64, Max: -math.MaxFloat64} }

func (n *Normalize) SetOutMax(v float64) { n.mu.Lock(); n.outMax = v; n.mu.Unlock() }
func (n *Normalize) SetOutMin(v float64) { n.mu.Lock(); n.outMin = v; n.mu.Unlock() }

func (n *Normalize) onSourceReady(source signal.AnalogNode) {
	if !source.HasAnalogData() {
		return
	}
	count := source.NumChannels()
	n.mu.Lock()
	n.source = source
	if len(n.data) < count {
		for len(n.data) < count {
			n.data = append(n.data, nil)
			n.ranges = append(n.ranges, freshRange())
		}
	}
	for i := 0; i < count; i++ {
		span := source.Data(i)
		out := make([]float64, len(span))
		r := &n.ranges[i]
		for j, x := range span {
			if x < r.Min {
				r.Min = x
			}
			if x > r.Max {
				r.Max = x
			}
			out[j] = (x-r.Min)/(r.Max-r.Min+minPositive) * (n.outMax - n.outMin) + n.outMin
		}
		n.data[i] = out
	}
	n.lastTime = source.Time()
	n.mu.Unlock()
	n.FireReady()
}

// minPositive mirrors std::numeric_limits<double>::min() in the original's
// epsilon term — the smallest positive normal float64, not the smallest
// representable difference, matching the original's exact constant.
const minPositive = 2.2250738585072014e-308

func (n *Normalize) NumChannels() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.data)
}

func (n *Normalize) HasAnalogData() bool  { return true }
func (n *Normalize) IsShortData(int) bool { return false }

func (n *Normalize) Data(channel int) []float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if channel < 0 || channel >= len(n.data) {
		return nil
	}
	return n.data[channel]
}

func (n *Normalize) ShortData(int) []int16 { return nil }

func (n *Normalize) SampleInterval(channel int) float64 {
	n.mu.Lock()
	source := n.source
	n.mu.Unlock()
	if source == nil {
		return 0
	}
	return source.SampleInterval(channel)
}

func (n *Normalize) Name(channel int) string {
	n.mu.Lock()
	source := n.source
	n.mu.Unlock()
	if source == nil {
		return ""
	}
	return source.Name(channel)
}

func (n *Normalize) Time() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastTime
}

func (n *Normalize) RemoteTime() (int64, bool)   { return 0, false }
func (n *Normalize) RecommendedChannels() string { return "" }
func (n *Normalize) Inject([][]float64, []float64, []string) error {
	return errUnsupported("Normalize does not accept injected data")
}

var _ signal.AnalogNode = (*Normalize)(nil)

// NewNormalizeFactory registers "NORMALIZE".
func NewNormalizeFactory() *graph.Factory {
	return &graph.Factory{
		Type: "NORMALIZE",
		Construct: func(m *state.Map, _ *workpool.Pool, g *graph.Graph) (signal.Node, error) {
			name := getString(m, "name", "normalize")
			no := NewNormalize(".normalize_cache_" + name)
			onFloatKey(m, "Max", no.SetOutMax)
			onFloatKey(m, "Min", no.SetOutMin)
			onStringKey(m, "Source", func(srcName string) {
				resolveAnalogSource(g, srcName, func(an signal.AnalogNode) {
					an.OnReady(func() { no.onSourceReady(an) })
				})
			})
			onStringKey(m, "Command", no.Process)
			return no, nil
		},
	}
}
