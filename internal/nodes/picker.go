package nodes

import (
	"sync"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// pickerMapping is one {source, in_channel, out_name} entry addressed by
// its out_channel index.
type pickerMapping struct {
	source  signal.AnalogNode
	inCh    int
	outName string
}

// ChannelPicker re-exposes selected channels of one or more analog
// sources as a single virtual view (spec §4.4 "Channel picker"), grounded
// on original_source/src/channel_picker_node.cpp's mappings-indexed-by-
// out-channel design, simplified to the spec's flatter
// {source_name -> [{in_channel, out_channel, out_name}]} configuration
// shape (the original additionally auto-populates a per-source UI list;
// that bookkeeping is out of scope here since there is no UI).
type ChannelPicker struct {
	*signal.Dispatcher

	mu          sync.Mutex
	mappings    []pickerMapping
	current     signal.AnalogNode
	maxChannels int
	lastTime    int64
}

// NewChannelPicker constructs an empty ChannelPicker with no channel cap.
func NewChannelPicker() *ChannelPicker {
	return &ChannelPicker{Dispatcher: signal.NewDispatcher(signal.Analog), maxChannels: -1}
}

func (c *ChannelPicker) SetMaxChannels(n int) {
	c.mu.Lock()
	c.maxChannels = n
	c.mu.Unlock()
	c.FireChannelsChanged()
}

// SetMapping installs (or grows to fit) the mapping for outChannel.
func (c *ChannelPicker) SetMapping(outChannel int, source signal.AnalogNode, inChannel int, outName string) {
	c.mu.Lock()
	for len(c.mappings) <= outChannel {
		c.mappings = append(c.mappings, pickerMapping{})
	}
	c.mappings[outChannel] = pickerMapping{source: source, inCh: inChannel, outName: outName}
	c.mu.Unlock()
	c.FireChannelsChanged()
}

func (c *ChannelPicker) onSourceReady(source signal.AnalogNode) {
	if !source.HasAnalogData() {
		return
	}
	c.mu.Lock()
	c.current = source
	c.lastTime = source.Time()
	c.mu.Unlock()
	c.FireReady()
}

func (c *ChannelPicker) NumChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.mappings)
	if c.maxChannels >= 0 && c.maxChannels < n {
		return c.maxChannels
	}
	return n
}

func (c *ChannelPicker) HasAnalogData() bool  { return true }
func (c *ChannelPicker) IsShortData(int) bool { return false }

func (c *ChannelPicker) Data(channel int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 0 || channel >= len(c.mappings) {
		return nil
	}
	mp := c.mappings[channel]
	if mp.source == nil || mp.source != c.current || mp.inCh >= mp.source.NumChannels() {
		return nil
	}
	return mp.source.Data(mp.inCh)
}

func (c *ChannelPicker) ShortData(int) []int16 { return nil }

func (c *ChannelPicker) SampleInterval(channel int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 0 || channel >= len(c.mappings) || c.mappings[channel].source == nil {
		return 0
	}
	mp := c.mappings[channel]
	return mp.source.SampleInterval(mp.inCh)
}

func (c *ChannelPicker) Name(channel int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 0 || channel >= len(c.mappings) {
		return ""
	}
	return c.mappings[channel].outName
}

func (c *ChannelPicker) Time() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTime
}

func (c *ChannelPicker) RemoteTime() (int64, bool)   { return 0, false }
func (c *ChannelPicker) RecommendedChannels() string { return "" }
func (c *ChannelPicker) Inject([][]float64, []float64, []string) error {
	return errUnsupported("ChannelPicker does not accept injected data")
}

var _ signal.AnalogNode = (*ChannelPicker)(nil)

// NewChannelPickerFactory registers "CHANNEL_PICKER". The "Sources" key
// is a Map of source name -> List of Maps, each with "In Channel",
// "Out Channel", "Out Name".
func NewChannelPickerFactory() *graph.Factory {
	return &graph.Factory{
		Type: "CHANNEL_PICKER",
		Construct: func(m *state.Map, _ *workpool.Pool, g *graph.Graph) (signal.Node, error) {
			cp := NewChannelPicker()
			k := state.StringKey("Max Channels")
			if m.Has(k) {
				v := m.Get(k)
				if v.Kind() == state.KindInt {
					cp.SetMaxChannels(int(v.Int()))
				}
			}
			m.Connect(func(action state.Action, ck state.Key, v state.Value) {
				if action == state.ActionSet && ck.Kind() == state.KindString && ck.String() == "Max Channels" && v.Kind() == state.KindInt {
					cp.SetMaxChannels(int(v.Int()))
				}
			})
			sourcesKey := state.StringKey("Sources")
			wireSources := func(sources *state.Map) {
				for _, srcKey := range sources.Keys() {
					if srcKey.Kind() != state.KindString {
						continue
					}
					sourceName := srcKey.String()
					entriesVal := sources.Get(srcKey)
					if entriesVal.Kind() != state.KindList {
						continue
					}
					entries := entriesVal.List()
					resolveAnalogSource(g, sourceName, func(an signal.AnalogNode) {
						for i := 0; i < entries.Len(); i++ {
							ev := entries.Get(i)
							if ev.Kind() != state.KindMap {
								continue
							}
							em := ev.Map()
							outCh := int(getInt(em, "Out Channel", int64(i)))
							inCh := int(getInt(em, "In Channel", 0))
							outName := getString(em, "Out Name", sourceName)
							cp.SetMapping(outCh, an, inCh, outName)
						}
						an.OnReady(func() { cp.onSourceReady(an) })
					})
				}
			}
			if m.Has(sourcesKey) {
				if v := m.Get(sourcesKey); v.Kind() == state.KindMap {
					wireSources(v.Map())
				}
			}
			m.Connect(func(action state.Action, ck state.Key, v state.Value) {
				if action == state.ActionSet && ck.Kind() == state.KindString && ck.String() == "Sources" && v.Kind() == state.KindMap {
					wireSources(v.Map())
				}
			})
			return cp, nil
		},
	}
}
