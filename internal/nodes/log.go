package nodes

import (
	"sync"
	"time"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// Log exposes the most recently processed text message as a TextNode
// (spec §4.4 "Log"), grounded directly on
// original_source/src/log_node.cpp's process()/text()/time() surface.
type Log struct {
	*signal.Dispatcher

	mu   sync.Mutex
	text string
	time int64
}

// NewLog constructs an empty Log.
func NewLog() *Log {
	return &Log{Dispatcher: signal.NewDispatcher(signal.Text)}
}

// Process records text as the node's current value and fires Ready,
// mirroring the original's process().
func (l *Log) Process(text string) {
	l.mu.Lock()
	l.text = text
	l.time = time.Now().UnixNano()
	l.mu.Unlock()
	l.FireReady()
}

func (l *Log) HasTextData() bool { return true }

func (l *Log) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

func (l *Log) Time() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.time
}

var _ signal.TextNode = (*Log)(nil)

// NewLogFactory registers "LOG", wiring its "Message" state key to
// Process.
func NewLogFactory() *graph.Factory {
	return &graph.Factory{
		Type: "LOG",
		Construct: func(m *state.Map, _ *workpool.Pool, _ *graph.Graph) (signal.Node, error) {
			lg := NewLog()
			onStringKey(m, "Message", lg.Process)
			return lg, nil
		},
	}
}
