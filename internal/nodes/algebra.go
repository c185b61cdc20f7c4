package nodes

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/workpool"
)

// Algebra parses an infix expression once at configuration time and
// evaluates it per-sample against a source's channels (spec §4.4
// "Algebra"), grounded on original_source/src/algebra_node.cpp: a
// "Source" key resolved through the graph, an "Equation" key parsed on
// every change with a "Parser Error" flag mirrored back into state, and
// a per-channel transformed-data buffer rebuilt on every source Ready.
type Algebra struct {
	*signal.Dispatcher

	mu       sync.Mutex
	program  *exprProgram
	source   signal.AnalogNode
	data     [][]float64
	lastTime int64
}

// NewAlgebra constructs an empty Algebra; its program is set later via
// SetEquation once the state entry's "Equation" key is read.
func NewAlgebra() *Algebra {
	return &Algebra{Dispatcher: signal.NewDispatcher(signal.Analog)}
}

// SetEquation parses expr and installs it as the active program. parseErr
// reports whether parsing failed, for callers that mirror it back into
// the "Parser Error" state key the way the original does.
func (a *Algebra) SetEquation(expr string) (parseErr bool) {
	prog, err := parseExpr(expr)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		logrus.WithError(err).WithField("equation", expr).Warn("nodes: algebra equation parse failed")
		a.program = nil
		return true
	}
	a.program = &prog
	return false
}

func (a *Algebra) onSourceReady(source signal.AnalogNode) {
	if !source.HasAnalogData() {
		return
	}
	n := source.NumChannels()
	a.mu.Lock()
	a.source = source
	if len(a.data) < n {
		grown := make([][]float64, n)
		copy(grown, a.data)
		a.data = grown
	}
	prog := a.program
	for i := 0; i < n; i++ {
		span := source.Data(i)
		out := make([]float64, len(span))
		for j, x := range span {
			if prog != nil {
				out[j] = prog.eval(x)
			} else {
				out[j] = x
			}
		}
		a.data[i] = out
	}
	a.lastTime = source.Time()
	a.mu.Unlock()
	a.FireReady()
}

func (a *Algebra) NumChannels() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.data)
}

func (a *Algebra) HasAnalogData() bool  { return true }
func (a *Algebra) IsShortData(int) bool { return false }

func (a *Algebra) Data(channel int) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if channel < 0 || channel >= len(a.data) {
		return nil
	}
	return a.data[channel]
}

func (a *Algebra) ShortData(int) []int16 { return nil }

func (a *Algebra) SampleInterval(channel int) float64 {
	a.mu.Lock()
	source := a.source
	a.mu.Unlock()
	if source == nil {
		return 0
	}
	return source.SampleInterval(channel)
}

func (a *Algebra) Name(channel int) string {
	a.mu.Lock()
	source := a.source
	a.mu.Unlock()
	if source == nil {
		return ""
	}
	return source.Name(channel)
}

func (a *Algebra) Time() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastTime
}

func (a *Algebra) RemoteTime() (int64, bool) { return 0, false }

func (a *Algebra) RecommendedChannels() string {
	a.mu.Lock()
	source := a.source
	a.mu.Unlock()
	if source == nil {
		return ""
	}
	return source.RecommendedChannels()
}

func (a *Algebra) Inject([][]float64, []float64, []string) error {
	return errUnsupported("Algebra does not accept injected data")
}

var _ signal.AnalogNode = (*Algebra)(nil)

// NewAlgebraFactory registers "ALGEBRA".
func NewAlgebraFactory() *graph.Factory {
	return &graph.Factory{
		Type: "ALGEBRA",
		Construct: func(m *state.Map, _ *workpool.Pool, g *graph.Graph) (signal.Node, error) {
			alg := NewAlgebra()
			onStringKey(m, "Equation", func(eq string) {
				parseErr := alg.SetEquation(eq)
				m.Assign(state.StringKey("Parser Error"), state.BoolValue(parseErr), nil)
			})
			onStringKey(m, "Source", func(name string) {
				resolveAnalogSource(g, name, func(an signal.AnalogNode) {
					an.OnReady(func() { alg.onSourceReady(an) })
				})
			})
			return alg, nil
		},
	}
}
