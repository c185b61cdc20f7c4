package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/cajigaslab/thalamus/internal/graph"
	"github.com/cajigaslab/thalamus/internal/signal"
	"github.com/cajigaslab/thalamus/internal/state"
	"github.com/cajigaslab/thalamus/internal/storage"
)

// Service wires the concrete endpoints of spec §4.7 onto a Router,
// backed by a live Graph for node lookups and a Bridge for state
// mirroring. EventSink/LogSink, if set, receive client-streamed Events
// and Log records (the storage pipeline subscribes through these).
type Service struct {
	router *Router
	graph  *graph.Graph
	bridge *Bridge

	EventSink func(node string, t int64, payload string)
	LogSink   func(node string, t int64, payload string)

	notifyMu   sync.Mutex
	notifySubs map[int]chan string
	notifyNext int
}

// NewService registers every endpoint from spec §4.7 on router.
func NewService(router *Router, g *graph.Graph, root *state.Map) *Service {
	s := &Service{router: router, graph: g, bridge: NewBridge(root), notifySubs: make(map[int]chan string)}
	s.wire()
	return s
}

// Notify broadcasts msg to every connected notification-stream
// subscriber; slow subscribers drop messages rather than block the
// publisher (mirrors the thread pool's drop-under-backpressure policy).
func (s *Service) Notify(msg string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for _, ch := range s.notifySubs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *Service) wire() {
	s.router.Bidi("observable_bridge_v2", s.bridge.Handle)
	s.router.Bidi("ping", s.handlePing)
	s.router.Unary("get_type_name", s.handleGetTypeName)
	s.router.Unary("get_modalities", s.handleGetModalities)
	s.router.Unary("get_recommended_channels", s.handleGetRecommendedChannels)
	s.router.Unary("channel_info", s.handleChannelInfo)
	s.router.ServerStream("analog", s.handleAnalogStream)
	s.router.ServerStream("xsens", s.handleXsensStream)
	s.router.ServerStream("image", s.handleImageStream)
	s.router.ClientStream("inject_analog", s.handleInjectAnalog)
	s.router.ClientStream("events", s.handleEvents)
	s.router.ClientStream("log", s.handleLog)
	s.router.Bidi("remote_node", s.handleRemoteNode)
	s.router.Bidi("stim", s.handleStim)
	s.router.ServerStream("graph", s.handleGraphStream)
	s.router.ServerStream("replay", s.handleReplay)
	s.router.ServerStream("notification", s.handleNotification)
}

// --- ping ---

type pingMsg struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

func (s *Service) handlePing(conn *Conn) error {
	for {
		env, err := conn.Recv()
		if err != nil {
			return nil
		}
		var p pingMsg
		if err := unmarshalInto(env.Payload, &p); err != nil {
			continue
		}
		body, _ := json.Marshal(p)
		if err := conn.Send(Envelope{Kind: FrameResponse, ID: env.ID, Payload: body}); err != nil {
			return err
		}
	}
}

// --- unary introspection ---

func (s *Service) handleGetTypeName(payload json.RawMessage) (any, error) {
	var req struct{ Type string }
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	name, ok := s.graph.Registry().TypeName(req.Type)
	return struct {
		Name  string
		Found bool
	}{name, ok}, nil
}

func (s *Service) handleGetModalities(payload json.RawMessage) (any, error) {
	var req struct{ Name string }
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	n := s.graph.GetNode(graph.Selector{Name: req.Name})
	if n == nil {
		return nil, fmt.Errorf("rpc: no node named %q", req.Name)
	}
	return struct{ Modalities uint8 }{uint8(n.Modalities())}, nil
}

func (s *Service) handleGetRecommendedChannels(payload json.RawMessage) (any, error) {
	var req struct{ Name string }
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	an, err := s.analogNode(req.Name)
	if err != nil {
		return nil, err
	}
	return struct{ Channels string }{an.RecommendedChannels()}, nil
}

func (s *Service) handleChannelInfo(payload json.RawMessage) (any, error) {
	var req struct{ Name string }
	if err := unmarshalInto(payload, &req); err != nil {
		return nil, err
	}
	an, err := s.analogNode(req.Name)
	if err != nil {
		return nil, err
	}
	names := make([]string, an.NumChannels())
	for i := range names {
		names[i] = an.Name(i)
	}
	return struct{ Channels []string }{names}, nil
}

func (s *Service) analogNode(name string) (signal.AnalogNode, error) {
	n := s.graph.GetNode(graph.Selector{Name: name})
	if n == nil {
		return nil, fmt.Errorf("rpc: no node named %q", name)
	}
	an, ok := n.(signal.AnalogNode)
	if !ok {
		return nil, fmt.Errorf("rpc: node %q is not an AnalogNode", name)
	}
	return an, nil
}

// --- server streams ---

func (s *Service) handleAnalogStream(payload json.RawMessage, conn *Conn) error {
	var req struct{ Name string }
	if err := unmarshalInto(payload, &req); err != nil {
		return err
	}
	an, err := s.analogNode(req.Name)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	hdl := an.OnReady(func() {
		if !an.HasAnalogData() {
			return
		}
		spans := make([]analogSpanMsg, an.NumChannels())
		for ch := range spans {
			spans[ch] = analogSpanMsg{Name: an.Name(ch), SampleInterval: an.SampleInterval(ch)}
			if an.IsShortData(ch) {
				spans[ch].Shorts = an.ShortData(ch)
			} else {
				spans[ch].Doubles = an.Data(ch)
			}
		}
		if err := conn.SendPayload("", analogStreamMsg{Time: an.Time(), Spans: spans}); err != nil {
			close(done)
		}
	})
	defer hdl.Disconnect()
	<-done
	return nil
}

type analogSpanMsg struct {
	Name           string    `json:"name"`
	SampleInterval float64   `json:"sample_interval"`
	Doubles        []float64 `json:"doubles,omitempty"`
	Shorts         []int16   `json:"shorts,omitempty"`
}

type analogStreamMsg struct {
	Time  int64           `json:"time"`
	Spans []analogSpanMsg `json:"spans"`
}

func (s *Service) handleXsensStream(payload json.RawMessage, conn *Conn) error {
	var req struct{ Name string }
	if err := unmarshalInto(payload, &req); err != nil {
		return err
	}
	n := s.graph.GetNode(graph.Selector{Name: req.Name})
	mc, ok := n.(signal.MotionCaptureNode)
	if !ok {
		return fmt.Errorf("rpc: node %q is not a MotionCaptureNode", req.Name)
	}
	done := make(chan struct{})
	hdl := mc.OnReady(func() {
		if !mc.HasMotionData() {
			return
		}
		if err := conn.SendPayload("", struct {
			Time     int64
			PoseName string
			Segments []signal.Segment
		}{mc.Time(), mc.PoseName(), mc.Segments()}); err != nil {
			close(done)
		}
	})
	defer hdl.Disconnect()
	<-done
	return nil
}

func (s *Service) handleImageStream(payload json.RawMessage, conn *Conn) error {
	var req struct{ Name string }
	if err := unmarshalInto(payload, &req); err != nil {
		return err
	}
	n := s.graph.GetNode(graph.Selector{Name: req.Name})
	im, ok := n.(signal.ImageNode)
	if !ok {
		return fmt.Errorf("rpc: node %q is not an ImageNode", req.Name)
	}
	done := make(chan struct{})
	hdl := im.OnReady(func() {
		if !im.HasImageData() {
			return
		}
		planes := make([][]byte, im.NumPlanes())
		for i := range planes {
			planes[i] = im.Plane(i)
		}
		if err := conn.SendPayload("", struct {
			Width, Height int
			Format        uint8
			Planes        [][]byte
		}{im.Width(), im.Height(), uint8(im.Format()), planes}); err != nil {
			close(done)
		}
	})
	defer hdl.Disconnect()
	<-done
	return nil
}

// --- client streams ---

func (s *Service) handleInjectAnalog(conn *Conn) error {
	for {
		env, err := conn.Recv()
		if err != nil {
			return nil
		}
		if env.Kind == FrameStreamEnd {
			return nil
		}
		var req struct {
			Name      string
			Spans     [][]float64
			Intervals []float64
			Names     []string
		}
		if err := unmarshalInto(env.Payload, &req); err != nil {
			continue
		}
		an, err := s.analogNode(req.Name)
		if err != nil {
			continue
		}
		_ = an.Inject(req.Spans, req.Intervals, req.Names)
	}
}

func (s *Service) handleEvents(conn *Conn) error {
	return s.sinkLoop(conn, s.EventSink)
}

func (s *Service) handleLog(conn *Conn) error {
	return s.sinkLoop(conn, s.LogSink)
}

func (s *Service) sinkLoop(conn *Conn, sink func(node string, t int64, payload string)) error {
	for {
		env, err := conn.Recv()
		if err != nil {
			return nil
		}
		if env.Kind == FrameStreamEnd {
			return nil
		}
		var req struct {
			Node    string
			Time    int64
			Payload string
		}
		if err := unmarshalInto(env.Payload, &req); err != nil {
			continue
		}
		if sink != nil {
			sink(req.Node, req.Time, req.Payload)
		}
	}
}

// --- bidi passthrough / stim ---

func (s *Service) handleRemoteNode(conn *Conn) error {
	for {
		env, err := conn.Recv()
		if err != nil {
			return nil
		}
		var req struct {
			Name    string
			Payload json.RawMessage
		}
		if err := unmarshalInto(env.Payload, &req); err != nil {
			_ = conn.SendError(env.ID, err.Error())
			continue
		}
		// Node.process is intentionally unused beyond signal.Node's base
		// contract here; only nodes that opt into a process(json) method
		// (declared on a narrower interface) can answer remote_node calls.
		type processor interface {
			Process(json.RawMessage) (json.RawMessage, error)
		}
		n := s.graph.GetNode(graph.Selector{Name: req.Name})
		proc, ok := n.(processor)
		if !ok {
			_ = conn.SendError(env.ID, fmt.Sprintf("rpc: node %q does not accept process()", req.Name))
			continue
		}
		reply, err := proc.Process(req.Payload)
		if err != nil {
			_ = conn.SendError(env.ID, err.Error())
			continue
		}
		_ = conn.Send(Envelope{Kind: FrameResponse, ID: env.ID, Payload: reply})
	}
}

func (s *Service) handleStim(conn *Conn) error {
	for {
		env, err := conn.Recv()
		if err != nil {
			return nil
		}
		var req struct {
			Name    string
			Kind    signal.StimRequestKind
			ID      string
			Program []byte
		}
		if err := unmarshalInto(env.Payload, &req); err != nil {
			_ = conn.SendError(env.ID, err.Error())
			continue
		}
		n := s.graph.GetNode(graph.Selector{Name: req.Name})
		sn, ok := n.(signal.StimNode)
		if !ok {
			_ = conn.SendError(env.ID, fmt.Sprintf("rpc: node %q is not a StimNode", req.Name))
			continue
		}
		future, err := sn.Stim(context.Background(), signal.StimRequest{Kind: req.Kind, ID: req.ID, Program: req.Program})
		if err != nil {
			_ = conn.SendError(env.ID, err.Error())
			continue
		}
		resp := <-future
		body, _ := json.Marshal(resp)
		_ = conn.Send(Envelope{Kind: FrameResponse, ID: env.ID, Payload: body})
	}
}

// --- introspection / replay / notification ---

func (s *Service) handleGraphStream(payload json.RawMessage, conn *Conn) error {
	for _, n := range s.graph.List() {
		if err := conn.SendPayload("", n); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handleReplay(payload json.RawMessage, conn *Conn) error {
	var req struct{ Path string }
	if err := unmarshalInto(payload, &req); err != nil {
		return err
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	for {
		rec, err := storage.ReadRecord(f)
		if err != nil {
			return nil // EOF or truncated trailer ends the replay cleanly
		}
		if err := conn.SendPayload("", rec); err != nil {
			return err
		}
	}
}

func (s *Service) handleNotification(payload json.RawMessage, conn *Conn) error {
	s.notifyMu.Lock()
	id := s.notifyNext
	s.notifyNext++
	ch := make(chan string, 16)
	s.notifySubs[id] = ch
	s.notifyMu.Unlock()
	defer func() {
		s.notifyMu.Lock()
		delete(s.notifySubs, id)
		s.notifyMu.Unlock()
	}()

	for msg := range ch {
		if err := conn.SendPayload("", struct{ Message string }{msg}); err != nil {
			return err
		}
	}
	return nil
}
