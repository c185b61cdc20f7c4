// Package probe implements the RemoteNode ping+bandwidth sampler (spec
// §4.7 "Probe semantics"): it sends fixed-size pings at a configured
// frequency and exposes round-trip time and a trailing bytes-per-second
// rate as two analog channels.
package probe

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cajigaslab/thalamus/internal/signal"
)

// Prober periodically pings a remote ping endpoint over an
// already-dialed websocket connection and reports round-trip time and
// throughput as two analog channels, Ping and Bytes Per Second.
type Prober struct {
	*signal.Dispatcher

	conn        *websocket.Conn
	payloadSize int
	interval    time.Duration

	sentMu sync.Mutex
	sent   map[string]time.Time

	mu       sync.Mutex
	lastRTT  float64
	lastBPS  float64
	lastTime int64
	window   []sample

	stopCh chan struct{}
	doneCh chan struct{}
}

type sample struct {
	at    time.Time
	bytes int
}

// New builds a Prober. payloadSize is the fixed ping payload in bytes;
// interval is the configured ping frequency.
func New(conn *websocket.Conn, payloadSize int, interval time.Duration) *Prober {
	return &Prober{
		Dispatcher:  signal.NewDispatcher(signal.Analog),
		conn:        conn,
		payloadSize: payloadSize,
		interval:    interval,
		sent:        make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

type pingWire struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

type envelope struct {
	Kind    int             `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Start launches the ping loop and the reader goroutine measuring pongs.
func (p *Prober) Start() {
	readerDone := make(chan struct{})
	go func() { p.readLoop(); close(readerDone) }()
	go func() { p.pingLoop(); <-readerDone; close(p.doneCh) }()
}

// Stop halts both goroutines and blocks until they exit.
func (p *Prober) Stop() {
	close(p.stopCh)
	_ = p.conn.Close()
	<-p.doneCh
}

func (p *Prober) pingLoop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	payload := make([]byte, p.payloadSize)
	seq := 0
	for {
		select {
		case <-p.stopCh:
			return
		case t := <-ticker.C:
			seq++
			id := fmt.Sprintf("%d", seq)
			p.sentMu.Lock()
			p.sent[id] = t
			p.sentMu.Unlock()
			body, err := json.Marshal(pingWire{ID: id, Payload: payload})
			if err != nil {
				continue
			}
			if err := p.conn.WriteJSON(envelope{ID: id, Payload: body}); err != nil {
				return
			}
		}
	}
}

func (p *Prober) readLoop() {
	for {
		var env envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			return
		}
		var pong pingWire
		if err := json.Unmarshal(env.Payload, &pong); err != nil {
			continue
		}
		p.sentMu.Lock()
		sentTime, ok := p.sent[pong.ID]
		if ok {
			delete(p.sent, pong.ID)
		}
		p.sentMu.Unlock()
		if !ok {
			continue
		}
		now := time.Now()
		// Bytes Per Second reports round-trip throughput: the ping
		// payload out plus the pong payload back, both payloadSize.
		p.record(now, now.Sub(sentTime), 2*len(pong.Payload))
	}
}

func (p *Prober) record(now time.Time, rtt time.Duration, bytes int) {
	p.mu.Lock()
	p.lastRTT = float64(rtt.Nanoseconds())
	p.lastTime = now.UnixNano()
	p.window = append(p.window, sample{at: now, bytes: bytes})
	cutoff := now.Add(-time.Second)
	kept := p.window[:0]
	for _, s := range p.window {
		if !s.at.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	p.window = kept
	total := 0
	for _, s := range p.window {
		total += s.bytes
	}
	p.lastBPS = float64(total)
	p.mu.Unlock()
	p.FireReady()
}

// AnalogNode implementation: channel 0 is Ping (round-trip ns), channel
// 1 is Bytes Per Second.
func (p *Prober) NumChannels() int     { return 2 }
func (p *Prober) HasAnalogData() bool  { return true }
func (p *Prober) IsShortData(int) bool { return false }

func (p *Prober) Data(channel int) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch channel {
	case 0:
		return []float64{p.lastRTT}
	case 1:
		return []float64{p.lastBPS}
	default:
		panic(fmt.Sprintf("probe: Data: channel %d out of range", channel))
	}
}

func (p *Prober) ShortData(int) []int16      { return nil }
func (p *Prober) SampleInterval(int) float64 { return float64(p.interval.Nanoseconds()) }

func (p *Prober) Name(channel int) string {
	if channel == 0 {
		return "Ping"
	}
	return "Bytes Per Second"
}

func (p *Prober) Time() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTime
}

func (p *Prober) RemoteTime() (int64, bool)   { return 0, false }
func (p *Prober) RecommendedChannels() string { return "Ping,Bytes Per Second" }
func (p *Prober) Inject([][]float64, []float64, []string) error {
	return fmt.Errorf("probe: Prober does not accept injected data")
}

var _ signal.AnalogNode = (*Prober)(nil)
