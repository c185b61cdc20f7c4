package storage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/klauspost/compress/flate"
)

// streamKey identifies one (node, channel) pair mapped to a deflate
// stream id (spec §4.6 "Per-stream analog compression").
type streamKey struct {
	node    string
	channel int
}

// CompressionContext maintains one deflate writer per (node, channel)
// pair, assigning stable integer stream ids in first-seen order.
type CompressionContext struct {
	mu      sync.Mutex
	ids     map[streamKey]int
	nextID  int
	streams map[int]*compressStream
	level   int
}

type compressStream struct {
	buf *bytes.Buffer
	fw  *flate.Writer
}

// NewCompressionContext builds a context using the given flate level
// (flate.DefaultCompression if zero).
func NewCompressionContext(level int) *CompressionContext {
	if level == 0 {
		level = flate.DefaultCompression
	}
	return &CompressionContext{
		ids:     make(map[streamKey]int),
		streams: make(map[int]*compressStream),
		level:   level,
	}
}

// StreamID returns the stable stream id for (node, channel), assigning a
// fresh one on first use.
func (c *CompressionContext) StreamID(node string, channel int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := streamKey{node, channel}
	if id, ok := c.ids[k]; ok {
		return id
	}
	id := c.nextID
	c.nextID++
	c.ids[k] = id
	return id
}

// Compress feeds encoded into stream's deflate context with Z_NO_FLUSH
// semantics — output may be empty (buffered internally) or may span
// multiple prior calls' input. The returned bytes, if any, must be
// wrapped by the caller in a Compressed{Kind: CompressedAnalog} record.
func (c *CompressionContext) Compress(stream int, encoded []byte) ([]byte, error) {
	c.mu.Lock()
	s, ok := c.streams[stream]
	if !ok {
		buf := &bytes.Buffer{}
		fw, err := flate.NewWriter(buf, c.level)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		s = &compressStream{buf: buf, fw: fw}
		c.streams[stream] = s
	}
	c.mu.Unlock()

	if _, err := s.fw.Write(encoded); err != nil {
		return nil, err
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out, nil
}

// Finish closes every open stream (Z_FINISH equivalent), returning the
// final {stream, trailing bytes} pairs in stream-id order so the caller
// can emit one trailing Compressed{Kind: CompressedNone} record per
// stream, as spec §4.6 requires at shutdown.
func (c *CompressionContext) Finish() ([]FinishedStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FinishedStream, 0, len(c.streams))
	for id, s := range c.streams {
		if err := s.fw.Close(); err != nil {
			return nil, err
		}
		out = append(out, FinishedStream{Stream: id, Data: s.buf.Bytes()})
	}
	c.streams = make(map[int]*compressStream)
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out, nil
}

// FinishedStream is one stream's final flush payload.
type FinishedStream struct {
	Stream int
	Data   []byte
}
