// Package storage implements the Storage Pipeline (spec §4.6): a
// length-framed record log fed by a dedicated writer goroutine, with
// optional per-(node,channel) deflate compression of analog records
// offloaded onto the shared thread pool.
package storage

// RecordKind tags the tagged-union Record payload.
type RecordKind uint8

const (
	RecordAnalog RecordKind = iota
	RecordMotion
	RecordImage
	RecordText
	RecordEvent
	RecordCompressed
)

// CompressionKind tags a Compressed record's payload: either a live
// analog-encoded deflate chunk, or the NONE marker a finished stream
// writes once at shutdown.
type CompressionKind uint8

const (
	CompressedNone CompressionKind = iota
	CompressedAnalog
)

// AnalogSpan is one channel's contribution to an Analog record.
type AnalogSpan struct {
	Name           string
	SampleInterval float64 // nanoseconds
	Doubles        []float64
	Shorts         []int16
}

// Segment mirrors signal.Segment for storage purposes, kept independent
// so the storage wire format does not import the signal package.
type Segment struct {
	Frame     uint64
	SegmentID uint64
	Actor     string
	Position  [3]float64
	Rotation  [4]float64
}

// Record is one length-framed entry in the log.
type Record struct {
	Kind RecordKind
	Time int64  // steady-clock ns at capture
	Node string // source name

	// RecordAnalog
	AnalogSpans []AnalogSpan

	// RecordMotion
	PoseName string
	Segments []Segment

	// RecordImage
	Width, Height int
	Format        uint8
	Planes        [][]byte

	// RecordText / RecordEvent
	Text string

	// RecordCompressed
	CompressionKind CompressionKind
	Stream          int
	Data            []byte
}
