package signal

import "context"

// AnalogNode exposes an ordered set of analog channels. Spans returned by
// Data/ShortData are borrows valid only until the next Ready fires on this
// producer (spec §3.4's borrow discipline) — callers must copy out any
// bytes they need to retain before returning control to the scheduler.
type AnalogNode interface {
	Node
	NumChannels() int
	HasAnalogData() bool
	IsShortData(channel int) bool
	Data(channel int) []float64
	ShortData(channel int) []int16
	SampleInterval(channel int) float64 // nanoseconds
	Name(channel int) string
	Time() int64 // steady-clock ns of most recent sample
	RemoteTime() (int64, bool)
	RecommendedChannels() string
	Inject(spans [][]float64, intervals []float64, names []string) error
}

// Segment is one motion-capture sample (spec §3.4).
type Segment struct {
	Frame     uint64
	SegmentID uint64
	Time      int64
	Actor     string
	Position  [3]float64
	Rotation  [4]float64
}

// MotionCaptureNode exposes a borrowed span of Segments, valid only until
// the next Ready.
type MotionCaptureNode interface {
	Node
	HasMotionData() bool
	Segments() []Segment
	PoseName() string
	Time() int64
	Inject(segments []Segment) error
}

// PixelFormat enumerates the image wire formats spec §6.2 describes.
type PixelFormat uint8

const (
	Gray PixelFormat = iota
	RGB
	YUYV422
	YUV420P
	YUVJ420P
)

// PlaneCount returns the number of byte planes a format implies.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case YUV420P, YUVJ420P:
		return 3
	default:
		return 1
	}
}

// ImageNode exposes one to three borrowed byte planes.
type ImageNode interface {
	Node
	HasImageData() bool
	NumPlanes() int
	Plane(i int) []byte
	Format() PixelFormat
	Width() int
	Height() int
	FrameInterval() float64
	Time() int64
	Inject(wireImage []byte) error
}

// TextNode exposes a borrowed string view.
type TextNode interface {
	Node
	HasTextData() bool
	Text() string
	Time() int64
}

// StimRequestKind enumerates the three stim operations spec §4.3 names.
type StimRequestKind uint8

const (
	StimDeclare StimRequestKind = iota
	StimRetrieve
	StimTrigger
)

type StimRequest struct {
	Kind    StimRequestKind
	ID      string
	Program []byte
}

type StimResponse struct {
	ID          string
	Declaration []byte
	Acknowledged bool
}

// StimNode invokes synchronously but returns a future (channel) that
// resolves to the response, since stim hardware round-trips are not
// instantaneous.
type StimNode interface {
	Node
	Stim(ctx context.Context, req StimRequest) (<-chan StimResponse, error)
}
