// Package frame implements the top-level frame parser (spec.md §4.C):
// the state machine that decodes the layered IPTS report envelope (raw
// frames → HID frames → reports) into typed samples and dispatches them
// to registered sink callbacks. Grounded on the teacher's
// internal/lidar/l2frames/frame_builder.go (callback/registration style)
// and internal/lidar/parser.go (layered binary decode via manual offset
// arithmetic); unlike the teacher's channel-serialized callbacks, these
// sinks are called synchronously and in-line, since spec.md §5 mandates
// single-threaded cooperative dispatch with no channel hand-off.
package frame

// Wire-layout types below mirror original_source/IPTSDaemon/ipts/protocol.hpp's
// gnu::packed structs field-for-field; all are little-endian per spec.md §4.A.

// hidFrameHeader precedes every hid-frame's payload.
type hidFrameHeader struct {
	Size      uint32
	Reserved1 uint8
	Type      uint8
	Reserved2 uint8
}

// Hid-frame type tags (spec.md §6).
const (
	hidFrameHID      uint8 = 0x00
	hidFrameHeatmap  uint8 = 0x01
	hidFrameMetadata uint8 = 0x02
	hidFrameRaw      uint8 = 0xEE
	hidFrameReports  uint8 = 0xFF
)

// reportHeader precedes each report-record's payload inside a Reports
// (0xFF) hid-frame.
type reportHeader struct {
	Type  uint8
	Flags uint8
	Size  uint16
}

// Report-type tags (spec.md §6).
const (
	reportTimestamp  uint8 = 0x00
	reportDimensions uint8 = 0x03
	reportHeatmap    uint8 = 0x25
	reportStylusV1   uint8 = 0x10
	reportStylusV2   uint8 = 0x60
	reportDFTWindow  uint8 = 0x5C
	reportPenLift    uint8 = 0x63
)

// rawHeader precedes the sub-frame sequence inside a Raw (0xEE) hid-frame.
type rawHeader struct {
	Counter  uint32
	Frames   uint32
	Reserved [4]uint8
}

// rawSubFrameHeader precedes each sub-frame's payload inside a Raw
// hid-frame.
type rawSubFrameHeader struct {
	Index    uint16
	Type     uint16
	Size     uint32
	Reserved [8]uint8
}

// Raw sub-frame type tags (spec.md §6).
const (
	rawFrameStylus  uint16 = 0x06
	rawFrameHeatmap uint16 = 0x08
)

// dimensions is the combined Heatmap (0x01) hid-frame header and the
// Dimensions (0x03) report payload: both carry the same 8-byte layout.
type dimensions struct {
	Height, Width uint8
	YMin, YMax    uint8
	XMin, XMax    uint8
	ZMin, ZMax    uint8
}

// stylusHeader precedes a legacy stylus report's elements.
type stylusHeader struct {
	Elements uint8
	Reserved [3]uint8
	Serial   uint32
}

// stylusElementV1 is one element of a StylusV1 (0x10) report.
type stylusElementV1 struct {
	Reserved  [4]uint8
	Mode      uint8
	X, Y      uint16
	Pressure  uint16
	Reserved2 uint8
}

// stylusElementV2 is one element of a StylusV2 (0x60) report.
type stylusElementV2 struct {
	Timestamp uint16
	Mode      uint16
	X, Y      uint16
	Pressure  uint16
	Altitude  uint16
	Azimuth   uint16
	Reserved  [2]uint8
}

// Stylus mode bitfield bits (spec.md §6).
const (
	stylusBitProximity = 0
	stylusBitContact   = 1
	stylusBitButton    = 2
	stylusBitRubber    = 3
)

// dftWindowHeader precedes a DFT window's rows.
type dftWindowHeader struct {
	Timestamp uint32
	NumRows   uint8
	SeqNum    uint8
	Reserved  [3]uint8
	DataType  uint8
	Reserved2 [2]uint8
}

// dftRow is one antenna row's wire layout, for either axis.
type dftRow struct {
	Frequency        uint32
	Magnitude        uint32
	Real             [9]int16
	Imag             [9]int16
	First, Last      int8
	Mid, Zero        int8
}

// Device-reported coordinate limits (spec.md §6).
const (
	maxX        = 9600
	maxY        = 7200
	maxPressure = 4096
)

// HeatmapSample is one decoded, not-yet-normalized heatmap frame.
type HeatmapSample struct {
	Rows, Cols int
	ZMin, ZMax uint8
	Data       []byte // len == Rows*Cols
}

// LegacyStylusSample is one decoded v1/v2 stylus element, already
// normalized to spec.md §3's StylusSample units.
type LegacyStylusSample struct {
	Serial uint32

	Proximity, Contact bool
	Button, Rubber     bool

	X, Y     float64 // normalized [0,1]
	Pressure float64 // normalized [0,1]
	Altitude float64 // radians
	Azimuth  float64 // radians

	Timestamp uint16
}
