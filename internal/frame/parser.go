package frame

import (
	"math"

	"github.com/linux-surface/iptsd/internal/device"
	"github.com/linux-surface/iptsd/internal/dft"
	"github.com/linux-surface/iptsd/internal/ipterrors"
	"github.com/linux-surface/iptsd/internal/reader"
)

// Sinks groups the callbacks Parser dispatches decoded samples to
// (spec.md §4.C: on_heatmap, on_stylus, on_dft, on_metadata). spec.md's
// sink list also names on_button, but the only button signal the wire
// format carries is the DFT Button window, which is already one of
// dft.WindowType's five variants and is fed through OnDFT exactly like
// Position/Pressure; a second identical sink would be redundant, so the
// daemon's single "feed the estimator" entry point (spec.md §4.H step 3)
// is the one place button state surfaces.
type Sinks struct {
	OnHeatmap  func(HeatmapSample)
	OnStylus   func(LegacyStylusSample)
	OnDFT      func(dft.Window)
	OnMetadata func(device.Metadata)
}

// Params configures firmware-dependent DFT window sub-tags that spec.md
// §6 and §9 note vary by device generation and must be supplied rather
// than guessed; ids left at -1 are never recognized, matching spec.md's
// "if unknown, ignore" guidance.
type Params struct {
	PositionMPP2ID int
	BinaryMPP2ID   int
}

// DefaultParams leaves the MPP2 sub-tags unconfigured.
func DefaultParams() Params {
	return Params{PositionMPP2ID: -1, BinaryMPP2ID: -1}
}

// Parser is the frame-envelope decoding state machine of spec.md §4.C.
// It is not safe for concurrent use: the daemon loop feeds it one Input
// report at a time from its single-threaded report loop (spec.md §5).
type Parser struct {
	sinks  Sinks
	params Params

	haveDims bool
	dims     dimensions
}

// New constructs a Parser with the given sinks and firmware parameters.
func New(sinks Sinks, params Params) *Parser {
	return &Parser{sinks: sinks, params: params}
}

// Parse decodes one Input report: a 1-byte report ID, a 2-byte scan
// timestamp, then a sequence of hid-frames (spec.md §4.C). A malformed
// or truncated frame anywhere in the report aborts decoding of that
// report and returns ipterrors.ErrMalformedFrame; the caller discards
// the report and continues with the next one (spec.md §7).
func (p *Parser) Parse(buf []byte) error {
	r := reader.New(buf)

	if err := r.Skip(1); err != nil {
		return err
	}
	if _, err := reader.Read[uint16](r); err != nil {
		return err
	}

	return p.parseHidFrames(r)
}

func (p *Parser) parseHidFrames(r *reader.R) error {
	for r.Remaining() > 0 {
		if err := p.parseHidFrame(r); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseHidFrame(r *reader.R) error {
	hdr, err := reader.Read[hidFrameHeader](r)
	if err != nil {
		return err
	}

	sub, err := r.Sub(int(hdr.Size))
	if err != nil {
		return err
	}

	switch hdr.Type {
	case hidFrameHID:
		return p.parseHidFrames(sub)
	case hidFrameHeatmap:
		return p.parseCombinedHeatmap(sub)
	case hidFrameMetadata:
		return p.parseMetadataFrame(sub)
	case hidFrameRaw:
		return p.parseRaw(sub)
	case hidFrameReports:
		return p.parseReports(sub)
	default:
		return nil // unknown hid-frame type: already consumed via Sub, skip
	}
}

// parseCombinedHeatmap decodes a Heatmap (0x01) hid-frame: an 8-byte
// dimensions header directly followed by rows*cols raw intensity bytes.
func (p *Parser) parseCombinedHeatmap(r *reader.R) error {
	dims, err := reader.Read[dimensions](r)
	if err != nil {
		return err
	}

	data, err := r.Bytes(int(dims.Height) * int(dims.Width))
	if err != nil {
		return err
	}

	p.emitHeatmap(dims, data)
	return nil
}

func (p *Parser) emitHeatmap(dims dimensions, data []byte) {
	if p.sinks.OnHeatmap == nil {
		return
	}
	p.sinks.OnHeatmap(HeatmapSample{
		Rows: int(dims.Height),
		Cols: int(dims.Width),
		ZMin: dims.ZMin,
		ZMax: dims.ZMax,
		Data: append([]byte(nil), data...),
	})
}

func (p *Parser) parseMetadataFrame(r *reader.R) error {
	raw, err := r.Bytes(r.Remaining())
	if err != nil {
		return err
	}
	md, err := device.DecodeMetadata(raw)
	if err != nil {
		return err
	}
	if p.sinks.OnMetadata != nil {
		p.sinks.OnMetadata(md)
	}
	return nil
}

// parseRaw decodes a Raw (0xEE) hid-frame: a 12-byte header declaring a
// count of sub-frames, each carrying its own stylus or heatmap payload
// (spec.md §4.C "Raw").
func (p *Parser) parseRaw(r *reader.R) error {
	hdr, err := reader.Read[rawHeader](r)
	if err != nil {
		return err
	}

	for i := uint32(0); i < hdr.Frames; i++ {
		if r.Remaining() == 0 {
			break
		}
		if err := p.parseRawSubFrame(r); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseRawSubFrame(r *reader.R) error {
	hdr, err := reader.Read[rawSubFrameHeader](r)
	if err != nil {
		return err
	}

	sub, err := r.Sub(int(hdr.Size))
	if err != nil {
		return err
	}

	switch hdr.Type {
	case rawFrameStylus:
		return p.parseStylusReport(sub, true)
	case rawFrameHeatmap:
		return p.parseCombinedHeatmap(sub)
	default:
		return nil
	}
}

// parseReports decodes a Reports (0xFF) hid-frame: a sequence of
// self-describing report records, each tagged with its own type
// (spec.md §6). A Dimensions (0x03) record is cached and paired with the
// next Heatmap (0x25) record's raw bytes into one combined sample,
// mirroring original_source/IPTSDaemon/daemon/touch.cpp's pre-combine
// step (the production daemon caches the dimensions report and merges it
// with the following heatmap payload before dispatching touch input).
func (p *Parser) parseReports(r *reader.R) error {
	for r.Remaining() > 0 {
		if err := p.parseReport(r); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseReport(r *reader.R) error {
	hdr, err := reader.Read[reportHeader](r)
	if err != nil {
		return err
	}

	sub, err := r.Sub(int(hdr.Size))
	if err != nil {
		return err
	}

	switch hdr.Type {
	case reportTimestamp:
		return nil
	case reportDimensions:
		dims, err := reader.Read[dimensions](sub)
		if err != nil {
			return err
		}
		p.dims = dims
		p.haveDims = true
		return nil
	case reportHeatmap:
		if !p.haveDims {
			return ipterrors.MalformedFrame("heatmap report with no preceding dimensions report")
		}
		data, err := sub.Bytes(int(p.dims.Height) * int(p.dims.Width))
		if err != nil {
			return err
		}
		p.emitHeatmap(p.dims, data)
		return nil
	case reportStylusV1:
		return p.parseStylusReport(sub, false)
	case reportStylusV2:
		return p.parseStylusReport(sub, true)
	case reportDFTWindow:
		return p.parseDFTWindow(sub)
	case reportPenLift:
		p.emitLift()
		return nil
	default:
		return nil
	}
}

func (p *Parser) emitLift() {
	if p.sinks.OnStylus == nil {
		return
	}
	p.sinks.OnStylus(LegacyStylusSample{})
}

// parseStylusReport decodes a StylusV1/StylusV2 report body: an 8-byte
// header declaring the element count, followed by that many fixed-size
// elements (spec.md §4.E "legacy stylus").
func (p *Parser) parseStylusReport(r *reader.R, v2 bool) error {
	hdr, err := reader.Read[stylusHeader](r)
	if err != nil {
		return err
	}

	for i := uint8(0); i < hdr.Elements; i++ {
		var sample LegacyStylusSample
		if v2 {
			el, err := reader.Read[stylusElementV2](r)
			if err != nil {
				return err
			}
			sample = decodeStylusV2(hdr.Serial, el)
		} else {
			el, err := reader.Read[stylusElementV1](r)
			if err != nil {
				return err
			}
			sample = decodeStylusV1(hdr.Serial, el)
		}

		if p.sinks.OnStylus != nil {
			p.sinks.OnStylus(sample)
		}
	}
	return nil
}

func decodeStylusV1(serial uint32, el stylusElementV1) LegacyStylusSample {
	return LegacyStylusSample{
		Serial:    serial,
		Proximity: el.Mode&(1<<stylusBitProximity) != 0,
		Contact:   el.Mode&(1<<stylusBitContact) != 0,
		Button:    el.Mode&(1<<stylusBitButton) != 0,
		Rubber:    el.Mode&(1<<stylusBitRubber) != 0,
		X:         clamp01(float64(el.X) / maxX),
		Y:         clamp01(float64(el.Y) / maxY),
		Pressure:  clamp01(float64(el.Pressure) / maxPressure),
	}
}

func decodeStylusV2(serial uint32, el stylusElementV2) LegacyStylusSample {
	return LegacyStylusSample{
		Serial:    serial,
		Proximity: el.Mode&(1<<stylusBitProximity) != 0,
		Contact:   el.Mode&(1<<stylusBitContact) != 0,
		Button:    el.Mode&(1<<stylusBitButton) != 0,
		Rubber:    el.Mode&(1<<stylusBitRubber) != 0,
		X:         clamp01(float64(el.X) / maxX),
		Y:         clamp01(float64(el.Y) / maxY),
		Pressure:  clamp01(float64(el.Pressure) / maxPressure),
		Altitude:  tiltRadians(el.Altitude),
		Azimuth:   tiltRadians(el.Azimuth),
		Timestamp: el.Timestamp,
	}
}

// tiltRadians converts a raw [0,18000] hundredths-of-a-degree tilt reading
// into radians, grounded on original_source/IPTSDaemon/daemon/stylus.cpp's
// get_tilt (raw/18000*pi).
func tiltRadians(raw uint16) float64 {
	return float64(raw) / 18000 * math.Pi
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// dftRowAxisCount is the convention this decoder assumes for splitting a
// DFT window's rows between its X and Y antenna arrays: num_rows split
// evenly in half, first half X, second half Y. original_source's
// wire-level ipts_pen_dft_window_row carries no axis tag of its own, and
// the filtered original_source pack does not include the struct that
// would confirm the split (ipts/samples/dft.hpp); internal/dft's own
// Window{X,Y []Row} model assumes symmetric per-axis row counts
// (handlePosition/handlePressure index w.X[i] and w.Y[i] in lockstep),
// so an even half/half split is the only convention consistent with how
// the estimator already consumes a Window.
func dftRowAxisCount(numRows uint8) int {
	return int(numRows) / 2
}

// parseDFTWindow decodes a DFT window report: a 12-byte header
// (spec.md §6) followed by num_rows fixed-size antenna rows, split
// half/half into Window.X and Window.Y (see dftRowAxisCount).
func (p *Parser) parseDFTWindow(r *reader.R) error {
	hdr, err := reader.Read[dftWindowHeader](r)
	if err != nil {
		return err
	}

	typ, ok := p.dftWindowType(hdr.DataType)
	if !ok {
		return nil // firmware-specific or unrecognized sub-tag: ignore
	}

	n := dftRowAxisCount(hdr.NumRows)
	x := make([]dft.Row, 0, n)
	y := make([]dft.Row, 0, n)

	for i := 0; i < n; i++ {
		row, err := reader.Read[dftRow](r)
		if err != nil {
			return err
		}
		x = append(x, toDFTRow(row))
	}
	for i := 0; i < n; i++ {
		row, err := reader.Read[dftRow](r)
		if err != nil {
			return err
		}
		y = append(y, toDFTRow(row))
	}

	group := uint32(hdr.SeqNum)
	w := dft.Window{
		Type:   typ,
		Group:  &group,
		Width:  uint8(n),
		Height: uint8(n),
		X:      x,
		Y:      y,
	}

	if p.sinks.OnDFT != nil {
		p.sinks.OnDFT(w)
	}
	return nil
}

func toDFTRow(r dftRow) dft.Row {
	row := dft.Row{
		First:     int(r.First),
		Magnitude: uint64(r.Magnitude),
	}
	for i := 0; i < dft.NumComponents; i++ {
		row.Real[i] = int32(r.Real[i])
		row.Imag[i] = int32(r.Imag[i])
	}
	return row
}

// DFT window data_type IDs (spec.md §6). Position/Button/Pressure are
// stable across firmware generations (original_source's
// ipts::protocol::dft::Type::Position/Button/Pressure); the MPP2
// sub-tags are not, and are supplied via Params.
const (
	dftIDPosition uint8 = 6
	dftIDButton   uint8 = 9
	dftIDPressure uint8 = 11
)

func (p *Parser) dftWindowType(dataType uint8) (dft.WindowType, bool) {
	switch {
	case dataType == dftIDPosition:
		return dft.Position, true
	case dataType == dftIDButton:
		return dft.Button, true
	case dataType == dftIDPressure:
		return dft.Pressure, true
	case p.params.PositionMPP2ID >= 0 && int(dataType) == p.params.PositionMPP2ID:
		return dft.PositionMPP2, true
	case p.params.BinaryMPP2ID >= 0 && int(dataType) == p.params.BinaryMPP2ID:
		return dft.BinaryMPP2, true
	default:
		return 0, false
	}
}
