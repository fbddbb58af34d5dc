// Package device implements the descriptor-aware device facade
// (spec.md §4.I): it opens a transport, reads the raw HID report
// descriptor, classifies it into a descriptor.Set, and exposes the
// capability set the daemon loop drives — read, get_feature,
// set_feature, set_mode, get_metadata, buffer_size.
//
// The transport itself is polymorphic (spec.md §9 "Polymorphic device
// backends"): production code drives a real hidraw node, tests and
// offline tooling drive a captured-trace replay or a static file, all
// behind the same Device interface, mirroring the teacher's
// serialmux.SerialPorter / radar.RadarPortInterface real-vs-mock split.
package device

import (
	"github.com/linux-surface/iptsd/internal/descriptor"
	"github.com/linux-surface/iptsd/internal/ipterrors"
	"github.com/linux-surface/iptsd/internal/reader"
)

// Device is the capability set spec.md §9 models as
// {read(buf)→usize, get_feature, set_feature, raw_descriptor→bytes}.
// Every backend (hidraw, replay, offline) implements this directly;
// Facade wraps one of them with descriptor-driven convenience methods.
type Device interface {
	Read(buf []byte) (int, error)
	GetFeature(reportID uint8, buf []byte) (int, error)
	SetFeature(reportID uint8, buf []byte) error
	RawDescriptor() ([]byte, error)
	Close() error
}

// Transform carries the device's reported axis orientation, per the
// hardware metadata feature report (original_source's
// ipts_touch_metadata_transform: two affine rows, x' = xx*x + yx*y + tx,
// y' = xy*x + yy*y + ty).
type Transform struct {
	XX, YX, TX float32
	XY, YY, TY float32
}

// Metadata is the decoded metadata feature report (spec.md §3, §4.I
// get_metadata). Rows/Columns/Width/Height describe the heatmap grid
// and its physical size; Unknown reports whether the report's
// undocumented trailing float block carried any non-zero data (the
// original driver reads and discards this block without interpreting
// it; we only note its presence for diagnostics).
type Metadata struct {
	Rows, Columns uint32
	Width, Height uint32
	Transform     Transform
	Unknown       bool
}

// metadataUnknownFloats is the length of the metadata report's
// undocumented trailing float block (ipts_touch_metadata_unknown).
const metadataUnknownFloats = 16

// rawMetadata mirrors the wire layout of the metadata feature report:
// size block, transform block, then 16 reserved floats.
type rawMetadata struct {
	Rows, Columns uint32
	Width, Height uint32
	XX, YX, TX    float32
	XY, YY, TY    float32
	Unknown       [metadataUnknownFloats]float32
}

// DecodeMetadata parses the metadata feature report payload (spec.md
// §4.I get_metadata). The leading report-ID byte, if present, must
// already have been stripped by the caller.
func DecodeMetadata(raw []byte) (Metadata, error) {
	r := reader.New(raw)
	rm, err := reader.Read[rawMetadata](r)
	if err != nil {
		return Metadata{}, err
	}

	unknown := false
	for _, v := range rm.Unknown {
		if v != 0 {
			unknown = true
			break
		}
	}

	return Metadata{
		Rows:    rm.Rows,
		Columns: rm.Columns,
		Width:   rm.Width,
		Height:  rm.Height,
		Transform: Transform{
			XX: rm.XX, YX: rm.YX, TX: rm.TX,
			XY: rm.XY, YY: rm.YY, TY: rm.TY,
		},
		Unknown: unknown,
	}, nil
}

// DescriptorParser turns the raw binary HID report descriptor into a
// classified descriptor.Set. The byte-level descriptor grammar is the
// "external descriptor parser" spec.md treats as a pre-existing
// collaborator (see internal/descriptor's package doc); Facade only
// needs the resulting Set.
type DescriptorParser func(raw []byte) (descriptor.Set, error)

// Facade is the device facade of spec.md §4.I: a Device plus the
// classified report Set needed to answer SetMode/GetMetadata/BufferSize
// without the caller knowing report IDs.
type Facade struct {
	dev     Device
	reports descriptor.Set
}

// Open constructs a Facade: it reads dev's raw descriptor, classifies
// it with parseDescriptor, and verifies the reports the daemon requires
// are present (spec.md §7 UnsupportedDevice).
func Open(dev Device, parseDescriptor DescriptorParser) (*Facade, error) {
	raw, err := dev.RawDescriptor()
	if err != nil {
		return nil, ipterrors.TransportFailure(err)
	}

	set, err := parseDescriptor(raw)
	if err != nil {
		return nil, ipterrors.UnsupportedDevice(err.Error())
	}

	if _, ok := set.TouchData(); !ok {
		return nil, ipterrors.UnsupportedDevice("descriptor has no touch data report")
	}
	if _, ok := set.ModeSetter(); !ok {
		return nil, ipterrors.UnsupportedDevice("descriptor has no mode-set report")
	}

	return &Facade{dev: dev, reports: set}, nil
}

// Read reads one report from the transport.
func (f *Facade) Read(buf []byte) (int, error) {
	n, err := f.dev.Read(buf)
	if err != nil {
		return n, ipterrors.TransportFailure(err)
	}
	return n, nil
}

// GetFeature issues a feature-report-get control request.
func (f *Facade) GetFeature(reportID uint8, buf []byte) (int, error) {
	n, err := f.dev.GetFeature(reportID, buf)
	if err != nil {
		return n, ipterrors.TransportFailure(err)
	}
	return n, nil
}

// SetFeature issues a feature-report-set control request.
func (f *Facade) SetFeature(reportID uint8, buf []byte) error {
	if err := f.dev.SetFeature(reportID, buf); err != nil {
		return ipterrors.TransportFailure(err)
	}
	return nil
}

// SetMode writes the 1-byte modesetting payload (spec.md §6): 0x01 for
// multitouch, 0x00 for singletouch.
func (f *Facade) SetMode(multitouch bool) error {
	rep, ok := f.reports.ModeSetter()
	if !ok {
		return ipterrors.UnsupportedDevice("no mode-set report")
	}

	payload := []byte{0x00}
	if multitouch {
		payload[0] = 0x01
	}

	return f.SetFeature(rep.ID, payload)
}

// GetMetadata reads and decodes the metadata feature report. It returns
// false if the descriptor carries no metadata report or the read/decode
// fails; callers fall back to configured defaults in that case.
func (f *Facade) GetMetadata() (Metadata, bool) {
	rep, ok := f.reports.Metadata()
	if !ok {
		return Metadata{}, false
	}

	buf := make([]byte, rep.SizeBytes)
	n, err := f.GetFeature(rep.ID, buf)
	if err != nil {
		return Metadata{}, false
	}

	md, err := DecodeMetadata(buf[:n])
	if err != nil {
		return Metadata{}, false
	}

	return md, true
}

// BufferSize returns the largest Input report size the descriptor
// declares, the size the daemon loop should preallocate its read
// buffer to.
func (f *Facade) BufferSize() int {
	return f.reports.MaxInputSize()
}

// Close releases the underlying transport.
func (f *Facade) Close() error {
	return f.dev.Close()
}
