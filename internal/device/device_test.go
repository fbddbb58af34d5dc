package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linux-surface/iptsd/internal/descriptor"
	"github.com/linux-surface/iptsd/internal/ipterrors"
)

// fakeDevice is a hand-rolled Device test double, in the style of the
// teacher's TestableSerialPort: direct field access instead of a mock
// framework.
type fakeDevice struct {
	descriptorBytes []byte
	descriptorErr   error

	readBuf []byte
	readErr error

	featureResponses map[uint8][]byte
	getFeatureErr    error
	setFeatureErr    error
	lastSetReportID  uint8
	lastSetPayload   []byte

	closed bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{featureResponses: make(map[uint8][]byte)}
}

func (f *fakeDevice) Read(buf []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return copy(buf, f.readBuf), nil
}

func (f *fakeDevice) GetFeature(reportID uint8, buf []byte) (int, error) {
	if f.getFeatureErr != nil {
		return 0, f.getFeatureErr
	}
	data := f.featureResponses[reportID]
	return copy(buf, data), nil
}

func (f *fakeDevice) SetFeature(reportID uint8, buf []byte) error {
	if f.setFeatureErr != nil {
		return f.setFeatureErr
	}
	f.lastSetReportID = reportID
	f.lastSetPayload = append([]byte(nil), buf...)
	return nil
}

func (f *fakeDevice) RawDescriptor() ([]byte, error) {
	return f.descriptorBytes, f.descriptorErr
}

func (f *fakeDevice) Close() error {
	f.closed = true
	return nil
}

func testSet() descriptor.Set {
	return descriptor.Set{Reports: []descriptor.Report{
		descriptor.NewReport(1, descriptor.Input, 64,
			[]descriptor.Usage{{Page: descriptor.PageDigitizer, ID: descriptor.UsageTouchA}, {Page: descriptor.PageDigitizer, ID: descriptor.UsageTouchB}}),
		descriptor.NewReport(2, descriptor.Feature, 1,
			[]descriptor.Usage{{Page: descriptor.PageVendor, ID: descriptor.UsageVendor}}),
		descriptor.NewReport(3, descriptor.Feature, 104,
			[]descriptor.Usage{{Page: descriptor.PageDigitizer, ID: descriptor.UsageMeta}}),
	}}
}

func parseTestSet(raw []byte) (descriptor.Set, error) {
	if string(raw) == "bad" {
		return descriptor.Set{}, errors.New("garbage descriptor")
	}
	return testSet(), nil
}

func TestOpenClassifiesDescriptor(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorBytes = []byte("ok")

	f, err := Open(dev, parseTestSet)
	require.NoError(t, err)
	assert.Equal(t, 64, f.BufferSize())
}

func TestOpenFailsOnTransportError(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorErr = errors.New("read failed")

	_, err := Open(dev, parseTestSet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipterrors.ErrTransportFailure))
}

func TestOpenFailsOnUnparsableDescriptor(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorBytes = []byte("bad")

	_, err := Open(dev, parseTestSet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipterrors.ErrUnsupportedDevice))
}

func TestOpenFailsWhenTouchDataReportMissing(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorBytes = []byte("ok")

	parse := func([]byte) (descriptor.Set, error) {
		return descriptor.Set{Reports: []descriptor.Report{
			descriptor.NewReport(2, descriptor.Feature, 1,
				[]descriptor.Usage{{Page: descriptor.PageVendor, ID: descriptor.UsageVendor}}),
		}}, nil
	}

	_, err := Open(dev, parse)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipterrors.ErrUnsupportedDevice))
}

func TestSetModeWritesOneBytePayload(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorBytes = []byte("ok")
	f, err := Open(dev, parseTestSet)
	require.NoError(t, err)

	require.NoError(t, f.SetMode(true))
	assert.Equal(t, uint8(2), dev.lastSetReportID)
	assert.Equal(t, []byte{0x01}, dev.lastSetPayload)

	require.NoError(t, f.SetMode(false))
	assert.Equal(t, []byte{0x00}, dev.lastSetPayload)
}

func encodeRawMetadata(t *testing.T, rm rawMetadata) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, rm))
	return buf.Bytes()
}

func TestGetMetadataDecodesFeatureReport(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorBytes = []byte("ok")

	rm := rawMetadata{Rows: 10, Columns: 15, Width: 9600, Height: 7200}
	rm.XX, rm.YY = 1, 1
	dev.featureResponses[3] = encodeRawMetadata(t, rm)

	f, err := Open(dev, parseTestSet)
	require.NoError(t, err)

	md, ok := f.GetMetadata()
	require.True(t, ok)
	assert.Equal(t, uint32(10), md.Rows)
	assert.Equal(t, uint32(15), md.Columns)
	assert.Equal(t, float32(1), md.Transform.XX)
	assert.False(t, md.Unknown)
}

func TestGetMetadataReportsUnknownTail(t *testing.T) {
	var rm rawMetadata
	rm.Unknown[3] = 1.5
	md, err := DecodeMetadata(encodeRawMetadata(t, rm))
	require.NoError(t, err)
	assert.True(t, md.Unknown)
}

func TestGetMetadataFalseWhenNoMetadataReport(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorBytes = []byte("ok")

	parse := func([]byte) (descriptor.Set, error) {
		s := testSet()
		s.Reports = s.Reports[:2] // drop the metadata report
		return s, nil
	}

	f, err := Open(dev, parse)
	require.NoError(t, err)

	_, ok := f.GetMetadata()
	assert.False(t, ok)
}

func TestFacadeCloseDelegatesToDevice(t *testing.T) {
	dev := newFakeDevice()
	dev.descriptorBytes = []byte("ok")
	f, err := Open(dev, parseTestSet)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	assert.True(t, dev.closed)
}

func TestReplayDeviceCyclesReports(t *testing.T) {
	reports := [][]byte{{0x01, 0x02}, {0x03, 0x04}}
	d := NewReplayDevice([]byte("desc"), reports, time.Millisecond)
	defer d.Close()

	buf := make([]byte, 8)
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, buf[:n])

	n, err = d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x04}, buf[:n])

	desc, err := d.RawDescriptor()
	require.NoError(t, err)
	assert.Equal(t, []byte("desc"), desc)
}

func TestReplayDeviceFeatureResponses(t *testing.T) {
	d := NewReplayDevice([]byte("desc"), nil, time.Millisecond)
	defer d.Close()

	d.SetFeatureResponse(3, []byte{9, 9})
	buf := make([]byte, 2)
	n, err := d.GetFeature(3, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, buf[:n])

	_, err = d.GetFeature(5, buf)
	assert.Error(t, err)
}

func TestOfflineDeviceServesThenEOF(t *testing.T) {
	d := NewOfflineDevice([]byte("desc"), [][]byte{{1}, {2}})

	buf := make([]byte, 4)
	n, err := d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, buf[:n])

	n, err = d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, buf[:n])

	_, err = d.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOfflineDeviceSetFeatureIsNoop(t *testing.T) {
	d := NewOfflineDevice([]byte("desc"), nil)
	assert.NoError(t, d.SetFeature(1, []byte{1}))
	assert.NoError(t, d.Close())
}
