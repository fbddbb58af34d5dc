package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linux-surface/iptsd/internal/config"
	"github.com/linux-surface/iptsd/internal/contacts"
	"github.com/linux-surface/iptsd/internal/descriptor"
	"github.com/linux-surface/iptsd/internal/device"
	"github.com/linux-surface/iptsd/internal/dft"
	"github.com/linux-surface/iptsd/internal/frame"
	"github.com/linux-surface/iptsd/internal/ipterrors"
)

// fakeSink is a hand-rolled OutputSink test double, in the style of the
// teacher's direct-field-access fakes.
type fakeSink struct {
	contacts [][]contacts.Contact
	styli    []StylusSample
}

func (s *fakeSink) Contacts(cs []contacts.Contact) {
	cp := append([]contacts.Contact(nil), cs...)
	s.contacts = append(s.contacts, cp)
}

func (s *fakeSink) Stylus(st StylusSample) {
	s.styli = append(s.styli, st)
}

func testConfig() *config.Config {
	cfg := config.Empty()
	w, h := float32(100), float32(100)
	cfg.Width, cfg.Height = &w, &h

	// ContactsActivationThresh/ContactsDeactivationThresh are stored on
	// the raw 0-255 scale (Get* divides by 255 before use); set them so
	// the normalized thresholds land at 0.3/0.2 against internal/heatmap's
	// [0,1] output, reliably triggering peak detection on a single bright
	// blob in a small test grid.
	act, deact := float32(0.3*255), float32(0.2*255)
	cfg.ContactsActivationThresh, cfg.ContactsDeactivationThresh = &act, &deact
	sizeMax := float32(1000)
	cfg.ContactsSizeMax = &sizeMax
	aspectMax := float32(1000)
	cfg.ContactsAspectMax = &aspectMax

	// classifyStability never passes on a track's first frame (it
	// requires at least 2 observations); disable the stability filter
	// so single-call tests can assert on a single emitted frame.
	stab := false
	cfg.TouchCheckStability = &stab

	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	d := New(nil, cfg, sink, DefaultTestParams())
	return d, sink
}

// DefaultTestParams gives handleDFT/handleLegacyStylus tests an MPP2-free
// frame.Params, matching frame.DefaultParams.
func DefaultTestParams() frame.Params {
	return frame.DefaultParams()
}

func TestHandleDFTFeedsEstimatorAndPublishesStylus(t *testing.T) {
	d, sink := newTestDaemon(t, testConfig())

	row := func(mag uint64) dft.Row {
		r := dft.Row{Magnitude: mag}
		r.Real[4] = 100
		return r
	}

	w := dft.Window{
		Type: dft.Position,
		X:    []dft.Row{row(10000), row(10000)},
		Y:    []dft.Row{row(10000), row(10000)},
	}

	d.handleDFT(w)

	require.Len(t, sink.styli, 1)
}

func TestHandleDFTSkippedWhenStylusDisabled(t *testing.T) {
	cfg := testConfig()
	disable := true
	cfg.StylusDisable = &disable
	d, sink := newTestDaemon(t, cfg)

	d.handleDFT(dft.Window{Type: dft.Position})
	assert.Empty(t, sink.styli)
}

func TestHandleLegacyStylusRepublishesAndTracksSerial(t *testing.T) {
	d, sink := newTestDaemon(t, testConfig())

	d.handleLegacyStylus(frame.LegacyStylusSample{Serial: 99, Proximity: true, X: 0.25, Y: 0.75})

	require.Len(t, sink.styli, 1)
	assert.Equal(t, uint32(99), sink.styli[0].Serial)
	assert.Equal(t, uint32(99), d.lastSerial)
	assert.True(t, d.haveSerial)
}

func TestHandleLegacyStylusAppliesAxisInversion(t *testing.T) {
	cfg := testConfig()
	inv := true
	cfg.InvertX = &inv
	d, sink := newTestDaemon(t, cfg)

	d.handleLegacyStylus(frame.LegacyStylusSample{Serial: 1, Proximity: true, X: 0.25, Y: 0.75})

	require.Len(t, sink.styli, 1)
	assert.InDelta(t, 0.75, sink.styli[0].X, 1e-9)
	assert.InDelta(t, 0.75, sink.styli[0].Y, 1e-9)
}

func TestHandleLegacyStylusSkippedWhenStylusDisabled(t *testing.T) {
	cfg := testConfig()
	disable := true
	cfg.StylusDisable = &disable
	d, sink := newTestDaemon(t, cfg)

	d.handleLegacyStylus(frame.LegacyStylusSample{Serial: 1, Proximity: true})
	assert.Empty(t, sink.styli)
}

func TestHandleHeatmapSkippedWhenTouchDisabled(t *testing.T) {
	cfg := testConfig()
	disable := true
	cfg.TouchDisable = &disable
	d, sink := newTestDaemon(t, cfg)

	d.handleHeatmap(frame.HeatmapSample{Rows: 2, Cols: 2, ZMax: 255, Data: []byte{0, 0, 0, 0}})
	assert.Empty(t, sink.contacts)
}

func TestHandleHeatmapForwardsContacts(t *testing.T) {
	d, sink := newTestDaemon(t, testConfig())

	rows, cols := 10, 10
	data := make([]byte, rows*cols)
	// A single bright blob (low raw value = high normalized intensity,
	// per internal/heatmap's inverted sense) centered at (5,5).
	for y := 3; y <= 7; y++ {
		for x := 3; x <= 7; x++ {
			data[y*cols+x] = 0
		}
	}
	for i := range data {
		if data[i] == 0 && !(i/cols >= 3 && i/cols <= 7 && i%cols >= 3 && i%cols <= 7) {
			data[i] = 255
		}
	}

	d.handleHeatmap(frame.HeatmapSample{Rows: rows, Cols: cols, ZMin: 0, ZMax: 255, Data: data})

	require.Len(t, sink.contacts, 1)
}

func TestHandleHeatmapGatedWhileStylusProximate(t *testing.T) {
	cfg := testConfig()
	gate := true
	cfg.TouchDisableOnStylus = &gate
	d, sink := newTestDaemon(t, cfg)

	d.handleLegacyStylus(frame.LegacyStylusSample{Serial: 5, Proximity: true, X: 0.1, Y: 0.1})

	d.handleHeatmap(frame.HeatmapSample{Rows: 2, Cols: 2, ZMax: 255, Data: []byte{255, 255, 255, 255}})
	assert.Empty(t, sink.contacts)

	d.handleLegacyStylus(frame.LegacyStylusSample{Serial: 5, Proximity: false})
	d.handleHeatmap(frame.HeatmapSample{Rows: 2, Cols: 2, ZMax: 255, Data: []byte{255, 255, 255, 255}})
	assert.Len(t, sink.contacts, 1)
}

// fakeRunDevice is a minimal device.Device test double driving Run's
// retry/abort and malformed-frame-continue behavior directly, in the
// style of internal/device's fakeDevice.
type fakeRunDevice struct {
	reads      [][]byte
	readErrs   []error
	call       int
	descriptor []byte
}

func (f *fakeRunDevice) Read(buf []byte) (int, error) {
	i := f.call
	f.call++
	if i < len(f.readErrs) && f.readErrs[i] != nil {
		return 0, f.readErrs[i]
	}
	if i < len(f.reads) {
		return copy(buf, f.reads[i]), nil
	}
	return 0, errors.New("no more fixtures")
}

func (f *fakeRunDevice) GetFeature(uint8, []byte) (int, error) { return 0, nil }
func (f *fakeRunDevice) SetFeature(uint8, []byte) error        { return nil }
func (f *fakeRunDevice) RawDescriptor() ([]byte, error)        { return f.descriptor, nil }
func (f *fakeRunDevice) Close() error                          { return nil }

// testDescriptorParser builds the minimal descriptor.Set a Facade needs
// (a touch-data report and a mode-setter report), independent of the raw
// bytes, matching internal/device's own test parser.
func testDescriptorParser(raw []byte) (descriptor.Set, error) {
	return descriptor.Set{Reports: []descriptor.Report{
		descriptor.NewReport(1, descriptor.Input, 64,
			[]descriptor.Usage{{Page: descriptor.PageDigitizer, ID: descriptor.UsageTouchA}, {Page: descriptor.PageDigitizer, ID: descriptor.UsageTouchB}}),
		descriptor.NewReport(2, descriptor.Feature, 1,
			[]descriptor.Usage{{Page: descriptor.PageVendor, ID: descriptor.UsageVendor}}),
	}}, nil
}

func openTestFacade(t *testing.T, dev device.Device) *device.Facade {
	t.Helper()
	f, err := device.Open(dev, testDescriptorParser)
	require.NoError(t, err)
	return f
}

func TestRunAbortsAfterMaxConsecutiveTransportFailures(t *testing.T) {
	dev := &fakeRunDevice{descriptor: []byte("ok")}
	for i := 0; i < maxConsecutiveFailures; i++ {
		dev.readErrs = append(dev.readErrs, ipterrors.TransportFailure(errors.New("io error")))
	}

	facade := openTestFacade(t, dev)
	d, _ := newTestDaemon(t, testConfig())
	d.facade = facade

	origDelay := transportRetryDelay
	transportRetryDelay = time.Microsecond
	defer func() { transportRetryDelay = origDelay }()

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipterrors.ErrTransportFailure))
	assert.Equal(t, maxConsecutiveFailures, dev.call)
}

func TestRunDiscardsMalformedFrameAndContinues(t *testing.T) {
	dev := &fakeRunDevice{descriptor: []byte("ok")}
	dev.reads = [][]byte{
		{0xFF}, // too short to parse: truncated frame error
		nil,
	}
	facade := openTestFacade(t, dev)
	d, _ := newTestDaemon(t, testConfig())
	d.facade = facade

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond)
		cancel()
	}()

	err := d.Run(ctx)
	require.NoError(t, err)
}
