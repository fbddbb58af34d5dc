// Package daemon implements the application orchestrator (spec.md §4.H):
// it wires the frame parser's sinks into the heatmap→contacts pipeline
// and the DFT/legacy→stylus pipeline, applies axis inversion and
// rejection-cone suppression, and drives the single-threaded main loop
// of spec.md §5. Grounded on the teacher's main.go event loop (context-
// based signal cancellation, log-and-retry on transient I/O failure)
// and cmd/lidar/lidar.go (wiring a parser's sinks into a processing
// pipeline then an output sink).
package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/linux-surface/iptsd/internal/config"
	"github.com/linux-surface/iptsd/internal/cone"
	"github.com/linux-surface/iptsd/internal/contacts"
	"github.com/linux-surface/iptsd/internal/device"
	"github.com/linux-surface/iptsd/internal/dft"
	"github.com/linux-surface/iptsd/internal/frame"
	"github.com/linux-surface/iptsd/internal/heatmap"
	"github.com/linux-surface/iptsd/internal/ipterrors"
	"github.com/linux-surface/iptsd/internal/telemetry"
)

// maxConsecutiveFailures and transportRetryDelay implement spec.md §5's
// error budget: retry transient I/O failures with a fixed backoff, abort
// after too many in a row.
const maxConsecutiveFailures = 10

// transportRetryDelay is a var (not const) so tests can shrink it instead
// of burning wall-clock time on the retry/abort path.
var transportRetryDelay = 100 * time.Millisecond

// StylusSample is the daemon's unified stylus output (spec.md §3),
// produced either from a DFT window (via the estimator) or from a
// legacy v1/v2 report, after inversion.
type StylusSample struct {
	Serial uint32

	Proximity, Contact bool
	Button, Rubber     bool

	X, Y      float64
	Pressure  float64
	Altitude  float64
	Azimuth   float64
	Timestamp uint16
}

// OutputSink receives the daemon's processed contact and stylus streams.
// Production code backs this with a Linux uinput device; the kernel
// input-event encoding itself is out of this module's scope (spec.md
// §1's Non-goals) — OutputSink is the seam where that encoding plugs in.
type OutputSink interface {
	Contacts(cs []contacts.Contact)
	Stylus(s StylusSample)
}

// Daemon is the application orchestrator of spec.md §4.H. It is not
// safe for concurrent use: it is driven exclusively by its own Run loop
// (spec.md §5 "single-threaded, cooperative").
type Daemon struct {
	facade *device.Facade
	cfg    *config.Config
	sink   OutputSink

	parser    *frame.Parser
	tracker   *contacts.Tracker
	estimator *dft.Estimator
	cones     *cone.Registry

	hm *heatmap.Heatmap

	lastSerial   uint32
	haveSerial   bool
	stylusActive map[uint32]bool
}

// New builds a Daemon wiring cfg's tuning parameters into a fresh
// tracker, estimator and cone registry, and registers its own sinks
// with a new frame.Parser.
func New(facade *device.Facade, cfg *config.Config, sink OutputSink, frameParams frame.Params) *Daemon {
	d := &Daemon{
		facade:       facade,
		cfg:          cfg,
		sink:         sink,
		tracker:      contacts.NewTracker(contactsParams(cfg)),
		estimator:    dft.NewEstimator(dftParams(cfg)),
		cones:        cone.NewRegistry(float64(cfg.GetConeAngle()), float64(cfg.GetConeDistance())),
		stylusActive: make(map[uint32]bool),
	}

	d.parser = frame.New(frame.Sinks{
		OnHeatmap: d.handleHeatmap,
		OnStylus:  d.handleLegacyStylus,
		OnDFT:     d.handleDFT,
	}, frameParams)

	return d
}

func contactsParams(cfg *config.Config) contacts.Params {
	var neutral contacts.Neutral
	switch cfg.GetContactsNeutral() {
	case config.NeutralAverage:
		neutral = contacts.NeutralAverage
	case config.NeutralConstant:
		neutral = contacts.NeutralConstant
	default:
		neutral = contacts.NeutralMode
	}

	return contacts.Params{
		Neutral:      neutral,
		NeutralValue: cfg.GetContactsNeutralValue(),

		ActivationThreshold:   cfg.GetContactsActivationThreshold(),
		DeactivationThreshold: cfg.GetContactsDeactivationThreshold(),

		ScreenWidthMM:  cfg.GetWidth(),
		ScreenHeightMM: cfg.GetHeight(),

		SizeMinMM:           cfg.GetContactsSizeMin(),
		SizeMaxMM:           cfg.GetContactsSizeMax(),
		AspectMin:           cfg.GetContactsAspectMin(),
		AspectMax:           cfg.GetContactsAspectMax(),
		SizeThreshMM:        cfg.GetContactsSizeThresh(),
		PositionThreshMinMM: cfg.GetContactsPositionThreshMin(),
		PositionThreshMaxMM: cfg.GetContactsPositionThreshMax(),
		DistanceThreshMM:    cfg.GetContactsDistanceThresh(),

		TemporalWindow: cfg.GetContactsTemporalWindow(),
	}
}

func dftParams(cfg *config.Config) dft.Params {
	return dft.Params{
		InvertX: cfg.GetInvertX(),
		InvertY: cfg.GetInvertY(),

		ScreenWidthMM:  float64(cfg.GetWidth()),
		ScreenHeightMM: float64(cfg.GetHeight()),

		PositionMinAmp: uint64(cfg.GetDFTPositionMinAmp()),
		PositionMinMag: uint64(cfg.GetDFTPositionMinMag()),
		ButtonMinMag:   uint64(cfg.GetDFTButtonMinMag()),
		FreqMinMag:     uint64(cfg.GetDFTFreqMinMag()),
		TiltMinMag:     uint64(cfg.GetDFTTiltMinMag()),

		PositionExp: float64(cfg.GetDFTPositionExp()),

		TiltDistanceMM: float64(cfg.GetDFTTiltDistance()),
		TipDistanceMM:  float64(cfg.GetDFTTipDistance()),
	}
}

// Run executes the main loop of spec.md §5: blocking read, synchronous
// parse, flush to the output sink, repeat until ctx is cancelled (by an
// external SIGINT/SIGTERM via signal.NotifyContext, matching the
// teacher's main.go). On transient transport failure it logs, backs off
// and retries, aborting after maxConsecutiveFailures in a row. Malformed
// frames discard only the current report and are not counted as
// transport failures.
func (d *Daemon) Run(ctx context.Context) error {
	buf := make([]byte, d.facade.BufferSize())
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := d.facade.Read(buf)
		if err != nil {
			if errors.Is(err, ipterrors.ErrTransportFailure) {
				failures++
				telemetry.Logf("transport read failed (%d/%d): %v", failures, maxConsecutiveFailures, err)
				if failures >= maxConsecutiveFailures {
					return err
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(transportRetryDelay):
				}
				continue
			}
			return err
		}
		failures = 0

		if err := d.parser.Parse(buf[:n]); err != nil {
			telemetry.Logf("discarding malformed report: %v", err)
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
