//go:build linux

// Command iptsd drives the IPTS digitizer daemon (spec.md §1). It wires
// a device backend (real hidraw, or for -replay a capture file served by
// the in-memory offline backend) into the application orchestrator and logs the resulting
// contact/stylus stream, standing in for the real uinput sink that
// spec.md's Non-goals place outside this module.
//
// IPTS is a Linux hidraw interface, so this binary (like
// internal/device's hidraw backend) only builds on Linux; the -replay
// and offline-file paths are not hardware-specific but gain nothing
// from building elsewhere since nothing downstream of this binary runs
// anywhere else.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/linux-surface/iptsd/internal/config"
	"github.com/linux-surface/iptsd/internal/contacts"
	"github.com/linux-surface/iptsd/internal/daemon"
	"github.com/linux-surface/iptsd/internal/descriptor"
	"github.com/linux-surface/iptsd/internal/device"
	"github.com/linux-surface/iptsd/internal/frame"
	"github.com/linux-surface/iptsd/internal/telemetry"
)

var (
	devicePath = flag.String("device", "/dev/hidraw0", "path to the IPTS hidraw device node")
	configPath = flag.String("config", "", "path to the daemon's .conf/.ini tuning file")
	multitouch = flag.Bool("multitouch", true, "set the device into multitouch mode on start")
	touchpad   = flag.Bool("touchpad", false, "label logged contact coordinates dx/dy instead of x/y (the values are the same absolute positions)")
	replayPath = flag.String("replay", "", "replay a captured trace (see internal/device.LoadCapture) instead of opening a real device")
)

// logSink prints the daemon's contact and stylus streams, the seam
// production code would instead wire to a Linux uinput device (out of
// this module's scope per spec.md §1).
type logSink struct {
	touchpadRelative bool
}

func (s *logSink) Contacts(cs []contacts.Contact) {
	for _, c := range cs {
		x, y := c.MeanX, c.MeanY
		if s.touchpadRelative {
			telemetry.Logf("contact[%d] dx=%.4f dy=%.4f valid=%v stable=%v", c.Index, x, y, c.Valid, c.Stable)
			continue
		}
		telemetry.Logf("contact[%d] x=%.4f y=%.4f valid=%v stable=%v", c.Index, x, y, c.Valid, c.Stable)
	}
}

func (s *logSink) Stylus(st daemon.StylusSample) {
	telemetry.Logf("stylus serial=%d proximity=%v contact=%v x=%.4f y=%.4f pressure=%.4f",
		st.Serial, st.Proximity, st.Contact, st.X, st.Y, st.Pressure)
}

func openDevice() (device.Device, error) {
	if *replayPath != "" {
		descriptorBytes, reports, err := device.LoadCapture(*replayPath)
		if err != nil {
			return nil, err
		}
		telemetry.Logf("replaying capture %s (synthetic session %08x)", *replayPath, device.SyntheticSerial())
		return device.NewOfflineDevice(descriptorBytes, reports), nil
	}
	return device.OpenHidraw(*devicePath)
}

func main() {
	flag.Parse()

	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	dev, err := openDevice()
	if err != nil {
		log.Fatalf("failed to open device: %v", err)
	}

	facade, err := device.Open(dev, descriptor.ParseRaw)
	if err != nil {
		log.Fatalf("failed to open device facade: %v", err)
	}
	defer facade.Close()

	if err := facade.SetMode(*multitouch); err != nil {
		telemetry.Logf("warning: failed to set device mode: %v", err)
	}

	d := daemon.New(facade, cfg, &logSink{touchpadRelative: *touchpad}, frame.DefaultParams())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		log.Fatalf("daemon exited: %v", err)
	}
}
