package daemon

import (
	"time"

	"github.com/linux-surface/iptsd/internal/cone"
	"github.com/linux-surface/iptsd/internal/contacts"
	"github.com/linux-surface/iptsd/internal/dft"
	"github.com/linux-surface/iptsd/internal/frame"
	"github.com/linux-surface/iptsd/internal/heatmap"
)

// handleHeatmap implements spec.md §4.H step 2: normalize → detect/track
// → axis inversion → cone suppression/training → forward.
func (d *Daemon) handleHeatmap(s frame.HeatmapSample) {
	if d.cfg.GetTouchDisable() {
		return
	}

	d.hm = heatmap.Normalize(d.hm, s.Data, s.Rows, s.Cols, s.ZMin, s.ZMax)
	cs := d.tracker.Process(d.hm)

	if d.cfg.GetInvertX() || d.cfg.GetInvertY() {
		for i := range cs {
			if d.cfg.GetInvertX() {
				cs[i].MeanX = 1 - cs[i].MeanX
			}
			if d.cfg.GetInvertY() {
				cs[i].MeanY = 1 - cs[i].MeanY
			}
		}
	}

	cs = d.applyCones(cs)

	if d.cfg.GetTouchDisableOnPalm() {
		cs = filterContacts(cs, func(c contacts.Contact) bool { return c.Valid })
	}
	if d.cfg.GetTouchCheckStability() {
		cs = filterContacts(cs, func(c contacts.Contact) bool { return c.Stable })
	}

	if d.touchGatedByStylus() {
		return
	}

	if d.sink != nil {
		d.sink.Contacts(cs)
	}
}

// applyCones implements the cone step of spec.md §4.H step 2: a palm
// (invalid contact) lying outside every active cone trains that cone's
// direction (the anatomical assumption that a palm lies away from the
// stylus tip); any contact lying inside an active cone is suppressed
// from the output. Disabled entirely by touch_check_cone=false.
//
// Which cone an outside-all-cones palm trains is not specified by
// spec.md beyond "the cone's direction" (singular) — IPTS hardware
// supports at most one active stylus at a time, so this trains the
// currently active stylus's cone, identified by the most recently seen
// stylus serial (see Daemon.lastSerial).
func (d *Daemon) applyCones(cs []contacts.Contact) []contacts.Contact {
	if !d.cfg.GetTouchCheckCone() {
		return cs
	}

	now := time.Now()
	width, height := float64(d.cfg.GetWidth()), float64(d.cfg.GetHeight())

	out := cs[:0]
	for _, c := range cs {
		xmm, ymm := float64(c.MeanX)*width, float64(c.MeanY)*height

		if !c.Valid && !d.cones.ContainsAny(xmm, ymm, now) {
			if active := d.activeStylusCone(now); active != nil {
				active.UpdateDirection(xmm, ymm, now)
			}
		}

		if d.cones.ContainsAny(xmm, ymm, now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (d *Daemon) activeStylusCone(now time.Time) *cone.Cone {
	if !d.haveSerial {
		return nil
	}
	c := d.cones.Get(d.lastSerial)
	if !c.Active(now) {
		return nil
	}
	return c
}

func filterContacts(cs []contacts.Contact, keep func(contacts.Contact) bool) []contacts.Contact {
	out := cs[:0]
	for _, c := range cs {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// handleDFT implements spec.md §4.H step 3: feed the estimator, then
// republish the resulting cumulative stylus state.
func (d *Daemon) handleDFT(w dft.Window) {
	if d.cfg.GetStylusDisable() {
		return
	}

	d.estimator.Input(w)
	st := d.estimator.Stylus()

	d.publishStylus(StylusSample{
		Serial:    d.lastSerial,
		Proximity: st.Proximity,
		Contact:   st.Contact,
		Button:    st.Button,
		Rubber:    st.Rubber,
		X:         st.X,
		Y:         st.Y,
		Pressure:  st.Pressure,
		Altitude:  st.Altitude,
		Azimuth:   st.Azimuth,
	})
}

// handleLegacyStylus implements spec.md §4.H step 4. The tilt offset
// correction spec.md references (§4.F-tilt) is the raw/18000*π
// conversion frame.decodeStylusV2 already applies at decode time — the
// same conversion original_source/IPTSDaemon/daemon/stylus.cpp's
// get_tilt performs before its own (out-of-scope) HID tilt-offset
// encoding — so there is no further correction to apply here beyond
// republishing through the stylus pipeline.
func (d *Daemon) handleLegacyStylus(s frame.LegacyStylusSample) {
	if d.cfg.GetStylusDisable() {
		return
	}

	if s.Serial != 0 {
		d.lastSerial = s.Serial
		d.haveSerial = true
	}

	d.publishStylus(StylusSample{
		Serial:    s.Serial,
		Proximity: s.Proximity,
		Contact:   s.Contact,
		Button:    s.Button,
		Rubber:    s.Rubber,
		X:         s.X,
		Y:         s.Y,
		Pressure:  s.Pressure,
		Altitude:  s.Altitude,
		Azimuth:   s.Azimuth,
		Timestamp: s.Timestamp,
	})
}

// publishStylus implements spec.md §4.H step 5: update the stylus's
// cone position while proximate, apply global axis inversion, forward.
func (d *Daemon) publishStylus(s StylusSample) {
	width, height := float64(d.cfg.GetWidth()), float64(d.cfg.GetHeight())

	if s.Proximity {
		d.cones.Get(s.Serial).UpdatePosition(s.X*width, s.Y*height, time.Now())
	}
	d.stylusActive[s.Serial] = s.Proximity

	if d.cfg.GetInvertX() {
		s.X = 1 - s.X
	}
	if d.cfg.GetInvertY() {
		s.Y = 1 - s.Y
	}

	if d.sink != nil {
		d.sink.Stylus(s)
	}
}

// touchGatedByStylus implements spec.md §4.H's touch_disable_on_stylus
// rule: touch output is gated off while any stylus is proximate.
func (d *Daemon) touchGatedByStylus() bool {
	if !d.cfg.GetTouchDisableOnStylus() {
		return false
	}
	for _, proximate := range d.stylusActive {
		if proximate {
			return true
		}
	}
	return false
}
