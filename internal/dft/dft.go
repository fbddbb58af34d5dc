// Package dft estimates stylus position, tilt, pressure, and button state
// from Intel Precise Touch & Stylus antenna DFT windows (spec.md §4.F).
package dft

import "math"

// NumComponents is the number of DFT components carried per antenna row.
const NumComponents = 9

// PressureRows is the number of rows the pressure estimator interpolates
// a frequency across.
const PressureRows = 6

// centerComponent is the index interpolate_position assumes holds the
// antenna's peak amplitude before checking its neighbours for off-screen
// zeroing.
const centerComponent = NumComponents / 2

// WindowType selects which DFT window handler processes a Window.
type WindowType int

const (
	Position WindowType = iota
	Button
	Pressure
	PositionMPP2
	BinaryMPP2
)

// Row is one antenna's DFT measurement for a single axis.
type Row struct {
	First     int
	Magnitude uint64
	Real      [NumComponents]int32
	Imag      [NumComponents]int32
}

// Window is one DFT window record, covering one or more antenna rows on
// each axis (spec.md §4.F).
type Window struct {
	Type          WindowType
	Group         *uint32
	Width, Height uint8
	X, Y          []Row
}

// Params configures axis inversion and the estimator's rejection
// thresholds and screen geometry (spec.md §6 "dft_*" options).
type Params struct {
	InvertX, InvertY bool

	ScreenWidthMM, ScreenHeightMM float64

	PositionMinAmp uint64
	PositionMinMag uint64
	ButtonMinMag   uint64
	FreqMinMag     uint64
	TiltMinMag     uint64

	PositionExp float64

	TiltDistanceMM float64
	TipDistanceMM  float64
}

// Stylus is the cumulative stylus state the estimator maintains, per
// spec.md §3.
type Stylus struct {
	Proximity bool
	Contact   bool
	Button    bool
	Rubber    bool

	X, Y float64 // normalized [0,1]

	Azimuth  float64 // radians, [0, 2π)
	Altitude float64 // radians, [0, π/2]
	Pressure float64 // [0,1]
}

// Estimator is a DFT-window-driven stylus state machine (spec.md §4.F).
// It is not safe for concurrent use; the daemon feeds it one window at a
// time from the single-threaded report loop.
type Estimator struct {
	params Params
	stylus Stylus

	real, imag int64
	group      *uint32

	mpp2BinaryGroup    *uint32
	mpp2ButtonOrEraser *bool
	mpp2InContact      *bool
}

// NewEstimator creates an Estimator with the given parameters.
func NewEstimator(p Params) *Estimator {
	return &Estimator{params: p}
}

// Stylus returns the current cumulative stylus state.
func (e *Estimator) Stylus() Stylus {
	return e.stylus
}

// Input processes one DFT window, updating the estimator's stylus state.
func (e *Estimator) Input(w Window) {
	switch w.Type {
	case Position:
		e.handlePosition(w)
	case Button:
		e.handleButton(w)
	case Pressure:
		e.handlePressure(w)
	case PositionMPP2:
		e.handlePositionMPP2(w)
	case BinaryMPP2:
		e.handleBinaryMPP2(w)
	}
}

func groupEqual(a, b *uint32) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (e *Estimator) handlePosition(w Window) {
	if len(w.X) < 2 || len(w.Y) < 2 {
		e.lift()
		return
	}

	if w.X[0].Magnitude <= e.params.PositionMinMag || w.Y[0].Magnitude <= e.params.PositionMinMag {
		e.lift()
		return
	}

	width, height := w.Width, w.Height

	e.group = w.Group
	e.real = int64(w.X[0].Real[centerComponent]) + int64(w.Y[0].Real[centerComponent])
	e.imag = int64(w.X[0].Imag[centerComponent]) + int64(w.Y[0].Imag[centerComponent])

	x, okX := e.interpolatePosition(w.X[0])
	y, okY := e.interpolatePosition(w.Y[0])
	if !okX || !okY {
		e.lift()
		return
	}

	e.stylus.Proximity = true

	x /= float64(width) - 1
	y /= float64(height) - 1

	if e.params.InvertX {
		x = 1 - x
	}
	if e.params.InvertY {
		y = 1 - y
	}

	if w.X[1].Magnitude > e.params.TiltMinMag && w.Y[1].Magnitude > e.params.TiltMinMag {
		xt, okXt := e.interpolatePosition(w.X[1])
		yt, okYt := e.interpolatePosition(w.Y[1])

		if okXt && okYt {
			xt /= float64(width) - 1
			yt /= float64(height) - 1

			if e.params.InvertX {
				xt = 1 - xt
			}
			if e.params.InvertY {
				yt = 1 - yt
			}

			xt -= x
			yt -= y

			if e.params.TipDistanceMM != 0 && e.params.TiltDistanceMM != 0 {
				r := e.params.TipDistanceMM / e.params.TiltDistanceMM
				x -= xt * r
				y -= yt * r
			}

			xt *= e.params.ScreenWidthMM / e.params.TiltDistanceMM
			yt *= e.params.ScreenHeightMM / e.params.TiltDistanceMM

			e.stylus.Azimuth = math.Mod(math.Atan2(-yt, xt)+2*math.Pi, 2*math.Pi)
			e.stylus.Altitude = math.Asin(math.Min(1.0, math.Hypot(xt, yt)))
		}
	}

	e.stylus.X = clamp(x, 0, 1)
	e.stylus.Y = clamp(y, 0, 1)
}

func (e *Estimator) handleButton(w Window) {
	if len(w.X) == 0 || len(w.Y) == 0 {
		return
	}

	// The position and button signals must be from the same group,
	// otherwise the relative phase is meaningless.
	if !groupEqual(e.group, w.Group) {
		return
	}

	button := false
	rubber := false

	decide := w.X[0].Magnitude > e.params.ButtonMinMag && w.Y[0].Magnitude > e.params.ButtonMinMag
	if e.mpp2ButtonOrEraser != nil {
		decide = *e.mpp2ButtonOrEraser
	}

	if decide {
		real := int64(w.X[0].Real[centerComponent]) + int64(w.Y[0].Real[centerComponent])
		imag := int64(w.X[0].Imag[centerComponent]) + int64(w.Y[0].Imag[centerComponent])

		// Same phase as the position signal means eraser; opposite phase
		// means button.
		val := e.real*real + e.imag*imag

		button = val < 0
		rubber = val > 0
	}

	e.stylus.Button = button
	e.stylus.Rubber = rubber
}

func (e *Estimator) handlePressure(w Window) {
	if len(w.X) < PressureRows || len(w.Y) < PressureRows {
		return
	}

	// A rejected estimate (ok=false) behaves like the C++ original's
	// NaN frequency: 1-NaN is never > 0, so it falls to the MPP2-contact
	// fallback below rather than skipping the update entirely.
	freq, ok := e.interpolateFrequency(w, PressureRows)
	if ok {
		p := 1 - freq
		if p > 0 {
			e.stylus.Contact = true
			e.stylus.Pressure = clamp(p, 0, 1)
			return
		}
	}

	if e.mpp2InContact != nil {
		e.stylus.Contact = *e.mpp2InContact
	} else {
		e.stylus.Contact = false
	}
	e.stylus.Pressure = 0
}

// handleBinaryMPP2 disambiguates MPP2 button/eraser state by comparing
// the summed magnitudes of rows 4 and 5; only the first such window per
// group is consulted (spec.md §4.F "BinaryMPP2").
func (e *Estimator) handleBinaryMPP2(w Window) {
	if len(w.X) <= 5 || len(w.Y) <= 5 {
		return
	}

	if w.Group == nil || groupEqual(e.mpp2BinaryGroup, w.Group) {
		return
	}
	e.mpp2BinaryGroup = w.Group

	mag4 := w.X[4].Magnitude + w.Y[4].Magnitude
	mag5 := w.X[5].Magnitude + w.Y[5].Magnitude

	decision := mag4 < mag5
	e.mpp2ButtonOrEraser = &decision
}

// handlePositionMPP2 overrides the pressure-derived contact flag by
// comparing the summed magnitudes of rows 2 and 3 (spec.md §4.F
// "PositionMPP2").
func (e *Estimator) handlePositionMPP2(w Window) {
	e.mpp2InContact = nil

	if len(w.X) <= 3 || len(w.Y) <= 3 {
		return
	}

	mag2 := w.X[2].Magnitude + w.Y[2].Magnitude
	mag3 := w.X[3].Magnitude + w.Y[3].Magnitude

	contact := mag2 < mag3
	e.mpp2InContact = &contact
}

// interpolatePosition estimates the antenna-space position from a single
// axis's row, fitting a parabola across the three components around the
// peak amplitude (spec.md §4.F).
func (e *Estimator) interpolatePosition(row Row) (float64, bool) {
	maxi := centerComponent
	mind, maxd := -0.5, 0.5

	if row.Real[maxi-1] == 0 && row.Imag[maxi-1] == 0 {
		maxi++
		mind = -1
	} else if row.Real[maxi+1] == 0 && row.Imag[maxi+1] == 0 {
		maxi--
		maxd = 1
	}

	amp := math.Hypot(float64(row.Real[maxi]), float64(row.Imag[maxi]))
	if amp < float64(e.params.PositionMinAmp) {
		return 0, false
	}

	sin := float64(row.Real[maxi]) / amp
	cos := float64(row.Imag[maxi]) / amp

	x := [3]float64{
		sin*float64(row.Real[maxi-1]) + cos*float64(row.Imag[maxi-1]),
		amp,
		sin*float64(row.Real[maxi+1]) + cos*float64(row.Imag[maxi+1]),
	}
	for i := range x {
		x[i] = math.Pow(x[i], e.params.PositionExp)
	}

	if x[0]+x[2] > 2*x[1] {
		return 0, false
	}

	d := (x[0] - x[2]) / (2 * (x[0] - 2*x[1] + x[2]))
	if math.IsNaN(d) {
		return 0, false
	}

	return float64(row.First+maxi) + clamp(d, mind, maxd), true
}

// interpolateFrequency locates the row of maximum combined magnitude
// across the first rows rows and applies Eric Jacobsen's modified
// quadratic estimator to the three rows centered on it (spec.md §4.F
// "Pressure").
func (e *Estimator) interpolateFrequency(w Window, rows int) (float64, bool) {
	if rows < 3 {
		return 0, false
	}

	maxi := 0
	var maxm uint64
	for i := 0; i < rows; i++ {
		m := w.X[i].Magnitude + w.Y[i].Magnitude
		if m > maxm {
			maxm = m
			maxi = i
		}
	}

	if maxm < 2*e.params.FreqMinMag {
		return 0, false
	}

	mind, maxd := -0.5, 0.5
	if maxi < 1 {
		maxi = 1
		mind = -1
	} else if maxi > rows-2 {
		maxi = rows - 2
		maxd = 1
	}

	var real, imag [3]int64
	for i := 0; i < 3; i++ {
		x := w.X[maxi+i-1]
		y := w.Y[maxi+i-1]
		for j := 0; j < NumComponents; j++ {
			real[i] += int64(x.Real[j]) + int64(y.Real[j])
			imag[i] += int64(x.Imag[j]) + int64(y.Imag[j])
		}
	}

	ra := real[0] - real[2]
	rb := 2*real[1] - real[0] - real[2]
	ia := imag[0] - imag[2]
	ib := 2*imag[1] - imag[0] - imag[2]

	denom := float64(rb*rb + ib*ib)
	if denom == 0 {
		return 0, false
	}
	d := float64(ra*rb+ia*ib) / denom

	return (float64(maxi) + clamp(d, mind, maxd)) / float64(rows-1), true
}

// lift marks the stylus as no longer in proximity, zeroing its pressure
// and clearing the state any MPP2 overrides depend on (spec.md §4.F
// "Lift").
func (e *Estimator) lift() {
	e.stylus.Proximity = false
	e.stylus.Contact = false
	e.stylus.Button = false
	e.stylus.Rubber = false
	e.stylus.Pressure = 0

	e.mpp2InContact = nil
	e.mpp2ButtonOrEraser = nil
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
