package contacts

import (
	"math"

	"github.com/linux-surface/iptsd/internal/heatmap"
)

// sample is one frame's worth of history kept per track, for stability
// classification.
type sample struct {
	x, y  float32
	major float32
}

// track is a persistent identity bound to a sequence of frame-local
// blobs across time (spec.md §4.E "Tracking").
type track struct {
	index int

	lastX, lastY float32
	lastMajor    float32

	frameCount int      // total frames this track has been matched, uncapped
	history    []sample // ring buffer, most recent last, capped at historyCap
}

// historyCap is how many samples a track retains. It is at least 2 even
// when the configured window is 1, so a single-sample track never has
// enough history to pass the stability checks vacuously.
func historyCap(w int) int {
	if w < 2 {
		return 2
	}
	return w
}

// Tracker finds and tracks contacts across frames. It owns per-track
// history buffers, kept frame-to-frame per spec.md §5; detection
// allocates its working buffers afresh for each frame.
type Tracker struct {
	params Params
	tracks map[int]*track
	frame  int
}

// NewTracker creates a Tracker with the given parameters.
func NewTracker(p Params) *Tracker {
	return &Tracker{params: p, tracks: make(map[int]*track)}
}

// Process detects and tracks one already-normalized heatmap frame, returning
// the Contact set for that frame. Contact indices within the returned
// slice are pairwise distinct (spec.md §8 property 3) and persist
// across frames for the same physical contact (property 2).
func (t *Tracker) Process(h *heatmap.Heatmap) []Contact {
	t.frame++
	blobs := detect(h, t.params)
	return t.assign(blobs)
}

// assign performs greedy nearest-neighbour cost-matrix assignment
// between existing tracks and this frame's blobs (spec.md §4.E
// "Tracking"): repeatedly pick the minimum-cost unmatched pair within
// distance_threshold; unassigned blobs become new tracks with the
// lowest free index; unassigned tracks are retired immediately (no
// grace period).
func (t *Tracker) assign(blobs []blob) []Contact {
	distThresh := t.params.DistanceThreshMM / t.params.diagonalMM()

	type pair struct {
		trackID int
		blobIdx int
		cost    float32
	}

	trackIDs := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		trackIDs = append(trackIDs, id)
	}

	var candidates []pair
	for _, id := range trackIDs {
		tr := t.tracks[id]
		for bi, b := range blobs {
			cost := dist(tr.lastX, tr.lastY, b.meanX, b.meanY)
			if cost <= distThresh {
				candidates = append(candidates, pair{id, bi, cost})
			}
		}
	}

	matchedTrack := make(map[int]bool, len(trackIDs))
	matchedBlob := make(map[int]bool, len(blobs))
	assignment := make(map[int]int) // blobIdx -> trackID

	for {
		best := -1
		for i, c := range candidates {
			if matchedTrack[c.trackID] || matchedBlob[c.blobIdx] {
				continue
			}
			if best == -1 || c.cost < candidates[best].cost {
				best = i
			}
		}
		if best == -1 {
			break
		}
		c := candidates[best]
		matchedTrack[c.trackID] = true
		matchedBlob[c.blobIdx] = true
		assignment[c.blobIdx] = c.trackID
	}

	// Retire unmatched tracks (one missed frame ends a track).
	for _, id := range trackIDs {
		if !matchedTrack[id] {
			delete(t.tracks, id)
		}
	}

	// Allocate fresh indices for unmatched blobs, lowest free id first.
	used := make(map[int]bool, len(t.tracks)+len(blobs))
	for id := range t.tracks {
		used[id] = true
	}
	nextFree := func() int {
		for i := 0; ; i++ {
			if !used[i] {
				used[i] = true
				return i
			}
		}
	}

	contacts := make([]Contact, len(blobs))
	for bi, b := range blobs {
		id, ok := assignment[bi]
		if !ok {
			id = nextFree()
			t.tracks[id] = &track{index: id}
		}
		tr := t.tracks[id]
		tr.lastX, tr.lastY = b.meanX, b.meanY
		tr.lastMajor = b.major
		tr.frameCount++
		cap := historyCap(t.params.TemporalWindow)
		tr.history = append(tr.history, sample{b.meanX, b.meanY, b.major})
		if len(tr.history) > cap {
			tr.history = tr.history[len(tr.history)-cap:]
		}

		contacts[bi] = Contact{
			Index:            id,
			MeanX:            b.meanX,
			MeanY:            b.meanY,
			Major:            b.major,
			Minor:            b.minor,
			Orientation:      b.orientation,
			Valid:            b.valid,
			Stable:           classifyStability(tr, t.params),
			integratedWeight: b.weight,
		}
	}

	return contacts
}

// classifyStability reports stable=true iff the track has been observed
// for at least W frames (and at least 2, so a W=1 configuration can
// never call a contact stable on its very first frame — spec.md §9's
// W=1 resolution), the min-to-max range of major is within size_thresh,
// and the path length of mean position across the retained history is
// within position_thresh_max (with per-step displacement below
// position_thresh_min treated as jitter and excluded from the path
// length sum) — spec.md §4.E "Stability".
func classifyStability(tr *track, p Params) bool {
	w := p.TemporalWindow
	required := w
	if required < 2 {
		required = 2
	}
	if w <= 0 || tr.frameCount < required {
		return false
	}

	diag := p.diagonalMM()
	sizeThresh := p.SizeThreshMM / diag
	posThreshMin := p.PositionThreshMinMM / diag
	posThreshMax := p.PositionThreshMaxMM / diag

	minMajor, maxMajor := tr.history[0].major, tr.history[0].major
	for _, s := range tr.history {
		if s.major < minMajor {
			minMajor = s.major
		}
		if s.major > maxMajor {
			maxMajor = s.major
		}
	}
	if maxMajor-minMajor > sizeThresh {
		return false
	}

	var pathLen float32
	for i := 1; i < len(tr.history); i++ {
		d := dist(tr.history[i-1].x, tr.history[i-1].y, tr.history[i].x, tr.history[i].y)
		if d >= posThreshMin {
			pathLen += d
		}
	}

	return pathLen <= posThreshMax
}

func dist(x1, y1, x2, y2 float32) float32 {
	dx := float64(x2 - x1)
	dy := float64(y2 - y1)
	return float32(math.Hypot(dx, dy))
}
