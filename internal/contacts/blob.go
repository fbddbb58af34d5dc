package contacts

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/linux-surface/iptsd/internal/heatmap"
)

// blob is a frame-local detection before tracking identities are assigned.
type blob struct {
	meanX, meanY float32 // normalized [0,1]
	major, minor float32 // normalized [0,1]
	orientation  float32 // normalized [0,1)
	valid        bool
	weight       float32 // integrated intensity, for ranking
}

type cell struct {
	y, x int
}

// detect runs neutral estimation, thresholded-maxima peak search,
// 4-connected component growth and gaussian fit over h, returning at
// most MaxContacts blobs ordered by descending integrated weight
// (spec.md §4.E steps 1-5).
func detect(h *heatmap.Heatmap, p Params) []blob {
	rows, cols := h.Rows, h.Cols
	if rows == 0 || cols == 0 {
		return nil
	}

	base := neutral(h.Values, p)
	activation := base + p.ActivationThreshold
	deactivation := base + p.DeactivationThreshold

	peaks := findPeaks(h, activation)
	if len(peaks) == 0 {
		return nil
	}

	owner := growComponents(h, peaks, deactivation)
	blobs := make([]blob, 0, len(peaks))
	for id := range peaks {
		b, ok := fitGaussian(h, owner, id, p)
		if ok {
			blobs = append(blobs, b)
		}
	}

	sort.SliceStable(blobs, func(i, j int) bool { return blobs[i].weight > blobs[j].weight })
	if len(blobs) > MaxContacts {
		blobs = blobs[:MaxContacts]
	}
	return blobs
}

// findPeaks walks the grid; a cell is a candidate peak iff its value is
// >= all 8 neighbours (ties broken lexicographically by (y,x), i.e. the
// first cell found in row-major scan order wins) and >= activation.
func findPeaks(h *heatmap.Heatmap, activation float32) []cell {
	rows, cols := h.Rows, h.Cols
	var peaks []cell

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := h.At(y, x)
			if v < activation {
				continue
			}
			if isLocalMax(h, y, x, v) {
				peaks = append(peaks, cell{y, x})
			}
		}
	}
	return peaks
}

func isLocalMax(h *heatmap.Heatmap, y, x int, v float32) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dy == 0 && dx == 0 {
				continue
			}
			ny, nx := y+dy, x+dx
			if ny < 0 || ny >= h.Rows || nx < 0 || nx >= h.Cols {
				continue
			}
			nv := h.At(ny, nx)
			if nv > v {
				return false
			}
			// Tie-break: a neighbour with an equal value that sorts before
			// (y,x) in row-major order already claimed this basin.
			if nv == v && (ny < y || (ny == y && nx < x)) {
				return false
			}
		}
	}
	return true
}

// growComponents floods each peak outward over 4-connected neighbours
// while values stay >= deactivation and do not exceed the owning peak's
// own value (so growth cannot cross into a neighbouring peak's rising
// slope). Cells equidistant (in BFS steps, approximating Euclidean
// nearness) from two peaks are claimed by whichever peak's flood front
// reaches them first. Returns, for every cell, the index into peaks
// owning it, or -1 if unclaimed.
func growComponents(h *heatmap.Heatmap, peaks []cell, deactivation float32) []int {
	rows, cols := h.Rows, h.Cols
	owner := make([]int, rows*cols)
	for i := range owner {
		owner[i] = -1
	}

	type queued struct {
		cell
		peak int
	}
	var queue []queued
	for id, p := range peaks {
		idx := p.y*cols + p.x
		if owner[idx] == -1 {
			owner[idx] = id
			queue = append(queue, queued{p, id})
		}
	}

	peakVal := func(id int) float32 { return h.At(peaks[id].y, peaks[id].x) }

	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		dirs := [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
		for _, d := range dirs {
			ny, nx := cur.y+d[0], cur.x+d[1]
			if ny < 0 || ny >= rows || nx < 0 || nx >= cols {
				continue
			}
			nidx := ny*cols + nx
			if owner[nidx] != -1 {
				continue
			}
			nv := h.At(ny, nx)
			if nv < deactivation || nv > peakVal(cur.peak) {
				continue
			}
			owner[nidx] = cur.peak
			queue = append(queue, queued{cell{ny, nx}, cur.peak})
		}
	}

	return owner
}

// fitGaussian computes the intensity-weighted centroid and covariance of
// the component owned by id, eigen-decomposing the covariance to yield
// principal axes and orientation (spec.md §4.E step 4) and converting to
// screen-relative units (step 5).
func fitGaussian(h *heatmap.Heatmap, owner []int, id int, p Params) (blob, bool) {
	rows, cols := h.Rows, h.Cols

	var sumW, sumX, sumY float64
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if owner[y*cols+x] != id {
				continue
			}
			w := float64(h.At(y, x))
			sumW += w
			sumX += w * float64(x)
			sumY += w * float64(y)
		}
	}
	if sumW <= 0 {
		return blob{}, false
	}

	muX := sumX / sumW
	muY := sumY / sumW

	var sxx, syy, sxy float64
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if owner[y*cols+x] != id {
				continue
			}
			w := float64(h.At(y, x))
			dx := float64(x) - muX
			dy := float64(y) - muY
			sxx += w * dx * dx
			syy += w * dy * dy
			sxy += w * dx * dy
		}
	}
	sxx /= sumW
	syy /= sumW
	sxy /= sumW

	sym := mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy})
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return blob{}, false
	}
	values := eig.Values(nil) // ascending
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// values[1] is the larger eigenvalue (major axis), values[0] the minor.
	majorVar, minorVar := values[1], values[0]
	if majorVar < 0 {
		majorVar = 0
	}
	if minorVar < 0 {
		minorVar = 0
	}
	majorCells := math.Sqrt(majorVar)
	minorCells := math.Sqrt(minorVar)

	vx, vy := vectors.At(0, 1), vectors.At(1, 1)
	angle := math.Atan2(vy, vx)
	for angle < 0 {
		angle += math.Pi
	}
	for angle >= math.Pi {
		angle -= math.Pi
	}
	orientation := float32(angle / math.Pi)

	diag := p.diagonalMM()
	cellW := p.ScreenWidthMM / float32(maxInt(cols-1, 1))
	cellH := p.ScreenHeightMM / float32(maxInt(rows-1, 1))
	cellSizeMM := (cellW + cellH) / 2

	major := float32(majorCells) * cellSizeMM / diag
	minor := float32(minorCells) * cellSizeMM / diag
	if minor > major {
		major, minor = minor, major
	}

	b := blob{
		meanX:       float32(muX) / float32(maxInt(cols-1, 1)),
		meanY:       float32(muY) / float32(maxInt(rows-1, 1)),
		major:       major,
		minor:       minor,
		orientation: orientation,
		weight:      float32(sumW),
	}
	b.valid = classifyValidity(b, p)
	return b, true
}

func classifyValidity(b blob, p Params) bool {
	sizeMin := p.SizeMinMM / p.diagonalMM()
	sizeMax := p.SizeMaxMM / p.diagonalMM()
	if b.major < sizeMin || b.major > sizeMax {
		return false
	}
	if b.minor <= 0 {
		return true // degenerate (perfectly round point); aspect undefined, treat as valid
	}
	aspect := b.major / b.minor
	if aspect < p.AspectMin || aspect > p.AspectMax {
		return false
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
