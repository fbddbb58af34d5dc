// Package heatmap converts raw [zmin,zmax] capacitance bytes into
// normalized [0,1] floats, per spec.md §4.D. The device reports high
// values for *no* contact, so the sense is inverted here.
package heatmap

// Heatmap is a row-major raster of normalized capacitance values.
type Heatmap struct {
	Rows, Cols int
	Values     []float32 // len == Rows*Cols, row-major
}

// At returns the normalized value at (row, col).
func (h *Heatmap) At(row, col int) float32 {
	return h.Values[row*h.Cols+col]
}

// Normalize converts raw bytes src (row-major, Rows*Cols long) into a
// Heatmap. dst, if non-nil and of the right length, is reused to avoid
// reallocating frame-to-frame (spec.md §5's buffer reuse requirement).
//
// Output values are: 1 - (v - zmin)/(zmax - zmin), clamped to [0,1].
func Normalize(dst *Heatmap, src []uint8, rows, cols int, zmin, zmax uint8) *Heatmap {
	n := rows * cols
	if dst == nil || cap(dst.Values) < n {
		dst = &Heatmap{Values: make([]float32, n)}
	}
	dst.Rows, dst.Cols = rows, cols
	dst.Values = dst.Values[:n]

	span := float32(zmax) - float32(zmin)
	if span == 0 {
		span = 1
	}

	for i := 0; i < n; i++ {
		v := (float32(src[i]) - float32(zmin)) / span
		v = 1 - v
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		dst.Values[i] = v
	}
	return dst
}
