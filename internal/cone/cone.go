// Package cone implements the per-stylus rejection cone: a directional,
// time-decaying spatial filter that suppresses touch contacts near an
// active stylus's palm side (spec.md §4.G).
package cone

import (
	"math"
	"time"
)

// activeWindow is how long a cone stays active after its last position
// update.
const activeWindow = 300 * time.Millisecond

// epsilon avoids division by zero when a point coincides with the
// cone's anchor.
const epsilon = 1e-6

// Cone tracks one stylus's anchor position and the direction palm
// contacts tend to approach from, decaying older direction samples
// exponentially in favor of newer ones.
type Cone struct {
	positionUpdate  time.Time
	directionUpdate time.Time

	x, y   float64
	dx, dy float64

	cosAngle float64
	distance float64
}

// New creates a Cone with the given apex half-angle (degrees) and reach
// (physical units, matching whatever unit update_position/contains use —
// the daemon passes millimeters).
func New(angleDegrees, distance float64) *Cone {
	return &Cone{
		cosAngle: math.Cos(angleDegrees * math.Pi / 180),
		distance: distance,
	}
}

// Alive reports whether the cone has ever seen a position update.
func (c *Cone) Alive() bool {
	return !c.positionUpdate.IsZero()
}

// Active reports whether the cone's last position update was within the
// last 300ms.
func (c *Cone) Active(now time.Time) bool {
	return c.Alive() && now.Sub(c.positionUpdate) <= activeWindow
}

// UpdatePosition sets the cone's anchor to (x,y), physical units.
func (c *Cone) UpdatePosition(x, y float64, now time.Time) {
	c.x, c.y = x, y
	c.positionUpdate = now
}

// UpdateDirection folds a new observed direction (from the anchor
// towards (x,y)) into the cone's running direction estimate, weighting
// older samples by 2^(-Δt) where Δt is seconds since the last direction
// update.
func (c *Cone) UpdateDirection(x, y float64, now time.Time) {
	var weight float64 = 1
	if !c.directionUpdate.IsZero() {
		dt := now.Sub(c.directionUpdate).Seconds()
		weight = math.Exp2(-dt)
	}

	dist := math.Hypot(c.x-x, c.y-y)
	ux := (x - c.x) / (dist + epsilon)
	uy := (y - c.y) / (dist + epsilon)

	c.dx = weight*c.dx + ux
	c.dy = weight*c.dy + uy

	norm := math.Hypot(c.dx, c.dy) + epsilon
	c.dx /= norm
	c.dy /= norm

	c.directionUpdate = now
}

// Contains reports whether (x,y) lies within the cone's active reach:
// active, within distance, and within the apex half-angle of the
// direction vector.
func (c *Cone) Contains(x, y float64, now time.Time) bool {
	if !c.Active(now) {
		return false
	}

	dx := x - c.x
	dy := y - c.y
	dist := math.Hypot(dx, dy)

	if dist > c.distance {
		return false
	}

	return dx*c.dx+dy*c.dy >= c.cosAngle*dist
}
