package cone

import "time"

// Registry hands out one Cone per live stylus serial, creating it on
// first use (spec.md §4.H: "a collection of rejection_cone objects, one
// per live stylus serial").
type Registry struct {
	angleDegrees float64
	distance     float64
	cones        map[uint32]*Cone
}

// NewRegistry creates a Registry that constructs new cones with the
// given apex half-angle and reach.
func NewRegistry(angleDegrees, distance float64) *Registry {
	return &Registry{
		angleDegrees: angleDegrees,
		distance:     distance,
		cones:        make(map[uint32]*Cone),
	}
}

// Get returns the Cone for serial, creating one if this is the first
// time this serial has been seen.
func (r *Registry) Get(serial uint32) *Cone {
	c, ok := r.cones[serial]
	if !ok {
		c = New(r.angleDegrees, r.distance)
		r.cones[serial] = c
	}
	return c
}

// ContainsAny reports whether (x,y) lies within any registered cone
// that is currently active (spec.md §4.H: touch contacts whose centre
// lies in any active cone are suppressed).
func (r *Registry) ContainsAny(x, y float64, now time.Time) bool {
	for _, c := range r.cones {
		if c.Contains(x, y, now) {
			return true
		}
	}
	return false
}
