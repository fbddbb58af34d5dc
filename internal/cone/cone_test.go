package cone

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAliveRequiresPositionUpdate(t *testing.T) {
	c := New(30, 50)
	assert.False(t, c.Alive())

	c.UpdatePosition(10, 10, time.Now())
	assert.True(t, c.Alive())
}

func TestActiveExpiresAfter300ms(t *testing.T) {
	c := New(30, 50)
	now := time.Now()
	c.UpdatePosition(0, 0, now)

	assert.True(t, c.Active(now.Add(299*time.Millisecond)))
	assert.False(t, c.Active(now.Add(301*time.Millisecond)))
}

func TestContainsRequiresActive(t *testing.T) {
	c := New(45, 100)
	now := time.Now()
	c.UpdatePosition(0, 0, now)
	c.UpdateDirection(1, 0, now)

	assert.True(t, c.Contains(1, 0, now))
	assert.False(t, c.Contains(1, 0, now.Add(time.Second)))
}

func TestContainsRequiresWithinDistance(t *testing.T) {
	c := New(90, 10)
	now := time.Now()
	c.UpdatePosition(0, 0, now)
	c.UpdateDirection(1, 0, now)

	assert.True(t, c.Contains(5, 0, now))
	assert.False(t, c.Contains(50, 0, now))
}

func TestContainsRequiresWithinAngle(t *testing.T) {
	c := New(30, 100)
	now := time.Now()
	c.UpdatePosition(0, 0, now)
	c.UpdateDirection(1, 0, now) // direction points along +x

	assert.True(t, c.Contains(10, 0, now))   // straight ahead
	assert.False(t, c.Contains(0, 10, now))  // perpendicular, outside 30deg
	assert.False(t, c.Contains(-10, 0, now)) // directly behind
}

func TestUpdateDirectionWeightsRecentObservationsMore(t *testing.T) {
	c := New(30, 100)
	now := time.Now()
	c.UpdatePosition(0, 0, now)

	// First direction sample points along +y.
	c.UpdateDirection(0, 10, now)
	assert.InDelta(t, 0.0, c.dx, 1e-4)
	assert.InDelta(t, 1.0, c.dy, 1e-4)

	// A later sample, far enough apart that the old one decays heavily,
	// pointing along +x should swing the direction mostly toward +x.
	later := now.Add(5 * time.Second)
	c.UpdateDirection(10, 0, later)

	assert.Greater(t, c.dx, c.dy)
}

func TestUpdateDirectionProducesUnitVector(t *testing.T) {
	c := New(30, 100)
	now := time.Now()
	c.UpdatePosition(0, 0, now)
	c.UpdateDirection(3, 4, now)
	c.UpdateDirection(-2, 7, now.Add(50*time.Millisecond))

	norm := math.Hypot(c.dx, c.dy)
	assert.InDelta(t, 1.0, norm, 1e-3)
}

func TestRegistryCreatesConePerSerial(t *testing.T) {
	r := NewRegistry(30, 50)
	a := r.Get(1)
	b := r.Get(2)
	again := r.Get(1)

	assert.NotSame(t, a, b)
	assert.Same(t, a, again)
}

func TestRegistryContainsAny(t *testing.T) {
	r := NewRegistry(45, 100)
	now := time.Now()

	c := r.Get(7)
	c.UpdatePosition(0, 0, now)
	c.UpdateDirection(1, 0, now)

	assert.True(t, r.ContainsAny(5, 0, now))
	assert.False(t, r.ContainsAny(-5, 0, now))
}
