package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vrpgoal/internal/model"
)

func TestHaversineDistance(t *testing.T) {
	h := NewHaversine(0)
	assert.Equal(t, float64(DefaultSpeedKph), h.SpeedKph)

	a := model.Location{Lat: 0, Lng: 0}
	b := model.Location{Lat: 0, Lng: 1}
	// one degree of longitude on the equator is ~111.19 km
	assert.InDelta(t, 111195, h.Distance(a, b), 50)
	assert.Equal(t, 0.0, h.Distance(a, a))
	assert.InDelta(t, h.Distance(a, b), h.Distance(b, a), 1e-9)
}

func TestHaversineDuration(t *testing.T) {
	h := NewHaversine(36) // 10 m/s
	a := model.Location{Lat: 0, Lng: 0}
	b := model.Location{Lat: 0, Lng: 1}
	assert.InDelta(t, h.Distance(a, b)/10, h.Duration(a, b), 1e-6)
}
