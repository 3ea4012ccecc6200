// Package transport provides travel distances and durations between
// locations. Real deployments plug in a routing matrix; Haversine is the
// great-circle fallback used when no matrix is available.
package transport

import (
	"math"

	"vrpgoal/internal/model"
)

// Transport answers travel queries. Implementations must be safe for
// concurrent use.
type Transport interface {
	// Distance in meters.
	Distance(from, to model.Location) float64
	// Duration in seconds.
	Duration(from, to model.Location) float64
}

// DefaultSpeedKph is used when a non-positive speed is configured.
const DefaultSpeedKph = 50

// Haversine travels along great circles at a constant speed.
type Haversine struct {
	SpeedKph float64
}

func NewHaversine(speedKph float64) Haversine {
	if speedKph <= 0 {
		speedKph = DefaultSpeedKph
	}
	return Haversine{SpeedKph: speedKph}
}

func (h Haversine) Distance(from, to model.Location) float64 {
	return haversine(from.Lat, from.Lng, to.Lat, to.Lng)
}

func (h Haversine) Duration(from, to model.Location) float64 {
	speed := h.SpeedKph
	if speed <= 0 {
		speed = DefaultSpeedKph
	}
	return h.Distance(from, to) / (speed / 3.6)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
