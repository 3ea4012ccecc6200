package model

import (
	"fmt"
	"strings"

	"vrpgoal/internal/attrs"
)

// Core domain types for jobs, vehicles and sequence locks

type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// TimeWindow bounds are seconds from the planning horizon start.
type TimeWindow struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

func (tw TimeWindow) Contains(t float64) bool { return t >= tw.Start && t <= tw.End }

// Job is a unit of work the search places on a route.
type Job struct {
	ID         string
	Demand     []float64 // one entry per capacity dimension
	Location   Location
	TimeWindow *TimeWindow
	ServiceSec float64
	Attrs      *attrs.Store
}

// Vehicle serves one route.
type Vehicle struct {
	ID string
	// Capacity per dimension; dimensions beyond its length are unconstrained.
	Capacity []float64
	// CapacityConfigs lists alternative layouts (e.g. seats folded for a
	// wheelchair). A load fits when it fits Capacity or any configuration.
	CapacityConfigs [][]float64
	Start           *Location
	End             *Location
	Shift           *TimeWindow
	// Tokens is the shared skill/attribute set used by both hard skill
	// matching and soft preferences.
	Tokens attrs.Tokens
	Attrs  *attrs.Store
}

// Fits reports whether load respects at least one capacity layout.
func (v *Vehicle) Fits(load []float64) bool {
	if len(v.Capacity) == 0 && len(v.CapacityConfigs) == 0 {
		return true
	}
	if len(v.Capacity) > 0 && fitsLayout(v.Capacity, load) {
		return true
	}
	for _, c := range v.CapacityConfigs {
		if fitsLayout(c, load) {
			return true
		}
	}
	return false
}

func fitsLayout(capacity, load []float64) bool {
	for i, c := range capacity {
		if i < len(load) && load[i] > c {
			return false
		}
	}
	return true
}

// LockPosition anchors a sequence lock to the route's ends.
type LockPosition int

const (
	LockAny LockPosition = iota
	LockDeparture
	LockArrival
	LockFixed
)

func (p LockPosition) String() string {
	switch p {
	case LockDeparture:
		return "departure"
	case LockArrival:
		return "arrival"
	case LockFixed:
		return "fixed"
	default:
		return "any"
	}
}

func ParseLockPosition(s string) (LockPosition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return LockAny, nil
	case "departure":
		return LockDeparture, nil
	case "arrival":
		return LockArrival, nil
	case "fixed":
		return LockFixed, nil
	}
	return LockAny, fmt.Errorf("invalid lock position: %s", s)
}

// SequenceLock fixes the relative order of JobIDs on one vehicle. A strict
// lock also forbids other jobs between its first and last stop.
type SequenceLock struct {
	VehicleID string       `json:"vehicleId" yaml:"vehicleId"`
	JobIDs    []string     `json:"jobs" yaml:"jobs"`
	Strict    bool         `json:"strict,omitempty" yaml:"strict,omitempty"`
	Position  LockPosition `json:"-" yaml:"-"`
}
