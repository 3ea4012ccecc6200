package solution

import "fmt"

type stateSlot uint8

const (
	slotPreferencePenalty stateSlot = iota
	slotViaInversions
	slotSkippedVia
	slotUnassignedPenalty
	slotLoad
	slotDistance
	slotDuration
	slotSchedule
	slotRequestedTimePenalty
	stateSlotCount
)

type phase uint8

const (
	phaseStale phase = iota
	phaseRefreshing
	phaseFresh
)

// State caches feature-computed aggregates for one route or one solution.
//
// It follows a two-phase protocol: any mutation of the owner calls
// Invalidate, and the goal rebuilds the cache between Begin and Commit
// before anyone reads it again. Reading a stale cache is a programming error
// and panics.
type State struct {
	vals  [stateSlotCount]any
	phase phase
}

// Invalidate drops every cached value.
func (s *State) Invalidate() {
	s.vals = [stateSlotCount]any{}
	s.phase = phaseStale
}

// Begin starts a refresh. Values from the previous refresh are discarded,
// never merged.
func (s *State) Begin() {
	s.vals = [stateSlotCount]any{}
	s.phase = phaseRefreshing
}

// Commit ends a refresh and makes the values readable.
func (s *State) Commit() { s.phase = phaseFresh }

// Fresh reports whether the cache reflects the owner's current content.
func (s *State) Fresh() bool { return s.phase == phaseFresh }

// StateKey addresses one typed aggregate.
type StateKey[T any] struct {
	slot stateSlot
	name string
}

func (k StateKey[T]) String() string { return k.name }

// Set may only be called while a refresh is in progress.
func (k StateKey[T]) Set(s *State, v T) {
	if s.phase != phaseRefreshing {
		panic(fmt.Sprintf("solution: state %q written outside refresh", k.name))
	}
	s.vals[k.slot] = v
}

// Get returns the cached value. ok is false when no feature produced it.
func (k StateKey[T]) Get(s *State) (v T, ok bool) {
	if s.phase == phaseStale {
		panic(fmt.Sprintf("solution: state %q read while stale", k.name))
	}
	v, ok = s.vals[k.slot].(T)
	return v, ok
}

// Value is Get without the presence flag.
func (k StateKey[T]) Value(s *State) T {
	v, _ := k.Get(s)
	return v
}

var (
	PreferencePenalty    = StateKey[float64]{slot: slotPreferencePenalty, name: "preferencePenalty"}
	ViaInversions        = StateKey[int]{slot: slotViaInversions, name: "viaInversions"}
	SkippedVia           = StateKey[int]{slot: slotSkippedVia, name: "skippedVia"}
	UnassignedPenalty    = StateKey[float64]{slot: slotUnassignedPenalty, name: "unassignedPenalty"}
	Load                 = StateKey[[]float64]{slot: slotLoad, name: "load"}
	Distance             = StateKey[float64]{slot: slotDistance, name: "distance"}
	Duration             = StateKey[float64]{slot: slotDuration, name: "duration"}
	RouteSchedule        = StateKey[Schedule]{slot: slotSchedule, name: "schedule"}
	RequestedTimePenalty = StateKey[float64]{slot: slotRequestedTimePenalty, name: "requestedTimePenalty"}
)

// Visit is the computed timing of one stop.
type Visit struct {
	Arrival   float64
	Departure float64
}

// Schedule holds one Visit per job on a route plus the arrival back at the
// end depot (or the last departure when the vehicle has no end).
type Schedule struct {
	Visits []Visit
	End    float64
}
