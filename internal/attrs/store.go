// Package attrs holds per-entity extension data for jobs and vehicles.
//
// A Store is a small typed variant store. Its keys form a closed set declared
// in this package, so two features can never write to the same slot by
// accident. Stores are populated while a problem is built and frozen before
// search starts; a frozen store is safe for concurrent reads.
package attrs

import "fmt"

type slot uint8

const (
	slotSkills slot = iota
	slotPreferences
	slotViaOrder
	slotRequestedTime
	slotCount
)

// Store keeps at most one value per key.
type Store struct {
	vals   [slotCount]any
	frozen bool
}

// New returns an empty, writable store.
func New() *Store { return &Store{} }

// Freeze makes the store read-only. Later writes panic.
func (s *Store) Freeze() {
	if s != nil {
		s.frozen = true
	}
}

// Frozen reports whether Freeze has been called.
func (s *Store) Frozen() bool { return s != nil && s.frozen }

// Len returns the number of keys holding a value.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, v := range s.vals {
		if v != nil {
			n++
		}
	}
	return n
}

// Key addresses one typed value in a Store.
type Key[T any] struct {
	slot slot
	name string
}

func (k Key[T]) String() string { return k.name }

// Set stores v under k. The last write wins.
func (k Key[T]) Set(s *Store, v T) {
	if s.frozen {
		panic(fmt.Sprintf("attrs: write of %q to frozen store", k.name))
	}
	s.vals[k.slot] = v
}

// Get returns the value stored under k. A nil store or a missing value
// reports false.
func (k Key[T]) Get(s *Store) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	v, ok := s.vals[k.slot].(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Has reports whether a value is stored under k.
func (k Key[T]) Has(s *Store) bool {
	_, ok := k.Get(s)
	return ok
}

var (
	// Skills carries a job's hard skill requirement.
	Skills = Key[SkillSpec]{slot: slotSkills, name: "skills"}
	// Preferences carries a job's soft vehicle preferences.
	Preferences = Key[PreferenceSpec]{slot: slotPreferences, name: "preferences"}
	// ViaOrder marks a job as a via stop with the given ordinal.
	ViaOrder = Key[int]{slot: slotViaOrder, name: "viaOrder"}
	// RequestedTime is the desired arrival, in seconds from horizon start.
	RequestedTime = Key[float64]{slot: slotRequestedTime, name: "requestedTime"}
)
