// Package solution holds routes, candidate moves and the state caches the
// goal maintains for them.
package solution

import (
	"errors"
	"fmt"
	"sync"

	"vrpgoal/internal/model"
)

var (
	ErrInvalidMove = errors.New("invalid move")
	ErrNotFound    = errors.New("not found")
)

// Solution is the set of routes plus the jobs not yet placed.
type Solution struct {
	Routes []*Route
	State  *State

	stateMu    sync.Mutex // guards State; taken after route locks, never with mu
	mu         sync.Mutex
	jobs       map[string]*model.Job
	unassigned []*model.Job
	owner      map[string]*Route // job id -> route
}

// New creates one empty route per vehicle and leaves every job unassigned.
// Job IDs must be unique.
func New(vehicles []*model.Vehicle, jobs []*model.Job) (*Solution, error) {
	s := &Solution{
		State: &State{},
		jobs:  make(map[string]*model.Job, len(jobs)),
		owner: make(map[string]*Route, len(jobs)),
	}
	seen := map[string]bool{}
	for _, v := range vehicles {
		if seen[v.ID] {
			return nil, fmt.Errorf("duplicate vehicle id: %s", v.ID)
		}
		seen[v.ID] = true
		s.Routes = append(s.Routes, NewRoute(v))
	}
	for _, j := range jobs {
		if _, dup := s.jobs[j.ID]; dup {
			return nil, fmt.Errorf("duplicate job id: %s", j.ID)
		}
		s.jobs[j.ID] = j
		s.unassigned = append(s.unassigned, j)
	}
	return s, nil
}

// Job looks a job up by ID.
func (s *Solution) Job(id string) (*model.Job, bool) {
	j, ok := s.jobs[id]
	return j, ok
}

// JobCount is the number of jobs in the problem.
func (s *Solution) JobCount() int { return len(s.jobs) }

// Unassigned returns a copy of the unplaced jobs in their original order.
func (s *Solution) Unassigned() []*model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Job(nil), s.unassigned...)
}

// RouteOf returns the route currently holding jobID, or nil.
func (s *Solution) RouteOf(jobID string) *Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner[jobID]
}

// RouteByVehicle returns the route served by vehicleID, or nil.
func (s *Solution) RouteByVehicle(vehicleID string) *Route {
	for _, r := range s.Routes {
		if r.Vehicle.ID == vehicleID {
			return r
		}
	}
	return nil
}

// Apply commits the move to the route. The caller must hold the route's
// exclusive section. Route and solution state are invalidated.
func (s *Solution) Apply(m Move) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	idx := -1
	for i, j := range s.unassigned {
		if j.ID == m.Job.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s is not unassigned", ErrInvalidMove, m.Job.ID)
	}
	s.unassigned = append(s.unassigned[:idx], s.unassigned[idx+1:]...)
	s.owner[m.Job.ID] = m.Route
	s.mu.Unlock()

	m.Route.insert(m.Job, m.Position)
	s.invalidate()
	return nil
}

// Remove takes jobID off its route and returns the route it left.
func (s *Solution) Remove(jobID string) (*Route, error) {
	s.mu.Lock()
	r := s.owner[jobID]
	if r == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is not on a route", ErrNotFound, jobID)
	}
	delete(s.owner, jobID)
	s.unassigned = append(s.unassigned, s.jobs[jobID])
	s.mu.Unlock()

	r.remove(r.IndexOf(jobID))
	s.invalidate()
	return r, nil
}

func (s *Solution) invalidate() {
	s.stateMu.Lock()
	s.State.Invalidate()
	s.stateMu.Unlock()
}

// LockState enters the solution's exclusive section: every route in index
// order, then the solution state. Hold it while rebuilding or reading
// solution state that other goroutines may be committing into. Callers must
// not hold any route lock.
func (s *Solution) LockState() {
	for _, r := range s.Routes {
		r.Lock()
	}
	s.stateMu.Lock()
}

// UnlockState leaves the section entered by LockState.
func (s *Solution) UnlockState() {
	s.stateMu.Unlock()
	for i := len(s.Routes) - 1; i >= 0; i-- {
		s.Routes[i].Unlock()
	}
}

// Clone deep-copies the routes and the assignment bookkeeping. Cached state
// values are shared; features always replace them, never mutate in place.
func (s *Solution) Clone() *Solution {
	s.stateMu.Lock()
	st := *s.State
	s.stateMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &Solution{
		State:      &st,
		jobs:       s.jobs,
		unassigned: append([]*model.Job(nil), s.unassigned...),
		owner:      make(map[string]*Route, len(s.owner)),
	}
	byOld := make(map[*Route]*Route, len(s.Routes))
	for _, r := range s.Routes {
		c := r.clone()
		byOld[r] = c
		out.Routes = append(out.Routes, c)
	}
	for id, r := range s.owner {
		out.owner[id] = byOld[r]
	}
	return out
}
