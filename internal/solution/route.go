package solution

import (
	"sync"

	"github.com/google/uuid"

	"vrpgoal/internal/model"
)

// Route is the ordered job sequence served by one vehicle.
//
// Mutations go through Solution and must happen inside the route's exclusive
// section (Lock/Unlock). Reads are safe while nobody mutates the route.
type Route struct {
	ID      string
	Vehicle *model.Vehicle
	State   *State

	mu   sync.Mutex
	jobs []*model.Job
}

func NewRoute(v *model.Vehicle) *Route {
	return &Route{ID: uuid.New().String(), Vehicle: v, State: &State{}}
}

// Lock enters the route's exclusive section.
func (r *Route) Lock() { r.mu.Lock() }

// Unlock leaves the route's exclusive section.
func (r *Route) Unlock() { r.mu.Unlock() }

func (r *Route) Len() int { return len(r.jobs) }

func (r *Route) Job(i int) *model.Job { return r.jobs[i] }

// Jobs returns the route's jobs. The slice must not be modified.
func (r *Route) Jobs() []*model.Job { return r.jobs }

// IndexOf returns the position of jobID or -1.
func (r *Route) IndexOf(jobID string) int {
	for i, j := range r.jobs {
		if j.ID == jobID {
			return i
		}
	}
	return -1
}

// JobIDs lists the sequence by job ID.
func (r *Route) JobIDs() []string {
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.ID
	}
	return out
}

func (r *Route) insert(job *model.Job, pos int) {
	if pos == len(r.jobs) {
		r.jobs = append(r.jobs, job)
	} else {
		r.jobs = append(r.jobs[:pos+1], r.jobs[pos:]...)
		r.jobs[pos] = job
	}
	r.State.Invalidate()
}

func (r *Route) remove(i int) *model.Job {
	j := r.jobs[i]
	r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
	r.State.Invalidate()
	return j
}

func (r *Route) clone() *Route {
	st := *r.State
	return &Route{
		ID:      r.ID,
		Vehicle: r.Vehicle,
		State:   &st,
		jobs:    append([]*model.Job(nil), r.jobs...),
	}
}
