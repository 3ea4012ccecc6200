package solution

import (
	"fmt"

	"vrpgoal/internal/model"
)

// Move is a proposed, uncommitted placement of Job at Position of Route.
// Position counts jobs: 0 places the job first, Route.Len() places it last.
type Move struct {
	Job      *model.Job
	Route    *Route
	Position int
}

func (m Move) Validate() error {
	if m.Job == nil || m.Route == nil {
		return fmt.Errorf("%w: move needs a job and a route", ErrInvalidMove)
	}
	if m.Position < 0 || m.Position > m.Route.Len() {
		return fmt.Errorf("%w: position %d outside [0,%d]", ErrInvalidMove, m.Position, m.Route.Len())
	}
	return nil
}

// Prev returns the job right before the insertion point, or nil.
func (m Move) Prev() *model.Job {
	if m.Position == 0 {
		return nil
	}
	return m.Route.Job(m.Position - 1)
}

// Next returns the job the candidate would be inserted in front of, or nil.
func (m Move) Next() *model.Job {
	if m.Position >= m.Route.Len() {
		return nil
	}
	return m.Route.Job(m.Position)
}

// Vehicle is a shorthand for the target route's vehicle.
func (m Move) Vehicle() *model.Vehicle { return m.Route.Vehicle }

func (m Move) String() string {
	id := "<nil>"
	if m.Job != nil {
		id = m.Job.ID
	}
	rid := "<nil>"
	if m.Route != nil {
		rid = m.Route.Vehicle.ID
	}
	return fmt.Sprintf("%s@%s:%d", id, rid, m.Position)
}
