package features

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

// ErrLock marks an inconsistent lock definition.
var ErrLock = errors.New("invalid sequence lock")

type lockRule struct {
	lock    model.SequenceLock
	ordinal map[string]int
}

type lockConstraint struct {
	byVehicle map[string][]*lockRule
	byJob     map[string]*lockRule
}

// NewSequenceLocks builds the hard lock constraint. Locked jobs must already
// sit on their vehicle's route in lock order; every problem is reported,
// not only the first one.
func NewSequenceLocks(locks []model.SequenceLock, sol *solution.Solution) (feature.Feature, error) {
	c := &lockConstraint{
		byVehicle: map[string][]*lockRule{},
		byJob:     map[string]*lockRule{},
	}
	var errs error
	for i, l := range locks {
		if err := c.add(i, l, sol); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return feature.Feature{}, errs
	}
	return feature.NewBuilder(NameLocks).WithConstraint(c).Build()
}

func (c *lockConstraint) add(idx int, l model.SequenceLock, sol *solution.Solution) error {
	if len(l.JobIDs) == 0 {
		// nothing to order, always satisfied
		return nil
	}
	r := sol.RouteByVehicle(l.VehicleID)
	if r == nil {
		return fmt.Errorf("%w: lock %d references unknown vehicle %q", ErrLock, idx, l.VehicleID)
	}
	rule := &lockRule{lock: l, ordinal: make(map[string]int, len(l.JobIDs))}
	var errs error
	for ord, id := range l.JobIDs {
		if _, ok := sol.Job(id); !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: lock %d references unknown job %q", ErrLock, idx, id))
			continue
		}
		if _, dup := rule.ordinal[id]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%w: lock %d lists job %q twice", ErrLock, idx, id))
			continue
		}
		if other, taken := c.byJob[id]; taken {
			errs = multierr.Append(errs, fmt.Errorf("%w: job %q is locked to %q and %q", ErrLock, id, other.lock.VehicleID, l.VehicleID))
			continue
		}
		if owner := sol.RouteOf(id); owner != r {
			errs = multierr.Append(errs, fmt.Errorf("%w: locked job %q is not on route %q", ErrLock, id, l.VehicleID))
			continue
		}
		rule.ordinal[id] = ord
	}
	if errs != nil {
		return errs
	}
	if reason := rule.check(r.Jobs()); reason != "" {
		return fmt.Errorf("%w: lock %d: initial route %q breaks it: %s", ErrLock, idx, l.VehicleID, reason)
	}
	for id := range rule.ordinal {
		c.byJob[id] = rule
	}
	c.byVehicle[l.VehicleID] = append(c.byVehicle[l.VehicleID], rule)
	return nil
}

func (c *lockConstraint) Evaluate(m solution.Move) *feature.Violation {
	vid := m.Vehicle().ID
	if rule, ok := c.byJob[m.Job.ID]; ok && rule.lock.VehicleID != vid {
		return &feature.Violation{Code: CodeLock, Reason: fmt.Sprintf("job %s is locked to vehicle %s", m.Job.ID, rule.lock.VehicleID)}
	}
	rules := c.byVehicle[vid]
	if len(rules) == 0 {
		return nil
	}
	seq := withInserted(m)
	for _, rule := range rules {
		if reason := rule.check(seq); reason != "" {
			return &feature.Violation{Code: CodeLock, Reason: reason}
		}
	}
	return nil
}

// check validates seq against the rule: locked jobs appear in lock order, a
// strict lock admits no foreign job between its first and last stop, and the
// position anchors the block to the route's start or end.
func (r *lockRule) check(seq []*model.Job) string {
	first, last, seen, prev := -1, -1, 0, -1
	for i, j := range seq {
		ord, ok := r.ordinal[j.ID]
		if !ok {
			continue
		}
		if ord < prev {
			return fmt.Sprintf("job %s breaks the locked order on vehicle %s", j.ID, r.lock.VehicleID)
		}
		prev = ord
		if first < 0 {
			first = i
		}
		last = i
		seen++
	}
	if seen == 0 {
		return ""
	}
	if r.lock.Strict && last-first+1 != seen {
		return fmt.Sprintf("strict lock on vehicle %s is interrupted", r.lock.VehicleID)
	}
	pos := r.lock.Position
	if (pos == model.LockDeparture || pos == model.LockFixed) && first != 0 {
		return fmt.Sprintf("lock on vehicle %s must start the route", r.lock.VehicleID)
	}
	if (pos == model.LockArrival || pos == model.LockFixed) && last != len(seq)-1 {
		return fmt.Sprintf("lock on vehicle %s must end the route", r.lock.VehicleID)
	}
	return ""
}

// withInserted materializes the route as it would look after m.
func withInserted(m solution.Move) []*model.Job {
	jobs := m.Route.Jobs()
	seq := make([]*model.Job, 0, len(jobs)+1)
	seq = append(seq, jobs[:m.Position]...)
	seq = append(seq, m.Job)
	return append(seq, jobs[m.Position:]...)
}

// LockedJobs returns the IDs of every job held by locks.
func LockedJobs(locks []model.SequenceLock) map[string]bool {
	out := map[string]bool{}
	for _, l := range locks {
		for _, id := range l.JobIDs {
			out[id] = true
		}
	}
	return out
}
