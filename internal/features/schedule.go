package features

import (
	"fmt"
	"math"

	"vrpgoal/internal/attrs"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
	"vrpgoal/internal/transport"
)

// RequestedTimePenalty prices the gap between the arrival at a job and the
// time its customer asked for, per minute.
type RequestedTimePenalty struct {
	EarlyPerMinute float64
	LatePerMinute  float64
}

func DefaultRequestedTimePenalty() RequestedTimePenalty {
	return RequestedTimePenalty{EarlyPerMinute: 1, LatePerMinute: 1}
}

// Of prices arriving at arrival for a job requested at requested.
func (p RequestedTimePenalty) Of(arrival, requested float64) float64 {
	switch {
	case arrival < requested:
		return p.EarlyPerMinute * (requested - arrival) / 60
	case arrival > requested:
		return p.LatePerMinute * (arrival - requested) / 60
	}
	return 0
}

// NewSchedule builds the schedule feature: time windows and the vehicle
// shift are hard, requested times are soft. The route state caches the
// computed schedule so insertions only propagate the suffix.
func NewSchedule(t transport.Transport, p RequestedTimePenalty) (feature.Feature, error) {
	return feature.NewBuilder(NameSchedule).
		WithConstraint(scheduleConstraint{t: t}).
		WithObjective(requestedTimeObjective{t: t, p: p}).
		WithState(scheduleState{t: t, p: p}).
		Build()
}

// ComputeSchedule derives arrival and departure times along jobs. Vehicles
// wait for a window to open. feasible is false when an arrival misses its
// window or the vehicle ends after its shift; times are still reported.
func ComputeSchedule(t transport.Transport, v *model.Vehicle, jobs []*model.Job) (s solution.Schedule, feasible bool) {
	feasible = true
	clock := 0.0
	if v.Shift != nil {
		clock = v.Shift.Start
	}
	var cur model.Location
	if v.Start != nil {
		cur = *v.Start
	} else if len(jobs) > 0 {
		cur = jobs[0].Location
	}
	s.Visits = make([]solution.Visit, len(jobs))
	for i, j := range jobs {
		arr := clock + t.Duration(cur, j.Location)
		begin := arr
		if tw := j.TimeWindow; tw != nil {
			if arr > tw.End {
				feasible = false
			}
			begin = math.Max(arr, tw.Start)
		}
		clock = begin + j.ServiceSec
		s.Visits[i] = solution.Visit{Arrival: arr, Departure: clock}
		cur = j.Location
	}
	s.End = clock
	if v.End != nil && len(jobs) > 0 {
		s.End = clock + t.Duration(cur, *v.End)
	}
	if v.Shift != nil && s.End > v.Shift.End {
		feasible = false
	}
	return s, feasible
}

type scheduleConstraint struct {
	t transport.Transport
}

// Evaluate reuses the cached schedule up to the insertion point and
// propagates the delay through the suffix. Propagation stops as soon as a
// departure is no later than before, since the rest stays as it was.
func (c scheduleConstraint) Evaluate(m solution.Move) *feature.Violation {
	sched := solution.RouteSchedule.Value(m.Route.State)
	v := m.Vehicle()
	clock, from, ok := c.departureBefore(m, sched)
	if !ok {
		from = m.Job.Location
	}
	arr := clock + c.t.Duration(from, m.Job.Location)
	if tw := m.Job.TimeWindow; tw != nil {
		if arr > tw.End {
			return &feature.Violation{Code: CodeTimeWindow, Reason: fmt.Sprintf("arrival %.0fs misses window end %.0fs of job %s", arr, tw.End, m.Job.ID)}
		}
		arr = math.Max(arr, tw.Start)
	}
	clock = arr + m.Job.ServiceSec
	cur := m.Job.Location

	jobs := m.Route.Jobs()
	for i := m.Position; i < len(jobs); i++ {
		j := jobs[i]
		a := clock + c.t.Duration(cur, j.Location)
		begin := a
		if tw := j.TimeWindow; tw != nil {
			if a > tw.End {
				return &feature.Violation{Code: CodeTimeWindow, Reason: fmt.Sprintf("job %s would arrive %.0fs after its window closes", j.ID, a-tw.End)}
			}
			begin = math.Max(a, tw.Start)
		}
		clock = begin + j.ServiceSec
		if i < len(sched.Visits) && clock <= sched.Visits[i].Departure {
			return nil
		}
		cur = j.Location
	}
	if v.Shift != nil {
		end := clock
		if v.End != nil {
			end += c.t.Duration(cur, *v.End)
		}
		if end > v.Shift.End {
			return &feature.Violation{Code: CodeTimeWindow, Reason: fmt.Sprintf("vehicle %s would end %.0fs after its shift", v.ID, end-v.Shift.End)}
		}
	}
	return nil
}

// departureBefore returns when and where the vehicle leaves for the
// candidate. ok is false for the first stop of a vehicle without a start
// depot, which starts right at the job.
func (c scheduleConstraint) departureBefore(m solution.Move, sched solution.Schedule) (clock float64, from model.Location, ok bool) {
	if m.Position > 0 {
		return sched.Visits[m.Position-1].Departure, m.Prev().Location, true
	}
	v := m.Vehicle()
	if v.Shift != nil {
		clock = v.Shift.Start
	}
	if v.Start != nil {
		return clock, *v.Start, true
	}
	return clock, model.Location{}, false
}

type requestedTimeObjective struct {
	t transport.Transport
	p RequestedTimePenalty
}

func (o requestedTimeObjective) Fitness(sol *solution.Solution) float64 {
	return solution.RequestedTimePenalty.Value(sol.State)
}

// Estimate prices the candidate's own arrival only.
func (o requestedTimeObjective) Estimate(m solution.Move) float64 {
	req, ok := attrs.RequestedTime.Get(m.Job.Attrs)
	if !ok {
		return 0
	}
	sched := solution.RouteSchedule.Value(m.Route.State)
	clock, from, ok := scheduleConstraint{t: o.t}.departureBefore(m, sched)
	arr := clock
	if ok {
		arr += o.t.Duration(from, m.Job.Location)
	}
	if tw := m.Job.TimeWindow; tw != nil {
		arr = math.Max(arr, tw.Start)
	}
	return o.p.Of(arr, req)
}

type scheduleState struct {
	t transport.Transport
	p RequestedTimePenalty
}

func (s scheduleState) AcceptRouteState(r *solution.Route) {
	jobs := r.Jobs()
	sched, _ := ComputeSchedule(s.t, r.Vehicle, jobs)
	solution.RouteSchedule.Set(r.State, sched)
	total := 0.0
	for i, j := range jobs {
		req, ok := attrs.RequestedTime.Get(j.Attrs)
		if !ok {
			continue
		}
		total += s.p.Of(serviceStart(j, sched.Visits[i]), req)
	}
	solution.RequestedTimePenalty.Set(r.State, total)
}

func (s scheduleState) AcceptSolutionState(sol *solution.Solution) {
	total := 0.0
	for _, r := range sol.Routes {
		total += solution.RequestedTimePenalty.Value(r.State)
	}
	solution.RequestedTimePenalty.Set(sol.State, total)
}

// serviceStart is when service begins, after any wait for the window.
func serviceStart(j *model.Job, v solution.Visit) float64 {
	if j.TimeWindow != nil {
		return math.Max(v.Arrival, j.TimeWindow.Start)
	}
	return v.Arrival
}

// RouteScheduleOf is the cached schedule of r.
func RouteScheduleOf(r *solution.Route) solution.Schedule {
	return solution.RouteSchedule.Value(r.State)
}
