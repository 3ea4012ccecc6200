package features

import (
	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
	"vrpgoal/internal/transport"
)

// TransportWeights price travel. Distance is charged per kilometre and
// driving time per hour.
type TransportWeights struct {
	PerKm   float64
	PerHour float64
}

func DefaultTransportWeights() TransportWeights { return TransportWeights{PerKm: 1} }

// NewTransportCost builds the travel cost objective.
func NewTransportCost(t transport.Transport, w TransportWeights) (feature.Feature, error) {
	return feature.NewBuilder(NameTransport).
		WithObjective(transportObjective{t: t, w: w}).
		WithState(transportState{t: t}).
		Build()
}

type transportObjective struct {
	t transport.Transport
	w TransportWeights
}

func (o transportObjective) price(meters, seconds float64) float64 {
	return o.w.PerKm*meters/1000 + o.w.PerHour*seconds/3600
}

func (o transportObjective) Fitness(sol *solution.Solution) float64 {
	return o.price(solution.Distance.Value(sol.State), solution.Duration.Value(sol.State))
}

// Estimate prices the detour prev -> job -> next minus prev -> next. A
// missing neighbour (no depot at that end) contributes nothing, and an empty
// route never travelled between its depots before.
func (o transportObjective) Estimate(m solution.Move) float64 {
	prev, hasPrev := prevLocation(m)
	next, hasNext := nextLocation(m)
	at := m.Job.Location
	var dist, dur float64
	if hasPrev {
		dist += o.t.Distance(prev, at)
		dur += o.t.Duration(prev, at)
	}
	if hasNext {
		dist += o.t.Distance(at, next)
		dur += o.t.Duration(at, next)
	}
	if hasPrev && hasNext && m.Route.Len() > 0 {
		dist -= o.t.Distance(prev, next)
		dur -= o.t.Duration(prev, next)
	}
	return o.price(dist, dur)
}

func prevLocation(m solution.Move) (model.Location, bool) {
	if p := m.Prev(); p != nil {
		return p.Location, true
	}
	if s := m.Vehicle().Start; s != nil {
		return *s, true
	}
	return model.Location{}, false
}

func nextLocation(m solution.Move) (model.Location, bool) {
	if n := m.Next(); n != nil {
		return n.Location, true
	}
	if e := m.Vehicle().End; e != nil {
		return *e, true
	}
	return model.Location{}, false
}

type transportState struct {
	t transport.Transport
}

func (s transportState) AcceptRouteState(r *solution.Route) {
	dist, dur := RouteTravel(s.t, r.Vehicle, r.Jobs())
	solution.Distance.Set(r.State, dist)
	solution.Duration.Set(r.State, dur)
}

func (s transportState) AcceptSolutionState(sol *solution.Solution) {
	var dist, dur float64
	for _, r := range sol.Routes {
		dist += solution.Distance.Value(r.State)
		dur += solution.Duration.Value(r.State)
	}
	solution.Distance.Set(sol.State, dist)
	solution.Duration.Set(sol.State, dur)
}

// RouteTravel walks start depot, jobs and end depot. An empty route travels
// nowhere even when both depots are set.
func RouteTravel(t transport.Transport, v *model.Vehicle, jobs []*model.Job) (meters, seconds float64) {
	if len(jobs) == 0 {
		return 0, 0
	}
	cur := jobs[0].Location
	if v.Start != nil {
		cur = *v.Start
	}
	for _, j := range jobs {
		meters += t.Distance(cur, j.Location)
		seconds += t.Duration(cur, j.Location)
		cur = j.Location
	}
	if v.End != nil {
		meters += t.Distance(cur, *v.End)
		seconds += t.Duration(cur, *v.End)
	}
	return meters, seconds
}

// RouteDistance is the cached travel distance of r in meters.
func RouteDistance(r *solution.Route) float64 {
	return solution.Distance.Value(r.State)
}
