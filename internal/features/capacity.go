package features

import (
	"fmt"

	"vrpgoal/internal/feature"
	"vrpgoal/internal/solution"
)

// NewCapacity builds the capacity constraint. Demands are loaded at the
// start of the route, so a route fits when the summed demand fits the
// vehicle in every dimension.
func NewCapacity() (feature.Feature, error) {
	return feature.NewBuilder(NameCapacity).
		WithConstraint(capacityConstraint{}).
		WithState(capacityState{}).
		Build()
}

type capacityConstraint struct{}

func (capacityConstraint) Evaluate(m solution.Move) *feature.Violation {
	if len(m.Job.Demand) == 0 {
		return nil
	}
	load := addLoad(solution.Load.Value(m.Route.State), m.Job.Demand)
	if !m.Vehicle().Fits(load) {
		return &feature.Violation{Code: CodeCapacity, Reason: fmt.Sprintf("load %v exceeds vehicle %s", load, m.Vehicle().ID)}
	}
	return nil
}

type capacityState struct{}

func (capacityState) AcceptRouteState(r *solution.Route) {
	var load []float64
	for _, j := range r.Jobs() {
		load = addLoad(load, j.Demand)
	}
	solution.Load.Set(r.State, load)
}

func (capacityState) AcceptSolutionState(*solution.Solution) {}

// addLoad returns a new slice; cached loads are never mutated.
func addLoad(load, demand []float64) []float64 {
	n := max(len(load), len(demand))
	out := make([]float64, n)
	copy(out, load)
	for i, d := range demand {
		out[i] += d
	}
	return out
}

// RouteLoad is the cached summed demand of r.
func RouteLoad(r *solution.Route) []float64 {
	return solution.Load.Value(r.State)
}
