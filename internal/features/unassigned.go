package features

import (
	"vrpgoal/internal/attrs"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

// UnassignedWeights prices jobs left off every route. Via stops get their
// own, usually much smaller, weight so the search drops them first.
type UnassignedWeights struct {
	Job float64
	Via float64
}

func DefaultUnassignedWeights() UnassignedWeights {
	return UnassignedWeights{Job: 1000, Via: 0.1}
}

// Of returns the weight that applies to job.
func (w UnassignedWeights) Of(job *model.Job) float64 {
	if attrs.ViaOrder.Has(job.Attrs) {
		return w.Via
	}
	return w.Job
}

// NewUnassigned builds the unassigned-job objective. Placing a job saves its
// weight, so Estimate is negative.
func NewUnassigned(w UnassignedWeights) (feature.Feature, error) {
	return feature.NewBuilder(NameUnassigned).
		WithObjective(unassignedObjective{w: w}).
		WithState(unassignedState{w: w}).
		Build()
}

type unassignedObjective struct {
	w UnassignedWeights
}

func (o unassignedObjective) Fitness(sol *solution.Solution) float64 {
	return solution.UnassignedPenalty.Value(sol.State)
}

func (o unassignedObjective) Estimate(m solution.Move) float64 { return -o.w.Of(m.Job) }

type unassignedState struct {
	w UnassignedWeights
}

func (unassignedState) AcceptRouteState(*solution.Route) {}

func (s unassignedState) AcceptSolutionState(sol *solution.Solution) {
	total := 0.0
	for _, j := range sol.Unassigned() {
		total += s.w.Of(j)
	}
	solution.UnassignedPenalty.Set(sol.State, total)
}
