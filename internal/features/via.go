package features

import (
	"vrpgoal/internal/attrs"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

// DefaultViaInversionWeight prices one out-of-order pair of via stops.
const DefaultViaInversionWeight = 10.0

// NewViaOrdering builds the via-stop ordering objective. Fitness is weight
// times the number of inverted via pairs over all routes.
func NewViaOrdering(weight float64) (feature.Feature, error) {
	return feature.NewBuilder(NameVia).
		WithObjective(viaObjective{weight: weight}).
		WithState(viaState{}).
		Build()
}

type viaObjective struct {
	weight float64
}

func (o viaObjective) Fitness(sol *solution.Solution) float64 {
	return o.weight * float64(solution.ViaInversions.Value(sol.State))
}

// Estimate counts the inversions the candidate adds: earlier via stops with a
// higher ordinal and later ones with a lower ordinal.
func (o viaObjective) Estimate(m solution.Move) float64 {
	ord, ok := attrs.ViaOrder.Get(m.Job.Attrs)
	if !ok {
		return 0
	}
	n := 0
	for i, j := range m.Route.Jobs() {
		other, ok := attrs.ViaOrder.Get(j.Attrs)
		if !ok {
			continue
		}
		if (i < m.Position && other > ord) || (i >= m.Position && other < ord) {
			n++
		}
	}
	return o.weight * float64(n)
}

type viaState struct{}

func (viaState) AcceptRouteState(r *solution.Route) {
	solution.ViaInversions.Set(r.State, ViaInversionCount(r.Jobs()))
}

func (viaState) AcceptSolutionState(sol *solution.Solution) {
	total := 0
	for _, r := range sol.Routes {
		total += solution.ViaInversions.Value(r.State)
	}
	solution.ViaInversions.Set(sol.State, total)
	skipped := 0
	for _, j := range sol.Unassigned() {
		if attrs.ViaOrder.Has(j.Attrs) {
			skipped++
		}
	}
	solution.SkippedVia.Set(sol.State, skipped)
}

// ViaInversionCount counts pairs of via stops visited against their ordinal.
func ViaInversionCount(jobs []*model.Job) int {
	var ords []int
	for _, j := range jobs {
		if ord, ok := attrs.ViaOrder.Get(j.Attrs); ok {
			ords = append(ords, ord)
		}
	}
	n := 0
	for i := range ords {
		for k := i + 1; k < len(ords); k++ {
			if ords[i] > ords[k] {
				n++
			}
		}
	}
	return n
}

// SkippedViaStops is the cached number of unassigned via stops.
func SkippedViaStops(sol *solution.Solution) int {
	return solution.SkippedVia.Value(sol.State)
}

// ViaInversions is the cached number of inverted via pairs over all routes.
func ViaInversions(sol *solution.Solution) int {
	return solution.ViaInversions.Value(sol.State)
}
