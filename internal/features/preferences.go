package features

import (
	"fmt"
	"math"

	"vrpgoal/internal/attrs"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

// PreferencePenalty weighs unmet vehicle preferences.
type PreferencePenalty struct {
	// NoPreferredMatch applies when none of the preferred tokens is present.
	NoPreferredMatch float64
	// NoAcceptableMatch is added on top when the acceptable tokens are
	// missing as well.
	NoAcceptableMatch float64
	// PerAvoidedPresent applies once per avoided token present.
	PerAvoidedPresent float64
}

func DefaultPreferencePenalty() PreferencePenalty {
	return PreferencePenalty{NoPreferredMatch: 100, NoAcceptableMatch: 30, PerAvoidedPresent: 75}
}

// NewPreferences builds the soft preference objective. Route and solution
// states cache the summed penalties of placed jobs; Estimate only prices the
// candidate job so already placed jobs are never counted twice.
func NewPreferences(p PreferencePenalty) (feature.Feature, error) {
	return feature.NewBuilder(NamePreferences).
		WithObjective(preferenceObjective{penalty: p}).
		WithState(preferenceState{penalty: p}).
		Build()
}

// JobPreferencePenalty prices serving job with vehicle.
func JobPreferencePenalty(p PreferencePenalty, job *model.Job, v *model.Vehicle) float64 {
	spec, ok := attrs.Preferences.Get(job.Attrs)
	if !ok {
		return 0
	}
	o := spec.Overrides
	total := 0.0
	if spec.Preferred != nil && !spec.HasPreferredMatch(v.Tokens) {
		total += pick(o.NoPreferredMatch, p.NoPreferredMatch)
		if spec.Acceptable != nil && !spec.HasAcceptableMatch(v.Tokens) {
			total += pick(o.NoAcceptableMatch, p.NoAcceptableMatch)
		}
	}
	total += float64(spec.CountAvoided(v.Tokens)) * pick(o.PerAvoidedPresent, p.PerAvoidedPresent)
	return total * spec.Weight
}

func pick(override *float64, def float64) float64 {
	if override != nil {
		return *override
	}
	return def
}

type preferenceObjective struct {
	penalty PreferencePenalty
}

func (o preferenceObjective) Fitness(sol *solution.Solution) float64 {
	return solution.PreferencePenalty.Value(sol.State)
}

func (o preferenceObjective) Estimate(m solution.Move) float64 {
	return JobPreferencePenalty(o.penalty, m.Job, m.Vehicle())
}

type preferenceState struct {
	penalty PreferencePenalty
}

func (s preferenceState) AcceptRouteState(r *solution.Route) {
	total := 0.0
	for _, j := range r.Jobs() {
		total += JobPreferencePenalty(s.penalty, j, r.Vehicle)
	}
	mustBeValidPenalty(total, "route "+r.Vehicle.ID)
	solution.PreferencePenalty.Set(r.State, total)
}

func (s preferenceState) AcceptSolutionState(sol *solution.Solution) {
	total := 0.0
	for _, r := range sol.Routes {
		total += solution.PreferencePenalty.Value(r.State)
	}
	mustBeValidPenalty(total, "solution")
	solution.PreferencePenalty.Set(sol.State, total)
}

func mustBeValidPenalty(v float64, scope string) {
	if v < 0 || math.IsNaN(v) {
		panic(fmt.Sprintf("preferences: invalid penalty %v for %s", v, scope))
	}
}

// RoutePreferencePenalty is the cached penalty of the jobs on r.
func RoutePreferencePenalty(r *solution.Route) float64 {
	return solution.PreferencePenalty.Value(r.State)
}

// TotalPreferencePenalty is the cached penalty over all routes.
func TotalPreferencePenalty(sol *solution.Solution) float64 {
	return solution.PreferencePenalty.Value(sol.State)
}
