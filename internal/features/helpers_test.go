package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"vrpgoal/internal/attrs"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

// lineTransport places everything on the equator; one degree of longitude
// is 1km and one minute.
type lineTransport struct{}

func (lineTransport) Distance(a, b model.Location) float64 { return math.Abs(a.Lng-b.Lng) * 1000 }
func (lineTransport) Duration(a, b model.Location) float64 { return math.Abs(a.Lng-b.Lng) * 60 }

type jobOpt func(*model.Job)

func newJob(id string, opts ...jobOpt) *model.Job {
	j := &model.Job{ID: id, Attrs: attrs.New()}
	for _, o := range opts {
		o(j)
	}
	j.Attrs.Freeze()
	return j
}

func at(lng float64) jobOpt { return func(j *model.Job) { j.Location = model.Location{Lng: lng} } }

func demand(d ...float64) jobOpt { return func(j *model.Job) { j.Demand = d } }

func window(start, end float64) jobOpt {
	return func(j *model.Job) { j.TimeWindow = &model.TimeWindow{Start: start, End: end} }
}

func service(sec float64) jobOpt { return func(j *model.Job) { j.ServiceSec = sec } }

func via(ord int) jobOpt { return func(j *model.Job) { attrs.ViaOrder.Set(j.Attrs, ord) } }

func requested(sec float64) jobOpt { return func(j *model.Job) { attrs.RequestedTime.Set(j.Attrs, sec) } }

func prefs(preferred, acceptable, avoid []string) jobOpt {
	return func(j *model.Job) {
		if spec, ok := attrs.NewPreferenceSpec(preferred, acceptable, avoid); ok {
			attrs.Preferences.Set(j.Attrs, spec)
		}
	}
}

func skills(all, anyOf, none []string) jobOpt {
	return func(j *model.Job) {
		if spec, ok := attrs.NewSkillSpec(all, anyOf, none); ok {
			attrs.Skills.Set(j.Attrs, spec)
		}
	}
}

func newVehicle(id string, tokens ...string) *model.Vehicle {
	return &model.Vehicle{ID: id, Tokens: attrs.NewTokens(tokens...)}
}

// must unwraps a feature constructor: must(t)(NewSkills()).
func must(t *testing.T) func(feature.Feature, error) feature.Feature {
	return func(f feature.Feature, err error) feature.Feature {
		t.Helper()
		require.NoError(t, err)
		return f
	}
}

func newGoal(t *testing.T, sol *solution.Solution, fs ...feature.Feature) *feature.Goal {
	t.Helper()
	g, err := feature.NewGoal(fs)
	require.NoError(t, err)
	g.Init(sol)
	return g
}

func newSolution(t *testing.T, vehicles []*model.Vehicle, jobs ...*model.Job) *solution.Solution {
	t.Helper()
	sol, err := solution.New(vehicles, jobs)
	require.NoError(t, err)
	return sol
}

// seed places jobs on the vehicle's route in order without consulting any
// goal, the way a loader restores a previous plan.
func seed(t *testing.T, sol *solution.Solution, vehicleID string, jobIDs ...string) {
	t.Helper()
	r := sol.RouteByVehicle(vehicleID)
	require.NotNil(t, r)
	r.Lock()
	defer r.Unlock()
	for _, id := range jobIDs {
		j, ok := sol.Job(id)
		require.True(t, ok, id)
		require.NoError(t, sol.Apply(solution.Move{Job: j, Route: r, Position: r.Len()}))
	}
}

func move(t *testing.T, sol *solution.Solution, jobID, vehicleID string, pos int) solution.Move {
	t.Helper()
	j, ok := sol.Job(jobID)
	require.True(t, ok, jobID)
	r := sol.RouteByVehicle(vehicleID)
	require.NotNil(t, r, vehicleID)
	return solution.Move{Job: j, Route: r, Position: pos}
}
