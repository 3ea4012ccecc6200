package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpgoal/internal/config"
	"vrpgoal/internal/features"
	"vrpgoal/internal/opt"
	"vrpgoal/internal/problem"
	"vrpgoal/internal/solution"
)

func solved(t *testing.T) (*problem.Instance, *solution.Solution) {
	t.Helper()
	p, err := problem.LoadFile("../problem/testdata/depot.yaml")
	require.NoError(t, err)
	inst, err := problem.Build(p, config.Default(), logr.Discard())
	require.NoError(t, err)
	best, _, err := opt.Solve(context.Background(), inst.Goal, inst.Solution, opt.Params{Seed: 2, IterationsLimit: 30, Pinned: inst.Pinned})
	require.NoError(t, err)
	return inst, best
}

func TestBuild(t *testing.T) {
	inst, sol := solved(t)
	r := Build(inst.Goal, sol)

	require.NotEmpty(t, r.ID)
	sum := 0.0
	for _, v := range r.Breakdown {
		sum += v
	}
	assert.InDelta(t, r.Fitness, sum, 1e-9)

	require.Len(t, r.Routes, 2)
	pref, stops := 0.0, 0
	for _, rt := range r.Routes {
		pref += rt.PreferencePenalty
		stops += len(rt.Stops)
		for i := 1; i < len(rt.Stops); i++ {
			assert.GreaterOrEqual(t, rt.Stops[i].Arrival, rt.Stops[i-1].Departure, rt.Vehicle)
		}
	}
	assert.InDelta(t, r.PreferencePenalty, pref, 1e-9)
	assert.Equal(t, 8, stops+len(r.Unassigned))
	assert.Equal(t, features.SkippedViaStops(sol), r.SkippedVia)
	assert.Equal(t, "first-drop", r.Routes[0].Stops[0].Job, "departure lock opens van-1")

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	assert.Contains(t, buf.String(), "VEHICLE")
	assert.Contains(t, buf.String(), "van-1")
}

func TestExplain(t *testing.T) {
	inst, sol := solved(t)

	ex, err := Explain(inst.Goal, sol, "pickup-ice")
	require.NoError(t, err)
	assert.Equal(t, "van-1", ex.Vehicle, "only van-1 has a fridge")
	require.NotEmpty(t, ex.Options)
	assert.True(t, ex.Options[0].Legal)

	seenIllegal := false
	for i, o := range ex.Options {
		if !o.Legal {
			seenIllegal = true
			if o.Vehicle == "van-2" {
				assert.Equal(t, features.NameSkills, o.Feature)
			}
			continue
		}
		assert.False(t, seenIllegal, "legal options come first")
		if i > 0 && ex.Options[i-1].Legal {
			assert.LessOrEqual(t, ex.Options[i-1].Cost, o.Cost)
		}
	}
	assert.True(t, seenIllegal)
	// explaining never moves the job
	assert.Equal(t, ex.Position, sol.RouteByVehicle("van-1").IndexOf("pickup-ice"))

	var buf bytes.Buffer
	require.NoError(t, WriteExplanation(&buf, ex))
	assert.Contains(t, buf.String(), "pickup-ice is on van-1")

	_, err = Explain(inst.Goal, sol, "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}
