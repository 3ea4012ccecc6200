package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpgoal/internal/model"
)

func TestViaInversionCount(t *testing.T) {
	seq := func(ords ...int) []*model.Job {
		var out []*model.Job
		for i, o := range ords {
			if o < 0 {
				out = append(out, newJob("plain"))
				continue
			}
			out = append(out, newJob(string(rune('a'+i)), via(o)))
		}
		return out
	}
	assert.Equal(t, 0, ViaInversionCount(nil))
	assert.Equal(t, 0, ViaInversionCount(seq(1, 2, 3)))
	assert.Equal(t, 0, ViaInversionCount(seq(1, -1, 2, -1, 3)))
	assert.Equal(t, 1, ViaInversionCount(seq(2, 1, 3)))
	assert.Equal(t, 3, ViaInversionCount(seq(3, 2, 1)))
}

func TestViaOrdering(t *testing.T) {
	sol := newSolution(t, []*model.Vehicle{newVehicle("v1")},
		newJob("w1", via(1)), newJob("w2", via(2)), newJob("w3", via(3)), newJob("p"))
	g := newGoal(t, sol, must(t)(NewViaOrdering(DefaultViaInversionWeight)))
	seed(t, sol, "v1", "w1", "w3")
	g.Init(sol)

	assert.Zero(t, g.Estimate(move(t, sol, "p", "v1", 0)), "plain jobs never invert")
	assert.Zero(t, g.Estimate(move(t, sol, "w2", "v1", 1)))
	assert.Equal(t, 10.0, g.Estimate(move(t, sol, "w2", "v1", 0)))
	assert.Equal(t, 10.0, g.Estimate(move(t, sol, "w2", "v1", 2)))

	require.NoError(t, g.Commit(sol, move(t, sol, "w2", "v1", 2)))
	assert.Equal(t, 1, ViaInversions(sol))
	assert.Equal(t, 10.0, g.Fitness(sol))
	assert.Zero(t, SkippedViaStops(sol))
}

func TestSkippedViaStops(t *testing.T) {
	sol := newSolution(t, []*model.Vehicle{newVehicle("v1")},
		newJob("w1", via(1)), newJob("w2", via(2)), newJob("p"))
	g := newGoal(t, sol, must(t)(NewViaOrdering(1)))
	assert.Equal(t, 2, SkippedViaStops(sol))

	require.NoError(t, g.Commit(sol, move(t, sol, "w2", "v1", 0)))
	require.NoError(t, g.Commit(sol, move(t, sol, "p", "v1", 0)))
	assert.Equal(t, 1, SkippedViaStops(sol))
}

func TestUnassigned(t *testing.T) {
	w := DefaultUnassignedWeights()
	sol := newSolution(t, []*model.Vehicle{newVehicle("v1")},
		newJob("w1", via(1)), newJob("a"), newJob("b"))
	g := newGoal(t, sol, must(t)(NewUnassigned(w)))
	assert.InDelta(t, 2000.1, g.Fitness(sol), 1e-9)

	assert.Equal(t, -1000.0, g.Estimate(move(t, sol, "a", "v1", 0)))
	assert.Equal(t, -0.1, g.Estimate(move(t, sol, "w1", "v1", 0)))

	require.NoError(t, g.Commit(sol, move(t, sol, "a", "v1", 0)))
	assert.InDelta(t, 1000.1, g.Fitness(sol), 1e-9)
}

func TestViaStopsDropFirstUnderLoad(t *testing.T) {
	// a via stop far away costs more to visit than to skip
	sol := newSolution(t, []*model.Vehicle{{ID: "v1", Start: &model.Location{}}},
		newJob("w1", via(1), at(5)), newJob("a", at(5)))
	g := newGoal(t, sol,
		must(t)(NewUnassigned(DefaultUnassignedWeights())),
		must(t)(NewTransportCost(lineTransport{}, DefaultTransportWeights())))
	assert.Greater(t, g.Estimate(move(t, sol, "w1", "v1", 0)), 0.0)
	assert.Less(t, g.Estimate(move(t, sol, "a", "v1", 0)), 0.0)
}
