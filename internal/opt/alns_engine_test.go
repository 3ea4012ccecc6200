package opt

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpgoal/internal/config"
	"vrpgoal/internal/events"
	"vrpgoal/internal/features"
	"vrpgoal/internal/model"
	"vrpgoal/internal/problem"
	"vrpgoal/internal/solution"
	"vrpgoal/internal/transport"
)

const cityYAML = `
vehicles:
  - id: cold
    capacity: [6]
    start: {lat: 52.52, lng: 13.40}
    end: {lat: 52.52, lng: 13.40}
    tokens: [fridge]
  - id: dry
    capacity: [3]
    start: {lat: 52.52, lng: 13.40}
    end: {lat: 52.52, lng: 13.40}
jobs:
  - {id: ice, location: {lat: 52.53, lng: 13.41}, demand: [1], skills: {requireAll: [fridge]}}
  - {id: milk, location: {lat: 52.51, lng: 13.39}, demand: [1], skills: {requireAll: [fridge]}}
  - {id: box-1, location: {lat: 52.50, lng: 13.42}, demand: [1]}
  - {id: box-2, location: {lat: 52.54, lng: 13.43}, demand: [1]}
  - {id: box-3, location: {lat: 52.49, lng: 13.37}, demand: [1], preferences: {preferred: [fridge]}}
  - {id: huge, location: {lat: 52.52, lng: 13.41}, demand: [50]}
  - {id: lock-a, location: {lat: 52.515, lng: 13.405}, demand: [1]}
  - {id: lock-b, location: {lat: 52.525, lng: 13.395}, demand: [1]}
locks:
  - {vehicleId: dry, jobs: [lock-a, lock-b], strict: true}
`

func build(t *testing.T) *problem.Instance {
	t.Helper()
	p, err := problem.Parse(strings.NewReader(cityYAML))
	require.NoError(t, err)
	inst, err := problem.Build(p, config.Default(), logr.Discard())
	require.NoError(t, err)
	return inst
}

func TestSolveRespectsConstraints(t *testing.T) {
	inst := build(t)
	best, m, err := Solve(context.Background(), inst.Goal, inst.Solution, Params{Seed: 1, IterationsLimit: 60, Pinned: inst.Pinned})
	require.NoError(t, err)
	assert.Equal(t, 60, m.Iterations)
	assert.Equal(t, "iteration limit", m.StopReason)
	assert.LessOrEqual(t, m.BestFitness, m.InitialFitness)
	assert.InDelta(t, inst.Goal.Fitness(best), m.BestFitness, 1e-9)

	un := best.Unassigned()
	require.Len(t, un, 1)
	assert.Equal(t, "huge", un[0].ID, "nothing can carry it")

	for _, id := range []string{"ice", "milk"} {
		assert.Equal(t, "cold", best.RouteOf(id).Vehicle.ID, id)
	}
	dry := best.RouteByVehicle("dry")
	a, b := dry.IndexOf("lock-a"), dry.IndexOf("lock-b")
	require.GreaterOrEqual(t, a, 0)
	assert.Equal(t, a+1, b, "strict lock stays contiguous and ordered")
	for _, r := range best.Routes {
		assert.True(t, r.Vehicle.Fits(features.RouteLoad(r)), r.Vehicle.ID)
	}

	// the caller's solution is untouched
	assert.Len(t, inst.Solution.Unassigned(), 6)
}

func TestSolveIsDeterministicForASeed(t *testing.T) {
	run := func() map[string][]string {
		inst := build(t)
		best, _, err := Solve(context.Background(), inst.Goal, inst.Solution, Params{Seed: 42, IterationsLimit: 40, Pinned: inst.Pinned})
		require.NoError(t, err)
		out := map[string][]string{}
		for _, r := range best.Routes {
			out[r.Vehicle.ID] = r.JobIDs()
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSolveStopsOnCancel(t *testing.T) {
	inst := build(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	best, m, err := Solve(ctx, inst.Goal, inst.Solution, Params{Seed: 1, IterationsLimit: 10})
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "canceled", m.StopReason)
	assert.Zero(t, m.Iterations)
}

func TestSolvePublishesEvents(t *testing.T) {
	inst := build(t)
	b := events.NewMemory()
	ch := b.Subscribe("run-1")
	_, m, err := Solve(context.Background(), inst.Goal, inst.Solution, Params{
		Seed: 3, IterationsLimit: 5, Pinned: inst.Pinned, RunID: "run-1", Events: b, SnapshotEvery: 2,
	})
	require.NoError(t, err)
	assert.Len(t, m.Snapshots, 2)

	counts := map[string]int{}
	for len(ch) > 0 {
		evt := <-ch
		assert.Equal(t, "run-1", evt.RunID)
		counts[evt.Type]++
	}
	assert.GreaterOrEqual(t, counts[events.TypeMoveCommitted], 5)
	assert.GreaterOrEqual(t, counts[events.TypeBestImproved], 1)
	assert.Equal(t, 1, counts[events.TypeRunFinished])
}

func TestPinnedJobsAreNeverRemoved(t *testing.T) {
	inst := build(t)
	e := &engine{g: inst.Goal, p: withDefaults(Params{Seed: 1, Pinned: inst.Pinned}), rng: rand.New(rand.NewSource(1))}
	for i := 0; i < 20; i++ {
		assert.Empty(t, e.randomRemoval(inst.Solution, 5))
		assert.Empty(t, e.shawRemoval(inst.Solution, 5))
	}
}

func TestSelectOp(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	counts := [2]int{}
	for i := 0; i < 2000; i++ {
		counts[selectOp([]float64{1, 3}, rng)]++
	}
	assert.InDelta(t, 0.75, float64(counts[1])/2000, 0.05)
	assert.Equal(t, 0, selectOp([]float64{0, 0}, rng))
}

func TestTWOverlap(t *testing.T) {
	assert.Equal(t, 50.0, twOverlap(model.TimeWindow{Start: 0, End: 100}, model.TimeWindow{Start: 50, End: 200}))
	assert.Zero(t, twOverlap(model.TimeWindow{Start: 0, End: 10}, model.TimeWindow{Start: 20, End: 30}))
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(config.Default().Search)
	assert.Equal(t, 0.995, p.Cooling)
	assert.NotNil(t, p.Transport)
	assert.Zero(t, p.IterationsLimit)
}

const lineYAML = `
vehicles:
  - id: v
    start: {lat: 52.52, lng: 13.40}
    end: {lat: 52.52, lng: 13.40}
jobs:
  - {id: a, location: {lat: 52.52, lng: 13.41}}
  - {id: b, location: {lat: 52.52, lng: 13.42}}
  - {id: c, location: {lat: 52.52, lng: 13.43}}
`

func TestRelocateUntanglesRoute(t *testing.T) {
	p, err := problem.Parse(strings.NewReader(lineYAML))
	require.NoError(t, err)
	inst, err := problem.Build(p, config.Default(), logr.Discard())
	require.NoError(t, err)
	g, sol := inst.Goal, inst.Solution
	r := sol.RouteByVehicle("v")
	for i, id := range []string{"c", "a", "b"} {
		j, ok := sol.Job(id)
		require.True(t, ok)
		require.NoError(t, g.Commit(sol, solution.Move{Job: j, Route: r, Position: i}))
	}
	before := g.Fitness(sol)

	e := &engine{g: g, p: withDefaults(Params{Seed: 1}), rng: rand.New(rand.NewSource(1)), log: logr.Discard()}
	n, err := e.relocate(context.Background(), sol)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Less(t, g.Fitness(sol), before)
	assert.Len(t, r.Jobs(), 3)
	assert.Empty(t, sol.Unassigned())

	c, _ := sol.Job("c")
	out := 2 * transport.NewHaversine(0).Distance(*r.Vehicle.Start, c.Location)
	assert.InDelta(t, out, features.RouteDistance(r), 1.0, "out and back along the line")
}

func TestRelocateKeepsPinnedJobs(t *testing.T) {
	inst := build(t)
	e := &engine{g: inst.Goal, p: withDefaults(Params{Seed: 1, Pinned: inst.Pinned}), rng: rand.New(rand.NewSource(1)), log: logr.Discard()}
	dry := inst.Solution.RouteByVehicle("dry")
	before := dry.JobIDs()
	n, err := e.relocate(context.Background(), inst.Solution)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before, dry.JobIDs())
}

const twoDepotYAML = `
vehicles:
  - id: west
    start: {lat: 52.52, lng: 13.00}
    end: {lat: 52.52, lng: 13.00}
  - id: east
    start: {lat: 52.52, lng: 14.00}
    end: {lat: 52.52, lng: 14.00}
jobs:
  - {id: far-west, location: {lat: 52.52, lng: 12.90}}
  - {id: near-east, location: {lat: 52.52, lng: 14.01}}
`

func TestInsertCommitsOneMovePerRouteInRouteOrder(t *testing.T) {
	p, err := problem.Parse(strings.NewReader(twoDepotYAML))
	require.NoError(t, err)
	inst, err := problem.Build(p, config.Default(), logr.Discard())
	require.NoError(t, err)
	b := events.NewMemory()
	ch := b.Subscribe("run-2")
	e := &engine{g: inst.Goal, p: withDefaults(Params{Seed: 1, RunID: "run-2", Events: b}), rng: rand.New(rand.NewSource(1)), log: logr.Discard()}

	require.NoError(t, e.insert(context.Background(), inst.Solution, opGreedy))
	assert.Empty(t, inst.Solution.Unassigned())
	assert.Equal(t, []string{"far-west"}, inst.Solution.RouteByVehicle("west").JobIDs())
	assert.Equal(t, []string{"near-east"}, inst.Solution.RouteByVehicle("east").JobIDs())

	// near-east is cheaper, yet both land in the same batch in route order
	var got []string
	for len(ch) > 0 {
		evt := <-ch
		if evt.Type == events.TypeMoveCommitted {
			got = append(got, evt.Vehicle+"/"+evt.Job)
		}
	}
	assert.Equal(t, []string{"west/far-west", "east/near-east"}, got)
}
