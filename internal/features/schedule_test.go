package features

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

func shiftVehicle() *model.Vehicle {
	return &model.Vehicle{
		ID:    "v1",
		Start: &model.Location{},
		End:   &model.Location{},
		Shift: &model.TimeWindow{Start: 0, End: 3600},
	}
}

func TestComputeSchedule(t *testing.T) {
	jobs := []*model.Job{
		newJob("a", at(10), window(900, 2000), service(60)),
		newJob("b", at(20), window(0, 2000)),
	}
	s, ok := ComputeSchedule(lineTransport{}, shiftVehicle(), jobs)
	require.True(t, ok)
	assert.Equal(t, []solution.Visit{{Arrival: 600, Departure: 960}, {Arrival: 1560, Departure: 1560}}, s.Visits)
	assert.Equal(t, 2760.0, s.End)

	late := []*model.Job{newJob("c", at(10), window(0, 100))}
	s, ok = ComputeSchedule(lineTransport{}, shiftVehicle(), late)
	assert.False(t, ok)
	assert.Equal(t, 600.0, s.Visits[0].Arrival, "times are reported even when infeasible")
}

func TestScheduleConstraint(t *testing.T) {
	sol := newSolution(t, []*model.Vehicle{shiftVehicle()},
		newJob("a", at(10), window(900, 2000), service(60)),
		newJob("b", at(20), window(0, 2000)),
		newJob("c", at(15)),
		newJob("d", at(30)),
		newJob("e", at(10), window(0, 100)))
	seed(t, sol, "v1", "a", "b")
	g := newGoal(t, sol, must(t)(NewSchedule(lineTransport{}, DefaultRequestedTimePenalty())))

	assert.True(t, g.IsLegal(move(t, sol, "c", "v1", 1)), "on the way, b keeps its departure")

	vio := g.Check(move(t, sol, "d", "v1", 1))
	require.NotNil(t, vio)
	assert.Equal(t, CodeTimeWindow, vio.Code)
	assert.Contains(t, vio.Reason, "job b")

	vio = g.Check(move(t, sol, "d", "v1", 2))
	require.NotNil(t, vio)
	assert.Contains(t, vio.Reason, "shift")

	vio = g.Check(move(t, sol, "e", "v1", 0))
	require.NotNil(t, vio)
	assert.Contains(t, vio.Reason, "job e")

	sched := RouteScheduleOf(sol.RouteByVehicle("v1"))
	assert.Len(t, sched.Visits, 2)
}

func TestScheduleConstraintMatchesFullRecompute(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var jobs []*model.Job
	for i := 0; i < 25; i++ {
		opts := []jobOpt{at(float64(rng.Intn(40))), service(float64(rng.Intn(4) * 60))}
		if rng.Intn(2) == 0 {
			start := float64(rng.Intn(3000))
			opts = append(opts, window(start, start+float64(300+rng.Intn(1500))))
		}
		jobs = append(jobs, newJob(fmt.Sprintf("j%d", i), opts...))
	}
	vehicles := []*model.Vehicle{
		{ID: "depot", Start: &model.Location{Lng: 20}, End: &model.Location{Lng: 20}, Shift: &model.TimeWindow{End: 6000}},
		{ID: "open"},
	}
	sol := newSolution(t, vehicles, jobs...)
	tr := lineTransport{}
	g := newGoal(t, sol, must(t)(NewSchedule(tr, DefaultRequestedTimePenalty())))

	checked := 0
	for _, j := range jobs {
		for _, r := range sol.Routes {
			for pos := 0; pos <= r.Len(); pos++ {
				m := solution.Move{Job: j, Route: r, Position: pos}
				_, want := ComputeSchedule(tr, r.Vehicle, withInserted(m))
				require.Equal(t, want, g.IsLegal(m), "move %s", m)
				checked++
			}
		}
		// place the job at its first legal position so later routes grow
		for _, r := range sol.Routes {
			placed := false
			for pos := 0; pos <= r.Len(); pos++ {
				m := solution.Move{Job: j, Route: r, Position: pos}
				if g.IsLegal(m) {
					require.NoError(t, g.Commit(sol, m))
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
	}
	assert.Greater(t, checked, 50)
}

func TestRequestedTime(t *testing.T) {
	sol := newSolution(t, []*model.Vehicle{shiftVehicle()},
		newJob("r", at(10), requested(900)),
		newJob("w", at(10), requested(900), window(700, 2000)),
		newJob("p", at(10)))
	g := newGoal(t, sol, must(t)(NewSchedule(lineTransport{}, DefaultRequestedTimePenalty())))

	// arrives at 600, five minutes early
	assert.InDelta(t, 5.0, g.Estimate(move(t, sol, "r", "v1", 0)), 1e-9)
	// waits for the window until 700
	assert.InDelta(t, 200.0/60, g.Estimate(move(t, sol, "w", "v1", 0)), 1e-9)
	assert.Zero(t, g.Estimate(move(t, sol, "p", "v1", 0)))

	require.NoError(t, g.Commit(sol, move(t, sol, "r", "v1", 0)))
	assert.InDelta(t, 5.0, g.Fitness(sol), 1e-9)
}

func TestRequestedTimePenaltyOf(t *testing.T) {
	p := RequestedTimePenalty{EarlyPerMinute: 1, LatePerMinute: 3}
	assert.Equal(t, 2.0, p.Of(480, 600))
	assert.Equal(t, 6.0, p.Of(720, 600))
	assert.Zero(t, p.Of(600, 600))
}
