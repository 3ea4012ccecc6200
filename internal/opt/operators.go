package opt

import (
	"context"
	"math"
	"sort"

	"vrpgoal/internal/events"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

// removable lists assigned jobs the search may take off their routes.
func (e *engine) removable(sol *solution.Solution) []*model.Job {
	var out []*model.Job
	for _, r := range sol.Routes {
		for _, j := range r.Jobs() {
			if !e.p.Pinned[j.ID] {
				out = append(out, j)
			}
		}
	}
	return out
}

func (e *engine) randomRemoval(sol *solution.Solution, k int) []string {
	all := e.removable(sol)
	var removed []string
	for i := 0; i < k && len(all) > 0; i++ {
		j := e.rng.Intn(len(all))
		removed = append(removed, all[j].ID)
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// shawRemoval selects k jobs related by geography and time windows.
func (e *engine) shawRemoval(sol *solution.Solution, k int) []string {
	assigned := e.removable(sol)
	if len(assigned) == 0 {
		return nil
	}
	seed := assigned[e.rng.Intn(len(assigned))]
	type pair struct {
		id    string
		score float64
	}
	rel := make([]pair, 0, len(assigned))
	for _, j := range assigned {
		if j.ID == seed.ID {
			continue
		}
		geo := e.p.Transport.Distance(seed.Location, j.Location)
		tw := 0.0
		if seed.TimeWindow != nil && j.TimeWindow != nil {
			tw = twOverlap(*seed.TimeWindow, *j.TimeWindow)
		}
		// prefer close in geo and overlapping TW
		rel = append(rel, pair{id: j.ID, score: geo - 1000.0*tw})
	}
	sort.SliceStable(rel, func(a, b int) bool { return rel[a].score < rel[b].score })
	removed := []string{seed.ID}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].id)
	}
	return removed
}

// twOverlap returns the overlap of two windows in seconds.
func twOverlap(a, b model.TimeWindow) float64 {
	return math.Max(0, math.Min(a.End, b.End)-math.Max(a.Start, b.Start))
}

// remove takes jobs off their routes and refreshes the touched routes.
func (e *engine) remove(sol *solution.Solution, ids []string) {
	var touched []*solution.Route
	seen := map[*solution.Route]bool{}
	for _, id := range ids {
		r := sol.RouteOf(id)
		if r == nil {
			continue
		}
		r.Lock()
		_, err := sol.Remove(id)
		r.Unlock()
		if err != nil {
			e.log.Error(err, "Remove failed", "job", id)
			continue
		}
		if !seen[r] {
			seen[r] = true
			touched = append(touched, r)
		}
	}
	if len(touched) > 0 {
		e.g.Refresh(sol, touched...)
	}
}

// option is the best and second best legal insertion of one job.
type option struct {
	job    *model.Job
	best   feature.Evaluation
	second float64
	found  bool
}

// bestInsertion evaluates job at every position of every route.
func (e *engine) bestInsertion(ctx context.Context, sol *solution.Solution, job *model.Job) (option, error) {
	var moves []solution.Move
	for _, r := range sol.Routes {
		for pos := 0; pos <= r.Len(); pos++ {
			moves = append(moves, solution.Move{Job: job, Route: r, Position: pos})
		}
	}
	evs, err := e.g.EvaluateAll(ctx, moves)
	if err != nil {
		return option{}, err
	}
	o := option{job: job, second: math.Inf(1)}
	for _, ev := range evs {
		if !ev.Legal {
			continue
		}
		switch {
		case !o.found || ev.Cost < o.best.Cost:
			if o.found {
				o.second = o.best.Cost
			}
			o.best, o.found = ev, true
		case ev.Cost < o.second:
			o.second = ev.Cost
		}
	}
	return o, nil
}

// insert places unassigned jobs until no legal insertion lowers the fitness
// estimate. Each round commits the preferred job of every route as one batch:
// greedy prefers the cheapest insertion, regret-2 the job that loses most
// when its best option disappears.
func (e *engine) insert(ctx context.Context, sol *solution.Solution, op int) error {
	for {
		picks := map[*solution.Route]option{}
		for _, job := range sol.Unassigned() {
			o, err := e.bestInsertion(ctx, sol, job)
			if err != nil {
				return err
			}
			if !o.found || o.best.Cost >= 0 {
				continue
			}
			r := o.best.Move.Route
			if cur, ok := picks[r]; !ok || better(op, o, cur) {
				picks[r] = o
			}
		}
		if len(picks) == 0 {
			return nil
		}
		var moves []solution.Move
		var chosen []option
		for _, r := range sol.Routes {
			if o, ok := picks[r]; ok {
				moves = append(moves, o.best.Move)
				chosen = append(chosen, o)
			}
		}
		if err := e.g.CommitBatch(ctx, sol, moves); err != nil {
			return err
		}
		for _, o := range chosen {
			e.publish(events.Event{
				Type:     events.TypeMoveCommitted,
				Job:      o.job.ID,
				Vehicle:  o.best.Move.Vehicle().ID,
				Position: o.best.Move.Position,
				Cost:     o.best.Cost,
			})
		}
	}
}

func better(op int, a, b option) bool {
	if op == opRegret {
		ra, rb := a.second-a.best.Cost, b.second-b.best.Cost
		if ra != rb {
			return ra > rb
		}
	}
	return a.best.Cost < b.best.Cost
}
