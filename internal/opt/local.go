package opt

import (
	"context"

	"vrpgoal/internal/solution"
)

const relocatePasses = 3

// relocate is an or-opt pass over single jobs: each job is taken off its
// route and put back at its cheapest legal position, kept only when the
// fitness drops. Returns the number of kept relocations.
func (e *engine) relocate(ctx context.Context, sol *solution.Solution) (int, error) {
	moved := 0
	for pass := 0; pass < relocatePasses; pass++ {
		improved := false
		for _, job := range e.removable(sol) {
			if err := ctx.Err(); err != nil {
				return moved, err
			}
			before := e.g.Fitness(sol)
			r := sol.RouteOf(job.ID)
			home := solution.Move{Job: job, Route: r, Position: r.IndexOf(job.ID)}
			e.remove(sol, []string{job.ID})

			o, err := e.bestInsertion(ctx, sol, job)
			if err != nil {
				// put it back before giving up
				if cerr := e.g.Commit(sol, home); cerr != nil {
					return moved, cerr
				}
				return moved, err
			}
			if o.found && (o.best.Move.Route != home.Route || o.best.Move.Position != home.Position) {
				if err := e.g.Commit(sol, o.best.Move); err != nil {
					return moved, err
				}
				if e.g.Fitness(sol) < before-1e-9 {
					moved++
					improved = true
					continue
				}
				e.remove(sol, []string{job.ID})
			}
			if err := e.g.Commit(sol, home); err != nil {
				return moved, err
			}
		}
		if !improved {
			break
		}
	}
	return moved, nil
}
