// Package opt is the reference search core. It proposes insertions, asks the
// goal whether they are legal and what they cost, and commits the chosen
// ones; it never looks at jobs or vehicles beyond that.
package opt

import (
	"context"

	"github.com/go-logr/logr"

	"vrpgoal/internal/config"
	"vrpgoal/internal/events"
	"vrpgoal/internal/problem"
	"vrpgoal/internal/solution"
	"vrpgoal/internal/transport"
)

// ParamsFromConfig maps solver settings onto search parameters.
func ParamsFromConfig(s config.Search) Params {
	p := Params{}
	if s.Seed != nil {
		p.Seed = *s.Seed
	}
	if s.TimeBudget != nil {
		p.TimeBudget = *s.TimeBudget
	}
	if s.Iterations != nil {
		p.IterationsLimit = *s.Iterations
	}
	if s.InitialTemp != nil {
		p.InitialTemp = *s.InitialTemp
	}
	if s.Cooling != nil {
		p.Cooling = *s.Cooling
	}
	if s.SpeedKph != nil {
		p.Transport = transport.NewHaversine(*s.SpeedKph)
	}
	return p
}

// Optimize searches a built problem instance.
func Optimize(ctx context.Context, inst *problem.Instance, s config.Search, runID string, broker events.Broker, log logr.Logger) (*solution.Solution, Metrics, error) {
	p := ParamsFromConfig(s)
	p.Pinned = inst.Pinned
	p.RunID = runID
	p.Events = broker
	p.Log = log
	return Solve(ctx, inst.Goal, inst.Solution, p)
}
