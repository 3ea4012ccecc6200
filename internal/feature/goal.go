package feature

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"vrpgoal/internal/metrics"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
)

// Goal is the ordered composition of features consulted by the search core.
// It is immutable after NewGoal and safe to share between goroutines.
type Goal struct {
	features    []Feature
	constraints []constraintEntry
	objectives  []objectiveEntry
	states      []State

	log         logr.Logger
	concurrency int
	legal       prometheus.Counter
	illegal     prometheus.Counter
}

type constraintEntry struct {
	name     string
	c        Constraint
	rejected prometheus.Counter
}

type objectiveEntry struct {
	name string
	o    Objective
}

// Option configures a Goal.
type Option func(*Goal)

// WithLogger sets the goal's logger.
func WithLogger(l logr.Logger) Option { return func(g *Goal) { g.log = l } }

// WithConcurrency bounds EvaluateAll and CommitBatch parallelism.
func WithConcurrency(n int) Option {
	return func(g *Goal) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// NewGoal validates and freezes the feature list. Feature order is the order
// in which constraints are checked and state hooks run.
func NewGoal(features []Feature, opts ...Option) (*Goal, error) {
	g := &Goal{
		log:         klog.Background().WithName("goal"),
		concurrency: runtime.GOMAXPROCS(0),
		legal:       metrics.Evaluations.WithLabelValues("legal"),
		illegal:     metrics.Evaluations.WithLabelValues("illegal"),
	}
	for _, o := range opts {
		o(g)
	}
	seen := map[string]bool{}
	names := make([]string, 0, len(features))
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFeature, f.Name)
		}
		seen[f.Name] = true
		names = append(names, f.Name)
		g.features = append(g.features, f)
		if f.Constraint != nil {
			g.constraints = append(g.constraints, constraintEntry{name: f.Name, c: f.Constraint, rejected: metrics.Rejections.WithLabelValues(f.Name)})
		}
		if f.Objective != nil {
			g.objectives = append(g.objectives, objectiveEntry{name: f.Name, o: f.Objective})
		}
		if f.State != nil {
			g.states = append(g.states, f.State)
		}
	}
	g.log.V(2).Info("Goal assembled", "features", names, "constraints", len(g.constraints), "objectives", len(g.objectives), "states", len(g.states))
	return g, nil
}

// Features returns a copy of the feature list.
func (g *Goal) Features() []Feature { return append([]Feature(nil), g.features...) }

// Feature looks a feature up by name.
func (g *Goal) Feature(name string) (Feature, bool) {
	for _, f := range g.features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// Check returns the first violation, or nil when every constraint accepts.
func (g *Goal) Check(m solution.Move) *Violation {
	for _, ce := range g.constraints {
		if v := ce.c.Evaluate(m); v != nil {
			v.Feature = ce.name
			ce.rejected.Inc()
			g.illegal.Inc()
			return v
		}
	}
	g.legal.Inc()
	return nil
}

// IsLegal short-circuits on the first rejecting feature.
func (g *Goal) IsLegal(m solution.Move) bool { return g.Check(m) == nil }

// Estimate sums the objectives' marginal costs. It has no side effects.
func (g *Goal) Estimate(m solution.Move) float64 {
	total := 0.0
	for _, oe := range g.objectives {
		total += oe.o.Estimate(m)
	}
	return total
}

// Evaluation is the full verdict on one candidate move.
type Evaluation struct {
	Move      solution.Move
	Legal     bool
	Violation *Violation
	Cost      float64
	Breakdown map[string]float64
}

// Evaluate checks legality and estimates cost with a per-feature breakdown.
// The cost is computed for illegal moves too, to explain decisions.
func (g *Goal) Evaluate(m solution.Move) Evaluation {
	ev := Evaluation{Move: m, Breakdown: make(map[string]float64, len(g.objectives))}
	ev.Violation = g.Check(m)
	ev.Legal = ev.Violation == nil
	for _, oe := range g.objectives {
		c := oe.o.Estimate(m)
		ev.Breakdown[oe.name] = c
		ev.Cost += c
	}
	return ev
}

// EvaluateAll evaluates independent candidates concurrently. Results keep the
// order of moves.
func (g *Goal) EvaluateAll(ctx context.Context, moves []solution.Move) ([]Evaluation, error) {
	out := make([]Evaluation, len(moves))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i := range moves {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = g.Evaluate(moves[i])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Fitness sums every objective over the solution. Solution state must be
// fresh.
func (g *Goal) Fitness(sol *solution.Solution) float64 {
	total := 0.0
	for _, oe := range g.objectives {
		total += oe.o.Fitness(sol)
	}
	return total
}

// FitnessBreakdown reports Fitness per objective feature.
func (g *Goal) FitnessBreakdown(sol *solution.Solution) map[string]float64 {
	out := make(map[string]float64, len(g.objectives))
	for _, oe := range g.objectives {
		out[oe.name] = oe.o.Fitness(sol)
	}
	return out
}

// Init refreshes every route and then the solution. Call it once before
// search starts.
func (g *Goal) Init(sol *solution.Solution) {
	g.Refresh(sol, sol.Routes...)
}

// Accept runs the state hooks for a job accepted onto r: the route first,
// then the solution once the route refresh completed.
func (g *Goal) Accept(sol *solution.Solution, r *solution.Route, job *model.Job) {
	r.Lock()
	g.refreshRoute(r)
	r.Unlock()
	g.refreshSolution(sol)
	g.log.V(5).Info("Job accepted", "job", job.ID, "vehicle", r.Vehicle.ID)
}

// Refresh rebuilds state after mutations that are not insertions, such as
// removals made by a ruin operator.
func (g *Goal) Refresh(sol *solution.Solution, routes ...*solution.Route) {
	for _, r := range routes {
		r.Lock()
		g.refreshRoute(r)
		r.Unlock()
	}
	g.refreshSolution(sol)
}

// Commit applies one move inside its route's exclusive section and runs
// Accept. Use CommitBatch when several routes change at once.
func (g *Goal) Commit(sol *solution.Solution, m solution.Move) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.Route.Lock()
	err := sol.Apply(m)
	if err == nil {
		g.refreshRoute(m.Route)
	}
	m.Route.Unlock()
	if err != nil {
		return err
	}
	g.refreshSolution(sol)
	metrics.Acceptances.Inc()
	g.log.V(5).Info("Move committed", "move", m.String())
	return nil
}

// CommitBatch applies moves grouped by route. Moves on one route are applied
// in slice order, so positions must account for earlier moves of the batch.
// Distinct routes are processed in parallel; the solution is refreshed once,
// after every route refresh completed, even when a move fails.
func (g *Goal) CommitBatch(ctx context.Context, sol *solution.Solution, moves []solution.Move) error {
	var order []*solution.Route
	byRoute := map[*solution.Route][]solution.Move{}
	for _, m := range moves {
		// positions depend on earlier moves of the batch; Apply checks them
		if m.Job == nil || m.Route == nil {
			return fmt.Errorf("%w: move needs a job and a route", solution.ErrInvalidMove)
		}
		if _, ok := byRoute[m.Route]; !ok {
			order = append(order, m.Route)
		}
		byRoute[m.Route] = append(byRoute[m.Route], m)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for _, r := range order {
		eg.Go(func() error {
			r.Lock()
			defer r.Unlock()
			applied := 0
			var err error
			for _, m := range byRoute[r] {
				if err = ctx.Err(); err != nil {
					break
				}
				if err = sol.Apply(m); err != nil {
					err = fmt.Errorf("commit %s: %w", m, err)
					break
				}
				applied++
			}
			if applied > 0 {
				g.refreshRoute(r)
				metrics.Acceptances.Add(float64(applied))
			}
			return err
		})
	}
	err := eg.Wait()
	g.refreshSolution(sol)
	return err
}

// refreshRoute rebuilds r's state. The caller holds r's exclusive section.
func (g *Goal) refreshRoute(r *solution.Route) {
	start := time.Now()
	r.State.Begin()
	for _, st := range g.states {
		st.AcceptRouteState(r)
	}
	r.State.Commit()
	metrics.RefreshDuration.WithLabelValues("route").Observe(time.Since(start).Seconds())
}

func (g *Goal) refreshSolution(sol *solution.Solution) {
	start := time.Now()
	sol.LockState()
	defer sol.UnlockState()
	sol.State.Begin()
	for _, st := range g.states {
		st.AcceptSolutionState(sol)
	}
	sol.State.Commit()
	metrics.RefreshDuration.WithLabelValues("solution").Observe(time.Since(start).Seconds())
}
