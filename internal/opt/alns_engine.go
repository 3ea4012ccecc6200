package opt

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/klog/v2"

	"vrpgoal/internal/events"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/metrics"
	"vrpgoal/internal/solution"
	"vrpgoal/internal/transport"
)

// Params configures one search run. Zero values fall back to defaults.
type Params struct {
	Seed            int64
	TimeBudget      time.Duration
	IterationsLimit int     // optional iteration cap
	InitialTemp     float64 // initial temperature for SA
	Cooling         float64 // cooling factor per iteration
	MaxRemove       int     // removals per iteration are drawn from [1, MaxRemove]
	SnapshotEvery   int
	// [random, shaw]
	InitialRemovalWeights []float64
	// [greedy, regret2]
	InitialInsertionWeights []float64

	// Pinned jobs are never removed.
	Pinned    map[string]bool
	Transport transport.Transport
	RunID     string
	Events    events.Broker
	Log       logr.Logger
}

type Metrics struct {
	RemovalSelects        [2]int           `json:"removalSelects"` // random, shaw
	InsertSelects         [2]int           `json:"insertSelects"`  // greedy, regret2
	Iterations            int              `json:"iterations"`
	Improvements          int              `json:"improvements"`
	AcceptedWorse         int              `json:"acceptedWorse"`
	InitialFitness        float64          `json:"initialFitness"`
	BestFitness           float64          `json:"bestFitness"`
	FinalRemovalWeights   [2]float64       `json:"finalRemovalWeights"`
	FinalInsertionWeights [2]float64       `json:"finalInsertionWeights"`
	Relocations           int              `json:"relocations"`
	Snapshots             []WeightSnapshot `json:"snapshots,omitempty"`
	StopReason            string           `json:"stopReason"`
}

type WeightSnapshot struct {
	Iteration int        `json:"iteration"`
	Removal   [2]float64 `json:"removal"`
	Insertion [2]float64 `json:"insertion"`
	Fitness   float64    `json:"fitness"`
}

const (
	opRandom = iota
	opShaw
)

const (
	opGreedy = iota
	opRegret
)

type engine struct {
	g   *feature.Goal
	p   Params
	rng *rand.Rand
	log logr.Logger
	it  int
}

// Solve runs ALNS over a copy of sol: a greedy construction, then rounds of
// ruin (random or Shaw removal) and recreate (greedy or regret-2 insertion)
// under simulated-annealing acceptance. Every legality and cost question goes
// through g. The search stops at the time budget, the iteration limit or when
// ctx is done; the best solution found so far is returned in all three cases.
func Solve(ctx context.Context, g *feature.Goal, sol *solution.Solution, p Params) (*solution.Solution, Metrics, error) {
	p = withDefaults(p)
	e := &engine{g: g, p: p, rng: rand.New(rand.NewSource(p.Seed)), log: p.Log}

	cur := sol.Clone()
	m := Metrics{InitialFitness: g.Fitness(cur)}
	if err := e.insert(ctx, cur, opGreedy); err != nil {
		if ctx.Err() == nil {
			return nil, m, err
		}
		m.StopReason = "canceled"
		m.BestFitness = g.Fitness(cur)
		return cur, m, nil
	}
	n, err := e.relocate(ctx, cur)
	m.Relocations += n
	if err != nil && ctx.Err() == nil {
		return nil, m, err
	}
	curFit := g.Fitness(cur)
	best, bestFit := cur, curFit
	metrics.BestFitness.Set(bestFit)
	e.publish(events.Event{Type: events.TypeBestImproved, Fitness: bestFit})
	e.log.V(2).Info("Construction done", "run", p.RunID, "fitness", curFit, "unassigned", len(cur.Unassigned()))

	remW := []float64{p.InitialRemovalWeights[0], p.InitialRemovalWeights[1]}
	insW := []float64{p.InitialInsertionWeights[0], p.InitialInsertionWeights[1]}
	temp := p.InitialTemp
	deadline := time.Now().Add(p.TimeBudget)
	for {
		if ctx.Err() != nil {
			m.StopReason = "canceled"
			break
		}
		if p.TimeBudget > 0 && !time.Now().Before(deadline) {
			m.StopReason = "time budget"
			break
		}
		if p.IterationsLimit > 0 && m.Iterations >= p.IterationsLimit {
			m.StopReason = "iteration limit"
			break
		}
		m.Iterations++
		e.it = m.Iterations
		metrics.SearchIterations.Inc()

		k := 1 + e.rng.Intn(p.MaxRemove)
		op := selectOp(remW, e.rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW, e.rng)
		m.InsertSelects[ip]++

		cand := cur.Clone()
		var removed []string
		switch op {
		case opRandom:
			removed = e.randomRemoval(cand, k)
		case opShaw:
			removed = e.shawRemoval(cand, k)
		}
		e.remove(cand, removed)
		if err := e.insert(ctx, cand, ip); err != nil {
			if ctx.Err() != nil {
				m.StopReason = "canceled"
				break
			}
			return best, m, err
		}

		fit := g.Fitness(cand)
		if fit < bestFit {
			// polish candidates that would become the new best
			n, err := e.relocate(ctx, cand)
			m.Relocations += n
			if err != nil && ctx.Err() == nil {
				return best, m, err
			}
			fit = g.Fitness(cand)
		}
		delta := fit - curFit
		if delta < 0 || e.rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			cur, curFit = cand, fit
			e.publish(events.Event{Type: events.TypeSolutionAccepted, Fitness: fit})
			if fit < bestFit {
				best, bestFit = cand, fit
				remW[op] += 0.1
				insW[ip] += 0.1
				m.Improvements++
				metrics.BestFitness.Set(bestFit)
				e.publish(events.Event{Type: events.TypeBestImproved, Fitness: bestFit})
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				m.AcceptedWorse++
			}
		} else {
			// slight penalty for non-acceptance
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= p.Cooling
		e.log.V(4).Info("Iteration", "run", p.RunID, "iteration", m.Iterations, "removed", len(removed), "fitness", fit, "best", bestFit)
		if m.Iterations%p.SnapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{
				Iteration: m.Iterations,
				Removal:   [2]float64{remW[0], remW[1]},
				Insertion: [2]float64{insW[0], insW[1]},
				Fitness:   bestFit,
			})
		}
	}
	m.BestFitness = bestFit
	m.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	m.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	e.it = m.Iterations
	e.publish(events.Event{Type: events.TypeRunFinished, Fitness: bestFit})
	e.log.V(2).Info("Search finished", "run", p.RunID, "iterations", m.Iterations, "improvements", m.Improvements, "best", bestFit, "reason", m.StopReason)
	return best, m, nil
}

func withDefaults(p Params) Params {
	if p.Seed == 0 {
		p.Seed = time.Now().UnixNano()
	}
	if p.InitialTemp <= 0 {
		p.InitialTemp = 1
	}
	if p.Cooling <= 0 || p.Cooling >= 1 {
		p.Cooling = 0.995
	}
	if p.MaxRemove <= 0 {
		p.MaxRemove = 3
	}
	if p.SnapshotEvery <= 0 {
		p.SnapshotEvery = 50
	}
	if len(p.InitialRemovalWeights) != 2 {
		p.InitialRemovalWeights = []float64{1, 1}
	}
	if len(p.InitialInsertionWeights) != 2 {
		p.InitialInsertionWeights = []float64{1, 1}
	}
	if p.Transport == nil {
		p.Transport = transport.NewHaversine(0)
	}
	if p.Events == nil {
		p.Events = events.Discard{}
	}
	if p.Log.GetSink() == nil {
		p.Log = klog.Background().WithName("alns")
	}
	if p.TimeBudget <= 0 && p.IterationsLimit <= 0 {
		p.IterationsLimit = 1000
	}
	return p
}

func (e *engine) publish(evt events.Event) {
	evt.RunID = e.p.RunID
	evt.Iteration = e.it
	evt.At = time.Now()
	e.p.Events.Publish(e.p.RunID, evt)
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
