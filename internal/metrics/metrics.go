package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the optimizer
	Registry = prometheus.NewRegistry()
	// Evaluations counts legality checks by outcome (legal, illegal)
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vrpgoal_move_evaluations_total", Help: "Candidate move legality checks by result."},
		[]string{"result"},
	)
	// Rejections counts illegal moves by the feature that rejected them
	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vrpgoal_move_rejections_total", Help: "Rejected candidate moves by feature."},
		[]string{"feature"},
	)
	// Acceptances counts committed moves
	Acceptances = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "vrpgoal_moves_accepted_total", Help: "Committed moves."},
	)
	// RefreshDuration records state refresh latency by scope (route, solution)
	RefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "vrpgoal_state_refresh_seconds", Help: "State refresh duration in seconds.", Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 0.1}},
		[]string{"scope"},
	)
	// SearchIterations counts iterations of the search engine
	SearchIterations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "vrpgoal_search_iterations_total", Help: "Search iterations executed."},
	)
	// BestFitness tracks the best fitness seen by the last search
	BestFitness = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "vrpgoal_search_best_fitness", Help: "Best fitness of the current search."},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(Evaluations)
		Registry.MustRegister(Rejections)
		Registry.MustRegister(Acceptances)
		Registry.MustRegister(RefreshDuration)
		Registry.MustRegister(SearchIterations)
		Registry.MustRegister(BestFitness)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
