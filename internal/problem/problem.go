// Package problem loads routing problems from YAML, populates and freezes the
// job attribute stores, seeds locked jobs onto their routes and assembles the
// goal used by the search.
package problem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"vrpgoal/internal/attrs"
	"vrpgoal/internal/config"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/features"
	"vrpgoal/internal/model"
	"vrpgoal/internal/solution"
	"vrpgoal/internal/transport"
)

var ErrInvalid = errors.New("invalid problem")

// Problem is a loaded, frozen problem definition.
type Problem struct {
	Vehicles []*model.Vehicle
	Jobs     []*model.Job
	Locks    []model.SequenceLock
}

// File is the YAML document layout.
type File struct {
	Vehicles []VehicleIn `yaml:"vehicles"`
	Jobs     []JobIn     `yaml:"jobs"`
	Locks    []LockIn    `yaml:"locks"`
}

type VehicleIn struct {
	ID              string            `yaml:"id"`
	Capacity        []float64         `yaml:"capacity"`
	CapacityConfigs [][]float64       `yaml:"capacityConfigs"`
	Start           *model.Location   `yaml:"start"`
	End             *model.Location   `yaml:"end"`
	Shift           *model.TimeWindow `yaml:"shift"`
	Tokens          []string          `yaml:"tokens"`
}

type JobIn struct {
	ID            string            `yaml:"id"`
	Location      model.Location    `yaml:"location"`
	Demand        []float64         `yaml:"demand"`
	TimeWindow    *model.TimeWindow `yaml:"timeWindow"`
	Service       float64           `yaml:"service"`
	Skills        *SkillsIn         `yaml:"skills"`
	Preferences   *PreferencesIn    `yaml:"preferences"`
	Via           *int              `yaml:"via"`
	RequestedTime *float64          `yaml:"requestedTime"`
}

type SkillsIn struct {
	RequireAll []string `yaml:"requireAll"`
	RequireAny []string `yaml:"requireAny"`
	ForbidAll  []string `yaml:"forbidAll"`
}

type PreferencesIn struct {
	Preferred         []string `yaml:"preferred"`
	Acceptable        []string `yaml:"acceptable"`
	Avoid             []string `yaml:"avoid"`
	Weight            *float64 `yaml:"weight"`
	NoPreferredMatch  *float64 `yaml:"noPreferredMatch"`
	NoAcceptableMatch *float64 `yaml:"noAcceptableMatch"`
	PerAvoidedPresent *float64 `yaml:"perAvoidedPresent"`
}

type LockIn struct {
	VehicleID string   `yaml:"vehicleId"`
	Jobs      []string `yaml:"jobs"`
	Strict    bool     `yaml:"strict"`
	Position  string   `yaml:"position"`
}

// LoadFile reads and converts a YAML problem file.
func LoadFile(path string) (*Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open problem: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a YAML problem. All structural problems are reported
// together.
func Parse(r io.Reader) (*Problem, error) {
	var in File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode problem: %w", err)
	}
	return in.Convert()
}

// Convert validates the document and builds frozen domain objects.
func (in File) Convert() (*Problem, error) {
	var errs error
	p := &Problem{}
	seen := map[string]bool{}
	for i, vi := range in.Vehicles {
		if strings.TrimSpace(vi.ID) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: vehicle %d has no id", ErrInvalid, i))
			continue
		}
		if seen[vi.ID] {
			errs = multierr.Append(errs, fmt.Errorf("%w: duplicate vehicle id %q", ErrInvalid, vi.ID))
			continue
		}
		seen[vi.ID] = true
		if err := checkWindow("vehicle "+vi.ID+" shift", vi.Shift); err != nil {
			errs = multierr.Append(errs, err)
		}
		v := &model.Vehicle{
			ID:              vi.ID,
			Capacity:        vi.Capacity,
			CapacityConfigs: vi.CapacityConfigs,
			Start:           vi.Start,
			End:             vi.End,
			Shift:           vi.Shift,
			Tokens:          attrs.NewTokens(vi.Tokens...),
			Attrs:           attrs.New(),
		}
		v.Attrs.Freeze()
		p.Vehicles = append(p.Vehicles, v)
	}

	seen = map[string]bool{}
	for i, ji := range in.Jobs {
		if strings.TrimSpace(ji.ID) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: job %d has no id", ErrInvalid, i))
			continue
		}
		if seen[ji.ID] {
			errs = multierr.Append(errs, fmt.Errorf("%w: duplicate job id %q", ErrInvalid, ji.ID))
			continue
		}
		seen[ji.ID] = true
		j, err := ji.job()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		p.Jobs = append(p.Jobs, j)
	}

	for i, li := range in.Locks {
		pos, err := model.ParseLockPosition(li.Position)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: lock %d: %v", ErrInvalid, i, err))
			continue
		}
		p.Locks = append(p.Locks, model.SequenceLock{
			VehicleID: li.VehicleID,
			JobIDs:    li.Jobs,
			Strict:    li.Strict,
			Position:  pos,
		})
	}
	if errs != nil {
		return nil, errs
	}
	return p, nil
}

func (ji JobIn) job() (*model.Job, error) {
	var errs error
	if err := checkWindow("job "+ji.ID+" time window", ji.TimeWindow); err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, d := range ji.Demand {
		if d < 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: job %s has negative demand", ErrInvalid, ji.ID))
			break
		}
	}
	if ji.Service < 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: job %s has negative service time", ErrInvalid, ji.ID))
	}

	j := &model.Job{
		ID:         ji.ID,
		Location:   ji.Location,
		Demand:     ji.Demand,
		TimeWindow: ji.TimeWindow,
		ServiceSec: ji.Service,
		Attrs:      attrs.New(),
	}
	if s := ji.Skills; s != nil {
		if spec, ok := attrs.NewSkillSpec(s.RequireAll, s.RequireAny, s.ForbidAll); ok {
			attrs.Skills.Set(j.Attrs, spec)
		}
	}
	if pi := ji.Preferences; pi != nil {
		if spec, ok := attrs.NewPreferenceSpec(pi.Preferred, pi.Acceptable, pi.Avoid); ok {
			if pi.Weight != nil {
				if *pi.Weight < 0 {
					errs = multierr.Append(errs, fmt.Errorf("%w: job %s has a negative preference weight", ErrInvalid, ji.ID))
				}
				spec.Weight = *pi.Weight
			}
			spec.Overrides = attrs.PenaltyOverrides{
				NoPreferredMatch:  pi.NoPreferredMatch,
				NoAcceptableMatch: pi.NoAcceptableMatch,
				PerAvoidedPresent: pi.PerAvoidedPresent,
			}
			for _, o := range []*float64{pi.NoPreferredMatch, pi.NoAcceptableMatch, pi.PerAvoidedPresent} {
				if o != nil && *o < 0 {
					errs = multierr.Append(errs, fmt.Errorf("%w: job %s has a negative preference override", ErrInvalid, ji.ID))
					break
				}
			}
			attrs.Preferences.Set(j.Attrs, spec)
		}
	}
	if ji.Via != nil {
		attrs.ViaOrder.Set(j.Attrs, *ji.Via)
	}
	if ji.RequestedTime != nil {
		attrs.RequestedTime.Set(j.Attrs, *ji.RequestedTime)
	}
	j.Attrs.Freeze()
	if errs != nil {
		return nil, errs
	}
	return j, nil
}

func checkWindow(what string, tw *model.TimeWindow) error {
	if tw != nil && tw.Start > tw.End {
		return fmt.Errorf("%w: %s starts after it ends", ErrInvalid, what)
	}
	return nil
}

// NewSolution creates the initial solution: locked jobs are placed on their
// vehicle in lock order, everything else is unassigned. Departure-anchored
// locks go first on a route and arrival-anchored ones last.
func (p *Problem) NewSolution() (*solution.Solution, error) {
	sol, err := solution.New(p.Vehicles, p.Jobs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	locks := append([]model.SequenceLock(nil), p.Locks...)
	sort.SliceStable(locks, func(a, b int) bool { return anchorRank(locks[a].Position) < anchorRank(locks[b].Position) })
	for _, l := range locks {
		r := sol.RouteByVehicle(l.VehicleID)
		if r == nil {
			// reported by the lock feature
			continue
		}
		for _, id := range l.JobIDs {
			j, ok := sol.Job(id)
			if !ok || sol.RouteOf(id) != nil {
				continue
			}
			r.Lock()
			err := sol.Apply(solution.Move{Job: j, Route: r, Position: r.Len()})
			r.Unlock()
			if err != nil {
				return nil, err
			}
		}
	}
	return sol, nil
}

func anchorRank(p model.LockPosition) int {
	switch p {
	case model.LockDeparture, model.LockFixed:
		return 0
	case model.LockArrival:
		return 2
	}
	return 1
}

// Instance is a problem ready to be searched.
type Instance struct {
	Problem  *Problem
	Solution *solution.Solution
	Goal     *feature.Goal
	// Pinned jobs belong to a lock and are never removed by the search.
	Pinned map[string]bool
}

// Features assembles the feature list in evaluation order: cheap hard
// constraints first.
func Features(cfg config.Config, sol *solution.Solution, locks []model.SequenceLock, tr transport.Transport) ([]feature.Feature, error) {
	w := cfg.Weights
	builders := []func() (feature.Feature, error){
		features.NewSkills,
		func() (feature.Feature, error) { return features.NewSequenceLocks(locks, sol) },
		features.NewCapacity,
		func() (feature.Feature, error) { return features.NewSchedule(tr, w.RequestedTime()) },
		func() (feature.Feature, error) { return features.NewPreferences(w.Preferences()) },
		func() (feature.Feature, error) { return features.NewViaOrdering(*w.ViaInversion) },
		func() (feature.Feature, error) { return features.NewUnassigned(w.UnassignedWeights()) },
		func() (feature.Feature, error) { return features.NewTransportCost(tr, w.Transport()) },
	}
	var out []feature.Feature
	var errs error
	for _, b := range builders {
		f, err := b()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, f)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// Build turns a problem into a searchable instance with a refreshed initial
// solution. Weights in cfg must be set, as Load and Default guarantee.
func Build(p *Problem, cfg config.Config, log logr.Logger) (*Instance, error) {
	sol, err := p.NewSolution()
	if err != nil {
		return nil, err
	}
	tr := transport.NewHaversine(*cfg.Search.SpeedKph)
	fs, err := Features(cfg, sol, p.Locks, tr)
	if err != nil {
		return nil, err
	}
	opts := []feature.Option{feature.WithLogger(log.WithName("goal"))}
	if n := *cfg.Search.Concurrency; n > 0 {
		opts = append(opts, feature.WithConcurrency(n))
	}
	g, err := feature.NewGoal(fs, opts...)
	if err != nil {
		return nil, err
	}
	g.Init(sol)
	log.V(2).Info("Problem built", "vehicles", len(p.Vehicles), "jobs", len(p.Jobs), "locks", len(p.Locks), "unassigned", len(sol.Unassigned()))
	return &Instance{Problem: p, Solution: sol, Goal: g, Pinned: features.LockedJobs(p.Locks)}, nil
}
