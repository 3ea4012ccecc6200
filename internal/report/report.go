// Package report turns a solved solution into read-only aggregates and
// explains why a job sits where it does.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"vrpgoal/internal/buildinfo"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/features"
	"vrpgoal/internal/opt"
	"vrpgoal/internal/solution"
)

var ErrUnknownJob = errors.New("unknown job")

type Stop struct {
	Job       string  `json:"job"`
	Arrival   float64 `json:"arrival"`
	Departure float64 `json:"departure"`
}

type Route struct {
	Vehicle              string    `json:"vehicle"`
	Stops                []Stop    `json:"stops"`
	PreferencePenalty    float64   `json:"preferencePenalty"`
	ViaInversions        int       `json:"viaInversions"`
	Load                 []float64 `json:"load,omitempty"`
	DistanceMeters       float64   `json:"distanceMeters"`
	DurationSeconds      float64   `json:"durationSeconds"`
	RequestedTimePenalty float64   `json:"requestedTimePenalty"`
}

type Report struct {
	ID                string             `json:"id"`
	CreatedAt         time.Time          `json:"createdAt"`
	Build             buildinfo.Info     `json:"build"`
	Fitness           float64            `json:"fitness"`
	Breakdown         map[string]float64 `json:"breakdown"`
	PreferencePenalty float64            `json:"preferencePenalty"`
	ViaInversions     int                `json:"viaInversions"`
	SkippedVia        int                `json:"skippedVia"`
	Unassigned        []string           `json:"unassigned"`
	Routes            []Route            `json:"routes"`
	Search            *opt.Metrics       `json:"search,omitempty"`
}

// Build reads the cached aggregates of a refreshed solution. Aggregates of
// features missing from the goal read as zero.
func Build(g *feature.Goal, sol *solution.Solution) Report {
	r := Report{
		ID:                uuid.New().String(),
		CreatedAt:         time.Now().UTC(),
		Build:             buildinfo.Get(),
		Fitness:           g.Fitness(sol),
		Breakdown:         g.FitnessBreakdown(sol),
		PreferencePenalty: features.TotalPreferencePenalty(sol),
		ViaInversions:     features.ViaInversions(sol),
		SkippedVia:        features.SkippedViaStops(sol),
		Unassigned:        []string{},
	}
	for _, j := range sol.Unassigned() {
		r.Unassigned = append(r.Unassigned, j.ID)
	}
	for _, rt := range sol.Routes {
		sched := features.RouteScheduleOf(rt)
		out := Route{
			Vehicle:              rt.Vehicle.ID,
			Stops:                make([]Stop, 0, rt.Len()),
			PreferencePenalty:    features.RoutePreferencePenalty(rt),
			ViaInversions:        solution.ViaInversions.Value(rt.State),
			Load:                 features.RouteLoad(rt),
			DistanceMeters:       features.RouteDistance(rt),
			DurationSeconds:      solution.Duration.Value(rt.State),
			RequestedTimePenalty: solution.RequestedTimePenalty.Value(rt.State),
		}
		for i, j := range rt.Jobs() {
			s := Stop{Job: j.ID}
			if i < len(sched.Visits) {
				s.Arrival, s.Departure = sched.Visits[i].Arrival, sched.Visits[i].Departure
			}
			out.Stops = append(out.Stops, s)
		}
		r.Routes = append(r.Routes, out)
	}
	return r
}

type Option struct {
	Vehicle   string             `json:"vehicle"`
	Position  int                `json:"position"`
	Legal     bool               `json:"legal"`
	Feature   string             `json:"feature,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Cost      float64            `json:"cost"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type Explanation struct {
	Job      string   `json:"job"`
	Vehicle  string   `json:"vehicle,omitempty"`
	Position int      `json:"position"`
	Options  []Option `json:"options"`
}

// Explain evaluates every position on every route for jobID, as if the job
// were unassigned. Legal options come first, cheapest first.
func Explain(g *feature.Goal, sol *solution.Solution, jobID string) (Explanation, error) {
	job, ok := sol.Job(jobID)
	if !ok {
		return Explanation{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	ex := Explanation{Job: jobID, Position: -1}
	view := sol
	if r := sol.RouteOf(jobID); r != nil {
		ex.Vehicle, ex.Position = r.Vehicle.ID, r.IndexOf(jobID)
		view = sol.Clone()
		vr := view.RouteOf(jobID)
		vr.Lock()
		_, err := view.Remove(jobID)
		vr.Unlock()
		if err != nil {
			return Explanation{}, err
		}
		g.Refresh(view, vr)
	}
	for _, r := range view.Routes {
		for pos := 0; pos <= r.Len(); pos++ {
			ev := g.Evaluate(solution.Move{Job: job, Route: r, Position: pos})
			o := Option{Vehicle: r.Vehicle.ID, Position: pos, Legal: ev.Legal, Cost: ev.Cost, Breakdown: ev.Breakdown}
			if v := ev.Violation; v != nil {
				o.Feature, o.Reason = v.Feature, v.Reason
			}
			ex.Options = append(ex.Options, o)
		}
	}
	sort.SliceStable(ex.Options, func(a, b int) bool {
		oa, ob := ex.Options[a], ex.Options[b]
		if oa.Legal != ob.Legal {
			return oa.Legal
		}
		return oa.Cost < ob.Cost
	})
	return ex, nil
}

// WriteText renders a report as aligned tables.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "fitness\t%.3f\n", r.Fitness)
	names := make([]string, 0, len(r.Breakdown))
	for n := range r.Breakdown {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(tw, "  %s\t%.3f\n", n, r.Breakdown[n])
	}
	fmt.Fprintf(tw, "preference penalty\t%.1f\n", r.PreferencePenalty)
	fmt.Fprintf(tw, "via inversions\t%d\n", r.ViaInversions)
	fmt.Fprintf(tw, "skipped via stops\t%d\n", r.SkippedVia)
	fmt.Fprintf(tw, "unassigned\t%s\n", strings.Join(r.Unassigned, ","))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "VEHICLE\tSTOPS\tKM\tPREF\tLOAD\tSEQUENCE")
	for _, rt := range r.Routes {
		ids := make([]string, len(rt.Stops))
		for i, s := range rt.Stops {
			ids[i] = s.Job
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.1f\t%v\t%s\n", rt.Vehicle, len(rt.Stops), rt.DistanceMeters/1000, rt.PreferencePenalty, rt.Load, strings.Join(ids, " > "))
	}
	return tw.Flush()
}

// WriteExplanation renders the options for one job.
func WriteExplanation(w io.Writer, ex Explanation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if ex.Vehicle != "" {
		fmt.Fprintf(tw, "%s is on %s at position %d\n\n", ex.Job, ex.Vehicle, ex.Position)
	} else {
		fmt.Fprintf(tw, "%s is unassigned\n\n", ex.Job)
	}
	fmt.Fprintln(tw, "VEHICLE\tPOS\tLEGAL\tCOST\tREJECTED BY")
	for _, o := range ex.Options {
		rej := ""
		if !o.Legal {
			rej = o.Feature + ": " + o.Reason
		}
		fmt.Fprintf(tw, "%s\t%d\t%t\t%.3f\t%s\n", o.Vehicle, o.Position, o.Legal, o.Cost, rej)
	}
	return tw.Flush()
}
