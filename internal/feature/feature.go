// Package feature is the extension mechanism of the optimizer.
//
// A Feature bundles up to three capabilities: a hard Constraint deciding
// whether a candidate move is legal, an Objective estimating its marginal
// cost, and a State hook maintaining cached aggregates when moves are
// accepted. A Goal composes an ordered, immutable list of features and is the
// only thing the search core talks to.
package feature

import (
	"errors"
	"fmt"

	"vrpgoal/internal/solution"
)

var (
	ErrNoName           = errors.New("feature has no name")
	ErrNoCapability     = errors.New("feature has no constraint, objective or state")
	ErrDuplicateFeature = errors.New("duplicate feature name")
)

// Violation explains why a move is illegal.
type Violation struct {
	Feature string
	Code    int
	Reason  string
}

func (v *Violation) Error() string {
	if v.Reason == "" {
		return fmt.Sprintf("%s: violation %d", v.Feature, v.Code)
	}
	return fmt.Sprintf("%s: %s", v.Feature, v.Reason)
}

// Constraint is a hard rule. Evaluate returns nil for a legal move. It must
// not mutate anything and must be safe for concurrent calls; constraints are
// independent, so their order never changes the accept/reject decision.
type Constraint interface {
	Evaluate(m solution.Move) *Violation
}

// Objective is a soft rule.
type Objective interface {
	// Fitness is the objective's value for the whole solution. It reads the
	// solution state maintained by the feature's State, if any.
	Fitness(sol *solution.Solution) float64
	// Estimate is the marginal cost of the move. It must be pure.
	Estimate(m solution.Move) float64
}

// State maintains cached aggregates. Hooks run while the route or solution
// state is being refreshed and write it through solution.StateKey values.
type State interface {
	AcceptRouteState(r *solution.Route)
	AcceptSolutionState(sol *solution.Solution)
}

// Feature is one named unit of rules.
type Feature struct {
	Name       string
	Constraint Constraint
	Objective  Objective
	State      State
}

// Validate checks the feature carries a name and at least one capability.
func (f Feature) Validate() error {
	if f.Name == "" {
		return ErrNoName
	}
	if f.Constraint == nil && f.Objective == nil && f.State == nil {
		return fmt.Errorf("%w: %s", ErrNoCapability, f.Name)
	}
	return nil
}

// Builder assembles a Feature.
type Builder struct {
	f Feature
}

func NewBuilder(name string) *Builder { return &Builder{f: Feature{Name: name}} }

func (b *Builder) WithConstraint(c Constraint) *Builder { b.f.Constraint = c; return b }

func (b *Builder) WithObjective(o Objective) *Builder { b.f.Objective = o; return b }

func (b *Builder) WithState(s State) *Builder { b.f.State = s; return b }

func (b *Builder) Build() (Feature, error) {
	if err := b.f.Validate(); err != nil {
		return Feature{}, err
	}
	return b.f, nil
}
