package features

import (
	"vrpgoal/internal/attrs"
	"vrpgoal/internal/feature"
	"vrpgoal/internal/solution"
)

// NewSkills builds the hard skill constraint. It has no objective and no
// state; each check costs O(|requirement|).
func NewSkills() (feature.Feature, error) {
	return feature.NewBuilder(NameSkills).WithConstraint(skillsConstraint{}).Build()
}

type skillsConstraint struct{}

func (skillsConstraint) Evaluate(m solution.Move) *feature.Violation {
	spec, ok := attrs.Skills.Get(m.Job.Attrs)
	if !ok {
		return nil
	}
	if reason := skillsMismatch(spec, m.Vehicle().Tokens); reason != "" {
		return &feature.Violation{Code: CodeSkills, Reason: reason}
	}
	return nil
}

func skillsMismatch(spec attrs.SkillSpec, vehicle attrs.Tokens) string {
	for t := range spec.RequireAll {
		if !vehicle.Has(t) {
			return "vehicle lacks required skill " + t
		}
	}
	if spec.RequireAny != nil && !attrs.Intersects(spec.RequireAny, vehicle) {
		return "vehicle has none of the alternative skills"
	}
	for t := range spec.ForbidAll {
		if vehicle.Has(t) {
			return "vehicle has forbidden skill " + t
		}
	}
	return ""
}
