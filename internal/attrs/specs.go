package attrs

// SkillSpec is a hard requirement a vehicle's token set must satisfy.
type SkillSpec struct {
	RequireAll Tokens
	RequireAny Tokens
	ForbidAll  Tokens
}

// NewSkillSpec normalizes the three lists. ok is false when all of them are
// empty, in which case nothing should be stored.
func NewSkillSpec(requireAll, requireAny, forbidAll []string) (spec SkillSpec, ok bool) {
	spec = SkillSpec{
		RequireAll: NewTokens(requireAll...),
		RequireAny: NewTokens(requireAny...),
		ForbidAll:  NewTokens(forbidAll...),
	}
	return spec, !spec.IsEmpty()
}

// IsEmpty reports whether the spec restricts nothing.
func (s SkillSpec) IsEmpty() bool {
	return s.RequireAll == nil && s.RequireAny == nil && s.ForbidAll == nil
}

// Satisfied reports whether the vehicle token set meets the requirement.
func (s SkillSpec) Satisfied(vehicle Tokens) bool {
	for t := range s.RequireAll {
		if !vehicle.Has(t) {
			return false
		}
	}
	if s.RequireAny != nil && !Intersects(s.RequireAny, vehicle) {
		return false
	}
	if s.ForbidAll != nil && Intersects(s.ForbidAll, vehicle) {
		return false
	}
	return true
}

// PenaltyOverrides replaces individual preference penalty weights for one
// job. Nil fields fall back to the feature's configured weights.
type PenaltyOverrides struct {
	NoPreferredMatch  *float64
	NoAcceptableMatch *float64
	PerAvoidedPresent *float64
}

// PreferenceSpec expresses soft wishes about the serving vehicle.
type PreferenceSpec struct {
	Preferred  Tokens
	Acceptable Tokens
	Avoid      Tokens
	// Weight multiplies the whole penalty. Defaults to 1.
	Weight    float64
	Overrides PenaltyOverrides
}

// NewPreferenceSpec normalizes the lists and sets Weight to 1. ok is false
// when no list is given.
func NewPreferenceSpec(preferred, acceptable, avoid []string) (spec PreferenceSpec, ok bool) {
	spec = PreferenceSpec{
		Preferred:  NewTokens(preferred...),
		Acceptable: NewTokens(acceptable...),
		Avoid:      NewTokens(avoid...),
		Weight:     1,
	}
	return spec, !spec.IsEmpty()
}

// IsEmpty reports whether the spec carries no token list.
func (p PreferenceSpec) IsEmpty() bool {
	return p.Preferred == nil && p.Acceptable == nil && p.Avoid == nil
}

// HasPreferredMatch is false when Preferred is not specified.
func (p PreferenceSpec) HasPreferredMatch(vehicle Tokens) bool {
	return p.Preferred != nil && Intersects(p.Preferred, vehicle)
}

// HasAcceptableMatch is false when Acceptable is not specified.
func (p PreferenceSpec) HasAcceptableMatch(vehicle Tokens) bool {
	return p.Acceptable != nil && Intersects(p.Acceptable, vehicle)
}

// CountAvoided counts avoided tokens present on the vehicle.
func (p PreferenceSpec) CountAvoided(vehicle Tokens) int {
	return CountIn(p.Avoid, vehicle)
}
