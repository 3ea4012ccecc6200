// Package features implements the optimizer's built-in features: hard skill
// matching, soft vehicle preferences, sequence locks, via-stop ordering, the
// unassigned-job penalty, capacity, travel cost and schedule rules.
//
// Every feature treats a missing job attribute as "no restriction" and "no
// preference". None of them returns an error while searching; structural
// misconfiguration is reported when the feature is built.
package features

// Feature names.
const (
	NameSkills      = "skills"
	NamePreferences = "preferences"
	NameLocks       = "sequence_locks"
	NameVia         = "via_ordering"
	NameUnassigned  = "unassigned"
	NameCapacity    = "capacity"
	NameTransport   = "transport"
	NameSchedule    = "schedule"
)

// Violation codes reported by the hard constraints.
const (
	CodeSkills = iota + 1
	CodeLock
	CodeCapacity
	CodeTimeWindow
)
