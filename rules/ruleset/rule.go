// Package ruleset loads the declarative hazard rules and validates every
// filter at load time, so evaluation never meets an unknown or malformed clause.
package ruleset

import (
	"fmt"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// SupportedVersion is the only rules document version accepted.
const SupportedVersion = 1

// Defaults applied when a rule's then block omits a field.
const (
	DefaultSeverity    = models.SeverityWarning
	DefaultHazardScore = 50.0
)

// FilterKind tags the variant held by a Filter.
type FilterKind int

const (
	FilterExact FilterKind = iota + 1
	FilterSetMembership
	FilterNumericThreshold
	FilterTemporalCorrelation
)

func (k FilterKind) String() string {
	switch k {
	case FilterExact:
		return "exact"
	case FilterSetMembership:
		return "set_membership"
	case FilterNumericThreshold:
		return "numeric_threshold"
	case FilterTemporalCorrelation:
		return "temporal_correlation"
	default:
		return fmt.Sprintf("filter_kind(%d)", int(k))
	}
}

// Filter is one clause of a rule predicate. Which fields are meaningful
// depends on Kind:
//
//	exact                 Field, Equals
//	set_membership        Field, OneOf
//	numeric_threshold     Field, Min
//	temporal_correlation  Recent
type Filter struct {
	Kind   FilterKind
	Field  string
	Equals models.Value
	OneOf  []models.Value
	Min    float64
	Recent *RecentCondition
}

// RecentCondition requires a fresh correlation entry for another event type.
type RecentCondition struct {
	EventType models.EventType
	ZoneID    string
	Within    time.Duration
}

// CooldownScope selects what a rule's cooldown is tracked per.
type CooldownScope string

const (
	CooldownPerRule   CooldownScope = "rule"
	CooldownPerZone   CooldownScope = "zone"
	CooldownPerCamera CooldownScope = "camera"
)

// IsValid checks if the scope is rule, zone or camera.
func (s CooldownScope) IsValid() bool {
	switch s {
	case CooldownPerRule, CooldownPerZone, CooldownPerCamera:
		return true
	default:
		return false
	}
}

// Consequence is the alert template produced when a rule matches.
type Consequence struct {
	Severity          models.Severity
	HazardScore       float64
	Summary           string
	RecommendedAction string
	Cooldown          time.Duration
	CooldownScope     CooldownScope
}

// Rule is one validated rule. Filters keep declaration order, scalar clauses
// first as written, then and_recent conditions in list order.
type Rule struct {
	ID        string
	EventType models.EventType
	Filters   []Filter
	Then      Consequence
	Line      int
}

// ScalarFilters returns the filters evaluated against the event payload.
func (r *Rule) ScalarFilters() []Filter {
	out := make([]Filter, 0, len(r.Filters))
	for _, f := range r.Filters {
		if f.Kind != FilterTemporalCorrelation {
			out = append(out, f)
		}
	}
	return out
}

// RecentConditions returns the and_recent conditions in declaration order.
func (r *Rule) RecentConditions() []RecentCondition {
	var out []RecentCondition
	for _, f := range r.Filters {
		if f.Kind == FilterTemporalCorrelation && f.Recent != nil {
			out = append(out, *f.Recent)
		}
	}
	return out
}

// ExplainedFields lists the payload fields an alert explanation reports: the
// standard vision fields followed by any other field the predicate reads.
func (r *Rule) ExplainedFields() []string {
	fields := []string{"zone_id", "motion_score", "confidence", "status"}
	seen := map[string]bool{"zone_id": true, "motion_score": true, "confidence": true, "status": true}
	for _, f := range r.Filters {
		if f.Field == "" || seen[f.Field] {
			continue
		}
		seen[f.Field] = true
		fields = append(fields, f.Field)
	}
	return fields
}

// Threshold returns the numeric lower bound configured for field, if any.
func (r *Rule) Threshold(field string) (float64, bool) {
	for _, f := range r.Filters {
		if f.Kind == FilterNumericThreshold && f.Field == field {
			return f.Min, true
		}
	}
	return 0, false
}

// SkippedEntry records a structurally malformed rules entry that was ignored.
type SkippedEntry struct {
	Index  int
	ID     string
	Line   int
	Reason string
}

func (s SkippedEntry) String() string {
	if s.ID != "" {
		return fmt.Sprintf("rules[%d] (%s) line %d: %s", s.Index, s.ID, s.Line, s.Reason)
	}
	return fmt.Sprintf("rules[%d] line %d: %s", s.Index, s.Line, s.Reason)
}

// RuleSet is the immutable, ordered collection of loaded rules.
type RuleSet struct {
	Version int
	Rules   []*Rule
	Skipped []SkippedEntry
}

// Len returns the number of active rules.
func (rs *RuleSet) Len() int {
	return len(rs.Rules)
}

// EventTypes returns the distinct event types the rules trigger on.
func (rs *RuleSet) EventTypes() []models.EventType {
	seen := make(map[models.EventType]bool)
	var out []models.EventType
	for _, r := range rs.Rules {
		if !seen[r.EventType] {
			seen[r.EventType] = true
			out = append(out, r.EventType)
		}
	}
	return out
}
