package ruleset

import "github.com/joshuaworth/hoistwaywatch/common/models"

// MatchPayload evaluates a scalar filter against an event payload. A numeric
// threshold treats a missing field as 0 and any non-numeric value as a
// non-match. Temporal filters always report true here; the engine resolves
// them against the correlation store.
func (f Filter) MatchPayload(p models.Payload) bool {
	switch f.Kind {
	case FilterExact:
		v, ok := p.Get(f.Field)
		return ok && v.Equal(f.Equals)
	case FilterSetMembership:
		v, ok := p.Get(f.Field)
		if !ok {
			return false
		}
		for _, allowed := range f.OneOf {
			if v.Equal(allowed) {
				return true
			}
		}
		return false
	case FilterNumericThreshold:
		v, ok := p.Get(f.Field)
		if !ok {
			return 0 >= f.Min
		}
		n, ok := v.Float()
		return ok && n >= f.Min
	case FilterTemporalCorrelation:
		return true
	default:
		return false
	}
}
