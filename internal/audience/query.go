package audience

import (
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
)

// Query is the abstract recipient predicate for one firing. The users repo
// translates it to SQL; tests match against it directly. Base eligibility
// (active user, non-empty device token, not opted out) is implied and always
// applied by the executor.
type Query struct {
	Timezone  string // canonical; empty for instant/once schedules
	Genders   []string
	Platforms []string
	AgeMin    int
	AgeMax    int // 0 means no age predicate
}

// Build derives the recipient query for a schedule, optionally narrowed to a
// timezone shard. The timezone is assumed canonical (the planner and the
// registration hook canonicalize at ingress).
func Build(s schedule.Schedule, timezone string) Query {
	q := Query{Timezone: timezone}

	if s.Audience != schedule.AudienceFiltered || s.Filter == nil {
		return q
	}

	q.Genders = s.Filter.Genders
	q.Platforms = s.Filter.Platforms
	if r := s.Filter.AgeRange; r != nil {
		q.AgeMin = r.Min
		q.AgeMax = r.Max
	}

	return q
}

// Matches applies the filter predicates to a single recipient's attributes.
// The SQL path is authoritative in production; this is the in-memory
// equivalent used as defence in depth and by fakes in tests.
func (q Query) Matches(timezone, gender, platform string, age int) bool {
	if q.Timezone != "" && timezone != q.Timezone {
		return false
	}
	if len(q.Genders) > 0 && !contains(q.Genders, gender) {
		return false
	}
	if len(q.Platforms) > 0 && !contains(q.Platforms, platform) {
		return false
	}
	if q.AgeMax > 0 && (age < q.AgeMin || age > q.AgeMax) {
		return false
	}
	return true
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
