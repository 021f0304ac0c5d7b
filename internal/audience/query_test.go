package audience

import (
	"testing"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
)

func TestBuild_AllAudienceHasNoPredicates(t *testing.T) {
	s := schedule.Schedule{Audience: schedule.AudienceAll}

	q := Build(s, "asia/tokyo")

	if q.Timezone != "asia/tokyo" {
		t.Fatalf("expected timezone asia/tokyo, got %q", q.Timezone)
	}
	if len(q.Genders) != 0 || len(q.Platforms) != 0 || q.AgeMax != 0 {
		t.Fatalf("expected empty predicates, got %+v", q)
	}
}

func TestBuild_FilteredAudience(t *testing.T) {
	s := schedule.Schedule{
		Audience: schedule.AudienceFiltered,
		Filter: &schedule.Filter{
			Genders:   []string{"female"},
			Platforms: []string{"ios", "android"},
			AgeRange:  &schedule.AgeRange{Min: 18, Max: 35},
		},
	}

	q := Build(s, "")

	if q.Timezone != "" {
		t.Fatalf("expected no timezone, got %q", q.Timezone)
	}
	if len(q.Genders) != 1 || q.Genders[0] != "female" {
		t.Fatalf("genders wrong: %v", q.Genders)
	}
	if q.AgeMin != 18 || q.AgeMax != 35 {
		t.Fatalf("age range wrong: %d-%d", q.AgeMin, q.AgeMax)
	}
}

func TestMatches(t *testing.T) {
	q := Query{
		Timezone:  "europe/london",
		Genders:   []string{"male", "other"},
		Platforms: []string{"android"},
		AgeMin:    21,
		AgeMax:    40,
	}

	if !q.Matches("europe/london", "male", "android", 30) {
		t.Fatalf("expected match")
	}
	if q.Matches("asia/tokyo", "male", "android", 30) {
		t.Fatalf("timezone mismatch should not match")
	}
	if q.Matches("europe/london", "female", "android", 30) {
		t.Fatalf("gender mismatch should not match")
	}
	if q.Matches("europe/london", "male", "ios", 30) {
		t.Fatalf("platform mismatch should not match")
	}
	if q.Matches("europe/london", "male", "android", 20) {
		t.Fatalf("age below range should not match")
	}
}

func TestMatches_NoPredicates(t *testing.T) {
	q := Query{}
	if !q.Matches("anywhere", "other", "web", 99) {
		t.Fatalf("empty query must match everyone")
	}
}
