// Package recommend turns detected patterns and scan findings into
// recommendations. Generators are value-typed and selected by the
// classifier's profile string through a lookup table; the two entry points
// are plain function values, not methods on a hierarchy.
package recommend

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/codepulse/codepulse/internal/models"
)

// Context carries everything a generator may consult.
type Context struct {
	Repository *models.Repository
	Profile    models.TechStackProfile
	Patterns   []models.Pattern
}

// ScanSummary is the issue-count view of a scan used by the
// issue-driven entry point.
type ScanSummary struct {
	SecurityCount    int
	TypeSafetyCount  int
	PerformanceCount int
}

// Summarize reduces a scan result to its issue counts.
func Summarize(res *models.ScanResult) ScanSummary {
	return ScanSummary{
		SecurityCount:    len(res.Security),
		TypeSafetyCount:  len(res.TypeSafety),
		PerformanceCount: len(res.Performance),
	}
}

func (s ScanSummary) empty() bool {
	return s.SecurityCount == 0 && s.TypeSafetyCount == 0 && s.PerformanceCount == 0
}

// Generator produces recommendations for one tech-stack profile.
type Generator struct {
	Profile string
	// Generate is pattern-driven: it derives recommendations from
	// detected patterns first and falls back to profile templates only
	// when no pattern produced anything.
	Generate func(Context) []models.Recommendation
	// GenerateFromScan is issue-count-driven and returns nothing when
	// all counts are zero.
	GenerateFromScan func(Context, ScanSummary) []models.Recommendation
}

// ForProfile returns the generator for a profile, falling back to the
// general generator for unknown identifiers.
func ForProfile(profile string) Generator {
	if g, ok := registry[profile]; ok {
		return g
	}
	return registry[fallbackProfile]
}

// Sort orders recommendations by priority then type. The sort is stable:
// equal entries keep their insertion order.
func Sort(recs []models.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		pi, pj := priorityRank(recs[i].Priority), priorityRank(recs[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return typeRank(recs[i].Type) < typeRank(recs[j].Type)
	})
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityCritical:
		return 0
	case models.PriorityHigh:
		return 1
	case models.PriorityMedium:
		return 2
	default:
		return 3
	}
}

func typeRank(t models.RecommendationType) int {
	switch t {
	case models.RecSecurity:
		return 0
	case models.RecArchitecture:
		return 1
	case models.RecPerformance:
		return 2
	default:
		return 3
	}
}

// newRecommendation fills the invariant fields every recommendation shares.
func newRecommendation(ctx Context, title, description string, typ models.RecommendationType, priority models.Priority) models.Recommendation {
	now := time.Now()
	return models.Recommendation{
		ID:           uuid.NewString(),
		RepositoryID: ctx.Repository.ID,
		Title:        title,
		Description:  description,
		Type:         typ,
		Priority:     priority,
		Status:       models.RecStatusActive,
		Tags:         []string{ctx.Profile.Profile},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// steps numbers a list of step title/description pairs contiguously from 1.
func steps(pairs ...[3]string) []models.ImplementationStep {
	out := make([]models.ImplementationStep, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, models.ImplementationStep{
			StepNo:        i + 1,
			Title:         p[0],
			Description:   p[1],
			EstimatedTime: p[2],
		})
	}
	return out
}

func patternsOfType(ctx Context, patternType string) []models.Pattern {
	var out []models.Pattern
	for _, p := range ctx.Patterns {
		if p.PatternType == patternType {
			out = append(out, p)
		}
	}
	return out
}

func patternIDs(patterns []models.Pattern) []string {
	ids := make([]string, 0, len(patterns))
	for _, p := range patterns {
		ids = append(ids, p.ID)
	}
	return ids
}
