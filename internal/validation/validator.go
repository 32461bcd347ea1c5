// Package validation cross-checks candidate recommendations against the
// code they describe, rejecting or modifying ones the codebase contradicts.
package validation

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/internal/training"
)

// Category buckets a recommendation for validation purposes.
type Category string

const (
	CategoryErrorHandling Category = "error_handling"
	CategoryTesting       Category = "testing"
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryGeneral       Category = "general"
)

// Action is the validator's verdict on a recommendation.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionModify  Action = "modify"
)

// Result is the structured validation outcome. A reject here is an outcome,
// not an error; errors mean validation itself could not run.
type Result struct {
	Valid                   bool
	Confidence              float64
	Category                Category
	ActualCoverage          float64
	ConflictingEvidence     []string
	SupportingEvidence      []string
	Action                  Action
	ModificationSuggestions []string
	Analysis                training.AnalysisSnapshot
}

// RuleProvider supplies the active prevention rules. *training.Store
// satisfies it.
type RuleProvider interface {
	Rules() []training.PreventionRule
}

// Validator validates recommendations against a local checkout of the
// repository's code.
type Validator struct {
	rules RuleProvider
}

func New(rules RuleProvider) *Validator {
	return &Validator{rules: rules}
}

const (
	approvedConfidence = 0.85
	rejectedConfidence = 0.1
	coverageRejectPct  = 50
)

// Validate checks one recommendation against the code under root. The
// returned error is non-nil only when analysis itself failed; callers keep
// the recommendation unvalidated in that case.
func (v *Validator) Validate(rec *models.Recommendation, root string) (Result, error) {
	res := Result{
		Valid:      true,
		Confidence: approvedConfidence,
		Action:     ActionApprove,
		Category:   Categorize(rec),
	}

	if res.Category == CategoryErrorHandling && root != "" {
		analysis, err := analyzeErrorHandling(root)
		if err != nil {
			return Result{}, fmt.Errorf("analyzing error handling under %s: %w", root, err)
		}
		res.Analysis = analysis
		res.ActualCoverage = analysis.ErrorHandlingCoverage
		res.SupportingEvidence = analysis.Evidence

		if rejectsErrorHandlingClaim(rec, analysis) {
			res.Valid = false
			res.Confidence = rejectedConfidence
			res.Action = ActionReject
			res.ConflictingEvidence = append([]string{fmt.Sprintf(
				"recommendation claims near-zero error handling, but measured coverage is %.0f%% across %d functions (sophisticated patterns: %s)",
				analysis.ErrorHandlingCoverage, analysis.FunctionCount,
				strings.Join(analysis.SophisticatedPatterns, ", "))},
				res.ConflictingEvidence...)
		}
	}

	v.applyPreventionRules(rec, &res)

	log.Debug().
		Str("recommendation", rec.Title).
		Str("category", string(res.Category)).
		Str("action", string(res.Action)).
		Float64("coverage", res.ActualCoverage).
		Msg("Recommendation validated")
	return res, nil
}

// rejectsErrorHandlingClaim implements the hard rejection rule for
// error-handling recommendations that claim zero coverage against a
// codebase that demonstrably has it.
func rejectsErrorHandlingClaim(rec *models.Recommendation, analysis training.AnalysisSnapshot) bool {
	if !strings.Contains(rec.Title, "Error Handling") {
		return false
	}
	desc := rec.Description
	if !strings.Contains(desc, "0%") && !strings.Contains(desc, "Only 0%") {
		return false
	}
	return analysis.ErrorHandlingCoverage > coverageRejectPct || len(analysis.SophisticatedPatterns) > 0
}

// applyPreventionRules overlays the learned rule set; the highest-confidence
// matching rule decides the final action.
func (v *Validator) applyPreventionRules(rec *models.Recommendation, res *Result) {
	if v.rules == nil {
		return
	}
	matched := training.MatchRules(v.rules.Rules(), rec, &res.Analysis)
	if len(matched) == 0 {
		return
	}
	top := matched[0]
	switch top.Action {
	case training.ActionReject:
		res.Valid = false
		res.Confidence = rejectedConfidence
		res.Action = ActionReject
		res.ConflictingEvidence = append(res.ConflictingEvidence,
			fmt.Sprintf("prevention rule %q matched: %s", top.Name, top.Description))
	case training.ActionModify:
		if res.Action != ActionReject {
			res.Action = ActionModify
		}
		res.ModificationSuggestions = append(res.ModificationSuggestions,
			fmt.Sprintf("prevention rule %q: %s", top.Name, top.Description))
	case training.ActionFlagForReview:
		if res.Action == ActionApprove {
			res.Action = ActionModify
		}
		res.ModificationSuggestions = append(res.ModificationSuggestions,
			fmt.Sprintf("flagged for review by prevention rule %q: %s", top.Name, top.Description))
	}
}

// Categorize buckets a recommendation by title and description keywords.
func Categorize(rec *models.Recommendation) Category {
	text := strings.ToLower(rec.Title + " " + rec.Description)
	switch {
	case strings.Contains(text, "error handling") || strings.Contains(text, "try/catch") || strings.Contains(text, "exception"):
		return CategoryErrorHandling
	case strings.Contains(text, "test") || strings.Contains(text, "coverage suite"):
		return CategoryTesting
	case strings.Contains(text, "security") || strings.Contains(text, "vulnerab") || strings.Contains(text, "helmet") || strings.Contains(text, "credential"):
		return CategorySecurity
	case strings.Contains(text, "performance") || strings.Contains(text, "slow") || strings.Contains(text, "blocking"):
		return CategoryPerformance
	default:
		return CategoryGeneral
	}
}

// FalsePositiveCase builds the training case recorded when a
// recommendation is rejected.
func FalsePositiveCase(rec models.Recommendation, res Result) training.Case {
	return training.Case{
		CaseType:       training.CaseFalsePositive,
		Recommendation: rec,
		Analysis:       res.Analysis,
		Validation: training.Outcome{
			Valid:               res.Valid,
			Confidence:          res.Confidence,
			Action:              string(res.Action),
			ConflictingEvidence: res.ConflictingEvidence,
			SupportingEvidence:  res.SupportingEvidence,
		},
		Lessons: []string{
			"coverage claims must be cross-checked against measured analysis before persisting",
		},
		PreventionRules: []training.PreventionRule{{
			Name:        "reject-zero-coverage-claims",
			Condition:   `title contains "Error Handling" AND description contains "0%"`,
			Action:      training.ActionReject,
			Confidence:  0.9,
			Description: "Rejects error-handling recommendations that claim zero coverage when analysis shows otherwise.",
		}},
	}
}
