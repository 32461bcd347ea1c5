package training

import (
	"regexp"
	"strings"

	"github.com/codepulse/codepulse/internal/models"
)

// The closed set of condition forms a prevention rule may carry:
//
//	title contains X AND description contains Y
//	analysis.sophisticated_patterns includes X
//	codebase has error-middleware AND custom error classes AND async error handling
//
// Anything else evaluates to false.
var (
	titleDescCondRe = regexp.MustCompile(`(?i)^title contains ["']?(.+?)["']? and description contains ["']?(.+?)["']?$`)
	sophistCondRe   = regexp.MustCompile(`(?i)^analysis\.sophisticated_patterns includes ["']?(.+?)["']?$`)
	codebaseCondRe  = regexp.MustCompile(`(?i)^codebase has error-middleware and custom error classes and async error handling$`)
)

// EvaluateCondition reports whether a rule's condition holds for the
// recommendation and the codebase analysis.
func EvaluateCondition(rule PreventionRule, rec *models.Recommendation, analysis *AnalysisSnapshot) bool {
	cond := strings.TrimSpace(rule.Condition)
	if cond == "" {
		return false
	}

	if m := titleDescCondRe.FindStringSubmatch(cond); m != nil {
		return containsFold(rec.Title, m[1]) && containsFold(rec.Description, m[2])
	}

	if m := sophistCondRe.FindStringSubmatch(cond); m != nil {
		for _, p := range analysis.SophisticatedPatterns {
			if strings.EqualFold(p, m[1]) || containsFold(p, m[1]) {
				return true
			}
		}
		return false
	}

	if codebaseCondRe.MatchString(cond) {
		return analysis.HasErrorMiddleware && analysis.HasCustomErrorClasses && analysis.HasAsyncErrorHandling
	}

	return false
}

// MatchRules returns the rules whose condition holds, ordered so the
// highest-confidence rule comes first.
func MatchRules(rules []PreventionRule, rec *models.Recommendation, analysis *AnalysisSnapshot) []PreventionRule {
	var matched []PreventionRule
	for _, r := range rules {
		if EvaluateCondition(r, rec, analysis) {
			matched = append(matched, r)
		}
	}
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j].Confidence > matched[j-1].Confidence; j-- {
			matched[j], matched[j-1] = matched[j-1], matched[j]
		}
	}
	return matched
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
