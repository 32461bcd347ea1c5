package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/internal/training"
)

type staticRules []training.PreventionRule

func (s staticRules) Rules() []training.PreventionRule { return s }

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const handledSource = `export async function syncOrders() {
  try {
    const orders = await fetchOrders();
    await persist(orders);
  } catch (err) {
    logger.error(err);
  }
}

export async function syncUsers() {
  try {
    await pullUsers();
  } catch (err) {
    logger.error(err);
  }
}

export function reconcile() {
  try {
    runReconciliation();
  } catch (err) {
    report(err);
  }
}
`

func TestValidateRejectsFalseZeroCoverageClaim(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/sync.ts", handledSource)
	writeFile(t, root, "src/errorHandler.ts", "export class AppError extends Error {}\n")

	rec := &models.Recommendation{
		Title:       "Improve Error Handling Coverage",
		Description: "Only 0% of functions are covered by try/catch or equivalent handling.",
	}

	v := New(staticRules(nil))
	res, err := v.Validate(rec, root)
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, ActionReject, res.Action)
	assert.Equal(t, 0.1, res.Confidence)
	require.NotEmpty(t, res.ConflictingEvidence)
	assert.Contains(t, res.ConflictingEvidence[0], "measured coverage")
	assert.Contains(t, res.Analysis.SophisticatedPatterns, "error-handler-module")
}

func TestValidateApprovesAccurateClaim(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/raw.ts", `
export function one() { return 1; }
export function two() { return 2; }
export function three() { return 3; }
export function four() { return 4; }
`)

	rec := &models.Recommendation{
		Title:       "Improve Error Handling Coverage",
		Description: "Only 0% of functions are covered by try/catch or equivalent handling.",
	}

	v := New(staticRules(nil))
	res, err := v.Validate(rec, root)
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Equal(t, ActionApprove, res.Action)
	assert.Zero(t, res.ActualCoverage)
}

func TestValidateMissingCheckoutFails(t *testing.T) {
	rec := &models.Recommendation{
		Title:       "Improve Error Handling Coverage",
		Description: "Only 0% coverage.",
	}
	v := New(staticRules(nil))
	_, err := v.Validate(rec, filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err, "callers keep the recommendation unvalidated on analysis errors")
}

func TestValidateNonErrorHandlingSkipsDiskAnalysis(t *testing.T) {
	rec := &models.Recommendation{
		Title:       "Introduce Security Middleware",
		Description: "No helmet usage detected.",
	}
	v := New(staticRules(nil))
	// The checkout does not exist; non-error-handling categories never
	// touch the disk, so validation still succeeds.
	res, err := v.Validate(rec, filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, res.Action)
	assert.Equal(t, CategorySecurity, res.Category)
}

func TestValidatePreventionRuleRejects(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "export function plain() { return 1; }\n")

	rules := staticRules{{
		Name:       "reject-hook-extraction",
		Condition:  `title contains "Custom Hooks" AND description contains "hook calls"`,
		Action:     training.ActionReject,
		Confidence: 0.9,
	}}
	rec := &models.Recommendation{
		Title:       "Extract Reusable Custom Hooks",
		Description: "12 hook calls detected; repeated state/effect combinations are candidates.",
	}

	res, err := New(rules).Validate(rec, root)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, ActionReject, res.Action)
	require.NotEmpty(t, res.ConflictingEvidence)
	assert.Contains(t, res.ConflictingEvidence[0], "reject-hook-extraction")
}

func TestValidateHighestConfidenceRuleWins(t *testing.T) {
	rules := staticRules{
		{
			Name:       "weak-modify",
			Condition:  `title contains "Await" AND description contains "await"`,
			Action:     training.ActionModify,
			Confidence: 0.5,
		},
		{
			Name:       "strong-reject",
			Condition:  `title contains "Await" AND description contains "await"`,
			Action:     training.ActionReject,
			Confidence: 0.95,
		},
	}
	rec := &models.Recommendation{
		Title:       "Protect Await Expressions",
		Description: "14 await expressions against 1 try/catch constructs.",
	}

	res, err := New(rules).Validate(rec, "")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, res.Action)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		title string
		want  Category
	}{
		{"Improve Error Handling Coverage", CategoryErrorHandling},
		{"Add Integration Tests", CategoryTesting},
		{"Introduce Security Middleware", CategorySecurity},
		{"Fix Detected Performance Hotspots", CategoryPerformance},
		{"Share Types Between Client and Server", CategoryGeneral},
	}
	for _, tt := range tests {
		rec := &models.Recommendation{Title: tt.title}
		assert.Equal(t, tt.want, Categorize(rec), tt.title)
	}
}

func TestAnalyzeErrorHandlingCoverage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/sync.ts", handledSource)
	writeFile(t, root, "node_modules/dep/index.js", "function ignored() { try {} catch (e) {} }")

	analysis, err := analyzeErrorHandling(root)
	require.NoError(t, err)

	// Three async/named functions, three try/catch constructs; vendored
	// trees are excluded from the walk.
	assert.Equal(t, 3, analysis.FunctionCount)
	assert.Equal(t, float64(100), analysis.ErrorHandlingCoverage)
	assert.NotEmpty(t, analysis.Evidence)
}

func TestFalsePositiveCaseCarriesPreventionRule(t *testing.T) {
	rec := models.Recommendation{Title: "Improve Error Handling Coverage"}
	res := Result{Valid: false, Confidence: 0.1, Action: ActionReject}

	c := FalsePositiveCase(rec, res)
	assert.Equal(t, training.CaseFalsePositive, c.CaseType)
	require.NotEmpty(t, c.PreventionRules)
	assert.Equal(t, training.ActionReject, c.PreventionRules[0].Action)
	assert.NotEmpty(t, c.Lessons)
}
