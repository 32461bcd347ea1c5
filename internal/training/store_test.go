package training

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepulse/codepulse/internal/models"
)

func TestAppendWritesCaseFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	c, err := s.Append(Case{
		CaseType:       CaseFalsePositive,
		Recommendation: models.Recommendation{Title: "Improve Error Handling Coverage"},
	})
	require.NoError(t, err)
	assert.Contains(t, c.ID, "false-positive-")
	assert.False(t, c.Timestamp.IsZero())

	data, err := os.ReadFile(filepath.Join(dir, "training-case-"+c.ID+".json"))
	require.NoError(t, err)
	var loaded Case
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "Improve Error Handling Coverage", loaded.Recommendation.Title)
}

func TestAppendMergesPreventionRules(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(Case{
		CaseType: CaseFalsePositive,
		PreventionRules: []PreventionRule{{
			Name: "r1", Condition: "x", Action: ActionReject, Confidence: 0.5,
		}},
	})
	require.NoError(t, err)

	// Same name, higher confidence: replaces.
	_, err = s.Append(Case{
		CaseType: CaseFalsePositive,
		PreventionRules: []PreventionRule{{
			Name: "r1", Condition: "y", Action: ActionReject, Confidence: 0.8,
		}},
	})
	require.NoError(t, err)

	// Same name, lower confidence: ignored.
	require.NoError(t, s.MergeRules([]PreventionRule{{
		Name: "r1", Condition: "z", Action: ActionModify, Confidence: 0.3,
	}}))

	rules := s.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "y", rules[0].Condition)
	assert.Equal(t, 0.8, rules[0].Confidence)
}

func TestRulesPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 0)
	require.NoError(t, err)
	require.NoError(t, s.MergeRules([]PreventionRule{
		{Name: "b", Condition: "x", Action: ActionReject, Confidence: 0.9},
		{Name: "a", Condition: "y", Action: ActionModify, Confidence: 0.7},
	}))
	s.Close()

	reopened, err := NewStore(dir, 0)
	require.NoError(t, err)
	defer reopened.Close()

	rules := reopened.Rules()
	require.Len(t, rules, 2)
	// Sorted by name.
	assert.Equal(t, "a", rules[0].Name)
	assert.Equal(t, "b", rules[1].Name)
}

func TestPruneKeepsNewestCases(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 2)
	require.NoError(t, err)
	defer s.Close()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		_, err := s.Append(Case{
			CaseType:  CaseAccurate,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	cases, err := s.Cases()
	require.NoError(t, err)
	require.Len(t, cases, 2)
	// Oldest first, and the two oldest were pruned.
	assert.True(t, cases[0].Timestamp.Before(cases[1].Timestamp))
	assert.Equal(t, base.Add(2*time.Second).UnixMilli(), cases[0].Timestamp.UnixMilli())
}

func TestEvaluateConditionForms(t *testing.T) {
	rec := &models.Recommendation{
		Title:       "Improve Error Handling Coverage",
		Description: "Only 0% of functions are covered.",
	}
	analysis := &AnalysisSnapshot{
		SophisticatedPatterns: []string{"error-middleware", "custom-error-classes"},
		HasErrorMiddleware:    true,
		HasCustomErrorClasses: true,
		HasAsyncErrorHandling: true,
	}

	tests := []struct {
		name      string
		condition string
		want      bool
	}{
		{"title and description", `title contains "Error Handling" AND description contains "0%"`, true},
		{"title mismatch", `title contains "Hooks" AND description contains "0%"`, false},
		{"sophisticated includes", `analysis.sophisticated_patterns includes "error-middleware"`, true},
		{"sophisticated missing", `analysis.sophisticated_patterns includes "global-exception-handler"`, false},
		{"codebase triple", `codebase has error-middleware AND custom error classes AND async error handling`, true},
		{"unknown form", `repository is large`, false},
		{"empty", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := PreventionRule{Name: "r", Condition: tt.condition}
			assert.Equal(t, tt.want, EvaluateCondition(rule, rec, analysis))
		})
	}
}

func TestEvaluateCodebaseConditionNeedsAllThree(t *testing.T) {
	rec := &models.Recommendation{}
	rule := PreventionRule{Condition: `codebase has error-middleware AND custom error classes AND async error handling`}
	analysis := &AnalysisSnapshot{HasErrorMiddleware: true, HasCustomErrorClasses: true}
	assert.False(t, EvaluateCondition(rule, rec, analysis))
}

func TestMatchRulesOrdersByConfidence(t *testing.T) {
	rec := &models.Recommendation{Title: "Improve Error Handling Coverage", Description: "Only 0%"}
	rules := []PreventionRule{
		{Name: "low", Condition: `title contains "Error" AND description contains "0%"`, Confidence: 0.4},
		{Name: "no-match", Condition: `title contains "Hooks" AND description contains "0%"`, Confidence: 0.99},
		{Name: "high", Condition: `title contains "Error Handling" AND description contains "0%"`, Confidence: 0.9},
	}
	matched := MatchRules(rules, rec, &AnalysisSnapshot{})
	require.Len(t, matched, 2)
	assert.Equal(t, "high", matched[0].Name)
	assert.Equal(t, "low", matched[1].Name)
}

func TestWatchReloadsRulesOnFileChange(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 0)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Watch())

	rules := []PreventionRule{{Name: "external", Condition: "x", Action: ActionReject, Confidence: 0.9}}
	data, err := json.Marshal(rules)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prevention-rules.json"), data, 0o644))

	assert.Eventually(t, func() bool {
		return len(s.Rules()) == 1
	}, 2*time.Second, 20*time.Millisecond)
}
