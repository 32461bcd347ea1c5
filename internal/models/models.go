// Package models defines the core entities shared across the scan pipeline:
// repositories, detected patterns, findings, recommendations, and scan results.
package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// AnalysisStatus tracks where a repository is in its scan lifecycle.
type AnalysisStatus string

const (
	AnalysisPending  AnalysisStatus = "pending"
	AnalysisAnalyzed AnalysisStatus = "analyzed"
	AnalysisFailed   AnalysisStatus = "failed"
)

// Repository is the unit of scanning. FullName is "owner/repo" and unique.
type Repository struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	FullName        string            `json:"fullName"`
	Organization    string            `json:"organization,omitempty"`
	Description     string            `json:"description,omitempty"`
	DefaultBranch   string            `json:"defaultBranch"`
	PrimaryLanguage string            `json:"primaryLanguage,omitempty"`
	Framework       string            `json:"framework,omitempty"`
	TechStack       string            `json:"techStack,omitempty"`
	Categories      []string          `json:"categories,omitempty"`
	Branches        []string          `json:"branches,omitempty"`
	PatternsCount   int               `json:"patternsCount"`
	AnalysisStatus  AnalysisStatus    `json:"analysisStatus"`
	LastAnalyzed    *time.Time        `json:"lastAnalyzed,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Owner returns the "owner" half of FullName, or "" when FullName has no slash.
func (r *Repository) Owner() string {
	for i := 0; i < len(r.FullName); i++ {
		if r.FullName[i] == '/' {
			return r.FullName[:i]
		}
	}
	return ""
}

// RepoName returns the "repo" half of FullName.
func (r *Repository) RepoName() string {
	for i := 0; i < len(r.FullName); i++ {
		if r.FullName[i] == '/' {
			return r.FullName[i+1:]
		}
	}
	return r.FullName
}

// Pattern is a detected, structurally meaningful code fragment.
type Pattern struct {
	ID            string            `json:"id"`
	RepositoryID  string            `json:"repositoryId"`
	PatternType   string            `json:"patternType"`
	Category      string            `json:"category"`
	Subcategory   string            `json:"subcategory,omitempty"`
	Content       string            `json:"content"`
	ContentHash   string            `json:"contentHash"`
	Description   string            `json:"description,omitempty"`
	FilePath      string            `json:"filePath"`
	LineStart     int               `json:"lineStart"`
	LineEnd       int               `json:"lineEnd"`
	Language      string            `json:"language"`
	Framework     string            `json:"framework,omitempty"`
	Confidence    float64           `json:"confidence"`
	Tags          []string          `json:"tags,omitempty"`
	ContextBefore string            `json:"contextBefore,omitempty"`
	ContextAfter  string            `json:"contextAfter,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewPatternID returns a lexically sortable unique pattern identifier.
func NewPatternID() string {
	return ulid.Make().String()
}

// Severity levels for security findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityFinding is a transient security issue produced by the detectors.
type SecurityFinding struct {
	Type           string   `json:"type"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	FilePath       string   `json:"filePath"`
	LineNumber     int      `json:"lineNumber,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// TypeSafetyFinding is a transient type-safety issue.
type TypeSafetyFinding struct {
	Type           string `json:"type"`
	Description    string `json:"description"`
	FilePath       string `json:"filePath"`
	LineNumber     int    `json:"lineNumber,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// PerformanceFinding is a transient performance issue.
type PerformanceFinding struct {
	Type           string `json:"type"`
	Description    string `json:"description"`
	FilePath       string `json:"filePath"`
	LineNumber     int    `json:"lineNumber,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ScanMetrics carries per-scan bookkeeping surfaced in the result.
type ScanMetrics struct {
	FilesListed    int           `json:"filesListed"`
	FilesProcessed int           `json:"filesProcessed"`
	FilesSkipped   int           `json:"filesSkipped"`
	CacheHits      int           `json:"cacheHits"`
	Fallback       bool          `json:"fallback"`
	Duration       time.Duration `json:"duration"`
}

// ScanResult aggregates everything one repository scan produced.
type ScanResult struct {
	Patterns     []Pattern            `json:"patterns"`
	Security     []SecurityFinding    `json:"security"`
	TypeSafety   []TypeSafetyFinding  `json:"typeSafety"`
	Performance  []PerformanceFinding `json:"performance"`
	Successful   bool                 `json:"successful"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
	Metrics      ScanMetrics          `json:"metrics"`
}

// RecommendationType is the closed set of recommendation categories.
type RecommendationType string

const (
	RecSecurity      RecommendationType = "security"
	RecArchitecture  RecommendationType = "architecture"
	RecPerformance   RecommendationType = "performance"
	RecBestPractices RecommendationType = "best_practices"
	RecPatternUsage  RecommendationType = "pattern_usage"
	RecMigration     RecommendationType = "migration"
	RecTypeSafety    RecommendationType = "type_safety"
)

// Priority is the closed set of recommendation priorities.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// RecommendationStatus tracks a recommendation's lifecycle.
type RecommendationStatus string

const (
	RecStatusActive      RecommendationStatus = "active"
	RecStatusImplemented RecommendationStatus = "implemented"
	RecStatusDismissed   RecommendationStatus = "dismissed"
	RecStatusInProgress  RecommendationStatus = "in_progress"
	RecStatusOutdated    RecommendationStatus = "outdated"
)

// CodeExample shows a before/after pair attached to a recommendation.
type CodeExample struct {
	Title       string `json:"title"`
	Before      string `json:"before"`
	After       string `json:"after"`
	Language    string `json:"language"`
	Explanation string `json:"explanation,omitempty"`
}

// ImplementationStep is one ordered step of a recommendation. Step numbers
// are contiguous starting at 1.
type ImplementationStep struct {
	StepNo        int    `json:"stepNo"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	EstimatedTime string `json:"estimatedTime,omitempty"`
}

// ImpactMetrics estimates the value of applying a recommendation.
type ImpactMetrics struct {
	TimeSaved       string `json:"timeSaved,omitempty"`
	BugsPrevented   string `json:"bugsPrevented,omitempty"`
	PerformanceGain string `json:"performanceGain,omitempty"`
}

// Recommendation is a persisted, user-visible suggestion.
type Recommendation struct {
	ID                  string               `json:"id"`
	RepositoryID        string               `json:"repositoryId"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	Type                RecommendationType   `json:"type"`
	Priority            Priority             `json:"priority"`
	ApplicablePatterns  []string             `json:"applicablePatterns,omitempty"`
	CodeExamples        []CodeExample        `json:"codeExamples,omitempty"`
	ImplementationSteps []ImplementationStep `json:"implementationSteps,omitempty"`
	EstimatedEffort     string               `json:"estimatedEffort,omitempty"`
	Difficulty          string               `json:"difficulty,omitempty"`
	Tags                []string             `json:"tags,omitempty"`
	Status              RecommendationStatus `json:"status"`
	Metrics             ImpactMetrics        `json:"metrics"`
	Metadata            map[string]string    `json:"metadata,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// TechStackProfile is the classifier's output.
type TechStackProfile struct {
	Profile         string   `json:"profile"`
	Confidence      float64  `json:"confidence"`
	Indicators      []string `json:"indicators,omitempty"`
	PrimaryLanguage string   `json:"primaryLanguage,omitempty"`
	Framework       string   `json:"framework,omitempty"`
}
