package validation

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"

	"github.com/codepulse/codepulse/internal/detector"
	"github.com/codepulse/codepulse/internal/training"
)

// weightedPattern is one entry of the closed error-handling pattern set.
// Weights approximate how much handling sophistication a match implies.
type weightedPattern struct {
	name   string
	weight float64
	re     *regexp.Regexp
}

var errorHandlingPatterns = []weightedPattern{
	{name: "try-catch", weight: 1.0, re: regexp.MustCompile(`try\s*\{`)},
	{name: "custom-error-class", weight: 1.5, re: regexp.MustCompile(`class\s+\w+Error\s+extends\s+\w*Error`)},
	{name: "async-catch", weight: 1.2, re: regexp.MustCompile(`\.catch\s*\(`)},
	{name: "error-middleware", weight: 2.0, re: regexp.MustCompile(`\(\s*err(?:or)?\s*,\s*req\s*,\s*res\s*,\s*next\s*\)`)},
	{name: "db-error-wrapper", weight: 1.5, re: regexp.MustCompile(`(?i)(?:db|query|transaction)[^;{}]{0,80}(?:catch|\.on\s*\(\s*['"]error['"])`)},
}

var functionLikeRe = regexp.MustCompile(
	`function\s+[A-Za-z_$][\w$]*\s*\(` +
		`|=>\s*[{(]` +
		`|(?m)^[ \t]*def\s+\w+\s*\(` +
		`|(?m)^func\s`)

// sophisticatedIndicators is the closed set of signals that a codebase has
// deliberate error-handling infrastructure regardless of raw coverage.
var sophisticatedIndicators = []struct {
	name string
	re   *regexp.Regexp
}{
	{name: "error-middleware", re: regexp.MustCompile(`\(\s*err(?:or)?\s*,\s*req\s*,\s*res\s*,\s*next\s*\)`)},
	{name: "custom-error-classes", re: regexp.MustCompile(`class\s+\w+Error\s+extends\s+\w*Error`)},
	{name: "global-exception-handler", re: regexp.MustCompile(`process\.on\s*\(\s*['"](?:uncaughtException|unhandledRejection)['"]`)},
	{name: "error-handler-module", re: nil}, // matched by file name
}

var errorHandlerFileRe = regexp.MustCompile(`(?i)errorhandler|error[_-]handler`)

var analysisExcludes = []string{"*node_modules*", "*dist*", "*build*"}

// analyzeErrorHandling walks the code files under root and builds the
// codebase snapshot the validator and the prevention rules reason over.
//
// The coverage number clamps the weighted match count to the function count
// before dividing, and weighted matches are summed per rule without
// per-function attribution; treat the value as indicative, not exact.
func analyzeErrorHandling(root string) (training.AnalysisSnapshot, error) {
	snapshot := training.AnalysisSnapshot{}
	var weighted float64
	var functions int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			for _, pattern := range analysisExcludes {
				if wildcard.Match(pattern, path) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !detector.IsCodeFile(path) {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if errorHandlerFileRe.MatchString(filepath.Base(path)) {
			snapshot.SophisticatedPatterns = appendUnique(snapshot.SophisticatedPatterns, "error-handler-module")
			snapshot.Evidence = append(snapshot.Evidence, fmt.Sprintf("dedicated error handler module: %s", rel))
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		text := string(data)

		functions += len(functionLikeRe.FindAllStringIndex(text, -1))

		for _, wp := range errorHandlingPatterns {
			n := len(wp.re.FindAllStringIndex(text, -1))
			if n == 0 {
				continue
			}
			weighted += float64(n) * wp.weight
			snapshot.Evidence = append(snapshot.Evidence, fmt.Sprintf("%s x%d in %s", wp.name, n, rel))
		}

		for _, ind := range sophisticatedIndicators {
			if ind.re != nil && ind.re.MatchString(text) {
				snapshot.SophisticatedPatterns = appendUnique(snapshot.SophisticatedPatterns, ind.name)
			}
		}
		return nil
	})
	if err != nil {
		return training.AnalysisSnapshot{}, err
	}

	snapshot.FunctionCount = functions
	if functions > 0 {
		covered := weighted
		if covered > float64(functions) {
			covered = float64(functions)
		}
		snapshot.ErrorHandlingCoverage = covered / float64(functions) * 100
	}

	snapshot.HasErrorMiddleware = contains(snapshot.SophisticatedPatterns, "error-middleware")
	snapshot.HasCustomErrorClasses = contains(snapshot.SophisticatedPatterns, "custom-error-classes")
	snapshot.HasAsyncErrorHandling = strings.Contains(strings.Join(snapshot.Evidence, "\n"), "async-catch")

	return snapshot, nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
