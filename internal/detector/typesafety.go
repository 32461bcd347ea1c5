package detector

import (
	"regexp"
	"strings"

	"github.com/codepulse/codepulse/internal/models"
)

var (
	anyUsageRe = regexp.MustCompile(`:\s*any\b|\bas\s+any\b`)
	funcSigRe  = regexp.MustCompile(`function\s+[A-Za-z_$][\w$]*\s*\(([^)]*)\)`)
	paramSplit = regexp.MustCompile(`\s*,\s*`)
)

func (sa *StreamAnalyzer) feedTypeSafety(chunk string, idx []int, baseLine, skipBytes int, final bool) {
	if sa.language != "TypeScript" {
		return
	}

	for _, loc := range anyUsageRe.FindAllStringIndex(chunk, -1) {
		if skipSpanned(loc, len(chunk), skipBytes, final) {
			continue
		}
		sa.res.TypeSafety = append(sa.res.TypeSafety, models.TypeSafetyFinding{
			Type:           "any_usage",
			Description:    "Explicit any defeats type checking",
			FilePath:       sa.path,
			LineNumber:     baseLine + lineAt(idx, loc[0]),
			Recommendation: "Replace any with a specific type or unknown",
		})
	}

	for _, loc := range funcSigRe.FindAllStringSubmatchIndex(chunk, -1) {
		if skipSpanned(loc, len(chunk), skipBytes, final) {
			continue
		}
		params := strings.TrimSpace(chunk[loc[2]:loc[3]])
		if params == "" || hasAnnotatedParams(params) {
			continue
		}
		sa.res.TypeSafety = append(sa.res.TypeSafety, models.TypeSafetyFinding{
			Type:           "missing_types",
			Description:    "Function signature with unannotated parameters",
			FilePath:       sa.path,
			LineNumber:     baseLine + lineAt(idx, loc[0]),
			Recommendation: "Annotate every parameter with an explicit type",
		})
	}
}

// hasAnnotatedParams reports whether every parameter carries a type
// annotation. Rest/default syntax counts as annotated only when a colon is
// present.
func hasAnnotatedParams(params string) bool {
	for _, p := range paramSplit.Split(params, -1) {
		if p == "" {
			continue
		}
		if !strings.Contains(p, ":") {
			return false
		}
	}
	return true
}
