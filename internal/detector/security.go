package detector

import (
	"fmt"
	"regexp"

	"github.com/codepulse/codepulse/internal/models"
)

var (
	expressAppRe   = regexp.MustCompile(`\bexpress\s*\(\s*\)`)
	helmetRe       = regexp.MustCompile(`\bhelmet\b`)
	corsRe         = regexp.MustCompile(`\bcors\b`)
	rateLimitRe    = regexp.MustCompile(`\brateLimit\b|express-rate-limit`)
	hardcodedCreds = regexp.MustCompile(`(?i)\b(?:password|api[_-]?key|secret|token)\s*[:=]\s*["'][^"']+["']`)
)

func (sa *StreamAnalyzer) feedSecurity(chunk string, idx []int, baseLine, skipBytes int, final bool) {
	if expressAppRe.MatchString(chunk) {
		sa.flags.sawExpress = true
	}
	if helmetRe.MatchString(chunk) {
		sa.flags.sawHelmet = true
	}
	if corsRe.MatchString(chunk) {
		sa.flags.sawCors = true
	}
	if rateLimitRe.MatchString(chunk) {
		sa.flags.sawRateLimit = true
	}

	for _, loc := range hardcodedCreds.FindAllStringIndex(chunk, -1) {
		if skipSpanned(loc, len(chunk), skipBytes, final) {
			continue
		}
		sa.res.Security = append(sa.res.Security, models.SecurityFinding{
			Type:           "insecure_config",
			Severity:       models.SeverityCritical,
			Description:    "Hardcoded credential literal",
			FilePath:       sa.path,
			LineNumber:     baseLine + lineAt(idx, loc[0]),
			Recommendation: "Move secrets to environment variables or a secrets manager",
		})
	}
}

// finishSecurity emits missing-middleware findings once the whole file has
// been seen. An express() app without the corresponding middleware anywhere
// in the file triggers one finding per missing middleware.
func (sa *StreamAnalyzer) finishSecurity() {
	if !sa.flags.sawExpress {
		return
	}
	missing := []struct {
		name     string
		present  bool
		severity models.Severity
	}{
		{"helmet", sa.flags.sawHelmet, models.SeverityHigh},
		{"cors", sa.flags.sawCors, models.SeverityMedium},
		{"express-rate-limit", sa.flags.sawRateLimit, models.SeverityMedium},
	}
	for _, m := range missing {
		if m.present {
			continue
		}
		sa.res.Security = append(sa.res.Security, models.SecurityFinding{
			Type:           "missing_middleware",
			Severity:       m.severity,
			Description:    fmt.Sprintf("Express application without %s middleware", m.name),
			FilePath:       sa.path,
			Recommendation: fmt.Sprintf("Add %s to the middleware chain", m.name),
		})
	}
}
