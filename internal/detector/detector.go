// Package detector extracts structural patterns and security, type-safety,
// and performance findings from source text using a closed regex rule set.
// Detection is pure over its input: the same text and path always produce
// the same findings, and no state survives between files.
package detector

import (
	"sort"
	"strings"

	"github.com/codepulse/codepulse/internal/models"
)

const (
	// regexConfidence is the static confidence for regex-based detection.
	regexConfidence = 0.8
	// contextLines is how many lines of surrounding context each pattern keeps.
	contextLines = 2
	// contextMaxLineLen bounds stored context line length.
	contextMaxLineLen = 200
)

// Result is the output of analyzing one file.
type Result struct {
	Patterns    []models.Pattern
	Security    []models.SecurityFinding
	TypeSafety  []models.TypeSafetyFinding
	Performance []models.PerformanceFinding
}

func emptyResult() Result {
	return Result{
		Patterns:    []models.Pattern{},
		Security:    []models.SecurityFinding{},
		TypeSafety:  []models.TypeSafetyFinding{},
		Performance: []models.PerformanceFinding{},
	}
}

// Detector applies the rule set. It is stateless and safe for concurrent use.
type Detector struct{}

// New returns a Detector.
func New() *Detector {
	return &Detector{}
}

// Analyze runs all rules over a whole file held in memory.
func (d *Detector) Analyze(content, filePath string) Result {
	sa := d.NewStream(filePath)
	sa.Feed(content, 0, 0, true)
	return sa.Finish()
}

// StreamAnalyzer accumulates detection results across sequential chunks of a
// single file. Whole-file conditions (express-without-helmet, orphaned
// setInterval) are tracked as flags and resolved in Finish.
type StreamAnalyzer struct {
	det      *Detector
	path     string
	language string
	res      Result
	flags    fileFlags
	finished bool
}

type fileFlags struct {
	sawExpress       bool
	sawHelmet        bool
	sawCors          bool
	sawRateLimit     bool
	sawSetInterval   bool
	sawClearInterval bool
}

// NewStream starts incremental analysis of one file.
func (d *Detector) NewStream(filePath string) *StreamAnalyzer {
	return &StreamAnalyzer{
		det:      d,
		path:     filePath,
		language: DetectLanguage(filePath),
		res:      emptyResult(),
	}
}

// Feed analyzes one chunk. baseLine is the number of newlines in the file
// before the chunk's first byte. skipBytes marks the prefix of the chunk
// that overlaps the previous chunk: matches ending inside it were already
// emitted and are dropped here. final marks the last chunk of the file; in
// earlier chunks a match running to the chunk's very end may have been cut
// short by the bytes not yet read, so it is withheld and re-emitted whole
// by the next chunk, whose carried overlap contains it in full.
func (sa *StreamAnalyzer) Feed(chunk string, baseLine, skipBytes int, final bool) {
	if chunk == "" {
		return
	}
	idx := buildLineIndex(chunk)

	for i := range patternRules {
		rule := &patternRules[i]
		for _, loc := range rule.Regexp.FindAllStringIndex(chunk, -1) {
			if skipSpanned(loc, len(chunk), skipBytes, final) {
				continue
			}
			sa.res.Patterns = append(sa.res.Patterns, sa.buildPattern(rule, chunk, idx, baseLine, loc))
		}
	}

	sa.feedSecurity(chunk, idx, baseLine, skipBytes, final)
	sa.feedTypeSafety(chunk, idx, baseLine, skipBytes, final)
	sa.feedPerformance(chunk, idx, baseLine, skipBytes, final)
}

// skipSpanned decides which chunk owns a match near a boundary. A match
// ending strictly inside the carried prefix was emitted by the previous
// chunk. A match touching the end of a non-final chunk may be truncated and
// is deferred to the next chunk. Every rule's matches are shorter than the
// carried overlap, so a deferred match is always fully visible there.
func skipSpanned(loc []int, chunkLen, skipBytes int, final bool) bool {
	if loc[1] < skipBytes {
		return true
	}
	return !final && loc[1] == chunkLen
}

// Finish resolves whole-file conditions and returns the result. Pattern
// emission order is the lexical order of matches within each rule; across
// rules it follows the fixed rule order, which is stable per input.
func (sa *StreamAnalyzer) Finish() Result {
	if sa.finished {
		return sa.res
	}
	sa.finished = true

	sa.finishSecurity()
	sa.finishPerformance()

	// Present patterns in lexical file order regardless of rule order.
	sort.SliceStable(sa.res.Patterns, func(i, j int) bool {
		return sa.res.Patterns[i].LineStart < sa.res.Patterns[j].LineStart
	})
	return sa.res
}

func (sa *StreamAnalyzer) buildPattern(rule *Rule, chunk string, idx []int, baseLine int, loc []int) models.Pattern {
	lineStart := baseLine + lineAt(idx, loc[0]) // 1-based within file
	match := chunk[loc[0]:loc[1]]
	return models.Pattern{
		PatternType:   rule.Type,
		Category:      rule.Category,
		Subcategory:   rule.Subcategory,
		Description:   rule.Description,
		Content:       strings.TrimSpace(match),
		ContentHash:   ContentHash(strings.TrimSpace(match)),
		FilePath:      sa.path,
		LineStart:     lineStart,
		LineEnd:       lineStart + strings.Count(match, "\n"),
		Language:      sa.language,
		Confidence:    regexConfidence,
		Tags:          []string{rule.Category, rule.Subcategory, sa.language},
		ContextBefore: contextBefore(chunk, idx, loc[0]),
		ContextAfter:  contextAfter(chunk, idx, loc[1]),
	}
}

// buildLineIndex returns the byte offsets of every line start in s.
func buildLineIndex(s string) []int {
	idx := []int{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// lineAt returns the 1-based line number of byte offset within the chunk.
func lineAt(idx []int, offset int) int {
	lo := sort.Search(len(idx), func(i int) bool { return idx[i] > offset })
	return lo
}

func clipLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if len(s) > contextMaxLineLen {
		return s[:contextMaxLineLen]
	}
	return s
}

func contextBefore(chunk string, idx []int, offset int) string {
	line := lineAt(idx, offset) // 1-based within chunk
	first := line - 1 - contextLines
	if first < 0 {
		first = 0
	}
	var lines []string
	for l := first; l < line-1; l++ {
		end := len(chunk)
		if l+1 < len(idx) {
			end = idx[l+1]
		}
		lines = append(lines, clipLine(chunk[idx[l]:end]))
	}
	return strings.Join(lines, "\n")
}

func contextAfter(chunk string, idx []int, offset int) string {
	if offset >= len(chunk) {
		return ""
	}
	line := lineAt(idx, offset) // 1-based within chunk
	var lines []string
	for l := line; l < line+contextLines && l < len(idx); l++ {
		end := len(chunk)
		if l+1 < len(idx) {
			end = idx[l+1]
		}
		lines = append(lines, clipLine(chunk[idx[l]:end]))
	}
	return strings.Join(lines, "\n")
}
