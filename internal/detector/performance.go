package detector

import (
	"regexp"

	"github.com/codepulse/codepulse/internal/models"
)

var (
	syncFsRe        = regexp.MustCompile(`\bfs\.(?:readFileSync|writeFileSync|existsSync|statSync)\b`)
	setIntervalRe   = regexp.MustCompile(`\bsetInterval\s*\(`)
	clearIntervalRe = regexp.MustCompile(`\bclearInterval\b`)
	pushLoopRe      = regexp.MustCompile(`(?s)for\s*\([^)]*\)\s*\{[^{}]{0,400}?\.push\s*\(`)
)

func (sa *StreamAnalyzer) feedPerformance(chunk string, idx []int, baseLine, skipBytes int, final bool) {
	for _, loc := range syncFsRe.FindAllStringIndex(chunk, -1) {
		if skipSpanned(loc, len(chunk), skipBytes, final) {
			continue
		}
		sa.res.Performance = append(sa.res.Performance, models.PerformanceFinding{
			Type:           "sync_operation",
			Description:    "Synchronous filesystem call blocks the event loop",
			FilePath:       sa.path,
			LineNumber:     baseLine + lineAt(idx, loc[0]),
			Recommendation: "Use the async fs API or fs/promises",
		})
	}

	if setIntervalRe.MatchString(chunk) {
		sa.flags.sawSetInterval = true
	}
	if clearIntervalRe.MatchString(chunk) {
		sa.flags.sawClearInterval = true
	}

	for _, loc := range pushLoopRe.FindAllStringIndex(chunk, -1) {
		if skipSpanned(loc, len(chunk), skipBytes, final) {
			continue
		}
		sa.res.Performance = append(sa.res.Performance, models.PerformanceFinding{
			Type:           "inefficient_loop",
			Description:    "Array push inside a for loop",
			FilePath:       sa.path,
			LineNumber:     baseLine + lineAt(idx, loc[0]),
			Recommendation: "Consider map/filter or preallocating the result",
		})
	}
}

// finishPerformance emits the setInterval leak finding when the whole file
// never pairs it with a clearInterval. No line number: the condition is
// file-scoped.
func (sa *StreamAnalyzer) finishPerformance() {
	if sa.flags.sawSetInterval && !sa.flags.sawClearInterval {
		sa.res.Performance = append(sa.res.Performance, models.PerformanceFinding{
			Type:           "memory_leak",
			Description:    "setInterval without a matching clearInterval",
			FilePath:       sa.path,
			Recommendation: "Store the interval handle and clear it on teardown",
		})
	}
}
