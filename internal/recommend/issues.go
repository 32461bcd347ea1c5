package recommend

import (
	"fmt"

	"github.com/codepulse/codepulse/internal/models"
)

// issueDriven is the shared issue-count entry point. It emits at most one
// recommendation per finding class, sized by the counts, and nothing at all
// when every count is zero.
func issueDriven(ctx Context, scan ScanSummary) []models.Recommendation {
	if scan.empty() {
		return nil
	}

	var recs []models.Recommendation

	if scan.SecurityCount > 0 {
		priority := models.PriorityHigh
		if scan.SecurityCount >= 5 {
			priority = models.PriorityCritical
		}
		rec := newRecommendation(ctx,
			"Resolve Detected Security Issues",
			fmt.Sprintf("The last scan found %d security issue(s): missing middleware or hardcoded credentials.", scan.SecurityCount),
			models.RecSecurity, priority)
		rec.EstimatedEffort = effortForCount(scan.SecurityCount)
		rec.Metrics = models.ImpactMetrics{BugsPrevented: fmt.Sprintf("%d", scan.SecurityCount)}
		rec.CodeExamples = []models.CodeExample{{
			Title:    "Harden the Express app",
			Before:   "const app = express();",
			After:    "const app = express();\napp.use(helmet());\napp.use(cors({ origin: allowedOrigins }));\napp.use(rateLimit({ windowMs: 60_000, max: 100 }));",
			Language: "typescript",
		}}
		rec.ImplementationSteps = steps(
			[3]string{"Review findings", "Walk the reported files and confirm each issue.", "30m"},
			[3]string{"Apply middleware and remove secrets", "Add the missing middleware; move credentials to configuration.", effortForCount(scan.SecurityCount)},
			[3]string{"Re-scan", "Run the scan again and confirm the security count is zero.", "15m"},
		)
		recs = append(recs, rec)
	}

	if scan.TypeSafetyCount > 0 {
		rec := newRecommendation(ctx,
			"Eliminate Unsafe Type Usage",
			fmt.Sprintf("The last scan found %d type-safety issue(s) such as any usage or unannotated parameters.", scan.TypeSafetyCount),
			models.RecTypeSafety, models.PriorityMedium)
		rec.EstimatedEffort = effortForCount(scan.TypeSafetyCount)
		rec.CodeExamples = []models.CodeExample{{
			Title:    "Replace any with a concrete type",
			Before:   "function load(data: any) { return data.items; }",
			After:    "interface Payload { items: Item[] }\nfunction load(data: Payload): Item[] { return data.items; }",
			Language: "typescript",
		}}
		rec.ImplementationSteps = steps(
			[3]string{"Enable noImplicitAny", "Turn on strict compiler flags to surface the gaps.", "15m"},
			[3]string{"Annotate flagged sites", "Work through the reported lines and add types.", effortForCount(scan.TypeSafetyCount)},
		)
		recs = append(recs, rec)
	}

	if scan.PerformanceCount > 0 {
		rec := newRecommendation(ctx,
			"Fix Detected Performance Hotspots",
			fmt.Sprintf("The last scan found %d performance issue(s): synchronous I/O, leaked intervals, or inefficient loops.", scan.PerformanceCount),
			models.RecPerformance, models.PriorityMedium)
		rec.EstimatedEffort = effortForCount(scan.PerformanceCount)
		rec.Metrics = models.ImpactMetrics{PerformanceGain: "reduced event-loop blocking"}
		rec.CodeExamples = []models.CodeExample{{
			Title:    "Async file reads",
			Before:   "const data = fs.readFileSync(path);",
			After:    "const data = await fs.promises.readFile(path);",
			Language: "typescript",
		}}
		rec.ImplementationSteps = steps(
			[3]string{"Replace sync I/O", "Swap each sync fs call for its promise-based variant.", effortForCount(scan.PerformanceCount)},
			[3]string{"Audit timers", "Pair every setInterval with a clearInterval on teardown.", "30m"},
		)
		recs = append(recs, rec)
	}

	return recs
}

// effortForCount scales the human effort estimate with the issue count.
func effortForCount(count int) string {
	switch {
	case count <= 2:
		return "1-2 hours"
	case count <= 10:
		return "half a day"
	default:
		return "1-2 days"
	}
}
