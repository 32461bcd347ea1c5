package recommend

import (
	"fmt"

	"github.com/codepulse/codepulse/internal/models"
)

// Shared pattern-driven rules. Each returns zero or one recommendation
// derived from the detected patterns, referencing them via
// ApplicablePatterns. Titles are stable so repeated passes dedup by
// (repository, title).

// errorHandlingGap fires when the codebase has a meaningful number of
// functions but few try/catch constructs.
func errorHandlingGap(ctx Context) []models.Recommendation {
	functions := append(patternsOfType(ctx, "function_declaration"), patternsOfType(ctx, "arrow_function")...)
	handlers := patternsOfType(ctx, "error_handling")
	if len(functions) < 10 || len(handlers)*5 >= len(functions) {
		return nil
	}

	pct := len(handlers) * 100 / len(functions)
	rec := newRecommendation(ctx,
		"Improve Error Handling Coverage",
		fmt.Sprintf("Only %d%% of functions are covered by try/catch or equivalent handling (%d handlers across %d functions).",
			pct, len(handlers), len(functions)),
		models.RecBestPractices, models.PriorityHigh)
	rec.ApplicablePatterns = patternIDs(functions)
	rec.EstimatedEffort = "1-2 days"
	rec.CodeExamples = []models.CodeExample{{
		Title:    "Wrap fallible work",
		Before:   "async function sync() {\n  const data = await fetchAll();\n  await persist(data);\n}",
		After:    "async function sync() {\n  try {\n    const data = await fetchAll();\n    await persist(data);\n  } catch (err) {\n    logger.error({ err }, 'sync failed');\n    throw err;\n  }\n}",
		Language: "typescript",
	}}
	rec.ImplementationSteps = steps(
		[3]string{"Map unprotected paths", "List entry points that can throw without a handler.", "2h"},
		[3]string{"Add handlers", "Wrap each path, logging with context before rethrowing.", "1d"},
		[3]string{"Add an error middleware", "Centralize last-resort handling at the boundary.", "2h"},
	)
	return []models.Recommendation{rec}
}

// hooksExtraction fires when hook calls cluster heavily, suggesting
// extractable custom hooks.
func hooksExtraction(ctx Context) []models.Recommendation {
	hooks := patternsOfType(ctx, "hook_usage")
	if len(hooks) < 8 {
		return nil
	}
	rec := newRecommendation(ctx,
		"Extract Reusable Custom Hooks",
		fmt.Sprintf("%d hook calls detected; repeated state/effect combinations are candidates for shared custom hooks.", len(hooks)),
		models.RecPatternUsage, models.PriorityMedium)
	rec.ApplicablePatterns = patternIDs(hooks)
	rec.EstimatedEffort = "half a day"
	rec.CodeExamples = []models.CodeExample{{
		Title:    "Extract a data-fetching hook",
		Before:   "const [data, setData] = useState(null);\nuseEffect(() => { fetch(url).then(r => r.json()).then(setData); }, [url]);",
		After:    "const data = useFetch(url);",
		Language: "typescript",
	}}
	rec.ImplementationSteps = steps(
		[3]string{"Find repeats", "Group components that share the same state/effect shape.", "1h"},
		[3]string{"Extract and adopt", "Move the shared logic into a custom hook and replace call sites.", "3h"},
	)
	return []models.Recommendation{rec}
}

// componentTyping fires for components in files with few type definitions.
func componentTyping(ctx Context) []models.Recommendation {
	components := patternsOfType(ctx, "react_component")
	types := patternsOfType(ctx, "type_definition")
	if len(components) == 0 || len(types) >= len(components) {
		return nil
	}
	rec := newRecommendation(ctx,
		"Type Component Props Explicitly",
		fmt.Sprintf("%d components detected against %d type definitions; props are likely untyped.", len(components), len(types)),
		models.RecTypeSafety, models.PriorityMedium)
	rec.ApplicablePatterns = patternIDs(components)
	rec.EstimatedEffort = "half a day"
	rec.CodeExamples = []models.CodeExample{{
		Title:    "Props interface",
		Before:   "function UserCard(props) {\n  return <div>{props.name}</div>;\n}",
		After:    "interface UserCardProps { name: string }\nfunction UserCard({ name }: UserCardProps) {\n  return <div>{name}</div>;\n}",
		Language: "typescript",
	}}
	rec.ImplementationSteps = steps(
		[3]string{"Declare prop interfaces", "Add an interface per component.", "3h"},
		[3]string{"Enable strict props", "Turn on strict mode to keep new components typed.", "1h"},
	)
	return []models.Recommendation{rec}
}

// asyncWithoutHandling fires when await expressions far outnumber try/catch
// constructs.
func asyncWithoutHandling(ctx Context) []models.Recommendation {
	awaits := patternsOfType(ctx, "async_operation")
	handlers := patternsOfType(ctx, "error_handling")
	if len(awaits) < 10 || len(handlers)*3 >= len(awaits) {
		return nil
	}
	rec := newRecommendation(ctx,
		"Protect Await Expressions",
		fmt.Sprintf("%d await expressions against %d try/catch constructs; rejected promises will surface as unhandled.", len(awaits), len(handlers)),
		models.RecBestPractices, models.PriorityMedium)
	rec.ApplicablePatterns = patternIDs(awaits)
	rec.EstimatedEffort = "half a day"
	rec.CodeExamples = []models.CodeExample{{
		Title:    "Handle rejections",
		Before:   "const res = await client.send(msg);",
		After:    "try {\n  const res = await client.send(msg);\n} catch (err) {\n  logger.warn({ err }, 'send failed');\n}",
		Language: "typescript",
	}}
	rec.ImplementationSteps = steps(
		[3]string{"Audit awaits", "Find awaits outside any try/catch.", "2h"},
		[3]string{"Wrap or propagate", "Handle locally or let a typed boundary catch.", "3h"},
	)
	return []models.Recommendation{rec}
}

// missingSecurityMiddleware fires when no security middleware pattern was
// detected anywhere in the repository.
func missingSecurityMiddleware(ctx Context) []models.Recommendation {
	if len(patternsOfType(ctx, "security_middleware")) > 0 {
		return nil
	}
	if len(patternsOfType(ctx, "import_statement")) == 0 {
		return nil
	}
	rec := newRecommendation(ctx,
		"Introduce Security Middleware",
		"No helmet, cors, rate-limit, or csrf usage detected across the scanned files.",
		models.RecSecurity, models.PriorityHigh)
	rec.EstimatedEffort = "2-4 hours"
	rec.CodeExamples = []models.CodeExample{{
		Title:    "Baseline hardening",
		Before:   "const app = express();",
		After:    "const app = express();\napp.use(helmet());\napp.use(rateLimit({ windowMs: 60_000, max: 100 }));",
		Language: "typescript",
	}}
	rec.ImplementationSteps = steps(
		[3]string{"Add helmet and rate limiting", "Install and register the middleware at app startup.", "1h"},
		[3]string{"Review CORS policy", "Restrict origins to what clients actually need.", "1h"},
	)
	return []models.Recommendation{rec}
}

// typeAliasAdoption fires for repositories with very few type definitions
// relative to their function count. Used by the migration profiles.
func typeAliasAdoption(ctx Context) []models.Recommendation {
	functions := patternsOfType(ctx, "function_declaration")
	types := patternsOfType(ctx, "type_definition")
	if len(functions) < 15 || len(types)*10 >= len(functions) {
		return nil
	}
	rec := newRecommendation(ctx,
		"Incrementally Adopt Typed Interfaces",
		fmt.Sprintf("%d functions share only %d type definitions; module boundaries are effectively untyped.", len(functions), len(types)),
		models.RecMigration, models.PriorityMedium)
	rec.ApplicablePatterns = patternIDs(functions)
	rec.EstimatedEffort = "1-2 days"
	rec.CodeExamples = []models.CodeExample{{
		Title:    "Type a module boundary",
		Before:   "function createOrder(payload) { /* ... */ }",
		After:    "interface OrderInput { sku: string; qty: number }\nfunction createOrder(payload: OrderInput) { /* ... */ }",
		Language: "typescript",
	}}
	rec.ImplementationSteps = steps(
		[3]string{"Pick one module", "Start with the most-imported module.", "1h"},
		[3]string{"Type its exports", "Add interfaces for every exported function.", "4h"},
		[3]string{"Repeat outward", "Follow the import graph until boundaries are typed.", "1d"},
	)
	return []models.Recommendation{rec}
}
