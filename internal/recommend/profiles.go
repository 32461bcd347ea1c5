package recommend

import (
	"github.com/codepulse/codepulse/internal/classifier"
	"github.com/codepulse/codepulse/internal/models"
)

const fallbackProfile = classifier.ProfileGeneralTypescript

// patternRule is one pattern-driven producer; generators run their rules in
// order and fall back to templates only when every rule yields nothing.
type patternRule func(Context) []models.Recommendation

func patternDriven(rules []patternRule, templates func(Context) []models.Recommendation) func(Context) []models.Recommendation {
	return func(ctx Context) []models.Recommendation {
		var recs []models.Recommendation
		for _, rule := range rules {
			recs = append(recs, rule(ctx)...)
		}
		if len(recs) > 0 {
			return recs
		}
		return templates(ctx)
	}
}

var registry = map[string]Generator{
	classifier.ProfileAzureFunctions: {
		Profile: classifier.ProfileAzureFunctions,
		Generate: patternDriven(
			[]patternRule{asyncWithoutHandling, errorHandlingGap},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Standardize Function App Configuration",
					"Move bindings and app settings into a single reviewed configuration module.",
					models.RecArchitecture, models.PriorityMedium)
				rec.EstimatedEffort = "half a day"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Central settings module",
					Before:   "const conn = process.env.STORAGE_CONN;",
					After:    "import { settings } from './settings';\nconst conn = settings.storageConnection;",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Inventory env access", "Find every process.env read.", "1h"},
					[3]string{"Centralize", "Route reads through one validated settings module.", "3h"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
	classifier.ProfileDevopsMonitoring: {
		Profile: classifier.ProfileDevopsMonitoring,
		Generate: patternDriven(
			[]patternRule{errorHandlingGap, asyncWithoutHandling},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Adopt Structured Logging",
					"Replace free-form console output with structured, leveled log records.",
					models.RecBestPractices, models.PriorityMedium)
				rec.EstimatedEffort = "half a day"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Structured fields",
					Before:   "console.log('poll failed ' + err);",
					After:    "logger.error({ err, target }, 'poll failed');",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Pick a logger", "Adopt one structured logger for the service.", "1h"},
					[3]string{"Convert call sites", "Replace console usage with leveled calls.", "3h"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
	classifier.ProfileHealthcareEnterprise: {
		Profile: classifier.ProfileHealthcareEnterprise,
		Generate: patternDriven(
			[]patternRule{missingSecurityMiddleware, errorHandlingGap},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Enforce Audit Logging on Data Access",
					"Record who accessed which records and when, at every data boundary.",
					models.RecSecurity, models.PriorityHigh)
				rec.EstimatedEffort = "1-2 days"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Audit wrapper",
					Before:   "const record = await repo.find(id);",
					After:    "const record = await audited(user, 'read', () => repo.find(id));",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Define audit events", "Agree on the event shape and retention.", "2h"},
					[3]string{"Wrap data access", "Route reads and writes through the audit layer.", "1d"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
	classifier.ProfileReactFrontend: {
		Profile: classifier.ProfileReactFrontend,
		Generate: patternDriven(
			[]patternRule{hooksExtraction, componentTyping},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Add Error Boundaries",
					"Wrap top-level routes in error boundaries so a render failure degrades gracefully.",
					models.RecBestPractices, models.PriorityMedium)
				rec.EstimatedEffort = "2-4 hours"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Route boundary",
					Before:   "<Route path=\"/orders\" element={<Orders />} />",
					After:    "<Route path=\"/orders\" element={<ErrorBoundary><Orders /></ErrorBoundary>} />",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Create the boundary", "Implement one reusable ErrorBoundary component.", "1h"},
					[3]string{"Wrap routes", "Apply it around each top-level route.", "1h"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
	classifier.ProfileMiddlewareAPI: {
		Profile: classifier.ProfileMiddlewareAPI,
		Generate: patternDriven(
			[]patternRule{missingSecurityMiddleware, errorHandlingGap, asyncWithoutHandling},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Standardize Middleware Error Responses",
					"Return one error envelope from every middleware failure path.",
					models.RecArchitecture, models.PriorityMedium)
				rec.EstimatedEffort = "half a day"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Error envelope",
					Before:   "res.status(500).send(err.message);",
					After:    "next(new ApiError(500, 'internal_error', { cause: err }));",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Define ApiError", "One error class with a stable wire shape.", "1h"},
					[3]string{"Add the handler", "Terminal error middleware renders the envelope.", "2h"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
	classifier.ProfileLegacyMigration: {
		Profile: classifier.ProfileLegacyMigration,
		Generate: patternDriven(
			[]patternRule{typeAliasAdoption, errorHandlingGap},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Plan an Incremental Migration Path",
					"Carve the legacy surface into strangler-fig slices with explicit seams.",
					models.RecMigration, models.PriorityMedium)
				rec.EstimatedEffort = "1-2 days"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Seam via facade",
					Before:   "legacyBilling.charge(order);",
					After:    "billingFacade.charge(order); // routes to legacy or new impl per flag",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Identify seams", "Find boundaries with the fewest callers.", "4h"},
					[3]string{"Introduce facades", "Route callers through a switchable facade.", "1d"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
	classifier.ProfileFullstackTypescript: {
		Profile: classifier.ProfileFullstackTypescript,
		Generate: patternDriven(
			[]patternRule{componentTyping, errorHandlingGap, asyncWithoutHandling},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Share Types Between Client and Server",
					"Move request/response shapes into a shared package so both sides compile against one contract.",
					models.RecArchitecture, models.PriorityMedium)
				rec.EstimatedEffort = "half a day"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Shared contract",
					Before:   "// client and server each declare their own Order shape",
					After:    "import type { Order } from '@shared/contracts';",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Create the package", "Add a shared contracts workspace package.", "2h"},
					[3]string{"Move shapes", "Relocate duplicated types and fix imports.", "3h"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
	classifier.ProfileGeneralTypescript: {
		Profile: classifier.ProfileGeneralTypescript,
		Generate: patternDriven(
			[]patternRule{errorHandlingGap, asyncWithoutHandling, typeAliasAdoption},
			func(ctx Context) []models.Recommendation {
				rec := newRecommendation(ctx,
					"Establish a Linting Baseline",
					"Adopt a shared lint configuration and fix or suppress the initial findings.",
					models.RecBestPractices, models.PriorityLow)
				rec.EstimatedEffort = "2-4 hours"
				rec.CodeExamples = []models.CodeExample{{
					Title:    "Flat config",
					Before:   "// no lint configuration",
					After:    "export default [js.configs.recommended, ...tseslint.configs.recommended];",
					Language: "typescript",
				}}
				rec.ImplementationSteps = steps(
					[3]string{"Add the config", "Commit a shared lint configuration.", "1h"},
					[3]string{"Burn down", "Fix the initial findings or record suppressions.", "2h"},
				)
				return []models.Recommendation{rec}
			}),
		GenerateFromScan: issueDriven,
	},
}
