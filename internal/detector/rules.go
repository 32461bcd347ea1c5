package detector

import "regexp"

// Rule maps a regex to a pattern type. The rule set is closed; multiple
// rules may match the same byte range and each match emits its own pattern.
type Rule struct {
	Type        string
	Category    string
	Subcategory string
	Description string
	Regexp      *regexp.Regexp
}

// patternRules is the closed rule set. Regexes are compiled once at package
// init; FindAllStringIndex keeps no state between calls, so nothing leaks
// across files.
var patternRules = []Rule{
	{
		Type:        "function_declaration",
		Category:    "functions",
		Subcategory: "declaration",
		Description: "Named function definition",
		Regexp: regexp.MustCompile(
			`(?:export\s+)?(?:async\s+)?function\s+[A-Za-z_$][\w$]*\s*\([^)]*\)` +
				`|(?m)^[ \t]*def\s+\w+\s*\([^)]*\)\s*:` +
				`|(?m)^func\s+(?:\([^)]+\)\s+)?[A-Za-z_]\w*\s*\(`),
	},
	{
		Type:        "arrow_function",
		Category:    "functions",
		Subcategory: "arrow",
		Description: "Named arrow function bound to an identifier",
		Regexp: regexp.MustCompile(
			`(?:const|let|var)\s+[A-Za-z_$][\w$]*\s*=\s*(?:async\s*)?\([^)]*\)\s*=>`),
	},
	{
		Type:        "type_definition",
		Category:    "types",
		Subcategory: "definition",
		Description: "Interface or type alias definition",
		Regexp: regexp.MustCompile(
			`(?:export\s+)?interface\s+[A-Za-z_$][\w$]*` +
				`|(?:export\s+)?type\s+[A-Za-z_$][\w$]*\s*=` +
				`|(?m)^type\s+\w+\s+(?:struct|interface)\b`),
	},
	{
		Type:        "import_statement",
		Category:    "modules",
		Subcategory: "import",
		Description: "Module import with string literal target",
		Regexp: regexp.MustCompile(
			`import\s+[^;\n]*?from\s+['"][^'"]+['"]` +
				`|import\s*\(\s*['"][^'"]+['"]\s*\)` +
				`|import\s+['"][^'"]+['"]` +
				`|require\s*\(\s*['"][^'"]+['"]\s*\)`),
	},
	{
		Type:        "react_component",
		Category:    "react",
		Subcategory: "component",
		Description: "Component returning a markup expression",
		Regexp: regexp.MustCompile(
			`(?s)(?:export\s+)?(?:default\s+)?(?:function|const)\s+[A-Z][\w$]*[^{;]{0,120}\{[^{}]{0,400}?return\s*\(?\s*<`),
	},
	{
		Type:        "hook_usage",
		Category:    "react",
		Subcategory: "hooks",
		Description: "Hook call",
		Regexp:      regexp.MustCompile(`\buse[A-Z]\w*\s*\(`),
	},
	{
		Type:        "error_handling",
		Category:    "error-handling",
		Subcategory: "try-catch",
		Description: "try/catch construct",
		Regexp:      regexp.MustCompile(`(?s)try\s*\{.{0,800}?\}\s*catch\s*(?:\([^)]*\))?`),
	},
	{
		Type:        "async_operation",
		Category:    "async",
		Subcategory: "await",
		Description: "Await expression",
		Regexp:      regexp.MustCompile(`\bawait\s+[\w$.]+`),
	},
	{
		Type:        "security_middleware",
		Category:    "security",
		Subcategory: "middleware",
		Description: "Security middleware usage",
		Regexp:      regexp.MustCompile(`\b(?:helmet|cors|rateLimit|csrf)\s*\(`),
	},
}

// Rules returns the closed pattern rule set.
func Rules() []Rule {
	return patternRules
}
