package detector

import (
	"path/filepath"
	"strings"
)

// languageByExtension is the closed extension table. Unknown extensions map
// to "Unknown"; such files still run through the regex rules.
var languageByExtension = map[string]string{
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".py":   "Python",
	".java": "Java",
	".go":   "Go",
}

// codeExtensions is the set of extensions the pipeline scans.
var codeExtensions = map[string]struct{}{
	".ts":   {},
	".tsx":  {},
	".js":   {},
	".jsx":  {},
	".py":   {},
	".java": {},
	".go":   {},
}

// DetectLanguage returns the language for a file path based only on its
// extension.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "Unknown"
}

// IsCodeFile reports whether the path has one of the scanned extensions.
func IsCodeFile(path string) bool {
	_, ok := codeExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
