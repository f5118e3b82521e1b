// Package classify maps repository file paths to a fixed set of semantic categories.
package classify

import (
	"path"
	"strings"
)

// Category is one file classification label.
type Category string

const (
	// SourceCode is application source in a programming language.
	SourceCode Category = "Source Code"
	// Configuration is structured settings data.
	Configuration Category = "Configuration"
	// Documentation is prose and reference material.
	Documentation Category = "Documentation"
	// Data is tabular or database content.
	Data Category = "Data"
	// WebAssets are stylesheets, markup, images and fonts.
	WebAssets Category = "Web Assets"
	// Testing is test code and fixtures.
	Testing Category = "Testing"
	// Dependencies are dependency manifests and lock files.
	Dependencies Category = "Dependencies"
	// BuildCI is build tooling and CI definitions.
	BuildCI Category = "Build/CI"
	// Other is the fallback for anything unrecognized.
	Other Category = "Other"
)

type namePatternSet struct {
	category Category
	patterns []string
}

// Checked in order; the first category with a matching substring wins.
var namePatterns = []namePatternSet{
	{
		category: Testing,
		patterns: []string{"test_", "_test.", ".test.", "spec.", ".spec.", "conftest"},
	},
	{
		category: Dependencies,
		patterns: []string{
			"requirements", "package.json", "pipfile", "cargo.toml", "go.mod",
			"pom.xml", "build.gradle", "gemfile", "poetry.lock", "yarn.lock", "package-lock",
		},
	},
	{
		category: BuildCI,
		patterns: []string{
			"dockerfile", "makefile", ".github", "jenkinsfile", ".gitlab-ci",
			".circleci", "tox.ini", "setup.py", "setup.cfg", "pyproject.toml",
		},
	},
}

var extensionCategories = buildExtensionTable(map[Category][]string{
	SourceCode: {
		".py", ".js", ".ts", ".jsx", ".tsx", ".java", ".go", ".rs", ".c", ".cpp", ".h",
		".cs", ".rb", ".php", ".swift", ".kt", ".scala", ".r", ".m", ".vue", ".svelte",
	},
	Configuration: {".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf", ".env", ".properties", ".xml"},
	Documentation: {".md", ".rst", ".txt", ".doc", ".pdf", ".adoc"},
	Data:          {".csv", ".sql", ".db", ".sqlite", ".parquet", ".jsonl"},
	WebAssets: {
		".html", ".css", ".scss", ".less", ".svg", ".png", ".jpg", ".jpeg",
		".gif", ".ico", ".woff", ".woff2", ".ttf",
	},
})

func buildExtensionTable(byCategory map[Category][]string) map[string]Category {
	table := make(map[string]Category)
	for category, extensions := range byCategory {
		for _, ext := range extensions {
			table[ext] = category
		}
	}
	return table
}

// Classify returns the category for a repo-relative path.
func Classify(filePath string) Category {
	base := lowerBase(filePath)

	for _, set := range namePatterns {
		for _, pattern := range set.patterns {
			if strings.Contains(base, pattern) {
				return set.category
			}
		}
	}

	if category, ok := extensionCategories[suffix(base)]; ok {
		return category
	}
	return Other
}

// Extension returns the lower-cased final dotted suffix of the basename, including the dot.
// It returns an empty string when the basename has no dot.
func Extension(filePath string) string {
	return suffix(lowerBase(filePath))
}

func lowerBase(filePath string) string {
	return strings.ToLower(path.Base(strings.ReplaceAll(filePath, "\\", "/")))
}

// suffix returns the final dotted suffix of an already lower-cased basename.
func suffix(base string) string {
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	return base[idx:]
}

// ExtensionLabel is Extension with "(none)" for paths without a dotted suffix.
func ExtensionLabel(filePath string) string {
	ext := Extension(filePath)
	if ext == "" {
		return "(none)"
	}
	return ext
}

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		SourceCode, Configuration, Documentation, Data, WebAssets,
		Testing, Dependencies, BuildCI, Other,
	}
}
