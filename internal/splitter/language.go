package splitter

import (
	"path/filepath"
	"strings"
)

// Language selects the separator strategy used when splitting documents.
// The set is closed: adding a language means adding a table entry below.
type Language string

const (
	LangPlain      Language = "plain"
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "js"
	LangTypeScript Language = "ts"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangMarkdown   Language = "markdown"
)

// separatorTable maps each language to its split points, ordered from the
// most to the least structurally meaningful. Splitting prefers the
// earliest separator that can be found near a chunk boundary.
var separatorTable = map[Language][]string{
	LangPlain: {"\n\n", "\n", " "},
	LangGo: {
		"\nfunc ", "\ntype ", "\nconst ", "\nvar ",
		"\n\n", "\n", " ",
	},
	LangPython: {
		"\nclass ", "\ndef ", "\n\tdef ", "\n    def ",
		"\n\n", "\n", " ",
	},
	LangJavaScript: {
		"\nfunction ", "\nclass ", "\nconst ", "\nlet ", "\nvar ",
		"\n\n", "\n", " ",
	},
	LangTypeScript: {
		"\nfunction ", "\nclass ", "\ninterface ", "\ntype ", "\nconst ",
		"\n\n", "\n", " ",
	},
	LangRust: {
		"\nfn ", "\nstruct ", "\nenum ", "\nimpl ", "\ntrait ",
		"\n\n", "\n", " ",
	},
	LangJava: {
		"\nclass ", "\npublic ", "\nprotected ", "\nprivate ",
		"\n\n", "\n", " ",
	},
	LangMarkdown: {
		"\n# ", "\n## ", "\n### ", "\n#### ",
		"\n\n", "\n", " ",
	},
}

// Separators returns the separator list for lang, falling back to the
// plain-text strategy for unknown languages.
func Separators(lang Language) []string {
	if seps, ok := separatorTable[lang]; ok {
		return seps
	}
	return separatorTable[LangPlain]
}

// extLanguages maps file extensions to languages for the loader.
var extLanguages = map[string]Language{
	".go":   LangGo,
	".py":   LangPython,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".ts":   LangTypeScript,
	".tsx":  LangTypeScript,
	".rs":   LangRust,
	".java": LangJava,
	".md":   LangMarkdown,
}

// DetectLanguage maps a file path to a Language by extension.
// Unrecognized extensions fall back to plain text.
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	return LangPlain
}
