package vfs

import (
	"path"
	"strings"
)

var languageByExt = map[string]string{
	"html": "html",
	"css":  "css",
	"js":   "javascript",
	"ts":   "typescript",
	"json": "json",
	"md":   "markdown",
	"py":   "python",
}

// LanguageFor returns the editor language id for a filename, inferred from
// its extension. Unknown extensions map to "plaintext".
func LanguageFor(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "plaintext"
}
