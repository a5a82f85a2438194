package units

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GetTemplateFuncMap returns the functions available to prompt templates.
// All functions are pure and safe for concurrent template execution.
//
//	tmpl, err := template.New("prompt").Funcs(GetTemplateFuncMap()).Parse(config.Prompt)
func GetTemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		// {{add $i 1}} turns a zero-based index into a one-based one.
		"add": func(a, b int) int {
			return a + b
		},

		"contains": func(s, substr string) bool {
			return strings.Contains(s, substr)
		},

		// truncate cuts s to at most length characters, ending with "..."
		// when it had to cut and there is room for it.
		"truncate": func(s string, length int) string {
			if length <= 0 {
				return ""
			}
			if utf8.RuneCountInString(s) <= length {
				return s
			}
			runes := []rune(s)
			if length > 3 {
				return string(runes[:length-3]) + "..."
			}
			return string(runes[:length])
		},

		// lower is Unicode-aware. A Caser is stateful, so each call gets one.
		"lower": func(s string) string {
			return cases.Lower(language.Und).String(s)
		},

		"trim": func(s string) string {
			return strings.TrimSpace(s)
		},

		"replace": func(s, old, new string) string {
			return strings.ReplaceAll(s, old, new)
		},

		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},
	}
}
