// Package sanitize turns untrusted program output into HTML that is safe
// to inject into the playground page.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Bold, italic and line breaks only; no attributes at all.
	markup = bluemonday.NewPolicy().AllowElements("b", "i", "nobr", "br")
	strict = bluemonday.StrictPolicy()
)

// Markup keeps the few formatting tags a program may print and removes
// everything else, attributes included.
func Markup(s string) string {
	return markup.Sanitize(s)
}

// Strip removes all markup and escapes what is left.
func Strip(s string) string {
	return strict.Sanitize(s)
}

// Output renders captured text for the page: newlines become <br>.
func Output(text string) string {
	text = strings.TrimSuffix(text, "\n")
	return Markup(strings.ReplaceAll(text, "\n", "<br>"))
}
