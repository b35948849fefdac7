package session

import (
	"html"
	"strings"
)

var neutralise = strings.NewReplacer(
	"DATABASE_OPERATION:", "DATABASE_OPERATION&#58;",
	"```", "&#96;&#96;&#96;",
)

// EscapeUserContent makes user text inert: markup is escaped, and the
// directive marker and code fences can no longer trigger extraction when the
// turn is replayed to the model.
func EscapeUserContent(s string) string {
	return neutralise.Replace(html.EscapeString(s))
}
