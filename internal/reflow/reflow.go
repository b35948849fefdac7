// Package reflow turns a single run-on model response into readable lines
// without breaking numbers, URLs, abbreviations, dates, directive lines or
// fenced code.
package reflow

import (
	"regexp"
	"strconv"
	"strings"
)

// Protected spans are wrapped in these private-use runes while the splitting
// rules run. Any occurrence of them in the input is dropped up front.
const (
	sentinelOpen  = "\uE000"
	sentinelClose = "\uE001"
)

// Protection classes, applied in this order. A span wrapped by an earlier
// class is not rescanned by a later one.
var protectors = []*regexp.Regexp{
	// fenced code blocks
	regexp.MustCompile("(?s)```.*?```"),
	// directive lines
	regexp.MustCompile(`DATABASE_OPERATION:[^\n]*`),
	// URLs; trailing sentence punctuation stays outside
	regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]*[^\s<>".,;:!?)\]]`),
	// emails
	regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	// dotted dates: 12.31.2024, 1.2.24
	regexp.MustCompile(`\b\d{1,4}\.\d{1,2}\.\d{2,4}\b`),
	// decimals
	regexp.MustCompile(`\b\d+\.\d+\b`),
	// abbreviations
	regexp.MustCompile(`\b(?:Dr|Mr|Mrs|Ms|Prof)\.|\b(?:etc|e\.g|i\.e)\.`),
}

var (
	wrapped = regexp.MustCompile(sentinelOpen + `[^` + sentinelOpen + sentinelClose + `]*` + sentinelClose)

	terminator = regexp.MustCompile(`[.!?][ \t]+`)
	colonEnd   = regexp.MustCompile(`:[ \t]+`)
	numbered   = regexp.MustCompile(`(\d{1,3})\.[ \t]`)
	bullet     = regexp.MustCompile(`[ \t]*([•▪◦‣])[ \t]*`)
	dashLead   = regexp.MustCompile(`^[ \t]*[-*][ \t]+`)
	dashItem   = regexp.MustCompile(`[ \t]+([-*])[ \t]+`)

	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRun      = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// Format reflows raw. It is pure and never fails.
func Format(raw string) string {
	s := strings.NewReplacer(sentinelOpen, "", sentinelClose, "").Replace(raw)

	s = wrap(s)
	s = eachFree(s, breakLines)
	s = unwrap(s)

	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func breakLines(s string) string {
	s = colonEnd.ReplaceAllString(s, ":\n")
	s = breakSentences(s, listMarkers(s))
	s = breakMarkers(s, listMarkers(s))
	s = bullet.ReplaceAllString(s, "\n$1 ")
	return splitDashItems(s)
}

// marker is an "N. " list marker.
type marker struct {
	start int // first digit
	dot   int
	n     int
	// nothing but blanks since the start of the line
	lineStart bool
}

// listMarkers returns the "N. " occurrences that open list items: those at
// the start of a line, right after a colon or sentence terminator, or
// continuing a 1., 2., ... sequence. Any other "N." ends a sentence.
func listMarkers(s string) []marker {
	var cands []marker
	for _, m := range numbered.FindAllStringSubmatchIndex(s, -1) {
		start := m[2]
		if start > 0 && !isSpace(s[start-1]) {
			continue
		}
		n, _ := strconv.Atoi(s[m[2]:m[3]])
		cands = append(cands, marker{start: start, dot: m[3], n: n})
	}

	var out []marker
	last := 0
	for i, c := range cands {
		prev := prevNonBlank(s, c.start)
		c.lineStart = prev == 0 || prev == '\n'
		afterBreak := c.lineStart || strings.IndexByte(".!?:", prev) >= 0
		inRun := (last > 0 && c.n == last+1) ||
			(c.n == 1 && i+1 < len(cands) && cands[i+1].n == 2)
		if afterBreak || inRun {
			out = append(out, c)
			last = c.n
		}
	}
	return out
}

// breakSentences breaks after every terminator that follows text, except the
// dot of a list marker.
func breakSentences(s string, markers []marker) string {
	skip := make(map[int]bool, len(markers))
	for _, m := range markers {
		skip[m.dot] = true
	}

	var b strings.Builder
	last := 0
	for _, loc := range terminator.FindAllStringIndex(s, -1) {
		dot := loc[0]
		if skip[dot] || (dot > 0 && isSpace(s[dot-1])) {
			continue
		}
		b.WriteString(s[last : dot+1])
		b.WriteByte('\n')
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// breakMarkers moves list markers that are not yet at a line start onto
// their own line.
func breakMarkers(s string, markers []marker) string {
	var b strings.Builder
	last := 0
	for _, m := range markers {
		if m.lineStart {
			continue
		}
		j := m.start
		for j > last && (s[j-1] == ' ' || s[j-1] == '\t') {
			j--
		}
		b.WriteString(s[last:j])
		b.WriteByte('\n')
		last = m.start
	}
	b.WriteString(s[last:])
	return b.String()
}

// splitDashItems splits a line that opens with a "-" or "*" bullet at each
// further " - " or " * ".
func splitDashItems(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lead := dashLead.FindStringIndex(l)
		if lead == nil {
			continue
		}
		lines[i] = l[:lead[1]] + dashItem.ReplaceAllString(l[lead[1]:], "\n$1 ")
	}
	return strings.Join(lines, "\n")
}

func prevNonBlank(s string, i int) byte {
	for i > 0 {
		i--
		if s[i] != ' ' && s[i] != '\t' {
			return s[i]
		}
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// wrap tags every protected span with the sentinels.
func wrap(s string) string {
	for _, re := range protectors {
		s = eachFree(s, func(free string) string {
			return re.ReplaceAllStringFunc(free, func(m string) string {
				return sentinelOpen + m + sentinelClose
			})
		})
	}
	return s
}

// unwrap removes the sentinels added by wrap.
func unwrap(s string) string {
	return wrapped.ReplaceAllStringFunc(s, func(m string) string {
		return m[len(sentinelOpen) : len(m)-len(sentinelClose)]
	})
}

// eachFree applies fn to every stretch of s that is not a wrapped span.
func eachFree(s string, fn func(string) string) string {
	var b strings.Builder
	last := 0
	for _, loc := range wrapped.FindAllStringIndex(s, -1) {
		b.WriteString(fn(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(fn(s[last:]))
	return b.String()
}
